// Package friends maintains the friendship graph: one record per unordered
// pair of members, pending until the recipient accepts it.
package friends

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kinship/backend/internal/cache"
	"github.com/kinship/backend/internal/events"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/repositories"
)

var (
	ErrSelfFriendship     = errors.New("members cannot befriend themselves")
	ErrFriendshipExists   = errors.New("friendship already exists")
	ErrFriendshipNotFound = errors.New("friendship not found")
	ErrNotPending         = errors.New("friendship is not pending")
	ErrNotFriends         = errors.New("members are not friends")
	ErrForbidden          = errors.New("member may not act on this friendship")
	ErrUserNotFound       = errors.New("member not found")
)

// Status describes a friendship from one member's point of view.
type Status string

const (
	StatusNotFriends       Status = "not_friends"
	StatusPending          Status = "pending"
	StatusAwaitingResponse Status = "awaiting_response"
	StatusFriends          Status = "is_friend"
)

// Store persists friendships. Confirm and Delete adjust both members'
// counters in the same transaction.
type Store interface {
	Create(ctx context.Context, friendship models.Friendship) error
	Get(ctx context.Context, id string) (models.Friendship, error)
	Between(ctx context.Context, userA, userB string) (models.Friendship, error)
	Confirm(ctx context.Context, id string) (models.Friendship, error)
	Delete(ctx context.Context, id string) (models.Friendship, error)
	DeletePending(ctx context.Context, id string) (models.Friendship, error)
	DeleteAllForUser(ctx context.Context, userID string) ([]models.Friendship, error)
	List(ctx context.Context, userID, scope string) ([]models.Friendship, error)
	FriendIDs(ctx context.Context, userID string) ([]string, error)
	FriendCount(ctx context.Context, userID string) (int, error)
	Recount(ctx context.Context, userID string) (int, error)
}

// UserLookup resolves members by ID.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Service implements the friendship life-cycle.
type Service struct {
	store    Store
	users    UserLookup
	counters cache.Counters
	events   events.Publisher

	now   func() time.Time
	newID func() string
}

// NewService wires a Service. Nil counters and publisher disable caching and
// event dispatch.
func NewService(store Store, users UserLookup, counters cache.Counters, publisher events.Publisher) *Service {
	if counters == nil {
		counters = cache.Noop{}
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{
		store:    store,
		users:    users,
		counters: counters,
		events:   publisher,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Request creates a friendship from initiator to friend. With forceAccept the
// record starts confirmed.
func (s *Service) Request(ctx context.Context, initiatorID, friendID string, forceAccept bool) (models.Friendship, error) {
	if initiatorID == friendID {
		return models.Friendship{}, ErrSelfFriendship
	}
	for _, id := range []string{initiatorID, friendID} {
		if _, err := s.users.FindByID(ctx, id); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return models.Friendship{}, ErrUserNotFound
			}
			return models.Friendship{}, fmt.Errorf("lookup member %s: %w", id, err)
		}
	}

	if _, err := s.store.Between(ctx, initiatorID, friendID); err == nil {
		return models.Friendship{}, ErrFriendshipExists
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.Friendship{}, fmt.Errorf("lookup friendship: %w", err)
	}

	friendship := models.Friendship{
		ID:          s.newID(),
		InitiatorID: initiatorID,
		FriendID:    friendID,
		IsConfirmed: forceAccept,
		CreatedAt:   s.now(),
	}
	if err := s.store.Create(ctx, friendship); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			return models.Friendship{}, ErrFriendshipExists
		case errors.Is(err, repositories.ErrNotFound):
			return models.Friendship{}, ErrUserNotFound
		}
		return models.Friendship{}, fmt.Errorf("create friendship: %w", err)
	}

	logging.FromContext(ctx).Info("friendship requested",
		"friendshipId", friendship.ID, "initiatorId", initiatorID, "friendId", friendID, "forceAccept", forceAccept)
	s.publish(ctx, events.FriendshipRequested, initiatorID, friendship)
	if forceAccept {
		s.counters.Invalidate(ctx, initiatorID, friendID)
		s.publish(ctx, events.FriendshipAccepted, friendID, friendship)
	}
	return friendship, nil
}

// Accept confirms a pending request. Only the recipient may accept.
func (s *Service) Accept(ctx context.Context, friendshipID, actorID string) (models.Friendship, error) {
	friendship, err := s.get(ctx, friendshipID)
	if err != nil {
		return models.Friendship{}, err
	}
	if friendship.FriendID != actorID {
		return models.Friendship{}, ErrForbidden
	}
	if friendship.IsConfirmed {
		return models.Friendship{}, ErrNotPending
	}

	confirmed, err := s.store.Confirm(ctx, friendshipID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Accepted or withdrawn concurrently.
			return models.Friendship{}, ErrNotPending
		}
		return models.Friendship{}, fmt.Errorf("confirm friendship: %w", err)
	}

	s.counters.Invalidate(ctx, confirmed.InitiatorID, confirmed.FriendID)
	logging.FromContext(ctx).Info("friendship accepted", "friendshipId", confirmed.ID, "actorId", actorID)
	s.publish(ctx, events.FriendshipAccepted, actorID, confirmed)
	return confirmed, nil
}

// Reject deletes a pending request. Only the recipient may reject.
func (s *Service) Reject(ctx context.Context, friendshipID, actorID string) error {
	return s.dropPending(ctx, friendshipID, actorID, false, events.FriendshipRejected)
}

// Withdraw deletes a pending request. Only the initiator may withdraw.
func (s *Service) Withdraw(ctx context.Context, friendshipID, actorID string) error {
	return s.dropPending(ctx, friendshipID, actorID, true, events.FriendshipWithdrawn)
}

func (s *Service) dropPending(ctx context.Context, friendshipID, actorID string, byInitiator bool, topic string) error {
	friendship, err := s.get(ctx, friendshipID)
	if err != nil {
		return err
	}
	allowed := friendship.FriendID == actorID
	if byInitiator {
		allowed = friendship.InitiatorID == actorID
	}
	if !allowed {
		return ErrForbidden
	}
	if friendship.IsConfirmed {
		return ErrNotPending
	}

	removed, err := s.store.DeletePending(ctx, friendshipID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Accepted or removed since the read above.
			if _, getErr := s.store.Get(ctx, friendshipID); getErr == nil {
				return ErrNotPending
			}
			return ErrFriendshipNotFound
		}
		return fmt.Errorf("delete friendship: %w", err)
	}

	logging.FromContext(ctx).Info("friendship request dropped", "friendshipId", friendshipID, "actorId", actorID, "topic", topic)
	s.publish(ctx, topic, actorID, removed)
	return nil
}

// Remove ends a confirmed friendship between actor and other.
func (s *Service) Remove(ctx context.Context, actorID, otherID string) error {
	friendship, err := s.store.Between(ctx, actorID, otherID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFriends
		}
		return fmt.Errorf("lookup friendship: %w", err)
	}
	if !friendship.IsConfirmed {
		return ErrNotFriends
	}

	removed, err := s.store.Delete(ctx, friendship.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFriends
		}
		return fmt.Errorf("delete friendship: %w", err)
	}

	s.counters.Invalidate(ctx, actorID, otherID)
	logging.FromContext(ctx).Info("friendship removed", "friendshipId", removed.ID, "actorId", actorID, "otherId", otherID)
	s.publish(ctx, events.FriendshipRemoved, actorID, removed)
	return nil
}

// RemoveAll deletes every friendship of a member who is leaving the site.
func (s *Service) RemoveAll(ctx context.Context, userID string) error {
	removed, err := s.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete friendships for member: %w", err)
	}

	affected := []string{userID}
	for _, f := range removed {
		affected = append(affected, f.Other(userID))
	}
	s.counters.Invalidate(ctx, affected...)

	for _, f := range removed {
		if f.IsConfirmed {
			s.publish(ctx, events.FriendshipRemoved, userID, f)
		}
	}
	logging.FromContext(ctx).Info("removed all friendships", "userId", userID, "count", len(removed))
	return nil
}

// Status reports how viewer relates to other.
func (s *Service) Status(ctx context.Context, viewerID, otherID string) (Status, error) {
	if viewerID == otherID {
		return StatusNotFriends, nil
	}
	friendship, err := s.store.Between(ctx, viewerID, otherID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return StatusNotFriends, nil
		}
		return "", fmt.Errorf("lookup friendship: %w", err)
	}
	switch {
	case friendship.IsConfirmed:
		return StatusFriends, nil
	case friendship.InitiatorID == viewerID:
		return StatusPending, nil
	default:
		return StatusAwaitingResponse, nil
	}
}

// AreFriends reports whether two members share a confirmed friendship.
func (s *Service) AreFriends(ctx context.Context, a, b string) (bool, error) {
	status, err := s.Status(ctx, a, b)
	if err != nil {
		return false, err
	}
	return status == StatusFriends, nil
}

// FriendIDs lists the member's confirmed friends.
func (s *Service) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.store.FriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list friend ids: %w", err)
	}
	return ids, nil
}

// Friendships lists the member's confirmed friendships.
func (s *Service) Friendships(ctx context.Context, userID string) ([]models.Friendship, error) {
	return s.list(ctx, userID, models.FriendshipsConfirmed)
}

// IncomingRequests lists pending requests awaiting the member's response.
func (s *Service) IncomingRequests(ctx context.Context, userID string) ([]models.Friendship, error) {
	return s.list(ctx, userID, models.FriendshipsIncoming)
}

// OutgoingRequests lists pending requests the member sent.
func (s *Service) OutgoingRequests(ctx context.Context, userID string) ([]models.Friendship, error) {
	return s.list(ctx, userID, models.FriendshipsOutgoing)
}

func (s *Service) list(ctx context.Context, userID, scope string) ([]models.Friendship, error) {
	friendships, err := s.store.List(ctx, userID, scope)
	if err != nil {
		return nil, fmt.Errorf("list %s friendships: %w", scope, err)
	}
	return friendships, nil
}

// MutualFriendIDs returns the confirmed friends a and b share, sorted.
func (s *Service) MutualFriendIDs(ctx context.Context, a, b string) ([]string, error) {
	left, err := s.FriendIDs(ctx, a)
	if err != nil {
		return nil, err
	}
	right, err := s.FriendIDs(ctx, b)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(left))
	for _, id := range left {
		seen[id] = struct{}{}
	}
	mutual := []string{}
	for _, id := range right {
		if _, ok := seen[id]; ok {
			mutual = append(mutual, id)
		}
	}
	sort.Strings(mutual)
	return mutual, nil
}

// TotalFriendCount returns the member's friend counter, cached when possible.
func (s *Service) TotalFriendCount(ctx context.Context, userID string) (int, error) {
	count, stamp, ok := s.counters.FriendCount(ctx, userID)
	if ok {
		return count, nil
	}
	count, err := s.store.FriendCount(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("read friend count: %w", err)
	}
	s.counters.SetFriendCount(ctx, userID, count, stamp)
	return count, nil
}

// Recount rebuilds the member's counter from the friendship records.
func (s *Service) Recount(ctx context.Context, userID string) (int, error) {
	count, err := s.store.Recount(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("recount friends: %w", err)
	}
	s.counters.Invalidate(ctx, userID)
	return count, nil
}

func (s *Service) get(ctx context.Context, id string) (models.Friendship, error) {
	friendship, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Friendship{}, ErrFriendshipNotFound
		}
		return models.Friendship{}, fmt.Errorf("load friendship: %w", err)
	}
	return friendship, nil
}

func (s *Service) publish(ctx context.Context, topic, actorID string, f models.Friendship) {
	s.events.Publish(ctx, events.Event{
		Topic:   topic,
		ActorID: actorID,
		Payload: map[string]string{
			"friendshipId": f.ID,
			"initiatorId":  f.InitiatorID,
			"friendId":     f.FriendID,
		},
	})
}
