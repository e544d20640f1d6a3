// Package activity records member actions into the activity stream and
// serves the sitewide, personal and friends feeds.
package activity

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/dustin/go-humanize"

	"github.com/kinship/backend/internal/events"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/repositories"
)

// Activity types.
const (
	TypeActivityUpdate    = "activity_update"
	TypeFriendshipCreated = "friendship_created"
	TypeNewMember         = "new_member"
	TypeUpdatedProfile    = "updated_profile"
	TypeNewAvatar         = "new_avatar"
)

// Components that record activity.
const (
	ComponentActivity = "activity"
	ComponentFriends  = "friends"
	ComponentMembers  = "members"
	ComponentProfile  = "profile"
)

// MaxUpdateLength bounds status updates, in runes.
const MaxUpdateLength = 10000

var (
	ErrThrottled      = errors.New("activity recorded too recently")
	ErrUnknownType    = errors.New("unknown activity type")
	ErrEmptyContent   = errors.New("activity content is empty")
	ErrContentTooLong = errors.New("activity content is too long")
	ErrNotFound       = errors.New("activity not found")
	ErrForbidden      = errors.New("member may not delete this activity")
)

// actionTemplates render the action line; %[1]s is the member, %[2]s the related member.
var actionTemplates = map[string]string{
	TypeActivityUpdate:    "%[1]s posted an update",
	TypeFriendshipCreated: "%[1]s and %[2]s are now friends",
	TypeNewMember:         "%[1]s became a registered member",
	TypeUpdatedProfile:    "%[1]s's profile was updated",
	TypeNewAvatar:         "%[1]s changed their profile photo",
}

// Store persists activities.
type Store interface {
	Create(ctx context.Context, activity models.Activity) error
	Get(ctx context.Context, id int64) (models.Activity, error)
	Latest(ctx context.Context, userID, activityType string) (models.Activity, error)
	List(ctx context.Context, query models.ActivityQuery) ([]models.Activity, error)
	Delete(ctx context.Context, id int64) error
	DeleteForItem(ctx context.Context, filter models.ActivityItemFilter) (int64, error)
}

// Members resolves display names and stamps last activity.
type Members interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	TouchLastActivity(ctx context.Context, userID string, at time.Time) error
}

// URLBuilder produces member and activity permalinks.
type URLBuilder interface {
	MemberURL(ctx context.Context, username string, path ...string) (string, error)
	ActivityURL(ctx context.Context, id int64) (string, error)
}

// FriendLister lists a member's confirmed friends.
type FriendLister interface {
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// Config tunes a Recorder.
type Config struct {
	// Throttles maps an activity type to the minimum gap between two
	// activities of that type by the same member.
	Throttles     map[string]time.Duration
	SnowflakeNode int64
}

// Recorder writes and reads the activity stream.
type Recorder struct {
	store     Store
	members   Members
	urls      URLBuilder
	friends   FriendLister
	events    events.Publisher
	node      *snowflake.Node
	throttles map[string]time.Duration
	now       func() time.Time
}

// NewRecorder constructs a Recorder. The snowflake node must be in 0..1023.
func NewRecorder(store Store, members Members, urls URLBuilder, friends FriendLister, publisher events.Publisher, cfg Config) (*Recorder, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	if publisher == nil {
		publisher = events.Discard
	}
	throttles := make(map[string]time.Duration, len(cfg.Throttles))
	for k, v := range cfg.Throttles {
		throttles[k] = v
	}
	return &Recorder{
		store:     store,
		members:   members,
		urls:      urls,
		friends:   friends,
		events:    publisher,
		node:      node,
		throttles: throttles,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// RecordArgs describes a new activity.
type RecordArgs struct {
	UserID          string
	Component       string
	Type            string
	Content         string
	PrimaryLink     string
	ItemID          string
	SecondaryItemID string
	HideSitewide    bool
	// RelatedUserID names the second member in two-party action lines.
	RelatedUserID string
}

// Record stores one activity, rendering its action line from the type's template.
func (r *Recorder) Record(ctx context.Context, args RecordArgs) (models.Activity, error) {
	template, ok := actionTemplates[args.Type]
	if !ok {
		return models.Activity{}, fmt.Errorf("%w: %q", ErrUnknownType, args.Type)
	}

	now := r.now()
	if window := r.throttles[args.Type]; window > 0 {
		latest, err := r.store.Latest(ctx, args.UserID, args.Type)
		switch {
		case err == nil:
			if now.Sub(latest.RecordedAt) < window {
				return models.Activity{}, ErrThrottled
			}
		case !errors.Is(err, repositories.ErrNotFound):
			return models.Activity{}, fmt.Errorf("load latest activity: %w", err)
		}
	}

	member, err := r.members.FindByID(ctx, args.UserID)
	if err != nil {
		return models.Activity{}, fmt.Errorf("lookup member %s: %w", args.UserID, err)
	}
	actor, memberURL := r.memberLink(ctx, member)

	related := ""
	if args.RelatedUserID != "" {
		other, err := r.members.FindByID(ctx, args.RelatedUserID)
		if err != nil {
			return models.Activity{}, fmt.Errorf("lookup member %s: %w", args.RelatedUserID, err)
		}
		related, _ = r.memberLink(ctx, other)
	}

	primaryLink := args.PrimaryLink
	if primaryLink == "" {
		primaryLink = memberURL
	}

	activity := models.Activity{
		ID:              r.node.Generate().Int64(),
		UserID:          args.UserID,
		Component:       args.Component,
		Type:            args.Type,
		Action:          fmt.Sprintf(template, actor, related),
		Content:         args.Content,
		PrimaryLink:     primaryLink,
		ItemID:          args.ItemID,
		SecondaryItemID: args.SecondaryItemID,
		HideSitewide:    args.HideSitewide,
		RecordedAt:      now,
	}
	if err := r.store.Create(ctx, activity); err != nil {
		return models.Activity{}, fmt.Errorf("store activity: %w", err)
	}

	if err := r.members.TouchLastActivity(ctx, args.UserID, now); err != nil {
		logging.FromContext(ctx).Warn("failed to stamp last activity", "userId", args.UserID, "error", err)
	}

	r.events.Publish(ctx, events.Event{
		Topic:   events.ActivityRecorded,
		ActorID: args.UserID,
		Payload: map[string]string{
			"activityId": strconv.FormatInt(activity.ID, 10),
			"type":       activity.Type,
			"component":  activity.Component,
		},
	})
	return activity, nil
}

// memberLink renders an escaped display name wrapped in a link to the member's
// profile, and returns the bare profile URL.
func (r *Recorder) memberLink(ctx context.Context, member models.User) (string, string) {
	name := html.EscapeString(member.Name())
	u, err := r.urls.MemberURL(ctx, member.Username)
	if err != nil {
		logging.FromContext(ctx).Warn("failed to build member url", "userId", member.ID, "error", err)
		return name, ""
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(u), name), u
}

// PostUpdate records a status update.
func (r *Recorder) PostUpdate(ctx context.Context, userID, content string) (models.Activity, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Activity{}, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxUpdateLength {
		return models.Activity{}, ErrContentTooLong
	}
	return r.Record(ctx, RecordArgs{
		UserID:    userID,
		Component: ComponentActivity,
		Type:      TypeActivityUpdate,
		Content:   content,
	})
}

// Delete removes an activity. Only its owner or an administrator may delete it.
func (r *Recorder) Delete(ctx context.Context, id int64, actorID string) error {
	activity, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load activity: %w", err)
	}
	if activity.UserID != actorID {
		actor, err := r.members.FindByID(ctx, actorID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("lookup member %s: %w", actorID, err)
		}
		if !actor.IsAdmin {
			return ErrForbidden
		}
	}
	if err := r.store.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete activity: %w", err)
	}
	logging.FromContext(ctx).Info("activity deleted", "activityId", id, "actorId", actorID)
	return nil
}

// DeleteForItem removes the activities attached to an item.
func (r *Recorder) DeleteForItem(ctx context.Context, filter models.ActivityItemFilter) (int64, error) {
	n, err := r.store.DeleteForItem(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete activities for item: %w", err)
	}
	return n, nil
}

// Permalink returns the public URL of a single activity.
func (r *Recorder) Permalink(ctx context.Context, activity models.Activity) (string, error) {
	return r.urls.ActivityURL(ctx, activity.ID)
}

// TimeSince renders how long ago the activity was recorded, e.g. "3 minutes ago".
func TimeSince(activity models.Activity, now time.Time) string {
	return humanize.RelTime(activity.RecordedAt, now, "ago", "from now")
}
