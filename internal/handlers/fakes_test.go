package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kinship/backend/internal/activity"
	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/friends"
	"github.com/kinship/backend/internal/members"
	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/profile"
	"github.com/kinship/backend/internal/repositories"
)

const (
	memberOne         = "5f0c8a2e-6b1d-4c3a-9e47-0d2b1a7c9e01"
	memberTwo         = "5f0c8a2e-6b1d-4c3a-9e47-0d2b1a7c9e02"
	memberThree       = "5f0c8a2e-6b1d-4c3a-9e47-0d2b1a7c9e03"
	memberFour        = "5f0c8a2e-6b1d-4c3a-9e47-0d2b1a7c9e04"
	memberFive        = "5f0c8a2e-6b1d-4c3a-9e47-0d2b1a7c9e05"
	memberNine        = "5f0c8a2e-6b1d-4c3a-9e47-0d2b1a7c9e09"
	ghostMember       = "5f0c8a2e-6b1d-4c3a-9e47-0d2b1a7c9eff"
	pendingFriendship = "a3e9b7c4-1d2f-4e5a-8b6c-7d8e9f0a1b2c"
)

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithUserID(r.Context(), userID))
}

type inMemoryUserStore struct {
	users map[string]models.User
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User)}
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return u, nil
}

type stubMembers struct {
	registered  members.Registration
	registerErr error

	directoryQuery members.DirectoryQuery
	page           members.DirectoryPage
	byUsername     map[string]members.Member

	avatarUser  string
	avatarBytes []byte
	avatarErr   error

	deleted []string
}

func (s *stubMembers) Register(_ context.Context, reg members.Registration) (models.User, error) {
	s.registered = reg
	if s.registerErr != nil {
		return models.User{}, s.registerErr
	}
	return models.User{ID: "user-new", Username: reg.Username, Email: reg.Email}, nil
}

func (s *stubMembers) Directory(_ context.Context, q members.DirectoryQuery) (members.DirectoryPage, error) {
	s.directoryQuery = q
	return s.page, nil
}

func (s *stubMembers) ByUsername(_ context.Context, username string) (members.Member, error) {
	m, ok := s.byUsername[username]
	if !ok {
		return members.Member{}, members.ErrMemberNotFound
	}
	return m, nil
}

func (s *stubMembers) UploadAvatar(_ context.Context, userID string, r io.Reader) (string, error) {
	s.avatarUser = userID
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.avatarBytes = data
	if s.avatarErr != nil {
		return "", s.avatarErr
	}
	return "https://cdn.example.com/avatars/" + userID + ".png", nil
}

func (s *stubMembers) Export(_ context.Context, userID string) (members.Export, error) {
	return members.Export{Email: userID + "@example.com"}, nil
}

func (s *stubMembers) Delete(_ context.Context, userID string) error {
	s.deleted = append(s.deleted, userID)
	return nil
}

type stubFriends struct {
	requested  [2]string
	forced     bool
	requestErr error
	recounted  string
	accepted   string
	rejected   string
	withdrawn  string
	actionErr  error
	removed    [2]string
	status     friends.Status
	incoming   []models.Friendship
	outgoing   []models.Friendship
	confirmed  []models.Friendship
	mutual     []string
	total      int
}

func (s *stubFriends) Request(_ context.Context, initiatorID, friendID string, forceAccept bool) (models.Friendship, error) {
	s.requested = [2]string{initiatorID, friendID}
	s.forced = forceAccept
	if s.requestErr != nil {
		return models.Friendship{}, s.requestErr
	}
	return models.Friendship{ID: "f-1", InitiatorID: initiatorID, FriendID: friendID, IsConfirmed: forceAccept}, nil
}

func (s *stubFriends) Accept(_ context.Context, id, actorID string) (models.Friendship, error) {
	s.accepted = id
	if s.actionErr != nil {
		return models.Friendship{}, s.actionErr
	}
	return models.Friendship{ID: id, FriendID: actorID, IsConfirmed: true}, nil
}

func (s *stubFriends) Reject(_ context.Context, id, _ string) error {
	s.rejected = id
	return s.actionErr
}

func (s *stubFriends) Withdraw(_ context.Context, id, _ string) error {
	s.withdrawn = id
	return s.actionErr
}

func (s *stubFriends) Remove(_ context.Context, actorID, otherID string) error {
	s.removed = [2]string{actorID, otherID}
	return s.actionErr
}

func (s *stubFriends) Status(context.Context, string, string) (friends.Status, error) {
	return s.status, nil
}

func (s *stubFriends) Friendships(context.Context, string) ([]models.Friendship, error) {
	return s.confirmed, nil
}

func (s *stubFriends) IncomingRequests(context.Context, string) ([]models.Friendship, error) {
	return s.incoming, nil
}

func (s *stubFriends) OutgoingRequests(context.Context, string) ([]models.Friendship, error) {
	return s.outgoing, nil
}

func (s *stubFriends) MutualFriendIDs(context.Context, string, string) ([]string, error) {
	return s.mutual, nil
}

func (s *stubFriends) TotalFriendCount(context.Context, string) (int, error) {
	return s.total, nil
}

func (s *stubFriends) Recount(_ context.Context, userID string) (int, error) {
	s.recounted = userID
	if s.actionErr != nil {
		return 0, s.actionErr
	}
	return s.total, nil
}

type stubProfiles struct {
	viewer, owner string
	values        []profile.Value
	setErr        error
	set           models.ProfileFieldData
}

func (s *stubProfiles) Schema(context.Context) ([]profile.Group, error) {
	return []profile.Group{{ProfileFieldGroup: models.ProfileFieldGroup{ID: 1, Name: "Base"}}}, nil
}

func (s *stubProfiles) CreateGroup(_ context.Context, _ string, g models.ProfileFieldGroup) (models.ProfileFieldGroup, error) {
	g.ID = 100
	return g, nil
}

func (s *stubProfiles) CreateField(_ context.Context, actorID string, f models.ProfileField) (models.ProfileField, error) {
	if actorID != "admin" {
		return models.ProfileField{}, profile.ErrForbidden
	}
	f.ID = 100
	return f, nil
}

func (s *stubProfiles) SetValue(_ context.Context, userID string, fieldID int64, raw, visibility string) (models.ProfileFieldData, error) {
	if s.setErr != nil {
		return models.ProfileFieldData{}, s.setErr
	}
	s.set = models.ProfileFieldData{UserID: userID, FieldID: fieldID, Value: raw, Visibility: visibility}
	return s.set, nil
}

func (s *stubProfiles) View(_ context.Context, viewerID, ownerID string) ([]profile.Value, error) {
	s.viewer, s.owner = viewerID, ownerID
	return s.values, nil
}

type stubActivity struct {
	filter    activity.FeedFilter
	feed      []models.Activity
	posted    string
	postErr   error
	deletedID int64
	deleteErr error
}

func (s *stubActivity) Feed(_ context.Context, filter activity.FeedFilter) ([]models.Activity, error) {
	s.filter = filter
	return s.feed, nil
}

func (s *stubActivity) Present(_ context.Context, activities []models.Activity, now time.Time) []activity.Entry {
	out := make([]activity.Entry, 0, len(activities))
	for _, a := range activities {
		out = append(out, activity.Entry{Activity: a, TimeSince: activity.TimeSince(a, now)})
	}
	return out
}

func (s *stubActivity) PostUpdate(_ context.Context, userID, content string) (models.Activity, error) {
	s.posted = content
	if s.postErr != nil {
		return models.Activity{}, s.postErr
	}
	return models.Activity{ID: 42, UserID: userID, Content: content, Type: activity.TypeActivityUpdate}, nil
}

func (s *stubActivity) Delete(_ context.Context, id int64, _ string) error {
	s.deletedID = id
	return s.deleteErr
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }
