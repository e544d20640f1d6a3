package handlers

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/kinship/backend/internal/activity"
	"github.com/kinship/backend/internal/friends"
	"github.com/kinship/backend/internal/members"
	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/profile"
	"github.com/kinship/backend/internal/rewrites"
)

// UserStore captures the account lookups required by the handlers.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// SessionManager issues, refreshes and revokes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, userID, refreshToken string) error
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// MemberService covers account registration and the member directory.
type MemberService interface {
	Register(ctx context.Context, reg members.Registration) (models.User, error)
	Directory(ctx context.Context, q members.DirectoryQuery) (members.DirectoryPage, error)
	ByUsername(ctx context.Context, username string) (members.Member, error)
	UploadAvatar(ctx context.Context, userID string, r io.Reader) (string, error)
	Export(ctx context.Context, userID string) (members.Export, error)
	Delete(ctx context.Context, userID string) error
}

// FriendService captures the friendship graph operations.
type FriendService interface {
	Request(ctx context.Context, initiatorID, friendID string, forceAccept bool) (models.Friendship, error)
	Accept(ctx context.Context, friendshipID, actorID string) (models.Friendship, error)
	Reject(ctx context.Context, friendshipID, actorID string) error
	Withdraw(ctx context.Context, friendshipID, actorID string) error
	Remove(ctx context.Context, actorID, otherID string) error
	Status(ctx context.Context, viewerID, otherID string) (friends.Status, error)
	Friendships(ctx context.Context, userID string) ([]models.Friendship, error)
	IncomingRequests(ctx context.Context, userID string) ([]models.Friendship, error)
	OutgoingRequests(ctx context.Context, userID string) ([]models.Friendship, error)
	MutualFriendIDs(ctx context.Context, a, b string) ([]string, error)
	TotalFriendCount(ctx context.Context, userID string) (int, error)
	Recount(ctx context.Context, userID string) (int, error)
}

// ProfileService captures extended profile operations.
type ProfileService interface {
	Schema(ctx context.Context) ([]profile.Group, error)
	CreateGroup(ctx context.Context, actorID string, group models.ProfileFieldGroup) (models.ProfileFieldGroup, error)
	CreateField(ctx context.Context, actorID string, field models.ProfileField) (models.ProfileField, error)
	SetValue(ctx context.Context, userID string, fieldID int64, raw, visibility string) (models.ProfileFieldData, error)
	View(ctx context.Context, viewerID, ownerID string) ([]profile.Value, error)
}

// ActivityService reads and writes the activity stream.
type ActivityService interface {
	Feed(ctx context.Context, filter activity.FeedFilter) ([]models.Activity, error)
	Present(ctx context.Context, activities []models.Activity, now time.Time) []activity.Entry
	PostUpdate(ctx context.Context, userID, content string) (models.Activity, error)
	Delete(ctx context.Context, id int64, actorID string) error
}

// URLRouter builds and resolves community URLs.
type URLRouter interface {
	URL(ctx context.Context, args rewrites.URLArgs) (string, error)
	Resolve(ctx context.Context, u *url.URL) (rewrites.URLArgs, error)
	Components() []rewrites.Component
	Pretty() bool
}

// RewriteSettings loads and saves slug overrides and directory pages.
type RewriteSettings interface {
	Settings(ctx context.Context) (rewrites.Settings, error)
	Apply(ctx context.Context, u rewrites.Update) (rewrites.Settings, error)
}
