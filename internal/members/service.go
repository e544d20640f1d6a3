// Package members covers member accounts: registration, the member
// directory, avatars, personal-data export and account removal.
package members

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kinship/backend/internal/events"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/profile"
	"github.com/kinship/backend/internal/repositories"
	"github.com/kinship/backend/internal/rewrites"
)

// MaxAvatarBytes caps avatar uploads.
const MaxAvatarBytes = 5 << 20

const (
	minPasswordLength = 8
	defaultPerPage    = 20
	maxPerPage        = 100
	maxPage           = 100000
)

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidUsername    = errors.New("username must contain letters or digits")
	ErrAccountExists      = errors.New("account already exists")
	ErrMemberNotFound     = errors.New("member not found")
	ErrAvatarTooLarge     = errors.New("avatar exceeds 5 MiB")
	ErrUnsupportedAvatar  = errors.New("avatar must be a JPEG, PNG or GIF image")
	ErrAvatarsUnavailable = errors.New("avatar storage is not configured")
	ErrInvalidOrder       = errors.New("unknown directory order")
)

var avatarExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
}

// Users persists member accounts.
type Users interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	List(ctx context.Context, query models.MemberQuery) ([]models.User, int, error)
	SetAvatar(ctx context.Context, userID, avatarURL string) error
	Delete(ctx context.Context, userID string) error
}

// Profiles reads, seeds and removes extended profile data.
type Profiles interface {
	Initialize(ctx context.Context, userID, name string) error
	View(ctx context.Context, viewerID, ownerID string) ([]profile.Value, error)
	DeleteForUser(ctx context.Context, userID string) error
}

// FriendGraph exposes the friendships needed for export and account removal.
type FriendGraph interface {
	Friendships(ctx context.Context, userID string) ([]models.Friendship, error)
	IncomingRequests(ctx context.Context, userID string) ([]models.Friendship, error)
	OutgoingRequests(ctx context.Context, userID string) ([]models.Friendship, error)
	RemoveAll(ctx context.Context, userID string) error
}

// ActivityLister reads raw activity rows.
type ActivityLister interface {
	List(ctx context.Context, query models.ActivityQuery) ([]models.Activity, error)
}

// URLBuilder produces member permalinks.
type URLBuilder interface {
	MemberURL(ctx context.Context, username string, path ...string) (string, error)
}

// ObjectStore saves uploaded media and returns its public location.
type ObjectStore interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// Service implements member operations.
type Service struct {
	users      Users
	profiles   Profiles
	friends    FriendGraph
	activities ActivityLister
	urls       URLBuilder
	objects    ObjectStore
	events     events.Publisher

	now   func() time.Time
	newID func() string
}

// Deps groups the Service collaborators. Objects may be nil when avatar
// storage is not configured.
type Deps struct {
	Users      Users
	Profiles   Profiles
	Friends    FriendGraph
	Activities ActivityLister
	URLs       URLBuilder
	Objects    ObjectStore
	Events     events.Publisher
}

// NewService wires a members Service.
func NewService(deps Deps) *Service {
	publisher := deps.Events
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{
		users:      deps.Users,
		profiles:   deps.Profiles,
		friends:    deps.Friends,
		activities: deps.Activities,
		urls:       deps.URLs,
		objects:    deps.Objects,
		events:     publisher,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// Registration is the input to Register.
type Registration struct {
	Email       string
	Password    string
	Username    string
	DisplayName string
}

// Register creates an account. The username is reduced to a URL-safe slug
// and the display name defaults to the username.
func (s *Service) Register(ctx context.Context, reg Registration) (models.User, error) {
	email := strings.TrimSpace(strings.ToLower(reg.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return models.User{}, ErrInvalidEmail
	}
	if len(reg.Password) < minPasswordLength {
		return models.User{}, ErrWeakPassword
	}
	username := rewrites.Sanitize(reg.Username)
	if username == "" {
		return models.User{}, ErrInvalidUsername
	}
	displayName := strings.TrimSpace(reg.DisplayName)
	if displayName == "" {
		displayName = username
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return models.User{}, ErrAccountExists
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.User{}, fmt.Errorf("lookup existing account: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := models.User{
		ID:          s.newID(),
		Email:       email,
		Password:    string(hashed),
		Username:    username,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.User{}, ErrAccountExists
		}
		return models.User{}, fmt.Errorf("create account: %w", err)
	}

	if err := s.profiles.Initialize(ctx, user.ID, displayName); err != nil {
		logging.FromContext(ctx).Warn("failed to seed profile name", "userId", user.ID, "error", err)
	}

	logging.FromContext(ctx).Info("member registered", "userId", user.ID, "username", username)
	s.events.Publish(ctx, events.Event{
		Topic:   events.MemberRegistered,
		ActorID: user.ID,
		Payload: map[string]string{"username": username},
	})
	return user, nil
}

// Member is a directory entry.
type Member struct {
	models.User
	URL string `json:"url"`
}

// DirectoryQuery selects one page of the member directory. Pages start at 1.
type DirectoryQuery struct {
	Order   string
	Search  string
	Page    int
	PerPage int
}

// DirectoryPage is one page of members.
type DirectoryPage struct {
	Members []Member `json:"members"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	PerPage int      `json:"perPage"`
}

// Directory lists members ordered by recent activity, join date or name.
func (s *Service) Directory(ctx context.Context, q DirectoryQuery) (DirectoryPage, error) {
	switch q.Order {
	case "":
		q.Order = models.MemberOrderActive
	case models.MemberOrderActive, models.MemberOrderNewest, models.MemberOrderAlphabetical:
	default:
		return DirectoryPage{}, fmt.Errorf("%w %q", ErrInvalidOrder, q.Order)
	}
	if q.PerPage <= 0 {
		q.PerPage = defaultPerPage
	}
	if q.PerPage > maxPerPage {
		q.PerPage = maxPerPage
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > maxPage {
		q.Page = maxPage
	}

	users, total, err := s.users.List(ctx, models.MemberQuery{
		Order:  q.Order,
		Search: q.Search,
		Limit:  q.PerPage,
		Offset: (q.Page - 1) * q.PerPage,
	})
	if err != nil {
		return DirectoryPage{}, fmt.Errorf("list members: %w", err)
	}

	page := DirectoryPage{Members: make([]Member, 0, len(users)), Total: total, Page: q.Page, PerPage: q.PerPage}
	for _, u := range users {
		page.Members = append(page.Members, s.member(ctx, u))
	}
	return page, nil
}

// ByUsername looks up a single member.
func (s *Service) ByUsername(ctx context.Context, username string) (Member, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Member{}, ErrMemberNotFound
		}
		return Member{}, fmt.Errorf("lookup member: %w", err)
	}
	return s.member(ctx, user), nil
}

func (s *Service) member(ctx context.Context, u models.User) Member {
	link, err := s.urls.MemberURL(ctx, u.Username)
	if err != nil {
		logging.FromContext(ctx).Warn("failed to build member url", "userId", u.ID, "error", err)
	}
	return Member{User: u, URL: link}
}

// UploadAvatar stores a new avatar image for the member and returns its URL.
func (s *Service) UploadAvatar(ctx context.Context, userID string, r io.Reader) (string, error) {
	if s.objects == nil {
		return "", ErrAvatarsUnavailable
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxAvatarBytes+1))
	if err != nil {
		return "", fmt.Errorf("read avatar: %w", err)
	}
	if len(data) > MaxAvatarBytes {
		return "", ErrAvatarTooLarge
	}
	contentType := http.DetectContentType(data)
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return "", ErrUnsupportedAvatar
	}

	key := fmt.Sprintf("avatars/%s/%s.%s", userID, s.newID(), ext)
	location, err := s.objects.Save(ctx, key, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	if err := s.users.SetAvatar(ctx, userID, location); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", ErrMemberNotFound
		}
		return "", fmt.Errorf("record avatar: %w", err)
	}

	logging.FromContext(ctx).Info("avatar updated", "userId", userID, "bytes", len(data), "contentType", contentType)
	s.events.Publish(ctx, events.Event{
		Topic:   events.MemberAvatarChanged,
		ActorID: userID,
		Payload: map[string]string{"avatarUrl": location},
	})
	return location, nil
}

// Export is a member's personal data.
type Export struct {
	Member           Member              `json:"member"`
	Email            string              `json:"email"`
	Profile          []profile.Value     `json:"profile"`
	Friendships      []models.Friendship `json:"friendships"`
	IncomingRequests []models.Friendship `json:"incomingRequests"`
	OutgoingRequests []models.Friendship `json:"outgoingRequests"`
	Activities       []models.Activity   `json:"activities"`
	GeneratedAt      time.Time           `json:"generatedAt"`
}

// Export gathers everything stored about a member.
func (s *Service) Export(ctx context.Context, userID string) (Export, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Export{}, ErrMemberNotFound
		}
		return Export{}, fmt.Errorf("lookup member: %w", err)
	}

	out := Export{Member: s.member(ctx, user), Email: user.Email, GeneratedAt: s.now()}
	if out.Profile, err = s.profiles.View(ctx, userID, userID); err != nil {
		return Export{}, fmt.Errorf("export profile: %w", err)
	}
	if out.Friendships, err = s.friends.Friendships(ctx, userID); err != nil {
		return Export{}, fmt.Errorf("export friendships: %w", err)
	}
	if out.IncomingRequests, err = s.friends.IncomingRequests(ctx, userID); err != nil {
		return Export{}, fmt.Errorf("export incoming requests: %w", err)
	}
	if out.OutgoingRequests, err = s.friends.OutgoingRequests(ctx, userID); err != nil {
		return Export{}, fmt.Errorf("export outgoing requests: %w", err)
	}
	if out.Activities, err = s.activities.List(ctx, models.ActivityQuery{UserIDs: []string{userID}}); err != nil {
		return Export{}, fmt.Errorf("export activities: %w", err)
	}
	return out, nil
}

// Delete removes a member's account. Friendships are dissolved first so the
// friends' counters drop, then profile values, then the account row with
// whatever still cascades from it.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.friends.RemoveAll(ctx, userID); err != nil {
		return err
	}
	if err := s.profiles.DeleteForUser(ctx, userID); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("delete member: %w", err)
	}
	logging.FromContext(ctx).Info("member deleted", "userId", userID)
	return nil
}
