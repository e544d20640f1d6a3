// Package profile manages extended member profiles: admin-defined field
// groups and fields, and per-member values with visibility levels.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kinship/backend/internal/events"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/repositories"
)

var (
	ErrInvalidValue      = errors.New("invalid profile value")
	ErrFieldRequired     = errors.New("profile field is required")
	ErrFieldNotFound     = errors.New("profile field not found")
	ErrGroupNotFound     = errors.New("profile field group not found")
	ErrInvalidField      = errors.New("invalid profile field definition")
	ErrInvalidVisibility = errors.New("invalid visibility level")
	ErrVisibilityLocked  = errors.New("field visibility cannot be changed")
	ErrForbidden         = errors.New("administrator access required")
)

// Store persists groups, fields and values.
type Store interface {
	Groups(ctx context.Context) ([]models.ProfileFieldGroup, error)
	CreateGroup(ctx context.Context, group models.ProfileFieldGroup) (int64, error)
	Fields(ctx context.Context) ([]models.ProfileField, error)
	Field(ctx context.Context, id int64) (models.ProfileField, error)
	CreateField(ctx context.Context, field models.ProfileField) (int64, error)
	UpsertData(ctx context.Context, data models.ProfileFieldData) error
	DataForUser(ctx context.Context, userID string) ([]models.ProfileFieldData, error)
	DeleteDataForUser(ctx context.Context, userID string) (int64, error)
}

// Members looks up members and mirrors the primary name field.
type Members interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	SetDisplayName(ctx context.Context, userID, name string) error
}

// FriendChecker reports confirmed friendships.
type FriendChecker interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// Group is a field group with its fields, in display order.
type Group struct {
	models.ProfileFieldGroup
	Fields []models.ProfileField `json:"fields"`
}

// Value is a field value as shown to a viewer.
type Value struct {
	FieldID    int64     `json:"fieldId"`
	GroupID    int64     `json:"groupId"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Value      string    `json:"value"`
	Visibility string    `json:"visibility"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Service implements extended profile operations.
type Service struct {
	store   Store
	members Members
	friends FriendChecker
	events  events.Publisher
	now     func() time.Time
}

// NewService wires a profile Service.
func NewService(store Store, members Members, friends FriendChecker, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{
		store:   store,
		members: members,
		friends: friends,
		events:  publisher,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Schema returns every group with its fields.
func (s *Service) Schema(ctx context.Context) ([]Group, error) {
	groups, err := s.store.Groups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profile groups: %w", err)
	}
	fields, err := s.store.Fields(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profile fields: %w", err)
	}

	byGroup := make(map[int64][]models.ProfileField)
	for _, f := range fields {
		byGroup[f.GroupID] = append(byGroup[f.GroupID], f)
	}
	schema := make([]Group, 0, len(groups))
	for _, g := range groups {
		groupFields := byGroup[g.ID]
		if groupFields == nil {
			groupFields = []models.ProfileField{}
		}
		schema = append(schema, Group{ProfileFieldGroup: g, Fields: groupFields})
	}
	return schema, nil
}

// CreateGroup adds a field group. Only administrators may change the schema.
func (s *Service) CreateGroup(ctx context.Context, actorID string, group models.ProfileFieldGroup) (models.ProfileFieldGroup, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return models.ProfileFieldGroup{}, err
	}
	group.Name = strings.TrimSpace(group.Name)
	if group.Name == "" {
		return models.ProfileFieldGroup{}, fmt.Errorf("%w: group name is required", ErrInvalidField)
	}
	id, err := s.store.CreateGroup(ctx, group)
	if err != nil {
		return models.ProfileFieldGroup{}, fmt.Errorf("create profile group: %w", err)
	}
	group.ID = id
	return group, nil
}

// CreateField adds a field to an existing group.
func (s *Service) CreateField(ctx context.Context, actorID string, field models.ProfileField) (models.ProfileField, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return models.ProfileField{}, err
	}

	field.Name = strings.TrimSpace(field.Name)
	if field.Name == "" {
		return models.ProfileField{}, fmt.Errorf("%w: field name is required", ErrInvalidField)
	}
	if !fieldTypes[field.Type] {
		return models.ProfileField{}, fmt.Errorf("%w: unknown type %q", ErrInvalidField, field.Type)
	}
	if field.DefaultVisibility == "" {
		field.DefaultVisibility = VisibilityPublic
	}
	if !visibilities[field.DefaultVisibility] {
		return models.ProfileField{}, ErrInvalidVisibility
	}
	if hasOptions(field.Type) {
		field.Options = dedupe(field.Options)
		if len(field.Options) == 0 {
			return models.ProfileField{}, fmt.Errorf("%w: %s fields need options", ErrInvalidField, field.Type)
		}
	} else {
		field.Options = nil
	}

	id, err := s.store.CreateField(ctx, field)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.ProfileField{}, ErrGroupNotFound
		}
		return models.ProfileField{}, fmt.Errorf("create profile field: %w", err)
	}
	field.ID = id
	return field, nil
}

// SetValue validates and stores a member's value for a field. An empty
// visibility keeps the field default; other levels need AllowCustomVisibility.
func (s *Service) SetValue(ctx context.Context, userID string, fieldID int64, raw, visibility string) (models.ProfileFieldData, error) {
	field, err := s.store.Field(ctx, fieldID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.ProfileFieldData{}, ErrFieldNotFound
		}
		return models.ProfileFieldData{}, fmt.Errorf("load profile field: %w", err)
	}

	value, err := normalize(field, raw)
	if err != nil {
		return models.ProfileFieldData{}, err
	}
	if value == "" && field.Required {
		return models.ProfileFieldData{}, fmt.Errorf("%w: %s", ErrFieldRequired, field.Name)
	}

	if visibility == "" {
		visibility = field.DefaultVisibility
	}
	if !visibilities[visibility] {
		return models.ProfileFieldData{}, ErrInvalidVisibility
	}
	if visibility != field.DefaultVisibility && !field.AllowCustomVisibility {
		return models.ProfileFieldData{}, ErrVisibilityLocked
	}

	data := models.ProfileFieldData{
		FieldID:    field.ID,
		UserID:     userID,
		Value:      value,
		Visibility: visibility,
		UpdatedAt:  s.now(),
	}
	if err := s.store.UpsertData(ctx, data); err != nil {
		return models.ProfileFieldData{}, fmt.Errorf("store profile value: %w", err)
	}

	if field.ID == PrimaryFieldID {
		if err := s.members.SetDisplayName(ctx, userID, value); err != nil {
			return models.ProfileFieldData{}, fmt.Errorf("mirror display name: %w", err)
		}
	}

	logging.FromContext(ctx).Info("profile field updated", "userId", userID, "fieldId", field.ID)
	s.events.Publish(ctx, events.Event{
		Topic:   events.ProfileUpdated,
		ActorID: userID,
		Payload: map[string]string{"fieldId": strconv.FormatInt(field.ID, 10)},
	})
	return data, nil
}

// Initialize stores a new member's name in the primary field without
// announcing a profile update.
func (s *Service) Initialize(ctx context.Context, userID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name", ErrFieldRequired)
	}
	err := s.store.UpsertData(ctx, models.ProfileFieldData{
		FieldID:    PrimaryFieldID,
		UserID:     userID,
		Value:      name,
		Visibility: VisibilityPublic,
		UpdatedAt:  s.now(),
	})
	if err != nil {
		return fmt.Errorf("store primary name: %w", err)
	}
	return nil
}

// View returns the owner's values the viewer may see. An empty viewerID is
// an anonymous visitor. Owners and administrators see everything.
func (s *Service) View(ctx context.Context, viewerID, ownerID string) ([]Value, error) {
	fields, err := s.store.Fields(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profile fields: %w", err)
	}
	data, err := s.store.DataForUser(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load profile values: %w", err)
	}

	stored := make(map[int64]models.ProfileFieldData, len(data))
	for _, d := range data {
		stored[d.FieldID] = d
	}

	access, err := s.accessFor(ctx, viewerID, ownerID)
	if err != nil {
		return nil, err
	}

	values := []Value{}
	for _, f := range fields {
		d, ok := stored[f.ID]
		if !ok || d.Value == "" {
			continue
		}
		if !access.allows(d.Visibility) {
			continue
		}
		values = append(values, Value{
			FieldID:    f.ID,
			GroupID:    f.GroupID,
			Name:       f.Name,
			Type:       f.Type,
			Value:      d.Value,
			Visibility: d.Visibility,
			UpdatedAt:  d.UpdatedAt,
		})
	}
	return values, nil
}

// DeleteForUser removes all of a member's profile values.
func (s *Service) DeleteForUser(ctx context.Context, userID string) error {
	n, err := s.store.DeleteDataForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete profile values: %w", err)
	}
	logging.FromContext(ctx).Info("profile values deleted", "userId", userID, "count", n)
	return nil
}

type viewerAccess struct {
	all      bool
	loggedIn bool
	friend   bool
}

func (a viewerAccess) allows(visibility string) bool {
	switch {
	case a.all:
		return true
	case visibility == VisibilityPublic:
		return true
	case visibility == VisibilityLoggedIn:
		return a.loggedIn
	case visibility == VisibilityFriends:
		return a.friend
	default:
		return false
	}
}

func (s *Service) accessFor(ctx context.Context, viewerID, ownerID string) (viewerAccess, error) {
	if viewerID == "" {
		return viewerAccess{}, nil
	}
	if viewerID == ownerID {
		return viewerAccess{all: true}, nil
	}
	viewer, err := s.members.FindByID(ctx, viewerID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return viewerAccess{}, fmt.Errorf("lookup viewer: %w", err)
	}
	if viewer.IsAdmin {
		return viewerAccess{all: true}, nil
	}
	friend, err := s.friends.AreFriends(ctx, viewerID, ownerID)
	if err != nil {
		return viewerAccess{}, fmt.Errorf("check friendship: %w", err)
	}
	return viewerAccess{loggedIn: true, friend: friend}, nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID string) error {
	actor, err := s.members.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("lookup member: %w", err)
	}
	if !actor.IsAdmin {
		return ErrForbidden
	}
	return nil
}
