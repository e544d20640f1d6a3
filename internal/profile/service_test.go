package profile

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinship/backend/internal/events"
	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/repositories"
)

type memoryStore struct {
	mu     sync.Mutex
	groups map[int64]models.ProfileFieldGroup
	fields map[int64]models.ProfileField
	data   map[string]map[int64]models.ProfileFieldData
	nextID int64
}

func newMemoryStore() *memoryStore {
	s := &memoryStore{
		groups: map[int64]models.ProfileFieldGroup{1: {ID: 1, Name: "Base"}},
		fields: map[int64]models.ProfileField{
			PrimaryFieldID: {ID: PrimaryFieldID, GroupID: 1, Name: "Name", Type: TypeTextbox, Required: true, DefaultVisibility: VisibilityPublic},
		},
		data:   map[string]map[int64]models.ProfileFieldData{},
		nextID: 100,
	}
	return s
}

func (s *memoryStore) Groups(context.Context) ([]models.ProfileFieldGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProfileFieldGroup
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) CreateGroup(_ context.Context, g models.ProfileFieldGroup) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	g.ID = s.nextID
	s.groups[g.ID] = g
	return g.ID, nil
}

func (s *memoryStore) Fields(context.Context) ([]models.ProfileField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProfileField
	for _, f := range s.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) Field(_ context.Context, id int64) (models.ProfileField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[id]
	if !ok {
		return models.ProfileField{}, repositories.ErrNotFound
	}
	return f, nil
}

func (s *memoryStore) CreateField(_ context.Context, f models.ProfileField) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[f.GroupID]; !ok {
		return 0, repositories.ErrNotFound
	}
	s.nextID++
	f.ID = s.nextID
	s.fields[f.ID] = f
	return f.ID, nil
}

func (s *memoryStore) UpsertData(_ context.Context, d models.ProfileFieldData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[d.UserID] == nil {
		s.data[d.UserID] = map[int64]models.ProfileFieldData{}
	}
	s.data[d.UserID][d.FieldID] = d
	return nil
}

func (s *memoryStore) DataForUser(_ context.Context, userID string) ([]models.ProfileFieldData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProfileFieldData
	for _, d := range s.data[userID] {
		out = append(out, d)
	}
	return out, nil
}

func (s *memoryStore) DeleteDataForUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data[userID]))
	delete(s.data, userID)
	return n, nil
}

type memoryMembers struct {
	users map[string]models.User
}

func (m *memoryMembers) FindByID(_ context.Context, id string) (models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return u, nil
}

func (m *memoryMembers) SetDisplayName(_ context.Context, id, name string) error {
	u, ok := m.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	u.DisplayName = name
	m.users[id] = u
	return nil
}

type friendPairs map[[2]string]bool

func (f friendPairs) AreFriends(_ context.Context, a, b string) (bool, error) {
	return f[[2]string{a, b}] || f[[2]string{b, a}], nil
}

type topicRecorder struct{ topics []string }

func (r *topicRecorder) Publish(_ context.Context, evt events.Event) {
	r.topics = append(r.topics, evt.Topic)
}

func newTestService() (*Service, *memoryStore, *memoryMembers, *topicRecorder) {
	store := newMemoryStore()
	members := &memoryMembers{users: map[string]models.User{
		"owner":  {ID: "owner", Username: "owner"},
		"friend": {ID: "friend", Username: "friend"},
		"other":  {ID: "other", Username: "other"},
		"admin":  {ID: "admin", Username: "admin", IsAdmin: true},
	}}
	pub := &topicRecorder{}
	svc := NewService(store, members, friendPairs{{"owner", "friend"}: true}, pub)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return svc, store, members, pub
}

func mustField(t *testing.T, svc *Service, f models.ProfileField) models.ProfileField {
	t.Helper()
	created, err := svc.CreateField(context.Background(), "admin", f)
	require.NoError(t, err)
	return created
}

func TestCreateFieldRequiresAdminAndValidDefinition(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateField(ctx, "owner", models.ProfileField{GroupID: 1, Name: "Bio", Type: TypeTextarea})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.CreateField(ctx, "admin", models.ProfileField{GroupID: 1, Name: "Bio", Type: "wysiwyg"})
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = svc.CreateField(ctx, "admin", models.ProfileField{GroupID: 1, Name: "Color", Type: TypeSelectbox})
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = svc.CreateField(ctx, "admin", models.ProfileField{GroupID: 99, Name: "Bio", Type: TypeTextarea})
	assert.ErrorIs(t, err, ErrGroupNotFound)

	_, err = svc.CreateField(ctx, "admin", models.ProfileField{GroupID: 1, Name: "Bio", Type: TypeTextarea, DefaultVisibility: "everyone"})
	assert.ErrorIs(t, err, ErrInvalidVisibility)

	f := mustField(t, svc, models.ProfileField{GroupID: 1, Name: " Bio ", Type: TypeTextarea, Options: []string{"ignored"}})
	assert.Equal(t, "Bio", f.Name)
	assert.Equal(t, VisibilityPublic, f.DefaultVisibility)
	assert.Nil(t, f.Options)
}

func TestSchemaGroupsFields(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "admin", models.ProfileFieldGroup{Name: "Work"})
	require.NoError(t, err)
	mustField(t, svc, models.ProfileField{GroupID: group.ID, Name: "Employer", Type: TypeTextbox})

	_, err = svc.CreateGroup(ctx, "owner", models.ProfileFieldGroup{Name: "Nope"})
	assert.ErrorIs(t, err, ErrForbidden)

	schema, err := svc.Schema(ctx)
	require.NoError(t, err)
	require.Len(t, schema, 2)
	assert.Equal(t, "Base", schema[0].Name)
	require.Len(t, schema[0].Fields, 1)
	assert.Equal(t, "Work", schema[1].Name)
	require.Len(t, schema[1].Fields, 1)
	assert.Equal(t, "Employer", schema[1].Fields[0].Name)
}

func TestSetValueValidatesByType(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	number := mustField(t, svc, models.ProfileField{GroupID: 1, Name: "Age", Type: TypeNumber})
	site := mustField(t, svc, models.ProfileField{GroupID: 1, Name: "Site", Type: TypeURL})
	born := mustField(t, svc, models.ProfileField{GroupID: 1, Name: "Born", Type: TypeDatebox})
	color := mustField(t, svc, models.ProfileField{GroupID: 1, Name: "Color", Type: TypeRadio, Options: []string{"red", "blue"}})
	langs := mustField(t, svc, models.ProfileField{GroupID: 1, Name: "Languages", Type: TypeCheckbox, Options: []string{"go", "sql", "c"}})

	cases := []struct {
		name    string
		field   int64
		raw     string
		want    string
		wantErr error
	}{
		{"number", number.ID, " 42 ", "42", nil},
		{"notNumber", number.ID, "forty", "", ErrInvalidValue},
		{"notANumber", number.ID, "NaN", "", ErrInvalidValue},
		{"infinity", number.ID, "-Inf", "", ErrInvalidValue},
		{"overflow", number.ID, "1e400", "", ErrInvalidValue},
		{"url", site.ID, "https://example.com/me", "https://example.com/me", nil},
		{"badScheme", site.ID, "javascript:alert(1)", "", ErrInvalidValue},
		{"date", born.ID, "1990-02-03", "1990-02-03", nil},
		{"badDate", born.ID, "03/02/1990", "", ErrInvalidValue},
		{"radio", color.ID, "blue", "blue", nil},
		{"radioUnknown", color.ID, "green", "", ErrInvalidValue},
		{"checkboxOrdered", langs.ID, `["sql","go","sql"]`, `["go","sql"]`, nil},
		{"checkboxUnknown", langs.ID, `["go","rust"]`, "", ErrInvalidValue},
		{"checkboxNotJSON", langs.ID, "go", "", ErrInvalidValue},
		{"checkboxEmpty", langs.ID, "[]", "", nil},
		{"requiredName", PrimaryFieldID, "  ", "", ErrFieldRequired},
		{"unknownField", 12345, "x", "", ErrFieldNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := svc.SetValue(ctx, "owner", tc.field, tc.raw, "")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, data.Value)
		})
	}
}

func TestSetValueVisibilityAndMirroring(t *testing.T) {
	svc, _, members, pub := newTestService()
	ctx := context.Background()

	_, err := svc.SetValue(ctx, "owner", PrimaryFieldID, "Owner Name", VisibilityFriends)
	assert.ErrorIs(t, err, ErrVisibilityLocked)

	data, err := svc.SetValue(ctx, "owner", PrimaryFieldID, "Owner Name", "")
	require.NoError(t, err)
	assert.Equal(t, VisibilityPublic, data.Visibility)
	assert.Equal(t, "Owner Name", members.users["owner"].DisplayName)
	assert.Equal(t, []string{events.ProfileUpdated}, pub.topics)

	bio := mustField(t, svc, models.ProfileField{GroupID: 1, Name: "Bio", Type: TypeTextarea, AllowCustomVisibility: true})
	_, err = svc.SetValue(ctx, "owner", bio.ID, "hi", "everyone")
	assert.ErrorIs(t, err, ErrInvalidVisibility)
	data, err = svc.SetValue(ctx, "owner", bio.ID, "hi", VisibilityAdminsOnly)
	require.NoError(t, err)
	assert.Equal(t, VisibilityAdminsOnly, data.Visibility)
}

func TestViewFiltersByVisibility(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	levels := []string{VisibilityPublic, VisibilityLoggedIn, VisibilityFriends, VisibilityAdminsOnly}
	for _, level := range levels {
		f := mustField(t, svc, models.ProfileField{GroupID: 1, Name: level, Type: TypeTextbox, AllowCustomVisibility: true})
		_, err := svc.SetValue(ctx, "owner", f.ID, "value-"+level, level)
		require.NoError(t, err)
	}

	cases := []struct {
		viewer string
		want   []string
	}{
		{"", []string{VisibilityPublic}},
		{"other", []string{VisibilityPublic, VisibilityLoggedIn}},
		{"friend", []string{VisibilityPublic, VisibilityLoggedIn, VisibilityFriends}},
		{"admin", levels},
		{"owner", levels},
	}
	for _, tc := range cases {
		t.Run("viewer="+tc.viewer, func(t *testing.T) {
			values, err := svc.View(ctx, tc.viewer, "owner")
			require.NoError(t, err)
			var got []string
			for _, v := range values {
				got = append(got, v.Visibility)
			}
			assert.Equal(t, tc.want, got)
		})
	}

	require.NoError(t, svc.DeleteForUser(ctx, "owner"))
	values, err := svc.View(ctx, "owner", "owner")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestInitializeStoresNameSilently(t *testing.T) {
	svc, store, _, pub := newTestService()
	ctx := context.Background()

	assert.ErrorIs(t, svc.Initialize(ctx, "owner", " "), ErrFieldRequired)
	require.NoError(t, svc.Initialize(ctx, "owner", " Owner "))
	assert.Equal(t, "Owner", store.data["owner"][PrimaryFieldID].Value)
	assert.Empty(t, pub.topics)
}
