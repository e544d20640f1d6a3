package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	user := models.User{
		ID:        uuid.NewString(),
		Email:     "alice@example.com",
		Password:  "secret-hash",
		Username:  "alice",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dupEmail := models.User{ID: uuid.NewString(), Email: user.Email, Password: "x", Username: "alice2", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, dupEmail); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate email, got %v", err)
	}
	dupName := models.User{ID: uuid.NewString(), Email: "other@example.com", Password: "x", Username: user.Username, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, dupName); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate username, got %v", err)
	}

	fetched, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if fetched.ID != user.ID || fetched.Username != user.Username || fetched.Password != user.Password {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}
	if fetched.TotalFriendCount != 0 || fetched.LastActivity != nil {
		t.Fatalf("expected fresh counters, got %+v", fetched)
	}

	if _, err := repo.FindByUsername(ctx, "alice"); err != nil {
		t.Fatalf("find by username: %v", err)
	}
	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	updated := user
	updated.Email = "updated@example.com"
	updated.Password = "rotated-hash"
	updated.UpdatedAt = time.Now().UTC().Add(time.Minute)
	if err := repo.Update(ctx, updated); err != nil {
		t.Fatalf("update user: %v", err)
	}

	fetched, err = repo.FindByEmail(ctx, updated.Email)
	if err != nil {
		t.Fatalf("find by updated email: %v", err)
	}
	if fetched.Email != updated.Email || fetched.Password != updated.Password {
		t.Fatalf("expected updated fields to persist, got %+v", fetched)
	}

	if err := repo.SetDisplayName(ctx, user.ID, "Alice Liddell"); err != nil {
		t.Fatalf("set display name: %v", err)
	}
	if err := repo.SetAvatar(ctx, user.ID, "https://cdn.example.com/avatars/alice.png"); err != nil {
		t.Fatalf("set avatar: %v", err)
	}
	seen := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.TouchLastActivity(ctx, user.ID, seen); err != nil {
		t.Fatalf("touch last activity: %v", err)
	}

	fetched, err = repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if fetched.DisplayName != "Alice Liddell" || fetched.AvatarURL == "" {
		t.Fatalf("expected profile columns to persist, got %+v", fetched)
	}
	if fetched.LastActivity == nil || !timesClose(*fetched.LastActivity, seen, time.Millisecond) {
		t.Fatalf("expected last activity %v, got %v", seen, fetched.LastActivity)
	}

	missing := models.User{ID: uuid.NewString(), Email: "missing@example.com", Password: "hash", UpdatedAt: time.Now().UTC()}
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing user, got %v", err)
	}
	if err := repo.SetAvatar(ctx, missing.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound setting avatar of missing user, got %v", err)
	}

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := repo.Delete(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestPostgresUserRepository_List(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	base := time.Now().UTC().Add(-time.Hour)
	for i, name := range []string{"carol", "alice", "bob"} {
		user := models.User{
			ID:        uuid.NewString(),
			Email:     name + "@example.com",
			Password:  "hash",
			Username:  name,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base,
		}
		if err := repo.Create(ctx, user); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if name == "bob" {
			if err := repo.TouchLastActivity(ctx, user.ID, time.Now().UTC()); err != nil {
				t.Fatalf("touch: %v", err)
			}
		}
	}

	usernames := func(users []models.User) []string {
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, u.Username)
		}
		return out
	}

	users, total, err := repo.List(ctx, models.MemberQuery{Order: models.MemberOrderAlphabetical})
	if err != nil {
		t.Fatalf("list alphabetical: %v", err)
	}
	if total != 3 || strings.Join(usernames(users), ",") != "alice,bob,carol" {
		t.Fatalf("unexpected alphabetical listing %v (total %d)", usernames(users), total)
	}

	users, _, err = repo.List(ctx, models.MemberQuery{Order: models.MemberOrderNewest})
	if err != nil {
		t.Fatalf("list newest: %v", err)
	}
	if strings.Join(usernames(users), ",") != "bob,alice,carol" {
		t.Fatalf("unexpected newest listing %v", usernames(users))
	}

	users, _, err = repo.List(ctx, models.MemberQuery{Order: models.MemberOrderActive, Limit: 1})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(users) != 1 || users[0].Username != "bob" {
		t.Fatalf("expected the active member first, got %v", usernames(users))
	}

	users, total, err = repo.List(ctx, models.MemberQuery{Search: "AR", Order: models.MemberOrderAlphabetical})
	if err != nil {
		t.Fatalf("list search: %v", err)
	}
	if total != 1 || len(users) != 1 || users[0].Username != "carol" {
		t.Fatalf("unexpected search result %v (total %d)", usernames(users), total)
	}

	users, total, err = repo.List(ctx, models.MemberQuery{IDs: []string{}})
	if err != nil {
		t.Fatalf("list empty ids: %v", err)
	}
	if total != 0 || len(users) != 0 {
		t.Fatalf("expected no members for an empty id set, got %v", usernames(users))
	}
}

func TestPostgresFriendRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	alice := createTestUser(t, userRepo, "alice@example.com")
	bob := createTestUser(t, userRepo, "bob@example.com")
	carol := createTestUser(t, userRepo, "carol@example.com")

	repo := NewPostgresFriendRepository(testPool)

	request := models.Friendship{
		ID:          uuid.NewString(),
		InitiatorID: alice.ID,
		FriendID:    bob.ID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(ctx, request); err != nil {
		t.Fatalf("create friendship: %v", err)
	}

	reverse := models.Friendship{
		ID:          uuid.NewString(),
		InitiatorID: bob.ID,
		FriendID:    alice.ID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(ctx, reverse); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for the reverse pair, got %v", err)
	}

	between, err := repo.Between(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("between: %v", err)
	}
	if between.ID != request.ID || between.IsConfirmed {
		t.Fatalf("unexpected friendship between members: %+v", between)
	}

	incoming, err := repo.List(ctx, bob.ID, models.FriendshipsIncoming)
	if err != nil {
		t.Fatalf("list incoming: %v", err)
	}
	if len(incoming) != 1 || incoming[0].ID != request.ID {
		t.Fatalf("unexpected incoming requests: %+v", incoming)
	}
	outgoing, err := repo.List(ctx, bob.ID, models.FriendshipsOutgoing)
	if err != nil {
		t.Fatalf("list outgoing: %v", err)
	}
	if len(outgoing) != 0 {
		t.Fatalf("expected no outgoing requests for the recipient, got %+v", outgoing)
	}

	assertFriendCount(t, repo, alice.ID, 0)

	confirmed, err := repo.Confirm(ctx, request.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !confirmed.IsConfirmed {
		t.Fatalf("expected confirmed friendship, got %+v", confirmed)
	}
	if _, err := repo.Confirm(ctx, request.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound confirming twice, got %v", err)
	}
	assertFriendCount(t, repo, alice.ID, 1)
	assertFriendCount(t, repo, bob.ID, 1)

	accepted := models.Friendship{
		ID:          uuid.NewString(),
		InitiatorID: carol.ID,
		FriendID:    alice.ID,
		IsConfirmed: true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(ctx, accepted); err != nil {
		t.Fatalf("create confirmed friendship: %v", err)
	}
	assertFriendCount(t, repo, alice.ID, 2)
	assertFriendCount(t, repo, carol.ID, 1)

	if _, err := repo.DeletePending(ctx, accepted.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting a confirmed friendship as pending, got %v", err)
	}
	if _, err := repo.Get(ctx, accepted.ID); err != nil {
		t.Fatalf("confirmed friendship should survive a pending delete: %v", err)
	}
	pending := models.Friendship{ID: uuid.NewString(), InitiatorID: carol.ID, FriendID: bob.ID, CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, pending); err != nil {
		t.Fatalf("create pending friendship: %v", err)
	}
	if dropped, err := repo.DeletePending(ctx, pending.ID); err != nil || dropped.ID != pending.ID {
		t.Fatalf("delete pending: %+v, %v", dropped, err)
	}
	assertFriendCount(t, repo, carol.ID, 1)

	if _, err := repo.Get(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a malformed id, got %v", err)
	}

	ids, err := repo.FriendIDs(ctx, alice.ID)
	if err != nil {
		t.Fatalf("friend ids: %v", err)
	}
	sort.Strings(ids)
	want := []string{bob.ID, carol.ID}
	sort.Strings(want)
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Fatalf("expected friends %v, got %v", want, ids)
	}

	removed, err := repo.Delete(ctx, request.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed.ID != request.ID {
		t.Fatalf("unexpected removed friendship: %+v", removed)
	}
	if _, err := repo.Get(ctx, request.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	assertFriendCount(t, repo, alice.ID, 1)
	assertFriendCount(t, repo, bob.ID, 0)

	if _, err := repo.Delete(ctx, request.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}

	if err := repo.Create(ctx, models.Friendship{ID: uuid.NewString(), InitiatorID: alice.ID, FriendID: uuid.NewString(), CreatedAt: time.Now().UTC()}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown friend, got %v", err)
	}
}

func TestPostgresFriendRepository_DeleteAllForUserAndRecount(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	alice := createTestUser(t, userRepo, "alice@example.com")
	bob := createTestUser(t, userRepo, "bob@example.com")
	carol := createTestUser(t, userRepo, "carol@example.com")

	repo := NewPostgresFriendRepository(testPool)
	for _, f := range []models.Friendship{
		{ID: uuid.NewString(), InitiatorID: alice.ID, FriendID: bob.ID, IsConfirmed: true, CreatedAt: time.Now().UTC()},
		{ID: uuid.NewString(), InitiatorID: carol.ID, FriendID: alice.ID, CreatedAt: time.Now().UTC()},
		{ID: uuid.NewString(), InitiatorID: bob.ID, FriendID: carol.ID, IsConfirmed: true, CreatedAt: time.Now().UTC()},
	} {
		if err := repo.Create(ctx, f); err != nil {
			t.Fatalf("create friendship: %v", err)
		}
	}

	removed, err := repo.DeleteAllForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("delete all for user: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected two removed friendships, got %+v", removed)
	}
	assertFriendCount(t, repo, alice.ID, 0)
	assertFriendCount(t, repo, bob.ID, 1)
	assertFriendCount(t, repo, carol.ID, 1)

	if _, err := testPool.Exec(ctx, `UPDATE users SET total_friend_count = 7 WHERE id = $1`, bob.ID); err != nil {
		t.Fatalf("corrupt counter: %v", err)
	}
	count, err := repo.Recount(ctx, bob.ID)
	if err != nil {
		t.Fatalf("recount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected recount of 1, got %d", count)
	}
	assertFriendCount(t, repo, bob.ID, 1)

	if _, err := repo.Recount(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound recounting unknown member, got %v", err)
	}
}

func TestPostgresActivityRepository_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	alice := createTestUser(t, userRepo, "alice@example.com")
	bob := createTestUser(t, userRepo, "bob@example.com")

	repo := NewPostgresActivityRepository(testPool)
	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
	entries := []models.Activity{
		{ID: 1, UserID: alice.ID, Component: "profile", Type: "new_member", RecordedAt: base},
		{ID: 2, UserID: alice.ID, Component: "friends", Type: "friendship_created", ItemID: "f1", SecondaryItemID: bob.ID, RecordedAt: base.Add(time.Minute)},
		{ID: 3, UserID: bob.ID, Component: "friends", Type: "friendship_created", ItemID: "f1", SecondaryItemID: alice.ID, HideSitewide: true, RecordedAt: base.Add(time.Minute)},
		{ID: 4, UserID: bob.ID, Component: "activity", Type: "activity_update", Content: "hello", RecordedAt: base.Add(2 * time.Minute)},
	}
	for _, a := range entries {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("create activity %d: %v", a.ID, err)
		}
	}
	if err := repo.Create(ctx, entries[0]); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate id, got %v", err)
	}

	ids := func(list []models.Activity) []int64 {
		out := make([]int64, 0, len(list))
		for _, a := range list {
			out = append(out, a.ID)
		}
		return out
	}

	all, err := repo.List(ctx, models.ActivityQuery{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if fmt.Sprint(ids(all)) != "[4 3 2 1]" {
		t.Fatalf("unexpected stream order %v", ids(all))
	}

	sitewide, err := repo.List(ctx, models.ActivityQuery{ExcludeHidden: true, Component: "friends"})
	if err != nil {
		t.Fatalf("list sitewide: %v", err)
	}
	if fmt.Sprint(ids(sitewide)) != "[2]" {
		t.Fatalf("expected hidden copy to be excluded, got %v", ids(sitewide))
	}

	mine, err := repo.List(ctx, models.ActivityQuery{UserIDs: []string{bob.ID}, Limit: 1})
	if err != nil {
		t.Fatalf("list member: %v", err)
	}
	if fmt.Sprint(ids(mine)) != "[4]" {
		t.Fatalf("unexpected member page %v", ids(mine))
	}

	latest, err := repo.Latest(ctx, bob.ID, "activity_update")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != 4 || latest.Content != "hello" || !latest.RecordedAt.Equal(entries[3].RecordedAt) {
		t.Fatalf("unexpected latest activity %+v", latest)
	}
	if _, err := repo.Latest(ctx, alice.ID, "activity_update"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without updates, got %v", err)
	}

	deleted, err := repo.DeleteForItem(ctx, models.ActivityItemFilter{Component: "friends", Type: "friendship_created", ItemID: "f1"})
	if err != nil {
		t.Fatalf("delete for item: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected both friendship entries removed, got %d", deleted)
	}
	if _, err := repo.DeleteForItem(ctx, models.ActivityItemFilter{}); err == nil {
		t.Fatal("expected an empty filter to be rejected")
	}

	if err := repo.Delete(ctx, 4); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestPostgresProfileRepository_FieldsAndData(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	alice := createTestUser(t, userRepo, "alice@example.com")

	repo := NewPostgresProfileRepository(testPool)

	base, err := repo.Field(ctx, 1)
	if err != nil {
		t.Fatalf("load base field: %v", err)
	}
	if base.Name != "Name" || base.GroupID != 1 || !base.Required || len(base.Options) != 0 {
		t.Fatalf("unexpected base field %+v", base)
	}

	groupID, err := repo.CreateGroup(ctx, models.ProfileFieldGroup{Name: "Interests " + uuid.NewString(), Order: 5})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if groupID < 100 {
		t.Fatalf("expected generated group ids to start at 100, got %d", groupID)
	}

	fieldID, err := repo.CreateField(ctx, models.ProfileField{
		GroupID:               groupID,
		Name:                  "Hobbies",
		Type:                  "checkbox",
		Options:               []string{"chess", "hiking"},
		DefaultVisibility:     "friends",
		AllowCustomVisibility: true,
	})
	if err != nil {
		t.Fatalf("create field: %v", err)
	}

	field, err := repo.Field(ctx, fieldID)
	if err != nil {
		t.Fatalf("load field: %v", err)
	}
	if strings.Join(field.Options, ",") != "chess,hiking" || field.DefaultVisibility != "friends" {
		t.Fatalf("unexpected field %+v", field)
	}

	if _, err := repo.CreateField(ctx, models.ProfileField{GroupID: 999999, Name: "Orphan", Type: "textbox"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown group, got %v", err)
	}

	groups, err := repo.Groups(ctx)
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if len(groups) < 2 || groups[0].ID != 1 {
		t.Fatalf("expected the base group first, got %+v", groups)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.UpsertData(ctx, models.ProfileFieldData{FieldID: 1, UserID: alice.ID, Value: "Alice", Visibility: "public", UpdatedAt: now}); err != nil {
		t.Fatalf("upsert name: %v", err)
	}
	if err := repo.UpsertData(ctx, models.ProfileFieldData{FieldID: fieldID, UserID: alice.ID, Value: `["chess"]`, Visibility: "friends", UpdatedAt: now}); err != nil {
		t.Fatalf("upsert hobbies: %v", err)
	}
	if err := repo.UpsertData(ctx, models.ProfileFieldData{FieldID: 1, UserID: alice.ID, Value: "Alice L.", Visibility: "public", UpdatedAt: now.Add(time.Second)}); err != nil {
		t.Fatalf("replace name: %v", err)
	}

	data, err := repo.DataForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("data for user: %v", err)
	}
	if len(data) != 2 || data[0].FieldID != 1 || data[0].Value != "Alice L." {
		t.Fatalf("unexpected profile data %+v", data)
	}

	n, err := repo.DeleteDataForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("delete data: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected two values removed, got %d", n)
	}
}

func TestPostgresOptionStore_GetAndSet(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	store := NewPostgresOptionStore(testPool)

	if _, err := store.GetOption(ctx, "rewrite_slugs"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing option, got %v", err)
	}

	if err := store.SetOption(ctx, "rewrite_slugs", []byte(`{"members":"people"}`)); err != nil {
		t.Fatalf("set option: %v", err)
	}
	if err := store.SetOption(ctx, "rewrite_slugs", []byte(`{"members":"folks"}`)); err != nil {
		t.Fatalf("replace option: %v", err)
	}

	value, err := store.GetOption(ctx, "rewrite_slugs")
	if err != nil {
		t.Fatalf("get option: %v", err)
	}
	if string(value) != `{"members":"folks"}` {
		t.Fatalf("unexpected option value %s", value)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, userRepo, "owner@example.com")

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		RefreshToken: uuid.NewString(),
		UserID:       user.ID,
		ExpiresAt:    expires,
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}

	if loaded.UserID != session.UserID || !timesClose(loaded.ExpiresAt, expires.UTC(), time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	updated := session
	updated.ExpiresAt = expires.Add(48 * time.Hour)
	if err := store.Save(ctx, updated); err != nil {
		t.Fatalf("update session: %v", err)
	}

	loaded, err = store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session after update: %v", err)
	}

	if !timesClose(loaded.ExpiresAt, updated.ExpiresAt.UTC(), time.Millisecond) {
		t.Fatalf("expected updated expiry, got %v", loaded.ExpiresAt)
	}

	if err := store.Delete(ctx, session.RefreshToken); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}

	if err := store.Delete(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting twice, got %v", err)
	}
	for i := 0; i < 2; i++ {
		extra := auth.Session{RefreshToken: uuid.NewString(), UserID: user.ID, ExpiresAt: expires}
		if err := store.Save(ctx, extra); err != nil {
			t.Fatalf("save extra session: %v", err)
		}
	}
	n, err := store.DeleteForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("delete sessions for user: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected two sessions removed, got %d", n)
	}

	orphan := auth.Session{RefreshToken: uuid.NewString(), UserID: uuid.NewString(), ExpiresAt: expires}
	if err := store.Save(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound saving a session for an unknown member, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE activities, profile_data, friendships, sessions, options, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, email string) models.User {
	t.Helper()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  "password-hash",
		Username:  strings.SplitN(email, "@", 2)[0],
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}

func assertFriendCount(t *testing.T, repo *PostgresFriendRepository, userID string, want int) {
	t.Helper()
	got, err := repo.FriendCount(context.Background(), userID)
	if err != nil {
		t.Fatalf("friend count: %v", err)
	}
	if got != want {
		t.Fatalf("expected friend count %d for %s, got %d", want, userID, got)
	}
}
