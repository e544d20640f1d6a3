package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kinship/backend/internal/db"
	"github.com/kinship/backend/internal/models"
)

const userColumns = `id, email, password_hash, username, display_name, avatar_url, is_admin,
        total_friend_count, last_activity, created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for members.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, username, display_name, avatar_url, is_admin, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, user.ID, user.Email, user.Password, user.Username, user.DisplayName, user.AvatarURL, user.IsAdmin, user.CreatedAt, user.UpdatedAt)
	return translate(err, "insert user")
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "id", id)
}

// FindByUsername fetches a user by their unique username.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, column, value string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, translate(err, "select user by "+column)
	}
	return user, nil
}

// Update modifies the credentials and profile columns of an existing user.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET email = $2, password_hash = $3, display_name = $4, avatar_url = $5, updated_at = $6
        WHERE id = $1
    `, user.ID, user.Email, user.Password, user.DisplayName, user.AvatarURL, user.UpdatedAt)
	if err != nil {
		return translate(err, "update user")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDisplayName mirrors the primary profile field onto the users table.
func (r *PostgresUserRepository) SetDisplayName(ctx context.Context, userID, name string) error {
	return r.setColumn(ctx, userID, "display_name", name)
}

// SetAvatar records the public URL of a member's uploaded avatar.
func (r *PostgresUserRepository) SetAvatar(ctx context.Context, userID, avatarURL string) error {
	return r.setColumn(ctx, userID, "avatar_url", avatarURL)
}

func (r *PostgresUserRepository) setColumn(ctx context.Context, userID, column, value string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE users SET `+column+` = $2, updated_at = $3 WHERE id = $1`, userID, value, time.Now().UTC())
	if err != nil {
		return translate(err, "update user "+column)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastActivity stamps the member's last activity time.
func (r *PostgresUserRepository) TouchLastActivity(ctx context.Context, userID string, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE users SET last_activity = $2 WHERE id = $1`, userID, at.UTC())
	if err != nil {
		return translate(err, "touch last activity")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a member. Friendships, sessions, activity and profile data
// cascade; callers fix up friend counters first.
func (r *PostgresUserRepository) Delete(ctx context.Context, userID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return translate(err, "delete user")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of the member directory and the total number of matches.
func (r *PostgresUserRepository) List(ctx context.Context, query models.MemberQuery) ([]models.User, int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var (
		where []string
		args  []any
	)
	if query.IDs != nil {
		args = append(args, query.IDs)
		where = append(where, fmt.Sprintf("id = ANY($%d::TEXT[]::UUID[])", len(args)))
	}
	if term := strings.TrimSpace(query.Search); term != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(term))+"%")
		where = append(where, fmt.Sprintf("(LOWER(username) LIKE $%[1]d OR LOWER(display_name) LIKE $%[1]d)", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}

	sql := `SELECT ` + userColumns + ` FROM users` + clause + ` ORDER BY ` + memberOrder(query.Order)
	if query.Limit > 0 {
		args = append(args, query.Limit, query.Offset)
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan member: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate members: %w", err)
	}

	return users, total, nil
}

func memberOrder(order string) string {
	switch order {
	case models.MemberOrderNewest:
		return "created_at DESC, id"
	case models.MemberOrderAlphabetical:
		return "LOWER(COALESCE(NULLIF(display_name, ''), username)), id"
	default:
		return "last_activity IS NULL, last_activity DESC, created_at DESC, id"
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.Password, &user.Username, &user.DisplayName, &user.AvatarURL,
		&user.IsAdmin, &user.TotalFriendCount, &user.LastActivity, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	if user.LastActivity != nil {
		t := user.LastActivity.UTC()
		user.LastActivity = &t
	}
	return user, nil
}
