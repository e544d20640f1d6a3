package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/db"
)

// PostgresSessionStore keeps refresh sessions in the sessions table. Rows
// cascade away with their member.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Save inserts the session, replacing any row with the same refresh token.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO sessions (refresh_token, user_id, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (refresh_token) DO UPDATE
        SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
    `, session.RefreshToken, session.UserID, session.ExpiresAt.UTC())
	return translate(err, "save session")
}

// Find loads a session; unknown tokens are auth.ErrSessionNotFound.
func (s *PostgresSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	session := auth.Session{RefreshToken: refreshToken}
	err = conn.QueryRow(ctx, `SELECT user_id, expires_at FROM sessions WHERE refresh_token = $1`, refreshToken).
		Scan(&session.UserID, &session.ExpiresAt)
	if err != nil {
		return auth.Session{}, sessionError(err, "select session")
	}
	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

// Delete removes one session.
func (s *PostgresSessionStore) Delete(ctx context.Context, refreshToken string) error {
	n, err := s.deleteWhere(ctx, "refresh_token", refreshToken)
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

// DeleteForUser removes every session the member holds and reports how many.
func (s *PostgresSessionStore) DeleteForUser(ctx context.Context, userID string) (int, error) {
	n, err := s.deleteWhere(ctx, "user_id", userID)
	return int(n), err
}

func (s *PostgresSessionStore) deleteWhere(ctx context.Context, column, value string) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE `+column+` = $1`, value)
	if err != nil {
		return 0, sessionError(err, "delete sessions by "+column)
	}
	return tag.RowsAffected(), nil
}

func sessionError(err error, op string) error {
	err = translate(err, op)
	if errors.Is(err, ErrNotFound) {
		return auth.ErrSessionNotFound
	}
	return err
}
