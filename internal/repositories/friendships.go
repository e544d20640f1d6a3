package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kinship/backend/internal/db"
	"github.com/kinship/backend/internal/models"
)

const friendshipColumns = `id, initiator_id, friend_id, is_confirmed, created_at`

// PostgresFriendRepository persists friendships and keeps each member's
// total_friend_count in step with confirmed records.
type PostgresFriendRepository struct {
	pool db.Pool
}

// NewPostgresFriendRepository constructs a friend repository backed by PostgreSQL.
func NewPostgresFriendRepository(pool db.Pool) *PostgresFriendRepository {
	return &PostgresFriendRepository{pool: pool}
}

// Create inserts a friendship. A record created already confirmed bumps both
// counters in the same transaction. A second record for the same pair, in
// either direction, is ErrConflict.
func (r *PostgresFriendRepository) Create(ctx context.Context, friendship models.Friendship) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO friendships (`+friendshipColumns+`)
            VALUES ($1, $2, $3, $4, $5)
        `, friendship.ID, friendship.InitiatorID, friendship.FriendID, friendship.IsConfirmed, friendship.CreatedAt)
		if err != nil {
			return translate(err, "insert friendship")
		}
		if friendship.IsConfirmed {
			return adjustFriendCounts(ctx, tx, 1, friendship.InitiatorID, friendship.FriendID)
		}
		return nil
	})
}

// Get loads a friendship by ID.
func (r *PostgresFriendRepository) Get(ctx context.Context, id string) (models.Friendship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Friendship{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+friendshipColumns+` FROM friendships WHERE id = $1`, id)
	friendship, err := scanFriendship(row)
	if err != nil {
		return models.Friendship{}, translate(err, "select friendship")
	}
	return friendship, nil
}

// Between loads the friendship linking two members regardless of direction.
func (r *PostgresFriendRepository) Between(ctx context.Context, userA, userB string) (models.Friendship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Friendship{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+friendshipColumns+`
        FROM friendships
        WHERE (initiator_id = $1 AND friend_id = $2) OR (initiator_id = $2 AND friend_id = $1)
    `, userA, userB)
	friendship, err := scanFriendship(row)
	if err != nil {
		return models.Friendship{}, translate(err, "select friendship between members")
	}
	return friendship, nil
}

// Confirm marks a pending friendship as confirmed and increments both
// counters atomically. Confirming a missing or already-confirmed record is
// ErrNotFound.
func (r *PostgresFriendRepository) Confirm(ctx context.Context, id string) (models.Friendship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Friendship{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var friendship models.Friendship
	err = pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            UPDATE friendships
            SET is_confirmed = TRUE
            WHERE id = $1 AND NOT is_confirmed
            RETURNING `+friendshipColumns, id)
		var err error
		friendship, err = scanFriendship(row)
		if err != nil {
			return translate(err, "confirm friendship")
		}
		return adjustFriendCounts(ctx, tx, 1, friendship.InitiatorID, friendship.FriendID)
	})
	if err != nil {
		return models.Friendship{}, err
	}
	return friendship, nil
}

// Delete removes a friendship, decrementing both counters when it had been
// confirmed. The removed record is returned.
func (r *PostgresFriendRepository) Delete(ctx context.Context, id string) (models.Friendship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Friendship{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var friendship models.Friendship
	err = pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `DELETE FROM friendships WHERE id = $1 RETURNING `+friendshipColumns, id)
		var err error
		friendship, err = scanFriendship(row)
		if err != nil {
			return translate(err, "delete friendship")
		}
		if friendship.IsConfirmed {
			return adjustFriendCounts(ctx, tx, -1, friendship.InitiatorID, friendship.FriendID)
		}
		return nil
	})
	if err != nil {
		return models.Friendship{}, err
	}
	return friendship, nil
}

// DeletePending removes a friendship only while it is still unconfirmed.
// A missing or already-confirmed record yields ErrNotFound.
func (r *PostgresFriendRepository) DeletePending(ctx context.Context, id string) (models.Friendship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Friendship{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
            DELETE FROM friendships
            WHERE id = $1 AND NOT is_confirmed
            RETURNING `+friendshipColumns, id)
	friendship, err := scanFriendship(row)
	if err != nil {
		return models.Friendship{}, translate(err, "delete pending friendship")
	}
	return friendship, nil
}

// DeleteAllForUser removes every friendship the member is part of and
// decrements the counters of their confirmed friends.
func (r *PostgresFriendRepository) DeleteAllForUser(ctx context.Context, userID string) ([]models.Friendship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var removed []models.Friendship
	err = pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
            DELETE FROM friendships
            WHERE initiator_id = $1 OR friend_id = $1
            RETURNING `+friendshipColumns, userID)
		if err != nil {
			return fmt.Errorf("delete friendships for member: %w", err)
		}
		removed, err = collectFriendships(rows)
		if err != nil {
			return err
		}

		var others []string
		for _, f := range removed {
			if f.IsConfirmed {
				others = append(others, f.Other(userID))
			}
		}
		if err := adjustFriendCounts(ctx, tx, -1, others...); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE users SET total_friend_count = 0 WHERE id = $1`, userID)
		return translate(err, "reset friend count")
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// List returns the member's friendships in the given scope, newest first.
func (r *PostgresFriendRepository) List(ctx context.Context, userID, scope string) ([]models.Friendship, error) {
	var where string
	switch scope {
	case models.FriendshipsConfirmed:
		where = "is_confirmed AND (initiator_id = $1 OR friend_id = $1)"
	case models.FriendshipsIncoming:
		where = "NOT is_confirmed AND friend_id = $1"
	case models.FriendshipsOutgoing:
		where = "NOT is_confirmed AND initiator_id = $1"
	default:
		return nil, fmt.Errorf("unknown friendship scope %q", scope)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+friendshipColumns+`
        FROM friendships
        WHERE `+where+`
        ORDER BY created_at DESC, id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query friendships: %w", err)
	}
	return collectFriendships(rows)
}

// FriendIDs returns the IDs of the member's confirmed friends.
func (r *PostgresFriendRepository) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT CASE WHEN initiator_id = $1 THEN friend_id ELSE initiator_id END
        FROM friendships
        WHERE is_confirmed AND (initiator_id = $1 OR friend_id = $1)
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query friend ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan friend id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend ids: %w", err)
	}
	return ids, nil
}

// FriendCount reads the member's cached friend counter.
func (r *PostgresFriendRepository) FriendCount(ctx context.Context, userID string) (int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int
	if err := conn.QueryRow(ctx, `SELECT total_friend_count FROM users WHERE id = $1`, userID).Scan(&count); err != nil {
		return 0, translate(err, "select friend count")
	}
	return count, nil
}

// Recount rebuilds the member's counter from the confirmed friendships.
func (r *PostgresFriendRepository) Recount(ctx context.Context, userID string) (int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int
	err = conn.QueryRow(ctx, `
        UPDATE users
        SET total_friend_count = (
            SELECT COUNT(*) FROM friendships
            WHERE is_confirmed AND (initiator_id = $1 OR friend_id = $1)
        )
        WHERE id = $1
        RETURNING total_friend_count
    `, userID).Scan(&count)
	if err != nil {
		return 0, translate(err, "recount friends")
	}
	return count, nil
}

// adjustFriendCounts moves each member's counter by delta, never below zero.
func adjustFriendCounts(ctx context.Context, tx pgx.Tx, delta int, userIDs ...string) error {
	for _, id := range userIDs {
		_, err := tx.Exec(ctx, `
            UPDATE users
            SET total_friend_count = GREATEST(total_friend_count + $2, 0)
            WHERE id = $1
        `, id, delta)
		if err != nil {
			return fmt.Errorf("adjust friend count: %w", err)
		}
	}
	return nil
}

func scanFriendship(row pgx.Row) (models.Friendship, error) {
	var f models.Friendship
	if err := row.Scan(&f.ID, &f.InitiatorID, &f.FriendID, &f.IsConfirmed, &f.CreatedAt); err != nil {
		return models.Friendship{}, err
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

func collectFriendships(rows pgx.Rows) ([]models.Friendship, error) {
	defer rows.Close()

	var friendships []models.Friendship
	for rows.Next() {
		f, err := scanFriendship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friendship: %w", err)
		}
		friendships = append(friendships, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friendships: %w", err)
	}
	return friendships, nil
}
