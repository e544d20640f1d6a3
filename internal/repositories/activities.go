package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kinship/backend/internal/db"
	"github.com/kinship/backend/internal/models"
)

const activityColumns = `id, user_id, component, type, action, content, primary_link, item_id,
        secondary_item_id, hide_sitewide, recorded_at`

// PostgresActivityRepository persists the activity stream.
type PostgresActivityRepository struct {
	pool db.Pool
}

// NewPostgresActivityRepository constructs an activity repository backed by PostgreSQL.
func NewPostgresActivityRepository(pool db.Pool) *PostgresActivityRepository {
	return &PostgresActivityRepository{pool: pool}
}

// Create stores a new activity.
func (r *PostgresActivityRepository) Create(ctx context.Context, activity models.Activity) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO activities (`+activityColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, activity.ID, activity.UserID, activity.Component, activity.Type, activity.Action, activity.Content,
		activity.PrimaryLink, activity.ItemID, activity.SecondaryItemID, activity.HideSitewide, activity.RecordedAt)
	return translate(err, "insert activity")
}

// Get loads a single activity.
func (r *PostgresActivityRepository) Get(ctx context.Context, id int64) (models.Activity, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Activity{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	activity, err := scanActivity(conn.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id))
	if err != nil {
		return models.Activity{}, translate(err, "select activity")
	}
	return activity, nil
}

// Latest returns the member's most recent activity of the given type.
func (r *PostgresActivityRepository) Latest(ctx context.Context, userID, activityType string) (models.Activity, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Activity{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+activityColumns+`
        FROM activities
        WHERE user_id = $1 AND type = $2
        ORDER BY recorded_at DESC, id DESC
        LIMIT 1
    `, userID, activityType)
	activity, err := scanActivity(row)
	if err != nil {
		return models.Activity{}, translate(err, "select latest activity")
	}
	return activity, nil
}

// List returns activities matching the query, newest first.
func (r *PostgresActivityRepository) List(ctx context.Context, query models.ActivityQuery) ([]models.Activity, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var (
		where []string
		args  []any
	)
	if query.UserIDs != nil {
		args = append(args, query.UserIDs)
		where = append(where, fmt.Sprintf("user_id = ANY($%d::TEXT[]::UUID[])", len(args)))
	}
	if query.Component != "" {
		args = append(args, query.Component)
		where = append(where, fmt.Sprintf("component = $%d", len(args)))
	}
	if query.Type != "" {
		args = append(args, query.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if query.ExcludeHidden {
		where = append(where, "NOT hide_sitewide")
	}

	sql := `SELECT ` + activityColumns + ` FROM activities`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY recorded_at DESC, id DESC"
	if query.Limit > 0 {
		args = append(args, query.Limit, query.Offset)
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return activities, nil
}

// Delete removes one activity.
func (r *PostgresActivityRepository) Delete(ctx context.Context, id int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete activity")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteForItem removes every activity matching the filter and reports how
// many were deleted. An empty filter is rejected.
func (r *PostgresActivityRepository) DeleteForItem(ctx context.Context, filter models.ActivityItemFilter) (int64, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("user_id", filter.UserID)
	add("component", filter.Component)
	add("type", filter.Type)
	add("item_id", filter.ItemID)
	add("secondary_item_id", filter.SecondaryItemID)
	if len(where) == 0 {
		return 0, fmt.Errorf("delete activities: empty filter")
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM activities WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return 0, translate(err, "delete activities for item")
	}
	return tag.RowsAffected(), nil
}

func scanActivity(row pgx.Row) (models.Activity, error) {
	var a models.Activity
	err := row.Scan(&a.ID, &a.UserID, &a.Component, &a.Type, &a.Action, &a.Content, &a.PrimaryLink,
		&a.ItemID, &a.SecondaryItemID, &a.HideSitewide, &a.RecordedAt)
	if err != nil {
		return models.Activity{}, err
	}
	a.RecordedAt = a.RecordedAt.UTC()
	return a, nil
}
