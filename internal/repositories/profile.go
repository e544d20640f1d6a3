package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kinship/backend/internal/db"
	"github.com/kinship/backend/internal/models"
)

const profileFieldColumns = `id, group_id, name, description, type, is_required, options,
        default_visibility, allow_custom_visibility, field_order`

// PostgresProfileRepository persists extended profile groups, fields and values.
type PostgresProfileRepository struct {
	pool db.Pool
}

// NewPostgresProfileRepository constructs a profile repository backed by PostgreSQL.
func NewPostgresProfileRepository(pool db.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

// Groups lists field groups in display order.
func (r *PostgresProfileRepository) Groups(ctx context.Context) ([]models.ProfileFieldGroup, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, name, description, group_order
        FROM profile_groups
        ORDER BY group_order, id
    `)
	if err != nil {
		return nil, fmt.Errorf("query profile groups: %w", err)
	}
	defer rows.Close()

	var groups []models.ProfileFieldGroup
	for rows.Next() {
		var g models.ProfileFieldGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Order); err != nil {
			return nil, fmt.Errorf("scan profile group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile groups: %w", err)
	}
	return groups, nil
}

// CreateGroup inserts a group and returns its generated ID.
func (r *PostgresProfileRepository) CreateGroup(ctx context.Context, group models.ProfileFieldGroup) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id int64
	err = conn.QueryRow(ctx, `
        INSERT INTO profile_groups (name, description, group_order)
        VALUES ($1, $2, $3)
        RETURNING id
    `, group.Name, group.Description, group.Order).Scan(&id)
	if err != nil {
		return 0, translate(err, "insert profile group")
	}
	return id, nil
}

// Fields lists every field ordered by group then position.
func (r *PostgresProfileRepository) Fields(ctx context.Context) ([]models.ProfileField, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT `+profileFieldColumns+` FROM profile_fields ORDER BY group_id, field_order, id`)
	if err != nil {
		return nil, fmt.Errorf("query profile fields: %w", err)
	}
	defer rows.Close()

	var fields []models.ProfileField
	for rows.Next() {
		field, err := scanProfileField(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile field: %w", err)
		}
		fields = append(fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile fields: %w", err)
	}
	return fields, nil
}

// Field loads one field definition.
func (r *PostgresProfileRepository) Field(ctx context.Context, id int64) (models.ProfileField, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ProfileField{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	field, err := scanProfileField(conn.QueryRow(ctx, `SELECT `+profileFieldColumns+` FROM profile_fields WHERE id = $1`, id))
	if err != nil {
		return models.ProfileField{}, translate(err, "select profile field")
	}
	return field, nil
}

// CreateField inserts a field and returns its generated ID. An unknown group
// is ErrNotFound.
func (r *PostgresProfileRepository) CreateField(ctx context.Context, field models.ProfileField) (int64, error) {
	options, err := json.Marshal(nonNil(field.Options))
	if err != nil {
		return 0, fmt.Errorf("encode field options: %w", err)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id int64
	err = conn.QueryRow(ctx, `
        INSERT INTO profile_fields (group_id, name, description, type, is_required, options,
                                    default_visibility, allow_custom_visibility, field_order)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `, field.GroupID, field.Name, field.Description, field.Type, field.Required, string(options),
		field.DefaultVisibility, field.AllowCustomVisibility, field.Order).Scan(&id)
	if err != nil {
		return 0, translate(err, "insert profile field")
	}
	return id, nil
}

// UpsertData stores a member's value for a field.
func (r *PostgresProfileRepository) UpsertData(ctx context.Context, data models.ProfileFieldData) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO profile_data (user_id, field_id, value, visibility, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, field_id)
        DO UPDATE SET value = EXCLUDED.value, visibility = EXCLUDED.visibility, updated_at = EXCLUDED.updated_at
    `, data.UserID, data.FieldID, data.Value, data.Visibility, data.UpdatedAt.UTC())
	return translate(err, "upsert profile data")
}

// DataForUser returns every stored value for the member.
func (r *PostgresProfileRepository) DataForUser(ctx context.Context, userID string) ([]models.ProfileFieldData, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT field_id, user_id, value, visibility, updated_at
        FROM profile_data
        WHERE user_id = $1
        ORDER BY field_id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query profile data: %w", err)
	}
	defer rows.Close()

	var data []models.ProfileFieldData
	for rows.Next() {
		var d models.ProfileFieldData
		if err := rows.Scan(&d.FieldID, &d.UserID, &d.Value, &d.Visibility, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile data: %w", err)
		}
		d.UpdatedAt = d.UpdatedAt.UTC()
		data = append(data, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile data: %w", err)
	}
	return data, nil
}

// DeleteDataForUser removes every stored value for the member.
func (r *PostgresProfileRepository) DeleteDataForUser(ctx context.Context, userID string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM profile_data WHERE user_id = $1`, userID)
	if err != nil {
		return 0, translate(err, "delete profile data")
	}
	return tag.RowsAffected(), nil
}

func scanProfileField(row pgx.Row) (models.ProfileField, error) {
	var (
		f       models.ProfileField
		options string
	)
	err := row.Scan(&f.ID, &f.GroupID, &f.Name, &f.Description, &f.Type, &f.Required, &options,
		&f.DefaultVisibility, &f.AllowCustomVisibility, &f.Order)
	if err != nil {
		return models.ProfileField{}, err
	}
	if err := json.Unmarshal([]byte(options), &f.Options); err != nil {
		return models.ProfileField{}, fmt.Errorf("decode field options: %w", err)
	}
	return f, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
