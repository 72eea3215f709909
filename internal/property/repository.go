package property

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context, userID string) ([]Property, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, complex_name, building_name, unit_no, type_info, note, created_at, updated_at
		FROM properties
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer rows.Close()

	properties := make([]Property, 0)
	for rows.Next() {
		var p Property
		if err := rows.Scan(&p.ID, &p.UserID, &p.ComplexName, &p.BuildingName, &p.UnitNo, &p.TypeInfo, &p.Note, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		properties = append(properties, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}

	return properties, nil
}

func (r *Repository) Create(ctx context.Context, userID string, input PropertyInput) (Property, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Property{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	p := Property{
		ID:           id.String(),
		UserID:       userID,
		ComplexName:  input.ComplexName,
		BuildingName: input.BuildingName,
		UnitNo:       input.UnitNo,
		TypeInfo:     input.TypeInfo,
		Note:         input.Note,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO properties (id, user_id, complex_name, building_name, unit_no, type_info, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, p.ID, p.UserID, p.ComplexName, p.BuildingName, p.UnitNo, p.TypeInfo, p.Note, now)
	if err != nil {
		return Property{}, fmt.Errorf("insert property: %w", err)
	}

	return p, nil
}

func (r *Repository) Update(ctx context.Context, userID, id string, input PropertyInput) (Property, error) {
	var p Property

	err := r.db.QueryRowContext(ctx, `
		UPDATE properties
		SET complex_name = $3, building_name = $4, unit_no = $5, type_info = $6, note = $7, updated_at = $8
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, complex_name, building_name, unit_no, type_info, note, created_at, updated_at
	`, id, userID, input.ComplexName, input.BuildingName, input.UnitNo, input.TypeInfo, input.Note, time.Now().UTC()).
		Scan(&p.ID, &p.UserID, &p.ComplexName, &p.BuildingName, &p.UnitNo, &p.TypeInfo, &p.Note, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Property{}, err
		}
		return Property{}, fmt.Errorf("update property: %w", err)
	}

	return p, nil
}

func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM properties WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
