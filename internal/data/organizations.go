package data

import (
	"context"
	"database/sql"
	"time"
)

// Organization is the tenant boundary. Every Person, Event, Camera and
// Detection is scoped to one organization.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrganizationModel struct {
	DB DBTX
}

func (m OrganizationModel) Create(ctx context.Context, o *Organization) error {
	query := `
		INSERT INTO organizations (name, is_active)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`
	return m.DB.QueryRowContext(ctx, query, o.Name, o.IsActive).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func (m OrganizationModel) GetByID(ctx context.Context, id int64) (*Organization, error) {
	query := `
		SELECT id, name, is_active, created_at, updated_at
		FROM organizations
		WHERE id = $1`

	var o Organization
	err := m.DB.QueryRowContext(ctx, query, id).
		Scan(&o.ID, &o.Name, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (m OrganizationModel) List(ctx context.Context) ([]*Organization, error) {
	query := `SELECT id, name, is_active, created_at, updated_at FROM organizations ORDER BY id`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []*Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.IsActive, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, &o)
	}
	return orgs, rows.Err()
}
