package data

import (
	"context"
	"database/sql"
	"time"
)

// User is an operator account for the control surface.
type User struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

type UserModel struct {
	DB DBTX
}

func (m UserModel) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (organization_id, email, password_hash, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	return m.DB.QueryRowContext(ctx, query, u.OrganizationID, u.Email, u.PasswordHash, u.IsActive).
		Scan(&u.ID, &u.CreatedAt)
}

func (m UserModel) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, organization_id, email, password_hash, is_active, created_at
		FROM users
		WHERE email = $1`

	var u User
	err := m.DB.QueryRowContext(ctx, query, email).
		Scan(&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
