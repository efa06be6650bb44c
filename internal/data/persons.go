package data

import (
	"context"
	"database/sql"
	"time"
)

// Person is an identified individual owning zero or more enrolled faces.
type Person struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	DocumentNumber *string   `json:"document_number,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PersonFace is one enrolled face sample. Embedding is a packed vector of
// 32-bit little-endian floats; the dimension is discovered at index startup.
type PersonFace struct {
	ID             int64     `json:"id"`
	PersonID       int64     `json:"person_id"`
	OrganizationID int64     `json:"organization_id"`
	Embedding      []byte    `json:"-"`
	Reliability    float64   `json:"reliability"`
	Status         string    `json:"status"`
	ImageURL       string    `json:"image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// EnrolledFace is the join row used to bootstrap the ANN index: an active
// face of an active person with a non-null embedding.
type EnrolledFace struct {
	FaceID     int64
	PersonID   int64
	PersonName string
	Embedding  []byte
}

type PersonModel struct {
	DB DBTX
}

func (m PersonModel) Create(ctx context.Context, p *Person) error {
	query := `
		INSERT INTO persons (organization_id, name, document_number, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	return m.DB.QueryRowContext(ctx, query, p.OrganizationID, p.Name, p.DocumentNumber, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (m PersonModel) GetByID(ctx context.Context, id int64) (*Person, error) {
	query := `
		SELECT id, organization_id, name, document_number, status, created_at, updated_at
		FROM persons
		WHERE id = $1`

	var p Person
	var doc sql.NullString
	err := m.DB.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.OrganizationID, &p.Name, &doc, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if doc.Valid {
		p.DocumentNumber = &doc.String
	}
	return &p, nil
}

func (m PersonModel) ListByOrganization(ctx context.Context, orgID int64) ([]*Person, error) {
	query := `
		SELECT id, organization_id, name, document_number, status, created_at, updated_at
		FROM persons
		WHERE organization_id = $1
		ORDER BY name`
	rows, err := m.DB.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var persons []*Person
	for rows.Next() {
		var p Person
		var doc sql.NullString
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &doc, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if doc.Valid {
			p.DocumentNumber = &doc.String
		}
		persons = append(persons, &p)
	}
	return persons, rows.Err()
}

func (m PersonModel) SetStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE persons SET status = $1, updated_at = NOW() WHERE id = $2`
	res, err := m.DB.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

type PersonFaceModel struct {
	DB DBTX
}

func (m PersonFaceModel) Create(ctx context.Context, f *PersonFace) error {
	query := `
		INSERT INTO person_faces (person_id, organization_id, embedding, reliability, status, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return m.DB.QueryRowContext(ctx, query,
		f.PersonID, f.OrganizationID, f.Embedding, f.Reliability, f.Status, f.ImageURL,
	).Scan(&f.ID, &f.CreatedAt)
}

func (m PersonFaceModel) GetByID(ctx context.Context, id int64) (*PersonFace, error) {
	query := `
		SELECT id, person_id, organization_id, embedding, reliability, status, image_url, created_at
		FROM person_faces
		WHERE id = $1`

	var f PersonFace
	var imageURL sql.NullString
	err := m.DB.QueryRowContext(ctx, query, id).
		Scan(&f.ID, &f.PersonID, &f.OrganizationID, &f.Embedding, &f.Reliability, &f.Status, &imageURL, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if imageURL.Valid {
		f.ImageURL = imageURL.String
	}
	return &f, nil
}

func (m PersonFaceModel) ListByPerson(ctx context.Context, personID int64) ([]*PersonFace, error) {
	query := `
		SELECT id, person_id, organization_id, embedding, reliability, status, image_url, created_at
		FROM person_faces
		WHERE person_id = $1`
	rows, err := m.DB.QueryContext(ctx, query, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var faces []*PersonFace
	for rows.Next() {
		var f PersonFace
		var imageURL sql.NullString
		if err := rows.Scan(&f.ID, &f.PersonID, &f.OrganizationID, &f.Embedding, &f.Reliability, &f.Status, &imageURL, &f.CreatedAt); err != nil {
			return nil, err
		}
		if imageURL.Valid {
			f.ImageURL = imageURL.String
		}
		faces = append(faces, &f)
	}
	return faces, rows.Err()
}

// ListActiveEnrolled returns the rows the ANN index is built from: active
// faces of active persons with a non-null embedding.
func (m PersonFaceModel) ListActiveEnrolled(ctx context.Context) ([]EnrolledFace, error) {
	query := `
		SELECT pf.id, p.id, p.name, pf.embedding
		FROM person_faces pf
		JOIN persons p ON p.id = pf.person_id
		WHERE pf.status = 'active'
		  AND p.status = 'active'
		  AND pf.embedding IS NOT NULL`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var faces []EnrolledFace
	for rows.Next() {
		var f EnrolledFace
		if err := rows.Scan(&f.FaceID, &f.PersonID, &f.PersonName, &f.Embedding); err != nil {
			return nil, err
		}
		faces = append(faces, f)
	}
	return faces, rows.Err()
}

func (m PersonFaceModel) SetStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE person_faces SET status = $1 WHERE id = $2`
	res, err := m.DB.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}
