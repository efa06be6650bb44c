package data

import (
	"context"
	"database/sql"
	"time"
)

// Detection is one persisted observation of a face. PersonFaceID is nil for
// unrecognized faces, in which case Embedding carries the query vector that
// produced the detection so the face can be promoted later.
type Detection struct {
	ID             int64     `json:"id"`
	DetectedAt     time.Time `json:"detected_at"`
	Confidence     float64   `json:"confidence"`
	Status         string    `json:"status"`
	ImageURL       string    `json:"image_url"`
	Embedding      []byte    `json:"-"`
	Metadata       string    `json:"metadata"`
	EventID        int64     `json:"event_id"`
	PersonFaceID   *int64    `json:"person_face_id,omitempty"`
	CameraID       int64     `json:"camera_id"`
	OrganizationID int64     `json:"organization_id"`
}

type DetectionModel struct {
	DB DBTX
}

func (m DetectionModel) Create(ctx context.Context, d *Detection) error {
	query := `
		INSERT INTO detections (detected_at, confidence, status, image_url, embedding,
			metadata, event_id, person_face_id, camera_id, organization_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	return m.DB.QueryRowContext(ctx, query,
		d.DetectedAt, d.Confidence, d.Status, d.ImageURL, d.Embedding,
		d.Metadata, d.EventID, d.PersonFaceID, d.CameraID, d.OrganizationID,
	).Scan(&d.ID)
}

func (m DetectionModel) GetByID(ctx context.Context, id int64) (*Detection, error) {
	query := `
		SELECT id, detected_at, confidence, status, image_url, embedding,
		       metadata, event_id, person_face_id, camera_id, organization_id
		FROM detections
		WHERE id = $1`
	d, err := m.scanOne(m.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return d, err
}

func (m DetectionModel) ListByPersonFace(ctx context.Context, personFaceID int64) ([]*Detection, error) {
	query := `
		SELECT id, detected_at, confidence, status, image_url, embedding,
		       metadata, event_id, person_face_id, camera_id, organization_id
		FROM detections
		WHERE person_face_id = $1
		ORDER BY detected_at DESC`
	return m.list(ctx, query, personFaceID)
}

// ListByEventWindow supports the report queries: detections for an event
// inside a wall-clock window, newest first.
func (m DetectionModel) ListByEventWindow(ctx context.Context, eventID int64, from, to time.Time) ([]*Detection, error) {
	query := `
		SELECT id, detected_at, confidence, status, image_url, embedding,
		       metadata, event_id, person_face_id, camera_id, organization_id
		FROM detections
		WHERE event_id = $1 AND detected_at >= $2 AND detected_at < $3
		ORDER BY detected_at DESC`
	return m.list(ctx, query, eventID, from, to)
}

// SetStatus applies an operator-driven status change. Detections are
// otherwise append-only.
func (m DetectionModel) SetStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE detections SET status = $1 WHERE id = $2`
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

func (m DetectionModel) scanOne(row *sql.Row) (*Detection, error) {
	var d Detection
	var faceID sql.NullInt64
	err := row.Scan(
		&d.ID, &d.DetectedAt, &d.Confidence, &d.Status, &d.ImageURL, &d.Embedding,
		&d.Metadata, &d.EventID, &faceID, &d.CameraID, &d.OrganizationID,
	)
	if err != nil {
		return nil, err
	}
	if faceID.Valid {
		d.PersonFaceID = &faceID.Int64
	}
	return &d, nil
}

func (m DetectionModel) list(ctx context.Context, query string, args ...any) ([]*Detection, error) {
	rows, err := m.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var detections []*Detection
	for rows.Next() {
		var d Detection
		var faceID sql.NullInt64
		if err := rows.Scan(
			&d.ID, &d.DetectedAt, &d.Confidence, &d.Status, &d.ImageURL, &d.Embedding,
			&d.Metadata, &d.EventID, &faceID, &d.CameraID, &d.OrganizationID,
		); err != nil {
			return nil, err
		}
		if faceID.Valid {
			d.PersonFaceID = &faceID.Int64
		}
		detections = append(detections, &d)
	}
	return detections, rows.Err()
}
