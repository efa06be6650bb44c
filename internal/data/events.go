package data

import (
	"context"
	"database/sql"
	"time"
)

// Event is a schedulable capture window. StartTime and EndTime are local
// HH:MM strings; WeekDays is either a JSON array or a comma list of weekday
// names (see scheduler.ParseWeekDays).
type Event struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	IsScheduled    bool       `json:"is_scheduled"`
	IsActive       bool       `json:"is_active"`
	RecurrenceType string     `json:"recurrence_type"`
	ScheduledDate  *time.Time `json:"scheduled_date,omitempty"`
	StartTime      *string    `json:"start_time,omitempty"`
	EndTime        *string    `json:"end_time,omitempty"`
	WeekDays       *string    `json:"week_days,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// EventCamera binds an Event to a Camera. An event fans out to the set of
// its active bindings.
type EventCamera struct {
	ID       int64 `json:"id"`
	EventID  int64 `json:"event_id"`
	CameraID int64 `json:"camera_id"`
	IsActive bool  `json:"is_active"`
}

type EventModel struct {
	DB DBTX
}

const eventColumns = `id, organization_id, name, type, is_scheduled, is_active,
	recurrence_type, scheduled_date, start_time, end_time, week_days, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var e Event
	var scheduledDate sql.NullTime
	var startTime, endTime, weekDays sql.NullString
	err := row.Scan(
		&e.ID, &e.OrganizationID, &e.Name, &e.Type, &e.IsScheduled, &e.IsActive,
		&e.RecurrenceType, &scheduledDate, &startTime, &endTime, &weekDays,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if scheduledDate.Valid {
		e.ScheduledDate = &scheduledDate.Time
	}
	if startTime.Valid {
		e.StartTime = &startTime.String
	}
	if endTime.Valid {
		e.EndTime = &endTime.String
	}
	if weekDays.Valid {
		e.WeekDays = &weekDays.String
	}
	return &e, nil
}

func (m EventModel) Create(ctx context.Context, e *Event) error {
	query := `
		INSERT INTO events (organization_id, name, type, is_scheduled, is_active,
			recurrence_type, scheduled_date, start_time, end_time, week_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	return m.DB.QueryRowContext(ctx, query,
		e.OrganizationID, e.Name, e.Type, e.IsScheduled, e.IsActive,
		e.RecurrenceType, e.ScheduledDate, e.StartTime, e.EndTime, e.WeekDays,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func (m EventModel) GetByID(ctx context.Context, id int64) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(m.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return e, err
}

// ListScheduled returns events eligible for orchestration: scheduled type,
// flagged scheduled, and active.
func (m EventModel) ListScheduled(ctx context.Context) ([]*Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE is_scheduled = true AND is_active = true AND type = 'scheduled'
		ORDER BY id`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (m EventModel) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE events SET is_active = $1, updated_at = NOW() WHERE id = $2`
	res, err := m.DB.ExecContext(ctx, query, active, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

type EventCameraModel struct {
	DB DBTX
}

func (m EventCameraModel) Create(ctx context.Context, ec *EventCamera) error {
	query := `
		INSERT INTO event_cameras (event_id, camera_id, is_active)
		VALUES ($1, $2, $3)
		RETURNING id`
	return m.DB.QueryRowContext(ctx, query, ec.EventID, ec.CameraID, ec.IsActive).Scan(&ec.ID)
}

// FindActiveByEventID returns the active camera bindings an event fans out to.
func (m EventCameraModel) FindActiveByEventID(ctx context.Context, eventID int64) ([]*EventCamera, error) {
	query := `
		SELECT id, event_id, camera_id, is_active
		FROM event_cameras
		WHERE event_id = $1 AND is_active = true`
	return m.list(ctx, query, eventID)
}

// FindByCameraID returns all bindings for a camera, active or not. The
// binding service filters on is_active itself.
func (m EventCameraModel) FindByCameraID(ctx context.Context, cameraID int64) ([]*EventCamera, error) {
	query := `
		SELECT id, event_id, camera_id, is_active
		FROM event_cameras
		WHERE camera_id = $1`
	return m.list(ctx, query, cameraID)
}

func (m EventCameraModel) list(ctx context.Context, query string, arg any) ([]*EventCamera, error) {
	rows, err := m.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []*EventCamera
	for rows.Next() {
		var ec EventCamera
		if err := rows.Scan(&ec.ID, &ec.EventID, &ec.CameraID, &ec.IsActive); err != nil {
			return nil, err
		}
		bindings = append(bindings, &ec)
	}
	return bindings, rows.Err()
}
