package data

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrRecordNotFound = errors.New("record not found")
)

// DBTX is a common interface for *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Person status values
const (
	PersonStatusActive       = "active"
	PersonStatusInactive     = "inactive"
	PersonStatusUnidentified = "unidentified"
)

// Detection status values. The recognized/confirmed/rejected labels stay in
// pt-BR for compatibility with the operator UI and existing reports.
const (
	DetectionStatusDetected   = "detected"
	DetectionStatusRecognized = "reconhecida"
	DetectionStatusConfirmed  = "confirmada"
	DetectionStatusRejected   = "rejeitada"
)

// Event recurrence types
const (
	RecurrenceOnce    = "once"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)
