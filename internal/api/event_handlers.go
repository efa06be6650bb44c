package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/egrangel/facerecon-sub001/internal/data"
)

// EventRepo is the event storage the handlers use.
type EventRepo interface {
	GetByID(ctx context.Context, id int64) (*data.Event, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// DetectionRepo is the detection storage the review endpoints use.
type DetectionRepo interface {
	GetByID(ctx context.Context, id int64) (*data.Detection, error)
	ListByEventWindow(ctx context.Context, eventID int64, from, to time.Time) ([]*data.Detection, error)
	SetStatus(ctx context.Context, id int64, status string) error
}

// OrchestratorControl is the manual-override surface of the orchestrator.
type OrchestratorControl interface {
	ManuallyStartEvent(ctx context.Context, eventID int64) error
	ManuallyStopEvent(ctx context.Context, eventID int64) error
	HandleEventStatusChange(ctx context.Context, eventID int64, isActive bool) error
}

type EventHandler struct {
	events       EventRepo
	detections   DetectionRepo
	orchestrator OrchestratorControl
}

func NewEventHandler(events EventRepo, detections DetectionRepo, orchestrator OrchestratorControl) *EventHandler {
	return &EventHandler{events: events, detections: detections, orchestrator: orchestrator}
}

// Start forces an event's sessions up regardless of schedule.
// POST /api/v1/events/{eventID}/start
func (h *EventHandler) Start(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	if err := h.orchestrator.ManuallyStartEvent(r.Context(), eventID); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to start event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// Stop tears an event's sessions down. A no-op for stopped events.
// POST /api/v1/events/{eventID}/stop
func (h *EventHandler) Stop(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	if err := h.orchestrator.ManuallyStopEvent(r.Context(), eventID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stop event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// SetStatus toggles isActive and lets the orchestrator react immediately
// instead of waiting for its next tick.
// PATCH /api/v1/events/{eventID}/status
func (h *EventHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "is_active is required")
		return
	}

	if err := h.events.SetActive(r.Context(), eventID, *req.IsActive); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	if err := h.orchestrator.HandleEventStatusChange(r.Context(), eventID, *req.IsActive); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to apply status change")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_active": *req.IsActive})
}

// Detections lists an event's detections inside a time window.
// GET /api/v1/events/{eventID}/detections?from=RFC3339&to=RFC3339
func (h *EventHandler) Detections(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	now := time.Now()
	from, to := now.Add(-24*time.Hour), now
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = parsed
	}

	detections, err := h.detections.ListByEventWindow(r.Context(), eventID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list detections")
		return
	}
	if detections == nil {
		detections = []*data.Detection{}
	}
	writeJSON(w, http.StatusOK, detections)
}

// ReviewDetection applies an operator verdict to a detection. Only manual
// confirmation and rejection are allowed here; the automatic statuses are
// owned by the pipeline.
// PATCH /api/v1/detections/{detectionID}/status
func (h *EventHandler) ReviewDetection(w http.ResponseWriter, r *http.Request) {
	detectionID, ok := pathID(r, "detectionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid detection id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Status != data.DetectionStatusConfirmed && req.Status != data.DetectionStatusRejected {
		writeError(w, http.StatusBadRequest, "status must be confirmada or rejeitada")
		return
	}

	if err := h.detections.SetStatus(r.Context(), detectionID, req.Status); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "detection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update detection")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}
