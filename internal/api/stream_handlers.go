package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/egrangel/facerecon-sub001/internal/data"
	"github.com/egrangel/facerecon-sub001/internal/stream"
)

// CameraRepo is the camera lookup the stream handlers need.
type CameraRepo interface {
	GetByID(ctx context.Context, id int64) (*data.Camera, error)
}

// StreamController is the slice of the stream service the handlers drive.
type StreamController interface {
	StartSession(cfg stream.SessionConfig) error
	StopSession(sessionID string) error
	IsActive(sessionID string) bool
	SessionStats(sessionID string) (stream.Stats, bool)
	ListActive() []stream.Stats
}

type StreamHandler struct {
	streams StreamController
	cameras CameraRepo
}

func NewStreamHandler(streams StreamController, cameras CameraRepo) *StreamHandler {
	return &StreamHandler{streams: streams, cameras: cameras}
}

func (h *StreamHandler) loadCamera(w http.ResponseWriter, r *http.Request) (*data.Camera, bool) {
	cameraID, ok := pathID(r, "cameraID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid camera id")
		return nil, false
	}
	camera, err := h.cameras.GetByID(r.Context(), cameraID)
	if errors.Is(err, data.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "camera not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load camera")
		return nil, false
	}
	return camera, true
}

// Start spawns a manual extraction session for a camera.
// POST /api/v1/streams/camera/{cameraID}/start
func (h *StreamHandler) Start(w http.ResponseWriter, r *http.Request) {
	camera, ok := h.loadCamera(w, r)
	if !ok {
		return
	}

	sessionID := fmt.Sprintf("stream-%d-%d", camera.ID, time.Now().UnixMilli())
	cfg := stream.SessionConfig{
		ID:             sessionID,
		CameraID:       camera.ID,
		OrganizationID: camera.OrganizationID,
		URL:            camera.EffectiveStreamURL(),
	}
	if err := h.streams.StartSession(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

// Stop terminates every session of a camera. Stopping a camera with no
// sessions succeeds.
// POST /api/v1/streams/camera/{cameraID}/stop
func (h *StreamHandler) Stop(w http.ResponseWriter, r *http.Request) {
	cameraID, ok := pathID(r, "cameraID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid camera id")
		return
	}

	stopped := 0
	for _, s := range h.streams.ListActive() {
		if s.CameraID == cameraID {
			if err := h.streams.StopSession(s.SessionID); err == nil {
				stopped++
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"stopped": stopped})
}

// Status reports the sessions of one camera.
// GET /api/v1/streams/camera/{cameraID}/status
func (h *StreamHandler) Status(w http.ResponseWriter, r *http.Request) {
	cameraID, ok := pathID(r, "cameraID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid camera id")
		return
	}

	sessions := make([]stream.Stats, 0)
	for _, s := range h.streams.ListActive() {
		if s.CameraID == cameraID {
			sessions = append(sessions, s)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":   len(sessions) > 0,
		"sessions": sessions,
	})
}

// List reports every active session.
// GET /api/v1/streams
func (h *StreamHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.streams.ListActive())
}

// StopByID terminates one session. Stopping an unknown id succeeds; the
// desired state already holds.
// POST /api/v1/streams/{sessionID}/stop
func (h *StreamHandler) StopByID(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.streams.StopSession(sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stop session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// StatusByID reports one session.
// GET /api/v1/streams/{sessionID}/status
func (h *StreamHandler) StatusByID(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	stats, ok := h.streams.SessionStats(sessionID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": true, "session": stats})
}
