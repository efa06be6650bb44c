package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/egrangel/facerecon-sub001/internal/stream"
)

// FaceIndexController is the slice of the ANN index the handlers expose.
type FaceIndexController interface {
	Rebuild(ctx context.Context) error
	SetThreshold(t float64) error
	Threshold() float64
	Count() int
	Dimension() int
}

type FaceRecognitionHandler struct {
	streams StreamController
	cameras CameraRepo
	index   FaceIndexController
}

func NewFaceRecognitionHandler(streams StreamController, cameras CameraRepo, index FaceIndexController) *FaceRecognitionHandler {
	return &FaceRecognitionHandler{streams: streams, cameras: cameras, index: index}
}

// Start spawns a recognition-only session for a camera.
// POST /api/v1/face-recognition/camera/{cameraID}/start
func (h *FaceRecognitionHandler) Start(w http.ResponseWriter, r *http.Request) {
	cameraID, ok := pathID(r, "cameraID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid camera id")
		return
	}
	camera, err := h.cameras.GetByID(r.Context(), cameraID)
	if err != nil {
		writeError(w, http.StatusNotFound, "camera not found")
		return
	}

	sessionID := fmt.Sprintf("face-rec-%d-%d", camera.ID, time.Now().UnixMilli())
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

// Stop terminates the recognition sessions of a camera.
// POST /api/v1/face-recognition/camera/{cameraID}/stop
func (h *FaceRecognitionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	cameraID, ok := pathID(r, "cameraID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid camera id")
		return
	}

	prefix := fmt.Sprintf("face-rec-%d-", cameraID)
	stopped := 0
	for _, s := range h.streams.ListActive() {
		if strings.HasPrefix(s.SessionID, prefix) {
			if err := h.streams.StopSession(s.SessionID); err == nil {
				stopped++
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"stopped": stopped})
}

// Status reports the recognition sessions of a camera.
// GET /api/v1/face-recognition/camera/{cameraID}/status
func (h *FaceRecognitionHandler) Status(w http.ResponseWriter, r *http.Request) {
	cameraID, ok := pathID(r, "cameraID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid camera id")
		return
	}

	prefix := fmt.Sprintf("face-rec-%d-", cameraID)
	active := false
	for _, s := range h.streams.ListActive() {
		if strings.HasPrefix(s.SessionID, prefix) {
			active = true
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

// IndexStatus reports the ANN index state.
// GET /api/v1/face-recognition/index
func (h *FaceRecognitionHandler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"faces":     h.index.Count(),
		"dimension": h.index.Dimension(),
		"threshold": h.index.Threshold(),
	})
}

// RebuildIndex reloads the ANN index from storage.
// POST /api/v1/face-recognition/index/rebuild
func (h *FaceRecognitionHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.index.Rebuild(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "rebuild failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"faces": h.index.Count()})
}

// SetThreshold adjusts the match similarity gate.
// PUT /api/v1/face-recognition/index/threshold
func (h *FaceRecognitionHandler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Threshold float64 `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := h.index.SetThreshold(req.Threshold); err != nil {
		writeError(w, http.StatusBadRequest, "threshold must be within [0,1]")
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"threshold": req.Threshold})
}
