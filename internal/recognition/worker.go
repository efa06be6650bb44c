// Package recognition turns extracted frames into persisted detections: it
// runs the detector, filters face candidates, matches embeddings against the
// ANN index and writes the results.
package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/egrangel/facerecon-sub001/internal/binding"
	"github.com/egrangel/facerecon-sub001/internal/data"
	"github.com/egrangel/facerecon-sub001/internal/detector"
	"github.com/egrangel/facerecon-sub001/internal/faceindex"
	"github.com/egrangel/facerecon-sub001/internal/metrics"
)

// Full frames are saved at most once per second per camera; face crops are
// saved for every persisted detection.
const fullFrameSaveInterval = 1000 * time.Millisecond

// Matcher is the slice of the ANN index the worker uses.
type Matcher interface {
	Search(ctx context.Context, query []float32, k int) []faceindex.Match
}

// EventResolver maps a camera to its active event binding.
type EventResolver interface {
	ActiveEventForCamera(ctx context.Context, cameraID int64) (*data.EventCamera, error)
}

// DetectionStore persists detection rows.
type DetectionStore interface {
	Create(ctx context.Context, d *data.Detection) error
}

// EventPublisher fans persisted detections out to realtime consumers.
// Optional; a nil publisher disables fanout.
type EventPublisher interface {
	Publish(event *DetectionEvent) error
}

// detectionMetadata is the JSON blob stored on detections.metadata.
type detectionMetadata struct {
	BoundingBox             detector.Box `json:"boundingBox"`
	IsKnown                 bool         `json:"isKnown"`
	RecognitionConfidence   float64      `json:"recognitionConfidence"`
	PersonName              *string      `json:"personName"`
	EncodingLength          int          `json:"encodingLength"`
	FaceDetectionConfidence float64      `json:"faceDetectionConfidence"`
	ProcessingTimestamp     string       `json:"processingTimestamp"`
	FullDetectionImageURL   string       `json:"fullDetectionImageUrl,omitempty"`
	FaceIndex               int          `json:"faceIndex"`
	AutoConfirmed           bool         `json:"autoConfirmed,omitempty"`
}

type frameSave struct {
	at  time.Time
	url string
}

// Worker processes frames for all cameras. Safe for concurrent use; one
// instance is shared by every extraction session.
type Worker struct {
	detector   detector.Detector
	matcher    Matcher
	resolver   EventResolver
	detections DetectionStore
	images     *ImageStore
	publisher  EventPublisher

	mu        sync.Mutex
	lastSaved map[int64]frameSave // per camera
}

func NewWorker(d detector.Detector, m Matcher, r EventResolver, store DetectionStore, images *ImageStore, pub EventPublisher) *Worker {
	return &Worker{
		detector:   d,
		matcher:    m,
		resolver:   r,
		detections: store,
		images:     images,
		publisher:  pub,
		lastSaved:  make(map[int64]frameSave),
	}
}

// ProcessFrame analyzes one JPEG frame from a camera. A nonzero eventID is
// authoritative: detections persist under it without consulting the camera
// binding. With a zero eventID the binding decides, and frames from cameras
// without an active event are analyzed but never persisted.
func (w *Worker) ProcessFrame(ctx context.Context, cameraID, organizationID, eventID int64, jpegFrame []byte, capturedAt time.Time) error {
	result, err := w.detector.Detect(ctx, jpegFrame)
	if err != nil {
		metrics.DetectionErrorsTotal.WithLabelValues("detect").Inc()
		return fmt.Errorf("detecting faces: %w", err)
	}

	faces := filterFaces(result.Faces, result.FrameWidth, result.FrameHeight)
	if len(faces) == 0 {
		return nil
	}

	if eventID == 0 {
		ec, err := w.resolver.ActiveEventForCamera(ctx, cameraID)
		if errors.Is(err, binding.ErrNoActiveEvent) {
			log.Printf("[DEBUG] [Recognition] Camera %d has %d face(s) but no active event, skipping", cameraID, len(faces))
			return nil
		}
		if err != nil {
			metrics.DetectionErrorsTotal.WithLabelValues("resolve_event").Inc()
			return fmt.Errorf("resolving event: %w", err)
		}
		eventID = ec.EventID
	}

	epochMs := capturedAt.UnixMilli()
	fullFrameURL := w.saveFullFrameThrottled(cameraID, jpegFrame, faces, capturedAt, epochMs)

	for i, face := range faces {
		if err := w.persistFace(ctx, eventID, cameraID, organizationID, jpegFrame, face, i, capturedAt, epochMs, fullFrameURL); err != nil {
			metrics.DetectionErrorsTotal.WithLabelValues("persist").Inc()
			log.Printf("[ERROR] [Recognition] Persisting face %d on camera %d: %v", i, cameraID, err)
		}
	}
	return nil
}

// saveFullFrameThrottled writes the annotated full frame at most once per
// interval per camera; within the window it reuses the last saved URL so
// every detection row still points at a context image.
func (w *Worker) saveFullFrameThrottled(cameraID int64, jpegFrame []byte, faces []detector.Face, capturedAt time.Time, epochMs int64) string {
	w.mu.Lock()
	last, ok := w.lastSaved[cameraID]
	if ok && capturedAt.Sub(last.at) < fullFrameSaveInterval {
		w.mu.Unlock()
		return last.url
	}
	w.mu.Unlock()

	url, err := w.images.SaveFullFrame(jpegFrame, faces, epochMs)
	if err != nil {
		log.Printf("[ERROR] [Recognition] Saving full frame for camera %d: %v", cameraID, err)
		return last.url
	}

	w.mu.Lock()
	w.lastSaved[cameraID] = frameSave{at: capturedAt, url: url}
	w.mu.Unlock()
	return url
}

func (w *Worker) persistFace(ctx context.Context, eventID, cameraID, organizationID int64, jpegFrame []byte, face detector.Face, faceIndex int, capturedAt time.Time, epochMs int64, fullFrameURL string) error {
	var (
		status       = data.DetectionStatusDetected
		personFaceID *int64
		personName   string
		similarity   float64
		embedding    []byte
	)

	if len(face.Embedding) > 0 {
		started := time.Now()
		matches := w.matcher.Search(ctx, face.Embedding, 1)
		metrics.FaceIndexSearchDuration.Observe(time.Since(started).Seconds())

		if len(matches) > 0 && matches[0].IsMatch {
			m := matches[0]
			id := m.PersonFaceID
			personFaceID = &id
			personName = m.PersonName
			similarity = m.Similarity
			status = data.DetectionStatusRecognized
			if m.Similarity == 1.0 {
				status = data.DetectionStatusConfirmed
			}
		} else {
			// Unknown face: keep the query vector so the detection can
			// be promoted to an enrollment later.
			embedding = faceindex.EncodeVector(face.Embedding)
		}
	}

	imageURL, err := w.images.SaveFaceCrop(jpegFrame, face.Box, epochMs, faceIndex)
	if err != nil {
		log.Printf("[ERROR] [Recognition] Saving face crop: %v", err)
		imageURL = fullFrameURL
	}

	// personName stays null for unknown faces rather than an empty string.
	var namePtr *string
	if personFaceID != nil {
		namePtr = &personName
	}

	meta := detectionMetadata{
		BoundingBox:             face.Box,
		IsKnown:                 personFaceID != nil,
		RecognitionConfidence:   similarity,
		PersonName:              namePtr,
		EncodingLength:          len(face.Embedding),
		FaceDetectionConfidence: face.Confidence,
		ProcessingTimestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		FullDetectionImageURL:   fullFrameURL,
		FaceIndex:               faceIndex,
		AutoConfirmed:           status == data.DetectionStatusConfirmed,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	d := &data.Detection{
		DetectedAt:     capturedAt,
		Confidence:     face.Confidence,
		Status:         status,
		ImageURL:       imageURL,
		Embedding:      embedding,
		Metadata:       string(metaJSON),
		EventID:        eventID,
		PersonFaceID:   personFaceID,
		CameraID:       cameraID,
		OrganizationID: organizationID,
	}
	if err := w.detections.Create(ctx, d); err != nil {
		return fmt.Errorf("creating detection: %w", err)
	}
	metrics.DetectionsPersistedTotal.WithLabelValues(status).Inc()

	if w.publisher != nil {
		event := &DetectionEvent{
			DetectionID:  d.ID,
			EventID:      eventID,
			CameraID:     cameraID,
			Status:       status,
			PersonName:   personName,
			PersonFaceID: personFaceID,
			Similarity:   similarity,
			ImageURL:     imageURL,
			DetectedAt:   capturedAt,
		}
		if err := w.publisher.Publish(event); err != nil {
			log.Printf("[ERROR] [Recognition] Publishing detection %d: %v", d.ID, err)
		}
	}
	return nil
}
