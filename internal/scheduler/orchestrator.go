package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/egrangel/facerecon-sub001/internal/data"
	"github.com/egrangel/facerecon-sub001/internal/metrics"
	"github.com/egrangel/facerecon-sub001/internal/stream"
)

const tickInterval = 60 * time.Second

// EventRepo is the slice of the event model the orchestrator needs.
type EventRepo interface {
	ListScheduled(ctx context.Context) ([]*data.Event, error)
	GetByID(ctx context.Context, id int64) (*data.Event, error)
}

// EventCameraRepo lists the active camera bindings of an event.
type EventCameraRepo interface {
	FindActiveByEventID(ctx context.Context, eventID int64) ([]*data.EventCamera, error)
}

// CameraRepo loads cameras for URL resolution.
type CameraRepo interface {
	GetByID(ctx context.Context, id int64) (*data.Camera, error)
}

// StreamService starts and stops extraction sessions.
type StreamService interface {
	StartSession(cfg stream.SessionConfig) error
	StopSession(sessionID string) error
}

// Invalidator evicts cached camera bindings after event state changes.
// Optional; nil disables it.
type Invalidator interface {
	Invalidate(ctx context.Context, cameraID int64)
}

type sessionKey struct {
	eventID  int64
	cameraID int64
}

type sessionPair struct {
	videoSessionID   string
	faceRecSessionID string
}

// Orchestrator evaluates event schedules every minute and reconciles the set
// of running sessions against what the schedules say should be running.
type Orchestrator struct {
	events      EventRepo
	bindings    EventCameraRepo
	cameras     CameraRepo
	streams     StreamService
	invalidator Invalidator

	mu     sync.Mutex
	active map[sessionKey]sessionPair

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewOrchestrator(events EventRepo, bindings EventCameraRepo, cameras CameraRepo, streams StreamService, invalidator Invalidator) *Orchestrator {
	return &Orchestrator{
		events:      events,
		bindings:    bindings,
		cameras:     cameras,
		streams:     streams,
		invalidator: invalidator,
		active:      make(map[sessionKey]sessionPair),
		quit:        make(chan struct{}),
	}
}

// Start evaluates once immediately and then every tick. Errors never stop
// the loop; a failed evaluation is retried on the next tick.
func (o *Orchestrator) Start(ctx context.Context) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.evaluate(ctx, time.Now())

		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-o.quit:
				return
			case <-ticker.C:
				o.evaluate(ctx, time.Now())
			}
		}
	}()
	log.Printf("[Orchestrator] Started (tick %s)", tickInterval)
}

// Stop halts the tick loop and tears down every session it started.
func (o *Orchestrator) Stop() {
	close(o.quit)
	o.wg.Wait()

	o.mu.Lock()
	keys := make([]sessionKey, 0, len(o.active))
	for k := range o.active {
		keys = append(keys, k)
	}
	o.mu.Unlock()

	for _, k := range keys {
		o.stopCameraSession(k)
	}
	log.Printf("[Orchestrator] Stopped")
}

func (o *Orchestrator) evaluate(ctx context.Context, now time.Time) {
	metrics.OrchestratorTicksTotal.Inc()

	events, err := o.events.ListScheduled(ctx)
	if err != nil {
		log.Printf("[ERROR] [Orchestrator] Loading scheduled events: %v", err)
		return
	}

	for _, e := range events {
		should := ShouldBeActive(e, now)
		current := o.eventActive(e.ID)

		switch {
		case should && !current:
			o.startEvent(ctx, e)
		case !should && current:
			o.stopEvent(e.ID)
		}
	}
}

func (o *Orchestrator) eventActive(eventID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k := range o.active {
		if k.eventID == eventID {
			return true
		}
	}
	return false
}

// startEvent starts sessions for every active camera binding of the event.
func (o *Orchestrator) startEvent(ctx context.Context, e *data.Event) {
	bindings, err := o.bindings.FindActiveByEventID(ctx, e.ID)
	if err != nil {
		log.Printf("[ERROR] [Orchestrator] Loading cameras for event %d: %v", e.ID, err)
		return
	}
	if len(bindings) == 0 {
		log.Printf("[Orchestrator] Event %d (%s) is due but has no active cameras", e.ID, e.Name)
		return
	}

	for _, b := range bindings {
		if err := o.startCameraForEvent(ctx, e, b.CameraID); err != nil {
			log.Printf("[ERROR] [Orchestrator] Starting camera %d for event %d: %v", b.CameraID, e.ID, err)
		}
	}
}

// startCameraForEvent starts the paired video and face-recognition sessions
// for one (event, camera). Already-running pairs are left alone.
func (o *Orchestrator) startCameraForEvent(ctx context.Context, e *data.Event, cameraID int64) error {
	key := sessionKey{eventID: e.ID, cameraID: cameraID}

	o.mu.Lock()
	if _, running := o.active[key]; running {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	camera, err := o.cameras.GetByID(ctx, cameraID)
	if err != nil {
		return fmt.Errorf("loading camera: %w", err)
	}
	url := camera.EffectiveStreamURL()

	epochMs := time.Now().UnixMilli()
	pair := sessionPair{
		videoSessionID:   fmt.Sprintf("event-%d-camera-%d-%d", e.ID, cameraID, epochMs),
		faceRecSessionID: fmt.Sprintf("face-rec-%d-%d", cameraID, epochMs),
	}

	// The video session only keeps decoded frames available; recognition
	// runs exclusively on the face-rec session so each face is persisted
	// once per (event, camera).
	video := stream.SessionConfig{
		ID:             pair.videoSessionID,
		CameraID:       cameraID,
		OrganizationID: e.OrganizationID,
		URL:            url,
		VideoOnly:      true,
	}
	faceRec := stream.SessionConfig{
		ID:             pair.faceRecSessionID,
		CameraID:       cameraID,
		OrganizationID: e.OrganizationID,
		EventID:        e.ID,
		URL:            url,
	}

	if err := o.streams.StartSession(video); err != nil {
		return fmt.Errorf("starting video session: %w", err)
	}
	if err := o.streams.StartSession(faceRec); err != nil {
		o.streams.StopSession(pair.videoSessionID)
		return fmt.Errorf("starting face-rec session: %w", err)
	}

	o.mu.Lock()
	o.active[key] = pair
	o.mu.Unlock()

	if o.invalidator != nil {
		o.invalidator.Invalidate(ctx, cameraID)
	}
	log.Printf("[Orchestrator] Started event %d on camera %d (%s, %s)",
		e.ID, cameraID, pair.videoSessionID, pair.faceRecSessionID)
	return nil
}

func (o *Orchestrator) stopEvent(eventID int64) {
	o.mu.Lock()
	keys := make([]sessionKey, 0)
	for k := range o.active {
		if k.eventID == eventID {
			keys = append(keys, k)
		}
	}
	o.mu.Unlock()

	for _, k := range keys {
		o.stopCameraSession(k)
	}
}

func (o *Orchestrator) stopCameraSession(key sessionKey) {
	o.mu.Lock()
	pair, ok := o.active[key]
	if ok {
		delete(o.active, key)
	}
	o.mu.Unlock()
	if !ok {
		return
	}

	if err := o.streams.StopSession(pair.videoSessionID); err != nil {
		log.Printf("[ERROR] [Orchestrator] Stopping session %s: %v", pair.videoSessionID, err)
	}
	if err := o.streams.StopSession(pair.faceRecSessionID); err != nil {
		log.Printf("[ERROR] [Orchestrator] Stopping session %s: %v", pair.faceRecSessionID, err)
	}

	if o.invalidator != nil {
		o.invalidator.Invalidate(context.Background(), key.cameraID)
	}
	log.Printf("[Orchestrator] Stopped event %d on camera %d", key.eventID, key.cameraID)
}

// ManuallyStartEvent starts sessions for an event regardless of its
// schedule. Already-running pairs are untouched.
func (o *Orchestrator) ManuallyStartEvent(ctx context.Context, eventID int64) error {
	e, err := o.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	o.startEvent(ctx, e)
	return nil
}

// ManuallyStopEvent stops every session of the event. Stopping an event with
// no sessions is a no-op.
func (o *Orchestrator) ManuallyStopEvent(ctx context.Context, eventID int64) error {
	o.stopEvent(eventID)
	return nil
}

// HandleEventStatusChange reacts to an event being toggled without waiting
// for the next tick: deactivation stops its sessions, activation re-runs the
// schedule check immediately.
func (o *Orchestrator) HandleEventStatusChange(ctx context.Context, eventID int64, isActive bool) error {
	if !isActive {
		o.stopEvent(eventID)
		return nil
	}

	e, err := o.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if ShouldBeActive(e, time.Now()) {
		o.startEvent(ctx, e)
	}
	return nil
}

// ActiveSessionCount returns the number of (event, camera) pairs running.
func (o *Orchestrator) ActiveSessionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}
