package stream

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/egrangel/facerecon-sub001/internal/metrics"
)

const (
	// Global admission: frames in flight across every session, plus a heap
	// ceiling past which new frames are rejected outright.
	maxInFlightFrames = 50
	maxHeapBytes      = 1 << 30 // 1 GiB

	// Heap size past which the health monitor nudges the collector.
	gcHintHeapBytes = 200 << 20

	defaultProcessInterval = 1000 * time.Millisecond

	healthCheckInterval = 60 * time.Second
	idleRestartAfter    = 300 * time.Second
	restartDebounce     = 2 * time.Second

	// Ring memory ceiling; past it the monitor keeps only the newest frames.
	ringTrimBytes = 50 << 20
	ringTrimKeep  = 3
)

// Session ids created by the orchestrator for scheduled events carry the
// event id; manual sessions do not.
var eventSessionPattern = regexp.MustCompile(`^event-(\d+)-camera-\d+-\d+$`)

// ExtractEventID parses the event id out of an orchestrator session id.
// Returns false for manual session ids.
func ExtractEventID(sessionID string) (int64, bool) {
	m := eventSessionPattern.FindStringSubmatch(sessionID)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Service manages every extraction session and the shared frame budget.
type Service struct {
	processor       Processor
	processInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	inFlight atomic.Int64

	monitorQuit chan struct{}
	monitorWG   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewService(processor Processor) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		processor:       processor,
		processInterval: defaultProcessInterval,
		sessions:        make(map[string]*Session),
		monitorQuit:     make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// SetProcessInterval overrides the per-session dispatch throttle. Call
// before any session starts.
func (svc *Service) SetProcessInterval(d time.Duration) {
	if d > 0 {
		svc.processInterval = d
	}
}

// SessionConfig describes an extraction session to start.
type SessionConfig struct {
	ID             string
	CameraID       int64
	OrganizationID int64
	// EventID pins persisted detections to a specific event instead of
	// resolving one from the camera binding. When the session id itself
	// carries an event id, that id is used.
	EventID int64
	URL     string
	// Interval sets the decoder output rate and the dispatch throttle for
	// this session. Zero uses the service default.
	Interval time.Duration
	// VideoOnly keeps the decoder and frame ring running without feeding
	// frames to the recognition pipeline.
	VideoOnly bool
}

func (svc *Service) newSession(cfg SessionConfig) *Session {
	if cfg.EventID == 0 {
		if id, ok := ExtractEventID(cfg.ID); ok {
			cfg.EventID = id
		}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = svc.processInterval
	}
	return &Session{
		ID:             cfg.ID,
		CameraID:       cfg.CameraID,
		OrganizationID: cfg.OrganizationID,
		EventID:        cfg.EventID,
		URL:            cfg.URL,
		svc:            svc,
		interval:       interval,
		videoOnly:      cfg.VideoOnly,
		state:          StateStarting,
	}
}

// StartSession spawns a new extraction session. Starting an id that is
// already active is a no-op.
func (svc *Service) StartSession(cfg SessionConfig) error {
	svc.mu.Lock()
	if _, exists := svc.sessions[cfg.ID]; exists {
		svc.mu.Unlock()
		log.Printf("[Stream] Session %s already active", cfg.ID)
		return nil
	}

	s := svc.newSession(cfg)
	svc.sessions[cfg.ID] = s
	svc.mu.Unlock()

	if err := s.start(); err != nil {
		svc.mu.Lock()
		delete(svc.sessions, cfg.ID)
		svc.mu.Unlock()
		return fmt.Errorf("starting session %s: %w", cfg.ID, err)
	}

	metrics.ActiveSessions.Set(float64(svc.count()))
	log.Printf("[Stream] Session %s started for camera %d", cfg.ID, cfg.CameraID)
	return nil
}

// StopSession terminates a session. Stopping an unknown id succeeds; the
// desired state (not running) already holds.
func (svc *Service) StopSession(sessionID string) error {
	svc.mu.Lock()
	s, exists := svc.sessions[sessionID]
	if exists {
		delete(svc.sessions, sessionID)
	}
	svc.mu.Unlock()
	if !exists {
		return nil
	}

	s.mu.Lock()
	s.state = StateStopping
	s.mu.Unlock()

	s.stopProcess()

	s.mu.Lock()
	s.state = StateStopped
	s.ring = nil
	s.ringBytes = 0
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(svc.count()))
	log.Printf("[Stream] Session %s stopped", sessionID)
	return nil
}

// StopAll terminates every session; used on shutdown.
func (svc *Service) StopAll() {
	svc.mu.Lock()
	ids := make([]string, 0, len(svc.sessions))
	for id := range svc.sessions {
		ids = append(ids, id)
	}
	svc.mu.Unlock()

	for _, id := range ids {
		svc.StopSession(id)
	}
}

func (svc *Service) IsActive(sessionID string) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	_, ok := svc.sessions[sessionID]
	return ok
}

// SessionStats returns the snapshot for one session.
func (svc *Service) SessionStats(sessionID string) (Stats, bool) {
	svc.mu.Lock()
	s, ok := svc.sessions[sessionID]
	svc.mu.Unlock()
	if !ok {
		return Stats{}, false
	}
	return s.snapshot(), true
}

// ListActive returns snapshots for every running session.
func (svc *Service) ListActive() []Stats {
	svc.mu.Lock()
	sessions := make([]*Session, 0, len(svc.sessions))
	for _, s := range svc.sessions {
		sessions = append(sessions, s)
	}
	svc.mu.Unlock()

	stats := make([]Stats, 0, len(sessions))
	for _, s := range sessions {
		stats = append(stats, s.snapshot())
	}
	return stats
}

func (svc *Service) count() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return len(svc.sessions)
}

// dispatch admits a frame against the global budget and hands it to the
// processor on its own goroutine. Returns false when the frame was rejected.
func (svc *Service) dispatch(s *Session, frame []byte) bool {
	if svc.processor == nil {
		return false
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > maxHeapBytes {
		metrics.FramesTotal.WithLabelValues("dropped", "heap").Inc()
		log.Printf("[Stream] Heap at %d MB, rejecting frame from session %s", ms.HeapAlloc>>20, s.ID)
		return false
	}

	// Reserve an in-flight slot atomically so concurrent sessions cannot
	// push the count past the cap.
	for {
		n := svc.inFlight.Load()
		if n >= maxInFlightFrames {
			metrics.FramesTotal.WithLabelValues("dropped", "in_flight").Inc()
			return false
		}
		if svc.inFlight.CompareAndSwap(n, n+1) {
			break
		}
	}
	metrics.ActiveFrameProcesses.Set(float64(svc.inFlight.Load()))

	f := &Frame{
		SessionID:      s.ID,
		CameraID:       s.CameraID,
		OrganizationID: s.OrganizationID,
		EventID:        s.EventID,
		Data:           frame,
		CapturedAt:     time.Now(),
	}
	go func() {
		defer func() {
			svc.inFlight.Add(-1)
			metrics.ActiveFrameProcesses.Set(float64(svc.inFlight.Load()))
		}()
		if err := svc.processor.ProcessFrame(svc.ctx, f); err != nil {
			log.Printf("[ERROR] [Stream] Processing frame from session %s: %v", s.ID, err)
		}
		metrics.FramesTotal.WithLabelValues("processed", "").Inc()
	}()
	return true
}

// StartHealthMonitor launches the periodic supervisor.
func (svc *Service) StartHealthMonitor() {
	svc.monitorWG.Add(1)
	go func() {
		defer svc.monitorWG.Done()
		ticker := time.NewTicker(healthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-svc.monitorQuit:
				return
			case <-ticker.C:
				svc.checkSessions()
			}
		}
	}()
	log.Printf("[Stream] Health monitor started (interval %s)", healthCheckInterval)
}

// Shutdown stops the monitor and every session.
func (svc *Service) Shutdown() {
	close(svc.monitorQuit)
	svc.monitorWG.Wait()
	svc.cancel()
	svc.StopAll()
}

func (svc *Service) checkSessions() {
	svc.mu.Lock()
	sessions := make([]*Session, 0, len(svc.sessions))
	for _, s := range svc.sessions {
		sessions = append(sessions, s)
	}
	svc.mu.Unlock()

	for _, s := range sessions {
		svc.checkSession(s)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > gcHintHeapBytes {
		log.Printf("[Stream] Heap at %d MB, hinting GC", ms.HeapAlloc>>20)
		runtime.GC()
	}
}

func (svc *Service) checkSession(s *Session) {
	s.mu.Lock()
	state := s.state
	lastFrame := s.lastFrameAt
	buffered := s.ringBytes
	lastRestart := s.lastRestartAt
	s.mu.Unlock()

	if state != StateRunning && state != StateFailed {
		return
	}

	// Oversized ring: keep only the newest frames.
	if buffered > ringTrimBytes {
		s.mu.Lock()
		for len(s.ring) > ringTrimKeep {
			s.ringBytes -= len(s.ring[0])
			s.ring = s.ring[1:]
		}
		s.mu.Unlock()
		log.Printf("[Stream] Session %s: trimmed frame buffer to %d frames", s.ID, ringTrimKeep)
	}

	dead := !s.processAlive()
	idle := time.Since(lastFrame) > idleRestartAfter
	if !dead && !idle {
		return
	}
	if time.Since(lastRestart) < restartDebounce {
		return
	}

	reason := "idle"
	if dead {
		reason = "process_exit"
	}
	log.Printf("[Stream] Session %s unhealthy (%s), restarting", s.ID, reason)
	metrics.SessionRestartsTotal.WithLabelValues(reason).Inc()
	svc.restartSession(s)
}

func (svc *Service) restartSession(s *Session) {
	s.stopProcess()

	// Let the camera tear down the old RTSP/TCP session before the new
	// decoder dials in.
	time.Sleep(restartDebounce)

	s.mu.Lock()
	s.restarts++
	s.lastRestartAt = time.Now()
	s.ring = s.ring[:0]
	s.ringBytes = 0
	err := s.startLocked()
	s.mu.Unlock()

	if err != nil {
		log.Printf("[ERROR] [Stream] Session %s restart failed: %v", s.ID, err)
	}
}
