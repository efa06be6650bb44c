package stream

import (
	"bufio"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/egrangel/facerecon-sub001/internal/metrics"
)

// Session states.
const (
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopping = "stopping"
	StateFailed   = "failed"
	StateStopped  = "stopped"
)

const (
	ringCapacity = 5

	gracefulStopTimeout = 5 * time.Second
)

// Stats is a point-in-time snapshot of a session.
type Stats struct {
	SessionID       string    `json:"session_id"`
	CameraID        int64     `json:"camera_id"`
	State           string    `json:"state"`
	StartedAt       time.Time `json:"started_at"`
	LastFrameAt     time.Time `json:"last_frame_at"`
	FramesExtracted uint64    `json:"frames_extracted"`
	FramesProcessed uint64    `json:"frames_processed"`
	FramesDropped   uint64    `json:"frames_dropped"`
	Restarts        int       `json:"restarts"`
	BufferedFrames  int       `json:"buffered_frames"`
	BufferedBytes   int       `json:"buffered_bytes"`
}

// Session is one running extraction pipeline. All mutable state is guarded
// by mu; the read loop runs on its own goroutine.
type Session struct {
	ID             string
	CameraID       int64
	OrganizationID int64
	EventID        int64
	URL            string

	svc       *Service
	interval  time.Duration
	videoOnly bool

	mu              sync.Mutex
	state           string
	cmd             *exec.Cmd
	processDone     chan struct{}
	generation      int // bumped on every (re)start so stale read loops exit
	ring            [][]byte
	ringBytes       int
	framesExtracted uint64
	framesProcessed uint64
	framesDropped   uint64
	startedAt       time.Time
	lastFrameAt     time.Time
	lastDispatchAt  time.Time
	restarts        int
	lastRestartAt   time.Time
}

// ffmpegArgs builds the decoder command line: RTSP over TCP, generated PTS,
// a 5 s demux delay cap, frames downscaled to fit 1280x720 without upscaling,
// and JPEG output at one frame per interval.
func ffmpegArgs(url string, interval time.Duration) []string {
	if interval <= 0 {
		interval = defaultProcessInterval
	}
	fps := 1.0 / interval.Seconds()
	return []string{
		"-rtsp_transport", "tcp",
		"-fflags", "+genpts",
		"-max_delay", "5000000",
		"-i", url,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-vf", `scale=w=min(iw\,1280):h=min(ih\,720):force_original_aspect_ratio=decrease`,
		"-r", strconv.FormatFloat(fps, 'g', 4, 64),
		"-q:v", "5",
		"-",
	}
}

// start spawns ffmpeg and the read loop. Caller must not hold s.mu.
func (s *Session) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Session) startLocked() error {
	s.state = StateStarting
	s.generation++
	gen := s.generation

	cmd := exec.Command("ffmpeg", ffmpegArgs(s.URL, s.interval)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.state = StateFailed
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.state = StateFailed
		return err
	}
	if err := cmd.Start(); err != nil {
		s.state = StateFailed
		return err
	}

	// Drain stderr so ffmpeg never blocks on a full pipe.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	s.cmd = cmd
	s.processDone = done
	s.state = StateRunning
	s.startedAt = time.Now()
	s.lastFrameAt = time.Now()

	go s.readLoop(stdout, gen)

	log.Printf("[Stream] Session %s: ffmpeg started (pid %d)", s.ID, cmd.Process.Pid)
	return nil
}

// readLoop pulls ffmpeg stdout through the framer and feeds the ring. Exits
// when the pipe closes or the session is restarted under a new generation.
func (s *Session) readLoop(stdout io.ReadCloser, gen int) {
	framer := &Framer{}
	chunk := make([]byte, 32*1024)

	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			for _, frame := range framer.Append(chunk[:n]) {
				if !s.offerFrame(frame, gen) {
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("[Stream] Session %s: read error: %v", s.ID, err)
			}
			s.markDecoderExit(gen)
			return
		}
	}
}

// markDecoderExit records a decoder that quit on its own. Restarting is the
// health monitor's job; the read loop only flips the state.
func (s *Session) markDecoderExit(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	if s.state == StateRunning || s.state == StateStarting {
		s.state = StateFailed
		log.Printf("[Stream] Session %s: decoder exited", s.ID)
	}
}

// offerFrame stores a frame in the ring and dispatches if the per-session
// throttle allows. Returns false when the session has moved on to a newer
// generation.
func (s *Session) offerFrame(frame []byte, gen int) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}

	s.framesExtracted++
	s.lastFrameAt = time.Now()
	s.pushRingLocked(frame)
	metrics.FramesTotal.WithLabelValues("extracted", "").Inc()

	// Video-only sessions keep the ring warm but never feed recognition.
	if s.videoOnly {
		s.mu.Unlock()
		return true
	}

	now := time.Now()
	if now.Sub(s.lastDispatchAt) < s.interval {
		s.framesDropped++
		metrics.FramesTotal.WithLabelValues("dropped", "throttle").Inc()
		s.mu.Unlock()
		return true
	}

	// Dispatch the newest frame and clear the ring; older frames are
	// superseded.
	latest := s.ring[len(s.ring)-1]
	s.ring = s.ring[:0]
	s.ringBytes = 0
	s.lastDispatchAt = now
	s.mu.Unlock()

	if s.svc.dispatch(s, latest) {
		s.mu.Lock()
		s.framesProcessed++
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		s.framesDropped++
		s.mu.Unlock()
	}
	return true
}

func (s *Session) pushRingLocked(frame []byte) {
	s.ring = append(s.ring, frame)
	s.ringBytes += len(frame)
	for len(s.ring) > ringCapacity {
		s.ringBytes -= len(s.ring[0])
		s.ring = s.ring[1:]
	}
}

// stopProcess asks ffmpeg to exit and kills it after the graceful window.
// Caller must not hold s.mu.
func (s *Session) stopProcess() {
	s.mu.Lock()
	cmd := s.cmd
	done := s.processDone
	s.generation++ // invalidate the read loop
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		cmd.Process.Kill()
		return
	}
	select {
	case <-done:
	case <-time.After(gracefulStopTimeout):
		log.Printf("[Stream] Session %s: ffmpeg did not exit in %s, killing", s.ID, gracefulStopTimeout)
		cmd.Process.Kill()
		<-done
	}
}

// processAlive reports whether the ffmpeg subprocess is still running.
func (s *Session) processAlive() bool {
	s.mu.Lock()
	done := s.processDone
	s.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (s *Session) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		SessionID:       s.ID,
		CameraID:        s.CameraID,
		State:           s.state,
		StartedAt:       s.startedAt,
		LastFrameAt:     s.lastFrameAt,
		FramesExtracted: s.framesExtracted,
		FramesProcessed: s.framesProcessed,
		FramesDropped:   s.framesDropped,
		Restarts:        s.restarts,
		BufferedFrames:  len(s.ring),
		BufferedBytes:   s.ringBytes,
	}
}
