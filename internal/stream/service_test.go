package stream

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEventID(t *testing.T) {
	id, ok := ExtractEventID("event-42-camera-7-1724500000000")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	cases := []string{
		"face-rec-7-1724500000000",
		"stream-7-1724500000000",
		"event-abc-camera-7-1",
		"event-42-camera-7",
		"prefix-event-42-camera-7-1",
		"event-42-camera-7-1-suffix",
	}
	for _, c := range cases {
		_, ok := ExtractEventID(c)
		assert.False(t, ok, c)
	}
}

func TestStopSession_UnknownIDSucceeds(t *testing.T) {
	svc := NewService(nil)
	assert.NoError(t, svc.StopSession("no-such-session"))
}

func TestIsActive_Unknown(t *testing.T) {
	svc := NewService(nil)
	assert.False(t, svc.IsActive("nope"))
}

type collectingProcessor struct {
	mu     sync.Mutex
	frames []*Frame
}

func (p *collectingProcessor) ProcessFrame(_ context.Context, f *Frame) error {
	p.mu.Lock()
	p.frames = append(p.frames, f)
	p.mu.Unlock()
	return nil
}

func (p *collectingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

func newBareSession(svc *Service, id string) *Session {
	return &Session{
		ID:       id,
		CameraID: 7,
		svc:      svc,
		state:    StateRunning,
	}
}

func TestOfferFrame_ThrottlesToOnePerInterval(t *testing.T) {
	proc := &collectingProcessor{}
	svc := NewService(proc)
	s := newBareSession(svc, "stream-7-1")
	s.interval = 50 * time.Millisecond

	// First frame dispatches (lastDispatchAt is zero), the burst after it
	// falls inside the window.
	for i := 0; i < 5; i++ {
		require.True(t, s.offerFrame(jpegBytes(byte(i)), s.generation))
	}

	assert.Eventually(t, func() bool { return proc.count() == 1 }, time.Second, 5*time.Millisecond)

	stats := s.snapshot()
	assert.EqualValues(t, 5, stats.FramesExtracted)
	assert.EqualValues(t, 4, stats.FramesDropped)

	// After the window another frame goes through.
	time.Sleep(60 * time.Millisecond)
	require.True(t, s.offerFrame(jpegBytes(0xAA), s.generation))
	assert.Eventually(t, func() bool { return proc.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestOfferFrame_RingEviction(t *testing.T) {
	svc := NewService(&collectingProcessor{})
	s := newBareSession(svc, "stream-7-2")
	s.interval = time.Hour // never dispatch
	s.lastDispatchAt = time.Now()

	for i := 0; i < 8; i++ {
		s.offerFrame(jpegBytes(byte(i)), s.generation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.ring, ringCapacity)
	// Oldest frames were evicted; the newest survive.
	assert.Equal(t, jpegBytes(7), s.ring[len(s.ring)-1])
	assert.Equal(t, jpegBytes(3), s.ring[0])
}

func TestOfferFrame_StaleGenerationStops(t *testing.T) {
	svc := NewService(&collectingProcessor{})
	s := newBareSession(svc, "stream-7-3")
	s.generation = 2

	assert.False(t, s.offerFrame(jpegBytes(0x01), 1))
	assert.Zero(t, s.snapshot().FramesExtracted)
}

func TestDispatch_InFlightCap(t *testing.T) {
	block := make(chan struct{})
	proc := ProcessorFunc(func(ctx context.Context, f *Frame) error {
		<-block
		return nil
	})
	svc := NewService(proc)
	defer close(block)
	s := newBareSession(svc, "stream-7-4")

	admitted := 0
	for i := 0; i < maxInFlightFrames+10; i++ {
		if svc.dispatch(s, jpegBytes(byte(i))) {
			admitted++
		}
	}
	assert.Equal(t, maxInFlightFrames, admitted)
}

func TestDispatch_NilProcessorRejects(t *testing.T) {
	svc := NewService(nil)
	s := newBareSession(svc, "stream-7-5")
	assert.False(t, svc.dispatch(s, jpegBytes(0x01)))
}

func TestNewSession_DerivesEventIDAndInterval(t *testing.T) {
	svc := NewService(nil)

	s := svc.newSession(SessionConfig{ID: "event-42-camera-7-1"})
	assert.Equal(t, int64(42), s.EventID)
	assert.Equal(t, defaultProcessInterval, s.interval)

	// An explicit event id and interval win over the derived defaults.
	s = svc.newSession(SessionConfig{ID: "face-rec-7-1", EventID: 9, Interval: 200 * time.Millisecond})
	assert.Equal(t, int64(9), s.EventID)
	assert.Equal(t, 200*time.Millisecond, s.interval)

	s = svc.newSession(SessionConfig{ID: "stream-7-1"})
	assert.Zero(t, s.EventID)
}

func TestDispatch_CarriesSessionEventID(t *testing.T) {
	proc := &collectingProcessor{}
	svc := NewService(proc)
	s := newBareSession(svc, "event-42-camera-7-1")
	s.EventID = 42

	require.True(t, svc.dispatch(s, jpegBytes(0x01)))
	require.Eventually(t, func() bool { return proc.count() == 1 }, time.Second, 5*time.Millisecond)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, int64(42), proc.frames[0].EventID)
	assert.Equal(t, "event-42-camera-7-1", proc.frames[0].SessionID)
}

func TestOfferFrame_VideoOnlySkipsDispatch(t *testing.T) {
	proc := &collectingProcessor{}
	svc := NewService(proc)
	s := newBareSession(svc, "event-42-camera-7-1")
	s.videoOnly = true

	for i := 0; i < 3; i++ {
		require.True(t, s.offerFrame(jpegBytes(byte(i)), s.generation))
	}
	time.Sleep(20 * time.Millisecond)

	assert.Zero(t, proc.count())
	stats := s.snapshot()
	assert.EqualValues(t, 3, stats.FramesExtracted)
	assert.Zero(t, stats.FramesProcessed)
	assert.Equal(t, 3, stats.BufferedFrames)
}

func TestDispatch_InFlightCapUnderConcurrency(t *testing.T) {
	block := make(chan struct{})
	proc := ProcessorFunc(func(ctx context.Context, f *Frame) error {
		<-block
		return nil
	})
	svc := NewService(proc)
	defer close(block)
	s := newBareSession(svc, "stream-7-6")

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 30; i++ {
				if svc.dispatch(s, jpegBytes(0x01)) {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// With every processor call blocked, admissions stop exactly at the cap.
	assert.EqualValues(t, maxInFlightFrames, admitted.Load())
	assert.LessOrEqual(t, svc.inFlight.Load(), int64(maxInFlightFrames))
}

func TestReadLoop_DecoderExitMarksFailed(t *testing.T) {
	svc := NewService(nil)
	s := newBareSession(svc, "stream-7-7")

	s.readLoop(io.NopCloser(bytes.NewReader(nil)), s.generation)
	assert.Equal(t, StateFailed, s.snapshot().State)
}

func TestReadLoop_StaleGenerationLeavesState(t *testing.T) {
	svc := NewService(nil)
	s := newBareSession(svc, "stream-7-8")
	s.generation = 2

	s.readLoop(io.NopCloser(bytes.NewReader(nil)), 1)
	assert.Equal(t, StateRunning, s.snapshot().State)
}

func TestRestartSession_WaitsBeforeRedial(t *testing.T) {
	svc := NewService(nil)
	s := newBareSession(svc, "stream-7-9")
	s.interval = time.Second

	started := time.Now()
	svc.restartSession(s)
	assert.GreaterOrEqual(t, time.Since(started), restartDebounce)
	assert.Equal(t, 1, s.snapshot().Restarts)
	s.stopProcess()
}

func TestFfmpegArgs(t *testing.T) {
	args := ffmpegArgs("rtsp://cam.local/stream", time.Second)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-rtsp_transport tcp")
	assert.Contains(t, joined, "-fflags +genpts")
	assert.Contains(t, joined, "-max_delay 5000000")
	assert.Contains(t, joined, "force_original_aspect_ratio=decrease")

	i := slices.Index(args, "-r")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "1", args[i+1])

	// 200 ms cadence is 5 fps.
	args = ffmpegArgs("rtsp://cam.local/stream", 200*time.Millisecond)
	assert.Equal(t, "5", args[slices.Index(args, "-r")+1])
}

func TestSessionStats_Unknown(t *testing.T) {
	svc := NewService(nil)
	_, ok := svc.SessionStats("missing")
	assert.False(t, ok)
	assert.Empty(t, svc.ListActive())
}
