package detector

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/egrangel/facerecon-sub001/internal/metrics"
)

// DefaultCallTimeout bounds a single Detect call. A native engine stuck in
// inference never returns, so the guard abandons the call and recycles the
// engine instead of blocking the frame pipeline forever.
const DefaultCallTimeout = 15 * time.Second

// Guard wraps a Detector with a per-call timeout. After a timeout the
// underlying engine is disposed; the next call reinitializes it before
// detecting.
type Guard struct {
	inner   Detector
	timeout time.Duration

	mu           sync.Mutex
	needsReinit  bool
	timeoutCount int
}

func NewGuard(inner Detector, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Guard{inner: inner, timeout: timeout}
}

func (g *Guard) Initialize(ctx context.Context) error {
	if err := g.inner.Initialize(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	g.needsReinit = false
	g.mu.Unlock()
	return nil
}

func (g *Guard) SetConfidenceThreshold(t float64) {
	g.inner.SetConfidenceThreshold(t)
}

func (g *Guard) Detect(ctx context.Context, jpegFrame []byte) (*Result, error) {
	g.mu.Lock()
	if g.needsReinit {
		log.Printf("[Detector] Reinitializing engine after %d timeout(s)", g.timeoutCount)
		if err := g.inner.Initialize(ctx); err != nil {
			g.mu.Unlock()
			return nil, err
		}
		g.needsReinit = false
	}
	g.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	result, err := g.inner.Detect(callCtx, jpegFrame)
	metrics.DetectorCallDuration.Observe(time.Since(started).Seconds())

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded) {
		metrics.DetectorTimeoutsTotal.Inc()
		g.mu.Lock()
		g.needsReinit = true
		g.timeoutCount++
		g.mu.Unlock()

		// The engine may be wedged mid-inference. Dispose it now; the
		// next call rebuilds from scratch.
		if closeErr := g.inner.Close(); closeErr != nil {
			log.Printf("[Detector] Error disposing engine after timeout: %v", closeErr)
		}
		log.Printf("[Detector] Detect call exceeded %s, engine disposed", g.timeout)
		return nil, ErrDetectTimeout
	}
	return result, err
}

func (g *Guard) Close() error {
	return g.inner.Close()
}
