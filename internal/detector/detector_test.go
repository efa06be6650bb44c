package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSidecar(t *testing.T, faces []sidecarFace) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/faces/detect", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sidecarResponse{
			Result:      faces,
			FrameWidth:  1920,
			FrameHeight: 1080,
		})
	})
	return httptest.NewServer(mux)
}

func TestHTTPClient_Detect(t *testing.T) {
	srv := newSidecar(t, []sidecarFace{
		{Box: Box{X: 10, Y: 20, Width: 100, Height: 120}, Confidence: 0.92, Embedding: []float32{0.1, 0.2}},
	})
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	require.NoError(t, c.Initialize(context.Background()))

	result, err := c.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xD9})
	require.NoError(t, err)
	require.Len(t, result.Faces, 1)
	assert.Equal(t, 100, result.Faces[0].Box.Width)
	assert.Equal(t, 0.92, result.Faces[0].Confidence)
	assert.Equal(t, []float32{0.1, 0.2}, result.Faces[0].Embedding)
	assert.Equal(t, 1920, result.FrameWidth)
}

func TestHTTPClient_DetectBeforeInitialize(t *testing.T) {
	c := NewHTTPClient("http://localhost:1", "")
	_, err := c.Detect(context.Background(), []byte{0xFF, 0xD8})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestHTTPClient_SidecarError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/faces/detect", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.Detect(context.Background(), []byte{0xFF, 0xD8})
	assert.ErrorContains(t, err, "status 503")
}

// slowDetector blocks until its context is cancelled.
type slowDetector struct {
	initCalls  atomic.Int32
	closeCalls atomic.Int32
	delay      time.Duration
}

func (d *slowDetector) Initialize(ctx context.Context) error {
	d.initCalls.Add(1)
	return nil
}

func (d *slowDetector) Detect(ctx context.Context, _ []byte) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d.delay):
		return &Result{}, nil
	}
}

func (d *slowDetector) SetConfidenceThreshold(float64) {}

func (d *slowDetector) Close() error {
	d.closeCalls.Add(1)
	return nil
}

func TestGuard_TimeoutDisposesAndReinitializes(t *testing.T) {
	inner := &slowDetector{delay: time.Hour}
	g := NewGuard(inner, 30*time.Millisecond)
	require.NoError(t, g.Initialize(context.Background()))

	_, err := g.Detect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDetectTimeout)
	assert.Equal(t, int32(1), inner.closeCalls.Load())

	// Engine recovers on the next call: fast now, and reinitialized first.
	inner.delay = 0
	_, err = g.Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.initCalls.Load())
}

func TestGuard_NoTimeoutPassesThrough(t *testing.T) {
	inner := &slowDetector{delay: 0}
	g := NewGuard(inner, time.Second)
	require.NoError(t, g.Initialize(context.Background()))

	result, err := g.Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, int32(0), inner.closeCalls.Load())
	assert.Equal(t, int32(1), inner.initCalls.Load())
}
