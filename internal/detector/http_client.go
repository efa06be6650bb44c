package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// HTTPClient talks to the inference sidecar over HTTP. The sidecar loads the
// ONNX model and exposes POST /api/v1/faces/detect returning boxes plus
// embeddings for every face above the configured confidence floor.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu          sync.RWMutex
	initialized bool
	confidence  float64
}

type sidecarFace struct {
	Box        Box       `json:"box"`
	Confidence float64   `json:"detection_probability"`
	Embedding  []float32 `json:"embedding"`
}

type sidecarResponse struct {
	Result      []sidecarFace `json:"result"`
	FrameWidth  int           `json:"frame_width"`
	FrameHeight int           `json:"frame_height"`
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			// Per-call deadlines come from the caller's context; this is
			// only a hard upper bound against a wedged sidecar.
			Timeout: 60 * time.Second,
		},
	}
}

// Initialize probes the sidecar health endpoint. The sidecar only reports
// healthy once the model is loaded.
func (c *HTTPClient) Initialize(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference sidecar unhealthy: status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	log.Printf("[Detector] Initialized against %s", c.baseURL)
	return nil
}

// SetConfidenceThreshold sets the minimum detection probability the sidecar
// should return. Applied on the next Detect call.
func (c *HTTPClient) SetConfidenceThreshold(t float64) {
	c.mu.Lock()
	c.confidence = t
	c.mu.Unlock()
}

// Detect submits one JPEG frame for analysis.
func (c *HTTPClient) Detect(ctx context.Context, jpegFrame []byte) (*Result, error) {
	c.mu.RLock()
	initialized := c.initialized
	confidence := c.confidence
	c.mu.RUnlock()
	if !initialized {
		return nil, ErrNotInitialized
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(jpegFrame); err != nil {
		return nil, err
	}
	if confidence > 0 {
		if err := writer.WriteField("det_prob_threshold", fmt.Sprintf("%g", confidence)); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/faces/detect", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading detect response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detect failed with status %d: %s", resp.StatusCode, respBody)
	}

	var parsed sidecarResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing detect response: %w", err)
	}

	result := &Result{
		Faces:       make([]Face, 0, len(parsed.Result)),
		FrameWidth:  parsed.FrameWidth,
		FrameHeight: parsed.FrameHeight,
	}
	for _, f := range parsed.Result {
		result.Faces = append(result.Faces, Face{
			Box:        f.Box,
			Confidence: f.Confidence,
			Embedding:  f.Embedding,
		})
	}
	return result, nil
}

// Close marks the client uninitialized. The sidecar owns the model lifetime.
func (c *HTTPClient) Close() error {
	c.mu.Lock()
	c.initialized = false
	c.mu.Unlock()
	c.client.CloseIdleConnections()
	return nil
}
