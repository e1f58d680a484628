package faceclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"faceattend/internal/facematch"
	"faceattend/internal/frame"
	"faceattend/internal/metrics"
)

var (
	// ErrModelUnavailable is returned by every extraction when the model bundle failed to load.
	ErrModelUnavailable = errors.New("face recognition model unavailable")
	// ErrServiceBusy is returned when a loaded service temporarily rejects a request.
	ErrServiceBusy = errors.New("face service busy")
)

// ModelState is the lifecycle of the remote model bundle.
type ModelState int

const (
	ModelUnloaded ModelState = iota
	ModelReady
	ModelFailed
)

func (s ModelState) String() string {
	switch s {
	case ModelReady:
		return "ready"
	case ModelFailed:
		return "failed"
	default:
		return "unloaded"
	}
}

// Client calls the face embedding microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool

	mu      sync.Mutex
	state   ModelState
	loadErr error
	dim     int
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

// Load checks the embedding service once and caches the outcome.
// A failed load is not retried; a new Client is required.
func (c *Client) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case ModelReady:
		return nil
	case ModelFailed:
		return c.loadErr
	}

	dim, err := c.health(ctx)
	if err != nil {
		c.state = ModelFailed
		c.loadErr = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		return c.loadErr
	}
	c.state = ModelReady
	c.dim = dim
	return nil
}

// State reports the model lifecycle state.
func (c *Client) State() ModelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether Load succeeded.
func (c *Client) Ready() bool {
	return c.State() == ModelReady
}

// Dim is the descriptor length reported by the loaded model, or facematch.Dim
// before Load succeeds.
func (c *Client) Dim() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dim > 0 {
		return c.dim
	}
	return facematch.Dim
}

func (c *Client) health(ctx context.Context) (int, error) {
	if c.Skip {
		return facematch.Dim, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	var out struct {
		ModelsLoaded *bool `json:"models_loaded"`
		EmbeddingDim int   `json:"embedding_dim"`
	}
	// Older services answer with an empty body.
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.ModelsLoaded != nil && !*out.ModelsLoaded {
		return 0, errors.New("face service reports models not loaded")
	}
	if out.EmbeddingDim <= 0 {
		out.EmbeddingDim = facematch.Dim
	}
	return out.EmbeddingDim, nil
}

// Extract returns the descriptor of the single primary face in f.
// found is false when no face, or more than one face, was detected.
func (c *Client) Extract(ctx context.Context, f frame.Frame) (d facematch.Descriptor, found bool, err error) {
	start := time.Now()
	defer func() {
		result := "face"
		switch {
		case err != nil:
			result = "error"
		case !found:
			result = "no_face"
		}
		metrics.ExtractDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	c.mu.Lock()
	state, loadErr, dim := c.state, c.loadErr, c.dim
	c.mu.Unlock()
	switch state {
	case ModelFailed:
		return nil, false, loadErr
	case ModelUnloaded:
		return nil, false, fmt.Errorf("%w: models not loaded", ErrModelUnavailable)
	}

	if len(f.Data) == 0 {
		return nil, false, nil
	}
	if c.Skip {
		return mockDescriptor(f.Data, dim), true, nil
	}

	body, _ := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(f.Data),
		"mime":  f.MIME,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
		return nil, false, fmt.Errorf("%w: %s", ErrServiceBusy, resp.Status)
	}
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Embedding     []float64 `json:"embedding"`
		FacesDetected int       `json:"faces_detected"`
		Score         float64   `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.FacesDetected != 1 || len(out.Embedding) == 0 {
		return nil, false, nil
	}
	if len(out.Embedding) != dim {
		return nil, false, fmt.Errorf("face service returned %d-dim embedding, want %d", len(out.Embedding), dim)
	}
	return facematch.FromFloat64s(out.Embedding), true, nil
}

// mockDescriptor derives a stable unit-range descriptor from the frame bytes.
func mockDescriptor(data []byte, dim int) facematch.Descriptor {
	d := make(facematch.Descriptor, dim)
	seed := sha256.Sum256(data)
	block := seed
	for i := 0; i < dim; i++ {
		if i > 0 && i%8 == 0 {
			block = sha256.Sum256(block[:])
		}
		off := (i % 8) * 4
		v := binary.BigEndian.Uint32(block[off : off+4])
		d[i] = float32(v)/float32(^uint32(0))*0.2 - 0.1
	}
	return d
}
