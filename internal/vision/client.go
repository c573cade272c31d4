package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
)

var ErrDetectorNotReady = errors.New("detector sidecar not ready")

// Client talks to the model sidecar that hosts the face detector and the
// anti-spoof classifier. It satisfies liveness.Loader, liveness.Detector and
// liveness.Classifier.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.DetectorURL,
		token:      cfg.Token,
		logger:     logger.With("component", "detector-client"),
	}
}

func (c *Client) Load(ctx context.Context) (liveness.EngineInfo, error) {
	var info infoResponse
	if err := c.do(ctx, http.MethodGet, "/v1/info", nil, &info); err != nil {
		return liveness.EngineInfo{}, err
	}
	if !info.Ready {
		return liveness.EngineInfo{}, ErrDetectorNotReady
	}

	c.logger.Info("detector sidecar ready",
		"detector_version", info.DetectorVersion,
		"classifier_version", info.ClassifierVersion)

	return liveness.EngineInfo{
		DetectorVersion:   info.DetectorVersion,
		ClassifierVersion: info.ClassifierVersion,
	}, nil
}

func (c *Client) EncodeFrame(frame liveness.Frame) ([]byte, error) {
	return EncodeFrame(frame)
}

func (c *Client) Detect(ctx context.Context, frame liveness.Frame) ([]liveness.Face, error) {
	data, err := EncodeFrame(frame)
	if err != nil {
		return nil, err
	}

	req := detectRequest{
		Image:  base64.StdEncoding.EncodeToString(data),
		Width:  frame.Width,
		Height: frame.Height,
	}

	var resp detectResponse
	if err := c.do(ctx, http.MethodPost, "/v1/detect", req, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("detect", "seq", frame.Seq, "faces", len(resp.Faces))
	return resp.Faces, nil
}

func (c *Client) Classify(ctx context.Context, frame liveness.Frame, face liveness.Face) (liveness.SpoofScores, error) {
	data, err := EncodeFrame(frame)
	if err != nil {
		return liveness.SpoofScores{}, err
	}

	req := classifyRequest{
		Image: base64.StdEncoding.EncodeToString(data),
		Box:   face.Box,
	}

	var resp classifyResponse
	if err := c.do(ctx, http.MethodPost, "/v1/classify", req, &resp); err != nil {
		return liveness.SpoofScores{}, err
	}

	return liveness.SpoofScores{Real: resp.Real, Live: resp.Live}, nil
}

func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var info infoResponse
	if err := c.do(ctx, http.MethodGet, "/v1/info", nil, &info); err != nil {
		return false
	}
	return info.Ready
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("detector request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			return fmt.Errorf("detector returned status %d: %s", resp.StatusCode, er.Error)
		}
		return fmt.Errorf("detector returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
