package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/projectsthataremine/narraflow-sub000/internal/audio"
)

// healthCheckTimeout bounds the readiness probe of the local model server.
const healthCheckTimeout = 5 * time.Second

// LocalConfig contains local engine configuration
type LocalConfig struct {
	// ServerURL is the base URL of the locally running model server.
	ServerURL   string
	Model       string
	Language    string
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
	SampleRate  int
}

// Local is the client for the local model server: a separately managed OS
// process exposing an OpenAI-compatible transcription endpoint. The server
// never runs a formatting pass, so results are always raw.
type Local struct {
	config     LocalConfig
	httpClient *http.Client
	logger     *slog.Logger

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64

	mu sync.RWMutex
}

// EngineStats represents engine client statistics
type EngineStats struct {
	TotalRequests   uint64  `json:"total_requests"`
	SuccessRequests uint64  `json:"success_requests"`
	FailedRequests  uint64  `json:"failed_requests"`
	SuccessRate     float64 `json:"success_rate"`
}

// NewLocal creates a local engine client
func NewLocal(config LocalConfig, logger *slog.Logger) (*Local, error) {
	if config.ServerURL == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}

	if config.MaxAttempts < 1 {
		config.MaxAttempts = 2
	}

	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}

	return &Local{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

// Name implements Transcriber.
func (l *Local) Name() string {
	return "local"
}

// Healthy probes the model server's health endpoint. A 200 within the
// probe timeout means the server is ready; anything else, including a slow
// or absent server, means not ready.
func (l *Local) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.config.ServerURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Transcribe implements Transcriber. The audio is encoded as 16-bit PCM
// WAV and posted as multipart form data; any failure (network error or
// non-2xx) is retried with linear backoff before the last error surfaces.
func (l *Local) Transcribe(ctx context.Context, samples []float32) (*Result, error) {
	wavData, err := audio.EncodeWAV(samples, l.config.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audio: %w", err)
	}

	l.incrementTotal()

	var text string
	err = withRetry(ctx, l.logger, l.Name(), l.config.MaxAttempts, l.config.RetryDelay, func() error {
		var reqErr error
		text, reqErr = l.doRequest(ctx, wavData)
		return reqErr
	})
	if err != nil {
		l.incrementFailed()
		return nil, fmt.Errorf("local transcription: %w", err)
	}

	l.incrementSuccess()

	text = strings.TrimSpace(text)
	return &Result{Raw: text, Text: text}, nil
}

// doRequest performs a single transcription request against the server
func (l *Local) doRequest(ctx context.Context, wavData []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(wavData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("failed to write form field: %w", err)
	}

	if l.config.Model != "" {
		if err := writer.WriteField("model", l.config.Model); err != nil {
			return "", fmt.Errorf("failed to write form field: %w", err)
		}
	}

	if l.config.Language != "" {
		if err := writer.WriteField("language", l.config.Language); err != nil {
			return "", fmt.Errorf("failed to write form field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := l.config.ServerURL + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("model server error (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return parsed.Text, nil
}

func (l *Local) incrementTotal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalRequests++
}

func (l *Local) incrementSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successRequests++
}

func (l *Local) incrementFailed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failedRequests++
}

// GetStats returns current client statistics
func (l *Local) GetStats() EngineStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return engineStats(l.totalRequests, l.successRequests, l.failedRequests)
}

func engineStats(total, success, failed uint64) EngineStats {
	successRate := float64(0)
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
	}

	return EngineStats{
		TotalRequests:   total,
		SuccessRequests: success,
		FailedRequests:  failed,
		SuccessRate:     successRate,
	}
}
