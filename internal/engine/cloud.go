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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/projectsthataremine/narraflow-sub000/internal/audio"
)

// CloudConfig contains cloud engine configuration
type CloudConfig struct {
	// BaseURL is the cloud project root, without a trailing slash.
	BaseURL string
	// FunctionName selects the edge function that fronts the model.
	FunctionName string
	Model        string
	Language     string
	// Format asks the function to run a neural formatting pass over the
	// raw transcript before returning.
	Format      bool
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
	SampleRate  int
}

// Cloud is the client for the hosted transcription function. Every request
// is authenticated with a bearer token obtained from a TokenSource at call
// time, so a signed-out user fails fast without touching the network.
type Cloud struct {
	config     CloudConfig
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64

	mu sync.RWMutex
}

// NewCloud creates a cloud engine client
func NewCloud(config CloudConfig, tokens TokenSource, logger *slog.Logger) (*Cloud, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	if config.FunctionName == "" {
		return nil, fmt.Errorf("function name cannot be empty")
	}

	if tokens == nil {
		return nil, fmt.Errorf("token source cannot be nil")
	}

	if config.MaxAttempts < 1 {
		config.MaxAttempts = 3
	}

	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Cloud{
		config: config,
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

// Name implements Transcriber.
func (c *Cloud) Name() string {
	return "cloud"
}

// Transcribe implements Transcriber. It requires a non-empty access token
// before any network activity and retries failed requests with linear
// backoff. The function returns both the raw transcript and, when a
// formatting pass ran, the formatted variant.
func (c *Cloud) Transcribe(ctx context.Context, samples []float32) (*Result, error) {
	token := c.tokens.AccessToken()
	if token == "" {
		return nil, ErrMissingToken
	}

	wavData, err := audio.EncodeWAV(samples, c.config.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audio: %w", err)
	}

	c.incrementTotal()

	var result *Result
	err = withRetry(ctx, c.logger, c.Name(), c.config.MaxAttempts, c.config.RetryDelay, func() error {
		var reqErr error
		result, reqErr = c.doRequest(ctx, token, wavData)
		return reqErr
	})
	if err != nil {
		c.incrementFailed()
		return nil, fmt.Errorf("cloud transcription: %w", err)
	}

	c.incrementSuccess()
	return result, nil
}

// doRequest performs a single transcription request against the function
func (c *Cloud) doRequest(ctx context.Context, token string, wavData []byte) (*Result, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(wavData); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"model":           c.config.Model,
		"response_format": "json",
		"format":          strconv.FormatBool(c.config.Format),
	}
	if c.config.Language != "" {
		fields["language"] = c.config.Language
	}

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := fmt.Sprintf("%s/functions/v1/%s", c.config.BaseURL, c.config.FunctionName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloud function error (%d): %s", resp.StatusCode, errorMessage(respBody))
	}

	var parsed struct {
		Raw       string `json:"raw"`
		Formatted string `json:"formatted"`
		Text      string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return &Result{
		Raw:       strings.TrimSpace(parsed.Raw),
		Formatted: strings.TrimSpace(parsed.Formatted),
		Text:      strings.TrimSpace(parsed.Text),
	}, nil
}

// errorMessage extracts a message from an error response body, which the
// function returns either as JSON {"error": "..."} or as plain text.
func errorMessage(body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return string(body)
}

func (c *Cloud) incrementTotal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Cloud) incrementSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Cloud) incrementFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

// GetStats returns current client statistics
func (c *Cloud) GetStats() EngineStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return engineStats(c.totalRequests, c.successRequests, c.failedRequests)
}
