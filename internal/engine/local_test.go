package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestLocal(t *testing.T, serverURL string) *Local {
	t.Helper()

	l, err := NewLocal(LocalConfig{
		ServerURL:   serverURL,
		Model:       "base",
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
		SampleRate:  16000,
	}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create local engine: %v", err)
	}
	return l
}

func TestLocalTranscribe(t *testing.T) {
	var gotPath, gotFormat, gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
		}
		gotFormat = r.FormValue("response_format")
		gotModel = r.FormValue("model")

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file part: %v", err)
		} else {
			file.Close()
			if header.Filename != "audio.wav" {
				t.Errorf("Expected filename audio.wav, got %s", header.Filename)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "  hello world  "}`))
	}))
	defer server.Close()

	l := newTestLocal(t, server.URL)
	result, err := l.Transcribe(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if gotPath != "/v1/audio/transcriptions" {
		t.Errorf("Expected transcription path, got %s", gotPath)
	}
	if gotFormat != "json" {
		t.Errorf("Expected response_format json, got %s", gotFormat)
	}
	if gotModel != "base" {
		t.Errorf("Expected model base, got %s", gotModel)
	}
	if result.Raw != "hello world" || result.Text != "hello world" {
		t.Errorf("Expected trimmed transcript, got %+v", result)
	}
	if result.NeuralFormatting() {
		t.Error("Local engine should never report neural formatting")
	}
}

func TestLocalTranscribeRetriesOnFailure(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text": "second try"}`))
	}))
	defer server.Close()

	l := newTestLocal(t, server.URL)
	result, err := l.Transcribe(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if requests != 2 {
		t.Errorf("Expected 2 requests, got %d", requests)
	}
	if result.Text != "second try" {
		t.Errorf("Expected transcript from retry, got %q", result.Text)
	}
}

func TestLocalTranscribeExhaustsRetries(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	l := newTestLocal(t, server.URL)
	_, err := l.Transcribe(context.Background(), make([]float32, 1600))
	if err == nil {
		t.Fatal("Expected error after exhausted retries")
	}

	if requests != 2 {
		t.Errorf("Expected 2 requests, got %d", requests)
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("Expected attempt count in error, got %v", err)
	}

	stats := l.GetStats()
	if stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request in stats, got %d", stats.FailedRequests)
	}
}

func TestLocalHealthy(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("Expected /health, got %s", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	l := newTestLocal(t, server.URL)
	if !l.Healthy(context.Background()) {
		t.Error("Expected healthy server to report ready")
	}

	healthy = false
	if l.Healthy(context.Background()) {
		t.Error("Expected unhealthy server to report not ready")
	}
}

func TestNewLocalValidation(t *testing.T) {
	if _, err := NewLocal(LocalConfig{}, testLogger()); err == nil {
		t.Error("Expected error for empty server URL")
	}
}
