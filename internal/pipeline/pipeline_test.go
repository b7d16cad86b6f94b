package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/projectsthataremine/narraflow-sub000/internal/engine"
	"github.com/projectsthataremine/narraflow-sub000/internal/vad"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// fakeTranscriber counts calls and returns a canned result or error.
type fakeTranscriber struct {
	result     *engine.Result
	err        error
	calls      int
	lastLength int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, samples []float32) (*engine.Result, error) {
	f.calls++
	f.lastLength = len(samples)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeTranscriber) Name() string { return "fake" }

// energyModel classifies a frame as speech when any sample exceeds 0.5.
type energyModel struct{}

func (energyModel) Forward(frame, state []float32) (float32, []float32, error) {
	for _, s := range frame {
		if s > 0.5 || s < -0.5 {
			return 0.9, state, nil
		}
	}
	return 0.05, state, nil
}

func (energyModel) Close() error { return nil }

func newTestDetector(t *testing.T) *vad.Detector {
	t.Helper()

	d, err := vad.NewDetector(vad.DefaultDetectorConfig(), testLogger())
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}
	d.Initialize(energyModel{})
	return d
}

func constantBuffer(n int, value float32) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = value
	}
	return buf
}

func TestRunWithoutTrimming(t *testing.T) {
	fake := &fakeTranscriber{result: &engine.Result{Raw: "hello there", Text: "hello there"}}
	p, err := New(Config{SampleRate: 16000, EnableCleanup: true}, nil, fake, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background(), constantBuffer(16000, 0.1))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if fake.calls != 1 {
		t.Errorf("Expected 1 engine call, got %d", fake.calls)
	}
	if fake.lastLength != 16000 {
		t.Errorf("Expected untrimmed audio, engine saw %d samples", fake.lastLength)
	}
	if result.Raw != "hello there" {
		t.Errorf("Expected raw transcript, got %q", result.Raw)
	}
	if !result.FallbackUsed {
		t.Error("Expected local cleanup without neural formatting")
	}
	if result.Cleaned != "Hello there." {
		t.Errorf("Expected cleaned transcript, got %q", result.Cleaned)
	}
	if result.Text() != "Hello there." {
		t.Errorf("Expected cleaned text preferred, got %q", result.Text())
	}
}

func TestRunPrefersNeuralFormatting(t *testing.T) {
	fake := &fakeTranscriber{result: &engine.Result{
		Raw:       "hello there",
		Formatted: "Hello there!",
		Text:      "Hello there!",
	}}
	p, err := New(Config{SampleRate: 16000, EnableCleanup: true}, nil, fake, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background(), constantBuffer(16000, 0.1))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FallbackUsed {
		t.Error("Expected no fallback when engine formatted the transcript")
	}
	if result.Cleaned != "Hello there!" {
		t.Errorf("Expected engine formatting kept, got %q", result.Cleaned)
	}
}

func TestRunReportsFallbackWithCleanupDisabled(t *testing.T) {
	fake := &fakeTranscriber{result: &engine.Result{Raw: "hello", Text: "hello"}}
	p, err := New(Config{SampleRate: 16000, EnableCleanup: false}, nil, fake, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background(), constantBuffer(16000, 0.1))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.FallbackUsed {
		t.Error("Expected fallback reported when engine did not format the transcript")
	}
	if result.Cleaned != "" {
		t.Errorf("Expected no cleanup with cleanup disabled, got %q", result.Cleaned)
	}
	if result.Text() != "hello" {
		t.Errorf("Expected raw transcript used as-is, got %q", result.Text())
	}

	stats := p.GetStats()
	if stats.FallbackRuns != 1 {
		t.Errorf("Expected 1 fallback run in stats, got %d", stats.FallbackRuns)
	}
}

func TestRunSkipsEngineOnSilence(t *testing.T) {
	fake := &fakeTranscriber{result: &engine.Result{Raw: "should not happen"}}
	p, err := New(Config{
		SampleRate:  16000,
		TrimSilence: true,
	}, newTestDetector(t), fake, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background(), constantBuffer(16000, 0.01))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if fake.calls != 0 {
		t.Errorf("Expected no engine calls for silent audio, got %d", fake.calls)
	}
	if !result.Empty() {
		t.Errorf("Expected empty result, got %+v", result)
	}
	if result.FallbackUsed {
		t.Error("Expected no fallback reported for a run without speech")
	}

	stats := p.GetStats()
	if stats.EmptyRuns != 1 {
		t.Errorf("Expected 1 empty run in stats, got %d", stats.EmptyRuns)
	}
}

func TestRunSkipsEngineOnTooLittleSpeech(t *testing.T) {
	// 0.2s of speech in a 1s buffer is under the half-second minimum.
	buffer := constantBuffer(16000, 0.01)
	for i := 0; i < 3200; i++ {
		buffer[i] = 0.8
	}

	fake := &fakeTranscriber{result: &engine.Result{Raw: "should not happen"}}
	p, err := New(Config{
		SampleRate:  16000,
		TrimSilence: true,
	}, newTestDetector(t), fake, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background(), buffer)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if fake.calls != 0 {
		t.Errorf("Expected no engine calls for near-silent audio, got %d", fake.calls)
	}
	if !result.Empty() {
		t.Errorf("Expected empty result, got %+v", result)
	}
}

func TestRunTrimsSilenceAroundSpeech(t *testing.T) {
	// 2s buffer with 1s of speech in the middle.
	buffer := constantBuffer(32000, 0.01)
	for i := 8000; i < 24000; i++ {
		buffer[i] = 0.8
	}

	fake := &fakeTranscriber{result: &engine.Result{Raw: "trimmed", Text: "trimmed"}}
	p, err := New(Config{
		SampleRate:  16000,
		TrimSilence: true,
		Padding:     100 * time.Millisecond,
	}, newTestDetector(t), fake, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background(), buffer)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if fake.calls != 1 {
		t.Errorf("Expected 1 engine call, got %d", fake.calls)
	}
	if fake.lastLength >= 32000 {
		t.Errorf("Expected trimmed audio, engine saw %d samples", fake.lastLength)
	}
	if fake.lastLength < 16000 {
		t.Errorf("Expected speech plus padding preserved, engine saw %d samples", fake.lastLength)
	}
	if result.Raw != "trimmed" {
		t.Errorf("Expected transcript, got %q", result.Raw)
	}
}

func TestRunPropagatesEngineError(t *testing.T) {
	wantErr := errors.New("server unreachable")
	fake := &fakeTranscriber{err: wantErr}
	p, err := New(Config{SampleRate: 16000}, nil, fake, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	_, err = p.Run(context.Background(), constantBuffer(16000, 0.1))
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected wrapped engine error, got %v", err)
	}

	stats := p.GetStats()
	if stats.FailedRuns != 1 {
		t.Errorf("Expected 1 failed run in stats, got %d", stats.FailedRuns)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}, nil, nil, testLogger(), nil); err == nil {
		t.Error("Expected error for nil transcriber")
	}

	fake := &fakeTranscriber{}
	if _, err := New(Config{TrimSilence: true}, nil, fake, testLogger(), nil); err == nil {
		t.Error("Expected error for trimming without a detector")
	}
}
