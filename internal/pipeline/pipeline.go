package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/projectsthataremine/narraflow-sub000/internal/engine"
	"github.com/projectsthataremine/narraflow-sub000/internal/metrics"
	"github.com/projectsthataremine/narraflow-sub000/internal/textproc"
	"github.com/projectsthataremine/narraflow-sub000/internal/vad"
)

// Config contains pipeline configuration
type Config struct {
	SampleRate int
	// TrimSilence enables VAD-based silence removal before transcription.
	TrimSilence bool
	// Padding is kept around each detected speech segment.
	Padding time.Duration
	// MinSpeech discards detected segments shorter than this.
	MinSpeech time.Duration
	// MinTotalSpeech is the least speech a session must contain for an
	// engine request to be worth making.
	MinTotalSpeech time.Duration
	// EnableCleanup applies local text cleanup when the engine did not
	// return a formatted transcript.
	EnableCleanup bool
	// CleanupTimeout bounds the cleanup stage; on expiry the raw
	// transcript is used as-is.
	CleanupTimeout time.Duration
}

// Result is the outcome of a pipeline run. Raw always holds the engine's
// unformatted transcript; Cleaned holds the formatted variant, whether it
// came from the engine or from local cleanup.
type Result struct {
	Raw            string        `json:"raw"`
	Cleaned        string        `json:"cleaned"`
	FallbackUsed   bool          `json:"fallback_used"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Text returns the transcript to insert: the cleaned variant when one
// exists, the raw transcript otherwise.
func (r *Result) Text() string {
	if r.Cleaned != "" {
		return r.Cleaned
	}
	return r.Raw
}

// Empty reports whether the run produced no transcript.
func (r *Result) Empty() bool {
	return r.Raw == "" && r.Cleaned == ""
}

// Stats represents pipeline statistics
type Stats struct {
	TotalRuns    uint64 `json:"total_runs"`
	EmptyRuns    uint64 `json:"empty_runs"`
	FallbackRuns uint64 `json:"fallback_runs"`
	FailedRuns   uint64 `json:"failed_runs"`
}

// Pipeline coordinates silence trimming, transcription and cleanup
type Pipeline struct {
	config   Config
	detector *vad.Detector
	engine   engine.Transcriber
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// Statistics
	totalRuns    uint64
	emptyRuns    uint64
	fallbackRuns uint64
	failedRuns   uint64

	mu sync.Mutex
}

// New creates a pipeline. The detector may be nil when silence trimming is
// disabled; metrics may be nil.
func New(config Config, detector *vad.Detector, transcriber engine.Transcriber,
	logger *slog.Logger, m *metrics.Metrics) (*Pipeline, error) {

	if transcriber == nil {
		return nil, fmt.Errorf("transcriber cannot be nil")
	}

	if config.TrimSilence && detector == nil {
		return nil, fmt.Errorf("silence trimming requires a detector")
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}

	if config.MinTotalSpeech <= 0 {
		config.MinTotalSpeech = 500 * time.Millisecond
	}

	if config.CleanupTimeout <= 0 {
		config.CleanupTimeout = 2 * time.Second
	}

	return &Pipeline{
		config:   config,
		detector: detector,
		engine:   transcriber,
		logger:   logger,
		metrics:  m,
	}, nil
}

// Run processes a finished session's audio end to end. A session without
// usable speech returns an empty result without contacting the engine;
// engine failures surface to the caller unchanged apart from wrapping.
func (p *Pipeline) Run(ctx context.Context, samples []float32) (*Result, error) {
	start := time.Now()

	p.mu.Lock()
	p.totalRuns++
	p.mu.Unlock()

	speech := samples
	if p.config.TrimSilence {
		var segments int
		speech, segments = p.trimSilence(samples)
		if speech == nil {
			p.mu.Lock()
			p.emptyRuns++
			p.mu.Unlock()

			elapsed := time.Since(start)
			p.logger.Info("No usable speech in session, skipping transcription",
				slog.Int("samples", len(samples)),
				slog.Int("segments", segments),
				slog.Duration("elapsed", elapsed),
			)
			if p.metrics != nil {
				p.metrics.RecordPipelineRun(elapsed.Seconds(), 0, true, false)
			}
			return &Result{ProcessingTime: elapsed}, nil
		}
	}

	engineResult, err := p.transcribe(ctx, speech)
	if err != nil {
		p.mu.Lock()
		p.failedRuns++
		p.mu.Unlock()

		if p.metrics != nil {
			p.metrics.RecordPipelineFailure(time.Since(start).Seconds())
		}
		return nil, err
	}

	// FallbackUsed reports that no neural formatting was applied, whether or
	// not local cleanup ran in its place.
	result := &Result{
		Raw:          engineResult.Raw,
		FallbackUsed: !engineResult.NeuralFormatting(),
	}

	switch {
	case engineResult.NeuralFormatting():
		result.Cleaned = engineResult.Formatted
	case p.config.EnableCleanup && engineResult.Raw != "":
		result.Cleaned = p.cleanup(ctx, engineResult.Raw)
	}

	if result.FallbackUsed {
		p.mu.Lock()
		p.fallbackRuns++
		p.mu.Unlock()
	}

	result.ProcessingTime = time.Since(start)

	p.logger.Info("Pipeline run complete",
		slog.String("engine", p.engine.Name()),
		slog.Int("samples", len(speech)),
		slog.Int("transcript_chars", len(result.Text())),
		slog.Bool("fallback_used", result.FallbackUsed),
		slog.Duration("elapsed", result.ProcessingTime),
	)

	if p.metrics != nil {
		p.metrics.RecordPipelineRun(result.ProcessingTime.Seconds(),
			len(result.Text()), result.Empty(), result.FallbackUsed)
	}

	return result, nil
}

// trimSilence runs speech detection over the session audio and returns the
// concatenated speech segments, or nil when the session holds too little
// speech to transcribe.
func (p *Pipeline) trimSilence(samples []float32) ([]float32, int) {
	p.detector.ResetState()
	segments := p.detector.FindSpeechSegments(samples, p.config.Padding, p.config.MinSpeech)

	totalSpeech := 0
	for _, seg := range segments {
		totalSpeech += seg.Len()
	}

	if p.metrics != nil && len(samples) > 0 {
		p.metrics.RecordSpeechDetection(len(segments), float64(totalSpeech)/float64(len(samples)))
	}

	minSamples := int(p.config.MinTotalSpeech.Seconds() * float64(p.config.SampleRate))
	if len(segments) == 0 || totalSpeech < minSamples {
		return nil, len(segments)
	}

	speech := make([]float32, 0, totalSpeech)
	for _, seg := range segments {
		speech = append(speech, samples[seg.Start:seg.End]...)
	}

	p.logger.Debug("Trimmed silence from session",
		slog.Int("segments", len(segments)),
		slog.Int("original_samples", len(samples)),
		slog.Int("speech_samples", len(speech)),
	)

	return speech, len(segments)
}

func (p *Pipeline) transcribe(ctx context.Context, speech []float32) (*engine.Result, error) {
	name := p.engine.Name()
	if p.metrics != nil {
		p.metrics.RecordEngineRequest(name)
	}

	start := time.Now()
	engineResult, err := p.engine.Transcribe(ctx, speech)
	elapsed := time.Since(start)

	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordEngineFailure(name, elapsed.Seconds())
		}
		return nil, fmt.Errorf("engine %s: %w", name, err)
	}

	if p.metrics != nil {
		p.metrics.RecordEngineSuccess(name, elapsed.Seconds())
	}
	return engineResult, nil
}

// cleanup applies local text cleanup bounded by the configured timeout.
// On expiry or cancellation the raw transcript is returned unchanged.
func (p *Pipeline) cleanup(ctx context.Context, raw string) string {
	done := make(chan string, 1)
	go func() {
		done <- textproc.Cleanup(raw)
	}()

	select {
	case cleaned := <-done:
		return cleaned
	case <-time.After(p.config.CleanupTimeout):
		p.logger.Warn("Text cleanup timed out, using raw transcript",
			slog.Duration("timeout", p.config.CleanupTimeout))
		return raw
	case <-ctx.Done():
		return raw
	}
}

// GetStats returns current pipeline statistics
func (p *Pipeline) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		TotalRuns:    p.totalRuns,
		EmptyRuns:    p.emptyRuns,
		FallbackRuns: p.fallbackRuns,
		FailedRuns:   p.failedRuns,
	}
}
