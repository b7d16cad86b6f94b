package vad

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Segment is a half-open sample range [Start, End) judged to contain
// speech, in the index space of the buffer it was found in.
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the segment length in samples.
func (s Segment) Len() int {
	return s.End - s.Start
}

// DetectorConfig configures speech/silence thresholds and timing.
type DetectorConfig struct {
	// SpeechThreshold is the probability at or above which a frame counts
	// as speech. SilenceThreshold is the probability below which a frame
	// counts as silence. The gap between them is deliberate hysteresis:
	// the two predicates do not partition [0,1].
	SpeechThreshold  float32
	SilenceThreshold float32
	SampleRate       int
	// MergeGap is the maximum silence between two segments that still
	// merges them into one.
	MergeGap time.Duration
}

// DefaultDetectorConfig returns the standard Silero VAD tuning for 16 kHz
// dictation audio.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.3,
		SampleRate:       16000,
		MergeGap:         200 * time.Millisecond,
	}
}

// DetectorStats represents detector statistics for monitoring
type DetectorStats struct {
	Initialized      bool    `json:"initialized"`
	TotalFrames      uint64  `json:"total_frames"`
	SpeechFrames     uint64  `json:"speech_frames"`
	SpeechPercentage float64 `json:"speech_percentage"`
	SpeechThreshold  float32 `json:"speech_threshold"`
	SilenceThreshold float32 `json:"silence_threshold"`
}

// Detector scores audio frames for speech probability and finds speech
// segments in full buffers. It owns the model's recurrent state for the
// current recording; state carries across frames within one buffer and
// must be reset between unrelated recordings.
//
// A Detector is not safe for concurrent use. Frames within one buffer are
// inherently sequential because of the recurrent state dependency; use one
// Detector per concurrent recording.
type Detector struct {
	config DetectorConfig
	logger *slog.Logger

	model Model
	state []float32

	// Statistics
	totalFrames  uint64
	speechFrames uint64

	mu sync.Mutex
}

// NewDetector creates a detector. Initialize must be called with a loaded
// model before the detector scores anything.
func NewDetector(config DetectorConfig, logger *slog.Logger) (*Detector, error) {
	if config.SpeechThreshold < 0 || config.SpeechThreshold > 1 {
		return nil, fmt.Errorf("speech threshold must be between 0 and 1, got %f", config.SpeechThreshold)
	}

	if config.SilenceThreshold < 0 || config.SilenceThreshold > 1 {
		return nil, fmt.Errorf("silence threshold must be between 0 and 1, got %f", config.SilenceThreshold)
	}

	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	return &Detector{
		config: config,
		logger: logger,
		state:  make([]float32, StateSize),
	}, nil
}

// Initialize attaches the speech-probability model. The detector is not
// ready until this has been called.
func (d *Detector) Initialize(model Model) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.model = model
	d.state = make([]float32, StateSize)
}

// Initialized reports whether a model is attached.
func (d *Detector) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.model != nil
}

// Analyze scores one frame and returns its speech probability. Frames
// shorter than FrameSize are zero-padded. The recurrent state is advanced
// as a side effect.
//
// Without an initialized model Analyze returns 0.0 rather than an error:
// silence trimming is an optimization and must never block transcription.
func (d *Detector) Analyze(frame []float32) float32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.analyzeLocked(frame)
}

func (d *Detector) analyzeLocked(frame []float32) float32 {
	if d.model == nil {
		d.logger.Error("VAD model not initialized, returning zero probability")
		return 0
	}

	if len(frame) != FrameSize {
		padded := make([]float32, FrameSize)
		copy(padded, frame)
		frame = padded
	}

	probability, next, err := d.model.Forward(frame, d.state)
	if err != nil {
		d.logger.Error("VAD inference error", slog.String("error", err.Error()))
		return 0
	}
	d.state = next

	d.totalFrames++
	if probability >= d.config.SpeechThreshold {
		d.speechFrames++
	}

	return probability
}

// ResetState zeroes the recurrent state. Callers sharing one detector
// across recordings must invoke this between them, otherwise VAD decisions
// leak context from the previous recording.
func (d *Detector) ResetState() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = make([]float32, StateSize)
}

// IsSpeech reports whether a probability clears the speech threshold.
func (d *Detector) IsSpeech(probability float32) bool {
	return probability >= d.config.SpeechThreshold
}

// IsSilence reports whether a probability is below the silence threshold.
func (d *Detector) IsSilence(probability float32) bool {
	return probability < d.config.SilenceThreshold
}

// ProcessBuffer splits a buffer into consecutive frames (last frame
// zero-padded) and scores each one in order. Frame order matters: the
// recurrent state carries across frames, so this must not be parallelized
// within one buffer.
func (d *Detector) ProcessBuffer(buffer []float32) []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	probabilities := make([]float32, 0, (len(buffer)+FrameSize-1)/FrameSize)
	for i := 0; i < len(buffer); i += FrameSize {
		end := i + FrameSize
		if end > len(buffer) {
			end = len(buffer)
		}
		probabilities = append(probabilities, d.analyzeLocked(buffer[i:end]))
	}

	return probabilities
}

// FindSpeechSegments scans a buffer and returns padded, merged speech
// segments. A segment opens on the first speech frame (extended backwards
// by padding) and closes on the first non-speech frame after it (extended
// forwards by padding), both clamped to the buffer bounds. Segments
// shorter than minSpeech are discarded; segments separated by no more
// than the configured merge gap are joined. A buffer ending mid-speech
// closes its trailing segment at the buffer end.
func (d *Detector) FindSpeechSegments(buffer []float32, padding, minSpeech time.Duration) []Segment {
	probabilities := d.ProcessBuffer(buffer)

	paddingSamples := int(padding.Seconds() * float64(d.config.SampleRate))
	minSpeechSamples := int(minSpeech.Seconds() * float64(d.config.SampleRate))

	var segments []Segment
	speechStart := -1

	for i, p := range probabilities {
		if d.IsSpeech(p) {
			if speechStart == -1 {
				speechStart = i*FrameSize - paddingSamples
				if speechStart < 0 {
					speechStart = 0
				}
			}
			continue
		}

		if speechStart != -1 {
			speechEnd := i*FrameSize + paddingSamples
			if speechEnd > len(buffer) {
				speechEnd = len(buffer)
			}

			if speechEnd-speechStart >= minSpeechSamples {
				segments = append(segments, Segment{Start: speechStart, End: speechEnd})
			}
			speechStart = -1
		}
	}

	// Buffer ended mid-speech: close the open segment at the buffer end.
	if speechStart != -1 {
		if len(buffer)-speechStart >= minSpeechSamples {
			segments = append(segments, Segment{Start: speechStart, End: len(buffer)})
		}
	}

	return d.mergeSegments(segments)
}

// mergeSegments joins adjacent or overlapping segments whose gap is at
// most the configured merge gap.
func (d *Detector) mergeSegments(segments []Segment) []Segment {
	if len(segments) == 0 {
		return nil
	}

	maxGap := int(d.config.MergeGap.Seconds() * float64(d.config.SampleRate))

	merged := segments[:1]
	for _, segment := range segments[1:] {
		last := &merged[len(merged)-1]
		if segment.Start-last.End <= maxGap {
			if segment.End > last.End {
				last.End = segment.End
			}
		} else {
			merged = append(merged, segment)
		}
	}

	return merged
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	speechPercentage := float64(0)
	if d.totalFrames > 0 {
		speechPercentage = float64(d.speechFrames) / float64(d.totalFrames) * 100
	}

	return DetectorStats{
		Initialized:      d.model != nil,
		TotalFrames:      d.totalFrames,
		SpeechFrames:     d.speechFrames,
		SpeechPercentage: speechPercentage,
		SpeechThreshold:  d.config.SpeechThreshold,
		SilenceThreshold: d.config.SilenceThreshold,
	}
}

// Close releases the model session. The detector is unusable afterward
// until Initialize attaches a new model.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.model == nil {
		return nil
	}

	err := d.model.Close()
	d.model = nil
	return err
}
