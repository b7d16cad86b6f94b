package audio

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a finalized recording: one contiguous mono float32 buffer
// at the recorder's sample rate, plus timing and loudness metadata.
type Session struct {
	ID         string        `json:"id"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
	RMSPeak    float64       `json:"rms_peak_db"`
	Samples    []float32     `json:"-"`
	ChunkCount int           `json:"chunk_count"`
	SampleRate int           `json:"sample_rate"`
}

// RecorderStats represents recorder statistics for monitoring
type RecorderStats struct {
	Active           bool    `json:"active"`
	SessionID        string  `json:"session_id,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds"`
	ChunksReceived   int     `json:"chunks_received"`
	SamplesBuffered  int     `json:"samples_buffered"`
	RMSPeakDB        float64 `json:"rms_peak_db"`
	SessionsFinished uint64  `json:"sessions_finished"`
	SessionsCanceled uint64  `json:"sessions_canceled"`
}

// Recorder accumulates streamed audio chunks for one recording session at a
// time. Chunks are appended in arrival order and concatenated on Stop.
type Recorder struct {
	sampleRate int
	logger     *slog.Logger

	// Active session state
	active    bool
	sessionID string
	startTime time.Time
	rmsPeak   float64
	chunks    [][]float32
	buffered  int

	// Statistics
	sessionsFinished uint64
	sessionsCanceled uint64

	mu sync.Mutex
}

// NewRecorder creates a new recorder for mono audio at the given sample rate.
func NewRecorder(sampleRate int, logger *slog.Logger) *Recorder {
	return &Recorder{
		sampleRate: sampleRate,
		logger:     logger,
	}
}

// Start begins a new recording session. It returns false without touching
// any state if a session is already active.
func (r *Recorder) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		r.logger.Warn("Session start rejected, another session is active",
			slog.String("session_id", r.sessionID),
		)
		return false
	}

	r.active = true
	r.sessionID = uuid.NewString()
	r.startTime = time.Now()
	r.rmsPeak = math.Inf(-1)
	r.chunks = nil
	r.buffered = 0

	r.logger.Info("Recording session started",
		slog.String("session_id", r.sessionID),
		slog.Int("sample_rate", r.sampleRate),
	)

	return true
}

// AddChunk appends a chunk of float32 samples to the active session and
// raises the running RMS peak. Without an active session it is a no-op
// beyond a logged warning.
func (r *Recorder) AddChunk(chunk []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		r.logger.Warn("Received audio chunk but no active session",
			slog.Int("samples", len(chunk)),
		)
		return
	}

	// Copy so the caller may reuse its buffer.
	owned := make([]float32, len(chunk))
	copy(owned, chunk)
	r.chunks = append(r.chunks, owned)
	r.buffered += len(owned)

	if db := RMSDecibels(owned); db > r.rmsPeak {
		r.rmsPeak = db
	}
}

// Stop finalizes the active session: concatenates all chunks in arrival
// order into one buffer, computes duration and the final RMS peak, and
// clears internal state for reuse. Returns nil if no session is active.
//
// A session that finalizes with zero chunks is still returned (empty
// buffer, RMS peak -Inf); the caller decides whether to discard it.
func (r *Recorder) Stop() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return nil
	}

	samples := make([]float32, 0, r.buffered)
	for _, chunk := range r.chunks {
		samples = append(samples, chunk...)
	}

	endTime := time.Now()
	session := &Session{
		ID:         r.sessionID,
		StartTime:  r.startTime,
		EndTime:    endTime,
		Duration:   endTime.Sub(r.startTime),
		RMSPeak:    r.rmsPeak,
		Samples:    samples,
		ChunkCount: len(r.chunks),
		SampleRate: r.sampleRate,
	}

	// No chunk ever updated the peak: fall back to the full buffer,
	// which here is empty and yields -Inf rather than NaN.
	if math.IsInf(session.RMSPeak, -1) && len(samples) > 0 {
		session.RMSPeak = RMSDecibels(samples)
	}

	r.active = false
	r.sessionID = ""
	r.chunks = nil
	r.buffered = 0
	r.sessionsFinished++

	if err := session.Validate(); err != nil {
		// Soft validation: log and return it anyway.
		r.logger.Warn("Finalized session failed validation",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	r.logger.Info("Recording session stopped",
		slog.String("session_id", session.ID),
		slog.Int("chunks", session.ChunkCount),
		slog.Int("samples", len(session.Samples)),
		slog.Float64("duration", session.Duration.Seconds()),
		slog.Float64("rms_peak_db", session.RMSPeak),
	)

	return session
}

// Cancel discards the active session without finalizing it.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}

	r.logger.Info("Recording session canceled",
		slog.String("session_id", r.sessionID),
		slog.Int("chunks_discarded", len(r.chunks)),
	)

	r.active = false
	r.sessionID = ""
	r.chunks = nil
	r.buffered = 0
	r.sessionsCanceled++
}

// Active reports whether a recording session is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// CurrentDuration returns the elapsed time of the active session,
// or 0 if none is active.
func (r *Recorder) CurrentDuration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return 0
	}
	return time.Since(r.startTime)
}

// GetStats returns current recorder statistics
func (r *Recorder) GetStats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := RecorderStats{
		Active:           r.active,
		SessionsFinished: r.sessionsFinished,
		SessionsCanceled: r.sessionsCanceled,
	}

	if r.active {
		stats.SessionID = r.sessionID
		stats.DurationSeconds = time.Since(r.startTime).Seconds()
		stats.ChunksReceived = len(r.chunks)
		stats.SamplesBuffered = r.buffered
		// -Inf does not survive JSON encoding.
		stats.RMSPeakDB = ClampDecibels(r.rmsPeak)
	}

	return stats
}

// SilenceFloorDB stands in for -Inf wherever an RMS level must be
// representable in JSON.
const SilenceFloorDB = -120.0

// ClampDecibels raises -Inf levels to SilenceFloorDB.
func ClampDecibels(db float64) float64 {
	if math.IsInf(db, -1) {
		return SilenceFloorDB
	}
	return db
}

// Validate checks that a finalized session carries the required fields.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errMissingField("id")
	}
	if s.StartTime.IsZero() {
		return errMissingField("start_time")
	}
	if s.EndTime.IsZero() {
		return errMissingField("end_time")
	}
	if len(s.Samples) == 0 {
		return errMissingField("samples")
	}
	return nil
}

type errMissingField string

func (e errMissingField) Error() string {
	return "session missing required field: " + string(e)
}

// RMSDecibels computes the root-mean-square level of a buffer in dB full
// scale. An empty or all-zero buffer yields -Inf.
func RMSDecibels(samples []float32) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	return 20 * math.Log10(rms)
}
