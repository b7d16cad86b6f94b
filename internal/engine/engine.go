package engine

import (
	"context"
	"errors"
)

// Result is the outcome of one transcription call. Raw is always the
// verbatim recognition output. Formatted carries the server-side formatting
// pass when one ran, empty otherwise. Text is the engine's chosen final
// text (the server picks between raw and formatted; the local engine has
// no formatting pass so Text equals Raw).
type Result struct {
	Raw       string `json:"raw"`
	Formatted string `json:"formatted,omitempty"`
	Text      string `json:"text"`
}

// NeuralFormatting reports whether a neural formatting pass produced
// Formatted.
func (r *Result) NeuralFormatting() bool {
	return r.Formatted != ""
}

// Transcriber is the contract both transcription backends implement.
type Transcriber interface {
	// Transcribe uploads the given 16 kHz mono float32 samples and
	// returns the recognized text. The context bounds the whole call
	// including retries.
	Transcribe(ctx context.Context, samples []float32) (*Result, error)

	// Name returns the engine identifier (e.g. "local", "cloud").
	Name() string
}

// TokenSource supplies the current bearer token for authenticated engines.
// The auth/session provider owning token refresh lives outside this package.
type TokenSource interface {
	AccessToken() string
}

// StaticToken is a TokenSource returning a fixed token, mainly for tests
// and one-shot tools.
type StaticToken string

// AccessToken implements TokenSource.
func (t StaticToken) AccessToken() string {
	return string(t)
}

// ServerController is the lifecycle contract of the external local model
// server manager. The engines only consume it; spawning, download and
// shutdown mechanics belong to the collaborator implementing it.
type ServerController interface {
	// Start launches the model server, returning false if it could not
	// be started. Model loading may take minutes on first run.
	Start() bool

	// Stop shuts the server down and waits for actual process exit.
	Stop(ctx context.Context) error

	// Ready reports whether the server currently answers health checks.
	Ready() bool
}

// ErrMissingToken indicates an authenticated engine was called without a
// bearer token. This is an auth precondition, never retried.
var ErrMissingToken = errors.New("access token required for transcription")
