// Package pipeline turns a finished recording session into inserted text.
//
// A run trims silence with the VAD detector, sends the remaining speech to
// the configured transcription engine, and applies local cleanup when the
// engine returned no formatted variant. Sessions with no usable speech
// short-circuit before any engine request.
package pipeline
