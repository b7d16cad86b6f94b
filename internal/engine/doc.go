// Package engine implements the transcription backends behind a single
// Transcriber contract: a local model server speaking an OpenAI-compatible
// HTTP API, and a remote transcription function that can chain a
// server-side formatting pass. Both upload 16 kHz mono WAV audio as
// multipart form data and retry transient failures with linear backoff.
package engine
