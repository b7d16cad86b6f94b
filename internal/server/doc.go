// Package server implements the worker's HTTP control API.
//
// The UI process drives a recording session over plain HTTP: start, stream
// raw audio chunks, then stop to run the transcription pipeline, or cancel
// to discard the audio. Monitoring endpoints expose health, statistics,
// sanitized configuration and Prometheus metrics.
package server
