// Package audio handles recording session accumulation and format conversion.
// It implements streamed PCM chunk collection with loudness tracking and
// encoding of float32 sample buffers to 16-bit WAV for transcription.
package audio
