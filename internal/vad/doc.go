// Package vad provides Voice Activity Detection using the Silero VAD ONNX model.
// It scores fixed 512-sample frames for speech probability with a recurrent
// model whose state is carried explicitly, and finds padded, merged speech
// segments in full recording buffers.
package vad
