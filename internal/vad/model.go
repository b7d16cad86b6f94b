package vad

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// FrameSize is the number of samples the model scores per forward
	// pass: 512 samples, 32 ms at 16 kHz.
	FrameSize = 512

	// StateSize is the flattened length of the recurrent state tensor
	// (shape 2x1x128).
	StateSize = 2 * 1 * 128
)

// Model scores one audio frame for speech probability. The recurrent state
// is explicit data: callers pass the current state in and receive the
// updated state back, so forgetting to reset between recordings is visible
// at the call site instead of hidden in the model.
type Model interface {
	// Forward runs one inference step. frame must be exactly FrameSize
	// samples and state exactly StateSize floats.
	Forward(frame []float32, state []float32) (probability float32, next []float32, err error)

	// Close releases the model session.
	Close() error
}

// SileroConfig configures the ONNX-backed Silero model.
type SileroConfig struct {
	ModelPath  string
	SampleRate int
	// LibraryPath optionally points at the onnxruntime shared library.
	// Empty leaves the runtime's default lookup in place.
	LibraryPath string
}

// SileroModel runs the Silero VAD ONNX model via onnxruntime. The session
// binds fixed input/output tensors that are reused across Forward calls,
// so a SileroModel is not safe for concurrent use.
type SileroModel struct {
	session *ort.AdvancedSession

	input    *ort.Tensor[float32]
	state    *ort.Tensor[float32]
	sr       *ort.Tensor[int64]
	output   *ort.Tensor[float32]
	stateOut *ort.Tensor[float32]
}

var ortInitOnce sync.Once

func initRuntime(libraryPath string) error {
	var err error
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		err = ort.InitializeEnvironment()
	})
	if err != nil {
		return fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}
	return nil
}

// NewSileroModel loads the Silero VAD model from disk and prepares an
// inference session. It fails if the model artifact is missing or malformed.
func NewSileroModel(cfg SileroConfig) (*SileroModel, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("VAD model artifact not found at %s: %w", cfg.ModelPath, err)
	}

	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, err
	}

	m := &SileroModel{}

	var err error
	m.input, err = ort.NewTensor(ort.NewShape(1, FrameSize), make([]float32, FrameSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	m.state, err = ort.NewTensor(ort.NewShape(2, 1, 128), make([]float32, StateSize))
	if err != nil {
		m.destroyTensors()
		return nil, fmt.Errorf("failed to create state tensor: %w", err)
	}

	m.sr, err = ort.NewTensor(ort.NewShape(1), []int64{int64(cfg.SampleRate)})
	if err != nil {
		m.destroyTensors()
		return nil, fmt.Errorf("failed to create sample rate tensor: %w", err)
	}

	m.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		m.destroyTensors()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	m.stateOut, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		m.destroyTensors()
		return nil, fmt.Errorf("failed to create output state tensor: %w", err)
	}

	m.session, err = ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{m.input, m.state, m.sr},
		[]ort.Value{m.output, m.stateOut},
		nil,
	)
	if err != nil {
		m.destroyTensors()
		return nil, fmt.Errorf("failed to load VAD model %s: %w", cfg.ModelPath, err)
	}

	return m, nil
}

// Forward implements Model.
func (m *SileroModel) Forward(frame []float32, state []float32) (float32, []float32, error) {
	if len(frame) != FrameSize {
		return 0, nil, fmt.Errorf("expected %d samples, got %d", FrameSize, len(frame))
	}

	if len(state) != StateSize {
		return 0, nil, fmt.Errorf("expected state of %d floats, got %d", StateSize, len(state))
	}

	copy(m.input.GetData(), frame)
	copy(m.state.GetData(), state)

	if err := m.session.Run(); err != nil {
		return 0, nil, fmt.Errorf("VAD inference failed: %w", err)
	}

	probability := m.output.GetData()[0]

	next := make([]float32, StateSize)
	copy(next, m.stateOut.GetData())

	return probability, next, nil
}

// Close releases the session and its bound tensors.
func (m *SileroModel) Close() error {
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy VAD session: %w", err)
		}
		m.session = nil
	}
	m.destroyTensors()
	return nil
}

func (m *SileroModel) destroyTensors() {
	if m.input != nil {
		m.input.Destroy()
		m.input = nil
	}
	if m.state != nil {
		m.state.Destroy()
		m.state = nil
	}
	if m.sr != nil {
		m.sr.Destroy()
		m.sr = nil
	}
	if m.output != nil {
		m.output.Destroy()
		m.output = nil
	}
	if m.stateOut != nil {
		m.stateOut.Destroy()
		m.stateOut = nil
	}
}
