//go:build yamnet

package classifier

import (
	"bufio"
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// yamnetWindowSamples is the number of mono float32 samples per
	// inference call: 0.975s at 16kHz, matching the reference model's
	// expected input length.
	yamnetWindowSamples = 15600
)

// ortInitOnce ensures the ONNX Runtime environment is initialized exactly
// once per process; ortInitErr surfaces on every subsequent attempt.
var (
	ortInitOnce sync.Once
	ortInitErr  error
	yamnetLabels []string
	labelsOnce   sync.Once
)

func loadYamnetLabels() []string {
	labelsOnce.Do(func() {
		scanner := bufio.NewScanner(strings.NewReader(yamnetLabelsCSV))
		first := true
		for scanner.Scan() {
			if first {
				first = false // skip header row
				continue
			}
			fields := strings.SplitN(scanner.Text(), ",", 3)
			if len(fields) != 3 {
				continue
			}
			yamnetLabels = append(yamnetLabels, strings.TrimSpace(fields[2]))
		}
	})
	return yamnetLabels
}

// OnnxSession runs a YAMNet-class multi-label audio tagger via ONNX
// Runtime. It satisfies the classifier.Session contract: blocks submitted
// at strictly increasing timestamps are buffered into fixed model windows
// and scored against the embedded label set.
type OnnxSession struct {
	mu sync.Mutex

	session *ort.AdvancedSession

	inputTensor  *ort.Tensor[float32] // [1, yamnetWindowSamples]
	outputTensor *ort.Tensor[float32] // [1, len(labels)]

	pcmBuf []float32
	labels []string

	lastTs   int64
	hasLastT bool
	onResult ResultFunc
}

// NewOnnxSession creates an OnnxSession, initializing the ONNX Runtime
// environment on first use and allocating reusable input/output tensors.
func NewOnnxSession(opts Options) (Session, error) {
	if len(yamnetModelData) == 0 {
		return nil, fmt.Errorf("classifier: model data is empty (build without yamnet tag?)")
	}
	labels := loadYamnetLabels()

	ortInitOnce.Do(func() {
		libPath, err := resolveORTLibPath()
		if err != nil {
			ortInitErr = fmt.Errorf("resolve ORT lib: %w", err)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("classifier: %w", ortInitErr)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, yamnetWindowSamples))
	if err != nil {
		return nil, fmt.Errorf("classifier: create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("classifier: create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		yamnetModelData,
		[]string{"waveform"},
		[]string{"scores"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("classifier: create session: %w", err)
	}

	return &OnnxSession{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		labels:       labels,
		pcmBuf:       make([]float32, 0, yamnetWindowSamples*2),
	}, nil
}

// Submit enforces strict timestamp monotonicity, accumulates the block,
// and runs inference for every complete model window accumulated so far.
func (s *OnnxSession) Submit(block []float32, timestampMs int64) error {
	s.mu.Lock()
	if s.hasLastT && timestampMs <= s.lastTs {
		s.mu.Unlock()
		return ErrNonMonotonicTimestamp
	}
	s.lastTs = timestampMs
	s.hasLastT = true

	s.pcmBuf = append(s.pcmBuf, block...)

	var results []Result
	for len(s.pcmBuf) >= yamnetWindowSamples {
		res, err := s.infer(s.pcmBuf[:yamnetWindowSamples])
		if err != nil {
			s.mu.Unlock()
			return err
		}
		// Slide by the size of this submission rather than the whole
		// window, so back-to-back small blocks still overlap smoothly.
		slide := len(block)
		if slide > yamnetWindowSamples {
			slide = yamnetWindowSamples
		}
		s.pcmBuf = s.pcmBuf[slide:]
		results = append(results, res)
	}
	cb := s.onResult
	s.mu.Unlock()

	if cb == nil {
		return nil
	}
	for _, res := range results {
		cb(res)
	}
	return nil
}

func (s *OnnxSession) infer(window []float32) (Result, error) {
	copy(s.inputTensor.GetData(), window)
	if err := s.session.Run(); err != nil {
		return Result{}, fmt.Errorf("classifier: inference: %w", err)
	}
	scores := s.outputTensor.GetData()

	out := make([]Classification, 0, len(s.labels))
	for i, name := range s.labels {
		if i >= len(scores) {
			break
		}
		out = append(out, Classification{Name: name, Score: scores[i]})
	}
	return Result{Classifications: out}, nil
}

// OnResult registers the result callback.
func (s *OnnxSession) OnResult(fn ResultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// Close releases ONNX Runtime resources. Safe to call multiple times.
func (s *OnnxSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	return nil
}
