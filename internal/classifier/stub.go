package classifier

import "sync"

// LabelClapping and the other labels referenced by the detector's score fusion
// (spec §4.4). Keeping them here lets the stub and the real backend agree
// on label names without the detector importing backend internals.
const (
	LabelHands          = "Hands"
	LabelClapping       = "Clapping"
	LabelCapGun         = "Cap gun"
	LabelFingerSnapping = "Finger snapping"
)

// StubSession is a deterministic classifier session that derives a
// "Clapping" score from the peak amplitude of each submitted block instead
// of running a real model. It exists so the detector core, its tests, and
// any build without an embedded model can exercise the full ingest-to-emit
// path without an ONNX runtime dependency.
type StubSession struct {
	mu       sync.Mutex
	lastTs   int64
	hasLastT bool
	onResult ResultFunc
}

// NewStubSession returns a StubSession; Options are accepted for interface
// parity but otherwise unused.
func NewStubSession(Options) (Session, error) {
	return &StubSession{}, nil
}

// Submit validates timestamp monotonicity and synchronously invokes the
// registered callback with a result derived from the block's peak
// amplitude — a stand-in for the model's label scores.
func (s *StubSession) Submit(block []float32, timestampMs int64) error {
	s.mu.Lock()
	if s.hasLastT && timestampMs <= s.lastTs {
		s.mu.Unlock()
		return ErrNonMonotonicTimestamp
	}
	s.lastTs = timestampMs
	s.hasLastT = true
	cb := s.onResult
	s.mu.Unlock()

	if cb == nil {
		return nil
	}
	cb(Result{Classifications: stubClassify(block)})
	return nil
}

// OnResult registers the result callback.
func (s *StubSession) OnResult(fn ResultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// Close is a no-op for the stub session.
func (s *StubSession) Close() error { return nil }

func stubClassify(block []float32) []Classification {
	var peak float32
	for _, v := range block {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}

	clapScore := (peak - 0.4) * 2
	if clapScore < 0 {
		clapScore = 0
	}
	if clapScore > 1 {
		clapScore = 1
	}

	return []Classification{
		{Name: LabelClapping, Score: clapScore},
		{Name: LabelHands, Score: clapScore * 0.6},
		{Name: LabelCapGun, Score: 0},
		{Name: LabelFingerSnapping, Score: 0},
	}
}
