// Package classifier defines the streaming audio classifier abstraction
// consumed by the detector core (spec §4.4): a session accepts fixed-length
// mono float32 blocks at strictly increasing timestamps and asynchronously
// reports per-label classification scores.
package classifier

import "errors"

// ErrNonMonotonicTimestamp is returned by Submit when timestampMs is not
// strictly greater than the previous submission for the same session.
var ErrNonMonotonicTimestamp = errors.New("classifier: timestamp not strictly increasing")

// Classification is a single label/score pair produced by the model.
type Classification struct {
	Name  string
	Score float32
}

// Result is the output of one classifier invocation.
type Result struct {
	Classifications []Classification
}

// ResultFunc receives asynchronous classification results. It must not
// block; the detector core's routing logic runs on the caller's goroutine.
type ResultFunc func(Result)

// Options configures a new session.
type Options struct {
	SampleRate     int
	MaxResults     int
	ScoreThreshold float64
}

// Session is a stateful handle to the underlying streaming model. A single
// session may be shared across sources; the caller is responsible for the
// submission-serialization discipline described in spec §5.
type Session interface {
	// Submit feeds one fixed-length mono float32 block at timestampMs,
	// which must be strictly greater than any previously submitted
	// timestamp for this session.
	Submit(block []float32, timestampMs int64) error

	// OnResult registers the callback that receives classification
	// results. Only one callback is active at a time; registering again
	// replaces the previous one.
	OnResult(fn ResultFunc)

	// Close releases any resources held by the session.
	Close() error
}

// Factory creates a new Session.
type Factory func(Options) (Session, error)
