// Package detector implements the audio detector core (spec §4.4,
// component C5): per-source buffering, block framing, a shared
// classifier session with single-slot source routing, score fusion, and
// per-source debounce.
package detector

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clapd/clapd/internal/classifier"
	"github.com/clapd/clapd/internal/config"
	"github.com/clapd/clapd/internal/detectorerr"
	"github.com/clapd/clapd/internal/dsp"
	"github.com/clapd/clapd/internal/ringbuffer"
)

const (
	// targetSampleRate is the fixed rate the classifier session expects.
	targetSampleRate = 16000
	// blockSize is B in spec §4.4: 100ms at targetSampleRate.
	blockSize = 1600
	// bufferCapacity gives each source ~2s of headroom at the target rate.
	bufferCapacity = targetSampleRate * 2
	// featureWindow is how many recent samples feed the DSP feature
	// scorer when feature scoring is enabled.
	featureWindow = 4096
)

// LabelScore is one named classification score.
type LabelScore struct {
	Name  string
	Score float64
}

// DetectionEvent is emitted when a source's fused score crosses the
// gate, mirroring the spec's Detection event.
type DetectionEvent struct {
	SourceID  string
	Timestamp time.Time
	Score     float64
	TopLabels []LabelScore
}

// LabelEvent is the un-debounced labels side-channel.
type LabelEvent struct {
	SourceID string
	Detected []LabelScore
}

// Callbacks is the small capability interface a source registers with
// the detector, replacing duck-typed on_detect/on_labels callbacks with
// explicit dispatch (spec §9 design notes).
type Callbacks interface {
	OnDetect(DetectionEvent)
	OnLabels(LabelEvent)
}

// FeatureWeights configures the optional DSP feature scorer. Defaults
// are rms 0.4, zcr 0.3, crest 0.3 and spectral weights 0, matching the
// behavior the original system shipped with. The scorer reads only the
// RMS, ZCR and Crest weights; the spectral weights are carried in the
// struct but do not affect the score.
type FeatureWeights struct {
	RMS               float64
	ZCR               float64
	Crest             float64
	SpectralCentroid  float64
	SpectralBandwidth float64
	SpectralRolloff   float64
	SpectralFlatness  float64
	SpectralContrast  float64
}

// DefaultFeatureWeights returns the weights the system ships with.
func DefaultFeatureWeights() FeatureWeights {
	return FeatureWeights{RMS: 0.4, ZCR: 0.3, Crest: 0.3}
}

// Options configures a Detector.
type Options struct {
	ClassifierFactory    classifier.Factory
	ScoreThreshold       float64
	Delay                time.Duration
	FeatureScoringEnabled bool
	FeatureWeights       FeatureWeights
	Logger               *slog.Logger
}

// DefaultOptions returns spec-default tuning with the stub classifier
// factory. Callers typically override ClassifierFactory.
func DefaultOptions() Options {
	return Options{
		ClassifierFactory: classifier.NewStubSession,
		ScoreThreshold:    config.DefaultThreshold,
		Delay:             time.Duration(config.DefaultDelay * float64(time.Second)),
		FeatureWeights:    DefaultFeatureWeights(),
		Logger:            slog.Default(),
	}
}

type sourceEntry struct {
	buffer    *ringbuffer.Buffer // recent-audio window for feature scoring
	pending   []float32          // accumulates resampled audio until a full block is ready
	callbacks Callbacks
	lastEmit  time.Time
	hasEmit   bool
}

// Detector is the audio detector core. Zero value is not usable; build
// one with New.
type Detector struct {
	opts   Options
	logger *slog.Logger

	mu              sync.Mutex
	sources         map[string]*sourceEntry
	session         classifier.Session
	running         bool
	currentSourceID string
	lastSubmitTs    int64
	hasSubmitTs     bool

	// submitMu serializes the "assign current-source-id, then submit"
	// pair across concurrent ProcessAudio callers (spec §4.4/§5's
	// single-slot critical section). It is deliberately a separate lock
	// from mu: the classifier session invokes handleResult synchronously
	// from within Submit, and handleResult itself takes mu, so holding
	// mu across Submit would deadlock.
	submitMu sync.Mutex
}

// New creates a Detector. Call Start before feeding audio.
func New(opts Options) *Detector {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Detector{
		opts:    opts,
		logger:  opts.Logger.With("component", "detector"),
		sources: make(map[string]*sourceEntry),
	}
}

// AddSource registers callbacks and allocates a buffer for id. Returns a
// Conflict error if id is already registered.
func (d *Detector) AddSource(id string, callbacks Callbacks) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.sources[id]; exists {
		return detectorerr.New(detectorerr.Conflict, fmt.Errorf("source %q already registered", id))
	}
	d.sources[id] = &sourceEntry{
		buffer:    ringbuffer.New(bufferCapacity, 1),
		callbacks: callbacks,
	}
	return nil
}

// RemoveSource deallocates id and forgets its timestamp/debounce state.
// A no-op if id is not registered.
func (d *Detector) RemoveSource(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sources, id)
}

// Start opens the classifier session and primes it with a zero-filled
// block to establish the monotonic clock baseline. A no-op if already
// running.
func (d *Detector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	session, err := d.opts.ClassifierFactory(classifier.Options{SampleRate: targetSampleRate})
	if err != nil {
		return detectorerr.New(detectorerr.ClassifierError, err)
	}
	startTimeMs := nowMs()
	if err := session.Submit(make([]float32, blockSize), startTimeMs); err != nil {
		session.Close()
		return detectorerr.New(detectorerr.ClassifierError, err)
	}
	// The callback is registered only after the priming submit: a session
	// may invoke it synchronously from Submit, and handleResult takes mu,
	// which Start is holding here.
	session.OnResult(d.handleResult)

	d.session = session
	d.lastSubmitTs = startTimeMs
	d.hasSubmitTs = true
	d.running = true
	return nil
}

// Stop closes the classifier and drains every source's buffer. A no-op
// if not running.
func (d *Detector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	var err error
	if d.session != nil {
		err = d.session.Close()
		d.session = nil
	}
	for _, s := range d.sources {
		s.buffer.Clear()
		s.pending = nil
		s.hasEmit = false
	}
	d.running = false
	d.hasSubmitTs = false
	return err
}

// ProcessAudio is the ingest path (spec §4.4 steps 1-5): resample if
// needed, append to the source's buffer, and submit complete blocks to
// the shared classifier session under the single-slot critical section.
func (d *Detector) ProcessAudio(sourceID string, samples []float32, sampleRate int) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return detectorerr.New(detectorerr.ClassifierError, fmt.Errorf("detector not running"))
	}
	entry, ok := d.sources[sourceID]
	if !ok {
		d.mu.Unlock()
		return detectorerr.New(detectorerr.Conflict, fmt.Errorf("unknown source %q", sourceID))
	}

	resampled := resampleToTarget(samples, sampleRate, targetSampleRate)
	if err := entry.buffer.Write(resampled); err != nil {
		d.mu.Unlock()
		return err
	}
	entry.pending = append(entry.pending, resampled...)

	for len(entry.pending) >= blockSize {
		block := entry.pending[:blockSize:blockSize]
		entry.pending = append([]float32(nil), entry.pending[blockSize:]...)
		session := d.session
		d.mu.Unlock()

		// The assign-then-submit pair must be atomic with respect to
		// other sources' submissions, so submitMu brackets both; mu is
		// only held inside that section long enough to update the
		// shared fields, never across the Submit call itself.
		d.submitMu.Lock()
		d.mu.Lock()
		blockDurationMs := int64(blockSize) * 1000 / targetSampleRate
		nextTs := d.lastSubmitTs + blockDurationMs
		if now := nowMs(); now > nextTs {
			nextTs = now
		}
		d.currentSourceID = sourceID
		d.lastSubmitTs = nextTs
		d.mu.Unlock()

		err := session.Submit(block, nextTs)
		d.submitMu.Unlock()
		if err != nil {
			return detectorerr.New(detectorerr.ClassifierError, err)
		}

		d.mu.Lock()
	}
	d.mu.Unlock()
	return nil
}

// handleResult is the classifier's OnResult callback. It routes the
// result to whichever source currently "owns" the shared session,
// fuses scores, applies the emit gate, and dispatches the labels
// side-channel.
func (d *Detector) handleResult(result classifier.Result) {
	d.mu.Lock()
	sourceID := d.currentSourceID
	entry, ok := d.sources[sourceID]
	if !ok {
		d.mu.Unlock()
		return
	}
	window := entry.buffer.ReadLast(featureWindow)
	featureScoring := d.opts.FeatureScoringEnabled
	weights := d.opts.FeatureWeights
	threshold := d.opts.ScoreThreshold
	delay := d.opts.Delay
	callbacks := entry.callbacks
	d.mu.Unlock()

	yamnetScore := fuseYamnetScore(result.Classifications)
	combined := yamnetScore
	if featureScoring {
		featureScore := fuseFeatureScore(window, targetSampleRate, weights)
		combined = 0.4*yamnetScore + 0.6*featureScore
	}

	now := time.Now()

	d.mu.Lock()
	shouldEmit := combined > threshold && (!entry.hasEmit || now.Sub(entry.lastEmit) > delay)
	if shouldEmit {
		entry.lastEmit = now
		entry.hasEmit = true
	}
	d.mu.Unlock()

	if callbacks == nil {
		return
	}

	if top := topLabels(result.Classifications, 3, 0.5); len(top) > 0 {
		callbacks.OnLabels(LabelEvent{SourceID: sourceID, Detected: top})
	}

	if shouldEmit {
		callbacks.OnDetect(DetectionEvent{
			SourceID:  sourceID,
			Timestamp: now,
			Score:     combined,
			TopLabels: topLabels(result.Classifications, 3, 0.5),
		})
	}
}

func fuseYamnetScore(classifications []classifier.Classification) float64 {
	var positive, negative float64
	for _, c := range classifications {
		switch c.Name {
		case classifier.LabelHands, classifier.LabelClapping, classifier.LabelCapGun:
			positive += float64(c.Score)
		case classifier.LabelFingerSnapping:
			negative += float64(c.Score)
		}
	}
	return positive - negative
}

func fuseFeatureScore(window []float32, sampleRate int, weights FeatureWeights) float64 {
	if len(window) == 0 {
		return 0
	}
	signal := make([]float64, len(window))
	for i, v := range window {
		signal[i] = float64(v)
	}

	frames := dsp.ComputeTemporalFeatures(signal, 1024)
	if len(frames) == 0 {
		return 0
	}

	maxRMS, maxCrest, sumZCR := 0.0, 0.0, 0.0
	for _, f := range frames {
		if f.RMS > maxRMS {
			maxRMS = f.RMS
		}
		if f.CrestFactor > maxCrest {
			maxCrest = f.CrestFactor
		}
		sumZCR += f.ZCR
	}
	meanZCR := sumZCR / float64(len(frames))

	return weights.RMS*maxRMS + weights.ZCR*meanZCR + weights.Crest*maxCrest
}

func topLabels(classifications []classifier.Classification, n int, minScore float64) []LabelScore {
	var candidates []LabelScore
	for _, c := range classifications {
		if float64(c.Score) > minScore {
			candidates = append(candidates, LabelScore{Name: c.Name, Score: float64(c.Score)})
		}
	}
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Score > candidates[j-1].Score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
