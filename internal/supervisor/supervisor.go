// Package supervisor owns the detector lifecycle end to end (spec §4.7,
// component C9): it loads settings, picks the active ingest source by
// precedence, wires it to the detector core, and fans detections out to
// webhooks and the event bus.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clapd/clapd/internal/classifier"
	"github.com/clapd/clapd/internal/config"
	"github.com/clapd/clapd/internal/detector"
	"github.com/clapd/clapd/internal/detectorerr"
	"github.com/clapd/clapd/internal/eventbus"
	"github.com/clapd/clapd/internal/micsource"
	"github.com/clapd/clapd/internal/rtspsource"
	"github.com/clapd/clapd/internal/source"
	"github.com/clapd/clapd/internal/vban"
	"github.com/clapd/clapd/internal/webhook"
)

const (
	// settingsCacheTTL mirrors spec §5's "settings cache (C3 and C9)"
	// rule: reads return the cached document when now-last_load < 5s.
	settingsCacheTTL = 5 * time.Second
	// webhookDispatchTimeout bounds one full Send call, including its
	// internal retry budget (3 attempts x 5s plus 1s/2s backoff).
	webhookDispatchTimeout = 30 * time.Second
)

// Status reports the supervisor's current lifecycle state, matching
// spec §6's status() operation.
type Status struct {
	Running        bool
	ActiveSourceID string
	ActiveKind     string
}

// Supervisor is the single owner of the detector's running/stopped
// state. The zero value is not usable; build one with New.
type Supervisor struct {
	Store    config.Store
	Detector *detector.Detector
	Hub      *eventbus.Hub
	Webhooks *webhook.Dispatcher
	VBAN     *vban.Receiver
	Logger   *slog.Logger

	classifierFactory classifier.Factory

	// startTransportFunc is overridable in tests so lifecycle logic can
	// be exercised without touching real audio hardware, spawning
	// ffmpeg, or binding sockets.
	startTransportFunc func(desc source.Descriptor, onFrame func([]float32, int)) (stop func(), err error)

	mu          sync.Mutex
	running     bool
	active      source.Descriptor
	group       *errgroup.Group
	groupCancel context.CancelFunc

	settingsMu   sync.Mutex
	settingsAt   time.Time
	lastSettings config.Settings
}

// New builds a Supervisor backed by store for settings persistence and
// classifierFactory for the detector's classifier session. The VBAN
// receiver is constructed here (bound to the port in the current
// settings document, or config.DefaultVBANPort) but not started: it is
// started for the process lifetime by Run, independent of Start/Stop.
func New(store config.Store, classifierFactory classifier.Factory, logger *slog.Logger) *Supervisor {
	if classifierFactory == nil {
		classifierFactory = classifier.NewStubSession
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "supervisor")

	s := &Supervisor{
		Store:             store,
		Hub:               eventbus.New(),
		Webhooks:          webhook.New(logger),
		Logger:            logger,
		classifierFactory: classifierFactory,
	}
	s.startTransportFunc = s.defaultStartTransport

	initial, err := store.Load()
	port := config.DefaultVBANPort
	if err == nil {
		s.setCachedSettings(initial)
		if initial.VBAN.Port > 0 {
			port = initial.VBAN.Port
		}
	}
	s.VBAN = vban.New(port, s.vbanEnabled, s.onVBANFrame, logger)
	return s
}

// Run starts the VBAN receiver and blocks until ctx is canceled, then
// stops it. The receiver runs for the process lifetime (spec §3
// Lifecycle) regardless of whether a detection session is started or
// stopped via Start/Stop.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.VBAN.Start(); err != nil {
		return detectorerr.New(detectorerr.StreamError, err)
	}
	<-ctx.Done()
	s.VBAN.Stop()
	return nil
}

// Start implements spec §4.7's start(config): load and validate
// settings, select the active ingest source by precedence, wire it to a
// fresh detector instance, and emit detection_status: started. A no-op
// if already running.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	settings, err := s.Store.Load()
	if errors.Is(err, config.ErrCorruptSettings) {
		s.Logger.Error("settings file is corrupt, rewriting defaults", "error", err)
		if saveErr := s.Store.Save(settings); saveErr != nil {
			return detectorerr.New(detectorerr.ConfigIOError, saveErr)
		}
	} else if err != nil {
		return detectorerr.New(detectorerr.ConfigIOError, err)
	}
	if verr := config.Validate(settings); verr != nil {
		return detectorerr.WithField(detectorerr.ConfigInvalid, "settings", verr)
	}
	s.setCachedSettings(settings)

	desc, webhookURL, err := selectActiveSource(settings)
	if err != nil {
		return err
	}

	det := detector.New(detector.Options{
		ClassifierFactory: s.classifierFactory,
		ScoreThreshold:    settings.Global.Threshold,
		Delay:             time.Duration(settings.Global.Delay * float64(time.Second)),
		FeatureWeights:    detector.DefaultFeatureWeights(),
		Logger:            s.Logger,
	})
	if err := det.Start(); err != nil {
		return err
	}

	callbacks := &sourceCallbacks{
		sup:        s,
		sourceKind: desc.Kind,
		streamName: desc.VBANStreamName,
		webhookURL: webhookURL,
	}
	if err := det.AddSource(desc.ID, callbacks); err != nil {
		det.Stop()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, _ := errgroup.WithContext(ctx)

	onFrame := func(samples []float32, rate int) {
		if err := det.ProcessAudio(desc.ID, samples, rate); err != nil {
			s.Logger.Debug("dropped audio frame", "source", desc.ID, "error", err)
		}
	}
	stop, err := s.startTransportFunc(desc, onFrame)
	if err != nil {
		det.RemoveSource(desc.ID)
		det.Stop()
		cancel()
		return err
	}
	group.Go(func() error {
		<-ctx.Done()
		if stop != nil {
			stop()
		}
		return nil
	})

	s.Detector = det
	s.group = group
	s.groupCancel = cancel
	s.active = desc
	s.running = true

	s.Hub.PublishDetectionStatus("started")
	return nil
}

// Stop implements spec §4.7's stop(): unsubscribe the active source,
// close the detector, and emit detection_status: stopped. A no-op if
// not running.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	desc := s.active
	det := s.Detector
	cancel := s.groupCancel
	group := s.group
	s.mu.Unlock()

	cancel()
	group.Wait()

	det.RemoveSource(desc.ID)
	err := det.Stop()

	s.mu.Lock()
	s.running = false
	s.active = source.Descriptor{}
	s.group = nil
	s.groupCancel = nil
	s.mu.Unlock()

	s.Hub.PublishDetectionStatus("stopped")
	return err
}

// Status reports whether a detection session is running and, if so,
// which source feeds it.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running}
	if s.running {
		st.ActiveSourceID = s.active.ID
		st.ActiveKind = s.active.Kind.String()
	}
	return st
}

// ListAudioDevices matches spec §6's list_audio_devices() operation.
func (s *Supervisor) ListAudioDevices() ([]micsource.Device, error) {
	return micsource.ListDevices()
}

// ListVBANSources matches spec §6's list_vban_sources(window_ms)
// operation: a snapshot of the discovery registry within window.
func (s *Supervisor) ListVBANSources(window time.Duration) []vban.DiscoveredSource {
	return s.VBAN.Sources(window)
}

// selectActiveSource applies spec §4.7 step 2's precedence rule: first
// enabled RTSP source wins; else first enabled saved VBAN source; else
// microphone if enabled. This mirrors the behavior the original system
// shipped with rather than an explicit priority list (spec §9 open
// question; see the decision recorded in the design notes).
func selectActiveSource(settings config.Settings) (source.Descriptor, string, error) {
	for _, rtsp := range settings.RTSPSources {
		if !rtsp.Enabled {
			continue
		}
		return source.Descriptor{
			ID:         source.RTSPID(rtsp.URL),
			Name:       rtsp.Name,
			Kind:       source.KindRTSP,
			Enabled:    true,
			WebhookURL: rtsp.WebhookURL,
			RTSPURL:    rtsp.URL,
		}, rtsp.WebhookURL, nil
	}

	for _, v := range settings.SavedVBANSources {
		if !v.Enabled {
			continue
		}
		return source.Descriptor{
			ID:             source.VBANID(v.IP, v.Port, v.StreamName),
			Name:           v.Name,
			Kind:           source.KindVBAN,
			Enabled:        true,
			WebhookURL:     v.WebhookURL,
			VBANIP:         v.IP,
			VBANPort:       v.Port,
			VBANStreamName: v.StreamName,
		}, v.WebhookURL, nil
	}

	if settings.Microphone.Enabled {
		return source.Descriptor{
			ID:          source.MicID(settings.Microphone.DeviceIndex),
			Name:        "microphone",
			Kind:        source.KindMic,
			Enabled:     true,
			WebhookURL:  settings.Microphone.WebhookURL,
			DeviceIndex: settings.Microphone.DeviceIndex,
		}, settings.Microphone.WebhookURL, nil
	}

	return source.Descriptor{}, "", detectorerr.WithField(detectorerr.ConfigInvalid, "sources", fmt.Errorf("no enabled ingest source"))
}

// defaultStartTransport starts the transport backing desc and returns a
// function that stops it. VBAN needs no per-selection start: the
// receiver already runs for the process lifetime via Run.
func (s *Supervisor) defaultStartTransport(desc source.Descriptor, onFrame func([]float32, int)) (func(), error) {
	switch desc.Kind {
	case source.KindMic:
		m := micsource.New(desc.DeviceIndex, onFrame, s.Logger)
		if err := m.Start(); err != nil {
			return nil, err
		}
		return func() {
			if err := m.Stop(); err != nil {
				s.Logger.Error("microphone stop failed", "error", err)
			}
		}, nil
	case source.KindRTSP:
		r := rtspsource.New(desc.RTSPURL, onFrame, s.Logger)
		if err := r.Start(); err != nil {
			return nil, err
		}
		return r.Stop, nil
	case source.KindVBAN:
		return func() {}, nil
	default:
		return nil, detectorerr.New(detectorerr.ConfigInvalid, fmt.Errorf("unknown source kind %v", desc.Kind))
	}
}

// vbanEnabled is the VBAN receiver's EnabledFilter: it consults the
// cached settings document for a matching enabled saved_vban_sources
// entry, independent of which source is currently active (the registry
// keeps discovering and forwarding for every enabled saved source; only
// the active one is actually wired to a detector instance).
func (s *Supervisor) vbanEnabled(ip, streamName string) bool {
	settings := s.cachedSettingsSnapshot()
	for _, v := range settings.SavedVBANSources {
		if v.Enabled && v.IP == ip && v.StreamName == streamName {
			return true
		}
	}
	return false
}

// onVBANFrame is the VBAN receiver's FrameHandler. The receiver already
// resamples to the detector's target rate before delivery.
func (s *Supervisor) onVBANFrame(sourceID string, frame []float32, _ time.Time) {
	s.mu.Lock()
	det := s.Detector
	s.mu.Unlock()
	if det == nil {
		return
	}
	if err := det.ProcessAudio(sourceID, frame, vban.TargetSampleRate); err != nil {
		s.Logger.Debug("dropped vban frame", "source", sourceID, "error", err)
	}
}

func (s *Supervisor) cachedSettingsSnapshot() config.Settings {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	if time.Since(s.settingsAt) < settingsCacheTTL {
		return s.lastSettings
	}
	settings, err := s.Store.Load()
	if err != nil {
		s.Logger.Warn("settings reload failed, using stale cache", "error", err)
		return s.lastSettings
	}
	s.lastSettings = settings
	s.settingsAt = time.Now()
	return settings
}

func (s *Supervisor) setCachedSettings(settings config.Settings) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	s.lastSettings = settings
	s.settingsAt = time.Now()
}

// sourceCallbacks adapts the detector's Callbacks interface to the
// event bus and webhook dispatcher for one active source.
type sourceCallbacks struct {
	sup        *Supervisor
	sourceKind source.Kind
	streamName string
	webhookURL string
}

func (c *sourceCallbacks) OnDetect(event detector.DetectionEvent) {
	c.sup.Hub.PublishClap(eventbus.ClapPayload{
		SourceID:  event.SourceID,
		Timestamp: event.Timestamp.Unix(),
		Score:     event.Score,
	})

	if c.webhookURL == "" {
		return
	}
	webhookSource := event.SourceID
	if c.sourceKind == source.KindVBAN {
		webhookSource = "vban"
	}
	payload := webhook.Payload{
		Event:      "clap_detected",
		Source:     webhookSource,
		StreamName: c.streamName,
		Timestamp:  event.Timestamp.Unix(),
		Score:      event.Score,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookDispatchTimeout)
		defer cancel()
		if err := c.sup.Webhooks.Send(ctx, c.webhookURL, payload); err != nil {
			c.sup.Logger.Error("webhook dispatch failed", "source", event.SourceID, "error", err)
		}
	}()
}

func (c *sourceCallbacks) OnLabels(event detector.LabelEvent) {
	labels := make([]eventbus.DetectedLabel, len(event.Detected))
	for i, l := range event.Detected {
		labels[i] = eventbus.DetectedLabel{Name: l.Name, Score: l.Score}
	}
	c.sup.Hub.PublishLabels(eventbus.LabelsPayload{Source: event.SourceID, Detected: labels})
}
