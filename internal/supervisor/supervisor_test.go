package supervisor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clapd/clapd/internal/classifier"
	"github.com/clapd/clapd/internal/config"
	"github.com/clapd/clapd/internal/detectorerr"
	"github.com/clapd/clapd/internal/source"
	"github.com/clapd/clapd/internal/webhook"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	store := config.Store{Dir: t.TempDir()}
	sup := New(store, classifier.NewStubSession, nil)
	t.Cleanup(func() { sup.Stop() })
	return sup
}

func saveSettings(t *testing.T, sup *Supervisor, mutate func(*config.Settings)) {
	t.Helper()
	settings := config.Defaults()
	mutate(&settings)
	require.NoError(t, sup.Store.Save(settings))
}

func TestSelectActiveSourcePrecedenceRTSPWinsOverAll(t *testing.T) {
	settings := config.Defaults()
	settings.RTSPSources = []config.RTSPSource{{ID: "r1", URL: "rtsp://cam/1", Enabled: true}}
	settings.SavedVBANSources = []config.SavedVBANSource{{IP: "10.0.0.1", Port: 6980, StreamName: "s1", Enabled: true}}
	settings.Microphone.Enabled = true

	desc, _, err := selectActiveSource(settings)
	require.NoError(t, err)
	require.Equal(t, source.KindRTSP, desc.Kind)
	require.Equal(t, source.RTSPID("rtsp://cam/1"), desc.ID)
}

func TestSelectActiveSourcePrecedenceVBANBeforeMic(t *testing.T) {
	settings := config.Defaults()
	settings.SavedVBANSources = []config.SavedVBANSource{{IP: "10.0.0.1", Port: 6980, StreamName: "s1", Enabled: true}}
	settings.Microphone.Enabled = true

	desc, _, err := selectActiveSource(settings)
	require.NoError(t, err)
	require.Equal(t, source.KindVBAN, desc.Kind)
}

func TestSelectActiveSourceFallsBackToMic(t *testing.T) {
	settings := config.Defaults()
	settings.Microphone.Enabled = true
	settings.Microphone.DeviceIndex = 2

	desc, _, err := selectActiveSource(settings)
	require.NoError(t, err)
	require.Equal(t, source.KindMic, desc.Kind)
	require.Equal(t, source.MicID(2), desc.ID)
}

func TestSelectActiveSourceErrorsWhenNothingEnabled(t *testing.T) {
	_, _, err := selectActiveSource(config.Defaults())
	require.Error(t, err)
	require.True(t, detectorerr.Is(err, detectorerr.ConfigInvalid))
}

func TestStartReturnsErrorWhenNoSourceEnabled(t *testing.T) {
	sup := newTestSupervisor(t)
	err := sup.Start()
	require.Error(t, err)
	require.True(t, detectorerr.Is(err, detectorerr.ConfigInvalid))
	require.False(t, sup.Status().Running)
}

func TestStartReturnsConfigInvalidOnValidationFailure(t *testing.T) {
	sup := newTestSupervisor(t)
	saveSettings(t, sup, func(s *config.Settings) {
		s.Microphone.Enabled = true
		s.Global.Threshold = 2 // out of [0,1]
	})

	err := sup.Start()
	require.Error(t, err)
	require.True(t, detectorerr.Is(err, detectorerr.ConfigInvalid))
}

func TestStartStopIdempotentWithVBANSource(t *testing.T) {
	sup := newTestSupervisor(t)
	saveSettings(t, sup, func(s *config.Settings) {
		s.SavedVBANSources = []config.SavedVBANSource{
			{IP: "10.0.0.5", Port: 6980, StreamName: "patio", Enabled: true},
		}
	})

	require.NoError(t, sup.Start())
	require.NoError(t, sup.Start()) // second Start is a no-op

	status := sup.Status()
	require.True(t, status.Running)
	require.Equal(t, "vban", status.ActiveKind)

	require.NoError(t, sup.Stop())
	require.NoError(t, sup.Stop()) // second Stop is a no-op
	require.False(t, sup.Status().Running)
}

func TestStartUsesOverriddenTransportForMic(t *testing.T) {
	sup := newTestSupervisor(t)
	saveSettings(t, sup, func(s *config.Settings) {
		s.Microphone.Enabled = true
	})

	var started, stopped bool
	sup.startTransportFunc = func(desc source.Descriptor, onFrame func([]float32, int)) (func(), error) {
		require.Equal(t, source.KindMic, desc.Kind)
		started = true
		return func() { stopped = true }, nil
	}

	require.NoError(t, sup.Start())
	require.True(t, started)
	require.NoError(t, sup.Stop())
	require.True(t, stopped)
}

func TestDetectionFlowsToEventBus(t *testing.T) {
	sup := newTestSupervisor(t)
	saveSettings(t, sup, func(s *config.Settings) {
		s.SavedVBANSources = []config.SavedVBANSource{
			{IP: "10.0.0.5", Port: 6980, StreamName: "patio", Enabled: true},
		}
		s.Global.Threshold = 0.1
	})
	require.NoError(t, sup.Start())

	sub := sup.Hub.Subscribe()
	defer sub.Close()

	loud := make([]float32, 1600)
	for i := range loud {
		loud[i] = 0.9
	}
	sourceID := sup.Status().ActiveSourceID
	require.NoError(t, sup.Detector.ProcessAudio(sourceID, loud, 16000))

	// The labels side-channel event for the same result is published
	// before the clap event, so skip labels events.
	deadline := time.After(time.Second)
	for {
		select {
		case event := <-sub.Channel():
			if string(event.Kind) == "labels" {
				continue
			}
			require.Equal(t, "clap", string(event.Kind))
			return
		case <-deadline:
			t.Fatal("expected a clap event on the bus")
		}
	}
}

func TestWebhookSourceFieldIsLiteralVbanForVBANSource(t *testing.T) {
	received := make(chan webhook.Payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhook.Payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sup := newTestSupervisor(t)
	saveSettings(t, sup, func(s *config.Settings) {
		s.SavedVBANSources = []config.SavedVBANSource{
			{IP: "10.0.0.5", Port: 6980, StreamName: "patio", Enabled: true, WebhookURL: srv.URL},
		}
		s.Global.Threshold = 0.1
	})
	require.NoError(t, sup.Start())

	loud := make([]float32, 1600)
	for i := range loud {
		loud[i] = 0.9
	}
	sourceID := sup.Status().ActiveSourceID
	require.NoError(t, sup.Detector.ProcessAudio(sourceID, loud, 16000))

	select {
	case payload := <-received:
		require.Equal(t, "vban", payload.Source)
		require.Equal(t, "patio", payload.StreamName)
	case <-time.After(time.Second):
		t.Fatal("expected a webhook delivery")
	}
}

func TestVBANEnabledFilterConsultsCachedSettings(t *testing.T) {
	sup := newTestSupervisor(t)
	saveSettings(t, sup, func(s *config.Settings) {
		s.SavedVBANSources = []config.SavedVBANSource{
			{IP: "10.0.0.5", Port: 6980, StreamName: "patio", Enabled: true},
		}
	})
	sup.setCachedSettings(config.Settings{}) // force a stale cache
	sup.settingsAt = time.Time{}             // force reload on next read

	require.True(t, sup.vbanEnabled("10.0.0.5", "patio"))
	require.False(t, sup.vbanEnabled("10.0.0.5", "other"))
}
