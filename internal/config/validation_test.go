package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaultsIsValid(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidateRejectsThresholdOutOfRange(t *testing.T) {
	s := Defaults()
	s.Global.Threshold = 1.5
	err := Validate(s)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 1)
}

func TestValidateRejectsNegativeDelay(t *testing.T) {
	s := Defaults()
	s.Global.Delay = -1
	require.Error(t, Validate(s))
}

func TestValidateAccumulatesMultipleErrors(t *testing.T) {
	s := Defaults()
	s.Global.Threshold = 2
	s.Global.Delay = -1
	s.Microphone.WebhookURL = "not-a-url"
	err := Validate(s)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 3)
}

func TestValidateAcceptsEmptyWebhookURL(t *testing.T) {
	s := Defaults()
	s.Microphone.WebhookURL = ""
	require.NoError(t, Validate(s))
}

func TestValidateRejectsRelativeWebhookURL(t *testing.T) {
	s := Defaults()
	s.VBAN.WebhookURL = "/just/a/path"
	require.Error(t, Validate(s))
}

func TestValidateRejectsDuplicateRTSPIDs(t *testing.T) {
	s := Defaults()
	s.RTSPSources = []RTSPSource{
		{ID: "cam1", URL: "rtsp://a"},
		{ID: "cam1", URL: "rtsp://b"},
	}
	require.Error(t, Validate(s))
}

func TestValidateRejectsInvalidVBANPort(t *testing.T) {
	s := Defaults()
	s.VBAN.Port = 70000
	require.Error(t, Validate(s))
}

func TestValidateRejectsDuplicateVBANSources(t *testing.T) {
	s := Defaults()
	s.SavedVBANSources = []SavedVBANSource{
		{IP: "10.0.0.1", Port: 6980, StreamName: "stream1"},
		{IP: "10.0.0.1", Port: 6980, StreamName: "stream1"},
	}
	require.Error(t, Validate(s))
}
