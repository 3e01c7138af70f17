package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	store := Store{Dir: t.TempDir()}
	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, Defaults(), got)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store := Store{Dir: t.TempDir()}
	want := Defaults()
	want.Global.Threshold = 0.8
	want.Microphone.Enabled = true
	want.Microphone.WebhookURL = "https://example.com/hook"
	want.RTSPSources = append(want.RTSPSources, RTSPSource{ID: "r1", URL: "rtsp://cam/1"})

	require.NoError(t, store.Save(want))
	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSaveRotatesSingleBackup(t *testing.T) {
	dir := t.TempDir()
	store := Store{Dir: dir}

	first := Defaults()
	first.Global.Threshold = 0.1
	require.NoError(t, store.Save(first))

	second := Defaults()
	second.Global.Threshold = 0.2
	require.NoError(t, store.Save(second))

	backupRaw, err := os.ReadFile(filepath.Join(dir, backupFilename))
	require.NoError(t, err)
	require.Contains(t, string(backupRaw), `"threshold": 0.1`)

	third := Defaults()
	third.Global.Threshold = 0.3
	require.NoError(t, store.Save(third))

	backupRaw, err = os.ReadFile(filepath.Join(dir, backupFilename))
	require.NoError(t, err)
	require.Contains(t, string(backupRaw), `"threshold": 0.2`)
}

func TestLoadCorruptFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFilename), []byte("{not json"), 0o644))

	store := Store{Dir: dir}
	got, err := store.Load()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCorruptSettings))
	require.Equal(t, Defaults(), got)
}

func TestLoadPartialFileMergesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFilename), []byte(`{"microphone":{"enabled":true}}`), 0o644))

	store := Store{Dir: dir}
	got, err := store.Load()
	require.NoError(t, err)
	require.True(t, got.Microphone.Enabled)
	require.Equal(t, Defaults().Global.Threshold, got.Global.Threshold)
	require.Equal(t, Defaults().VBAN.Port, got.VBAN.Port)
}
