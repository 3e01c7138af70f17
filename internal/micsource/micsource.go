// Package micsource captures PCM audio from a local input device via
// PortAudio and feeds it to the detector core as just another source
// (spec §6's microphone path).
package micsource

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/clapd/clapd/internal/detectorerr"
)

const framesPerBuffer = 1600 // 100ms at 16kHz, matching the detector's block size.

// Device describes one capture-capable PortAudio device.
type Device struct {
	Index             int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
}

// FrameHandler receives captured mono samples at sampleRate. Called on
// PortAudio's own callback goroutine; must not block.
type FrameHandler func(samples []float32, sampleRate int)

// Source is a microphone capture session bound to one input device.
type Source struct {
	DeviceIndex int
	OnFrame     FrameHandler
	Logger      *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool
}

// New creates a Source for the given device index.
func New(deviceIndex int, onFrame FrameHandler, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		DeviceIndex: deviceIndex,
		OnFrame:     onFrame,
		Logger:      logger.With("component", "micsource"),
	}
}

// ListDevices enumerates every PortAudio device exposing at least one
// input channel, matching spec §6's list_audio_devices() operation.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, detectorerr.New(detectorerr.AudioDeviceError, err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, detectorerr.New(detectorerr.AudioDeviceError, err)
	}

	out := make([]Device, 0, len(devices))
	for i, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, Device{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	return out, nil
}

// Start opens and begins the capture stream. A no-op if already
// running.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return detectorerr.New(detectorerr.AudioDeviceError, err)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		portaudio.Terminate()
		return detectorerr.New(detectorerr.AudioDeviceError, err)
	}
	if s.DeviceIndex < 0 || s.DeviceIndex >= len(devices) {
		portaudio.Terminate()
		return detectorerr.New(detectorerr.AudioDeviceError, fmt.Errorf("device index %d out of range", s.DeviceIndex))
	}
	device := devices[s.DeviceIndex]
	sampleRate := device.DefaultSampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}

	callback := func(in []float32) {
		if s.OnFrame != nil {
			s.OnFrame(in, int(sampleRate))
		}
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		portaudio.Terminate()
		return detectorerr.New(detectorerr.AudioDeviceError, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return detectorerr.New(detectorerr.AudioDeviceError, err)
	}

	s.stream = stream
	s.running = true
	return nil
}

// Stop stops and closes the capture stream. A no-op if not running.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	var err error
	if stopErr := s.stream.Stop(); stopErr != nil {
		err = stopErr
	}
	if closeErr := s.stream.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	portaudio.Terminate()

	s.stream = nil
	s.running = false
	if err != nil {
		return detectorerr.New(detectorerr.AudioDeviceError, err)
	}
	return nil
}
