// Package rtspsource reads PCM audio out of an RTSP stream by
// shelling out to ffmpeg (spec §4.11, supplemented from
// original_source): `internal/rtspsource` never speaks RTSP itself,
// it treats the external decoder's stdout as just another PCM source.
package rtspsource

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/clapd/clapd/internal/detectorerr"
)

const (
	targetSampleRate = 16000
	readChunkFrames  = 1600 // 100ms at 16kHz, matching the detector's block size.
	bytesPerSample   = 4    // f32le
	stopGrace        = 1 * time.Second
)

// FrameHandler receives a chunk of mono float32 PCM at
// targetSampleRate. Must not block.
type FrameHandler func(samples []float32, sampleRate int)

// Source reads f32le PCM from an RTSP URL via an ffmpeg subprocess.
type Source struct {
	URL     string
	OnFrame FrameHandler
	Logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a Source for url.
func New(url string, onFrame FrameHandler, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		URL:     url,
		OnFrame: onFrame,
		Logger:  logger.With("component", "rtspsource", "url", url),
	}
}

// Start launches ffmpeg and begins streaming decoded PCM to OnFrame on
// a background goroutine. A no-op if already running.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", s.URL,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", targetSampleRate),
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return detectorerr.New(detectorerr.StreamError, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return detectorerr.New(detectorerr.StreamError, err)
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.readLoop(cmd, stdout, s.done)
	return nil
}

func (s *Source) readLoop(cmd *exec.Cmd, stdout io.ReadCloser, done chan struct{}) {
	defer close(done)
	chunk := make([]byte, readChunkFrames*bytesPerSample)

	for {
		n, err := io.ReadFull(stdout, chunk)
		if n > 0 {
			samples := decodeF32LE(chunk[:n-n%bytesPerSample])
			if s.OnFrame != nil {
				s.OnFrame(samples, targetSampleRate)
			}
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.Logger.Error("rtsp reader terminated", "error", err)
			}
			break
		}
	}
	cmd.Wait()
}

// Stop cancels the ffmpeg subprocess and waits up to stopGrace for the
// read loop to exit. A no-op if not running.
func (s *Source) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.Logger.Warn("rtsp reader did not exit within grace period")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func decodeF32LE(raw []byte) []float32 {
	n := len(raw) / bytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
