package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sineWave(freqHz, sampleRate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freqHz * float64(i) / sampleRate)
	}
	return out
}

func TestLowpassAttenuatesAboveCutoff(t *testing.T) {
	const sampleRate = 48000.0
	signal := sineWave(12000, sampleRate, 4096)
	filtered := NewLowpass(sampleRate, 500).FiltFilt(signal)

	require.Less(t, rmsOf(filtered), rmsOf(signal)*0.5)
}

func TestLowpassPassesBelowCutoff(t *testing.T) {
	const sampleRate = 48000.0
	signal := sineWave(100, sampleRate, 4096)
	filtered := NewLowpass(sampleRate, 1000).FiltFilt(signal)

	require.Greater(t, rmsOf(filtered), rmsOf(signal)*0.7)
}

func TestHighpassAttenuatesBelowCutoff(t *testing.T) {
	const sampleRate = 48000.0
	signal := sineWave(50, sampleRate, 4096)
	filtered := NewHighpass(sampleRate, 1000).FiltFilt(signal)

	require.Less(t, rmsOf(filtered), rmsOf(signal)*0.5)
}

func TestNotchAttenuatesCenterFrequency(t *testing.T) {
	const sampleRate = 48000.0
	signal := sineWave(1000, sampleRate, 4096)
	filtered := NewNotch(sampleRate, 1000, 30).FiltFilt(signal)

	require.Less(t, rmsOf(filtered), rmsOf(signal)*0.3)
}

func TestNormalizeScalesPeakToOne(t *testing.T) {
	out := Normalize([]float64{0.1, -0.5, 0.25})
	peak := 0.0
	for _, v := range out {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	require.InDelta(t, 1.0, peak, 1e-9)
}

func TestNormalizeSilentSignalUnchanged(t *testing.T) {
	in := []float64{0, 0, 0}
	require.Equal(t, in, Normalize(in))
}

func TestDetectPeaksFindsIsolatedSpike(t *testing.T) {
	signal := make([]float64, 1000)
	signal[500] = 1.0
	peaks := DetectPeaks(signal, PeakOptions{SampleRate: 48000, Height: 0.5, Distance: 100, Prominence: 0.3})
	require.Len(t, peaks, 1)
	require.Equal(t, 500, peaks[0].Index)
}

func TestDetectPeaksEnforcesMinimumDistance(t *testing.T) {
	signal := make([]float64, 1000)
	signal[100] = 1.0
	signal[110] = 0.9
	peaks := DetectPeaks(signal, PeakOptions{SampleRate: 48000, Height: 0.5, Distance: 50, Prominence: 0.1})
	require.Len(t, peaks, 1)
	require.Equal(t, 100, peaks[0].Index)
}

func TestComputeTemporalFeaturesSilenceHasZeroRMS(t *testing.T) {
	frames := ComputeTemporalFeatures(make([]float64, 2048), 1024)
	require.Len(t, frames, 2)
	for _, f := range frames {
		require.Equal(t, 0.0, f.RMS)
		require.Equal(t, 0.0, f.CrestFactor)
	}
}

func TestComputeSpectralFeaturesTonePeaksNearFrequency(t *testing.T) {
	const sampleRate = 48000.0
	signal := sineWave(2000, sampleRate, 1024)
	frames := ComputeSpectralFeatures(signal, sampleRate, 1024)
	require.Len(t, frames, 1)
	require.InDelta(t, 2000, frames[0].Centroid, 500)
}

func rmsOf(signal []float64) float64 {
	sum := 0.0
	for _, v := range signal {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(signal)))
}
