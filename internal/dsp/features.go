package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"
)

// zeroGuard keeps divisions well-defined when a frame carries no energy,
// matching the 1e-10 epsilon used throughout analyze_signal's spectral
// feature computations.
const zeroGuard = 1e-10

// TemporalFrame holds the per-frame temporal features computed by
// ComputeTemporalFeatures, mirroring compute_temporal_features' output.
type TemporalFrame struct {
	RMS         float64
	ZCR         float64
	Skewness    float64
	Kurtosis    float64
	CrestFactor float64
}

// SpectralFrame holds the per-frame spectral features computed by
// ComputeSpectralFeatures, mirroring compute_spectral_features' output.
type SpectralFrame struct {
	Centroid  float64
	Bandwidth float64
	Rolloff   float64
	Flatness  float64
	Contrast  float64
}

// Features is the combined result of AnalyzeSignal, mirroring
// analyze_signal's {temporal, spectral, peaks} dictionary.
type Features struct {
	Temporal []TemporalFrame
	Spectral []SpectralFrame
	Peaks    []Peak
}

// frames splits signal into non-overlapping windows of frameLength
// samples, dropping any short final remainder, matching
// np.array_split(audio_data[:n_frames*frame_length], n_frames).
func frames(signal []float64, frameLength int) [][]float64 {
	if frameLength <= 0 {
		return nil
	}
	n := len(signal) / frameLength
	out := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, signal[i*frameLength:(i+1)*frameLength])
	}
	return out
}

// ComputeTemporalFeatures computes RMS, zero-crossing rate, skewness,
// kurtosis, and crest factor per frame, mirroring compute_temporal_features.
func ComputeTemporalFeatures(signal []float64, frameLength int) []TemporalFrame {
	var out []TemporalFrame
	for _, frame := range frames(signal, frameLength) {
		out = append(out, temporalFeaturesOf(frame))
	}
	return out
}

func temporalFeaturesOf(frame []float64) TemporalFrame {
	sumSq := 0.0
	for _, v := range frame {
		sumSq += v * v
	}
	rms := math.Sqrt(sumSq / float64(len(frame)))

	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i] < 0) != (frame[i-1] < 0) {
			crossings++
		}
	}
	zcr := float64(crossings) / (2 * float64(len(frame)))

	crest := 0.0
	if rms > 0 {
		peak := 0.0
		for _, v := range frame {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
		crest = peak / rms
	}

	return TemporalFrame{
		RMS:         rms,
		ZCR:         zcr,
		Skewness:    stat.Skewness(frame, nil),
		Kurtosis:    stat.ExKurtosis(frame, nil),
		CrestFactor: crest,
	}
}

// ComputeSpectralFeatures computes spectral centroid, bandwidth,
// 85%-energy rolloff, flatness, and contrast per Hann-windowed frame via
// an FFT, mirroring compute_spectral_features.
func ComputeSpectralFeatures(signal []float64, sampleRate float64, frameLength int) []SpectralFrame {
	fft := fourier.NewFFT(frameLength)
	win := window.Hann(make([]float64, frameLength))

	var out []SpectralFrame
	for _, frame := range frames(signal, frameLength) {
		windowed := make([]float64, frameLength)
		for i, v := range frame {
			windowed[i] = v * win[i]
		}

		coeffs := fft.Coefficients(nil, windowed)
		half := frameLength / 2
		spectrum := make([]float64, half)
		freqs := make([]float64, half)
		for i := 0; i < half; i++ {
			spectrum[i] = cmplxAbs(coeffs[i])
			freqs[i] = fft.Freq(i) * sampleRate
		}

		out = append(out, spectralFeaturesOf(spectrum, freqs))
	}
	return out
}

func spectralFeaturesOf(spectrum, freqs []float64) SpectralFrame {
	sumSpectrum := 0.0
	for _, v := range spectrum {
		sumSpectrum += v
	}

	norm := make([]float64, len(spectrum))
	if sumSpectrum > 0 {
		for i, v := range spectrum {
			norm[i] = v / sumSpectrum
		}
	} else {
		copy(norm, spectrum)
	}

	centroid := 0.0
	for i, f := range freqs {
		centroid += f * norm[i]
	}

	bandwidth := 0.0
	for i, f := range freqs {
		d := f - centroid
		bandwidth += d * d * norm[i]
	}
	bandwidth = math.Sqrt(bandwidth)

	rolloff := 0.0
	running := 0.0
	target := 0.85 * sumSpectrum
	for i, v := range spectrum {
		running += v
		if running >= target {
			rolloff = freqs[i]
			break
		}
	}

	logSum := 0.0
	for _, v := range spectrum {
		logSum += math.Log(v + zeroGuard)
	}
	geoMean := math.Exp(logSum / float64(len(spectrum)))
	arithMean := sumSpectrum / float64(len(spectrum))
	flatness := 0.0
	if arithMean > 0 {
		flatness = geoMean / arithMean
	}

	maxV, minV := spectrum[0], spectrum[0]
	for _, v := range spectrum {
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
	}

	return SpectralFrame{
		Centroid:  centroid,
		Bandwidth: bandwidth,
		Rolloff:   rolloff,
		Flatness:  flatness,
		Contrast:  maxV - minV,
	}
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// AnalyzeSignal runs temporal features, spectral features, and peak
// detection over a signal, mirroring analyze_signal's combined output.
func AnalyzeSignal(signal []float64, sampleRate float64, frameLength int) Features {
	return Features{
		Temporal: ComputeTemporalFeatures(signal, frameLength),
		Spectral: ComputeSpectralFeatures(signal, sampleRate, frameLength),
		Peaks:    DetectPeaks(signal, DefaultPeakOptions(sampleRate)),
	}
}
