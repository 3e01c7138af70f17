// Package dsp implements the signal-conditioning and feature-extraction
// stage applied to audio blocks before and alongside classification:
// configurable IIR filtering, peak detection, and temporal/spectral
// feature extraction (spec §4.2, component C2).
package dsp

import "math"

// Biquad is a single second-order IIR section in Direct Form I,
// parameterized by the RBJ Audio EQ Cookbook formulas. Cascading two
// biquads approximates a 4th-order Butterworth response, which is what
// Cascade below builds: no third-party filter-design library appears
// anywhere in the example pack, so the cookbook coefficients are derived
// directly here rather than reaching for scipy-style black-box design.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64
	y1, y2 float64
}

// Reset clears the filter's memory, as if no samples had been processed.
func (f *Biquad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// Step filters a single sample.
func (f *Biquad) Step(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// Apply filters a whole signal in place order, left to right.
func (f *Biquad) Apply(signal []float64) []float64 {
	out := make([]float64, len(signal))
	for i, x := range signal {
		out[i] = f.Step(x)
	}
	return out
}

// Cascade is an ordered chain of Biquad sections applied one after the
// other, used to build higher-order filters from 2nd-order building
// blocks.
type Cascade struct {
	stages []*Biquad
}

// Reset clears every stage's memory.
func (c *Cascade) Reset() {
	for _, s := range c.stages {
		s.Reset()
	}
}

// Apply runs the signal through every stage in sequence.
func (c *Cascade) Apply(signal []float64) []float64 {
	out := signal
	for _, s := range c.stages {
		out = s.Apply(out)
	}
	return out
}

// FiltFilt applies the cascade forward then backward (and resets its
// memory between passes), approximating scipy's zero-phase filtfilt:
// the net effect squares the magnitude response while cancelling phase
// distortion, at the cost of requiring the whole signal up front.
func (c *Cascade) FiltFilt(signal []float64) []float64 {
	c.Reset()
	forward := c.Apply(signal)

	reversed := make([]float64, len(forward))
	for i, v := range forward {
		reversed[len(forward)-1-i] = v
	}

	c.Reset()
	backward := c.Apply(reversed)

	out := make([]float64, len(backward))
	for i, v := range backward {
		out[len(backward)-1-i] = v
	}
	return out
}

func lowpassBiquad(sampleRate, cutoffHz, q float64) *Biquad {
	w0 := 2 * math.Pi * cutoffHz / sampleRate
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * q)

	b0 := (1 - cosW0) / 2
	b1 := 1 - cosW0
	b2 := (1 - cosW0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return &Biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func highpassBiquad(sampleRate, cutoffHz, q float64) *Biquad {
	w0 := 2 * math.Pi * cutoffHz / sampleRate
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * q)

	b0 := (1 + cosW0) / 2
	b1 := -(1 + cosW0)
	b2 := (1 + cosW0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return &Biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func bandpassBiquad(sampleRate, centerHz, bandwidthHz float64) *Biquad {
	w0 := 2 * math.Pi * centerHz / sampleRate
	q := centerHz / bandwidthHz
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * q)

	b0 := alpha
	b1 := 0.0
	b2 := -alpha
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return &Biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func notchBiquad(sampleRate, centerHz, q float64) *Biquad {
	w0 := 2 * math.Pi * centerHz / sampleRate
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * q)

	b0 := 1.0
	b1 := -2 * cosW0
	b2 := 1.0
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return &Biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// butterworthQ values approximate the per-stage Q factors of a 4th-order
// Butterworth filter built from two cascaded 2nd-order sections.
var butterworthQ = [2]float64{0.5412, 1.3066}

// NewLowpass builds a 4th-order Butterworth-response lowpass filter via
// two cascaded biquad sections, mirroring apply_lowpass_filter's
// scipy.signal.butter(order=4, btype='low') + filtfilt pairing.
func NewLowpass(sampleRate, cutoffHz float64) *Cascade {
	return &Cascade{stages: []*Biquad{
		lowpassBiquad(sampleRate, cutoffHz, butterworthQ[0]),
		lowpassBiquad(sampleRate, cutoffHz, butterworthQ[1]),
	}}
}

// NewHighpass builds a 4th-order Butterworth-response highpass filter.
func NewHighpass(sampleRate, cutoffHz float64) *Cascade {
	return &Cascade{stages: []*Biquad{
		highpassBiquad(sampleRate, cutoffHz, butterworthQ[0]),
		highpassBiquad(sampleRate, cutoffHz, butterworthQ[1]),
	}}
}

// NewBandpass builds a 4th-order Butterworth-response bandpass filter
// spanning [lowHz, highHz].
func NewBandpass(sampleRate, lowHz, highHz float64) *Cascade {
	center := math.Sqrt(lowHz * highHz)
	bandwidth := highHz - lowHz
	return &Cascade{stages: []*Biquad{
		bandpassBiquad(sampleRate, center, bandwidth),
		bandpassBiquad(sampleRate, center, bandwidth),
	}}
}

// NewNotch builds a notch (band-stop) filter centered at centerHz with
// quality factor q, mirroring apply_notch_filter's
// scipy.signal.iirnotch(freq, q).
func NewNotch(sampleRate, centerHz, q float64) *Cascade {
	return &Cascade{stages: []*Biquad{notchBiquad(sampleRate, centerHz, q)}}
}

// Normalize scales a signal so its peak absolute value is 1, matching
// normalize_signal. A silent signal (all zeros) is returned unchanged.
func Normalize(signal []float64) []float64 {
	peak := 0.0
	for _, v := range signal {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	out := make([]float64, len(signal))
	if peak == 0 {
		copy(out, signal)
		return out
	}
	for i, v := range signal {
		out[i] = v / peak
	}
	return out
}
