package dsp

import "math"

// Peak describes one detected amplitude peak, mirroring analyze_peaks'
// per-peak dictionary.
type Peak struct {
	Index              int
	Amplitude          float64
	NormalizedAmplitude float64
	Prominence         float64
	LeftBase           int
	RightBase          int
	Width              int
}

// PeakOptions configures DetectPeaks. Zero-valued Distance triggers the
// 100ms-at-sampleRate default used by detect_peaks when none is given.
type PeakOptions struct {
	SampleRate float64
	Height     float64
	Distance   int
	Prominence float64
}

// DefaultPeakOptions returns the same defaults as detect_peaks:
// height=0.5, distance=100ms worth of samples, prominence=0.3.
func DefaultPeakOptions(sampleRate float64) PeakOptions {
	return PeakOptions{
		SampleRate: sampleRate,
		Height:     0.5,
		Distance:   int(0.1 * sampleRate),
		Prominence: 0.3,
	}
}

// DetectPeaks finds local maxima in the normalized-absolute signal that
// clear a minimum height and prominence, enforcing a minimum sample
// distance between accepted peaks by greedily keeping the tallest
// candidate within each cluster first. This mirrors
// scipy.signal.find_peaks(height=..., distance=..., prominence=...) as
// used by detect_peaks/analyze_peaks, without requiring scipy's general
// n-dimensional peak-finding machinery.
func DetectPeaks(signal []float64, opts PeakOptions) []Peak {
	if len(signal) == 0 {
		return nil
	}

	peakAmp := 0.0
	for _, v := range signal {
		if a := math.Abs(v); a > peakAmp {
			peakAmp = a
		}
	}
	norm := make([]float64, len(signal))
	if peakAmp > 0 {
		for i, v := range signal {
			norm[i] = math.Abs(v) / peakAmp
		}
	}

	var candidates []int
	for i := 1; i < len(norm)-1; i++ {
		if norm[i] > norm[i-1] && norm[i] >= norm[i+1] && norm[i] >= opts.Height {
			candidates = append(candidates, i)
		}
	}

	// Greedily accept candidates in descending height order, skipping any
	// within Distance samples of an already-accepted peak.
	order := make([]int, len(candidates))
	copy(order, candidates)
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && norm[order[j]] > norm[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	distance := opts.Distance
	if distance == 0 {
		distance = int(0.1 * opts.SampleRate)
	}

	var accepted []int
	for _, idx := range order {
		tooClose := false
		for _, a := range accepted {
			d := idx - a
			if d < 0 {
				d = -d
			}
			if distance > 0 && d < distance {
				tooClose = true
				break
			}
		}
		if !tooClose {
			accepted = append(accepted, idx)
		}
	}

	// Sort accepted peaks back into index order before computing
	// prominence/base, which scans left/right of each peak independently.
	for i := 1; i < len(accepted); i++ {
		for j := i; j > 0 && accepted[j] < accepted[j-1]; j-- {
			accepted[j], accepted[j-1] = accepted[j-1], accepted[j]
		}
	}

	var out []Peak
	for _, idx := range accepted {
		left := leftBase(norm, idx)
		right := rightBase(norm, idx)
		prom := norm[idx] - math.Max(norm[left], norm[right])
		if prom < opts.Prominence {
			continue
		}
		out = append(out, Peak{
			Index:               idx,
			Amplitude:           signal[idx],
			NormalizedAmplitude: norm[idx],
			Prominence:          prom,
			LeftBase:            left,
			RightBase:           right,
			Width:               right - left,
		})
	}
	return out
}

// leftBase walks left from idx until the signal rises above norm[idx]
// (or the start is reached), mirroring scipy's base-finding for
// prominence calculation.
func leftBase(norm []float64, idx int) int {
	base := idx
	minSeen := norm[idx]
	for i := idx - 1; i >= 0; i-- {
		if norm[i] > norm[idx] {
			break
		}
		if norm[i] < minSeen {
			minSeen = norm[i]
			base = i
		}
	}
	return base
}

func rightBase(norm []float64, idx int) int {
	base := idx
	minSeen := norm[idx]
	for i := idx + 1; i < len(norm); i++ {
		if norm[i] > norm[idx] {
			break
		}
		if norm[i] < minSeen {
			minSeen = norm[i]
			base = i
		}
	}
	return base
}
