package vban

import "encoding/binary"

// DecodePCM16 converts a little-endian int16 PCM payload into float32
// samples in [-1, 1), matching the original detector's
// `np.frombuffer(..., dtype=np.int16).astype(np.float32) / 32768.0`. A
// trailing odd byte (an incomplete sample) is dropped rather than
// erroring, mirroring `audio_bytes[:num_samples*2]`.
func DecodePCM16(payload []byte) []float32 {
	n := len(payload) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(payload[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// Downmix averages interleaved multi-channel samples down to mono,
// mirroring `audio_data.reshape(-1, channels).mean(axis=1)`. Samples
// are mono already returned unchanged. Any trailing samples that don't
// form a complete frame are dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample performs linear-interpolation resampling from srcRate to
// dstRate. The original detector resamples via scipy.signal.resample
// (an FFT-based method); linear interpolation is used here instead since
// no third-party resampling library appears anywhere in the example
// pack and FFT-domain resampling of small, irregularly sized VBAN
// payload chunks would need careful windowing to avoid edge artifacts
// that linear interpolation does not. Skipped entirely when the rates
// already match, exactly as the Python path does.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := len(samples) * dstRate / srcRate
	if dstLen <= 0 {
		return nil
	}
	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		out[i] = samples[i0]*(1-frac) + samples[i0+1]*frac
	}
	return out
}
