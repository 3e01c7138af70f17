package detector

// resampleToTarget converts samples captured at sourceRate into the
// detector's targetRate. A pass-through when rates already match. When
// sourceRate is an integer multiple of targetRate, simple decimation is
// used (spec: "acceptable fallback when the incoming rate is a multiple
// of the target"); otherwise linear interpolation is used, mirroring the
// fallback internal/vban.Resample takes for the same reason — no
// third-party resampler exists anywhere in the example pack.
func resampleToTarget(samples []float32, sourceRate, targetRate int) []float32 {
	if sourceRate <= 0 || sourceRate == targetRate || len(samples) == 0 {
		return samples
	}
	if sourceRate > targetRate && sourceRate%targetRate == 0 {
		return decimate(samples, sourceRate/targetRate)
	}
	return linearResample(samples, sourceRate, targetRate)
}

func decimate(samples []float32, factor int) []float32 {
	out := make([]float32, 0, len(samples)/factor+1)
	for i := 0; i < len(samples); i += factor {
		out = append(out, samples[i])
	}
	return out
}

func linearResample(samples []float32, sourceRate, targetRate int) []float32 {
	dstLen := len(samples) * targetRate / sourceRate
	if dstLen <= 0 {
		return nil
	}
	out := make([]float32, dstLen)
	ratio := float64(sourceRate) / float64(targetRate)
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
