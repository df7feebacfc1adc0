package analyzer

import "math"

// Level describes the amplitude of one buffer.
type Level struct {
	// Mean is the average absolute sample value.
	Mean float64
	// Gated is Mean after the noise floor gate; this is what drives pulses.
	Gated float64
	// Envelope is a smoothed Mean, for display.
	Envelope float64
}

// MeanAbs returns the average absolute sample value. Non-finite samples are
// skipped.
func MeanAbs(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	count := 0
	for _, s := range samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += math.Abs(v)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Gate applies a noise floor so weak signals are ignored, rescaling what is
// left back onto [0, 1].
func Gate(v, floor float64) float64 {
	if floor <= 0 {
		return math.Max(0, v)
	}
	if floor >= 1 || v <= floor {
		return 0
	}
	return clamp((v-floor)/(1.0-floor), 0, 1)
}

// Mix averages interleaved channels down to mono.
func Mix(in []float32, channels int) []float32 {
	return mixInto(nil, in, channels)
}

func mixInto(dst, in []float32, channels int) []float32 {
	if channels <= 1 {
		return append(dst, in...)
	}
	frames := len(in) / channels
	for f := 0; f < frames; f++ {
		var sum float32
		for _, s := range in[f*channels : (f+1)*channels] {
			sum += s
		}
		dst = append(dst, sum/float32(channels))
	}
	return dst
}
