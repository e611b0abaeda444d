// Package audiometrics maintains the per-frame audio snapshot that seeds the
// orb visuals: a 4-band magnitude vector reduced from analyser frequency data
// plus a slow cumulative-energy vector smoothed with a fixed time constant.
package audiometrics

// Analyser exposes frequency-domain magnitude data for one audio source. Bins
// are byte magnitudes (0-255) ordered low to high frequency. ok is false when
// the source has no data this frame; the sampler treats that as silence.
type Analyser interface {
	FrequencyBins() ([]byte, bool)
}

// MicSource acquires and releases the microphone capture chain. Acquisition is
// lazy: the sampler only calls Acquire when the mic is actually selected, and
// Release when it no longer is, so capture hardware is not held open idle.
type MicSource interface {
	Acquire() (Analyser, error)
	Release()
}

// reduceBands averages contiguous bin ranges over the low-frequency window
// into bandCount bands normalized to [0,1]. Returns zeros for empty input.
func reduceBands(bins []byte, bandCount, maxBin int) []float64 {
	bands := make([]float64, bandCount)
	usable := len(bins)
	if usable > maxBin {
		usable = maxBin
	}
	if usable == 0 {
		return bands
	}
	per := usable / bandCount
	if per == 0 {
		per = 1
	}
	for b := 0; b < bandCount; b++ {
		start := b * per
		end := start + per
		if b == bandCount-1 {
			end = usable
		}
		if start >= usable {
			break
		}
		var sum float64
		for i := start; i < end; i++ {
			sum += float64(bins[i])
		}
		bands[b] = sum / float64(end-start) / 255.0
	}
	return bands
}

func meanLevel(bands []float64) float64 {
	if len(bands) == 0 {
		return 0
	}
	var sum float64
	for _, v := range bands {
		sum += v
	}
	return sum / float64(len(bands))
}
