package audiometrics

import (
	"math"
	"math/cmplx"
	"sync"
)

// Geometry of the PCM analysis window. The dB range matches what the browser
// analyser exposes, so bin bytes land in the same scale the band reduction
// was tuned for.
const (
	pcmFFTSize = 2048
	pcmMinDB   = -100.0
	pcmMaxDB   = -30.0
)

// PCMAnalyser derives byte frequency bins from 16-bit little-endian PCM
// pushed in by a decoder. Push and FrequencyBins are safe from different
// goroutines; bins are computed over the most recent analysis window.
type PCMAnalyser struct {
	mu      sync.Mutex
	samples []float64
	fed     bool
}

// NewPCMAnalyser creates an analyser with an empty window.
func NewPCMAnalyser() *PCMAnalyser {
	return &PCMAnalyser{samples: make([]float64, 0, pcmFFTSize)}
}

// Push appends raw PCM samples. Only the latest window is retained; a
// trailing odd byte is dropped.
func (p *PCMAnalyser) Push(pcm []byte) {
	n := len(pcm) / 2
	if n == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.fed = true
	for i := 0; i < n; i++ {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		p.samples = append(p.samples, float64(v)/32768.0)
	}
	if over := len(p.samples) - pcmFFTSize; over > 0 {
		p.samples = append(p.samples[:0], p.samples[over:]...)
	}
}

// Reset drops the buffered window, so the next read reports no data.
func (p *PCMAnalyser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = p.samples[:0]
	p.fed = false
}

// FrequencyBins windows the buffered samples, transforms them and maps the
// magnitudes onto the byte dB scale. Returns ok=false until audio has been
// pushed.
func (p *PCMAnalyser) FrequencyBins() ([]byte, bool) {
	p.mu.Lock()
	if !p.fed {
		p.mu.Unlock()
		return nil, false
	}
	buf := make([]complex128, pcmFFTSize)
	for i, v := range p.samples {
		// Hann window against spectral leakage from the frame boundaries.
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(pcmFFTSize-1)))
		buf[i] = complex(v*w, 0)
	}
	p.mu.Unlock()

	fft(buf)

	bins := make([]byte, pcmFFTSize/2)
	for i := range bins {
		mag := cmplx.Abs(buf[i]) / float64(pcmFFTSize)
		db := pcmMinDB
		if mag > 0 {
			db = 20 * math.Log10(mag)
		}
		scaled := 255 * (db - pcmMinDB) / (pcmMaxDB - pcmMinDB)
		if scaled < 0 {
			scaled = 0
		} else if scaled > 255 {
			scaled = 255
		}
		bins[i] = byte(scaled)
	}
	return bins, true
}

// fft is an in-place iterative radix-2 transform. len(buf) must be a power of
// two.
func fft(buf []complex128) {
	n := len(buf)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}
	for length := 2; length <= n; length <<= 1 {
		step := cmplx.Rect(1, -2*math.Pi/float64(length))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := start; k < start+length/2; k++ {
				u := buf[k]
				v := buf[k+length/2] * w
				buf[k] = u + v
				buf[k+length/2] = u - v
				w *= step
			}
		}
	}
}
