package audio

import (
	"math"

	"github.com/argusdusty/gofft"
	"github.com/mjibson/go-dsp/window"
)

// BinFFT bins FFT coefficients into len(result) bars of normalised height
// (0.0-1.0, CAVA style: work in normalised space, scale on render)
func BinFFT(coeffs []complex128, sensitivity, baseScale float64, result []float64) {
	numBars := len(result)
	if numBars == 0 {
		return
	}

	// Use only first half (positive frequencies), and of that the first 3/4
	// (0 to ~16.5kHz at 44.1kHz) where most audio content is
	halfSize := len(coeffs) / 2
	maxFreqBin := (halfSize * 3) / 4

	binsPerBar := maxFreqBin / numBars
	if binsPerBar == 0 {
		binsPerBar = 1
	}

	for bar := 0; bar < numBars; bar++ {
		start := bar * binsPerBar
		end := min(start+binsPerBar, maxFreqBin)

		// Average magnitude in this range
		var sum float64
		for i := start; i < end; i++ {
			sum += math.Hypot(real(coeffs[i]), imag(coeffs[i]))
		}

		scaled := sum / float64(binsPerBar) * baseScale * sensitivity

		// Noise gate, then log scale for better visual distribution
		if scaled < 0.01 {
			result[bar] = 0
		} else {
			result[bar] = math.Log10(1 + scaled*9)
		}
	}
}

// RearrangeFrequenciesCenterOut creates a symmetric mirror pattern with the
// lowest frequencies at the centre and the highest at both edges
func RearrangeFrequenciesCenterOut(barHeights, result []float64) {
	n := len(barHeights)
	center := n / 2

	for i := 0; i < n/2; i++ {
		result[center-1-i] = barHeights[i]
		result[center+i] = barHeights[i]
	}
}

// Spectrum turns blocks of mono samples into bar heights
type Spectrum struct {
	size        int
	sensitivity float64
	baseScale   float64
	window      []float64
	buf         []complex128
}

// NewSpectrum creates an analyser for blocks of size samples (a power of two)
func NewSpectrum(size int) *Spectrum {
	return &Spectrum{
		size:        size,
		sensitivity: 1.0,
		baseScale:   0.0075 * float64(size) / 2048,
		window:      window.Hann(size),
		buf:         make([]complex128, size),
	}
}

// SetSensitivity scales bar heights before the noise gate
func (s *Spectrum) SetSensitivity(v float64) {
	s.sensitivity = v
}

// Bars analyses samples (zero padded or truncated to the block size) into
// len(result) bars
func (s *Spectrum) Bars(samples []float64, result []float64) error {
	for i := range s.buf {
		var v float64
		if i < len(samples) {
			v = samples[i] * s.window[i]
		}
		s.buf[i] = complex(v, 0)
	}

	if err := gofft.FFT(s.buf); err != nil {
		return err
	}

	BinFFT(s.buf, s.sensitivity, s.baseScale, result)
	return nil
}
