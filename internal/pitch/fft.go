package pitch

import (
	"math/cmplx"
	"sync"

	"github.com/andrepxx/go-dsp-guitar/fft"
)

// FFTAutocorrelator produces the same correlation values as [Autocorrelator]
// through an FFT cross-correlation of the frame's first half against the
// whole frame, in O(N log N). Thresholds and peak selection are identical.
//
// The transform's own scaling convention is normalised away by matching the
// lag-0 value against the directly computed energy of the first half.
type FFTAutocorrelator struct {
	mu sync.Mutex
	ft fft.FourierTransform

	bufA, bufX []float64
	specA      []complex128
	specX      []complex128
	corr       []float64
}

var _ Estimator = (*FFTAutocorrelator)(nil)

// NewFFTAutocorrelator returns an FFT-backed estimator.
func NewFFTAutocorrelator() *FFTAutocorrelator {
	return &FFTAutocorrelator{ft: fft.CreateFourierTransform()}
}

// Estimate implements [Estimator]. Transform failures yield none.
func (f *FFTAutocorrelator) Estimate(samples []float32, sampleRate int) Estimate {
	if sampleRate <= 0 || RMS(samples) < MinRMS {
		return None()
	}
	n := len(samples)
	half := n / 2
	if half <= MinLag {
		return None()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	size, _ := fft.NextPowerOfTwo(uint64(2 * n))
	f.ensure(int(size), half)

	var energy float64
	for i := range n {
		v := float64(samples[i])
		f.bufX[i] = v
		if i < half {
			f.bufA[i] = v
			energy += v * v
		}
	}
	fft.ZeroFloat(f.bufA[half:])
	fft.ZeroFloat(f.bufX[n:])
	if energy == 0 {
		return None()
	}

	if err := f.ft.RealFourier(f.bufA, f.specA, fft.SCALING_DEFAULT); err != nil {
		return None()
	}
	if err := f.ft.RealFourier(f.bufX, f.specX, fft.SCALING_DEFAULT); err != nil {
		return None()
	}
	for i := range f.specA {
		f.specA[i] = cmplx.Conj(f.specA[i]) * f.specX[i]
	}
	// bufX is free again; reuse it for the inverse.
	if err := f.ft.RealInverseFourier(f.specA, f.bufX, fft.SCALING_DEFAULT); err != nil {
		return None()
	}
	if f.bufX[0] == 0 {
		return None()
	}
	scale := energy / f.bufX[0]

	corr := f.corr[:half]
	clear(corr[:MinLag])
	for lag := MinLag; lag < half; lag++ {
		corr[lag] = f.bufX[lag] * scale
	}
	return pick(corr, sampleRate)
}

func (f *FFTAutocorrelator) ensure(size, half int) {
	if len(f.bufA) != size {
		f.bufA = make([]float64, size)
		f.bufX = make([]float64, size)
		f.specA = make([]complex128, size)
		f.specX = make([]complex128, size)
	}
	if cap(f.corr) < half {
		f.corr = make([]float64, half)
	}
}
