// Package pitch estimates the fundamental frequency of a monophonic signal
// captured from a microphone and publishes one estimate per display frame.
package pitch

import (
	"encoding/json"
	"math"
)

// Detection thresholds. Raising MinRMS makes the tuner ignore quieter
// playing; lowering MinCorrelation admits noisier estimates.
const (
	// MinRMS is the loudness floor below which a frame is treated as silence.
	MinRMS = 0.02

	// MinCorrelation is the peak correlation floor below which no periodicity
	// is reported.
	MinCorrelation = 0.01

	// MinLag is the smallest period, in samples, that is searched. At 44.1 kHz
	// it caps detection at about 1102 Hz.
	MinLag = 40

	// PeakRatio selects the first local correlation peak that reaches this
	// fraction of the global maximum. Later peaks at integer multiples of the
	// true period are nearly as tall; preferring the first one avoids
	// reporting a note an octave low.
	PeakRatio = 0.9
)

// Estimate is the result of analysing one frame: a fundamental frequency in
// Hz, or none when the signal is too quiet or not periodic enough.
type Estimate struct {
	Hz float64
	OK bool
}

// None is the absent estimate.
func None() Estimate { return Estimate{} }

// Some wraps a detected frequency.
func Some(hz float64) Estimate { return Estimate{Hz: hz, OK: true} }

type estimateJSON struct {
	FrequencyHz *float64 `json:"frequencyHz"`
}

// MarshalJSON encodes {"frequencyHz": 110.2} or {"frequencyHz": null}.
func (e Estimate) MarshalJSON() ([]byte, error) {
	var v estimateJSON
	if e.OK {
		v.FrequencyHz = &e.Hz
	}
	return json.Marshal(v)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (e *Estimate) UnmarshalJSON(data []byte) error {
	var v estimateJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = None()
	if v.FrequencyHz != nil {
		*e = Some(*v.FrequencyHz)
	}
	return nil
}

// Estimator maps one frame of samples to a pitch estimate.
// Implementations must be safe for use by a single goroutine at a time.
type Estimator interface {
	Estimate(samples []float32, sampleRate int) Estimate
}

// RMS returns the root mean square of samples. An empty slice has RMS 0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Autocorrelator is the direct time-domain estimator. For each candidate lag
// in [MinLag, N/2) it sums x[i]·x[i+lag] over the first half of the frame.
// Cost is O((N/2)²) per frame: about two million multiply-adds for a
// 2048-sample frame, comfortably inside one display frame on current
// hardware. Use [FFTAutocorrelator] for larger frames.
//
// The zero value is ready to use.
type Autocorrelator struct {
	corr []float64
}

var _ Estimator = (*Autocorrelator)(nil)

// Estimate implements [Estimator].
func (a *Autocorrelator) Estimate(samples []float32, sampleRate int) Estimate {
	if sampleRate <= 0 || RMS(samples) < MinRMS {
		return None()
	}
	n := len(samples)
	half := n / 2
	if half <= MinLag {
		return None()
	}
	if cap(a.corr) < half {
		a.corr = make([]float64, half)
	}
	corr := a.corr[:half]
	clear(corr[:MinLag])
	for lag := MinLag; lag < half; lag++ {
		var sum float64
		for i := range half {
			j := i + lag
			if j >= n {
				break
			}
			sum += float64(samples[i]) * float64(samples[j])
		}
		corr[lag] = sum
	}
	return pick(corr, sampleRate)
}

// pick applies the peak selection rule to corr[MinLag:].
func pick(corr []float64, sampleRate int) Estimate {
	best, maxCorr := -1, 0.0
	for lag := MinLag; lag < len(corr); lag++ {
		if corr[lag] > maxCorr {
			maxCorr = corr[lag]
			best = lag
		}
	}
	if best < 0 || maxCorr <= MinCorrelation {
		return None()
	}

	threshold := PeakRatio * maxCorr
	for lag := MinLag + 1; lag < len(corr)-1; lag++ {
		c := corr[lag]
		if c >= threshold && c >= corr[lag-1] && c >= corr[lag+1] {
			best = lag
			break
		}
	}
	return Some(float64(sampleRate) / float64(best))
}
