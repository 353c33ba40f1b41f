package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// ErrOddLength is returned when a PCM payload is not a whole number of samples.
var ErrOddLength = fmt.Errorf("audio: pcm payload length is not a multiple of the sample width")

// DecodeFloat32LE decodes little-endian IEEE-754 float32 samples.
// Non-finite samples are replaced with zero.
func DecodeFloat32LE(pcm []byte) ([]float32, error) {
	if len(pcm)%4 != 0 {
		return nil, fmt.Errorf("decode float32: %d bytes: %w", len(pcm), ErrOddLength)
	}
	out := make([]float32, len(pcm)/4)
	for i := range out {
		v := math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			v = 0
		}
		out[i] = v
	}
	return out, nil
}

// DecodePCM16LE decodes little-endian signed 16-bit samples into [-1, 1).
func DecodePCM16LE(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("decode pcm16: %d bytes: %w", len(pcm), ErrOddLength)
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out, nil
}

// EncodePCM16LE encodes float samples as little-endian signed 16-bit PCM.
// Samples outside [-1, 1] are clamped.
func EncodePCM16LE(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float64) int16 {
	switch {
	case math.IsNaN(s):
		return 0
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	}
	return int16(math.Round(s * 32767))
}

// DownmixStereo averages interleaved L/R float pairs into mono. A trailing
// unpaired sample is dropped.
func DownmixStereo(interleaved []float32) []float32 {
	out := make([]float32, len(interleaved)/2)
	for i := range out {
		out[i] = (interleaved[i*2] + interleaved[i*2+1]) / 2
	}
	return out
}

// Resample converts mono float samples from srcRate to dstRate using linear
// interpolation. If the rates match or either is invalid, the input is
// returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Converter normalises incoming PCM chunks to a target sample rate. It logs a
// warning on the first rate mismatch and on the first malformed chunk.
// Create one per stream; not safe for concurrent use.
type Converter struct {
	TargetRate int

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Float32LE decodes a little-endian float32 chunk captured at srcRate and
// resamples it to TargetRate. Malformed chunks yield nil.
func (c *Converter) Float32LE(pcm []byte, srcRate int) []float32 {
	samples, err := DecodeFloat32LE(pcm)
	if err != nil {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: dropping malformed chunk", "bytes", len(pcm), "err", err)
		})
		return nil
	}
	if c.TargetRate <= 0 || srcRate == c.TargetRate {
		return samples
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio sample rate mismatch: resampling", "from", srcRate, "to", c.TargetRate)
	})
	return Resample(samples, srcRate, c.TargetRate)
}
