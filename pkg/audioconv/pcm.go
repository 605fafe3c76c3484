package audioconv

import (
	"encoding/binary"
	"math"
)

// clip is decoded interleaved audio before normalization.
type clip struct {
	samples  []float32
	rate     int
	channels int
}

// mono16k averages channels and resamples to SampleRate. Unknown rate or
// channel count is taken as 44.1 kHz mono.
func (c clip) mono16k() []float32 {
	rate := c.rate
	if rate <= 0 {
		rate = 44100
	}
	return resample(downmix(c.samples, c.channels), rate, SampleRate)
}

// fromInts scales signed integer PCM of the given bit depth into [-1, 1].
func fromInts(data []int, bitDepth int) []float32 {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	full := float64(int64(1) << (bitDepth - 1))
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)/full, -1, 1))
	}
	return out
}

func fromInt16(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func fromInt16LE(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
	}
	return out
}

// downmix averages interleaved frames into one channel. A trailing partial
// frame is dropped.
func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float32
		for _, v := range in[i*channels : (i+1)*channels] {
			sum += v
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resample converts between rates with linear interpolation.
func resample(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 {
		return in
	}
	step := float64(from) / float64(to)
	n := int(math.Ceil(float64(len(in)) / step))
	last := len(in) - 1

	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * step
		j := min(int(pos), last)
		if j == last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
