package audio

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	SampleRate = 16000
	frameSize  = 320 // 20ms
)

type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// VAD decides when an utterance is over.
type VAD struct {
	Threshold float64       // frame RMS above this counts as speech
	Silence   time.Duration // trailing silence that ends the utterance
	MaxLength time.Duration
}

func DefaultVAD() VAD {
	return VAD{
		Threshold: 0.015,
		Silence:   600 * time.Millisecond,
		MaxLength: 10 * time.Second,
	}
}

// segmenter accumulates frames from the first loud frame until enough
// trailing silence has been seen.
type segmenter struct {
	vad           VAD
	speaking      bool
	silenceFrames int
	out           []float32
}

func frameDur() time.Duration {
	return time.Duration(frameSize) * time.Second / SampleRate
}

// push consumes one frame and reports whether the utterance is complete.
func (s *segmenter) push(frame []float32) bool {
	if frameRMS(frame) > s.vad.Threshold {
		s.speaking = true
		s.silenceFrames = 0
		s.out = append(s.out, frame...)
		return false
	}
	if !s.speaking {
		return false
	}

	s.silenceFrames++
	if time.Duration(s.silenceFrames)*frameDur() >= s.vad.Silence {
		return true
	}
	s.out = append(s.out, frame...)
	return false
}

// RecordAuto records from the default input until the speaker stops talking,
// MaxLength passes or ctx is cancelled.
func (r *Recorder) RecordAuto(ctx context.Context, vad VAD) ([]float32, error) {
	buf := make([]float32, frameSize)
	seg := &segmenter{vad: vad, out: make([]float32, 0, SampleRate*3)}

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	maxFrames := int(vad.MaxLength / frameDur())
	for range maxFrames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}
		if seg.push(buf) {
			break
		}
	}

	if len(seg.out) == 0 {
		return nil, errors.New("no speech detected")
	}
	return seg.out, nil
}

// RecordFor records a fixed duration, stopping early if ctx is cancelled.
func (r *Recorder) RecordFor(ctx context.Context, dur time.Duration) ([]float32, error) {
	if dur <= 0 {
		dur = 5 * time.Second
	}

	buf := make([]float32, 1024)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(SampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	want := int(float64(SampleRate) * dur.Seconds())
	out := make([]float32, 0, want)

	for len(out) < want {
		if ctx.Err() != nil {
			break
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}

	if len(out) == 0 {
		return nil, errors.New("no audio recorded")
	}
	return out, nil
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
