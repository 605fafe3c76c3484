package audio

import (
	"testing"
	"time"
)

func frame(v float32) []float32 {
	f := make([]float32, frameSize)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestSegmenter(t *testing.T) {
	seg := &segmenter{vad: VAD{Threshold: 0.1, Silence: 60 * time.Millisecond}}

	// leading silence is dropped
	for range 5 {
		if seg.push(frame(0)) {
			t.Fatal("ended before speech")
		}
	}
	if len(seg.out) != 0 {
		t.Fatalf("leading silence kept: %d samples", len(seg.out))
	}

	for range 3 {
		seg.push(frame(0.5))
	}

	// 60ms of silence is three 20ms frames; the third ends the utterance.
	if seg.push(frame(0)) || seg.push(frame(0)) {
		t.Fatal("ended too early")
	}
	if !seg.push(frame(0)) {
		t.Fatal("did not end after trailing silence")
	}

	if want := 5 * frameSize; len(seg.out) != want {
		t.Errorf("kept %d samples, want %d", len(seg.out), want)
	}
}

func TestSpeechResetsSilence(t *testing.T) {
	seg := &segmenter{vad: VAD{Threshold: 0.1, Silence: 40 * time.Millisecond}}

	seg.push(frame(0.5))
	seg.push(frame(0))
	seg.push(frame(0.5))
	if seg.push(frame(0)) {
		t.Fatal("silence counter not reset by speech")
	}
	if !seg.push(frame(0)) {
		t.Fatal("did not end")
	}
}

func TestFrameRMS(t *testing.T) {
	if got := frameRMS(frame(0.5)); got < 0.499 || got > 0.501 {
		t.Errorf("rms = %v, want 0.5", got)
	}
	if got := frameRMS(nil); got != 0 {
		t.Errorf("rms(nil) = %v", got)
	}
}
