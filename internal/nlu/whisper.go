package nlu

import (
	"context"
	"fmt"
	"sync"

	"voxm2m/pkg/audioconv"
	"voxm2m/pkg/stt"
)

// WhisperTranscriber runs whisper.cpp in process. The model is shared, so
// calls are serialized.
type WhisperTranscriber struct {
	mu  sync.Mutex
	tr  *stt.Transcriber
	opt stt.Options
}

func NewWhisperTranscriber(modelPath, language string) (*WhisperTranscriber, error) {
	if language == "" {
		language = "auto"
	}
	tr, err := stt.NewTranscriber(modelPath)
	if err != nil {
		return nil, err
	}
	return &WhisperTranscriber{
		tr: tr,
		opt: stt.Options{
			Language: language,
			BeamSize: 5,
		},
	}, nil
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	pcm, err := audioconv.DecodeToPCM16k(ctx, audio, audioconv.Options{MaxSamples: 30 * 16000})
	if err != nil {
		return "", fmt.Errorf("decode audio: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	res, err := w.tr.TranscribePCM(ctx, pcm, w.opt)
	if err != nil {
		return "", err
	}

	return res.Text, nil
}

func (w *WhisperTranscriber) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tr.Close()
}
