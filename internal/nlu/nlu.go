package nlu

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"time"
)

// Recognition is what a recognizer heard and which catalog phrase it is
// closest to. Score is a similarity in [0, 1].
type Recognition struct {
	Text    string
	Command string
	Score   float64
}

// Recognizer turns an audio clip into a recognition. A nil recognition with
// a nil error means nothing usable was heard.
type Recognizer interface {
	Ready(ctx context.Context) error
	Recognize(ctx context.Context, audio []byte) (*Recognition, error)
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Matcher scores a transcript against the catalog phrases.
type Matcher interface {
	Prepare(ctx context.Context) error
	Match(ctx context.Context, text string) (phrase string, score float64, err error)
}

// SpeechRecognizer chains a transcriber and a matcher.
type SpeechRecognizer struct {
	tr Transcriber
	m  Matcher
}

func NewSpeechRecognizer(tr Transcriber, m Matcher) *SpeechRecognizer {
	return &SpeechRecognizer{tr: tr, m: m}
}

func (r *SpeechRecognizer) Ready(ctx context.Context) error {
	if r.tr == nil || r.m == nil {
		return fmt.Errorf("recognizer not configured")
	}
	start := time.Now()
	if err := r.m.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare matcher: %w", err)
	}
	log.Debug("Matcher prepared", "took", time.Since(start))
	return nil
}

func (r *SpeechRecognizer) Recognize(ctx context.Context, audio []byte) (*Recognition, error) {
	start := time.Now()
	text, err := r.tr.Transcribe(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)

	log.Info("Transcribed", "text", text, "took", time.Since(start))

	if text == "" {
		return nil, nil
	}

	phrase, score, err := r.m.Match(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	if phrase == "" {
		return nil, nil
	}

	return &Recognition{Text: text, Command: phrase, Score: score}, nil
}
