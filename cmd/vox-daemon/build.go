package main

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voxm2m/internal/clips"
	"voxm2m/internal/config"
	"voxm2m/internal/nlu"
	"voxm2m/internal/notify"
)

func newRecognizer(cfg *config.Config, hc *http.Client) (*nlu.SpeechRecognizer, func(), error) {
	r := cfg.Recognizer
	closer := func() {}

	var api openai.Client
	if cfg.UsesOpenAI() {
		api = openai.NewClient(
			option.WithAPIKey(r.OpenAIKey),
			option.WithHTTPClient(hc),
		)
		log.Debug("Loaded API Key")
	}

	var tr nlu.Transcriber
	switch r.Transcriber {
	case config.TranscriberWhisper:
		w, err := nlu.NewWhisperTranscriber(r.WhisperModel, r.Language)
		if err != nil {
			return nil, nil, fmt.Errorf("init whisper: %w", err)
		}
		closer = func() { w.Close() }
		tr = w
		log.Debug("Loaded whisper", "model", r.WhisperModel)
	default:
		tr = nlu.NewOpenAITranscriber(api, r.TranscribeModel, r.Language)
	}

	var m nlu.Matcher
	switch r.Matcher {
	case config.MatcherChat:
		m = nlu.NewChatMatcher(api, r.ChatModel, cfg.Catalog)
	default:
		var emb nlu.Embedder
		if r.Embedder == config.EmbedderOllama {
			emb = nlu.NewOllamaEmbedder(r.OllamaURL, r.EmbedModel, hc)
		} else {
			emb = nlu.NewOpenAIEmbedder(api, r.EmbedModel)
		}
		m = nlu.NewEmbeddingMatcher(emb, cfg.Catalog)
	}

	return nlu.NewSpeechRecognizer(tr, m), closer, nil
}

// newClipSink returns nil when no clip destination is configured.
func newClipSink(ctx context.Context, cfg config.ClipsConfig) (clips.Sink, error) {
	var sinks []clips.Sink

	if cfg.Dir != "" {
		fs, err := clips.NewFileSink(cfg.Dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
		log.Debug("Loaded clip dir", "dir", cfg.Dir)
	}

	if cfg.Bucket != "" {
		ms, err := clips.NewMinioSink(clips.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
		})
		if err != nil {
			return nil, err
		}
		if err := ms.Init(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, ms)
		log.Debug("Loaded clip bucket", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return clips.Tee(sinks...), nil
}

// newFeedback plays a sound for every delivered command. Playback runs off
// the poller goroutine.
func newFeedback(cfg config.FeedbackConfig) (func(nlu.Command, nlu.Target), error) {
	if cfg.Sound == "" {
		return nil, nil
	}
	b, err := notify.NewBeeper(cfg.Sound)
	if err != nil {
		return nil, err
	}
	return func(cmd nlu.Command, t nlu.Target) {
		go func() {
			if err := b.Beep(); err != nil {
				log.Warn("Failed to beep", "err", err)
			}
		}()
	}, nil
}
