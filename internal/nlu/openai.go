package nlu

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"

	"voxm2m/pkg/audioconv"
)

const (
	DefaultTranscribeModel = "whisper-1"
	DefaultEmbedModel      = "text-embedding-3-small"
)

// OpenAITranscriber sends the clip to the OpenAI transcription endpoint.
type OpenAITranscriber struct {
	client   openai.Client
	model    string
	language string
}

func NewOpenAITranscriber(client openai.Client, model, language string) *OpenAITranscriber {
	if model == "" {
		model = DefaultTranscribeModel
	}
	if language == "" {
		language = "en"
	}
	return &OpenAITranscriber{client: client, model: model, language: language}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     openai.File(bytes.NewReader(audio), "clip"+sniffExt(audio), "application/octet-stream"),
		Model:    openai.AudioModel(t.model),
		Language: openai.String(t.language),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	return resp.Text, nil
}

// OpenAIEmbedder embeds texts with the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

func NewOpenAIEmbedder(client openai.Client, model string) *OpenAIEmbedder {
	if model == "" {
		model = DefaultEmbedModel
	}
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("no embedding for input %d", i)
		}
	}

	return out, nil
}

// sniffExt names the upload so the endpoint can pick a decoder. Unknown
// data is sent as wav.
func sniffExt(audio []byte) string {
	if f := audioconv.Sniff(audio); f != audioconv.FormatUnknown {
		return "." + f.String()
	}
	return ".wav"
}
