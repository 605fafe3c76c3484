package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

// OllamaEmbedder embeds texts with a local Ollama server, one request per text.
type OllamaEmbedder struct {
	baseURL string
	model   string
	http    *http.Client
}

func NewOllamaEmbedder(baseURL, model string, hc *http.Client) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &OllamaEmbedder{baseURL: strings.TrimRight(baseURL, "/"), model: model, http: hc}
}

func (o *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		v, err := o.embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (o *OllamaEmbedder) embed(ctx context.Context, text string) ([]float64, error) {
	jsonBody, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var or ollamaResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return nil, err
	}
	if len(or.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}

	return or.Embedding, nil
}
