package nlu

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

// Embedder maps texts to vectors of a common dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbeddingMatcher scores a transcript by cosine similarity against the
// catalog phrases. Phrase vectors are computed once in Prepare.
type EmbeddingMatcher struct {
	emb     Embedder
	phrases []string

	mu      sync.RWMutex
	vectors [][]float64
}

func NewEmbeddingMatcher(emb Embedder, catalog Catalog) *EmbeddingMatcher {
	return &EmbeddingMatcher{emb: emb, phrases: catalog.Phrases()}
}

func (m *EmbeddingMatcher) Prepare(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.vectors != nil {
		return nil
	}
	if len(m.phrases) == 0 {
		return errors.New("empty catalog")
	}

	vecs, err := m.emb.Embed(ctx, m.phrases)
	if err != nil {
		return fmt.Errorf("embed catalog: %w", err)
	}
	if len(vecs) != len(m.phrases) {
		return fmt.Errorf("embed catalog: got %d vectors for %d phrases", len(vecs), len(m.phrases))
	}

	m.vectors = vecs
	return nil
}

func (m *EmbeddingMatcher) Match(ctx context.Context, text string) (string, float64, error) {
	m.mu.RLock()
	vectors := m.vectors
	m.mu.RUnlock()

	if vectors == nil {
		return "", 0, errors.New("matcher not prepared")
	}

	vecs, err := m.emb.Embed(ctx, []string{text})
	if err != nil {
		return "", 0, fmt.Errorf("embed transcript: %w", err)
	}
	if len(vecs) != 1 {
		return "", 0, fmt.Errorf("embed transcript: got %d vectors", len(vecs))
	}

	best, bestScore := -1, math.Inf(-1)
	for i, v := range vectors {
		s := Cosine(vecs[0], v)
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return "", 0, nil
	}

	return m.phrases[best], bestScore, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the dimensions differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
