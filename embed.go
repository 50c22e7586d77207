package tableseg

import (
	"context"
	"math"
	"sync"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkg/errors"
)

// Embedder turns text into a vector. Implemented by the OpenAI client below;
// faked in tests with fixed vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// clamped to [0,1]. Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// OpenAIEmbedder embeds text with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates an embedder. An empty model selects
// text-embedding-3-small.
func NewOpenAIEmbedder(apiKey string, model openai.EmbeddingModel) *OpenAIEmbedder {
	if model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Embed returns the embedding vector for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "embedding request failed")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

// EmbeddingSimilarity adapts an Embedder into a SimilarityProvider using
// cosine similarity. Concept descriptions repeat for every table, so
// vectors are cached; precomputed concept embeddings can be seeded to
// avoid embedding calls for the taxonomy entirely.
type EmbeddingSimilarity struct {
	embedder Embedder

	mu    sync.Mutex
	cache map[string][]float64
}

// NewEmbeddingSimilarity wraps an embedder. Concepts with a precomputed
// Embedding are seeded into the cache keyed by their description.
func NewEmbeddingSimilarity(embedder Embedder, concepts []ConceptEntry) *EmbeddingSimilarity {
	cache := make(map[string][]float64)
	for _, c := range concepts {
		if len(c.Embedding) > 0 && c.Description != "" {
			cache[c.Description] = c.Embedding
		}
	}
	return &EmbeddingSimilarity{embedder: embedder, cache: cache}
}

// Similarity embeds both texts (through the cache) and compares them.
func (s *EmbeddingSimilarity) Similarity(ctx context.Context, a, b string) (float64, error) {
	va, err := s.vector(ctx, a)
	if err != nil {
		return 0, err
	}
	vb, err := s.vector(ctx, b)
	if err != nil {
		return 0, err
	}
	return CosineSimilarity(va, vb), nil
}

func (s *EmbeddingSimilarity) vector(ctx context.Context, text string) ([]float64, error) {
	s.mu.Lock()
	if v, ok := s.cache[text]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	if s.embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	v, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[text] = v
	s.mu.Unlock()
	return v, nil
}
