package tableseg_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	tableseg "github.com/synapta/tableseg"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "identical", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "opposite clamps to zero", a: []float64{1, 0}, b: []float64{-1, 0}, want: 0},
		{name: "mismatched lengths", a: []float64{1, 2}, b: []float64{1, 2, 3}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
		{name: "zero vector", a: []float64{0, 0}, b: []float64{1, 1}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, tableseg.CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

// countingEmbedder returns fixed vectors and records how many calls it served.
type countingEmbedder struct {
	vectors map[string][]float64
	calls   int
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.calls++
	v, ok := e.vectors[text]
	if !ok {
		return []float64{0, 0, 1}, nil
	}
	return v, nil
}

func TestEmbeddingSimilarity_CachesVectors(t *testing.T) {
	embedder := &countingEmbedder{vectors: map[string][]float64{
		"risk tables": {1, 0, 0},
		"exposure":    {1, 0, 0},
	}}
	sim := tableseg.NewEmbeddingSimilarity(embedder, nil)

	score, err := sim.Similarity(context.Background(), "risk tables", "exposure")
	require.NoError(t, err)
	require.InDelta(t, 1.0, score, 1e-9)
	require.Equal(t, 2, embedder.calls)

	// Same pair again comes fully from the cache.
	_, err = sim.Similarity(context.Background(), "risk tables", "exposure")
	require.NoError(t, err)
	require.Equal(t, 2, embedder.calls)
}

func TestEmbeddingSimilarity_SeedsConceptEmbeddings(t *testing.T) {
	concepts := []tableseg.ConceptEntry{
		{ID: "risk", Description: "tables describing risk exposure", Embedding: []float64{0, 1, 0}},
	}
	embedder := &countingEmbedder{vectors: map[string][]float64{
		"Table 3: VaR by desk": {0, 1, 0},
	}}
	sim := tableseg.NewEmbeddingSimilarity(embedder, concepts)

	score, err := sim.Similarity(context.Background(), "Table 3: VaR by desk", "tables describing risk exposure")
	require.NoError(t, err)
	require.InDelta(t, 1.0, score, 1e-9)
	// Only the table text needed an embedding call; the concept came pre-seeded.
	require.Equal(t, 1, embedder.calls)
}

func TestEmbeddingSimilarity_NoEmbedder(t *testing.T) {
	sim := tableseg.NewEmbeddingSimilarity(nil, nil)
	_, err := sim.Similarity(context.Background(), "a", "b")
	require.Error(t, err)
}
