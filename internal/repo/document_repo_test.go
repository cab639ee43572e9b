package repo

import (
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragsearch/internal/model"
)

func TestStoredEmbedding(t *testing.T) {
	tests := []struct {
		name  string
		vec   []float32
		isNil bool
	}{
		{name: "missing", vec: nil, isNil: true},
		{name: "zero fallback", vec: []float32{0, 0, 0, 0}, isNil: true},
		{name: "real vector", vec: []float32{0, 0.5, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := storedEmbedding(tt.vec)
			if tt.isNil {
				require.Nil(t, got)
				return
			}
			require.Equal(t, pgvector.NewVector(tt.vec), got)
		})
	}
}

func TestChunkRowsDropsFailedEmbeddings(t *testing.T) {
	chunks := []*model.Chunk{
		{Content: "a", Index: 0, Embedding: []float32{1, 0}},
		{Content: "b", Index: 1, Embedding: []float32{0, 0}, Metadata: map[string]interface{}{"embedding_error": "rate limited"}},
	}
	rows, err := chunkRows("doc-1", chunks)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0]["embedding"])
	require.Nil(t, rows[1]["embedding"])
	require.Equal(t, "doc-1", rows[1]["document_id"])
	require.JSONEq(t, `{"embedding_error":"rate limited"}`, rows[1]["metadata"].(string))
}
