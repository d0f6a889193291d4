package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	vectors [][]float32
	err     error
	dim     int
}

func (s *stubClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

func (s *stubClient) Dimension() int { return s.dim }

func TestZero(t *testing.T) {
	v := Zero(4)
	assert.Equal(t, []float32{0, 0, 0, 0}, v)
}

func TestEmbedOrZeroPassesThroughOnSuccess(t *testing.T) {
	want := [][]float32{{1, 2}, {3, 4}}
	vectors, fellBack := EmbedOrZero(context.Background(), &stubClient{vectors: want, dim: 2}, zerolog.Nop(), []string{"a", "b"})

	assert.False(t, fellBack)
	assert.Equal(t, want, vectors)
}

func TestEmbedOrZeroSubstitutesZeroVectors(t *testing.T) {
	c := &stubClient{err: errors.New("connection refused"), dim: 3}
	vectors, fellBack := EmbedOrZero(context.Background(), c, zerolog.Nop(), []string{"a", "b"})

	assert.True(t, fellBack)
	require.Len(t, vectors, 2)
	for _, v := range vectors {
		assert.Equal(t, []float32{0, 0, 0}, v)
	}
}

func TestOpenAIEmbedEmptyInput(t *testing.T) {
	c := NewOpenAI("http://localhost:11434/v1", "", "nomic-embed-text", 4, zerolog.Nop())
	vectors, err := c.Embed(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Equal(t, 4, c.Dimension())
}
