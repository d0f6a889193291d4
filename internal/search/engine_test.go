package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debian777/kairos-mcp/internal/memory"
	"github.com/debian777/kairos-mcp/internal/vectorstore"
)

type fakeStore struct {
	vectorstore.Store
	hits []vectorstore.Scored
	err  error
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, limit int, flt vectorstore.Filter) ([]vectorstore.Scored, error) {
	return f.hits, f.err
}

type fakeEmbedder struct {
	err error
	dim int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func hit(uuid string, score float32, chain *memory.Chain, label string) vectorstore.Scored {
	m := &memory.Memory{UUID: uuid, Label: label, SpaceID: "default", Chain: chain}
	return vectorstore.Scored{
		Point: vectorstore.Point{ID: uuid, Payload: m.ToPayload()},
		Score: score,
	}
}

func newEngine(vs vectorstore.Store, emb *fakeEmbedder) *Engine {
	return New(vs, emb, []string{"default"}, 0.95, 0.7, zerolog.Nop())
}

func TestSearchRoleGating(t *testing.T) {
	vs := &fakeStore{hits: []vectorstore.Scored{
		hit("11111111-1111-4111-8111-111111111111", 0.97, nil, "exact"),
		hit("22222222-2222-4222-8222-222222222222", 0.80, nil, "close"),
		hit("33333333-3333-4333-8333-333333333333", 0.40, nil, "noise"),
	}}
	resp, err := newEngine(vs, &fakeEmbedder{dim: 4}).Search(context.Background(), "restart cache")
	require.NoError(t, err)

	assert.True(t, resp.MustObey)
	assert.Equal(t, 1, resp.PerfectMatches)
	require.Len(t, resp.Choices, 3) // match + refine + create; noise is dropped

	assert.Equal(t, RoleMatch, resp.Choices[0].Role)
	assert.Equal(t, "exact", resp.Choices[0].Label)
	assert.Equal(t, RoleRefine, resp.Choices[1].Role)
	assert.Equal(t, RoleCreate, resp.Choices[2].Role)
	assert.Contains(t, resp.NextAction, "kairos_begin")
}

func TestSearchAlwaysOffersCreate(t *testing.T) {
	resp, err := newEngine(&fakeStore{}, &fakeEmbedder{dim: 4}).Search(context.Background(), "nothing stored")
	require.NoError(t, err)

	assert.True(t, resp.MustObey)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, RoleCreate, resp.Choices[0].Role)
	assert.Zero(t, resp.PerfectMatches)
	assert.Contains(t, resp.NextAction, "kairos_mint")
}

func TestSearchGroupsByChainPreferringHead(t *testing.T) {
	chainHead := &memory.Chain{ID: "chain-1", Label: "Runbook", StepIndex: 1, StepCount: 3}
	chainMid := &memory.Chain{ID: "chain-1", Label: "Runbook", StepIndex: 2, StepCount: 3}
	vs := &fakeStore{hits: []vectorstore.Scored{
		hit("22222222-2222-4222-8222-222222222222", 0.99, chainMid, "step two"),
		hit("11111111-1111-4111-8111-111111111111", 0.96, chainHead, "step one"),
	}}
	resp, err := newEngine(vs, &fakeEmbedder{dim: 4}).Search(context.Background(), "runbook")
	require.NoError(t, err)

	// One candidate per chain, and the head represents it despite the lower score.
	require.Len(t, resp.Choices, 2)
	assert.Equal(t, "step one", resp.Choices[0].Label)
	assert.Equal(t, "Runbook", resp.Choices[0].ChainLabel)
	assert.Equal(t, 3, resp.Choices[0].StepCount)
}

func TestSearchDegradesToCreateOnEmbedderOutage(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("connection refused"), dim: 4}
	resp, err := newEngine(&fakeStore{}, emb).Search(context.Background(), "anything")
	require.NoError(t, err)

	assert.True(t, resp.MustObey)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, RoleCreate, resp.Choices[0].Role)
}

func TestSearchPropagatesStoreErrors(t *testing.T) {
	vs := &fakeStore{err: errors.New("qdrant unavailable")}
	_, err := newEngine(vs, &fakeEmbedder{dim: 4}).Search(context.Background(), "anything")
	assert.Error(t, err)
}

func TestResponseShapeHasNoForbiddenFields(t *testing.T) {
	vs := &fakeStore{hits: []vectorstore.Scored{
		hit("11111111-1111-4111-8111-111111111111", 0.97, nil, "exact"),
	}}
	resp, err := newEngine(vs, &fakeEmbedder{dim: 4}).Search(context.Background(), "q")
	require.NoError(t, err)

	body := marshalToMap(t, resp)
	assert.NotContains(t, body, "error")
	assert.NotContains(t, body, "score")
	assert.NotContains(t, body, "results")
	for _, c := range body["choices"].([]any) {
		assert.NotContains(t, c.(map[string]any), "score")
	}
}

func marshalToMap(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}
