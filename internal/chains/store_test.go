package chains

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debian777/kairos-mcp/internal/faults"
	"github.com/debian777/kairos-mcp/internal/memory"
	"github.com/debian777/kairos-mcp/internal/proof"
	"github.com/debian777/kairos-mcp/internal/vectorstore"
)

// memStore is an in-memory vectorstore.Store. Search returns whatever hits the
// test seeded; the filtered operations work off the stored payloads.
type memStore struct {
	mu     sync.Mutex
	points map[string]vectorstore.Point
	hits   []vectorstore.Scored
	err    error
}

func newMemStore() *memStore {
	return &memStore{points: map[string]vectorstore.Point{}}
}

func (s *memStore) Upsert(ctx context.Context, points []vectorstore.Point) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

func (s *memStore) Search(ctx context.Context, vector []float32, limit int, f vectorstore.Filter) ([]vectorstore.Scored, error) {
	return s.hits, s.err
}

func (s *memStore) Retrieve(ctx context.Context, ids []string) ([]vectorstore.Point, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []vectorstore.Point
	for _, id := range ids {
		if p, ok := s.points[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) Scroll(ctx context.Context, f vectorstore.Filter, limit int) ([]vectorstore.Point, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []vectorstore.Point
	for _, p := range s.points {
		if matches(p, f) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) DeleteByFilter(ctx context.Context, f vectorstore.Filter) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.points {
		if matches(p, f) {
			delete(s.points, id)
		}
	}
	return nil
}

func (s *memStore) DeleteIDs(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.points, id)
	}
	return nil
}

func (s *memStore) SetPayload(ctx context.Context, id string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[id]
	if !ok {
		return errors.New("no such point")
	}
	for k, v := range payload {
		p.Payload[k] = v
	}
	s.points[id] = p
	return nil
}

func (s *memStore) Healthy(ctx context.Context) error { return s.err }

func matches(p vectorstore.Point, f vectorstore.Filter) bool {
	if f.ChainID != "" {
		chain, ok := p.Payload["chain"].(map[string]any)
		if !ok || chain["id"] != f.ChainID {
			return false
		}
	}
	if len(f.SpaceIDs) > 0 {
		space, _ := p.Payload["space_id"].(string)
		found := false
		for _, id := range f.SpaceIDs {
			if id == space {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
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
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func newTestStore(vs vectorstore.Store, emb *fakeEmbedder, gate float64) *Store {
	return New(vs, emb, nil, Options{
		SpaceID:             "default",
		AllowedSpaceIDs:     []string{"default"},
		SimilarityThreshold: gate,
	}, zerolog.Nop())
}

const runbook = `# Cache Runbook

## Check memory
- inspect maxmemory usage
PROOF OF WORK: timeout 10s redis-cli info memory

## Restart
shut it down cleanly
`

func TestMintChain(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)

	res, err := s.Mint(context.Background(), runbook, "test-model", false)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.NotEmpty(t, res.ChainID)
	assert.False(t, res.ZeroVectorUsed)
	assert.Len(t, vs.points, 2)

	first, err := s.Get(context.Background(), res.Items[0].URI)
	require.NoError(t, err)
	require.NotNil(t, first.Chain)
	assert.Equal(t, 1, first.Chain.StepIndex)
	assert.Equal(t, 2, first.Chain.StepCount)
	assert.Equal(t, "Cache Runbook", first.Chain.Label)
	require.NotNil(t, first.Proof)
	assert.Equal(t, proof.KindShell, first.Proof.Kind)

	second, err := s.Get(context.Background(), res.Items[1].URI)
	require.NoError(t, err)
	assert.Nil(t, second.Proof)
	assert.True(t, second.IsLast())
}

func TestMintSingletonFallback(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)

	res, err := s.Mint(context.Background(), "a loose note with no headings", "", false)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Empty(t, res.ChainID)

	m, err := s.Get(context.Background(), res.Items[0].URI)
	require.NoError(t, err)
	assert.Nil(t, m.Chain)
	assert.True(t, m.IsHead())
	assert.True(t, m.IsLast())
}

func TestMintEmptyMarkdownRejected(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	for _, blob := range []string{"", "   \n\t\n"} {
		_, err := s.Mint(ctx, blob, "", false)
		require.Error(t, err)
		assert.Equal(t, faults.CodeInvalidInput, faults.CodeOf(err))
	}
	assert.Empty(t, vs.points)
}

func TestMintDuplicateChain(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	_, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)

	_, err = s.Mint(ctx, runbook, "", false)
	require.Error(t, err)
	assert.Equal(t, faults.CodeDuplicateChain, faults.CodeOf(err))
	details := faults.DetailsOf(err)
	assert.NotEmpty(t, details["chain_id"])
	assert.NotEmpty(t, details["items"])
}

func TestMintForceUpdateReplacesChain(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	first, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)

	second, err := s.Mint(ctx, runbook, "", true)
	require.NoError(t, err)
	assert.Equal(t, first.ChainID, second.ChainID)
	assert.Len(t, vs.points, 2)

	// The old step identities are gone.
	_, err = s.Get(ctx, first.Items[0].URI)
	require.Error(t, err)
	assert.Equal(t, faults.CodeNotFound, faults.CodeOf(err))
}

func TestMintMalformedProofDegradesToFreeStep(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)

	doc := "# Doc\n\n## Step\nPROOF OF WORK: telepathy now\n"
	res, err := s.Mint(context.Background(), doc, "", false)
	require.NoError(t, err)

	m, err := s.Get(context.Background(), res.Items[0].URI)
	require.NoError(t, err)
	assert.Nil(t, m.Proof)
}

func TestMintEmbedderOutageStoresZeroVectors(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{err: errors.New("refused"), dim: 4}, 0)

	res, err := s.Mint(context.Background(), runbook, "", false)
	require.NoError(t, err)
	assert.True(t, res.ZeroVectorUsed)

	for _, p := range vs.points {
		assert.Equal(t, []float32{0, 0, 0, 0}, p.Vector)
	}
}

func TestMintSimilarTitleGuard(t *testing.T) {
	vs := newMemStore()
	other := &memory.Memory{
		UUID:    "99999999-9999-4999-8999-999999999999",
		Label:   "Cache Runbok",
		SpaceID: "default",
		Chain:   &memory.Chain{ID: "other-chain", Label: "Cache Runbok", StepIndex: 1, StepCount: 2},
	}
	vs.hits = []vectorstore.Scored{{
		Point: vectorstore.Point{ID: other.UUID, Payload: other.ToPayload()},
		Score: 0.97,
	}}
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0.92)

	_, err := s.Mint(context.Background(), runbook, "", false)
	require.Error(t, err)
	assert.Equal(t, faults.CodeSimilarMemory, faults.CodeOf(err))
	details := faults.DetailsOf(err)
	assert.Equal(t, true, details["must_obey"])
	assert.Contains(t, details["next_action"], "kairos_begin")
}

func TestSimilarTitleGuardDisabledAtZero(t *testing.T) {
	vs := newMemStore()
	vs.hits = []vectorstore.Scored{{
		Point: vectorstore.Point{ID: "x", Payload: (&memory.Memory{UUID: "x", SpaceID: "default"}).ToPayload()},
		Score: 0.99,
	}}
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)

	_, err := s.Mint(context.Background(), runbook, "", false)
	assert.NoError(t, err)
}

func TestChainNavigation(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	res, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)

	head, err := s.Get(ctx, res.Items[0].URI)
	require.NoError(t, err)
	tail, err := s.Get(ctx, res.Items[1].URI)
	require.NoError(t, err)

	pre, err := s.Predecessor(ctx, head)
	require.NoError(t, err)
	assert.Nil(t, pre)

	pre, err = s.Predecessor(ctx, tail)
	require.NoError(t, err)
	require.NotNil(t, pre)
	assert.Equal(t, head.UUID, pre.UUID)

	next, err := s.Successor(ctx, head)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, tail.UUID, next.UUID)

	next, err = s.Successor(ctx, tail)
	require.NoError(t, err)
	assert.Nil(t, next)

	members, err := s.Members(ctx, head.Chain.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, 1, members[0].Chain.StepIndex)
	assert.Equal(t, 2, members[1].Chain.StepIndex)
}

func TestBumpQualityPersists(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	res, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)
	m, err := s.Get(ctx, res.Items[0].URI)
	require.NoError(t, err)
	before := m.Quality.Score

	require.NoError(t, s.BumpQuality(ctx, m, 0.1))

	again, err := s.Get(ctx, res.Items[0].URI)
	require.NoError(t, err)
	assert.InDelta(t, before+0.1, again.Quality.Score, 1e-9)
}
