package chains

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debian777/kairos-mcp/internal/faults"
	"github.com/debian777/kairos-mcp/internal/ids"
	"github.com/debian777/kairos-mcp/internal/markdown"
	"github.com/debian777/kairos-mcp/internal/memory"
	"github.com/debian777/kairos-mcp/internal/proof"
)

func TestUpdateRewritesBody(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	minted, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)
	uri := minted.Items[0].URI

	doc := "## Check memory\n\n" + markdown.BodyStart + "\nuse INFO MEMORY instead\n" + markdown.BodyEnd + "\n"
	res, err := s.Update(ctx, []string{uri}, []string{doc})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalUpdated)
	assert.Zero(t, res.TotalFailed)

	m, err := s.Get(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, "use INFO MEMORY instead", m.Text)
	// Chain position survives a body rewrite.
	require.NotNil(t, m.Chain)
	assert.Equal(t, 1, m.Chain.StepIndex)
}

func TestUpdateRederivesProofAndClassification(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	minted, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)

	// The free step gains a directive: the rewrite must surface it.
	free := minted.Items[1].URI
	_, err = s.Update(ctx, []string{free}, []string{"write a summary\nPROOF OF WORK: comment min=20\n"})
	require.NoError(t, err)

	m, err := s.Get(ctx, free)
	require.NoError(t, err)
	require.NotNil(t, m.Proof)
	assert.Equal(t, proof.KindComment, m.Proof.Kind)
	assert.Equal(t, 20, m.Proof.MinLength)
	assert.Equal(t, memory.ClassifyTask(m.Label, m.Text, m.Tags), m.Task)
	assert.Equal(t, memory.ClassifyType(m.Text, m.Tags), m.Type)
	assert.Equal(t, memory.ScoreQuality(m.Label, "general", m.Task, m.Type, m.Tags), m.Quality)

	// The challenged step loses its directive: the stale spec must not stick.
	challenged := minted.Items[0].URI
	_, err = s.Update(ctx, []string{challenged}, []string{"just eyeball the dashboard"})
	require.NoError(t, err)

	m, err = s.Get(ctx, challenged)
	require.NoError(t, err)
	assert.Nil(t, m.Proof)
}

func TestUpdateWithoutMarkersStoresRawInput(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	minted, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)
	uri := minted.Items[1].URI

	res, err := s.Update(ctx, []string{uri}, []string{"plain replacement text"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalUpdated)

	m, err := s.Get(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, "plain replacement text", m.Text)
}

func TestUpdateInputValidation(t *testing.T) {
	s := newTestStore(newMemStore(), &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	_, err := s.Update(ctx, nil, nil)
	assert.Equal(t, faults.CodeInvalidInput, faults.CodeOf(err))

	_, err = s.Update(ctx, []string{"kairos://mem/x"}, []string{"a", "b"})
	assert.Equal(t, faults.CodeInvalidInput, faults.CodeOf(err))
}

func TestUpdateUnknownURIFailsThatEntryOnly(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	minted, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)

	missing := ids.URI(ids.NewStepID())
	res, err := s.Update(ctx,
		[]string{minted.Items[0].URI, missing},
		[]string{"new body", "irrelevant"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalUpdated)
	assert.Equal(t, 1, res.TotalFailed)
	assert.Equal(t, "failed", res.Results[1].Status)
}

func TestDeleteSingleStep(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	minted, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)

	res, err := s.Delete(ctx, []string{minted.Items[1].URI}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalUpdated)
	assert.Len(t, vs.points, 1)
}

func TestDeleteWholeChain(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	minted, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)

	res, err := s.Delete(ctx, []string{minted.Items[1].URI}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalUpdated)
	assert.Empty(t, vs.points)
}

func TestDumpSingleStep(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	minted, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)

	res, err := s.Dump(ctx, minted.Items[1].URI, false)
	require.NoError(t, err)
	assert.Equal(t, "Restart", res.Label)
	assert.Equal(t, "shut it down cleanly", res.MarkdownDoc)
	assert.Equal(t, 2, res.StepCount)
}

func TestDumpProtocolRemintsToSameChain(t *testing.T) {
	vs := newMemStore()
	s := newTestStore(vs, &fakeEmbedder{dim: 4}, 0)
	ctx := context.Background()

	minted, err := s.Mint(ctx, runbook, "", false)
	require.NoError(t, err)

	res, err := s.Dump(ctx, minted.Items[0].URI, true)
	require.NoError(t, err)
	assert.Equal(t, "Cache Runbook", res.ChainLabel)
	assert.Equal(t, 2, res.StepCount)

	// The rendered document re-slices to the same chain identity and shape.
	doc := markdown.Slice(res.MarkdownDoc)
	assert.Equal(t, minted.ChainID, ids.ChainID(doc.ChainLabel))
	assert.Len(t, doc.Sections, 2)
}
