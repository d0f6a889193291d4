// Package chains owns chain-level persistence: minting a markdown document
// into an ordered chain of memories, duplicate detection, atomic replace,
// update/delete, and rendering chains back to markdown.
package chains

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/debian777/kairos-mcp/internal/embeddings"
	"github.com/debian777/kairos-mcp/internal/events"
	"github.com/debian777/kairos-mcp/internal/faults"
	"github.com/debian777/kairos-mcp/internal/ids"
	"github.com/debian777/kairos-mcp/internal/markdown"
	"github.com/debian777/kairos-mcp/internal/memory"
	"github.com/debian777/kairos-mcp/internal/proof"
	"github.com/debian777/kairos-mcp/internal/vectorstore"
)

// scrollPage bounds chain-member reads. A chain is derived from one markdown
// document, so this is far above any real step count.
const scrollPage = 1024

// Store coordinates the vector store, the embedder and the event publisher.
type Store struct {
	vs  vectorstore.Store
	emb embeddings.Client
	pub *events.Publisher
	log zerolog.Logger

	spaceID         string
	allowedSpaceIDs []string
	similarityGate  float64
}

// Options carries the tenant and guard configuration.
type Options struct {
	SpaceID             string
	AllowedSpaceIDs     []string
	SimilarityThreshold float64 // 0 disables the similar-title mint guard
}

func New(vs vectorstore.Store, emb embeddings.Client, pub *events.Publisher, opts Options, log zerolog.Logger) *Store {
	return &Store{
		vs:              vs,
		emb:             emb,
		pub:             pub,
		log:             log.With().Str("component", "chains").Logger(),
		spaceID:         opts.SpaceID,
		allowedSpaceIDs: opts.AllowedSpaceIDs,
		similarityGate:  opts.SimilarityThreshold,
	}
}

func (s *Store) readFilter() vectorstore.Filter {
	return vectorstore.Filter{SpaceIDs: s.allowedSpaceIDs}
}

func (s *Store) chainFilter(chainID string) vectorstore.Filter {
	return vectorstore.Filter{ChainID: chainID, SpaceIDs: s.allowedSpaceIDs}
}

// MintedItem is one stored step as reported to the caller.
type MintedItem struct {
	URI        string   `json:"uri"`
	MemoryUUID string   `json:"memory_uuid"`
	Label      string   `json:"label"`
	Tags       []string `json:"tags"`
}

// MintResult is the outcome of a successful mint.
type MintResult struct {
	Items          []MintedItem
	ChainID        string
	DurationMS     int64
	LLMModelID     string
	ZeroVectorUsed bool
}

// Mint slices the blob, assigns identities, enforces duplicate semantics and
// persists the chain atomically (all steps or none).
func (s *Store) Mint(ctx context.Context, blob, llmModelID string, forceUpdate bool) (*MintResult, error) {
	if strings.TrimSpace(blob) == "" {
		return nil, faults.New(faults.CodeInvalidInput, "markdown must not be empty")
	}
	start := time.Now()
	doc := markdown.Slice(blob)

	mems := s.buildMemories(doc, llmModelID)
	chainID := ""
	if mems[0].Chain != nil {
		chainID = mems[0].Chain.ID
	}

	replacing := false
	if chainID != "" {
		existing, err := s.vs.Scroll(ctx, s.chainFilter(chainID), scrollPage)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			if !forceUpdate {
				return nil, duplicateError(chainID, existing)
			}
			replacing = true
		}
		if !replacing {
			if err := s.similarTitleGuard(ctx, chainID, doc.ChainLabel); err != nil {
				return nil, err
			}
		}
	}

	texts := make([]string, len(mems))
	for i, m := range mems {
		texts[i] = m.Label + "\n" + m.Text
	}
	vectors, fellBack := embeddings.EmbedOrZero(ctx, s.emb, s.log, texts)

	if replacing {
		if err := s.vs.DeleteByFilter(ctx, s.chainFilter(chainID)); err != nil {
			return nil, err
		}
	}

	points := make([]vectorstore.Point, len(mems))
	for i, m := range mems {
		points[i] = vectorstore.Point{ID: m.UUID, Vector: vectors[i], Payload: m.ToPayload()}
	}
	if err := s.vs.Upsert(ctx, points); err != nil {
		return nil, err
	}

	items := make([]MintedItem, len(mems))
	uris := make([]string, len(mems))
	for i, m := range mems {
		items[i] = MintedItem{URI: m.URI(), MemoryUUID: m.UUID, Label: m.Label, Tags: m.Tags}
		uris[i] = m.URI()
	}
	kind := "chain_minted"
	if replacing {
		kind = "chain_replaced"
	}
	s.pub.Publish(ctx, events.Invalidation{Kind: kind, ChainID: chainID, URIs: uris})

	return &MintResult{
		Items:          items,
		ChainID:        chainID,
		DurationMS:     time.Since(start).Milliseconds(),
		LLMModelID:     llmModelID,
		ZeroVectorUsed: fellBack,
	}, nil
}

// buildMemories turns sliced sections into fully classified memories.
func (s *Store) buildMemories(doc markdown.Doc, llmModelID string) []*memory.Memory {
	now := time.Now().UTC()
	var chainID string
	if !doc.Single {
		chainID = ids.ChainID(doc.ChainLabel)
	}
	mems := make([]*memory.Memory, len(doc.Sections))
	for i, sec := range doc.Sections {
		label := markdown.TruncateLabel(sec.Heading)
		tags := markdown.DeriveTags(label, sec.Body)
		spec, err := proof.Parse(sec.Body)
		if err != nil {
			// a malformed directive degrades to a free step rather than
			// failing the whole mint
			s.log.Warn().Err(err).Str("label", label).Msg("ignoring malformed proof directive")
			spec = nil
		}
		task := memory.ClassifyTask(label, sec.Body, tags)
		typ := memory.ClassifyType(sec.Body, tags)
		m := &memory.Memory{
			UUID:       ids.NewStepID(),
			Label:      label,
			Tags:       tags,
			Text:       sec.Body,
			LLMModelID: llmModelID,
			CreatedAt:  now,
			Proof:      spec,
			Task:       task,
			Type:       typ,
			Quality:    memory.ScoreQuality(label, "general", task, typ, tags),
			SpaceID:    s.spaceID,
		}
		if !doc.Single {
			m.Chain = &memory.Chain{
				ID:        chainID,
				Label:     ids.NormalizeLabel(doc.ChainLabel),
				StepIndex: i + 1,
				StepCount: len(doc.Sections),
			}
		}
		mems[i] = m
	}
	return mems
}

func duplicateError(chainID string, existing []vectorstore.Point) error {
	items := make([]map[string]any, 0, len(existing))
	for _, p := range existing {
		m, err := memory.FromPayload(p.ID, p.Payload)
		if err != nil {
			continue
		}
		items = append(items, map[string]any{"label": m.Label, "uri": m.URI()})
	}
	return faults.New(faults.CodeDuplicateChain, "chain already exists; pass force_update to replace it").
		WithDetails(map[string]any{"chain_id": chainID, "items": items})
}

// similarTitleGuard rejects a mint whose chain label is near-identical to an
// existing chain head. Embedding trouble skips the guard entirely: it is an
// optional conflict check, not a gate on availability.
func (s *Store) similarTitleGuard(ctx context.Context, chainID, chainLabel string) error {
	if s.similarityGate <= 0 || chainLabel == "" {
		return nil
	}
	vectors, err := s.emb.Embed(ctx, []string{chainLabel})
	if err != nil || len(vectors) != 1 {
		return nil
	}
	hits, err := s.vs.Search(ctx, vectors[0], 5, s.readFilter())
	if err != nil {
		return nil
	}
	for _, h := range hits {
		if float64(h.Score) < s.similarityGate {
			break
		}
		m, err := memory.FromPayload(h.ID, h.Payload)
		if err != nil || !m.IsHead() {
			continue
		}
		if m.Chain != nil && m.Chain.ID == chainID {
			continue // same chain: duplicate semantics already handled
		}
		return faults.New(faults.CodeSimilarMemory, "a similar protocol already exists").
			WithDetails(map[string]any{
				"existing_memory":  map[string]any{"uri": m.URI(), "label": m.Label},
				"similarity_score": float64(h.Score),
				"must_obey":        true,
				"next_action":      "call kairos_begin with " + m.URI(),
			})
	}
	return nil
}

// Get loads one memory by URI.
func (s *Store) Get(ctx context.Context, uri string) (*memory.Memory, error) {
	id, err := ids.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	points, err := s.vs.Retrieve(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		m, err := memory.FromPayload(p.ID, p.Payload)
		if err != nil {
			return nil, faults.Wrap(err, faults.CodeInternal, "decode point %s", p.ID)
		}
		if allowed(m.SpaceID, s.allowedSpaceIDs) {
			return m, nil
		}
	}
	return nil, faults.New(faults.CodeNotFound, "no memory at %s", uri)
}

// Members returns every step of a chain ordered by step index.
func (s *Store) Members(ctx context.Context, chainID string) ([]*memory.Memory, error) {
	points, err := s.vs.Scroll(ctx, s.chainFilter(chainID), scrollPage)
	if err != nil {
		return nil, err
	}
	mems := make([]*memory.Memory, 0, len(points))
	for _, p := range points {
		m, err := memory.FromPayload(p.ID, p.Payload)
		if err != nil {
			continue
		}
		mems = append(mems, m)
	}
	sort.Slice(mems, func(i, j int) bool {
		return stepIndex(mems[i]) < stepIndex(mems[j])
	})
	return mems, nil
}

// Predecessor resolves step_index-1 within the same chain, or nil for heads
// and singletons.
func (s *Store) Predecessor(ctx context.Context, m *memory.Memory) (*memory.Memory, error) {
	if m.IsHead() {
		return nil, nil
	}
	members, err := s.Members(ctx, m.Chain.ID)
	if err != nil {
		return nil, err
	}
	want := m.Chain.StepIndex - 1
	for _, member := range members {
		if stepIndex(member) == want {
			return member, nil
		}
	}
	return nil, faults.New(faults.CodeNotFound, "chain %s has no step %d", m.Chain.ID, want)
}

// Successor resolves step_index+1, or nil when m is the last step.
func (s *Store) Successor(ctx context.Context, m *memory.Memory) (*memory.Memory, error) {
	if m.IsLast() {
		return nil, nil
	}
	members, err := s.Members(ctx, m.Chain.ID)
	if err != nil {
		return nil, err
	}
	want := m.Chain.StepIndex + 1
	for _, member := range members {
		if stepIndex(member) == want {
			return member, nil
		}
	}
	return nil, nil
}

// BumpQuality applies a monotonic attestation bonus to a stored step.
func (s *Store) BumpQuality(ctx context.Context, m *memory.Memory, bonus float64) error {
	updated := m.Quality.ApplyBonus(bonus)
	if updated == m.Quality {
		return nil
	}
	m.Quality = updated
	err := s.vs.SetPayload(ctx, m.UUID, map[string]any{
		"quality_metadata": map[string]any{
			"step_quality_score": updated.Score,
			"step_quality":       updated.Tier,
		},
	})
	if err != nil {
		return err
	}
	s.pub.Publish(ctx, events.Invalidation{Kind: "memory_updated", URIs: []string{m.URI()}})
	return nil
}

func stepIndex(m *memory.Memory) int {
	if m.Chain == nil {
		return 1
	}
	return m.Chain.StepIndex
}

func allowed(spaceID string, allowedIDs []string) bool {
	if len(allowedIDs) == 0 {
		return true
	}
	for _, id := range allowedIDs {
		if id == spaceID {
			return true
		}
	}
	return false
}
