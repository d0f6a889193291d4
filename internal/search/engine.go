// Package search turns raw vector hits into the score-gated match / refine /
// create decision a caller can act on. Raw similarity scores never leave this
// package.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/debian777/kairos-mcp/internal/embeddings"
	"github.com/debian777/kairos-mcp/internal/memory"
	"github.com/debian777/kairos-mcp/internal/vectorstore"
)

const searchLimit = 15

// Roles a choice can carry.
const (
	RoleMatch  = "match"
	RoleRefine = "refine"
	RoleCreate = "create"
)

// Choice is one enforceable next action.
type Choice struct {
	Role       string `json:"role"`
	URI        string `json:"uri,omitempty"`
	Label      string `json:"label,omitempty"`
	ChainLabel string `json:"chain_label,omitempty"`
	StepCount  int    `json:"step_count,omitempty"`
	NextAction string `json:"next_action"`
}

// Response is the shaped search reply. must_obey is always true, choices is
// never empty, and no raw score or error field exists in this shape.
type Response struct {
	MustObey       bool     `json:"must_obey"`
	Message        string   `json:"message"`
	NextAction     string   `json:"next_action"`
	Choices        []Choice `json:"choices"`
	PerfectMatches int      `json:"perfect_matches"`
}

// Engine runs embed → vector search → role assignment.
type Engine struct {
	vs  vectorstore.Store
	emb embeddings.Client
	log zerolog.Logger

	allowedSpaceIDs []string
	matchThreshold  float64
	refineThreshold float64
}

func New(vs vectorstore.Store, emb embeddings.Client, allowedSpaceIDs []string, matchThreshold, refineThreshold float64, log zerolog.Logger) *Engine {
	return &Engine{
		vs:              vs,
		emb:             emb,
		log:             log.With().Str("component", "search").Logger(),
		allowedSpaceIDs: allowedSpaceIDs,
		matchThreshold:  matchThreshold,
		refineThreshold: refineThreshold,
	}
}

// Search always yields a response the caller can obey. When the embedder is
// down a create-only response goes out instead of an error: search degrades,
// the protocol loop does not.
func (e *Engine) Search(ctx context.Context, query string) (*Response, error) {
	vectors, err := e.emb.Embed(ctx, []string{query})
	if err != nil {
		e.log.Warn().Err(err).Msg("query embedding failed, offering create only")
		return e.shape(query, nil), nil
	}
	hits, err := e.vs.Search(ctx, vectors[0], searchLimit, vectorstore.Filter{SpaceIDs: e.allowedSpaceIDs})
	if err != nil {
		return nil, err
	}
	return e.shape(query, hits), nil
}

type candidate struct {
	mem   *memory.Memory
	score float64
}

// shape groups hits by chain (each chain contributes one candidate,
// preferring its head, then the higher score), gates roles by threshold and
// appends the synthetic create choice.
func (e *Engine) shape(query string, hits []vectorstore.Scored) *Response {
	best := make(map[string]candidate)
	var order []string
	for _, h := range hits {
		m, err := memory.FromPayload(h.ID, h.Payload)
		if err != nil {
			continue
		}
		key := m.UUID
		if m.Chain != nil {
			key = m.Chain.ID
		}
		cur, seen := best[key]
		if !seen {
			best[key] = candidate{mem: m, score: float64(h.Score)}
			order = append(order, key)
			continue
		}
		if preferred(m, float64(h.Score), cur) {
			best[key] = candidate{mem: m, score: float64(h.Score)}
		}
	}

	candidates := make([]candidate, 0, len(order))
	for _, key := range order {
		candidates = append(candidates, best[key])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	resp := &Response{MustObey: true}
	for _, c := range candidates {
		role := ""
		switch {
		case c.score >= e.matchThreshold:
			role = RoleMatch
		case c.score >= e.refineThreshold:
			role = RoleRefine
		default:
			continue
		}
		choice := Choice{
			Role:       role,
			URI:        c.mem.URI(),
			Label:      c.mem.Label,
			NextAction: "call kairos_begin with " + c.mem.URI(),
		}
		if c.mem.Chain != nil {
			choice.ChainLabel = c.mem.Chain.Label
			choice.StepCount = c.mem.Chain.StepCount
		} else {
			choice.StepCount = 1
		}
		if role == RoleRefine {
			choice.NextAction = "refine the query, or call kairos_begin with " + c.mem.URI()
		}
		if role == RoleMatch {
			resp.PerfectMatches++
		}
		resp.Choices = append(resp.Choices, choice)
	}

	resp.Choices = append(resp.Choices, Choice{
		Role:       RoleCreate,
		NextAction: "call kairos_mint with a new protocol document",
	})

	switch {
	case resp.PerfectMatches > 0:
		resp.Message = fmt.Sprintf("%d matching protocol(s) found for %q; pick one and begin", resp.PerfectMatches, query)
		resp.NextAction = "call kairos_begin on a match choice"
	case len(resp.Choices) > 1:
		resp.Message = fmt.Sprintf("no exact match for %q; refine the query or mint a new protocol", query)
		resp.NextAction = "refine the query or call kairos_mint"
	default:
		resp.Message = fmt.Sprintf("no protocol found for %q; mint one", query)
		resp.NextAction = "call kairos_mint with a new protocol document"
	}
	return resp
}

// preferred decides whether the incoming step replaces the chain's current
// candidate: heads beat non-heads, then higher score wins.
func preferred(m *memory.Memory, score float64, cur candidate) bool {
	newHead, curHead := m.IsHead(), cur.mem.IsHead()
	if newHead != curHead {
		return newHead
	}
	return score > cur.score
}
