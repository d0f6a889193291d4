package chains

import (
	"context"

	"github.com/debian777/kairos-mcp/internal/embeddings"
	"github.com/debian777/kairos-mcp/internal/events"
	"github.com/debian777/kairos-mcp/internal/faults"
	"github.com/debian777/kairos-mcp/internal/markdown"
	"github.com/debian777/kairos-mcp/internal/memory"
	"github.com/debian777/kairos-mcp/internal/proof"
	"github.com/debian777/kairos-mcp/internal/vectorstore"
)

// UpdateOutcome is the per-URI result of an update or delete batch.
type UpdateOutcome struct {
	URI     string `json:"uri"`
	Status  string `json:"status"` // updated, deleted, failed
	Message string `json:"message,omitempty"`
}

// UpdateResult aggregates a batch.
type UpdateResult struct {
	Results      []UpdateOutcome `json:"results"`
	TotalUpdated int             `json:"total_updated"`
	TotalFailed  int             `json:"total_failed"`
}

// Update rewrites the text of each URI. When the corresponding doc is a full
// render, the body between the BODY markers is what gets stored; otherwise
// the raw input is. Each step is re-embedded.
func (s *Store) Update(ctx context.Context, uris, docs []string) (*UpdateResult, error) {
	if len(uris) == 0 {
		return nil, faults.New(faults.CodeInvalidInput, "uris must not be empty")
	}
	if len(docs) != len(uris) {
		return nil, faults.New(faults.CodeInvalidInput,
			"uris and markdown_doc lengths differ: %d vs %d", len(uris), len(docs))
	}

	res := &UpdateResult{Results: make([]UpdateOutcome, 0, len(uris))}
	var touched []string
	for i, uri := range uris {
		outcome := s.updateOne(ctx, uri, docs[i])
		res.Results = append(res.Results, outcome)
		if outcome.Status == "updated" {
			res.TotalUpdated++
			touched = append(touched, uri)
		} else {
			res.TotalFailed++
		}
	}
	if len(touched) > 0 {
		s.pub.Publish(ctx, events.Invalidation{Kind: "memory_updated", URIs: touched})
	}
	return res, nil
}

func (s *Store) updateOne(ctx context.Context, uri, doc string) UpdateOutcome {
	m, err := s.Get(ctx, uri)
	if err != nil {
		return UpdateOutcome{URI: uri, Status: "failed", Message: faults.MessageOf(err)}
	}
	body := markdown.ExtractBody(doc)
	m.Text = body
	m.Tags = markdown.DeriveTags(m.Label, body)

	// The body is the source of truth for everything derived from it, so the
	// rewrite re-runs the same classification as minting does.
	spec, err := proof.Parse(body)
	if err != nil {
		s.log.Warn().Err(err).Str("label", m.Label).Msg("ignoring malformed proof directive")
		spec = nil
	}
	m.Proof = spec
	m.Task = memory.ClassifyTask(m.Label, body, m.Tags)
	m.Type = memory.ClassifyType(body, m.Tags)
	m.Quality = memory.ScoreQuality(m.Label, "general", m.Task, m.Type, m.Tags)

	vectors, _ := embeddings.EmbedOrZero(ctx, s.emb, s.log, []string{m.Label + "\n" + body})
	err = s.vs.Upsert(ctx, []vectorstore.Point{{ID: m.UUID, Vector: vectors[0], Payload: m.ToPayload()}})
	if err != nil {
		return UpdateOutcome{URI: uri, Status: "failed", Message: faults.MessageOf(err)}
	}
	return UpdateOutcome{URI: uri, Status: "updated"}
}

// Delete removes each URI. When wholeChain is set and a URI belongs to a
// chain, the entire chain goes with it.
func (s *Store) Delete(ctx context.Context, uris []string, wholeChain bool) (*UpdateResult, error) {
	if len(uris) == 0 {
		return nil, faults.New(faults.CodeInvalidInput, "uris must not be empty")
	}
	res := &UpdateResult{Results: make([]UpdateOutcome, 0, len(uris))}
	var removed []string
	for _, uri := range uris {
		m, err := s.Get(ctx, uri)
		if err != nil {
			res.Results = append(res.Results, UpdateOutcome{URI: uri, Status: "failed", Message: faults.MessageOf(err)})
			res.TotalFailed++
			continue
		}
		if wholeChain && m.Chain != nil {
			err = s.vs.DeleteByFilter(ctx, s.chainFilter(m.Chain.ID))
		} else {
			err = s.vs.DeleteIDs(ctx, []string{m.UUID})
		}
		if err != nil {
			res.Results = append(res.Results, UpdateOutcome{URI: uri, Status: "failed", Message: faults.MessageOf(err)})
			res.TotalFailed++
			continue
		}
		res.Results = append(res.Results, UpdateOutcome{URI: uri, Status: "deleted"})
		res.TotalUpdated++
		removed = append(removed, uri)
	}
	if len(removed) > 0 {
		s.pub.Publish(ctx, events.Invalidation{Kind: "memory_deleted", URIs: removed})
	}
	return res, nil
}

// DumpResult is a rendered step or protocol.
type DumpResult struct {
	URI         string `json:"uri"`
	Label       string `json:"label"`
	ChainLabel  string `json:"chain_label,omitempty"`
	StepCount   int    `json:"step_count,omitempty"`
	MarkdownDoc string `json:"markdown_doc"`
}

// Dump renders one step (BODY extracted when markers are present) or, with
// protocol set, the whole chain sorted by step index.
func (s *Store) Dump(ctx context.Context, uri string, protocol bool) (*DumpResult, error) {
	m, err := s.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	res := &DumpResult{URI: uri, Label: m.Label}
	if m.Chain != nil {
		res.ChainLabel = m.Chain.Label
	}

	if !protocol || m.Chain == nil {
		res.MarkdownDoc = markdown.ExtractBody(m.Text)
		if m.Chain != nil {
			res.StepCount = m.Chain.StepCount
		} else {
			res.StepCount = 1
		}
		return res, nil
	}

	members, err := s.Members(ctx, m.Chain.ID)
	if err != nil {
		return nil, err
	}
	sections := make([]markdown.Section, 0, len(members))
	for _, member := range members {
		sections = append(sections, markdown.Section{
			Heading: member.Label,
			Body:    markdown.ExtractBody(member.Text),
		})
	}
	res.StepCount = len(members)
	res.MarkdownDoc = markdown.RenderChain(m.Chain.Label, sections)
	return res, nil
}
