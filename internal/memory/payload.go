package memory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/debian777/kairos-mcp/internal/proof"
)

// Payload field names as persisted in the vector store.
const (
	fieldLabel     = "label"
	fieldTags      = "tags"
	fieldText      = "text"
	fieldModelID   = "llm_model_id"
	fieldCreatedAt = "created_at"
	fieldTask      = "task"
	fieldType      = "type"
	fieldQuality   = "quality_metadata"
	fieldChain     = "chain"
	fieldProof     = "proof_of_work"
	fieldSpaceID   = "space_id"
)

// ToPayload flattens the memory into the vector-store payload map.
func (m *Memory) ToPayload() map[string]any {
	p := map[string]any{
		fieldLabel:     m.Label,
		fieldTags:      toAnySlice(m.Tags),
		fieldText:      m.Text,
		fieldModelID:   m.LLMModelID,
		fieldCreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		fieldTask:      m.Task,
		fieldType:      m.Type,
		fieldQuality: map[string]any{
			"step_quality_score": m.Quality.Score,
			"step_quality":       m.Quality.Tier,
		},
		fieldSpaceID: m.SpaceID,
	}
	if m.Chain != nil {
		p[fieldChain] = map[string]any{
			"id":         m.Chain.ID,
			"label":      m.Chain.Label,
			"step_index": int64(m.Chain.StepIndex),
			"step_count": int64(m.Chain.StepCount),
		}
	}
	if m.Proof != nil {
		p[fieldProof] = structToMap(m.Proof)
	}
	return p
}

// FromPayload rebuilds a memory from a stored point. The point id is the
// memory uuid.
func FromPayload(id string, p map[string]any) (*Memory, error) {
	if p == nil {
		return nil, fmt.Errorf("point %s has no payload", id)
	}
	m := &Memory{
		UUID:       id,
		Label:      asString(p[fieldLabel]),
		Text:       asString(p[fieldText]),
		LLMModelID: asString(p[fieldModelID]),
		Task:       asString(p[fieldTask]),
		Type:       asString(p[fieldType]),
		SpaceID:    asString(p[fieldSpaceID]),
		Tags:       asStringSlice(p[fieldTags]),
	}
	if ts := asString(p[fieldCreatedAt]); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			m.CreatedAt = t
		}
	}
	if q, ok := p[fieldQuality].(map[string]any); ok {
		m.Quality = Quality{
			Score: asFloat(q["step_quality_score"]),
			Tier:  asString(q["step_quality"]),
		}
	}
	if c, ok := p[fieldChain].(map[string]any); ok {
		m.Chain = &Chain{
			ID:        asString(c["id"]),
			Label:     asString(c["label"]),
			StepIndex: int(asFloat(c["step_index"])),
			StepCount: int(asFloat(c["step_count"])),
		}
	}
	if pw, ok := p[fieldProof].(map[string]any); ok {
		spec := &proof.Spec{}
		if err := mapToStruct(pw, spec); err == nil && spec.Kind != "" {
			m.Proof = spec
		}
	}
	return m, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func structToMap(v any) map[string]any {
	b, _ := json.Marshal(v)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

func mapToStruct(m map[string]any, dst any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
