// Package memory defines the stored step model and its vector-store payload
// codec, plus the deterministic task/type classification and quality scoring
// attached at mint time.
package memory

import (
	"time"

	"github.com/debian777/kairos-mcp/internal/ids"
	"github.com/debian777/kairos-mcp/internal/proof"
)

// Chain locates a step inside its protocol. StepIndex is 1-based; step 1 is
// the head. ID is a pure function of Label (UUIDv5).
type Chain struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	StepIndex int    `json:"step_index"`
	StepCount int    `json:"step_count"`
}

// Quality is the pinned output shape of the scoring heuristic. Tier is one of
// basic, standard, high, excellent.
type Quality struct {
	Score float64 `json:"step_quality_score"`
	Tier  string  `json:"step_quality"`
}

// Memory is one step: the unit addressed by kairos://mem/<uuid>.
type Memory struct {
	UUID       string
	Label      string
	Tags       []string
	Text       string
	LLMModelID string
	CreatedAt  time.Time

	Chain *Chain
	Proof *proof.Spec

	Task    string
	Type    string
	Quality Quality

	SpaceID string
}

// URI is the canonical address of this memory.
func (m *Memory) URI() string { return ids.URI(m.UUID) }

// IsHead reports whether this step opens its chain (or is a singleton).
func (m *Memory) IsHead() bool {
	return m.Chain == nil || m.Chain.StepIndex == 1
}

// IsLast reports whether no successor step exists.
func (m *Memory) IsLast() bool {
	return m.Chain == nil || m.Chain.StepIndex >= m.Chain.StepCount
}
