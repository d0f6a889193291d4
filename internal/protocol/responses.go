package protocol

import (
	"time"

	"github.com/debian777/kairos-mcp/internal/memory"
	"github.com/debian777/kairos-mcp/internal/proof"
)

// StepView is the caller-facing projection of a memory.
type StepView struct {
	URI     string        `json:"uri"`
	Label   string        `json:"label"`
	Content string        `json:"content"`
	Chain   *memory.Chain `json:"chain,omitempty"`
}

// Challenge is issued with every step, type "none" when the step demands no
// work. The nonce must come back in the next solution; the proof hash links
// this step to its successor.
type Challenge struct {
	Type      string      `json:"type"`
	Nonce     string      `json:"nonce"`
	ProofHash string      `json:"proof_hash"`
	Spec      *proof.Spec `json:"spec"`
}

// StepResponse is the envelope for begin and next. MustObey true binds the
// caller to NextAction; false closes the loop.
type StepResponse struct {
	MustObey    bool       `json:"must_obey"`
	CurrentStep *StepView  `json:"current_step,omitempty"`
	Challenge   *Challenge `json:"challenge,omitempty"`
	NextStep    *StepRef   `json:"next_step,omitempty"`
	ErrorCode   string     `json:"error_code,omitempty"`
	RetryCount  int        `json:"retry_count,omitempty"`
	Message     string     `json:"message,omitempty"`
	NextAction  string     `json:"next_action"`
}

// StepRef points at a step without carrying its content.
type StepRef struct {
	URI string `json:"uri"`
}

// AttestOutcome is one rated step.
type AttestOutcome struct {
	URI          string    `json:"uri"`
	Outcome      string    `json:"outcome"`
	QualityBonus float64   `json:"quality_bonus"`
	Message      string    `json:"message,omitempty"`
	RatedAt      time.Time `json:"rated_at"`
}

// AttestResponse closes a protocol run.
type AttestResponse struct {
	Results     []AttestOutcome `json:"results"`
	TotalRated  int             `json:"total_rated"`
	TotalFailed int             `json:"total_failed"`
}

func viewOf(m *memory.Memory) *StepView {
	return &StepView{URI: m.URI(), Label: m.Label, Content: m.Text, Chain: m.Chain}
}
