package protocol

import (
	"context"
	"time"

	"github.com/debian777/kairos-mcp/internal/faults"
	"github.com/debian777/kairos-mcp/internal/proofstore"
)

// Attest outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Attest records the run's outcome for a step. Success raises the step's
// quality metadata monotonically; failure records the message and leaves the
// score alone.
func (mc *Machine) Attest(ctx context.Context, uri, outcome, message string, qualityBonus float64) (*AttestResponse, error) {
	if outcome != OutcomeSuccess && outcome != OutcomeFailure {
		return nil, faults.New(faults.CodeInvalidInput, "outcome must be success or failure, got %q", outcome)
	}
	if qualityBonus < 0 {
		return nil, faults.New(faults.CodeInvalidInput, "quality_bonus must not be negative")
	}
	m, err := mc.store.Get(ctx, uri)
	if err != nil {
		return nil, err
	}

	ratedAt := time.Now().UTC()
	if err := mc.pow.SaveResult(ctx, m.UUID, proofstore.ResultRecord{
		Outcome:      outcome,
		Message:      message,
		QualityBonus: qualityBonus,
		RatedAt:      ratedAt,
	}); err != nil {
		return nil, err
	}

	resp := &AttestResponse{
		Results: []AttestOutcome{{
			URI:          uri,
			Outcome:      outcome,
			QualityBonus: qualityBonus,
			Message:      message,
			RatedAt:      ratedAt,
		}},
	}
	if outcome == OutcomeSuccess {
		if err := mc.store.BumpQuality(ctx, m, qualityBonus); err != nil {
			return nil, err
		}
		resp.TotalRated = 1
	} else {
		resp.TotalFailed = 1
	}
	return resp, nil
}
