package protocol

import (
	"context"
)

// Decision is the structured outcome of a user_input elicitation round-trip.
type Decision string

const (
	DecisionApprove    Decision = "approve"
	DecisionRetryStep  Decision = "retry_last_step"
	DecisionRetryChain Decision = "retry_chain"
	DecisionAbort      Decision = "abort"
	DecisionDeclined   Decision = "declined"
)

// Elicitor prompts the human behind the client and returns their decision.
// A nil Elicitor means the client does not advertise the elicitation
// capability.
type Elicitor interface {
	Elicit(ctx context.Context, prompt string) (Decision, error)
}
