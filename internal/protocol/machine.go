// Package protocol drives step-by-step execution: begin issues a challenge,
// next validates the solution against the predecessor's challenge and
// advances, attest closes the loop. Proof errors are recovered locally with
// fresh challenges until retries are exhausted; only then does must_obey flip
// to false.
package protocol

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/debian777/kairos-mcp/internal/faults"
	"github.com/debian777/kairos-mcp/internal/memory"
	"github.com/debian777/kairos-mcp/internal/proof"
	"github.com/debian777/kairos-mcp/internal/proofstore"
)

// MaxRetries is the number of consecutive failed solutions a step tolerates
// before the circuit opens.
const MaxRetries = 3

// MemoryStore is the slice of the chain store the machine needs.
type MemoryStore interface {
	Get(ctx context.Context, uri string) (*memory.Memory, error)
	Predecessor(ctx context.Context, m *memory.Memory) (*memory.Memory, error)
	Successor(ctx context.Context, m *memory.Memory) (*memory.Memory, error)
	Members(ctx context.Context, chainID string) ([]*memory.Memory, error)
	BumpQuality(ctx context.Context, m *memory.Memory, bonus float64) error
}

// Machine executes protocols. It holds no in-memory state: the proof store
// and the vector store arbitrate everything.
type Machine struct {
	store MemoryStore
	pow   *proofstore.Store
	log   zerolog.Logger

	elicitTimeout time.Duration
}

func NewMachine(store MemoryStore, pow *proofstore.Store, elicitTimeout time.Duration, log zerolog.Logger) *Machine {
	if elicitTimeout <= 0 {
		elicitTimeout = 60 * time.Second
	}
	return &Machine{
		store:         store,
		pow:           pow,
		log:           log.With().Str("component", "protocol").Logger(),
		elicitTimeout: elicitTimeout,
	}
}

// Begin loads the step and issues its nonce and proof hash (the genesis hash
// for step 1). Free steps carry a type "none" challenge: the caller echoes its
// nonce and hash back on next with no typed result.
func (mc *Machine) Begin(ctx context.Context, uri string) (*StepResponse, error) {
	m, err := mc.store.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	challenge, err := mc.issue(ctx, m)
	if err != nil {
		return nil, err
	}
	resp := &StepResponse{MustObey: true, CurrentStep: viewOf(m), Challenge: challenge}
	next, err := mc.store.Successor(ctx, m)
	if err != nil {
		return nil, err
	}
	if next != nil {
		resp.NextStep = &StepRef{URI: next.URI()}
		resp.NextAction = nextActionFor(m, next.URI())
	} else {
		resp.NextAction = nextActionFor(m, "")
	}
	return resp, nil
}

// Next validates the solution against the predecessor's challenge and, on
// success, advances to the step at uri with a fresh challenge.
func (mc *Machine) Next(ctx context.Context, uri string, sol *proof.Solution, elicitor Elicitor) (*StepResponse, error) {
	m, err := mc.store.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	// target is the step whose challenge the solution answers: the
	// predecessor, or m itself when the head is being resumed.
	target, err := mc.store.Predecessor(ctx, m)
	if err != nil {
		return nil, err
	}
	if target == nil {
		target = m
	}

	if ferr := mc.validate(ctx, target, sol, elicitor); ferr != nil {
		return mc.handleFailure(ctx, m, target, ferr)
	}

	if err := mc.pow.SaveResult(ctx, target.UUID, proofstore.ResultRecord{
		Outcome: "success",
		RatedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	if err := mc.pow.ResetRetries(ctx, target.UUID); err != nil {
		return nil, err
	}

	challenge, err := mc.issue(ctx, m)
	if err != nil {
		return nil, err
	}
	resp := &StepResponse{MustObey: true, CurrentStep: viewOf(m), Challenge: challenge}
	next, err := mc.store.Successor(ctx, m)
	if err != nil {
		return nil, err
	}
	if next != nil {
		resp.NextStep = &StepRef{URI: next.URI()}
		resp.NextAction = nextActionFor(m, next.URI())
	} else {
		resp.NextAction = nextActionFor(m, "")
	}
	return resp, nil
}

// validate runs the continuity checks and the typed dispatch, in order.
func (mc *Machine) validate(ctx context.Context, target *memory.Memory, sol *proof.Solution, elicitor Elicitor) error {
	storedNonce, err := mc.pow.Nonce(ctx, target.UUID)
	if err != nil {
		return err
	}
	if sol == nil || sol.Nonce == "" || storedNonce == "" || sol.Nonce != storedNonce {
		return faults.New(faults.CodeNonceMismatch,
			"nonce missing or stale for %s; begin again to get a fresh challenge", target.URI())
	}
	storedHash, err := mc.pow.Hash(ctx, target.UUID)
	if err != nil {
		return err
	}
	if sol.ProofHash == "" || storedHash == "" || sol.ProofHash != storedHash {
		return faults.New(faults.CodeHashMismatch, "proof hash does not link to %s", target.URI())
	}

	if target.Proof != nil && target.Proof.Kind == proof.KindUserInput {
		return mc.validateUserInput(ctx, target, sol, elicitor)
	}
	return proof.Validate(target.Proof, sol)
}

// validateUserInput handles the one challenge kind that may round-trip
// through the human. An already-approved solution passes without prompting.
func (mc *Machine) validateUserInput(ctx context.Context, target *memory.Memory, sol *proof.Solution, elicitor Elicitor) error {
	if sol.UserInput != nil && sol.UserInput.Confirmation == proof.Confirmed {
		return nil
	}
	if elicitor == nil {
		return faults.New(faults.CodeCapabilityRequired,
			"step requires user confirmation but the client has no elicitation capability")
	}
	ectx, cancel := context.WithTimeout(ctx, mc.elicitTimeout)
	defer cancel()
	decision, err := elicitor.Elicit(ectx, target.Proof.Prompt)
	if err != nil {
		return faults.Wrap(err, faults.CodeElicitationFailed, "elicitation round-trip failed")
	}
	switch decision {
	case DecisionApprove:
		return nil
	case DecisionRetryChain:
		head := target
		if target.Chain != nil {
			if members, merr := mc.store.Members(ctx, target.Chain.ID); merr == nil && len(members) > 0 {
				head = members[0]
			}
		}
		return faults.New(faults.CodeUserDeclined, "user asked to restart the chain").
			WithDetails(map[string]any{"next_action": "call kairos_begin with " + head.URI()})
	case DecisionAbort:
		return faults.New(faults.CodeUserDeclined, "user aborted the protocol").
			WithDetails(map[string]any{"next_action": "call kairos_attest with outcome=failure"})
	default: // retry_last_step, declined, cancel
		return faults.New(faults.CodeUserDeclined, "user declined this step")
	}
}

// handleFailure runs the bounded retry path. CAPABILITY_REQUIRED is terminal
// without burning retries: the client cannot fix it by looping.
func (mc *Machine) handleFailure(ctx context.Context, m, target *memory.Memory, ferr error) (*StepResponse, error) {
	code := faults.CodeOf(ferr)
	if code == faults.CodeKVFailed || code == faults.CodeStoreFailed || code == faults.CodeInternal {
		return nil, ferr
	}
	if code == faults.CodeCapabilityRequired {
		return &StepResponse{
			MustObey:   false,
			ErrorCode:  code,
			Message:    faults.MessageOf(ferr),
			NextAction: "call kairos_attest with outcome=failure, or retry from an elicitation-capable client",
		}, nil
	}

	retries, err := mc.pow.IncrRetries(ctx, target.UUID)
	if err != nil {
		return nil, err
	}
	if retries >= MaxRetries {
		if serr := mc.pow.SaveResult(ctx, target.UUID, proofstore.ResultRecord{
			Outcome: "failure",
			Message: faults.MessageOf(ferr),
			RatedAt: time.Now().UTC(),
		}); serr != nil {
			mc.log.Warn().Err(serr).Msg("recording failure result")
		}
		return &StepResponse{
			MustObey:   false,
			ErrorCode:  faults.CodeMaxRetriesExceeded,
			RetryCount: retries,
			Message:    "retries exhausted for " + target.URI(),
			NextAction: "call kairos_attest with outcome=failure",
		}, nil
	}

	challenge, cerr := mc.reissue(ctx, target)
	if cerr != nil {
		return nil, cerr
	}
	resp := &StepResponse{
		MustObey:   true,
		ErrorCode:  code,
		RetryCount: retries,
		Message:    faults.MessageOf(ferr),
		Challenge:  challenge,
		NextAction: "solve the fresh challenge and call kairos_next with " + m.URI() + " again",
	}
	if details := faults.DetailsOf(ferr); details != nil {
		if na, ok := details["next_action"].(string); ok {
			resp.NextAction = na
		}
	}
	return resp, nil
}

// issue stores a fresh nonce and proof hash for m and resets its retry
// counter. Nonce and hash are stored for every step, challenged or not, so
// the continuity chain survives free steps.
func (mc *Machine) issue(ctx context.Context, m *memory.Memory) (*Challenge, error) {
	challenge, err := mc.reissue(ctx, m)
	if err != nil {
		return nil, err
	}
	if err := mc.pow.ResetRetries(ctx, m.UUID); err != nil {
		return nil, err
	}
	return challenge, nil
}

// reissue refreshes nonce and hash without touching the retry counter.
func (mc *Machine) reissue(ctx context.Context, m *memory.Memory) (*Challenge, error) {
	nonce, err := proof.NewNonce()
	if err != nil {
		return nil, faults.Wrap(err, faults.CodeInternal, "generate nonce")
	}
	hash := proof.HashLink(nonce, m.Proof)
	if err := mc.pow.SetNonce(ctx, m.UUID, nonce); err != nil {
		return nil, err
	}
	if err := mc.pow.SetHash(ctx, m.UUID, hash); err != nil {
		return nil, err
	}
	challenge := &Challenge{Nonce: nonce, ProofHash: hash, Spec: m.Proof}
	if m.Proof != nil {
		challenge.Type = string(m.Proof.Kind)
	} else {
		challenge.Type = "none"
	}
	return challenge, nil
}

func nextActionFor(m *memory.Memory, nextURI string) string {
	switch {
	case nextURI != "" && m.Proof != nil:
		return "solve the challenge, then call kairos_next with " + nextURI
	case nextURI != "":
		return "call kairos_next with " + nextURI
	case m.Proof != nil:
		return "solve the challenge, then call kairos_attest with outcome=success"
	default:
		return "call kairos_attest with outcome=success"
	}
}
