package proof

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/debian777/kairos-mcp/internal/faults"
)

// Solution is what a caller presents to advance past a challenged step.
// Nonce and ProofHash carry the continuity links; exactly one typed result
// matches the predecessor's spec.
type Solution struct {
	Nonce     string `json:"nonce"`
	ProofHash string `json:"proof_hash"`

	Shell     *ShellResult     `json:"shell,omitempty"`
	MCP       *MCPResult       `json:"mcp,omitempty"`
	UserInput *UserInputResult `json:"user_input,omitempty"`
	Comment   *CommentResult   `json:"comment,omitempty"`
}

type ShellResult struct {
	ExitCode        int     `json:"exit_code"`
	Stdout          string  `json:"stdout,omitempty"`
	Stderr          string  `json:"stderr,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

type MCPResult struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result"`
	Success   bool            `json:"success"`
}

type UserInputResult struct {
	Confirmation string `json:"confirmation"`
}

type CommentResult struct {
	Text string `json:"text"`
}

// Confirmed is the only accepted user_input confirmation value.
const Confirmed = "approved"

// Validate checks a solution's typed payload against the spec it answers.
// Continuity (nonce, hash) is the state machine's job; this is the typed
// dispatch only. A nil spec always validates.
func Validate(spec *Spec, sol *Solution) error {
	if spec == nil {
		return nil
	}
	if sol == nil {
		return faults.New(faults.CodeProofInvalid, "missing solution for %s challenge", spec.Kind)
	}
	switch spec.Kind {
	case KindShell:
		return validateShell(spec, sol.Shell)
	case KindMCP:
		return validateMCP(spec, sol.MCP)
	case KindUserInput:
		return validateUserInput(sol.UserInput)
	case KindComment:
		return validateComment(spec, sol.Comment)
	default:
		return faults.New(faults.CodeProofInvalid, "unknown challenge kind %q", spec.Kind)
	}
}

func validateShell(spec *Spec, r *ShellResult) error {
	if r == nil {
		return faults.New(faults.CodeProofInvalid, "shell challenge needs a shell result")
	}
	if r.ExitCode != 0 {
		return faults.New(faults.CodeProofInvalid, "shell exited with code %d", r.ExitCode)
	}
	if spec.ExpectedStdout != "" && !strings.Contains(r.Stdout, spec.ExpectedStdout) {
		return faults.New(faults.CodeProofInvalid, "stdout does not contain expected output")
	}
	// duration over timeout is informational only, never a failure
	return nil
}

func validateMCP(spec *Spec, r *MCPResult) error {
	if r == nil {
		return faults.New(faults.CodeProofInvalid, "mcp challenge needs an mcp result")
	}
	if !r.Success {
		return faults.New(faults.CodeProofInvalid, "mcp tool %s reported failure", spec.ToolName)
	}
	if len(spec.ExpectedResult) > 0 {
		if !jsonDeepEqual(spec.ExpectedResult, r.Result) {
			return faults.New(faults.CodeProofInvalid, "mcp result does not match expected result")
		}
	}
	return nil
}

func validateUserInput(r *UserInputResult) error {
	if r == nil || r.Confirmation != Confirmed {
		return faults.New(faults.CodeProofInvalid, "user input not approved")
	}
	return nil
}

func validateComment(spec *Spec, r *CommentResult) error {
	if r == nil {
		return faults.New(faults.CodeProofInvalid, "comment challenge needs a comment result")
	}
	if len(r.Text) < spec.MinLength {
		return faults.New(faults.CodeProofInvalid,
			"comment too short: %d < %d", len(r.Text), spec.MinLength)
	}
	return nil
}

// jsonDeepEqual compares two JSON documents structurally so key order and
// whitespace do not matter.
func jsonDeepEqual(a, b json.RawMessage) bool {
	var av, bv any
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
