package proof

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debian777/kairos-mcp/internal/faults"
)

func TestValidateNilSpecAlwaysPasses(t *testing.T) {
	assert.NoError(t, Validate(nil, nil))
	assert.NoError(t, Validate(nil, &Solution{}))
}

func TestValidateShell(t *testing.T) {
	spec := &Spec{Kind: KindShell, Cmd: "make test", TimeoutSeconds: 5, ExpectedStdout: "PASS"}

	assert.NoError(t, Validate(spec, &Solution{Shell: &ShellResult{ExitCode: 0, Stdout: "ok: PASS"}}))
	assert.Error(t, Validate(spec, &Solution{Shell: &ShellResult{ExitCode: 1, Stdout: "PASS"}}))
	assert.Error(t, Validate(spec, &Solution{Shell: &ShellResult{ExitCode: 0, Stdout: "FAIL"}}))
	assert.Error(t, Validate(spec, &Solution{}))
}

func TestValidateShellOverrunIsNotFailure(t *testing.T) {
	spec := &Spec{Kind: KindShell, Cmd: "slow", TimeoutSeconds: 1}
	sol := &Solution{Shell: &ShellResult{ExitCode: 0, DurationSeconds: 30}}
	assert.NoError(t, Validate(spec, sol))
}

func TestValidateMCP(t *testing.T) {
	spec := &Spec{Kind: KindMCP, ToolName: "deploy", ExpectedResult: json.RawMessage(`{"ok": true, "n": 1}`)}

	// Structural comparison: key order and whitespace are irrelevant.
	good := &Solution{MCP: &MCPResult{ToolName: "deploy", Success: true, Result: json.RawMessage(`{"n":1,"ok":true}`)}}
	assert.NoError(t, Validate(spec, good))

	assert.Error(t, Validate(spec, &Solution{MCP: &MCPResult{Success: false, Result: json.RawMessage(`{"ok":true,"n":1}`)}}))
	assert.Error(t, Validate(spec, &Solution{MCP: &MCPResult{Success: true, Result: json.RawMessage(`{"ok":false}`)}}))
}

func TestValidateMCPWithoutExpectedResult(t *testing.T) {
	spec := &Spec{Kind: KindMCP, ToolName: "ping"}
	assert.NoError(t, Validate(spec, &Solution{MCP: &MCPResult{Success: true}}))
}

func TestValidateUserInput(t *testing.T) {
	spec := &Spec{Kind: KindUserInput, Prompt: "continue?"}

	assert.NoError(t, Validate(spec, &Solution{UserInput: &UserInputResult{Confirmation: Confirmed}}))
	assert.Error(t, Validate(spec, &Solution{UserInput: &UserInputResult{Confirmation: "yes"}}))
	assert.Error(t, Validate(spec, &Solution{}))
}

func TestValidateComment(t *testing.T) {
	spec := &Spec{Kind: KindComment, MinLength: 10}

	assert.NoError(t, Validate(spec, &Solution{Comment: &CommentResult{Text: "exactly10!"}}))
	err := Validate(spec, &Solution{Comment: &CommentResult{Text: "short"}})
	require.Error(t, err)
	assert.Equal(t, faults.CodeProofInvalid, faults.CodeOf(err))
}

func TestValidateMissingSolution(t *testing.T) {
	err := Validate(&Spec{Kind: KindComment, MinLength: 1}, nil)
	require.Error(t, err)
	assert.Equal(t, faults.CodeProofInvalid, faults.CodeOf(err))
}

func TestHashLink(t *testing.T) {
	spec := &Spec{Kind: KindComment, MinLength: 3}

	h1 := HashLink("aabb", spec)
	h2 := HashLink("aabb", spec)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	assert.NotEqual(t, h1, HashLink("ccdd", spec))
	assert.NotEqual(t, h1, HashLink("aabb", nil))
}

func TestNewNonce(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
