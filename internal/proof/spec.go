// Package proof parses PROOF OF WORK directives into typed challenge specs,
// validates solutions against them, and computes the nonce/hash links that
// chain steps together.
package proof

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind tags the closed set of challenge variants.
type Kind string

const (
	KindShell     Kind = "shell"
	KindMCP       Kind = "mcp"
	KindUserInput Kind = "user_input"
	KindComment   Kind = "comment"
)

// Spec is the tagged sum of challenge variants. Exactly the fields for the
// active Kind are set; the rest stay zero and are omitted on the wire.
type Spec struct {
	Kind Kind `json:"type"`

	// shell
	Cmd            string `json:"cmd,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	ExpectedStdout string `json:"expected_stdout,omitempty"`

	// mcp
	ToolName       string          `json:"tool_name,omitempty"`
	ExpectedResult json.RawMessage `json:"expected_result,omitempty"`

	// user_input
	Prompt string `json:"prompt,omitempty"`

	// comment
	MinLength int `json:"min_length,omitempty"`
}

// Canonical is the stable serialization hashed into proof links. Struct field
// order is fixed, so encoding/json output is deterministic for a given spec.
func (s *Spec) Canonical() string {
	b, _ := json.Marshal(s)
	return string(b)
}

var directiveRe = regexp.MustCompile(`(?i)^\s*PROOF OF WORK:\s*(.+)$`)

// Parse scans a step body for the first PROOF OF WORK directive and returns
// its typed spec. Absence of a directive means the step advances freely.
func Parse(body string) (*Spec, error) {
	for _, line := range strings.Split(body, "\n") {
		m := directiveRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return parseDirective(strings.TrimSpace(m[1]))
	}
	return nil, nil
}

func parseDirective(rest string) (*Spec, error) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty proof of work directive")
	}
	switch strings.ToLower(fields[0]) {
	case "timeout":
		return parseShell(rest, fields)
	case "mcp":
		return parseMCP(fields)
	case "user_input":
		return parseUserInput(rest)
	case "comment":
		return parseComment(fields)
	default:
		return nil, fmt.Errorf("unrecognized proof of work form %q", fields[0])
	}
}

// parseShell handles `timeout <N>s <cmd...>`.
func parseShell(rest string, fields []string) (*Spec, error) {
	if len(fields) < 3 {
		return nil, fmt.Errorf("shell proof needs `timeout <N>s <cmd>`, got %q", rest)
	}
	secs := strings.TrimSuffix(fields[1], "s")
	n, err := strconv.Atoi(secs)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid shell timeout %q", fields[1])
	}
	cmdStart := strings.Index(rest, fields[1]) + len(fields[1])
	return &Spec{
		Kind:           KindShell,
		Cmd:            strings.TrimSpace(rest[cmdStart:]),
		TimeoutSeconds: n,
	}, nil
}

// parseMCP handles `mcp <tool_name> [expected=<json>]`.
func parseMCP(fields []string) (*Spec, error) {
	if len(fields) < 2 {
		return nil, fmt.Errorf("mcp proof needs a tool name")
	}
	s := &Spec{Kind: KindMCP, ToolName: fields[1]}
	for _, f := range fields[2:] {
		if raw, ok := strings.CutPrefix(f, "expected="); ok {
			if !json.Valid([]byte(raw)) {
				return nil, fmt.Errorf("mcp expected= is not valid json: %q", raw)
			}
			s.ExpectedResult = json.RawMessage(raw)
		}
	}
	return s, nil
}

// parseUserInput handles `user_input "<prompt>"`.
func parseUserInput(rest string) (*Spec, error) {
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "user_input"))
	if len(rest) >= 2 && strings.HasPrefix(rest, `"`) && strings.HasSuffix(rest, `"`) {
		rest = rest[1 : len(rest)-1]
	}
	if rest == "" {
		return nil, fmt.Errorf("user_input proof needs a prompt")
	}
	return &Spec{Kind: KindUserInput, Prompt: rest}, nil
}

// parseComment handles `comment min=<N>`.
func parseComment(fields []string) (*Spec, error) {
	for _, f := range fields[1:] {
		if raw, ok := strings.CutPrefix(f, "min="); ok {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid comment min=%q", raw)
			}
			return &Spec{Kind: KindComment, MinLength: n}, nil
		}
	}
	return nil, fmt.Errorf("comment proof needs min=<N>")
}
