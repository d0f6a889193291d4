// Package markdown slices protocol documents into ordered step sections and
// renders them back. Parsing is line-oriented on purpose: the body of each
// step must survive a dump/mint round-trip byte-for-byte, which rules out an
// AST that re-serializes.
package markdown

import (
	"encoding/json"
	"strings"
)

// Section is one step of a chain: the H2 heading and everything below it up
// to the next H2 (or EOF), trimmed.
type Section struct {
	Heading string
	Body    string
}

// Doc is the result of slicing a markdown blob.
type Doc struct {
	// ChainLabel is the H1 (prefix before ':' when one is present).
	// Empty for single-step fallback documents.
	ChainLabel string
	Sections   []Section
	// Single marks the no-H1/no-H2 fallback: exactly one section holding
	// the whole blob.
	Single bool
}

// Normalize decodes a JSON string literal when the blob is one, otherwise
// passes the blob through unchanged.
func Normalize(blob string) string {
	trimmed := strings.TrimSpace(blob)
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		var decoded string
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return blob
}

// Slice parses the blob into a chain document. Headings inside code fences
// are ignored. With no H1 or zero H2s it yields the single-step fallback.
func Slice(blob string) Doc {
	blob = Normalize(blob)
	lines := strings.Split(blob, "\n")

	var (
		h1      string
		h1Seen  bool
		inFence bool
	)
	type h2pos struct {
		heading string
		line    int
	}
	var heads []h2pos

	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if !h1Seen && strings.HasPrefix(line, "# ") {
			h1 = strings.TrimSpace(line[2:])
			h1Seen = true
			continue
		}
		if strings.HasPrefix(line, "## ") {
			heads = append(heads, h2pos{heading: strings.TrimSpace(line[3:]), line: i})
		}
	}

	if !h1Seen || len(heads) == 0 {
		return Doc{
			Sections: []Section{{Heading: DeriveLabel(blob), Body: strings.TrimSpace(blob)}},
			Single:   true,
		}
	}

	chainLabel := h1
	var step1Prefix string
	if idx := strings.Index(h1, ":"); idx >= 0 {
		chainLabel = strings.TrimSpace(h1[:idx])
		step1Prefix = strings.TrimSpace(h1[idx+1:])
	}

	sections := make([]Section, 0, len(heads))
	for n, h := range heads {
		end := len(lines)
		if n+1 < len(heads) {
			end = heads[n+1].line
		}
		body := strings.TrimSpace(strings.Join(lines[h.line+1:end], "\n"))
		heading := h.heading
		if n == 0 && step1Prefix != "" {
			heading = step1Prefix + ": " + heading
		}
		sections = append(sections, Section{Heading: heading, Body: body})
	}
	return Doc{ChainLabel: chainLabel, Sections: sections}
}
