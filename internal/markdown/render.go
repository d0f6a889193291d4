package markdown

import (
	"strings"
)

// BODY markers bracket a step's text when a full render is round-tripped
// through update. Text between them is authoritative; everything outside is
// presentation chrome.
const (
	BodyStart = "<!-- KAIROS:BODY-START -->"
	BodyEnd   = "<!-- KAIROS:BODY-END -->"
)

// ExtractBody returns the markdown between the BODY markers when both are
// present in order, else the input unchanged.
func ExtractBody(doc string) string {
	start := strings.Index(doc, BodyStart)
	if start < 0 {
		return doc
	}
	rest := doc[start+len(BodyStart):]
	end := strings.Index(rest, BodyEnd)
	if end < 0 {
		return doc
	}
	return strings.TrimSpace(rest[:end])
}

// RenderStep renders a single step with its metadata header and marked body.
func RenderStep(label, body string) string {
	var b strings.Builder
	b.WriteString("## ")
	b.WriteString(label)
	b.WriteString("\n\n")
	b.WriteString(BodyStart)
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(BodyEnd)
	b.WriteString("\n")
	return b.String()
}

// RenderChain concatenates an ordered chain back into one document:
// "# <chain_label>" followed by each step as "## <label>\n<body>". The output
// re-mints to the same chain id and step count.
func RenderChain(chainLabel string, sections []Section) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(chainLabel)
	b.WriteString("\n")
	for _, s := range sections {
		b.WriteString("\n## ")
		b.WriteString(s.Heading)
		b.WriteString("\n")
		b.WriteString(s.Body)
		b.WriteString("\n")
	}
	return b.String()
}
