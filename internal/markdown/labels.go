package markdown

import (
	"strings"
)

// MaxLabelLen caps derived labels.
const MaxLabelLen = 120

const (
	maxLabelTags  = 6
	maxTags       = 8
	minLabelWord  = 3 // words of length >2
	minBulletWord = 4 // bullet words of length >3
)

// DeriveLabel picks a label for a blob: first markdown heading, else first
// non-empty line, else "Memory". Truncated to MaxLabelLen.
func DeriveLabel(text string) string {
	var firstNonEmpty string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			return TruncateLabel(strings.TrimSpace(strings.TrimLeft(trimmed, "# ")))
		}
		if firstNonEmpty == "" {
			firstNonEmpty = trimmed
		}
	}
	if firstNonEmpty == "" {
		return "Memory"
	}
	return TruncateLabel(firstNonEmpty)
}

// TruncateLabel enforces the label length cap.
func TruncateLabel(label string) string {
	if len(label) > MaxLabelLen {
		return label[:MaxLabelLen]
	}
	return label
}

// DeriveTags builds the tag set for a step: up to 6 label words of length >2,
// unioned with the first two significant words of every bullet line, capped
// at 8 lowercase tokens. Order is first-seen.
func DeriveTags(label, body string) []string {
	seen := make(map[string]bool, maxTags)
	tags := make([]string, 0, maxTags)
	add := func(word string) {
		word = strings.ToLower(strings.Trim(word, ".,:;!?()[]{}`\"'"))
		if word == "" || seen[word] || len(tags) >= maxTags {
			return
		}
		seen[word] = true
		tags = append(tags, word)
	}

	labelWords := 0
	for _, w := range strings.Fields(label) {
		if labelWords >= maxLabelTags {
			break
		}
		if len(w) >= minLabelWord {
			add(w)
			labelWords++
		}
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- ") && !strings.HasPrefix(trimmed, "* ") {
			continue
		}
		picked := 0
		for _, w := range strings.Fields(trimmed[2:]) {
			if picked >= 2 {
				break
			}
			if len(w) >= minBulletWord {
				add(w)
				picked++
			}
		}
	}
	return tags
}
