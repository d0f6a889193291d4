package memory

import (
	"strings"
)

// taskVocabulary is the fixed, ordered task vocabulary: the first entry that
// matches label/text/tags wins, else "general".
var taskVocabulary = []string{
	"networking",
	"security",
	"optimization",
	"troubleshooting",
	"error-handling",
	"installation",
	"configuration",
	"testing",
	"deployment",
	"database",
}

const (
	TaskGeneral = "general"

	TypePattern = "pattern"
	TypeRule    = "rule"
	TypeContext = "context"
)

// ClassifyTask picks the first vocabulary task present in the label, text or
// tags.
func ClassifyTask(label, text string, tags []string) string {
	haystack := strings.ToLower(label + " " + text + " " + strings.Join(tags, " "))
	for _, task := range taskVocabulary {
		if strings.Contains(haystack, task) {
			return task
		}
	}
	return TaskGeneral
}

// ClassifyType is pattern when a code fence is present or "pattern" appears in
// tags/text, rule when "rule" appears, else context.
func ClassifyType(text string, tags []string) string {
	lower := strings.ToLower(text + " " + strings.Join(tags, " "))
	if strings.Contains(text, "```") || strings.Contains(lower, TypePattern) {
		return TypePattern
	}
	if strings.Contains(lower, TypeRule) {
		return TypeRule
	}
	return TypeContext
}

// Quality tiers by score.
const (
	TierBasic     = "basic"
	TierStandard  = "standard"
	TierHigh      = "high"
	TierExcellent = "excellent"
)

// ScoreQuality is the deterministic quality heuristic over
// (label, domain, task, type, tags). Only the output shape and monotonicity
// under attestation bonuses are contractual; the weights are local.
func ScoreQuality(label, domain, task, typ string, tags []string) Quality {
	score := 0.2 // floor for any stored step
	if len(label) >= 12 {
		score += 0.15
	}
	if len(tags) >= 3 {
		score += 0.15
	}
	if task != TaskGeneral {
		score += 0.2
	}
	if typ == TypePattern || typ == TypeRule {
		score += 0.15
	}
	if domain != "" && domain != "general" {
		score += 0.1
	}
	return clampQuality(score)
}

// ApplyBonus adds an attestation bonus monotonically: a non-positive bonus
// leaves the quality untouched, a positive one raises score and re-tiers.
func (q Quality) ApplyBonus(bonus float64) Quality {
	if bonus <= 0 {
		return q
	}
	return clampQuality(q.Score + bonus)
}

func clampQuality(score float64) Quality {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return Quality{Score: score, Tier: tierFor(score)}
}

func tierFor(score float64) string {
	switch {
	case score >= 0.75:
		return TierExcellent
	case score >= 0.5:
		return TierHigh
	case score >= 0.25:
		return TierStandard
	default:
		return TierBasic
	}
}
