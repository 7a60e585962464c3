// Package consensus runs the analyst panel: independent evaluation, one
// bounded debate round, synthesis, and the hybrid blend with the metric
// state machine.
package consensus

import (
	"fmt"
	"strings"

	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/lifecycle"
)

// Role is one perspective on the analyst panel.
type Role struct {
	Name      string
	Specialty string
	Focus     string
}

// PanelRoles is the fixed five-role panel. Each role sees the same evidence
// but weighs it from its own angle.
var PanelRoles = []Role{
	{
		Name:      "fundamental",
		Specialty: "Fundamental Analyst",
		Focus:     "industrial demand (solar, EVs, electronics), supply dynamics, inventory levels, and real-world utility",
	},
	{
		Name:      "sentiment",
		Specialty: "Sentiment Analyst",
		Focus:     "social media trends, news sentiment, retail investor behavior, and fear/greed indicators",
	},
	{
		Name:      "technical",
		Specialty: "Technical Analyst",
		Focus:     "price correlation with narrative timing, momentum, volume patterns, and historical price behavior",
	},
	{
		Name:      "risk",
		Specialty: "Risk Analyst",
		Focus:     "contradicting evidence, false signals, potential for narrative collapse, and downside risks",
	},
	{
		Name:      "macro",
		Specialty: "Macro Analyst",
		Focus:     "central bank policy, inflation trends, dollar strength, geopolitical factors, and economic cycles",
	},
}

const (
	neutralConfidence = 0.3
	neutralStrength   = 50
)

// systemPrompt is the shared instruction prefix; the role's perspective is
// appended per call.
func (r Role) systemPrompt() string {
	return fmt.Sprintf("You are a %s analyzing commodity market narratives.\n\nAs a %s, focus on %s.",
		r.Specialty, r.Specialty, r.Focus)
}

// analysisPrompt renders the evidence and live metrics into the structured
// task every role answers. debate is empty in round 1 and carries the other
// roles' round-1 votes in round 2.
func (r Role) analysisPrompt(n domain.Narrative, evidence []domain.Evidence, m lifecycle.Metrics, debate string) string {
	var lines strings.Builder
	for i, e := range evidence {
		if i == 10 {
			break
		}
		text := e.Text()
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Fprintf(&lines, "- [%s] %s (correlation: %.2f)\n", e.Source, text, m.PriceCorrelation)
	}
	evidenceText := lines.String()
	if evidenceText == "" {
		evidenceText = "No evidence provided\n"
	}

	prompt := fmt.Sprintf(`Analyze this market narrative from your %s perspective:

**Narrative**: %s
**Mention velocity**: %.2f/hr (change: %+.0f%%)
**Price correlation**: %.2f

**Evidence**:
%s
**Your Task**:
1. Determine lifecycle phase: birth, growth, peak, reversal, or death
2. Rate strength (0-100): How impactful is this narrative right now? Consider the volume of evidence and price potential.
3. Provide confidence (0-100): How certain are you about this analysis?
4. Explain your reasoning briefly (2-3 sentences). Be specific about the evidence.

**Response Format** (strictly follow this):
PHASE: [phase]
STRENGTH: [0-100]
CONFIDENCE: [0-100]
REASONING: [your reasoning]
`, r.Specialty, n.Name, m.CurrentVelocity, m.VelocityIncrease*100, m.PriceCorrelation, evidenceText)

	if debate != "" {
		prompt += "\n" + debate
	}
	return prompt
}

// neutralVote is the substitute when a role's evaluation fails outright.
func neutralVote(role, reason string) domain.PanelVote {
	return domain.PanelVote{
		Role:       role,
		Phase:      domain.PhaseUnknown,
		Strength:   neutralStrength,
		Confidence: neutralConfidence,
		Reasoning:  reason,
	}
}

// parseVote interprets the line-oriented PHASE/STRENGTH/CONFIDENCE/REASONING
// response. Models decorate their output, so parsing is deliberately
// forgiving: markdown is stripped, digits are filtered out of numeric
// fields, and confidence accepts both 0-1 and 0-100 scales. A response
// without a recognizable phase counts as unparsable and yields the neutral
// vote rather than an error.
func parseVote(role, raw string) domain.PanelVote {
	vote := domain.PanelVote{
		Role:       role,
		Phase:      domain.PhaseUnknown,
		Strength:   neutralStrength,
		Confidence: 0.5,
		Reasoning:  "",
	}

	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, ":") {
			continue
		}
		upper := strings.ToUpper(line)

		// Reasoning is checked first: its free text may mention the other
		// tag words.
		switch {
		case strings.Contains(upper, "REASONING"):
			vote.Reasoning = strings.ReplaceAll(afterColon(line), "*", "")
		case strings.Contains(upper, "PHASE"):
			value := afterColon(line)
			value = strings.ToLower(strings.NewReplacer("*", "", ".", "").Replace(value))
			phase := domain.Phase(strings.TrimSpace(value))
			if phase.Valid() {
				vote.Phase = phase
			}
		case strings.Contains(upper, "STRENGTH"):
			if v, ok := digits(afterColon(line)); ok {
				vote.Strength = clampInt(v, 0, 100)
			}
		case strings.Contains(upper, "CONFIDENCE"):
			if v, ok := numeric(afterColon(line)); ok {
				if v > 1 {
					v /= 100
				}
				vote.Confidence = clampFloat(v, 0, 1)
			}
		}
	}

	// Rescue reasoning from a trailing free-text line if the tag was missing.
	if vote.Reasoning == "" {
		for i := len(lines) - 1; i >= 0; i-- {
			line := strings.TrimSpace(lines[i])
			if !strings.Contains(line, ":") && len(line) > 20 {
				vote.Reasoning = line
				break
			}
		}
	}

	if vote.Phase == domain.PhaseUnknown {
		return neutralVote(role, "unparsable panel response")
	}
	return vote
}

func afterColon(line string) string {
	_, after, found := strings.Cut(line, ":")
	if !found {
		return ""
	}
	return strings.TrimSpace(after)
}

func digits(s string) (int, bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}

	var v int
	fmt.Sscanf(b.String(), "%d", &v)
	return v, true
}

// numeric keeps digits and the decimal point so both "85" and "0.85" parse.
func numeric(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}

	var v float64
	if _, err := fmt.Sscanf(b.String(), "%f", &v); err != nil {
		return 0, false
	}
	return v, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
