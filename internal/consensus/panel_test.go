package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NarrativeScanner/internal/domain"
)

func TestParseVoteWellFormed(t *testing.T) {
	t.Parallel()

	raw := `PHASE: growth
STRENGTH: 72
CONFIDENCE: 85
REASONING: Mention volume doubled while price tracked the story closely.`

	v := parseVote("fundamental", raw)
	assert.Equal(t, "fundamental", v.Role)
	assert.Equal(t, domain.PhaseGrowth, v.Phase)
	assert.Equal(t, 72, v.Strength)
	assert.InDelta(t, 0.85, v.Confidence, 0.001)
	assert.Contains(t, v.Reasoning, "Mention volume doubled")
}

func TestParseVoteDecoratedOutput(t *testing.T) {
	t.Parallel()

	raw := `Here is my analysis:

**PHASE**: Peak.
**STRENGTH**: 60
**CONFIDENCE**: 0.9
**REASONING**: *Correlation is extreme and sentiment is rolling over.*`

	v := parseVote("technical", raw)
	assert.Equal(t, domain.PhasePeak, v.Phase)
	assert.Equal(t, 60, v.Strength)
	assert.InDelta(t, 0.9, v.Confidence, 0.001)
	assert.NotContains(t, v.Reasoning, "*")
}

func TestParseVoteConfidenceScales(t *testing.T) {
	t.Parallel()

	// 0-100 scale normalizes down.
	v := parseVote("risk", "PHASE: birth\nCONFIDENCE: 70")
	assert.InDelta(t, 0.7, v.Confidence, 0.001)

	// Already 0-1 passes through.
	v = parseVote("risk", "PHASE: birth\nCONFIDENCE: 1")
	assert.InDelta(t, 1.0, v.Confidence, 0.001)

	v = parseVote("risk", "PHASE: birth\nCONFIDENCE: 0.85")
	assert.InDelta(t, 0.85, v.Confidence, 0.001)
}

func TestParseVoteStrengthClamped(t *testing.T) {
	t.Parallel()

	v := parseVote("macro", "PHASE: growth\nSTRENGTH: 250")
	assert.Equal(t, 100, v.Strength)
}

func TestParseVoteUnparsableIsNeutral(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"I am not able to comply with the requested format today.",
		"PHASE: sideways\nSTRENGTH: 50",
	} {
		v := parseVote("sentiment", raw)
		assert.Equal(t, domain.PhaseUnknown, v.Phase, "raw: %q", raw)
		assert.Equal(t, neutralStrength, v.Strength)
		assert.InDelta(t, neutralConfidence, v.Confidence, 0.001)
	}
}

func TestParseVoteRescuesTrailingReasoning(t *testing.T) {
	t.Parallel()

	raw := `PHASE: growth
STRENGTH: 55
CONFIDENCE: 60

The story is gaining traction across several credible outlets.`

	v := parseVote("fundamental", raw)
	require.Equal(t, domain.PhaseGrowth, v.Phase)
	assert.Contains(t, v.Reasoning, "gaining traction")
}

func TestPanelRolesAreDistinct(t *testing.T) {
	t.Parallel()

	require.Len(t, PanelRoles, 5)
	seen := map[string]bool{}
	for _, r := range PanelRoles {
		assert.False(t, seen[r.Name], "duplicate role %s", r.Name)
		seen[r.Name] = true
		assert.NotEmpty(t, r.Focus)
	}
}
