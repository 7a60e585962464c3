package domain

import "time"

// Phase is a narrative's lifecycle stage. The lifecycle only moves forward:
// birth -> growth -> peak -> reversal -> death, and death is terminal.
type Phase string

const (
	PhaseBirth    Phase = "birth"
	PhaseGrowth   Phase = "growth"
	PhasePeak     Phase = "peak"
	PhaseReversal Phase = "reversal"
	PhaseDeath    Phase = "death"

	// PhaseUnknown is the neutral placeholder substituted for an unparsable
	// panel vote; it never appears on a Narrative.
	PhaseUnknown Phase = "unknown"
)

// Valid reports whether p is one of the five lifecycle phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseBirth, PhaseGrowth, PhasePeak, PhaseReversal, PhaseDeath:
		return true
	}
	return false
}

// Terminal reports whether p has no outgoing transitions.
func (p Phase) Terminal() bool {
	return p == PhaseDeath
}

var phaseOrder = map[Phase]int{
	PhaseBirth:    0,
	PhaseGrowth:   1,
	PhasePeak:     2,
	PhaseReversal: 3,
	PhaseDeath:    4,
}

// Precedes reports whether p comes strictly before q in lifecycle order.
// It is false when either side is not a lifecycle phase.
func (p Phase) Precedes(q Phase) bool {
	pi, ok := phaseOrder[p]
	if !ok {
		return false
	}
	qi, ok := phaseOrder[q]
	if !ok {
		return false
	}
	return pi < qi
}

// Narrative is a recurring theme inferred from clustered evidence, tracked
// over time with a lifecycle phase and strength score.
type Narrative struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	Phase            Phase      `json:"phase"`
	Strength         int        `json:"strength"`
	Credibility      float64    `json:"credibility"`
	Sentiment        float64    `json:"sentiment"`
	MentionVelocity  float64    `json:"mention_velocity"`
	PriceCorrelation float64    `json:"price_correlation"`
	Keywords         []string   `json:"keywords"`
	Sources          []string   `json:"sources,omitempty"`
	EvidenceCount    int        `json:"evidence_count"`
	ParentID         string     `json:"parent_id,omitempty"`
	BirthTime        time.Time  `json:"birth_time"`
	LastUpdated      time.Time  `json:"last_updated"`
	DeathTime        *time.Time `json:"death_time,omitempty"`
}

// SetStrength assigns strength clamped to [0,100].
func (n *Narrative) SetStrength(v int) {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	n.Strength = v
}

// SetSentiment assigns sentiment clamped to [-1,1].
func (n *Narrative) SetSentiment(v float64) {
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	n.Sentiment = v
}

// PhaseChange records one lifecycle transition for audit/explanation.
type PhaseChange struct {
	From Phase     `json:"from"`
	To   Phase     `json:"to"`
	At   time.Time `json:"at"`
}
