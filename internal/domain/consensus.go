package domain

import "time"

// Analysis methods reported on a ConsensusResult.
const (
	MethodPanel           = "panel"
	MethodMetricsFallback = "metrics-fallback"
)

// PanelVote is one role's assessment of a narrative in a consensus round.
type PanelVote struct {
	Role       string  `json:"role"`
	Phase      Phase   `json:"phase"`
	Strength   int     `json:"strength"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ConsensusResult is the final reconciled assessment of a narrative.
type ConsensusResult struct {
	NarrativeID      string      `json:"narrative_id"`
	Phase            Phase       `json:"phase"`
	Strength         int         `json:"strength"`
	Confidence       float64     `json:"confidence"`
	ConsensusLevel   float64     `json:"consensus_level"`
	AnalysisMethod   string      `json:"analysis_method"`
	Votes            []PanelVote `json:"votes"`
	MinorityOpinions []PanelVote `json:"minority_opinions,omitempty"`
	Explanation      string      `json:"explanation"`
	Timestamp        time.Time   `json:"timestamp"`
}
