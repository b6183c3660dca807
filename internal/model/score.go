package model

import (
	"encoding/json"
	"math"
)

// HScore is the composite hallucination-risk score.
// Sub-scores and Final are on a 0-10 scale; Display reports the 0-100 variant.
type HScore struct {
	Final      float64 `json:"final"`
	Safety     float64 `json:"safety"`
	Trust      float64 `json:"trust"`
	Confidence float64 `json:"confidence"`
	Quality    float64 `json:"quality"`
}

// Display returns Final scaled to 0-100
func (h HScore) Display() float64 {
	return Round1(h.Final * 10)
}

// Round1 rounds to one decimal place
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Signal represents a diagnostic signal with transparent scoring data
type Signal struct {
	Type        SignalType     `json:"type"`           // Signal classification
	Severity    SignalSeverity `json:"severity"`       // info, warning, critical
	Description string         `json:"description"`    // Human-readable description
	Data        map[string]any `json:"data,omitempty"` // Transparent scoring data (formulas, inputs)
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalCoverage      SignalType = "coverage"      // Successful slots vs configured slots
	SignalAgreement     SignalType = "agreement"     // Pairwise overlap between responses
	SignalContradiction SignalType = "contradiction" // Response pairs that diverge
	SignalRefusal       SignalType = "refusal"       // Responses declining to answer
	SignalHedging       SignalType = "hedging"       // Uncertainty markers in responses
	SignalReliability   SignalType = "reliability"   // Provider prior weighting
	SignalSingleSource  SignalType = "single_source" // Only one response to judge
	SignalNoResponses   SignalType = "no_responses"  // Every adapter failed
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)

// Verdict is one team perspective: a narrative and its sub-score (0-10)
type Verdict struct {
	Narrative string   `json:"narrative"`
	Score     float64  `json:"score"`
	Cites     []string `json:"cites,omitempty"` // Names of the models the narrative refers to
}

// TeamAnalysis holds the red, blue and purple perspectives.
// A nil verdict means the perspective was not requested.
type TeamAnalysis struct {
	RedTeam    *Verdict
	BlueTeam   *Verdict
	PurpleTeam *Verdict
}

type teamAnalysisJSON struct {
	RedTeam         *string  `json:"red_team,omitempty"`
	RedTeamScore    *float64 `json:"red_team_score,omitempty"`
	RedTeamCites    []string `json:"red_team_cites,omitempty"`
	BlueTeam        *string  `json:"blue_team,omitempty"`
	BlueTeamScore   *float64 `json:"blue_team_score,omitempty"`
	BlueTeamCites   []string `json:"blue_team_cites,omitempty"`
	PurpleTeam      *string  `json:"purple_team,omitempty"`
	PurpleTeamScore *float64 `json:"purple_team_score,omitempty"`
}

// MarshalJSON flattens verdicts into red_team / red_team_score style fields
func (t TeamAnalysis) MarshalJSON() ([]byte, error) {
	var out teamAnalysisJSON
	if v := t.RedTeam; v != nil {
		out.RedTeam, out.RedTeamScore, out.RedTeamCites = &v.Narrative, &v.Score, v.Cites
	}
	if v := t.BlueTeam; v != nil {
		out.BlueTeam, out.BlueTeamScore, out.BlueTeamCites = &v.Narrative, &v.Score, v.Cites
	}
	if v := t.PurpleTeam; v != nil {
		out.PurpleTeam, out.PurpleTeamScore = &v.Narrative, &v.Score
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON so cached results decode intact
func (t *TeamAnalysis) UnmarshalJSON(data []byte) error {
	var in teamAnalysisJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = TeamAnalysis{
		RedTeam:    verdictFrom(in.RedTeam, in.RedTeamScore, in.RedTeamCites),
		BlueTeam:   verdictFrom(in.BlueTeam, in.BlueTeamScore, in.BlueTeamCites),
		PurpleTeam: verdictFrom(in.PurpleTeam, in.PurpleTeamScore, nil),
	}
	return nil
}

func verdictFrom(narrative *string, score *float64, cites []string) *Verdict {
	if narrative == nil && score == nil {
		return nil
	}
	v := &Verdict{Cites: cites}
	if narrative != nil {
		v.Narrative = *narrative
	}
	if score != nil {
		v.Score = *score
	}
	return v
}
