package model

import "time"

// QueryRequest is one inbound query and its feature flags.
// It is built once per call and never mutated afterwards.
type QueryRequest struct {
	Query string `json:"query" yaml:"query"`

	EnableRAG               bool `json:"enable_rag" yaml:"enable_rag"` // Accepted for compatibility; retrieval is not performed
	EnableRedTeam           bool `json:"enable_red_team" yaml:"enable_red_team"`
	EnableBlueTeam          bool `json:"enable_blue_team" yaml:"enable_blue_team"`
	EnablePurpleTeam        bool `json:"enable_purple_team" yaml:"enable_purple_team"`
	EnableTruthVerification bool `json:"enable_truth_verification" yaml:"enable_truth_verification"`
	ShowMetadata            bool `json:"show_metadata" yaml:"show_metadata"`

	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"` // Per-adapter timeout override (0 = configured default)
	ConversationID string        `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	NoCache        bool          `json:"no_cache,omitempty" yaml:"no_cache,omitempty"` // Bypass the result cache for this call
}

// NewQueryRequest returns a request with all team perspectives enabled
func NewQueryRequest(query string) QueryRequest {
	return QueryRequest{
		Query:            query,
		EnableRedTeam:    true,
		EnableBlueTeam:   true,
		EnablePurpleTeam: true,
	}
}

// TeamFlags selects which team perspectives to include in the result
type TeamFlags struct {
	Red    bool
	Blue   bool
	Purple bool
}

// Teams returns the team selection carried by the request
func (r QueryRequest) Teams() TeamFlags {
	return TeamFlags{
		Red:    r.EnableRedTeam,
		Blue:   r.EnableBlueTeam,
		Purple: r.EnablePurpleTeam,
	}
}
