package model

import (
	"fmt"
	"time"
)

// QueryResult is the composite answer for one query
type QueryResult struct {
	ID             string         `json:"id"`
	Query          string         `json:"query"`
	ConversationID string         `json:"conversation_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Responses      []ResponseView `json:"responses"`
	HScore         HScore         `json:"h_score"`
	HScoreDisplay  float64        `json:"h_score_display"` // HScore.Final on a 0-100 scale
	TeamAnalysis   TeamAnalysis   `json:"team_analysis"`
	Verification   *Verification  `json:"verification,omitempty"`
	Signals        []Signal       `json:"signals,omitempty"` // Scoring breakdown, only with show_metadata
	Stats          Stats          `json:"stats"`
	Cached         bool           `json:"cached,omitempty"`
}

// ResponseView is the external shape of one ResponseSet slot
type ResponseView struct {
	Model    string         `json:"model"`
	Response string         `json:"response"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stats summarizes the dispatch that produced a result
type Stats struct {
	Total     int   `json:"total"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

// View converts a slot to its external shape. Metadata is attached only when requested.
func (r ModelResponse) View(showMetadata bool) ResponseView {
	view := ResponseView{Model: r.Model.Name}

	switch {
	case r.Success != nil && r.Success.Text != "":
		view.Response = r.Success.Text
	case r.Failure != nil:
		view.Response = fmt.Sprintf("[%s error: %s: %s]", r.Model.Name, r.Failure.Kind, r.Failure.Message)
	default:
		view.Response = fmt.Sprintf("[%s error: %s: empty response]", r.Model.Name, KindMalformed)
	}

	if !showMetadata {
		return view
	}

	meta := map[string]any{
		"provider":   string(r.Model.Provider),
		"model_id":   r.Model.Model,
		"latency_ms": r.Latency().Milliseconds(),
		"timestamp":  r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if r.Success != nil {
		meta["status"] = "ok"
		for k, v := range r.Success.Metadata {
			meta[k] = v
		}
	}
	if r.Failure != nil {
		meta["status"] = "failed"
		meta["error_kind"] = string(r.Failure.Kind)
	}
	view.Metadata = meta

	return view
}

// Views converts every slot of the set, preserving slot order
func (s ResponseSet) Views(showMetadata bool) []ResponseView {
	views := make([]ResponseView, len(s.Slots))
	for i, r := range s.Slots {
		views[i] = r.View(showMetadata)
	}
	return views
}
