package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestModelResponse_View(t *testing.T) {
	id := ModelIdentity{Name: "OpenAI", Provider: ProviderOpenAI, Model: "gpt-4o"}

	ok := ModelResponse{
		Model: id,
		Success: &Success{
			Text:     "Paris",
			Latency:  120 * time.Millisecond,
			Metadata: map[string]any{"total_tokens": 12},
		},
		Timestamp: time.Unix(0, 0),
	}

	view := ok.View(false)
	if view.Model != "OpenAI" || view.Response != "Paris" {
		t.Errorf("Unexpected view: %+v", view)
	}
	if view.Metadata != nil {
		t.Error("Expected metadata to be redacted")
	}

	view = ok.View(true)
	if view.Metadata["latency_ms"] != int64(120) {
		t.Errorf("Expected latency_ms 120, got %v", view.Metadata["latency_ms"])
	}
	if view.Metadata["total_tokens"] != 12 {
		t.Errorf("Expected provider metadata to be carried, got %v", view.Metadata)
	}

	failed := ModelResponse{
		Model:   id,
		Failure: &Failure{Kind: KindTimeout, Message: "deadline exceeded"},
	}
	view = failed.View(true)
	if view.Response != "[OpenAI error: timeout: deadline exceeded]" {
		t.Errorf("Unexpected failure rendering: %q", view.Response)
	}
	if view.Metadata["error_kind"] != "timeout" {
		t.Errorf("Expected error_kind timeout, got %v", view.Metadata["error_kind"])
	}
}

func TestResponseSet_Succeeded(t *testing.T) {
	set := ResponseSet{Slots: []ModelResponse{
		{Success: &Success{Text: "a"}},
		{Failure: &Failure{Kind: KindUnavailable}},
		{Success: &Success{Text: ""}},
		{Success: &Success{Text: "b"}},
	}}

	got := set.Succeeded()
	if len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Errorf("Expected [0 3], got %v", got)
	}
	if set.Failed() != 2 {
		t.Errorf("Expected 2 failed slots, got %d", set.Failed())
	}
}

func TestTeamAnalysis_JSONOmitsDisabled(t *testing.T) {
	ta := TeamAnalysis{
		RedTeam:    &Verdict{Narrative: "risky", Score: 7},
		PurpleTeam: &Verdict{Narrative: "", Score: 5},
	}

	data, err := json.Marshal(ta)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)

	if strings.Contains(s, "blue_team") {
		t.Errorf("Disabled blue team should be omitted: %s", s)
	}
	if !strings.Contains(s, `"purple_team":""`) {
		t.Errorf("Computed-but-empty narrative should be kept: %s", s)
	}
	if !strings.Contains(s, `"red_team_score":7`) {
		t.Errorf("Expected red team score: %s", s)
	}

	var back TeamAnalysis
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.BlueTeam != nil || back.RedTeam == nil || back.RedTeam.Score != 7 {
		t.Errorf("Unexpected decoded analysis: %+v", back)
	}
}

func TestHScore_Display(t *testing.T) {
	h := HScore{Final: 7.46}
	if got := h.Display(); got != 74.6 {
		t.Errorf("Expected 74.6, got %v", got)
	}
}
