// Package team derives red, blue and purple team verdicts from a scored ResponseSet.
package team

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/ppiankov/hllm/internal/model"
	"github.com/ppiankov/hllm/internal/score"
)

// Perspective identifies one team
type Perspective string

const (
	Red    Perspective = "red"
	Blue   Perspective = "blue"
	Purple Perspective = "purple"
)

// Cited models per verdict
const maxCites = 3

// Facts is everything a narrator may state about a ResponseSet.
// Sub-scores are fixed before narration; narrators only choose wording.
type Facts struct {
	Query     string
	Total     int
	Succeeded int
	Score     model.HScore

	RedScore    float64
	BlueScore   float64
	PurpleScore float64

	Weakest        []string // Least corroborated responses, most divergent first
	Strongest      []string // Most representative of the majority answer
	Contradictions int      // Response pairs below the contradiction threshold
	Pairs          int      // Response pairs compared
	Refusals       []string
	Hedging        bool
}

// Level names the confidence band of the final H-Score
func (f Facts) Level() string {
	switch {
	case f.Score.Final >= 8:
		return "high"
	case f.Score.Final >= 6:
		return "medium"
	case f.Score.Final >= 4:
		return "low"
	}
	return "very low"
}

// Narrator words a verdict for one perspective
type Narrator interface {
	Narrate(ctx context.Context, p Perspective, f Facts) (string, error)
}

// Engine produces TeamAnalysis values
type Engine struct {
	scorer   *score.Engine
	narrator Narrator
	logger   *slog.Logger
}

// New creates an engine. A nil narrator uses templates; a nil logger uses slog.Default().
func New(scorer *score.Engine, narrator Narrator, logger *slog.Logger) *Engine {
	if narrator == nil {
		narrator = TemplateNarrator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{scorer: scorer, narrator: narrator, logger: logger}
}

// Analyze evaluates rs and returns the requested perspectives, using hs for the sub-scores
func (e *Engine) Analyze(ctx context.Context, rs model.ResponseSet, hs model.HScore, flags model.TeamFlags) model.TeamAnalysis {
	eval := e.scorer.Evaluate(rs)
	eval.Score = hs
	return e.AnalyzeEvaluation(ctx, rs, eval, flags)
}

// AnalyzeEvaluation returns the requested perspectives from an existing evaluation.
// Disabled perspectives are nil. It never fails; sparse input yields an
// "insufficient data" narrative.
func (e *Engine) AnalyzeEvaluation(ctx context.Context, rs model.ResponseSet, eval score.Evaluation, flags model.TeamFlags) model.TeamAnalysis {
	facts := Derive(rs, eval)

	var ta model.TeamAnalysis
	if flags.Red {
		ta.RedTeam = &model.Verdict{
			Narrative: e.narrate(ctx, Red, facts),
			Score:     facts.RedScore,
			Cites:     facts.Weakest,
		}
	}
	if flags.Blue {
		ta.BlueTeam = &model.Verdict{
			Narrative: e.narrate(ctx, Blue, facts),
			Score:     facts.BlueScore,
			Cites:     facts.Strongest,
		}
	}
	if flags.Purple {
		ta.PurpleTeam = &model.Verdict{
			Narrative: e.narrate(ctx, Purple, facts),
			Score:     facts.PurpleScore,
		}
	}
	return ta
}

func (e *Engine) narrate(ctx context.Context, p Perspective, f Facts) string {
	text, err := e.narrator.Narrate(ctx, p, f)
	if err != nil || text == "" {
		if err != nil {
			e.logger.Warn("narrator failed, using template", "team", p, "error", err)
		}
		text, _ = TemplateNarrator{}.Narrate(ctx, p, f)
	}
	return text
}

// Derive computes the team sub-scores and citations.
// red = 10 - confidence, blue = trust, purple = mean(red, blue).
func Derive(rs model.ResponseSet, eval score.Evaluation) Facts {
	hs := eval.Score
	red := model.Round1(math.Max(0, 10-hs.Confidence))
	blue := hs.Trust

	f := Facts{
		Query:          rs.Query,
		Total:          rs.Len(),
		Succeeded:      len(eval.Succeeded),
		Score:          hs,
		RedScore:       red,
		BlueScore:      blue,
		PurpleScore:    (red + blue) / 2,
		Contradictions: len(eval.Contradictions),
		Pairs:          len(eval.Succeeded) * (len(eval.Succeeded) - 1) / 2,
	}

	for _, idx := range eval.Refusals {
		f.Refusals = append(f.Refusals, rs.Slots[idx].Model.Name)
	}
	for _, s := range eval.Signals {
		if s.Type == model.SignalHedging {
			f.Hedging = true
		}
	}

	if len(eval.Succeeded) == 0 {
		return f
	}

	weakest := rank(eval, func(a, b float64) bool { return a < b })
	f.Weakest = citeBand(rs, eval, weakest, func(s, edge float64) bool { return s <= edge+0.05 })

	strongest := rank(eval, func(a, b float64) bool { return a > b })
	f.Strongest = citeBand(rs, eval, strongest, func(s, edge float64) bool { return s >= edge-0.05 })

	return f
}

// rank orders the successful slots by support; ties keep slot order
func rank(eval score.Evaluation, before func(a, b float64) bool) []int {
	ranked := make([]int, len(eval.Succeeded))
	copy(ranked, eval.Succeeded)
	sort.SliceStable(ranked, func(i, j int) bool {
		return before(supportAt(eval, ranked[i]), supportAt(eval, ranked[j]))
	})
	return ranked
}

// citeBand names up to maxCites slots from ranked whose support stays within
// the band of the first one
func citeBand(rs model.ResponseSet, eval score.Evaluation, ranked []int, within func(s, edge float64) bool) []string {
	edge := supportAt(eval, ranked[0])
	var names []string
	for _, idx := range ranked {
		if len(names) == maxCites || !within(supportAt(eval, idx), edge) {
			break
		}
		names = append(names, rs.Slots[idx].Model.Name)
	}
	return names
}

func supportAt(eval score.Evaluation, idx int) float64 {
	if idx < len(eval.Support) {
		return eval.Support[idx]
	}
	return 0
}
