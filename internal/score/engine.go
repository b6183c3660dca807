// Package score computes the H-Score from the agreement between model responses.
// Every calculation is a pure function of the ResponseSet.
package score

import (
	"fmt"
	"math"

	"github.com/ppiankov/hllm/internal/model"
)

// Risk-language weights in the safety penalty
const (
	refusalPenalty       = 0.4
	hedgePenalty         = 0.3
	contradictionPenalty = 0.3

	// Hedge markers beyond this count per response add nothing
	hedgeSaturation = 3
)

// Pair is two slot indexes whose responses were compared
type Pair struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Evaluation is the H-Score plus the per-slot data it was derived from
type Evaluation struct {
	Score     model.HScore   `json:"h_score"`
	Signals   []model.Signal `json:"signals"`
	Succeeded []int          `json:"succeeded"`

	// Support is the mean similarity of each slot with the other successful slots.
	// Failed slots and a lone success have zero support.
	Support []float64 `json:"support"`

	Contradictions []Pair `json:"contradictions,omitempty"` // Pairs below the contradiction threshold
	Refusals       []int  `json:"refusals,omitempty"`       // Slots declining to answer
}

// Engine calculates H-Scores with a fixed configuration
type Engine struct {
	cfg         model.ScoringConfig
	weights     model.WeightsConfig
	reliability map[string]float64
}

// New creates an engine. reliability maps model names to prior weights;
// names missing from it weigh 1.
func New(cfg model.ScoringConfig, reliability map[string]float64) *Engine {
	w := cfg.Weights
	sum := w.Sum()
	if sum <= 0 {
		w = model.WeightsConfig{Safety: 1, Trust: 1, Confidence: 1, Quality: 1}
		sum = 4
	}
	w = model.WeightsConfig{
		Safety:     w.Safety / sum,
		Trust:      w.Trust / sum,
		Confidence: w.Confidence / sum,
		Quality:    w.Quality / sum,
	}

	rel := make(map[string]float64, len(reliability))
	for name, v := range reliability {
		rel[name] = v
	}

	return &Engine{cfg: cfg, weights: w, reliability: rel}
}

// NewFromConfig creates an engine using the enabled providers' weights as reliability priors
func NewFromConfig(cfg model.Config) *Engine {
	rel := make(map[string]float64)
	for _, p := range cfg.EnabledProviders() {
		rel[p.Name] = p.Weight
	}
	return New(cfg.Scoring, rel)
}

// Weights returns the normalized sub-score weights
func (e *Engine) Weights() model.WeightsConfig {
	return e.weights
}

// Score returns the H-Score of rs
func (e *Engine) Score(rs model.ResponseSet) model.HScore {
	return e.Evaluate(rs).Score
}

// Evaluate scores rs and returns the supporting signals
func (e *Engine) Evaluate(rs model.ResponseSet) Evaluation {
	succeeded := rs.Succeeded()
	eval := Evaluation{
		Succeeded: succeeded,
		Support:   make([]float64, rs.Len()),
	}

	quality, qualitySignal := e.calculateQuality(rs, succeeded)
	eval.Signals = append(eval.Signals, qualitySignal)

	if len(succeeded) == 0 {
		eval.Signals = append(eval.Signals, model.Signal{
			Type:        model.SignalNoResponses,
			Severity:    model.SeverityCritical,
			Description: fmt.Sprintf("All %d models failed; the result cannot be scored", rs.Len()),
			Data: map[string]any{
				"total": rs.Len(),
				"floor": e.cfg.Floor,
			},
		})
		floor := e.clamp(e.cfg.Floor)
		eval.Score = model.HScore{Final: floor, Safety: floor, Trust: floor, Confidence: floor, Quality: floor}
		return eval
	}

	terms, polarity := e.termSets(rs, succeeded)
	sims := pairwise(terms, polarity)

	confidence, confidenceSignal := e.calculateConfidence(sims, len(succeeded))
	eval.Signals = append(eval.Signals, confidenceSignal)

	if len(succeeded) >= 2 {
		for k, idx := range succeeded {
			eval.Support[idx] = mean(sims[k], k)
		}
	}

	trust, reliabilitySignal := e.calculateTrust(rs, succeeded, eval.Support, confidence)
	eval.Signals = append(eval.Signals, reliabilitySignal)

	safety, risk := e.calculateSafety(rs, succeeded, sims)
	eval.Signals = append(eval.Signals, risk.signals...)
	eval.Contradictions = risk.contradictions
	eval.Refusals = risk.refusals

	score := model.HScore{
		Safety:     e.round(safety),
		Trust:      e.round(trust),
		Confidence: e.round(confidence),
		Quality:    e.round(quality),
	}
	score.Final = e.round(e.weights.Safety*score.Safety +
		e.weights.Trust*score.Trust +
		e.weights.Confidence*score.Confidence +
		e.weights.Quality*score.Quality)

	eval.Score = score
	return eval
}

// calculateQuality scores the share of slots that produced text (0-10)
func (e *Engine) calculateQuality(rs model.ResponseSet, succeeded []int) (float64, model.Signal) {
	total := rs.Len()
	if total == 0 {
		return 0, model.Signal{
			Type:        model.SignalCoverage,
			Severity:    model.SeverityCritical,
			Description: "No models were queried",
			Data:        map[string]any{"total": 0},
		}
	}

	ratio := float64(len(succeeded)) / float64(total)
	severity := model.SeverityInfo
	if ratio < 0.5 {
		severity = model.SeverityCritical
	} else if ratio < 1 {
		severity = model.SeverityWarning
	}

	return ratio * 10, model.Signal{
		Type:        model.SignalCoverage,
		Severity:    severity,
		Description: fmt.Sprintf("%d/%d models responded", len(succeeded), total),
		Data: map[string]any{
			"succeeded": len(succeeded),
			"total":     total,
			"ratio":     ratio,
			"formula":   "succeeded / total * 10",
		},
	}
}

// calculateConfidence scores cross-model agreement (0-10)
func (e *Engine) calculateConfidence(sims [][]float64, n int) (float64, model.Signal) {
	if n < 2 {
		return e.cfg.LowConfidenceCap, model.Signal{
			Type:        model.SignalSingleSource,
			Severity:    model.SeverityWarning,
			Description: "Only one model responded; agreement cannot be assessed",
			Data: map[string]any{
				"succeeded": n,
				"cap":       e.cfg.LowConfidenceCap,
			},
		}
	}

	sum, pairs := 0.0, 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += sims[i][j]
			pairs++
		}
	}
	agreement := sum / float64(pairs)

	severity := model.SeverityInfo
	if agreement < 0.4 {
		severity = model.SeverityCritical
	} else if agreement < 0.6 {
		severity = model.SeverityWarning
	}

	return agreement * 10, model.Signal{
		Type:        model.SignalAgreement,
		Severity:    severity,
		Description: fmt.Sprintf("Mean pairwise agreement: %.2f across %d pairs", agreement, pairs),
		Data: map[string]any{
			"pairs":     pairs,
			"agreement": agreement,
			"formula":   "mean(0.5*jaccard + 0.5*overlap, x0.1 on polarity mismatch) * 10",
		},
	}
}

// calculateTrust blends confidence with reliability-weighted corroboration (0-10)
func (e *Engine) calculateTrust(rs model.ResponseSet, succeeded []int, support []float64, confidence float64) (float64, model.Signal) {
	var totalWeight, okWeight, supportSum float64
	ok := make([]bool, rs.Len())
	for _, idx := range succeeded {
		ok[idx] = true
	}
	for i, slot := range rs.Slots {
		w := e.reliabilityOf(slot.Model.Name)
		totalWeight += w
		if ok[i] {
			okWeight += w
			supportSum += w * support[i]
		}
	}

	coverage := float64(len(succeeded)) / float64(rs.Len())
	if totalWeight > 0 {
		coverage = okWeight / totalWeight
	}

	corroboration := 0.0
	if okWeight > 0 {
		corroboration = supportSum / okWeight
	} else {
		for _, idx := range succeeded {
			corroboration += support[idx]
		}
		corroboration /= float64(len(succeeded))
	}

	share := e.cfg.TrustConfidenceShare
	trust := 10 * (share*confidence/10 + (1-share)*coverage*corroboration)

	capped := false
	if len(succeeded) < 2 && trust > e.cfg.LowConfidenceCap {
		trust = e.cfg.LowConfidenceCap
		capped = true
	}

	severity := model.SeverityInfo
	if capped || coverage < 0.5 {
		severity = model.SeverityWarning
	}

	return trust, model.Signal{
		Type:        model.SignalReliability,
		Severity:    severity,
		Description: fmt.Sprintf("Reliability-weighted coverage %.2f, corroboration %.2f", coverage, corroboration),
		Data: map[string]any{
			"coverage":      coverage,
			"corroboration": corroboration,
			"share":         share,
			"capped":        capped,
			"formula":       "10 * (share * confidence/10 + (1-share) * coverage * corroboration)",
		},
	}
}

type riskFindings struct {
	signals        []model.Signal
	contradictions []Pair
	refusals       []int
}

// calculateSafety penalizes refusal, hedging and contradiction (0-10)
func (e *Engine) calculateSafety(rs model.ResponseSet, succeeded []int, sims [][]float64) (float64, riskFindings) {
	var found riskFindings
	n := len(succeeded)

	hedgeSum := 0.0
	hedged := 0
	for _, idx := range succeeded {
		text := normalize(rs.Slots[idx].Text())
		if countMarkers(text, refusalMarkers) > 0 {
			found.refusals = append(found.refusals, idx)
		}
		if h := countMarkers(text, hedgeMarkers); h > 0 {
			hedged++
			hedgeSum += float64(min(h, hedgeSaturation)) / hedgeSaturation
		}
	}

	pairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs++
			if sims[i][j] < e.cfg.ContradictionThreshold {
				found.contradictions = append(found.contradictions, Pair{A: succeeded[i], B: succeeded[j]})
			}
		}
	}

	refusalRate := float64(len(found.refusals)) / float64(n)
	hedgeRate := hedgeSum / float64(n)
	contradictionRate := 0.0
	if pairs > 0 {
		contradictionRate = float64(len(found.contradictions)) / float64(pairs)
	}

	penalty := clamp01(refusalPenalty*refusalRate + hedgePenalty*hedgeRate + contradictionPenalty*contradictionRate)

	if len(found.refusals) > 0 {
		found.signals = append(found.signals, model.Signal{
			Type:        model.SignalRefusal,
			Severity:    severityFor(refusalRate),
			Description: fmt.Sprintf("%d/%d responses declined to answer", len(found.refusals), n),
			Data: map[string]any{
				"models": names(rs, found.refusals),
				"rate":   refusalRate,
			},
		})
	}
	if hedged > 0 {
		found.signals = append(found.signals, model.Signal{
			Type:        model.SignalHedging,
			Severity:    severityFor(hedgeRate),
			Description: fmt.Sprintf("%d/%d responses contain hedging language", hedged, n),
			Data: map[string]any{
				"rate":       hedgeRate,
				"saturation": hedgeSaturation,
			},
		})
	}
	if len(found.contradictions) > 0 {
		found.signals = append(found.signals, model.Signal{
			Type:        model.SignalContradiction,
			Severity:    severityFor(contradictionRate),
			Description: fmt.Sprintf("%d/%d response pairs diverge", len(found.contradictions), pairs),
			Data: map[string]any{
				"pairs":     len(found.contradictions),
				"compared":  pairs,
				"rate":      contradictionRate,
				"threshold": e.cfg.ContradictionThreshold,
			},
		})
	}

	return 10 * (1 - penalty), found
}

// termSets returns the content terms and negation polarity of each successful slot
func (e *Engine) termSets(rs model.ResponseSet, succeeded []int) ([][]string, []bool) {
	exclude := queryTerms(rs.Query)
	terms := make([][]string, len(succeeded))
	polarity := make([]bool, len(succeeded))
	for k, idx := range succeeded {
		text := rs.Slots[idx].Text()
		terms[k] = contentTerms(text, exclude)
		polarity[k] = negated(text)
	}
	return terms, polarity
}

func (e *Engine) reliabilityOf(name string) float64 {
	if w, ok := e.reliability[name]; ok && w >= 0 {
		return w
	}
	return 1
}

// round clamps v to [floor, 10] and rounds to one decimal
func (e *Engine) round(v float64) float64 {
	return model.Round1(e.clamp(v))
}

func (e *Engine) clamp(v float64) float64 {
	lo := e.cfg.Floor
	if lo < 0 || lo > e.cfg.LowConfidenceCap {
		lo = 0
	}
	switch {
	case math.IsNaN(v), v < lo:
		return lo
	case v > 10:
		return 10
	}
	return v
}

// polarityMismatch scales the similarity of a negated and an affirmative response
const polarityMismatch = 0.1

// pairwise returns the symmetric similarity matrix of the term sets.
// Pairs of opposite polarity are discounted by polarityMismatch.
func pairwise(terms [][]string, negated []bool) [][]float64 {
	n := len(terms)
	sims := make([][]float64, n)
	for i := range sims {
		sims[i] = make([]float64, n)
		sims[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := similarity(terms[i], terms[j])
			if negated[i] != negated[j] {
				s *= polarityMismatch
			}
			sims[i][j] = s
			sims[j][i] = s
		}
	}
	return sims
}

// mean averages row excluding the diagonal entry at skip
func mean(row []float64, skip int) float64 {
	if len(row) < 2 {
		return 0
	}
	sum := 0.0
	for j, v := range row {
		if j != skip {
			sum += v
		}
	}
	return sum / float64(len(row)-1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func severityFor(rate float64) model.SignalSeverity {
	switch {
	case rate >= 0.5:
		return model.SeverityCritical
	case rate > 0:
		return model.SeverityWarning
	}
	return model.SeverityInfo
}

func names(rs model.ResponseSet, idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = rs.Slots[i].Model.Name
	}
	return out
}
