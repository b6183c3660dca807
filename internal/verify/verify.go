// Package verify produces the informational truth-verification report.
// It reads the same ResponseSet as the H-Score but never feeds it.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/ppiankov/hllm/internal/extract"
	"github.com/ppiankov/hllm/internal/model"
	"github.com/ppiankov/hllm/internal/score"
	"github.com/ppiankov/hllm/internal/validate"
)

// Truth score component weights
const (
	crossReferenceWeight = 0.4
	temporalWeight       = 0.3
	sourceWeight         = 0.2
	consistencyWeight    = 0.1
)

// Neutral component values used when there is nothing to measure
const (
	neutralCrossReference = 0.5
	neutralTemporal       = 0.7
	neutralSource         = 0.7
	neutralConsistency    = 0.7
)

var recentYear = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Verifier builds Verification reports
type Verifier struct {
	claims    *extract.ClaimExtractor
	sources   *extract.SourceExtractor
	validator *validate.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a verifier. A nil logger uses slog.Default().
func New(validator *validate.Validator, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		claims:    extract.NewClaimExtractor(extract.DefaultMaxClaims),
		sources:   extract.NewSourceExtractor(extract.DefaultMaxSourcesPerResponse),
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// Verify extracts claims and cited sources from rs and scores how well-founded the answers look
func (v *Verifier) Verify(ctx context.Context, rs model.ResponseSet, eval score.Evaluation) model.Verification {
	report := model.Verification{
		Claims:  v.claims.ExtractAll(rs),
		Sources: v.sources.ExtractAll(rs),
	}
	if v.validator != nil {
		report.Sources = v.validator.Validate(ctx, report.Sources)
	}
	if report.Claims == nil {
		report.Claims = []model.Claim{}
	}
	if report.Sources == nil {
		report.Sources = []model.Source{}
	}

	n := len(eval.Succeeded)
	report.CrossReference = neutralCrossReference
	report.Consistency = neutralConsistency
	if n >= 2 {
		report.CrossReference = eval.Score.Confidence / 10
		pairs := n * (n - 1) / 2
		report.Consistency = 1 - float64(len(eval.Contradictions))/float64(pairs)
	}
	if n == 0 {
		report.CrossReference = 0
	}

	report.Temporal = v.temporal(rs)
	report.SourceQuality = sourceQuality(report.Sources)

	report.TruthScore = round2(crossReferenceWeight*report.CrossReference +
		temporalWeight*report.Temporal +
		sourceWeight*report.SourceQuality +
		consistencyWeight*report.Consistency)
	report.Level = Level(report.TruthScore)
	report.Summary = summary(report)

	v.logger.Debug("verification complete",
		"truth_score", report.TruthScore,
		"claims", len(report.Claims),
		"sources", len(report.Sources),
	)
	return report
}

// temporal scores the most recent year any response mentions:
// within 2 years 0.9, within 5 years 0.7, older 0.4, none 0.7
func (v *Verifier) temporal(rs model.ResponseSet) float64 {
	latest := 0
	for _, idx := range rs.Succeeded() {
		for _, m := range recentYear.FindAllString(rs.Slots[idx].Text(), -1) {
			year, err := strconv.Atoi(m)
			if err == nil && year > latest {
				latest = year
			}
		}
	}
	if latest == 0 {
		return neutralTemporal
	}

	current := v.now().Year()
	switch {
	case latest >= current-2:
		return 0.9
	case latest >= current-5:
		return 0.7
	}
	return 0.4
}

// sourceQuality blends the share of reachable citations (0.6) with the share of reliable ones (0.4).
// Unchecked and robots-blocked citations count as reachable.
func sourceQuality(sources []model.Source) float64 {
	if len(sources) == 0 {
		return neutralSource
	}

	reachable, reliable := 0, 0
	for _, s := range sources {
		if s.Check == nil || s.Check.IsAccessible || s.Check.Blocked {
			reachable++
		}
		if s.Authority.Reliable() {
			reliable++
		}
	}

	total := float64(len(sources))
	return float64(reachable)/total*0.6 + float64(reliable)/total*0.4
}

// Level names the band of a truth score
func Level(score float64) string {
	switch {
	case score >= 0.8:
		return "high"
	case score >= 0.6:
		return "medium"
	case score >= 0.4:
		return "low"
	}
	return "very_low"
}

func summary(r model.Verification) string {
	var s string
	switch r.Level {
	case "high":
		s = "High accuracy: the answers agree and are well supported."
	case "medium":
		s = "Moderate accuracy: some information is corroborated, but exercise caution."
	case "low":
		s = "Low accuracy: limited corroboration found; independent research recommended."
	default:
		s = "Questionable accuracy: significant concerns about reliability."
	}

	reliable := 0
	for _, src := range r.Sources {
		if src.Authority.Reliable() {
			reliable++
		}
	}
	if reliable > 0 {
		s += fmt.Sprintf(" (%d reliable sources cited)", reliable)
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
