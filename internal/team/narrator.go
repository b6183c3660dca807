package team

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/hllm/internal/llm"
)

// TemplateNarrator words verdicts deterministically from the facts
type TemplateNarrator struct{}

func (TemplateNarrator) Narrate(_ context.Context, p Perspective, f Facts) (string, error) {
	switch p {
	case Red:
		return redNarrative(f), nil
	case Blue:
		return blueNarrative(f), nil
	case Purple:
		return purpleNarrative(f), nil
	}
	return "", fmt.Errorf("unknown perspective %q", p)
}

func redNarrative(f Facts) string {
	var b strings.Builder
	switch {
	case f.Succeeded == 0:
		fmt.Fprintf(&b, "All %d models failed to respond, so no answer can be checked for hallucination.", f.Total)
	case f.Succeeded == 1:
		fmt.Fprintf(&b, "Only %s responded; its answer is uncorroborated and could be a hallucination.", f.Weakest[0])
	case f.Contradictions > 0:
		fmt.Fprintf(&b, "%d of %d response pairs contradict each other; %s diverges most from the rest.",
			f.Contradictions, f.Pairs, joinNames(f.Weakest))
	default:
		fmt.Fprintf(&b, "Responses largely agree; the weakest corroboration comes from %s.", joinNames(f.Weakest))
	}
	if len(f.Refusals) > 0 {
		fmt.Fprintf(&b, " %s declined to answer.", joinNames(f.Refusals))
	} else if f.Hedging && f.Succeeded > 0 {
		b.WriteString(" Some responses hedge their claims.")
	}
	fmt.Fprintf(&b, " Risk %.1f/10.", f.RedScore)
	return b.String()
}

func blueNarrative(f Facts) string {
	switch f.Succeeded {
	case 0:
		return fmt.Sprintf("Insufficient corroborating data: no model produced an answer. Trust %.1f/10.", f.BlueScore)
	case 1:
		return fmt.Sprintf("Insufficient corroborating data: only %s answered. Trust %.1f/10.", f.Strongest[0], f.BlueScore)
	}
	return fmt.Sprintf("%s best represent%s the majority answer across %d of %d responding models. Trust %.1f/10.",
		joinNames(f.Strongest), verbSuffix(f.Strongest), f.Succeeded, f.Total, f.BlueScore)
}

func purpleNarrative(f Facts) string {
	s := fmt.Sprintf("Weighing red team risk %.1f/10 against blue team trust %.1f/10 gives %.2f/10; overall confidence is %s (H-Score %.1f/10).",
		f.RedScore, f.BlueScore, f.PurpleScore, f.Level(), f.Score.Final)
	if f.Succeeded < 2 {
		s += " Treat the answer as unverified."
	} else if f.Contradictions > 0 {
		s += " Verify the disputed details before relying on them."
	}
	return s
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return "no model"
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

func verbSuffix(names []string) string {
	if len(names) == 1 {
		return "s"
	}
	return ""
}

// LLMNarrator asks a model to reword the template narrative.
// The rewording is rejected when it drops the sub-score, so prose never
// disagrees with the numbers.
type LLMNarrator struct {
	Adapter llm.Adapter
	Timeout time.Duration
}

const rewritePrompt = `You are a %s team analyst reviewing answers from several AI models to the question:
%q

Rewrite the assessment below in at most two sentences for a non-technical reader.
Keep every number exactly as written and do not add facts.

Assessment: %s`

var teamRoles = map[Perspective]string{
	Red:    "red (adversarial)",
	Blue:   "blue (defensive)",
	Purple: "purple (synthesis)",
}

func (n LLMNarrator) Narrate(ctx context.Context, p Perspective, f Facts) (string, error) {
	base, err := TemplateNarrator{}.Narrate(ctx, p, f)
	if err != nil {
		return "", err
	}
	if n.Adapter == nil {
		return base, nil
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	resp, err := n.Adapter.Invoke(ctx, fmt.Sprintf(rewritePrompt, teamRoles[p], f.Query, base), timeout)
	if err != nil {
		return "", fmt.Errorf("%s narrator: %w", p, err)
	}

	text := strings.TrimSpace(resp.Text)
	if !strings.Contains(text, scoreToken(p, f)) {
		return "", fmt.Errorf("%s narrator: rewrite dropped score %s", p, scoreToken(p, f))
	}
	return text, nil
}

// scoreToken is the sub-score as it appears in the template narrative
func scoreToken(p Perspective, f Facts) string {
	switch p {
	case Red:
		return fmt.Sprintf("%.1f/10", f.RedScore)
	case Blue:
		return fmt.Sprintf("%.1f/10", f.BlueScore)
	}
	return fmt.Sprintf("%.2f/10", f.PurpleScore)
}
