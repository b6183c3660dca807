package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/ppiankov/hllm/internal/model"
)

// Format selects how a QueryResult is written
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// ParseFormat validates a --format value. "" and "auto" return "".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown format %q (supported: json, markdown, text)", s)
}

// DefaultFormat returns text on a terminal and json otherwise
func DefaultFormat(fd uintptr) Format {
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return FormatText
	}
	return FormatJSON
}

// Render writes result in the given format
func Render(w io.Writer, result *model.QueryResult, f Format) error {
	switch f {
	case FormatMarkdown:
		return RenderMarkdown(w, result)
	case FormatText:
		return RenderText(w, result)
	default:
		return RenderJSON(w, result)
	}
}

// RenderJSON writes the result as indented JSON
func RenderJSON(w io.Writer, result *model.QueryResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// RenderMarkdown writes a markdown report of the result
func RenderMarkdown(w io.Writer, result *model.QueryResult) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# H-LLM Result\n\n")
	fmt.Fprintf(&b, "**Query:** %s\n\n", result.Query)
	fmt.Fprintf(&b, "**H-Score:** %.1f/10 (%.1f/100)\n\n", result.HScore.Final, result.HScoreDisplay)

	b.WriteString("| Safety | Trust | Confidence | Quality |\n")
	b.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %.1f | %.1f | %.1f | %.1f |\n\n",
		result.HScore.Safety, result.HScore.Trust, result.HScore.Confidence, result.HScore.Quality)

	fmt.Fprintf(&b, "Models: %d/%d responded in %dms", result.Stats.Succeeded, result.Stats.Total, result.Stats.ElapsedMS)
	if result.Cached {
		b.WriteString(" (cached)")
	}
	b.WriteString("\n\n")

	if hasTeams(result.TeamAnalysis) {
		b.WriteString("## Team Analysis\n\n")
		writeVerdictMD(&b, "Red Team", result.TeamAnalysis.RedTeam)
		writeVerdictMD(&b, "Blue Team", result.TeamAnalysis.BlueTeam)
		writeVerdictMD(&b, "Purple Team", result.TeamAnalysis.PurpleTeam)
	}

	b.WriteString("## Responses\n\n")
	for _, r := range result.Responses {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", r.Model, r.Response)
	}

	if v := result.Verification; v != nil {
		b.WriteString("## Verification\n\n")
		fmt.Fprintf(&b, "**Truth score:** %.2f (%s)\n\n%s\n\n", v.TruthScore, v.Level, v.Summary)
		for _, s := range v.Sources {
			fmt.Fprintf(&b, "- %s (%s)\n", s.URL, s.Authority)
		}
		if len(v.Sources) > 0 {
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeVerdictMD(b *strings.Builder, title string, v *model.Verdict) {
	if v == nil {
		return
	}
	fmt.Fprintf(b, "### %s (%.2f/10)\n\n%s\n\n", title, v.Score, v.Narrative)
}

func hasTeams(t model.TeamAnalysis) bool {
	return t.RedTeam != nil || t.BlueTeam != nil || t.PurpleTeam != nil
}

var (
	colorGood = lipgloss.Color("#2CD7C7")
	colorWarn = lipgloss.Color("#F4D03F")
	colorBad  = lipgloss.Color("#E74C3C")
	colorMute = lipgloss.Color("#5C7A84")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4"))
	boldStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMute)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#16858E")).
			Padding(0, 1)

	teamStyles = map[string]lipgloss.Style{
		"Red Team":    lipgloss.NewStyle().Bold(true).Foreground(colorBad),
		"Blue Team":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3498DB")),
		"Purple Team": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#9B59B6")),
	}
)

// scoreStyle colors a 0-10 score by band
func scoreStyle(v float64) lipgloss.Style {
	switch {
	case v >= 8:
		return lipgloss.NewStyle().Bold(true).Foreground(colorGood)
	case v >= 5:
		return lipgloss.NewStyle().Bold(true).Foreground(colorWarn)
	}
	return lipgloss.NewStyle().Bold(true).Foreground(colorBad)
}

// RenderText writes a styled terminal summary of the result
func RenderText(w io.Writer, result *model.QueryResult) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render("H-LLM") + "  " + result.Query + "\n\n")

	hs := result.HScore
	header := fmt.Sprintf("H-Score %s  %s",
		scoreStyle(hs.Final).Render(fmt.Sprintf("%.1f/10", hs.Final)),
		mutedStyle.Render(fmt.Sprintf("(%.1f/100)", result.HScoreDisplay)))
	subs := fmt.Sprintf("safety %s  trust %s  confidence %s  quality %s",
		scoreStyle(hs.Safety).Render(fmt.Sprintf("%.1f", hs.Safety)),
		scoreStyle(hs.Trust).Render(fmt.Sprintf("%.1f", hs.Trust)),
		scoreStyle(hs.Confidence).Render(fmt.Sprintf("%.1f", hs.Confidence)),
		scoreStyle(hs.Quality).Render(fmt.Sprintf("%.1f", hs.Quality)))
	stats := mutedStyle.Render(fmt.Sprintf("%d/%d models responded in %dms", result.Stats.Succeeded, result.Stats.Total, result.Stats.ElapsedMS))
	if result.Cached {
		stats += mutedStyle.Render(" (cached)")
	}
	b.WriteString(boxStyle.Render(header+"\n"+subs+"\n"+stats) + "\n\n")

	for _, tv := range []struct {
		title string
		v     *model.Verdict
	}{
		{"Red Team", result.TeamAnalysis.RedTeam},
		{"Blue Team", result.TeamAnalysis.BlueTeam},
		{"Purple Team", result.TeamAnalysis.PurpleTeam},
	} {
		if tv.v == nil {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n%s\n\n",
			teamStyles[tv.title].Render(tv.title),
			mutedStyle.Render(fmt.Sprintf("%.2f/10", tv.v.Score)),
			tv.v.Narrative)
	}

	for _, r := range result.Responses {
		b.WriteString(boldStyle.Render(r.Model) + "\n" + r.Response + "\n\n")
	}

	if v := result.Verification; v != nil {
		fmt.Fprintf(&b, "%s %s\n%s\n",
			boldStyle.Render("Verification"),
			scoreStyle(v.TruthScore*10).Render(fmt.Sprintf("%.2f (%s)", v.TruthScore, v.Level)),
			v.Summary)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
