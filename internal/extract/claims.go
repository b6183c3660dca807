package extract

import (
	"regexp"
	"strings"

	"github.com/ppiankov/hllm/internal/model"
	"golang.org/x/net/html"
)

// DefaultMaxClaims caps how many claims are collected per query
const DefaultMaxClaims = 10

// Sentences outside this length range are not considered claims
const (
	minSentenceLen = 21
	maxSentenceLen = 500
)

type claimPattern struct {
	kind model.ClaimType
	re   *regexp.Regexp
}

// ClaimExtractor extracts factual claims from model responses
type ClaimExtractor struct {
	patterns []claimPattern
	max      int
}

// NewClaimExtractor creates a new claim extractor.
// max <= 0 uses DefaultMaxClaims.
func NewClaimExtractor(max int) *ClaimExtractor {
	if max <= 0 {
		max = DefaultMaxClaims
	}
	return &ClaimExtractor{
		max: max,
		// Order matters: the first matching pattern names the claim type
		patterns: []claimPattern{
			{model.ClaimTypeAttribution, regexp.MustCompile(`(?i)\baccording to [^,.]+`)},
			{model.ClaimTypeResearch, regexp.MustCompile(`(?i)\b(studies show|research (indicates|shows|suggests)|data suggests)\b`)},
			{model.ClaimTypePercentage, regexp.MustCompile(`\d+(\.\d+)?\s?%`)},
			{model.ClaimTypeMoney, regexp.MustCompile(`(?i)\$\d[\d,]*(\.\d+)?(\s?(million|billion|trillion))?`)},
			{model.ClaimTypeMeasurement, regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s?(km|miles|meters|metres|feet|kg|pounds|tons|tonnes)\b`)},
			{model.ClaimTypeTemporal, regexp.MustCompile(`(?i)\b(in|on|during|since|by)\s+\d{4}\b`)},
			{model.ClaimTypeYear, regexp.MustCompile(`\b\d{4}\b`)},
		},
	}
}

// Extract extracts claims from one response
func (e *ClaimExtractor) Extract(modelName, text string) []model.Claim {
	var claims []model.Claim
	for i, sentence := range splitSentences(visibleText(text)) {
		for _, p := range e.patterns {
			if p.re.MatchString(sentence) {
				claims = append(claims, model.Claim{
					Text:      sentence,
					Model:     modelName,
					Type:      p.kind,
					Heuristic: "pattern:" + string(p.kind),
					Sentence:  i,
				})
				break // Only match once per sentence
			}
		}
	}
	return dedupeClaims(claims)
}

// ExtractAll extracts claims from every successful slot, in slot order, up to the cap
func (e *ClaimExtractor) ExtractAll(rs model.ResponseSet) []model.Claim {
	var all []model.Claim
	for _, idx := range rs.Succeeded() {
		slot := rs.Slots[idx]
		all = append(all, e.Extract(slot.Model.Name, slot.Text())...)
	}

	all = dedupeClaims(all)
	if len(all) > e.max {
		all = all[:e.max]
	}
	return all
}

// visibleText drops markup when a response contains HTML, skipping scripts/styles
func visibleText(text string) string {
	if !strings.Contains(text, "<") || !strings.Contains(text, ">") {
		return text
	}

	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return text
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				buf.WriteString(t)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return buf.String()
}

// splitSentences splits text into sentences (simple heuristic).
// A terminator only ends a sentence when followed by whitespace, so "3.5%" stays intact.
func splitSentences(text string) []string {
	text = strings.NewReplacer("\r\n", " ", "\n", " ").Replace(text)

	var sentences []string
	var current strings.Builder

	flush := func() {
		sentence := strings.TrimSpace(current.String())
		sentence = strings.TrimLeft(sentence, "-*#> ")
		if len(sentence) >= minSentenceLen && len(sentence) <= maxSentenceLen {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	for i, r := range text {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				flush()
			}
		}
	}

	if current.Len() > 0 {
		flush()
	}

	return sentences
}

// dedupeClaims removes duplicate claims
func dedupeClaims(claims []model.Claim) []model.Claim {
	seen := make(map[string]bool)
	var unique []model.Claim

	for _, claim := range claims {
		key := strings.ToLower(strings.TrimSpace(claim.Text))
		if !seen[key] {
			seen[key] = true
			unique = append(unique, claim)
		}
	}

	return unique
}
