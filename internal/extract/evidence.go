package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/hllm/internal/model"
	"golang.org/x/net/html"
)

// DefaultMaxSourcesPerResponse caps cited URLs taken from one response
const DefaultMaxSourcesPerResponse = 3

var (
	bareURL       = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'\x60\]\[]+`)
	trailingNoise = ".,;:!?'\")]}*_"
)

// SourceExtractor extracts cited URLs from model responses
type SourceExtractor struct {
	maxPerResponse int
}

// NewSourceExtractor creates a new source extractor.
// maxPerResponse <= 0 uses DefaultMaxSourcesPerResponse.
func NewSourceExtractor(maxPerResponse int) *SourceExtractor {
	if maxPerResponse <= 0 {
		maxPerResponse = DefaultMaxSourcesPerResponse
	}
	return &SourceExtractor{maxPerResponse: maxPerResponse}
}

// Extract extracts cited URLs from one response: HTML anchors, markdown links and bare URLs
func (e *SourceExtractor) Extract(modelName, text string) []model.Source {
	var raw []string
	raw = append(raw, anchorHrefs(text)...)
	raw = append(raw, bareURL.FindAllString(text, -1)...)

	var sources []model.Source
	for _, r := range raw {
		u := normalizeURL(r)
		if u == nil {
			continue
		}
		sources = append(sources, model.Source{
			URL:   u.String(),
			Host:  strings.ToLower(u.Hostname()),
			Model: modelName,
		})
	}

	sources = dedupeSources(sources)
	if len(sources) > e.maxPerResponse {
		sources = sources[:e.maxPerResponse]
	}
	return sources
}

// ExtractAll extracts sources from every successful slot, in slot order.
// A URL cited by several models is kept once, attributed to the first.
func (e *SourceExtractor) ExtractAll(rs model.ResponseSet) []model.Source {
	var all []model.Source
	for _, idx := range rs.Succeeded() {
		slot := rs.Slots[idx]
		all = append(all, e.Extract(slot.Model.Name, slot.Text())...)
	}
	return dedupeSources(all)
}

// anchorHrefs returns href values of <a> elements when text contains HTML
func anchorHrefs(text string) []string {
	if !strings.Contains(text, "<a") && !strings.Contains(text, "<A") {
		return nil
	}

	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil
	}

	var hrefs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					hrefs = append(hrefs, strings.TrimSpace(attr.Val))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return hrefs
}

// normalizeURL cleans a candidate URL and keeps only absolute http/https URLs
func normalizeURL(raw string) *url.URL {
	raw = strings.TrimRight(strings.TrimSpace(raw), trailingNoise)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return nil
	}

	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return nil
	}
	if strings.HasPrefix(lower, "www.") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil
	}
	if !strings.Contains(parsed.Hostname(), ".") {
		return nil
	}

	parsed.Fragment = ""
	return parsed
}

// dedupeSources removes duplicate URLs
func dedupeSources(sources []model.Source) []model.Source {
	seen := make(map[string]bool)
	var unique []model.Source

	for _, s := range sources {
		if !seen[s.URL] {
			seen[s.URL] = true
			unique = append(unique, s)
		}
	}

	return unique
}
