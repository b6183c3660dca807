package score

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Cited URLs say nothing about what a response claims
var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)

// stopwords are dropped from content-term sets before comparing responses
var stopwords = toSet(strings.Fields(`
a about above after again against all also am an and any are as at be because been before
being below between both but by can could did do does doing down during each few for from
further had has have having he her here hers herself him himself his how i if in into is it
its itself just me more most my myself now of off on once only or other our ours
ourselves out over own same she should so some such than that the their theirs them
themselves then there these they this those through to too under until up very was we were
what when where which while who whom why will with would you your yours yourself yourselves
s t d ll m re ve
`))

// negators flip the polarity of a response. They stay content terms, and a
// polarity mismatch between two responses also discounts their similarity.
var negators = toSet([]string{
	"no", "not", "nor", "never", "none", "neither", "nobody", "nothing", "cannot",
})

// contractions expands "n't" so "isn't" tokenizes as "is not"
var contractions = strings.NewReplacer("n't", " not", "n’t", " not")

// refusalMarkers signal a response declining to answer
var refusalMarkers = normalizeAll([]string{
	"I can't",
	"I cannot",
	"I'm unable",
	"I am unable",
	"I'm not able",
	"I am not able",
	"I won't",
	"I will not",
	"as an AI",
	"as a language model",
	"I don't have access",
	"I do not have access",
	"I'm sorry, but",
})

// hedgeMarkers signal uncertainty inside an answer
var hedgeMarkers = normalizeAll([]string{
	"might",
	"may",
	"perhaps",
	"possibly",
	"probably",
	"likely",
	"unclear",
	"uncertain",
	"not sure",
	"it seems",
	"i think",
	"i believe",
	"could be",
	"approximately",
	"it depends",
	"reportedly",
})

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// tokenize lowercases text and splits it on anything that is not a letter or digit
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalize rewrites text as space-delimited tokens with a leading and trailing space,
// so phrase matching respects word boundaries.
func normalize(text string) string {
	return " " + strings.Join(tokenize(text), " ") + " "
}

func normalizeAll(phrases []string) []string {
	out := make([]string, len(phrases))
	for i, p := range phrases {
		out[i] = normalize(p)
	}
	return out
}

// countMarkers counts marker occurrences in normalized text
func countMarkers(normalized string, markers []string) int {
	n := 0
	for _, m := range markers {
		n += strings.Count(normalized, m)
	}
	return n
}

// contentTerms returns the sorted distinct content words of text,
// excluding stopwords and any word in exclude (typically the query's own terms).
func contentTerms(text string, exclude map[string]struct{}) []string {
	seen := make(map[string]struct{})
	for _, tok := range contentTokens(text) {
		if _, ok := stopwords[tok]; ok {
			continue
		}
		if _, ok := exclude[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
	}

	terms := make([]string, 0, len(seen))
	for t := range seen {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// contentTokens tokenizes text with URLs removed and negative contractions expanded
func contentTokens(text string) []string {
	text = urlPattern.ReplaceAllString(text, " ")
	return tokenize(contractions.Replace(strings.ToLower(text)))
}

// negated reports whether text contains a negator
func negated(text string) bool {
	for _, tok := range contentTokens(text) {
		if _, ok := negators[tok]; ok {
			return true
		}
	}
	return false
}

// queryTerms returns the content words of the query as a set
func queryTerms(query string) map[string]struct{} {
	return toSet(contentTerms(query, nil))
}

// similarity scores two sorted term lists in [0, 1]:
// the mean of the Jaccard index and the overlap coefficient.
// Two empty lists are identical; one empty list shares nothing.
func similarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	shared := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			shared++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}

	union := len(a) + len(b) - shared
	smaller := min(len(a), len(b))

	jaccard := float64(shared) / float64(union)
	overlap := float64(shared) / float64(smaller)
	return 0.5*jaccard + 0.5*overlap
}
