package model

import "time"

// Source is a URL cited inside a model response
type Source struct {
	URL       string            `json:"url"`                  // Full URL
	Host      string            `json:"host,omitempty"`       // Domain name
	Model     string            `json:"model"`                // Model that cited it
	Authority AuthorityTier     `json:"authority"`            // Source authority classification
	Check     *ValidationResult `json:"validation,omitempty"` // Liveness check, when enabled
}

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Government, academic, journals, standards bodies
	TierSecondary AuthorityTier = 2 // Encyclopedias, major publishers, reputable media
	TierTertiary  AuthorityTier = 3 // Blogs, forums, personal websites
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// Reliable reports whether the tier counts as a reliable source
func (t AuthorityTier) Reliable() bool {
	return t == TierPrimary || t == TierSecondary
}

// ValidationResult contains the result of a cited-link liveness check
type ValidationResult struct {
	URL          string     `json:"url"`
	IsAccessible bool       `json:"is_accessible"`
	StatusCode   int        `json:"status_code,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	IsDead       bool       `json:"is_dead"`                // 404, 410, or timeout
	Blocked      bool       `json:"blocked,omitempty"`      // Disallowed by robots.txt, not fetched
	RedirectURL  string     `json:"redirect_url,omitempty"` // If redirected
	Error        string     `json:"error,omitempty"`
}

// Verification is the truth-verification report for one query.
// It is informational and never feeds the H-Score.
type Verification struct {
	TruthScore     float64  `json:"truth_score"`     // 0-1 weighted blend of the components below
	Level          string   `json:"level"`           // high, medium, low, very_low
	CrossReference float64  `json:"cross_reference"` // Agreement between responses (0-1)
	Temporal       float64  `json:"temporal"`        // Recency of years mentioned (0-1)
	SourceQuality  float64  `json:"source_quality"`  // Reachable and reliable citations (0-1)
	Consistency    float64  `json:"consistency"`     // Absence of contradictions (0-1)
	Claims         []Claim  `json:"claims"`
	Sources        []Source `json:"sources"`
	Summary        string   `json:"summary"`
}
