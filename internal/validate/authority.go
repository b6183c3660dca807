package validate

import (
	"net/url"
	"strings"

	"github.com/ppiankov/hllm/internal/model"
	"golang.org/x/net/publicsuffix"
)

// Public-suffix labels that mark institutional registries
var (
	primarySuffixLabels   = map[string]bool{"gov": true, "edu": true, "mil": true, "int": true, "ac": true}
	secondarySuffixLabels = map[string]bool{"org": true}
)

// AuthorityClassifier classifies sources into authority tiers
type AuthorityClassifier struct {
	domainMap    map[string]model.AuthorityTier
	primaryMap   map[string]bool
	secondaryMap map[string]bool
}

// NewAuthorityClassifier creates a new authority classifier
func NewAuthorityClassifier(config *model.AuthorityConfig) *AuthorityClassifier {
	if config == nil {
		defaults := model.DefaultConfig().Verification.Authority
		config = &defaults
	}

	classifier := &AuthorityClassifier{
		domainMap:    make(map[string]model.AuthorityTier),
		primaryMap:   make(map[string]bool),
		secondaryMap: make(map[string]bool),
	}

	for host, tier := range config.DomainMap {
		classifier.domainMap[strings.ToLower(host)] = parseTierString(tier)
	}
	for _, domain := range config.PrimaryDomains {
		classifier.primaryMap[strings.ToLower(domain)] = true
	}
	for _, domain := range config.SecondaryDomains {
		classifier.secondaryMap[strings.ToLower(domain)] = true
	}

	return classifier
}

// Classify classifies a URL into an authority tier
func (a *AuthorityClassifier) Classify(rawURL string) model.AuthorityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.TierTertiary
	}

	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if host == "" {
		return model.TierTertiary
	}

	// Explicit overrides win, for the host or any parent domain
	if tier, ok := lookupDomain(host, a.domainMap); ok {
		return tier
	}
	if _, ok := lookupDomain(host, a.primaryMap); ok {
		return model.TierPrimary
	}
	if _, ok := lookupDomain(host, a.secondaryMap); ok {
		return model.TierSecondary
	}

	return classifySuffix(host)
}

// lookupDomain matches host and its parent domains, stopping at the registrable domain
func lookupDomain[V any](host string, m map[string]V) (V, bool) {
	var zero V
	if len(m) == 0 {
		return zero, false
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		registrable = host
	}

	for candidate := host; ; {
		if v, ok := m[candidate]; ok {
			return v, true
		}
		if candidate == registrable {
			break
		}
		idx := strings.IndexByte(candidate, '.')
		if idx < 0 {
			break
		}
		candidate = candidate[idx+1:]
	}

	// Configured entries may name a public suffix itself (e.g., "gov.uk")
	if suffix, _ := publicsuffix.PublicSuffix(host); suffix != "" {
		if v, ok := m[suffix]; ok {
			return v, true
		}
	}
	return zero, false
}

// classifySuffix tiers a host by its public suffix (e.g., .gov, .ac.uk, .edu.au)
func classifySuffix(host string) model.AuthorityTier {
	suffix, _ := publicsuffix.PublicSuffix(host)
	tier := model.TierTertiary
	for _, label := range strings.Split(suffix, ".") {
		if primarySuffixLabels[label] {
			return model.TierPrimary
		}
		if secondarySuffixLabels[label] {
			tier = model.TierSecondary
		}
	}
	return tier
}

// parseTierString converts a tier string to AuthorityTier
func parseTierString(tier string) model.AuthorityTier {
	switch strings.ToLower(tier) {
	case "primary", "1":
		return model.TierPrimary
	case "secondary", "2":
		return model.TierSecondary
	default:
		return model.TierTertiary
	}
}
