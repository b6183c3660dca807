package model

// Claim represents a factual assertion extracted from a model response
type Claim struct {
	Text      string    `json:"text"`                // The sentence carrying the claim
	Model     string    `json:"model"`               // Name of the model that made it
	Type      ClaimType `json:"type"`                // Which kind of fact was detected
	Heuristic string    `json:"heuristic,omitempty"` // Which extraction rule matched (e.g., "pattern:percentage")
	Sentence  int       `json:"sentence,omitempty"`  // Sentence index in the response (0-based)
}

// ClaimType categorizes the nature of the claim
type ClaimType string

const (
	ClaimTypeYear        ClaimType = "year"        // Mentions a calendar year
	ClaimTypePercentage  ClaimType = "percentage"  // States a percentage
	ClaimTypeMoney       ClaimType = "money"       // States a monetary amount
	ClaimTypeMeasurement ClaimType = "measurement" // States a measured quantity
	ClaimTypeTemporal    ClaimType = "temporal"    // Places an event in time ("in 1998")
	ClaimTypeAttribution ClaimType = "attribution" // Attributes to a source ("according to")
	ClaimTypeResearch    ClaimType = "research"    // Appeals to research ("studies show")
)
