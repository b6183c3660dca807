package model

import (
	"fmt"
	"time"
)

// Provider is the identity tag of a model backend
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGoogle     Provider = "google"
	ProviderCohere     Provider = "cohere"
	ProviderDeepSeek   Provider = "deepseek"
	ProviderOpenRouter Provider = "openrouter"
	ProviderPerplexity Provider = "perplexity"
	ProviderXAI        Provider = "xai"
)

// Providers lists every known provider tag in default slot order
var Providers = []Provider{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGoogle,
	ProviderCohere,
	ProviderDeepSeek,
	ProviderOpenRouter,
	ProviderPerplexity,
	ProviderXAI,
}

// Valid reports whether p is one of the known provider tags
func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// ModelIdentity names the backend that produced a response
type ModelIdentity struct {
	Name     string   `json:"name"`     // Display name, unique per configuration (e.g., "OpenAI")
	Provider Provider `json:"provider"` // Provider tag
	Model    string   `json:"model"`    // Provider-specific model id (e.g., "gpt-4o")
}

func (m ModelIdentity) String() string {
	if m.Model == "" {
		return m.Name
	}
	return fmt.Sprintf("%s (%s)", m.Name, m.Model)
}

// ErrorKind classifies why an adapter invocation failed
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindAuthFailure ErrorKind = "auth_failure"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"
	KindMalformed   ErrorKind = "malformed"
)

// Success is the outcome of an adapter call that produced text
type Success struct {
	Text     string         `json:"text"`
	Latency  time.Duration  `json:"latency"`
	Metadata map[string]any `json:"metadata,omitempty"` // Provider-reported details (tokens, finish reason)
}

// Failure is the outcome of an adapter call that did not produce text
type Failure struct {
	Kind    ErrorKind     `json:"kind"`
	Message string        `json:"message"`
	Latency time.Duration `json:"latency"`
}

// ModelResponse is one resolved slot of a ResponseSet.
// Exactly one of Success and Failure is set.
type ModelResponse struct {
	Model     ModelIdentity `json:"model"`
	Success   *Success      `json:"success,omitempty"`
	Failure   *Failure      `json:"failure,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// OK reports whether the slot holds a success with non-empty text
func (r ModelResponse) OK() bool {
	return r.Success != nil && r.Success.Text != ""
}

// Text returns the response text, or "" for failed slots
func (r ModelResponse) Text() string {
	if r.Success == nil {
		return ""
	}
	return r.Success.Text
}

// Latency returns how long the slot took to resolve
func (r ModelResponse) Latency() time.Duration {
	switch {
	case r.Success != nil:
		return r.Success.Latency
	case r.Failure != nil:
		return r.Failure.Latency
	}
	return 0
}

// ResponseSet holds one slot per configured adapter, in configuration order
type ResponseSet struct {
	Query string          `json:"query"`
	Slots []ModelResponse `json:"slots"`
}

// Len returns the number of slots
func (s ResponseSet) Len() int {
	return len(s.Slots)
}

// Succeeded returns the indexes of slots holding usable text, in slot order
func (s ResponseSet) Succeeded() []int {
	var idx []int
	for i, r := range s.Slots {
		if r.OK() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Failed returns the number of slots without usable text
func (s ResponseSet) Failed() int {
	return len(s.Slots) - len(s.Succeeded())
}
