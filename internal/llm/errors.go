package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ppiankov/hllm/internal/model"
	"github.com/sashabaranov/go-openai"
)

// AdapterError is a classified provider failure
type AdapterError struct {
	Provider   string
	Kind       model.ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *AdapterError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind carried by err.
// Unclassified errors count as Unavailable.
func KindOf(err error) model.ErrorKind {
	var aerr *AdapterError
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.KindTimeout
	}
	return model.KindUnavailable
}

// Retryable reports whether the failure is transient
func Retryable(err error) bool {
	switch KindOf(err) {
	case model.KindRateLimited, model.KindUnavailable:
		return true
	}
	return false
}

// kindForStatus maps an HTTP status to a failure kind
func kindForStatus(status int) model.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.KindAuthFailure
	case status == http.StatusTooManyRequests:
		return model.KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return model.KindTimeout
	case status >= 500:
		return model.KindUnavailable
	default:
		return model.KindMalformed
	}
}

// statusError builds the error for a non-2xx provider response
func statusError(provider string, status int, message string) *AdapterError {
	return &AdapterError{
		Provider:   provider,
		Kind:       kindForStatus(status),
		StatusCode: status,
		Message:    message,
	}
}

// malformed builds the error for an undecodable or empty payload
func malformed(provider, message string, err error) *AdapterError {
	return &AdapterError{
		Provider: provider,
		Kind:     model.KindMalformed,
		Message:  message,
		Err:      err,
	}
}

// classifyTransport converts transport and SDK errors into an AdapterError
func classifyTransport(provider string, err error) *AdapterError {
	var aerr *AdapterError
	if errors.As(err, &aerr) {
		return aerr
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &AdapterError{
			Provider:   provider,
			Kind:       kindForStatus(apiErr.HTTPStatusCode),
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &AdapterError{
			Provider:   provider,
			Kind:       kindForStatus(reqErr.HTTPStatusCode),
			StatusCode: reqErr.HTTPStatusCode,
			Message:    "request failed",
			Err:        err,
		}
	}

	kind := model.KindUnavailable
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = model.KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = model.KindTimeout
	}

	return &AdapterError{
		Provider: provider,
		Kind:     kind,
		Message:  err.Error(),
		Err:      err,
	}
}
