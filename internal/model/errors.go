package model

import (
	"errors"
	"fmt"
)

// ErrNoAdapters is returned when a query is dispatched with no adapters configured
var ErrNoAdapters = errors.New("no adapters configured")

// AggregationError is a configuration fault detected before dispatch begins
type AggregationError struct {
	Reason string
	Err    error
}

func (e *AggregationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("aggregation: %s: %v", e.Reason, e.Err)
	}
	return "aggregation: " + e.Reason
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}
