// Package orchestrator dispatches one query to every configured adapter
// concurrently and collects a full-width ResponseSet.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/hllm/internal/llm"
	"github.com/ppiankov/hllm/internal/metrics"
	"github.com/ppiankov/hllm/internal/model"
	"github.com/ppiankov/hllm/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options contains the dispatch deadlines
type Options struct {
	// AdapterTimeout bounds each adapter call unless the request overrides it
	AdapterTimeout time.Duration

	// OverallDeadline bounds the whole fan-out/fan-in
	OverallDeadline time.Duration
}

// OptionsFromModel converts the orchestrator config section
func OptionsFromModel(cfg model.OrchestratorConfig) Options {
	return Options{
		AdapterTimeout:  cfg.AdapterTimeout,
		OverallDeadline: cfg.OverallDeadline,
	}
}

// Orchestrator owns concurrent dispatch, deadlines and partial-result collection
type Orchestrator struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates an orchestrator. A nil logger uses slog.Default().
func New(opts Options, logger *slog.Logger) *Orchestrator {
	if opts.AdapterTimeout <= 0 {
		opts.AdapterTimeout = 20 * time.Second
	}
	if opts.OverallDeadline <= 0 {
		opts.OverallDeadline = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		opts:   opts,
		logger: logger,
		tracer: tracing.Tracer(),
		now:    time.Now,
	}
}

// Dispatch invokes every adapter concurrently and returns one slot per adapter,
// in adapter order. It returns when every slot has resolved or the overall
// deadline passes, whichever comes first; unresolved slots become Timeout failures.
//
// Adapter failures never surface as an error. The error is non-nil only when no
// adapters were given or when ctx was cancelled by the caller; in the latter case
// the returned set still holds the slots that resolved before cancellation.
func (o *Orchestrator) Dispatch(ctx context.Context, req model.QueryRequest, adapters []llm.Adapter) (model.ResponseSet, error) {
	set := model.ResponseSet{Query: req.Query}
	if len(adapters) == 0 {
		return set, &model.AggregationError{Reason: "dispatch", Err: model.ErrNoAdapters}
	}

	timeout := o.opts.AdapterTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.dispatch", trace.WithAttributes(
		attribute.Int("adapters", len(adapters)),
		attribute.String("adapter_timeout", timeout.String()),
	))
	defer span.End()

	dispatchCtx, cancel := context.WithTimeout(ctx, o.opts.OverallDeadline)
	defer cancel()

	start := o.now()
	slots := make([]model.ModelResponse, len(adapters))
	resolved := make([]bool, len(adapters))

	var mu sync.Mutex
	sealed := false

	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(idx int, a llm.Adapter) {
			defer wg.Done()

			r := o.invoke(dispatchCtx, a, req.Query, timeout)

			mu.Lock()
			defer mu.Unlock()
			if sealed {
				return
			}
			slots[idx] = r
			resolved[idx] = true
		}(i, adapter)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-dispatchCtx.Done():
	}

	mu.Lock()
	sealed = true
	for i, ok := range resolved {
		if !ok {
			slots[i] = o.unresolved(ctx, adapters[i].Identity(), start)
		}
	}
	mu.Unlock()

	set.Slots = slots
	elapsed := o.now().Sub(start)
	succeeded := len(set.Succeeded())

	metrics.ObserveDispatch(elapsed, succeeded)
	span.SetAttributes(attribute.Int("succeeded", succeeded))
	o.logger.Info("dispatch complete",
		"adapters", len(adapters),
		"succeeded", succeeded,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return set, fmt.Errorf("dispatch cancelled: %w", err)
	}
	return set, nil
}

type invokeResult struct {
	resp *llm.Response
	err  error
}

// invoke runs one adapter call in isolation. It never blocks past the
// adapter timeout, even if the adapter ignores its context, and converts
// panics into Unavailable failures.
func (o *Orchestrator) invoke(ctx context.Context, a llm.Adapter, query string, timeout time.Duration) model.ModelResponse {
	identity := a.Identity()

	ctx, span := o.tracer.Start(ctx, "adapter.invoke", trace.WithAttributes(
		attribute.String("provider", string(identity.Provider)),
		attribute.String("model", identity.Model),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := o.now()
	ch := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- invokeResult{err: &llm.AdapterError{
					Provider: identity.Name,
					Kind:     model.KindUnavailable,
					Message:  fmt.Sprintf("adapter panic: %v", p),
				}}
			}
		}()
		resp, err := a.Invoke(callCtx, query, timeout)
		ch <- invokeResult{resp: resp, err: err}
	}()

	var res invokeResult
	select {
	case res = <-ch:
	case <-callCtx.Done():
		res = invokeResult{err: &llm.AdapterError{
			Provider: identity.Name,
			Kind:     model.KindTimeout,
			Message:  timeoutMessage(ctx, timeout),
			Err:      callCtx.Err(),
		}}
	}

	latency := o.now().Sub(start)
	r := model.ModelResponse{Model: identity, Timestamp: o.now()}

	switch {
	case res.err != nil:
		r.Failure = &model.Failure{Kind: llm.KindOf(res.err), Message: failureMessage(res.err), Latency: latency}
	case res.resp == nil || strings.TrimSpace(res.resp.Text) == "":
		r.Failure = &model.Failure{Kind: model.KindMalformed, Message: "empty response", Latency: latency}
	default:
		r.Success = &model.Success{
			Text:     strings.TrimSpace(res.resp.Text),
			Latency:  latency,
			Metadata: res.resp.Metadata(),
		}
	}

	outcome := metrics.OutcomeSuccess
	if r.Failure != nil {
		outcome = string(r.Failure.Kind)
		span.SetStatus(codes.Error, r.Failure.Message)
		o.logger.Warn("adapter failed",
			"provider", identity.Name,
			"kind", r.Failure.Kind,
			"error", r.Failure.Message,
			"latency_ms", latency.Milliseconds(),
		)
	} else {
		o.logger.Debug("adapter responded",
			"provider", identity.Name,
			"chars", len(r.Success.Text),
			"latency_ms", latency.Milliseconds(),
		)
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	metrics.ObserveAdapter(identity.Name, outcome, latency)

	return r
}

// unresolved fills the slot of an adapter still pending at fan-in
func (o *Orchestrator) unresolved(callerCtx context.Context, identity model.ModelIdentity, start time.Time) model.ModelResponse {
	msg := fmt.Sprintf("overall deadline of %s exceeded", o.opts.OverallDeadline)
	if callerCtx.Err() != nil {
		msg = "dispatch cancelled"
	}
	latency := o.now().Sub(start)
	metrics.ObserveAdapter(identity.Name, string(model.KindTimeout), latency)

	return model.ModelResponse{
		Model:     identity,
		Failure:   &model.Failure{Kind: model.KindTimeout, Message: msg, Latency: latency},
		Timestamp: o.now(),
	}
}

// timeoutMessage explains which deadline ended a call.
// parent is the dispatch context the call was derived from.
func timeoutMessage(parent context.Context, timeout time.Duration) string {
	if err := parent.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return "dispatch cancelled"
		}
		return "overall deadline exceeded"
	}
	return fmt.Sprintf("no response within %s", timeout)
}

// failureMessage renders an adapter error without the provider prefix
func failureMessage(err error) string {
	var aerr *llm.AdapterError
	if errors.As(err, &aerr) {
		msg := aerr.Message
		if msg == "" && aerr.Err != nil {
			msg = aerr.Err.Error()
		}
		if aerr.StatusCode != 0 {
			return fmt.Sprintf("HTTP %d: %s", aerr.StatusCode, msg)
		}
		return msg
	}
	return err.Error()
}
