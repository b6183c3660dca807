// Package llmtest provides deterministic adapters for exercising the orchestrator.
package llmtest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ppiankov/hllm/internal/llm"
	"github.com/ppiankov/hllm/internal/model"
)

// Fake is a scripted adapter. The zero value answers "" immediately,
// which the orchestrator records as a malformed response.
type Fake struct {
	ID    model.ModelIdentity
	Text  string        // Answer returned on success
	Delay time.Duration // Time spent before answering
	Err   error         // Returned instead of Text when set
	Panic any           // Panics with this value when set

	// IgnoreContext makes the fake sleep through cancellation,
	// like a client that does not honor its deadline.
	IgnoreContext bool

	calls     atomic.Int32
	lastQuery atomic.Value
}

// New returns a fake answering text after delay
func New(name string, text string, delay time.Duration) *Fake {
	return &Fake{
		ID:    model.ModelIdentity{Name: name, Provider: model.ProviderOpenAI, Model: "fake-" + name},
		Text:  text,
		Delay: delay,
	}
}

// Failing returns a fake failing with the given kind
func Failing(name string, kind model.ErrorKind) *Fake {
	f := New(name, "", 0)
	f.Err = &llm.AdapterError{Provider: name, Kind: kind, Message: "scripted failure"}
	return f
}

// LastQuery returns the query text of the most recent call
func (f *Fake) LastQuery() string {
	q, _ := f.lastQuery.Load().(string)
	return q
}

// Calls returns how many times Invoke ran
func (f *Fake) Calls() int {
	return int(f.calls.Load())
}

func (f *Fake) Identity() model.ModelIdentity {
	return f.ID
}

func (f *Fake) Invoke(ctx context.Context, query string, timeout time.Duration) (*llm.Response, error) {
	f.calls.Add(1)
	f.lastQuery.Store(query)

	if f.Delay > 0 {
		if f.IgnoreContext {
			time.Sleep(f.Delay)
		} else {
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			timer := time.NewTimer(f.Delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return nil, &llm.AdapterError{Provider: f.ID.Name, Kind: model.KindTimeout, Message: ctx.Err().Error(), Err: ctx.Err()}
			case <-timer.C:
			}
		}
	}

	if f.Panic != nil {
		panic(f.Panic)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return &llm.Response{Text: f.Text, Model: f.ID.Model}, nil
}

func (f *Fake) IsAvailable(ctx context.Context) bool {
	return f.Err == nil
}
