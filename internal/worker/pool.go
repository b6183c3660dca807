// Package worker runs batches of queries with bounded concurrency and
// per-provider rate limits.
package worker

import (
	"context"
	"sync"
)

// Job is a unit of work producing a value of type T
type Job[T any] func(ctx context.Context) T

type indexedJob[T any] struct {
	index int
	job   Job[T]
}

type indexedResult[T any] struct {
	index int
	value T
}

// Pool runs jobs on a fixed number of workers.
// Results are returned in submission order, not completion order.
type Pool[T any] struct {
	workers    int
	jobQueue   chan indexedJob[T]
	results    chan indexedResult[T]
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once

	mu        sync.Mutex
	submitted int
}

// NewPool creates a pool bound to ctx with the specified number of workers
func NewPool[T any](ctx context.Context, workers int) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool[T]{
		workers:    workers,
		jobQueue:   make(chan indexedJob[T], workers*2),
		results:    make(chan indexedResult[T], workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the workers
func (p *Pool[T]) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			value := job.job(p.ctx)
			select {
			case p.results <- indexedResult[T]{index: job.index, value: value}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. It reports false if the pool was shut down first.
func (p *Pool[T]) Submit(job Job[T]) bool {
	p.mu.Lock()
	index := p.submitted
	p.submitted++
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- indexedJob[T]{index: index, job: job}:
		return true
	}
}

// Wait closes the queue, waits for the workers and returns one value per
// submitted job. Jobs that never ran leave their zero value.
func (p *Pool[T]) Wait() []T {
	close(p.jobQueue)

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	p.mu.Lock()
	values := make([]T, p.submitted)
	p.mu.Unlock()

	for result := range p.results {
		values[result.index] = result.value
	}

	p.cancelFunc()
	return values
}

// Shutdown stops the pool immediately
func (p *Pool[T]) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool[T]) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
