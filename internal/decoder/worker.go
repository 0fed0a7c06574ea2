package decoder

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// EvaluatorSource maps a style-set identifier to a ready Decoder. The theme
// service implements this over its compiled-evaluator cache; compiled state
// behind it must be immutable so workers can share it without locks.
type EvaluatorSource interface {
	Decoder(styleSet string) (*Decoder, error)
}

// Result is a completed or failed decode. Exactly one of Response and Err
// is set.
type Result struct {
	Response *Response
	Err      error
}

type job struct {
	ctx context.Context
	req Request
	out chan Result
}

// Pool runs decode requests across a fixed set of workers. Each worker
// processes one request at a time to completion; the pool as a whole can
// decode tiles in parallel.
type Pool struct {
	source EvaluatorSource
	jobs   chan job

	// mu guards closed and orders submissions against Close: Decode holds
	// the read side across its send so Close can never close jobs while a
	// sender is in flight.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts workers goroutines over the given evaluator source.
func NewPool(source EvaluatorSource, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		source: source,
		jobs:   make(chan job),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Decode submits a request and waits for its result. When ctx is cancelled
// the call returns immediately; an in-flight decode finishes in the
// background and its result is dropped without disturbing the worker.
func (p *Pool) Decode(ctx context.Context, req Request) (*Response, error) {
	// Buffered so the worker's send never blocks on an abandoned caller.
	out := make(chan Result, 1)

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("decoder: pool is closed")
	}
	select {
	case p.jobs <- job{ctx: ctx, req: req, out: out}:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case r := <-out:
		return r.Response, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting requests and waits for idle workers. In-flight
// decodes run to completion.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// worker loops Idle -> Decoding -> Idle. A failed decode produces an error
// result; the worker itself always survives to take the next request.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := logrus.WithField("worker", id)

	for j := range p.jobs {
		// The caller may already be gone; skip the work, not the loop.
		if err := j.ctx.Err(); err != nil {
			j.out <- Result{Err: err}
			continue
		}
		j.out <- p.decodeOne(j.ctx, j.req, log)
	}
}

func (p *Pool) decodeOne(ctx context.Context, req Request, log *logrus.Entry) (res Result) {
	// A malformed tile must never take the worker down.
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("decode panicked")
			res = Result{Err: fmt.Errorf("decoder: internal error: %v", r)}
		}
	}()

	d, err := p.source.Decoder(req.StyleSet)
	if err != nil {
		return Result{Err: fmt.Errorf("decoder: style set %q: %w", req.StyleSet, err)}
	}

	resp, err := d.Decode(ctx, req.Buffer, req.Zoom)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Response: resp}
}
