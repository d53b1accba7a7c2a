package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// indexed pairs a job or result with its submission position
type indexed[T any] struct {
	seq  int
	item T
}

// Pool manages a pool of workers that execute jobs concurrently.
// Results are returned in submission order regardless of completion order.
type Pool struct {
	workers    int
	jobQueue   chan indexed[Job]
	results    chan indexed[Result]
	submitted  int
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	onResult   func(Result)

	collected     map[int]Result // written only by collect
	collectorDone chan struct{}
}

// NewPool creates a new worker pool bound to ctx. Cancelling ctx stops the
// workers the same way Shutdown does.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan indexed[Job], workers*2), // Buffered to prevent blocking
		results:    make(chan indexed[Result], workers*2),
		ctx:        ctx,
		cancelFunc: cancel,

		collected:     make(map[int]Result),
		collectorDone: make(chan struct{}),
	}
}

// OnResult registers a callback invoked as each result arrives. Callbacks
// run one at a time. Must be called before Start.
func (p *Pool) OnResult(fn func(Result)) {
	p.onResult = fn
}

// Start starts the workers and the result collector
func (p *Pool) Start() {
	go p.collect()
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := job.item.Execute(p.ctx)
			select {
			case p.results <- indexed[Result]{seq: job.seq, item: result}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit submits a job to the pool for execution. Submit must not be called
// concurrently with itself or after Wait.
func (p *Pool) Submit(job Job) {
	select {
	case <-p.ctx.Done():
		return
	case p.jobQueue <- indexed[Job]{seq: p.submitted, item: job}:
		p.submitted++
	}
}

// collect drains results as they complete so workers never block on a
// caller that has not reached Wait yet.
func (p *Pool) collect() {
	defer close(p.collectorDone)
	for res := range p.results {
		p.collected[res.seq] = res.item
		if p.onResult != nil {
			p.onResult(res.item)
		}
	}
}

// Wait waits for all submitted jobs to complete and returns their results in
// submission order. Jobs dropped by a shutdown leave no entry.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)
	p.wg.Wait()
	p.closeResults()
	<-p.collectorDone

	results := make([]Result, 0, len(p.collected))
	for seq := 0; seq < p.submitted; seq++ {
		if res, ok := p.collected[seq]; ok && res != nil {
			results = append(results, res)
		}
	}
	return results
}

// Shutdown shuts down the worker pool immediately
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
		p.cancelFunc()
	})
}
