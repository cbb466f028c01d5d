package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

var (
	// ErrBusy is returned by Submit when every worker is occupied and the queue is full
	ErrBusy = errors.New("pipeline busy, frame dropped")
	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("runner closed")
)

type job struct {
	seq    uint64
	source gocv.Mat
	target gocv.Mat
	done   func(Result)
}

// Runner executes invocations on a fixed pool of background workers fed by a
// bounded queue. Completion order across workers is not guaranteed; each
// Result carries the sequence number assigned at submission.
type Runner struct {
	pipeline *Pipeline
	ctx      context.Context
	jobs     chan job
	wg       sync.WaitGroup
	seq      atomic.Uint64
	dropped  atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewRunner starts workers goroutines that run p. queue bounds the number of
// submissions waiting for a worker. ctx is passed to every invocation.
func NewRunner(ctx context.Context, p *Pipeline, workers, queue int) *Runner {
	workers = max(1, workers)
	queue = max(0, queue)

	r := &Runner{
		pipeline: p,
		ctx:      ctx,
		jobs:     make(chan job, queue),
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func(workerID int) {
			defer r.wg.Done()
			r.work(workerID)
		}(i)
	}
	return r
}

// Submit queues one invocation and returns its sequence number. Inputs are
// cloned, so the caller may reuse or close them immediately. Submit never
// blocks: when no worker or queue slot is free it returns ErrBusy. done is
// called from a worker goroutine and owns the Result; a nil done discards it.
func (r *Runner) Submit(source, target gocv.Mat, done func(Result)) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, ErrClosed
	}

	j := job{
		seq:    r.seq.Add(1),
		source: source.Clone(),
		target: target.Clone(),
		done:   done,
	}

	select {
	case r.jobs <- j:
		return j.seq, nil
	default:
		j.source.Close()
		j.target.Close()
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("[runner] queue full, dropped %d frame(s) so far", n)
		}
		return 0, ErrBusy
	}
}

// Dropped returns the number of submissions rejected with ErrBusy
func (r *Runner) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Runner) work(workerID int) {
	for j := range r.jobs {
		res := r.pipeline.Process(r.ctx, j.source, j.target)
		res.Seq = j.seq
		j.source.Close()
		j.target.Close()

		if j.done != nil {
			j.done(res)
		} else {
			res.Close()
		}
	}
}

// Close stops accepting submissions, lets the workers finish everything
// already queued and waits for them.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}
