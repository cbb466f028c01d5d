package pipeline

import (
	"sync"

	"gocv.io/x/gocv"
)

// Publisher is the output slot for finished frames. It keeps only the newest
// result by sequence number, so a slow invocation that finishes late never
// replaces a newer frame. Readers must tolerate gaps in the sequence.
type Publisher struct {
	mu      sync.Mutex
	latest  *Result
	updates chan uint64
	closed  bool
}

// NewPublisher creates an empty slot
func NewPublisher() *Publisher {
	return &Publisher{updates: make(chan uint64, 1)}
}

// Publish offers res to the slot and takes ownership of it. It returns false
// (and closes res) when res is not newer than the published result.
func (p *Publisher) Publish(res Result) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || (p.latest != nil && res.Seq <= p.latest.Seq) {
		res.Close()
		return false
	}

	if p.latest != nil {
		p.latest.Close()
	}
	p.latest = &res

	// Keep only the newest notification
	select {
	case <-p.updates:
	default:
	}
	p.updates <- res.Seq
	return true
}

// Updates delivers the sequence number of each newly published result.
// Notifications coalesce when the reader falls behind.
func (p *Publisher) Updates() <-chan uint64 {
	return p.updates
}

// Seq returns the sequence number of the published result, 0 if none
func (p *Publisher) Seq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return 0
	}
	return p.latest.Seq
}

// Latest returns a copy of the newest result. The caller owns the copy's Image.
func (p *Publisher) Latest() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.latest == nil {
		return Result{Image: gocv.NewMat()}, false
	}
	res := *p.latest
	res.Image = p.latest.Image.Clone()
	return res, true
}

// Close releases the held result; later Publish calls are discarded
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.latest != nil {
		err := p.latest.Close()
		p.latest = nil
		return err
	}
	return nil
}
