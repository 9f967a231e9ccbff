package orchestrator

import (
	"fmt"
	"sync"
)

// Sequencer runs submitted tasks in arrival order per key while letting
// different keys proceed concurrently. The orchestrator keys it by branch
// name so a late failure event can never overtake an earlier success for
// the same branch.
type Sequencer struct {
	mu     sync.Mutex
	queues map[string]chan func()
	wg     sync.WaitGroup
	buffer int
	closed bool
}

// NewSequencer creates a sequencer with the given per-key queue depth.
func NewSequencer(buffer int) *Sequencer {
	if buffer <= 0 {
		buffer = 64
	}
	return &Sequencer{
		queues: make(map[string]chan func()),
		buffer: buffer,
	}
}

// Submit enqueues a task for the given key. Tasks for the same key run one
// at a time, in submission order. Returns an error after Close or when the
// key's queue is full.
func (s *Sequencer) Submit(key string, fn func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("sequencer is closed")
	}

	queue, ok := s.queues[key]
	if !ok {
		queue = make(chan func(), s.buffer)
		s.queues[key] = queue
		s.wg.Add(1)
		go s.run(queue)
	}
	s.mu.Unlock()

	select {
	case queue <- fn:
		return nil
	default:
		return fmt.Errorf("queue for '%s' is full", key)
	}
}

// run drains one key's queue until it is closed.
func (s *Sequencer) run(queue chan func()) {
	defer s.wg.Done()
	for fn := range queue {
		fn()
	}
}

// Close stops accepting tasks and waits for all queued tasks to finish.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, queue := range s.queues {
		close(queue)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
