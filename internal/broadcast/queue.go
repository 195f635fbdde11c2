package broadcast

import (
	"sync"

	model "live-auction/internal/models"
)

// queue is an unbounded FIFO drained by a single dispatcher goroutine, so
// publishers never wait on delivery.
type queue struct {
	mu      sync.Mutex
	pending []model.Event
	wake    chan struct{}
	stop    chan struct{}
	stopped bool
}

func newQueue() *queue {
	return &queue{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

func (q *queue) push(ev model.Event) bool {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *queue) take() []model.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.stopped {
		q.stopped = true
		close(q.stop)
	}
}

// run drains the queue with deliver until close is called; events still pending at
// that point are delivered before returning.
func (q *queue) run(deliver func(model.Event)) {
	for {
		select {
		case <-q.wake:
			for _, ev := range q.take() {
				deliver(ev)
			}
		case <-q.stop:
			for _, ev := range q.take() {
				deliver(ev)
			}
			return
		}
	}
}
