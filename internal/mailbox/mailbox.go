// Package mailbox implements a one-slot coalescing mailbox: a Set always
// overwrites any unconsumed prior payload, and a consumer can either block
// for the next payload or poll without blocking.
//
// It is used both as the evaluator's "please evaluate" trigger and as each
// worker's per-container request carrier. The backing store is the pack's
// own queue type (as the teacher used for Worker.Queue and Manager.Pending)
// rather than a bare channel, kept to at most one element at a time.
package mailbox

import (
	"sync"

	"github.com/golang-collections/collections/queue"
)

// Shutdown is the sentinel payload a worker's mailbox carries to signal it
// should terminate.
var Shutdown = &struct{ name string }{"shutdown"}

// Mailbox is a one-slot coalescing queue, safe for concurrent use.
type Mailbox struct {
	mu   sync.Mutex
	cond *sync.Cond
	q    *queue.Queue
}

// New returns an empty mailbox.
func New() *Mailbox {
	m := &Mailbox{q: queue.New()}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Set replaces any unconsumed payload with payload and wakes a blocked Get.
func (m *Mailbox) Set(payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.q.Len() > 0 {
		m.q.Dequeue()
	}
	m.q.Enqueue(payload)
	m.cond.Signal()
}

// Get blocks until a payload is available, then removes and returns it.
func (m *Mailbox) Get() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.q.Len() == 0 {
		m.cond.Wait()
	}
	return m.q.Dequeue()
}

// GetNowait removes and returns the pending payload if any, without blocking.
func (m *Mailbox) GetNowait() (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.q.Len() == 0 {
		return nil, false
	}
	return m.q.Dequeue(), true
}

// Empty reports whether the mailbox currently holds no payload.
func (m *Mailbox) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Len() == 0
}
