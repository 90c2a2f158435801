// Package registry implements the worker registry: a lookup-or-create
// map from container name to worker. Lookups take the
// registry's read lock; only the rare create path and the garbage
// collector's sweep take the write lock, so producers (evaluator, event
// handler) normally proceed concurrently with each other. Go's native
// sync.RWMutex gives us this discipline directly, without the hand-rolled
// reader/writer lock the original implementation needed.
package registry

import (
	"sync"
	"time"

	"github.com/cascandaliato/restarter/internal/config"
	"github.com/cascandaliato/restarter/internal/runtime"
	"github.com/cascandaliato/restarter/internal/worker"
)

// Registry is a map from container name to Worker. Lookup-or-create is
// atomic; deletion is driven only by the garbage collector.
type Registry struct {
	mu       sync.RWMutex
	workers  map[string]*worker.Worker
	rt       runtime.Adapter
	resolver *config.Resolver
	fatal    chan<- error
}

// New creates an empty Registry. rt and resolver are threaded into every
// Worker created through it; fatal receives unrecoverable worker errors.
func New(rt runtime.Adapter, resolver *config.Resolver, fatal chan<- error) *Registry {
	return &Registry{
		workers:  map[string]*worker.Worker{},
		rt:       rt,
		resolver: resolver,
		fatal:    fatal,
	}
}

// GetOrCreate returns the worker for name, creating it if absent.
// Producers (evaluator, event handler) call this under the registry's read
// lock; the create path takes the write lock only for the instant needed
// to insert the new entry.
func (r *Registry) GetOrCreate(name string) *worker.Worker {
	r.mu.RLock()
	w, ok := r.workers[name]
	r.mu.RUnlock()
	if ok {
		return w
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[name]; ok {
		return w
	}
	w = worker.New(name, r.rt, r.resolver, r.fatal)
	r.workers[name] = w
	return w
}

// Deliver enqueues a restart request timestamp to the named container's
// worker, creating the worker if it does not exist yet.
func (r *Registry) Deliver(name string, timestamp time.Time) {
	w := r.GetOrCreate(name)
	w.Mailbox.Set(timestamp)
}

// RetireIdle takes the write lock and removes every worker that is idle
// (mailbox empty and done set), signalling each one to exit first. It
// returns the names retired.
func (r *Registry) RetireIdle() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var retired []string
	for name, w := range r.workers {
		if w.Idle() {
			delete(r.workers, name)
			retired = append(retired, name)
		}
	}
	return retired
}

// Len reports the number of live workers, mainly for diagnostics/tests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
