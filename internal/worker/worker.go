// Package worker implements the per-container restart state machine: one
// actor per container name, serialized, coalescing requests through a
// one-slot mailbox and polling for them instead of blocking so the garbage
// collector can observe an idle worker without contention.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cascandaliato/restarter/internal/config"
	"github.com/cascandaliato/restarter/internal/errs"
	"github.com/cascandaliato/restarter/internal/logging"
	"github.com/cascandaliato/restarter/internal/mailbox"
	"github.com/cascandaliato/restarter/internal/runtime"
)

// pollInterval is the cadence at which a worker polls its mailbox instead
// of blocking on it.
var pollInterval = time.Second

// Worker is the state machine for one container name. The name is the
// stable identifier across recreations: recreating a container changes its
// id but not its name, so the same Worker (and its restart_count) persists
// across a recreate.
type Worker struct {
	Name string

	mu      sync.Mutex // serializes mailbox drain against GC inspection
	Mailbox *mailbox.Mailbox
	done    atomic.Bool

	restartCount atomic.Int64

	recentMu     sync.Mutex
	recentStatus [2]string

	rt       runtime.Adapter
	resolver *config.Resolver
	fatal    chan<- error
	log      *logging.Logger
}

// New creates a Worker for name and starts its actor goroutine. fatal
// receives any error that is not a classified restart failure.
func New(name string, rt runtime.Adapter, resolver *config.Resolver, fatal chan<- error) *Worker {
	w := &Worker{
		Name:     name,
		Mailbox:  mailbox.New(),
		rt:       rt,
		resolver: resolver,
		fatal:    fatal,
		log:      logging.New("worker"),
	}
	w.done.Store(true)
	go w.run()
	w.log.Infof("worker created for container %s", name)
	return w
}

// RestartCount returns the number of restart attempts made so far. It is
// monotonically non-decreasing for the lifetime of the Worker.
func (w *Worker) RestartCount() int64 {
	return w.restartCount.Load()
}

// PushStatus records the most recent runtime event status observed for
// this container, keeping the last two in arrival order.
func (w *Worker) PushStatus(status string) {
	w.recentMu.Lock()
	defer w.recentMu.Unlock()
	w.recentStatus[0] = w.recentStatus[1]
	w.recentStatus[1] = status
}

// RecentStatus returns the last two observed statuses, oldest first.
func (w *Worker) RecentStatus() [2]string {
	w.recentMu.Lock()
	defer w.recentMu.Unlock()
	return w.recentStatus
}

// Idle reports whether this worker can be retired right now, and if so
// enqueues the shutdown sentinel atomically with that observation. This
// two-level locking discipline ensures the GC never observes a transient
// empty-but-not-done window.
func (w *Worker) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Mailbox.Empty() && w.done.Load() {
		w.Mailbox.Set(mailbox.Shutdown)
		return true
	}
	return false
}

func (w *Worker) run() {
	for {
		request, ok := w.waitForRequest()
		if !ok {
			w.log.Infof("worker for container %s is shutting down", w.Name)
			return
		}
		w.attempt(request)
		w.done.Store(true)
	}
}

// waitForRequest polls the mailbox with get_nowait semantics rather than
// blocking, so the GC can observe idleness between polls.
func (w *Worker) waitForRequest() (time.Time, bool) {
	for {
		time.Sleep(pollInterval)
		w.mu.Lock()
		payload, ok := w.Mailbox.GetNowait()
		if !ok {
			w.mu.Unlock()
			continue
		}
		if payload == mailbox.Shutdown {
			w.done.Store(true)
			w.mu.Unlock()
			return time.Time{}, false
		}
		w.done.Store(false)
		w.mu.Unlock()
		requestTime, _ := payload.(time.Time)
		return requestTime, true
	}
}

func (w *Worker) attempt(requestTime time.Time) {
	err := w.restartOnce(context.Background(), requestTime)
	if err == nil {
		return
	}
	var classified *errs.Classified
	if errors.As(err, &classified) {
		w.log.Infof("can't/won't restart container %s. Reason: %v", w.Name, classified)
		return
	}
	w.fatal <- &errs.Fatal{Actor: fmt.Sprintf("worker-%s", w.Name), Cause: err}
}

// restartOnce executes exactly one restart attempt.
func (w *Worker) restartOnce(ctx context.Context, requestTime time.Time) error {
	snap, err := w.rt.Inspect(ctx, w.Name)
	if err != nil {
		var nf *runtime.NotFoundError
		if errors.As(err, &nf) {
			return errs.Classify(fmt.Sprintf("container %s doesn't exist anymore", w.Name))
		}
		return err
	}

	if snap.State.StartedAt.After(requestTime) {
		return errs.Classify(fmt.Sprintf("container %s has already been restarted", w.Name))
	}

	settings := w.resolver.Resolve(snap.ID, snap.Name, snap.Labels)

	count := w.restartCount.Add(1)
	if settings.MaxRetries != config.Unlimited && int(count) > settings.MaxRetries {
		return errs.Classify(fmt.Sprintf(
			"container %s has reached the maximum number of restart attempts (%d)", w.Name, settings.MaxRetries))
	}
	w.log.Infof("attempt #%d for container %s", count, w.Name)

	if err := w.waitOutBackoff(snap, settings, int(count)); err != nil {
		return err
	}

	if !strings.HasPrefix(snap.NetworkMode, "container:") {
		return w.restartInPlace(ctx, snap)
	}

	dependencyID := strings.TrimPrefix(snap.NetworkMode, "container:")
	if _, err := w.rt.Inspect(ctx, dependencyID); err == nil {
		return w.restartInPlace(ctx, snap)
	}

	return w.recreate(ctx, snap, settings)
}

func (w *Worker) waitOutBackoff(snap runtime.Snapshot, settings config.Container, count int) error {
	delay := computeDelaySeconds(settings, count)
	target := snap.State.StartedAt.Add(time.Duration(delay) * time.Second)
	remaining := time.Until(target)
	if remaining <= 0 {
		return nil
	}
	waitSeconds := int(math.Ceil(remaining.Seconds()))
	w.log.Infof("waiting %d seconds before taking any action on container %s", waitSeconds, w.Name)
	time.Sleep(time.Duration(waitSeconds) * time.Second)
	return nil
}

// computeDelaySeconds computes the delay before the next restart attempt,
// given the configured backoff strategy and the attempt count so far.
func computeDelaySeconds(s config.Container, count int) int {
	switch s.Backoff {
	case config.BackoffLinear:
		return capAt(s.SecondsBetweenRetries*count, s.BackoffMaxSeconds)
	case config.BackoffExponential:
		return capAt(s.SecondsBetweenRetries*pow2(count), s.BackoffMaxSeconds)
	default:
		return s.SecondsBetweenRetries
	}
}

func capAt(v, max int) int {
	if v > max {
		return max
	}
	return v
}

func pow2(n int) int {
	if n < 0 {
		return 1
	}
	if n >= 62 {
		return 1 << 62
	}
	return 1 << uint(n)
}

func (w *Worker) restartInPlace(ctx context.Context, snap runtime.Snapshot) error {
	w.log.Infof("restarting container %s", w.Name)
	if err := w.rt.Restart(ctx, snap.ID); err != nil {
		return errs.Classifyf(err, "failed to restart container %s", w.Name)
	}
	return nil
}

// recreate handles the case where the namespace parent is gone: the
// container must be removed and re-run against a freshly resolved parent.
func (w *Worker) recreate(ctx context.Context, snap runtime.Snapshot, settings config.Container) error {
	if settings.NetworkMode == "" {
		return errs.Classify(fmt.Sprintf(
			"label restarter.network_mode is required in order to recreate container %s", w.Name))
	}

	listing, err := w.rt.ListAll(ctx)
	if err != nil {
		return err
	}
	idx := runtime.BuildIndex(listing)

	parent, ok := runtime.ResolveSpecifier(snap, settings.NetworkMode, idx)
	if !ok {
		return errs.Classify(fmt.Sprintf(
			"could not find any container matching restarter.network_mode=%s", settings.NetworkMode))
	}

	args, err := w.rt.DeriveRunArgs(ctx, snap, parent.ID)
	if err != nil {
		return err
	}

	w.log.Infof("removing container %s", w.Name)
	if err := w.rt.Remove(ctx, snap.ID); err != nil {
		var nf *runtime.NotFoundError
		if errors.As(err, &nf) {
			return errs.Classify(fmt.Sprintf("container %s doesn't exist anymore", w.Name))
		}
		return err
	}

	w.log.Infof("recreating container %s", w.Name)
	if _, err := w.rt.Run(ctx, args); err != nil {
		var conflict *runtime.NameConflictError
		if errors.As(err, &conflict) {
			return errs.Classify(fmt.Sprintf(
				"container %s has already been restarted by an external program", w.Name))
		}
		return err
	}
	return nil
}
