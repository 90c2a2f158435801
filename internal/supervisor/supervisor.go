// Package supervisor wires the daemon's actors together and owns fatal
// error propagation: any actor that hits an unrecoverable error forwards it
// here, and the supervisor logs it and exits the process.
package supervisor

import (
	"context"
	"errors"

	"github.com/cascandaliato/restarter/internal/config"
	"github.com/cascandaliato/restarter/internal/errs"
	"github.com/cascandaliato/restarter/internal/evaluator"
	"github.com/cascandaliato/restarter/internal/events"
	"github.com/cascandaliato/restarter/internal/gc"
	"github.com/cascandaliato/restarter/internal/logging"
	"github.com/cascandaliato/restarter/internal/mailbox"
	"github.com/cascandaliato/restarter/internal/registry"
	"github.com/cascandaliato/restarter/internal/runtime"
)

var log = logging.New("supervisor")

// memoSize bounds the per-container settings memo.
const memoSize = 100

// Options configures the supervisor at startup.
type Options struct {
	DumpGraph bool
}

// Run wires every actor (event handler, evaluator, its timer, the GC, and
// one worker per live container name) and blocks until ctx is cancelled or
// a fatal error is reported, returning that error.
func Run(ctx context.Context, rt runtime.Adapter, opts Options) error {
	proc := config.LoadProcess()
	resolver := config.NewResolver(proc, memoSize)

	fatal := make(chan error, 1)
	trigger := mailbox.New()
	reg := registry.New(rt, resolver, fatal)

	eval := evaluator.New(rt, resolver, reg, trigger, proc, fatal, opts.DumpGraph)
	handler := events.New(rt, reg, trigger, fatal)

	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go handler.Run(childCtx)
	go eval.Run(childCtx)
	go gc.Run(childCtx, reg, proc.GCEverySeconds)

	// The first pass shouldn't wait for an event or the max-frequency timer.
	trigger.Set(nil)

	select {
	case <-childCtx.Done():
		return childCtx.Err()
	case err := <-fatal:
		var fe *errs.Fatal
		if errors.As(err, &fe) {
			log.Errorf("fatal error in %s: %v", fe.Actor, fe.Cause)
		} else {
			log.Errorf("fatal error: %v", err)
		}
		return err
	}
}
