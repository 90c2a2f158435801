// Package gc implements the idle-worker garbage collector: periodically
// retire workers whose mailbox is empty and whose last action has
// settled.
package gc

import (
	"context"
	"time"

	"github.com/cascandaliato/restarter/internal/logging"
	"github.com/cascandaliato/restarter/internal/registry"
)

var log = logging.New("gc")

// Run periodically sweeps reg for idle workers until ctx is cancelled.
func Run(ctx context.Context, reg *registry.Registry, everySeconds int) {
	ticker := time.NewTicker(time.Duration(everySeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(reg)
		}
	}
}

func sweep(reg *registry.Registry) {
	start := time.Now()
	log.Infof("garbage collection... starting")

	retired := reg.RetireIdle()
	for _, name := range retired {
		log.Infof("worker for container %s is not required anymore", name)
	}

	log.Infof("garbage collection... done (%s)", time.Since(start).Round(time.Millisecond))
}
