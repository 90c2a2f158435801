// Package events implements the event handler: it subscribes to the
// runtime event stream and trips the evaluator's trigger signal. Events
// never directly enqueue restart requests, they only provoke a full
// evaluation.
package events

import (
	"context"

	"github.com/cascandaliato/restarter/internal/errs"
	"github.com/cascandaliato/restarter/internal/logging"
	"github.com/cascandaliato/restarter/internal/mailbox"
	"github.com/cascandaliato/restarter/internal/registry"
	"github.com/cascandaliato/restarter/internal/runtime"
)

var log = logging.New("events")

// monitored is the subset of runtime events the handler reacts to.
var monitored = map[string]bool{
	"start":                    true,
	"health_status: unhealthy": true,
	"die":                      true,
}

// Handler consumes the runtime event stream and trips trigger on every
// qualifying event.
type Handler struct {
	rt      runtime.Adapter
	reg     *registry.Registry
	trigger *mailbox.Mailbox
	fatal   chan<- error
}

// New constructs a Handler.
func New(rt runtime.Adapter, reg *registry.Registry, trigger *mailbox.Mailbox, fatal chan<- error) *Handler {
	return &Handler{rt: rt, reg: reg, trigger: trigger, fatal: fatal}
}

// Run consumes the event stream until ctx is cancelled or the stream ends.
func (h *Handler) Run(ctx context.Context) {
	msgs, errCh := h.rt.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			h.fatal <- &errs.Fatal{Actor: "events", Cause: err}
			return
		case evt, ok := <-msgs:
			if !ok {
				return
			}
			h.handle(evt)
		}
	}
}

func (h *Handler) handle(evt runtime.Event) {
	if !monitored[evt.Status] {
		return
	}

	log.Infof("received a %q event for container %s (%s)", evt.Status, evt.Name, shortID(evt.ID))

	w := h.reg.GetOrCreate(evt.Name)
	w.PushStatus(evt.Status)

	h.trigger.Set(nil)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
