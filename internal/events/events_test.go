package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascandaliato/restarter/internal/config"
	"github.com/cascandaliato/restarter/internal/mailbox"
	"github.com/cascandaliato/restarter/internal/registry"
	"github.com/cascandaliato/restarter/internal/runtime"
)

type stubAdapter struct{}

func (stubAdapter) ListAll(ctx context.Context) ([]runtime.Snapshot, error) { return nil, nil }
func (stubAdapter) Inspect(ctx context.Context, idOrName string) (runtime.Snapshot, error) {
	return runtime.Snapshot{}, &runtime.NotFoundError{ID: idOrName}
}
func (stubAdapter) Events(ctx context.Context) (<-chan runtime.Event, <-chan error) {
	return nil, nil
}
func (stubAdapter) Restart(ctx context.Context, idOrName string) error { return nil }
func (stubAdapter) Remove(ctx context.Context, idOrName string) error  { return nil }
func (stubAdapter) Run(ctx context.Context, args runtime.RunArgs) (string, error) {
	return "", nil
}
func (stubAdapter) DeriveRunArgs(ctx context.Context, snapshot runtime.Snapshot, newParentID string) (runtime.RunArgs, error) {
	return runtime.RunArgs{}, nil
}

func newTestHandler() (*Handler, *registry.Registry, *mailbox.Mailbox) {
	resolver := config.NewResolver(config.Process{EnableDefault: true}, 10)
	fatal := make(chan error, 1)
	reg := registry.New(stubAdapter{}, resolver, fatal)
	trigger := mailbox.New()
	return New(stubAdapter{}, reg, trigger, fatal), reg, trigger
}

func TestHandleTripsTriggerForMonitoredEvent(t *testing.T) {
	h, reg, trigger := newTestHandler()

	h.handle(runtime.Event{Status: "start", ID: "abc123", Name: "web"})

	_, ok := trigger.GetNowait()
	assert.True(t, ok, "a monitored event must trip the evaluator trigger")
	assert.Equal(t, 1, reg.Len(), "handler must register a worker for the container so PushStatus has somewhere to land")
}

func TestHandleIgnoresUnmonitoredEvent(t *testing.T) {
	h, reg, trigger := newTestHandler()

	h.handle(runtime.Event{Status: "exec_create", ID: "abc123", Name: "web"})

	_, ok := trigger.GetNowait()
	assert.False(t, ok, "an unmonitored event must not trip the trigger")
	assert.Equal(t, 0, reg.Len())
}

func TestHandleRecordsRecentStatus(t *testing.T) {
	h, reg, _ := newTestHandler()

	h.handle(runtime.Event{Status: "die", ID: "abc123", Name: "web"})

	w := reg.GetOrCreate("web")
	require.Equal(t, "die", w.RecentStatus()[1])
}
