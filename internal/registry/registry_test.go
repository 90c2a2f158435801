package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascandaliato/restarter/internal/config"
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

func newTestRegistry() *registry.Registry {
	resolver := config.NewResolver(config.Process{EnableDefault: true}, 10)
	fatal := make(chan error, 1)
	return registry.New(stubAdapter{}, resolver, fatal)
}

func TestGetOrCreateReturnsSameWorkerForRepeatedLookups(t *testing.T) {
	reg := newTestRegistry()
	w1 := reg.GetOrCreate("web")
	w2 := reg.GetOrCreate("web")
	assert.Same(t, w1, w2)
	assert.Equal(t, 1, reg.Len())
}

func TestDeliverCreatesWorkerIfAbsent(t *testing.T) {
	reg := newTestRegistry()
	reg.Deliver("web", time.Now())
	assert.Equal(t, 1, reg.Len())
}

func TestRetireIdleRemovesFreshlyCreatedIdleWorker(t *testing.T) {
	reg := newTestRegistry()
	reg.GetOrCreate("web") // done=true, mailbox empty: idle from the moment it's created.

	retired := reg.RetireIdle()
	require.Equal(t, []string{"web"}, retired)
	assert.Equal(t, 0, reg.Len())
}

func TestRetireIdleKeepsWorkerWithPendingRequest(t *testing.T) {
	reg := newTestRegistry()
	reg.Deliver("web", time.Now())

	reg.RetireIdle()
	assert.Equal(t, 1, reg.Len(), "a worker with an undelivered request must not be retired")
}
