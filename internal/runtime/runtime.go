// Package runtime is a thin facade over the container runtime client,
// grounded on the teacher's task.Docker wrapper around *client.Client. It
// owns list, inspect, events, restart, remove, run, and run-argument
// derivation. Connection details (socket/host discovery) are inherited
// from the client's own environment handling, exactly as task.Docker
// expects an already-constructed *client.Client.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/cascandaliato/restarter/internal/logging"
)

// Health mirrors the runtime's container health status.
type Health string

const (
	HealthNone      Health = ""
	HealthUnknown   Health = "unknown"
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
)

// State is the subset of a container's runtime state the core needs.
type State struct {
	Status    string
	Health    Health
	StartedAt time.Time
}

// Snapshot is a read-only view of one container at a point in time, valid
// only for the duration of one evaluation pass.
type Snapshot struct {
	ID          string
	Name        string
	Labels      map[string]string
	State       State
	NetworkMode string

	// Config and HostConfig carry every attribute the recreate path needs,
	// copied verbatim from the inspect response.
	Config     *container.Config
	HostConfig *container.HostConfig
}

// Event is a runtime event filtered to type=container.
type Event struct {
	Status string
	ID     string
	Name   string
}

// Adapter exposes the container-runtime operations the core depends on.
type Adapter interface {
	ListAll(ctx context.Context) ([]Snapshot, error)
	Inspect(ctx context.Context, idOrName string) (Snapshot, error)
	Events(ctx context.Context) (<-chan Event, <-chan error)
	Restart(ctx context.Context, idOrName string) error
	Remove(ctx context.Context, idOrName string) error
	Run(ctx context.Context, args RunArgs) (string, error)
	DeriveRunArgs(ctx context.Context, snapshot Snapshot, newParentID string) (RunArgs, error)
}

// dockerAdapter is the Adapter implementation backed by a real Docker
// client, the same shape as the teacher's task.Docker wrapping *client.Client.
type dockerAdapter struct {
	cli *client.Client
	log *logging.Logger
}

// New wraps cli as an Adapter.
func New(cli *client.Client) Adapter {
	return &dockerAdapter{cli: cli, log: logging.New("runtime")}
}

// NotFoundError reports that a container no longer exists.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("container %s not found", e.ID)
}

func toSnapshot(inspect containerInspect) Snapshot {
	health := HealthNone
	if inspect.State != nil && inspect.State.Health != nil {
		health = Health(inspect.State.Health.Status)
	}
	var startedAt time.Time
	if inspect.State != nil {
		startedAt, _ = time.Parse(time.RFC3339Nano, inspect.State.StartedAt)
	}
	status := ""
	if inspect.State != nil {
		status = inspect.State.Status
	}
	networkMode := ""
	if inspect.HostConfig != nil {
		networkMode = string(inspect.HostConfig.NetworkMode)
	}
	labels := map[string]string{}
	if inspect.Config != nil {
		labels = inspect.Config.Labels
	}
	return Snapshot{
		ID:     inspect.ID,
		Name:   trimSlash(inspect.Name),
		Labels: labels,
		State: State{
			Status:    status,
			Health:    health,
			StartedAt: startedAt,
		},
		NetworkMode: networkMode,
		Config:      inspect.Config,
		HostConfig:  inspect.HostConfig,
	}
}

func trimSlash(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}

// ListAll lists every container, including stopped ones, retrying
// indefinitely with a 1s delay on a transient NotFound error.
func (a *dockerAdapter) ListAll(ctx context.Context) ([]Snapshot, error) {
	for {
		summaries, err := a.cli.ContainerList(ctx, container.ListOptions{All: true})
		if err != nil {
			if client.IsErrNotFound(err) {
				a.log.Infof("failed to list containers, retrying in 1s: %v", err)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Second):
					continue
				}
			}
			return nil, err
		}

		snapshots := make([]Snapshot, 0, len(summaries))
		for _, s := range summaries {
			snap, err := a.Inspect(ctx, s.ID)
			if err != nil {
				if _, ok := err.(*NotFoundError); ok {
					continue
				}
				return nil, err
			}
			snapshots = append(snapshots, snap)
		}
		return snapshots, nil
	}
}

// containerInspect is the subset of the runtime's inspect response this
// adapter consumes; kept as an indirection point so tests can construct
// fixtures without a real client.
type containerInspect struct {
	ID         string
	Name       string
	State      *containerState
	HostConfig *container.HostConfig
	Config     *container.Config
}

type containerState struct {
	Status    string
	StartedAt string
	Health    *containerHealth
}

type containerHealth struct {
	Status string
}

func (a *dockerAdapter) Inspect(ctx context.Context, idOrName string) (Snapshot, error) {
	resp, err := a.cli.ContainerInspect(ctx, idOrName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return Snapshot{}, &NotFoundError{ID: idOrName}
		}
		return Snapshot{}, err
	}
	inspect := containerInspect{
		ID:         resp.ID,
		Name:       resp.Name,
		HostConfig: resp.HostConfig,
		Config:     resp.Config,
	}
	if resp.State != nil {
		inspect.State = &containerState{
			Status:    resp.State.Status,
			StartedAt: resp.State.StartedAt,
		}
		if resp.State.Health != nil {
			inspect.State.Health = &containerHealth{Status: resp.State.Health.Status}
		}
	}
	return toSnapshot(inspect), nil
}

func (a *dockerAdapter) Events(ctx context.Context) (<-chan Event, <-chan error) {
	out := make(chan Event)
	errCh := make(chan error, 1)

	msgs, errs := a.cli.Events(ctx, events.ListOptions{
		Filters: filters.NewArgs(filters.Arg("type", "container")),
	})

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errs:
				if !ok {
					return
				}
				errCh <- err
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				name := ""
				if m.Actor.Attributes != nil {
					name = m.Actor.Attributes["name"]
				}
				out <- Event{Status: string(m.Action), ID: m.Actor.ID, Name: name}
			}
		}
	}()

	return out, errCh
}

func (a *dockerAdapter) Restart(ctx context.Context, idOrName string) error {
	return a.cli.ContainerRestart(ctx, idOrName, container.StopOptions{})
}

func (a *dockerAdapter) Remove(ctx context.Context, idOrName string) error {
	err := a.cli.ContainerRemove(ctx, idOrName, container.RemoveOptions{Force: true})
	if err != nil && client.IsErrNotFound(err) {
		return &NotFoundError{ID: idOrName}
	}
	return err
}

// RunArgs is the set of arguments required to recreate a container,
// derived by DeriveRunArgs.
type RunArgs struct {
	Name       string
	Config     *container.Config
	HostConfig *container.HostConfig
}

// NameConflictError reports that Run failed because a container with the
// target name already exists.
type NameConflictError struct {
	Name string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("name %s is already in use by another container", e.Name)
}

func (a *dockerAdapter) Run(ctx context.Context, args RunArgs) (string, error) {
	resp, err := a.cli.ContainerCreate(ctx, args.Config, args.HostConfig, nil, nil, args.Name)
	if err != nil {
		if isNameConflict(err) {
			return "", &NameConflictError{Name: args.Name}
		}
		return "", err
	}
	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func isNameConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "is already in use by container") && strings.Contains(msg, "name")
}

func (a *dockerAdapter) inspectImage(ctx context.Context, imageRef string) (*container.Config, map[string]struct{}, error) {
	inspect, _, err := a.cli.ImageInspectWithRaw(ctx, imageRef)
	if err != nil {
		return nil, nil, err
	}
	var cfg *container.Config
	if inspect.Config != nil {
		cfg = &container.Config{
			Env:        inspect.Config.Env,
			Entrypoint: inspect.Config.Entrypoint,
			Cmd:        inspect.Config.Cmd,
			WorkingDir: inspect.Config.WorkingDir,
			Labels:     inspect.Config.Labels,
		}
	}
	var volumes map[string]struct{}
	if inspect.Config != nil {
		volumes = inspect.Config.Volumes
	}
	return cfg, volumes, nil
}
