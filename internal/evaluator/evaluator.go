// Package evaluator implements the poller: it computes, on each pass, the
// set of containers that need to be restarted given a full runtime
// snapshot plus declared dependencies, and dispatches timestamped
// requests to the worker registry.
package evaluator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cascandaliato/restarter/internal/config"
	"github.com/cascandaliato/restarter/internal/errs"
	"github.com/cascandaliato/restarter/internal/logging"
	"github.com/cascandaliato/restarter/internal/mailbox"
	"github.com/cascandaliato/restarter/internal/registry"
	"github.com/cascandaliato/restarter/internal/runtime"
)

var log = logging.New("evaluator")

// Evaluator runs the periodic/event-driven evaluation pass.
type Evaluator struct {
	rt        runtime.Adapter
	resolver  *config.Resolver
	reg       *registry.Registry
	trigger   *mailbox.Mailbox
	proc      config.Process
	fatal     chan<- error
	dumpGraph bool
}

// New constructs an Evaluator. trigger is the shared "please evaluate"
// signal that both the event handler and the internal timer raise.
func New(rt runtime.Adapter, resolver *config.Resolver, reg *registry.Registry, trigger *mailbox.Mailbox, proc config.Process, fatal chan<- error, dumpGraph bool) *Evaluator {
	return &Evaluator{rt: rt, resolver: resolver, reg: reg, trigger: trigger, proc: proc, fatal: fatal, dumpGraph: dumpGraph}
}

// Run drives the evaluator loop until ctx is cancelled: wait on the
// trigger, execute one pass, sleep check_min_frequency_seconds as a lower
// bound on pass rate, repeat. A companion timer re-trips the trigger every
// check_max_frequency_seconds to guarantee progress absent events.
func (e *Evaluator) Run(ctx context.Context) {
	go e.timerLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.trigger.Get()

		if err := e.pass(ctx); err != nil {
			e.fatal <- &errs.Fatal{Actor: "evaluator", Cause: err}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(e.proc.CheckMinFrequencySeconds) * time.Second):
		}
	}
}

func (e *Evaluator) timerLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(e.proc.CheckMaxFrequencySeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.trigger.Set(nil)
		}
	}
}

// pass executes exactly one evaluation pass. Each pass gets a short
// correlation id so its log lines can be grepped out of a busy daemon log
// as one unit.
func (e *Evaluator) pass(ctx context.Context) error {
	start := time.Now()
	passID := uuid.New().String()[:8]
	log.Infof("[%s] checking containers... starting", passID)

	containers, err := e.rt.ListAll(ctx)
	if err != nil {
		return err
	}

	idx := runtime.BuildIndex(containers)
	toRestart := map[string]bool{}
	var edges []runtime.GraphEdge

	for _, container := range containers {
		settings := e.resolver.Resolve(container.ID, container.Name, container.Labels)
		if !settings.Enable {
			continue
		}

		if hasPolicy(settings.Policy, config.PolicyUnhealthy) && container.State.Health == runtime.HealthUnhealthy {
			log.Infof("[%s] container %s is in unhealthy state", passID, container.Name)
			toRestart[container.Name] = true
		}

		if !hasPolicy(settings.Policy, config.PolicyDependency) {
			continue
		}

		dependencies := e.dependencies(container, settings, idx, &edges)
		for _, dependency := range dependencies {
			switch {
			case dependency.State.Health == runtime.HealthUnhealthy || dependency.State.Status != "running":
				log.Infof("[%s] container %s is unhealthy or not running and container %s depends on it",
					passID, dependency.Name, container.Name)
				toRestart[dependency.Name] = true
			case container.State.StartedAt.Before(dependency.State.StartedAt) || container.State.StartedAt.Equal(dependency.State.StartedAt):
				log.Infof("[%s] container %s has been started before its dependency %s", passID, container.Name, dependency.Name)
				toRestart[container.Name] = true
			}
		}
	}

	if e.dumpGraph && len(edges) > 0 {
		if out, err := runtime.DumpGraph(edges); err == nil {
			log.Infof("dependency graph:\n%s", out)
		}
	}

	now := time.Now()
	for name := range toRestart {
		e.reg.Deliver(name, now)
	}

	log.Infof("[%s] checking containers... done (%s)", passID, time.Since(start).Round(time.Millisecond))
	return nil
}

// dependencies computes the union of four sources: the shared
// network-namespace parent, the compose depends_on label, the
// restarter.depends_on setting, and the restarter.network_mode setting
// (used, here, as one more specifier rather than the recreate target it
// is at worker time).
func (e *Evaluator) dependencies(container runtime.Snapshot, settings config.Container, idx *runtime.Index, edges *[]runtime.GraphEdge) []runtime.Snapshot {
	seen := map[string]bool{}
	var out []runtime.Snapshot
	add := func(s runtime.Snapshot, source string) {
		if s.ID == "" || seen[s.ID] {
			return
		}
		seen[s.ID] = true
		out = append(out, s)
		if e.dumpGraph {
			*edges = append(*edges, runtime.GraphEdge{Depender: container.Name, Dependency: s.Name, Source: source})
		}
	}

	// (a) shared network-namespace parent.
	const containerPrefix = "container:"
	if len(container.NetworkMode) > len(containerPrefix) && container.NetworkMode[:len(containerPrefix)] == containerPrefix {
		depID := container.NetworkMode[len(containerPrefix):]
		if dep, ok := idx.ByID[depID]; ok {
			add(dep, "network_mode")
		}
	}

	// (b) compose com.docker.compose.depends_on label.
	if raw, ok := container.Labels[runtime.ComposeDependsOn]; ok {
		for _, service := range runtime.ComposeDependsOnServices(raw) {
			if dep, ok := idx.ByService[service]; ok {
				add(dep, "compose.depends_on")
			}
		}
	}

	// (c) restarter.depends_on and restarter.network_mode settings.
	specifiers := runtime.SplitSpecifiers(settings.DependsOn)
	if settings.NetworkMode != "" {
		specifiers = append(specifiers, settings.NetworkMode)
	}
	for _, specifier := range specifiers {
		if dep, ok := runtime.ResolveSpecifier(container, specifier, idx); ok {
			add(dep, "restarter.depends_on")
		}
	}

	return out
}

func hasPolicy(policies []config.Policy, p config.Policy) bool {
	for _, x := range policies {
		if x == p {
			return true
		}
	}
	return false
}
