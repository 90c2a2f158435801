// Package config resolves process-wide settings from the environment and
// per-container settings from container labels. Per-container resolution
// is memoized by (id, name) in a bounded LRU, mirroring the teacher's
// plain struct-literal configuration style (task.Config) rather than any
// flag/env framework.
package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cascandaliato/restarter/internal/logging"
)

const (
	envPrefix   = "RESTARTER_"
	labelPrefix = "restarter."
)

var log = logging.New("config")

// Policy is one of the additive restart policies a container can enable.
type Policy int

const (
	PolicyDependency Policy = iota
	PolicyUnhealthy
)

func (p Policy) String() string {
	switch p {
	case PolicyDependency:
		return "dependency"
	case PolicyUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func parsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dependency":
		return PolicyDependency, nil
	case "unhealthy":
		return PolicyUnhealthy, nil
	default:
		return 0, fmt.Errorf("unknown policy %q", s)
	}
}

// ParsePolicies parses a comma-separated policy list, deduplicating and
// sorting by ordinal for a stable, order-independent result.
func ParsePolicies(s string) []Policy {
	seen := map[Policy]bool{}
	var out []Policy
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := parsePolicy(part)
		if err != nil {
			log.Warnf("ignoring %v", err)
			continue
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Backoff selects how the delay between successive restart attempts grows.
type Backoff string

const (
	BackoffNone        Backoff = "none"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

func parseBackoff(s string) Backoff {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear":
		return BackoffLinear
	case "exponential":
		return BackoffExponential
	default:
		return BackoffNone
	}
}

// Unlimited is the sentinel MaxRetries value meaning "never give up": the
// largest representable positive integer.
const Unlimited = math.MaxInt

// Process holds process-wide settings sourced from RESTARTER_* env vars.
type Process struct {
	CheckMinFrequencySeconds int
	CheckMaxFrequencySeconds int
	GCEverySeconds           int
	EnableDefault            bool
}

func toBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "true"
}

func envString(name, def string) string {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := envString(name, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("invalid integer for %s%s=%q, using default %d", envPrefix, name, v, def)
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v := envString(name, "")
	if v == "" {
		return def
	}
	return toBool(v)
}

// LoadProcess resolves process-wide settings from the environment.
func LoadProcess() Process {
	return Process{
		CheckMinFrequencySeconds: envInt("CHECK_MIN_FREQUENCY_SECONDS", 15),
		CheckMaxFrequencySeconds: envInt("CHECK_MAX_FREQUENCY_SECONDS", 60),
		GCEverySeconds:           envInt("GC_EVERY_SECONDS", 60),
		EnableDefault:            envBool("ENABLE", true),
	}
}

// Container holds per-container settings resolved from labels, defaulting
// to process-wide values for anything the container does not override.
type Container struct {
	Enable                bool
	DependsOn             string
	NetworkMode           string
	Policy                []Policy
	MaxRetries            int
	Backoff               Backoff
	SecondsBetweenRetries int
	BackoffMaxSeconds     int
}

// containerDefaults returns the process-wide defaults for per-container
// settings: Enable from proc, the rest from the matching RESTARTER_* env
// vars, falling back to built-in values when those are unset.
func containerDefaults(proc Process) Container {
	return Container{
		Enable:                proc.EnableDefault,
		DependsOn:             envString("DEPENDS_ON", ""),
		NetworkMode:           envString("NETWORK_MODE", ""),
		Policy:                ParsePolicies(envString("POLICY", "unhealthy,dependency")),
		MaxRetries:            parseMaxRetries(envString("MAX_RETRIES", "unlimited")),
		Backoff:               parseBackoff(envString("BACKOFF", string(BackoffNone))),
		SecondsBetweenRetries: envInt("SECONDS_BETWEEN_RETRIES", 30),
		BackoffMaxSeconds:     envInt("BACKOFF_MAX_SECONDS", 10*60),
	}
}

// FromLabels resolves per-container settings from a container's labels,
// falling back to proc's defaults for anything absent.
func FromLabels(labels map[string]string, proc Process) Container {
	c := containerDefaults(proc)

	if v, ok := label(labels, "enable"); ok {
		c.Enable = toBool(v)
	}
	if v, ok := label(labels, "depends_on"); ok {
		c.DependsOn = v
	}
	if v, ok := label(labels, "network_mode"); ok {
		c.NetworkMode = v
	}
	if v, ok := label(labels, "policy"); ok {
		c.Policy = ParsePolicies(v)
	}
	if v, ok := label(labels, "max_retries"); ok {
		c.MaxRetries = parseMaxRetries(v)
	}
	if v, ok := label(labels, "backoff"); ok {
		c.Backoff = parseBackoff(v)
	}
	if v, ok := label(labels, "seconds_between_retries"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.SecondsBetweenRetries = n
		}
	}
	if v, ok := label(labels, "backoff_max_seconds"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.BackoffMaxSeconds = n
		}
	}
	return c
}

func label(labels map[string]string, name string) (string, bool) {
	v, ok := labels[labelPrefix+name]
	return v, ok
}

func parseMaxRetries(s string) int {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unlimited") {
		return Unlimited
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Unlimited
	}
	return n
}

// memoKey identifies a container for settings memoization. Recreation
// changes id, which automatically invalidates stale entries.
type memoKey struct {
	id   string
	name string
}

// Resolver memoizes per-container settings resolution, bounded to avoid
// unbounded growth under container churn.
type Resolver struct {
	proc  Process
	cache *lru.Cache[memoKey, Container]
}

// NewResolver creates a Resolver bounded to size entries.
func NewResolver(proc Process, size int) *Resolver {
	cache, err := lru.New[memoKey, Container](size)
	if err != nil {
		// size <= 0, which never happens with our fixed caller; fall back.
		cache, _ = lru.New[memoKey, Container](1)
	}
	return &Resolver{proc: proc, cache: cache}
}

// Resolve returns the memoized settings for (id, name), resolving and
// logging them on first lookup.
func (r *Resolver) Resolve(id, name string, labels map[string]string) Container {
	key := memoKey{id: id, name: name}
	if c, ok := r.cache.Get(key); ok {
		return c
	}
	c := FromLabels(labels, r.proc)
	r.cache.Add(key, c)
	log.Infof("resolved settings for container %s (%s): enable=%v policy=%v max_retries=%v backoff=%v",
		name, shortID(id), c.Enable, c.Policy, maxRetriesLabel(c.MaxRetries), c.Backoff)
	return c
}

func maxRetriesLabel(n int) string {
	if n == Unlimited {
		return "unlimited"
	}
	return strconv.Itoa(n)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
