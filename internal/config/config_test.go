package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascandaliato/restarter/internal/config"
)

func TestParsePoliciesDeduplicatesAndSorts(t *testing.T) {
	got := config.ParsePolicies("unhealthy,dependency,unhealthy")
	require.Len(t, got, 2)
	assert.Equal(t, config.PolicyDependency, got[0])
	assert.Equal(t, config.PolicyUnhealthy, got[1])
}

func TestParsePoliciesIgnoresUnknown(t *testing.T) {
	got := config.ParsePolicies("unhealthy,bogus")
	require.Len(t, got, 1)
	assert.Equal(t, config.PolicyUnhealthy, got[0])
}

func TestFromLabelsDefaults(t *testing.T) {
	proc := config.Process{EnableDefault: true}
	c := config.FromLabels(nil, proc)
	assert.True(t, c.Enable)
	assert.Equal(t, config.Unlimited, c.MaxRetries)
	assert.Equal(t, config.BackoffNone, c.Backoff)
	assert.Equal(t, 30, c.SecondsBetweenRetries)
}

func TestFromLabelsOverrides(t *testing.T) {
	proc := config.Process{EnableDefault: true}
	labels := map[string]string{
		"restarter.enable":                  "no",
		"restarter.depends_on":              "service:db,container:cache",
		"restarter.network_mode":            "service:vpn",
		"restarter.policy":                  "unhealthy",
		"restarter.max_retries":             "unlimited",
		"restarter.backoff":                 "exponential",
		"restarter.seconds_between_retries": "15",
		"restarter.backoff_max_seconds":     "120",
	}
	c := config.FromLabels(labels, proc)
	assert.False(t, c.Enable)
	assert.Equal(t, "service:db,container:cache", c.DependsOn)
	assert.Equal(t, "service:vpn", c.NetworkMode)
	assert.Equal(t, []config.Policy{config.PolicyUnhealthy}, c.Policy)
	assert.Equal(t, config.Unlimited, c.MaxRetries)
	assert.Equal(t, config.BackoffExponential, c.Backoff)
	assert.Equal(t, 15, c.SecondsBetweenRetries)
	assert.Equal(t, 120, c.BackoffMaxSeconds)
}

func TestFromLabelsMaxRetriesNumeric(t *testing.T) {
	c := config.FromLabels(map[string]string{"restarter.max_retries": "3"}, config.Process{})
	assert.Equal(t, 3, c.MaxRetries)
}

func TestResolverMemoizesByIDAndName(t *testing.T) {
	r := config.NewResolver(config.Process{EnableDefault: true}, 10)

	first := r.Resolve("id1", "web", map[string]string{"restarter.max_retries": "5"})
	assert.Equal(t, 5, first.MaxRetries)

	// Changing labels after the first resolution must not affect the memoized value.
	second := r.Resolve("id1", "web", map[string]string{"restarter.max_retries": "99"})
	assert.Equal(t, 5, second.MaxRetries, "memoized settings should not change on subsequent lookups")

	// A different id (e.g. after recreation) invalidates the memo.
	third := r.Resolve("id2", "web", map[string]string{"restarter.max_retries": "99"})
	assert.Equal(t, 99, third.MaxRetries)
}
