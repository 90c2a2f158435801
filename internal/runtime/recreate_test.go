package runtime

import (
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/stretchr/testify/assert"
)

// These exercise the pure field-derivation helpers behind DeriveRunArgs in
// isolation, since the adapter itself talks to a live Docker client with no
// mock seam. Together they cover the idempotence contract: fields absent
// from the image pass through verbatim, fields identical to the image are
// omitted.

func TestSubtractEnvOmitsImageDefinedEntries(t *testing.T) {
	got := subtractEnv([]string{"PATH=/usr/bin", "FOO=bar"}, []string{"PATH=/usr/bin"})
	assert.Equal(t, []string{"FOO=bar"}, got)
}

func TestSubtractEnvPassesThroughWhenImageDefinesNone(t *testing.T) {
	env := []string{"FOO=bar"}
	got := subtractEnv(env, nil)
	assert.Equal(t, env, got)
}

func TestSubtractLabelsOmitsMatchingLabels(t *testing.T) {
	got := subtractLabels(
		map[string]string{"a": "1", "b": "2"},
		map[string]string{"a": "1"},
	)
	assert.Equal(t, map[string]string{"b": "2"}, got)
}

func TestSubtractLabelsPassesThroughWhenImageDefinesNone(t *testing.T) {
	labels := map[string]string{"a": "1"}
	got := subtractLabels(labels, nil)
	assert.Equal(t, labels, got)
}

func TestEqualStrings(t *testing.T) {
	assert.True(t, equalStrings([]string{"a", "b"}, []string{"a", "b"}))
	assert.False(t, equalStrings([]string{"a"}, []string{"a", "b"}))
	assert.False(t, equalStrings([]string{"a", "b"}, []string{"a", "c"}))
}

func TestDropImageVolumesRemovesMatchingTargets(t *testing.T) {
	mounts := []mount.Mount{
		{Target: "/data"},
		{Target: "/cache"},
	}
	got := dropImageVolumes(mounts, map[string]struct{}{"/data": {}})
	assert.Equal(t, []mount.Mount{{Target: "/cache"}}, got)
}

func TestDropImageVolumesPassesThroughWhenImageDefinesNone(t *testing.T) {
	mounts := []mount.Mount{{Target: "/data"}}
	got := dropImageVolumes(mounts, nil)
	assert.Equal(t, mounts, got)
}

func TestCloneConfigIsIndependentOfSource(t *testing.T) {
	src := &container.Config{
		Env:    []string{"A=1"},
		Labels: map[string]string{"k": "v"},
	}
	clone := cloneConfig(src)
	clone.Env[0] = "MUTATED"
	clone.Labels["k"] = "mutated"

	assert.Equal(t, "A=1", src.Env[0], "cloning must not alias the source slice")
	assert.Equal(t, "v", src.Labels["k"], "cloning must not alias the source map")
}

func TestCloneHostConfigIsIndependentOfSource(t *testing.T) {
	src := &container.HostConfig{
		Binds:  []string{"/a:/a"},
		Mounts: []mount.Mount{{Target: "/data"}},
	}
	clone := cloneHostConfig(src)
	clone.Binds[0] = "MUTATED"
	clone.Mounts[0].Target = "MUTATED"

	assert.Equal(t, "/a:/a", src.Binds[0])
	assert.Equal(t, "/data", src.Mounts[0].Target)
}
