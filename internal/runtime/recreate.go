package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
)

// DeriveRunArgs produces the arguments required to recreate snapshot,
// re-pointed at newParentID when it shares a network namespace. Every
// host-config and config field is preserved by construction (the
// Config/HostConfig are already complete, copied from inspect); this
// function applies only the following adjustments:
//
//   - subtract image-defined defaults (env entries present in the image,
//     entrypoint/cmd identical to the image, working directory identical
//     to the image, labels matching the image)
//   - substitute the new parent and clear the hostname when the original
//     network mode was container:<id>
//   - drop volumes defined by the image from the mounts list
func (a *dockerAdapter) DeriveRunArgs(ctx context.Context, snapshot Snapshot, newParentID string) (RunArgs, error) {
	if snapshot.Config == nil || snapshot.HostConfig == nil {
		return RunArgs{}, fmt.Errorf("snapshot for %s is missing config", snapshot.Name)
	}

	imageRef := snapshot.Config.Image
	imageCfg, imageVolumes, err := a.inspectImage(ctx, imageRef)
	if err != nil {
		return RunArgs{}, fmt.Errorf("inspecting image %s: %w", imageRef, err)
	}

	cfg := cloneConfig(snapshot.Config)
	hostCfg := cloneHostConfig(snapshot.HostConfig)

	if imageCfg != nil {
		cfg.Env = subtractEnv(cfg.Env, imageCfg.Env)

		if equalStrings(cfg.Entrypoint, imageCfg.Entrypoint) {
			cfg.Entrypoint = nil
			if equalStrings(cfg.Cmd, imageCfg.Cmd) {
				cfg.Cmd = nil
			}
		}

		if cfg.WorkingDir == imageCfg.WorkingDir {
			cfg.WorkingDir = ""
		}

		cfg.Labels = subtractLabels(cfg.Labels, imageCfg.Labels)
	}

	if strings.HasPrefix(string(hostCfg.NetworkMode), "container:") {
		hostCfg.NetworkMode = container.NetworkMode("container:" + newParentID)
		cfg.Hostname = ""
	}

	hostCfg.Mounts = dropImageVolumes(hostCfg.Mounts, imageVolumes)

	return RunArgs{Name: snapshot.Name, Config: cfg, HostConfig: hostCfg}, nil
}

func cloneConfig(c *container.Config) *container.Config {
	clone := *c
	clone.Env = append([]string(nil), c.Env...)
	clone.Cmd = append([]string(nil), c.Cmd...)
	clone.Entrypoint = append([]string(nil), c.Entrypoint...)
	clone.Labels = copyMap(c.Labels)
	return &clone
}

func cloneHostConfig(h *container.HostConfig) *container.HostConfig {
	clone := *h
	clone.Mounts = append([]mount.Mount(nil), h.Mounts...)
	clone.Binds = append([]string(nil), h.Binds...)
	return &clone
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func subtractEnv(env, imageEnv []string) []string {
	if len(imageEnv) == 0 {
		return env
	}
	present := map[string]bool{}
	for _, e := range imageEnv {
		present[e] = true
	}
	var out []string
	for _, e := range env {
		if !present[e] {
			out = append(out, e)
		}
	}
	return out
}

func subtractLabels(labels, imageLabels map[string]string) map[string]string {
	if len(imageLabels) == 0 {
		return labels
	}
	out := map[string]string{}
	for k, v := range labels {
		if iv, ok := imageLabels[k]; ok && iv == v {
			continue
		}
		out[k] = v
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// dropImageVolumes removes mounts whose target is declared as a volume by
// the image, since the image already provisions them.
func dropImageVolumes(mounts []mount.Mount, imageVolumes map[string]struct{}) []mount.Mount {
	if len(imageVolumes) == 0 {
		return mounts
	}
	var out []mount.Mount
	for _, m := range mounts {
		if _, isImageVolume := imageVolumes[m.Target]; isImageVolume {
			continue
		}
		out = append(out, m)
	}
	return out
}
