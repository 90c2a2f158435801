package runtime

import "strings"

// Compose labels honored read-only.
const (
	ComposeService   = "com.docker.compose.service"
	ComposeDependsOn = "com.docker.compose.depends_on"
)

// Index groups a full container listing by id, name, and compose service,
// built fresh once per evaluation pass or worker resolution. When more
// than one container carries the same service label, the last one seen
// wins, mirroring the original implementation's index-overwrite behavior.
type Index struct {
	ByID      map[string]Snapshot
	ByName    map[string]Snapshot
	ByService map[string]Snapshot
}

// BuildIndex builds an Index from a full container listing.
func BuildIndex(snapshots []Snapshot) *Index {
	idx := &Index{
		ByID:      map[string]Snapshot{},
		ByName:    map[string]Snapshot{},
		ByService: map[string]Snapshot{},
	}
	for _, s := range snapshots {
		idx.ByID[s.ID] = s
		idx.ByName[s.Name] = s
		if service, ok := s.Labels[ComposeService]; ok && service != "" {
			idx.ByService[service] = s
		}
	}
	return idx
}

// ResolveSpecifier resolves one specifier of the following grammar:
//
//	container:<name>  by container name
//	service:<name>    by compose service
//	<bare>             by service if depender carries a compose service
//	                   label, else by container name
func ResolveSpecifier(depender Snapshot, specifier string, idx *Index) (Snapshot, bool) {
	specifier = strings.TrimSpace(specifier)
	if specifier == "" {
		return Snapshot{}, false
	}
	switch {
	case strings.HasPrefix(specifier, "container:"):
		name := strings.TrimPrefix(specifier, "container:")
		s, ok := idx.ByName[name]
		return s, ok
	case strings.HasPrefix(specifier, "service:"):
		service := strings.TrimPrefix(specifier, "service:")
		s, ok := idx.ByService[service]
		return s, ok
	default:
		if _, hasService := depender.Labels[ComposeService]; hasService {
			s, ok := idx.ByService[specifier]
			return s, ok
		}
		s, ok := idx.ByName[specifier]
		return s, ok
	}
}

// SplitSpecifiers splits a comma-separated specifier list as used by
// depends_on and com.docker.compose.depends_on, dropping empty entries.
func SplitSpecifiers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ComposeDependsOnServices extracts the dependee service names from a
// com.docker.compose.depends_on label value, whose entries look like
// "service:condition:required".
func ComposeDependsOnServices(raw string) []string {
	var out []string
	for _, entry := range SplitSpecifiers(raw) {
		service := strings.SplitN(entry, ":", 2)[0]
		if service != "" {
			out = append(out, service)
		}
	}
	return out
}
