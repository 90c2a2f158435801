package runtime

import "gopkg.in/yaml.v3"

// GraphEdge is one depender->dependency edge for the optional
// dependency-graph dump logged on every evaluation pass, modeled on the
// legacy Python entrypoint's "Container X depends on service Y" startup log.
type GraphEdge struct {
	Depender   string `yaml:"depender"`
	Dependency string `yaml:"dependency"`
	Source     string `yaml:"source"`
}

// DumpGraph renders discovered dependency edges as YAML for the
// `--dump-graph` diagnostic flag.
func DumpGraph(edges []GraphEdge) (string, error) {
	out, err := yaml.Marshal(edges)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
