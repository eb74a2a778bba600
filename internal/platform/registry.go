package platform

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DiscoveryMode describes how a platform's discovery stage behaves.
type DiscoveryMode string

const (
	// ModeKeyword providers return final content directly from a keyword
	// discovery job; no fetch stage is needed.
	ModeKeyword DiscoveryMode = "keyword"

	// ModeSearch providers return only a candidate URL list; the fetch
	// stage downloads the actual content.
	ModeSearch DiscoveryMode = "search"
)

// Spec describes one platform's collector dataset.
type Spec struct {
	Name       string        `yaml:"name"`
	Dataset    string        `yaml:"dataset"`
	Mode       DiscoveryMode `yaml:"mode"`
	FetchLimit int           `yaml:"fetch_limit"`
}

// Registry maps platform names to their specs, preserving no order:
// campaigns carry their own ordered platform list.
type Registry struct {
	specs map[string]Spec
}

// LoadRegistry reads the platform registry from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "platform: read registry %s", path)
	}

	var wrapper struct {
		Platforms []Spec `yaml:"platforms"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "platform: parse registry")
	}

	return NewRegistry(wrapper.Platforms...), nil
}

// NewRegistry builds a registry from specs. Specs with an empty mode
// default to search; specs with no fetch limit default to 50.
func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if s.Mode == "" {
			s.Mode = ModeSearch
		}
		if s.FetchLimit <= 0 {
			s.FetchLimit = 50
		}
		r.specs[s.Name] = s
	}
	return r
}

// Get returns the spec for a platform name.
func (r *Registry) Get(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names returns every registered platform name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	return names
}
