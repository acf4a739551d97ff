// Package sources implements the named repository sets the `query
// --scope set:<name>` command surface resolves against: a small,
// user-global registry mapping a name to one or more repository root
// paths, persisted the way internal/config persists its own YAML.
package sources

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	ierrors "github.com/aman-cerp/semindex/internal/errors"
)

// FileName is the registry's file name under a base directory.
const FileName = "sources.yaml"

// Set is one named, ordered, de-duplicated collection of repository root
// paths.
type Set struct {
	Name  string   `yaml:"name"`
	Paths []string `yaml:"paths"`
}

// Registry is the full set of named sources, keyed by name.
type Registry map[string]*Set

// path returns the registry file's location under baseDir.
func path(baseDir string) string {
	return filepath.Join(baseDir, FileName)
}

// Load reads the registry from baseDir, returning an empty Registry if
// none has been written yet.
func Load(baseDir string) (Registry, error) {
	data, err := os.ReadFile(path(baseDir))
	if err != nil {
		if os.IsNotExist(err) {
			return Registry{}, nil
		}
		return nil, ierrors.IOError(fmt.Sprintf("failed to read source registry: %v", err), err)
	}

	var raw []Set
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ierrors.ConfigError(fmt.Sprintf("failed to parse source registry: %v", err), nil)
	}

	reg := make(Registry, len(raw))
	for i := range raw {
		s := raw[i]
		reg[s.Name] = &s
	}
	return reg, nil
}

// Save writes the registry to baseDir, creating the directory if needed.
func (r Registry) Save(baseDir string) error {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	raw := make([]Set, 0, len(r))
	for _, name := range names {
		raw = append(raw, *r[name])
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return ierrors.ConfigError(fmt.Sprintf("failed to marshal source registry: %v", err), nil)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return ierrors.IOError(fmt.Sprintf("failed to create base directory: %v", err), err)
	}
	if err := os.WriteFile(path(baseDir), data, 0o644); err != nil {
		return ierrors.IOError(fmt.Sprintf("failed to write source registry: %v", err), err)
	}
	return nil
}

// Add registers one or more repository roots under name, merging with and
// de-duplicating against any paths already present.
func (r Registry) Add(name string, paths ...string) {
	s, ok := r[name]
	if !ok {
		s = &Set{Name: name}
		r[name] = s
	}
	seen := make(map[string]bool, len(s.Paths))
	for _, p := range s.Paths {
		seen[p] = true
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if !seen[abs] {
			s.Paths = append(s.Paths, abs)
			seen[abs] = true
		}
	}
}

// Remove deletes name from the registry. It is a no-op if name is absent.
func (r Registry) Remove(name string) {
	delete(r, name)
}

// Names returns every registered set name, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
