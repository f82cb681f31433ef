package plugin

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"tracelyse/internal/report"
)

var (
	// ErrPluginNotFound is returned when a selection names an unknown plugin.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrDuplicatePlugin is returned when two descriptors share a name.
	ErrDuplicatePlugin = errors.New("duplicate plugin")
)

// Factory creates a plugin. It is called once per run.
type Factory func(env Env) (Plugin, error)

// Descriptor describes a registered plugin.
type Descriptor struct {
	Name string
	// Description is free text; its first line is the default test name of
	// the plugin's results.
	Description string
	// Manual plugins only run when named explicitly or when manual plugins
	// are opted in.
	Manual bool
	// Metadata is attached to every result the plugin reports.
	Metadata report.Metadata
	New      Factory
}

// Summary returns the first line of the description.
func (d Descriptor) Summary() string {
	first, _, _ := strings.Cut(strings.TrimSpace(d.Description), "\n")
	return strings.TrimSpace(first)
}

// Registry maps plugin names to descriptors in registration order.
// The caller (typically main) populates it by calling the Register
// functions of plugin packages.
type Registry struct {
	order  []string
	byName map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

// Register adds a descriptor.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return errors.New("register plugin: empty name")
	}
	if d.New == nil {
		return fmt.Errorf("register plugin %s: nil factory", d.Name)
	}
	if _, ok := r.byName[d.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, d.Name)
	}
	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Selection controls which registered plugins are loaded.
type Selection struct {
	// Include names the plugins to load, in load order. Empty means every
	// non-manual plugin in registration order.
	Include []string
	// Exclude removes plugins from the result. Unknown names are ignored.
	Exclude []string
	// IncludeManual adds manual plugins when Include is empty.
	IncludeManual bool
}

// Select resolves a selection to descriptors in load order.
func (r *Registry) Select(sel Selection) ([]Descriptor, error) {
	var out []Descriptor
	if len(sel.Include) == 0 {
		for _, d := range r.Descriptors() {
			if d.Manual && !sel.IncludeManual {
				continue
			}
			out = append(out, d)
		}
	} else {
		var missing []string
		seen := make(map[string]bool, len(sel.Include))
		for _, name := range sel.Include {
			if seen[name] {
				continue
			}
			seen[name] = true
			d, ok := r.byName[name]
			if !ok {
				missing = append(missing, name)
				continue
			}
			out = append(out, d)
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, strings.Join(missing, ", "))
		}
	}

	if len(sel.Exclude) > 0 {
		out = slices.DeleteFunc(out, func(d Descriptor) bool {
			return slices.Contains(sel.Exclude, d.Name)
		})
	}
	return out, nil
}
