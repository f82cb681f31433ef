// Package plugins registers the built-in analysis plugins.
package plugins

import (
	"tracelyse/internal/plugin"
	"tracelyse/internal/plugins/daemon"
	"tracelyse/internal/plugins/lifecycles"
	"tracelyse/internal/plugins/syserrors"
	"tracelyse/internal/plugins/sysmem"
)

// Descriptors returns the built-in plugins in default load order.
func Descriptors() []plugin.Descriptor {
	return []plugin.Descriptor{
		daemon.Descriptor(),
		syserrors.Descriptor(),
		sysmem.Descriptor(),
		lifecycles.Descriptor(),
	}
}

// Register adds the built-in plugins to reg.
func Register(reg *plugin.Registry) error {
	for _, d := range Descriptors() {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in plugins.
func NewRegistry() (*plugin.Registry, error) {
	reg := plugin.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
