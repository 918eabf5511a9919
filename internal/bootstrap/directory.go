package bootstrap

import (
	"sort"
	"sync"

	dErrors "foodtrace/pkg/domain-errors"
)

// Directory maps human-readable system names to provisioned Systems, so one
// process can host several independent traceability deployments side by
// side.
type Directory struct {
	mu      sync.RWMutex
	systems map[string]*System
}

func NewDirectory() *Directory {
	return &Directory{systems: make(map[string]*System)}
}

// Register stores a system under a name. Names are taken once.
func (d *Directory) Register(name string, sys *System) error {
	if name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "system name is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.systems[name]; ok {
		return dErrors.Newf(dErrors.CodeAlreadyExists, "system %q already registered", name)
	}
	d.systems[name] = sys
	return nil
}

// Lookup returns the system registered under a name.
func (d *Directory) Lookup(name string) (*System, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if sys, ok := d.systems[name]; ok {
		return sys, nil
	}
	return nil, dErrors.Newf(dErrors.CodeNotFound, "no system named %q", name)
}

// Names returns the registered system names in sorted order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.systems))
	for name := range d.systems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
