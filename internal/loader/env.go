// Package loader models the class-loading subsystem the archive pipeline
// collaborates with: per-loader dictionaries, parent delegation, and the
// set of classes that could be loaded on demand.
package loader

import (
	"fmt"
	"sync"

	"github.com/mabhi256/jarc/internal/meta"
)

// Environment owns the dictionaries for the three built-in loaders and the
// process symbol table. Archive building happens inside an exclusive phase:
// the builder freezes the environment for the whole dump, so lookups keep
// working but nothing can load or define classes until the dump finishes.
type Environment struct {
	mu     sync.RWMutex
	symtab *meta.Symtab
	frozen bool // set for the duration of a dump; mutation fails

	dicts map[meta.Loader]map[*meta.Symbol]*meta.Class

	// Classes defined (available to load) but not yet loaded, keyed the
	// same way. ResolveOrLoad promotes entries from here into a dictionary.
	loadable map[meta.Loader]map[*meta.Symbol]*meta.Class
}

func NewEnvironment() *Environment {
	env := &Environment{
		symtab:   meta.NewSymtab(),
		dicts:    make(map[meta.Loader]map[*meta.Symbol]*meta.Class),
		loadable: make(map[meta.Loader]map[*meta.Symbol]*meta.Class),
	}
	for _, l := range meta.BuiltinLoaders {
		env.dicts[l] = make(map[*meta.Symbol]*meta.Class)
		env.loadable[l] = make(map[*meta.Symbol]*meta.Class)
	}
	return env
}

func (env *Environment) Symtab() *meta.Symtab {
	return env.symtab
}

// BeginExclusive freezes the environment for a dump. Lookups still work,
// but loading and defining fail until EndExclusive.
func (env *Environment) BeginExclusive() {
	env.mu.Lock()
	env.frozen = true
	env.mu.Unlock()
}

func (env *Environment) EndExclusive() {
	env.mu.Lock()
	env.frozen = false
	env.mu.Unlock()
}

// RegisterLoaded installs a class directly into its loader's dictionary,
// as if it had been loaded during the training run.
func (env *Environment) RegisterLoaded(c *meta.Class) error {
	env.mu.Lock()
	defer env.mu.Unlock()
	if env.frozen {
		return fmt.Errorf("environment frozen for dump; cannot load %s", c.ExternalName())
	}
	if !c.Loader.IsBuiltin() {
		return fmt.Errorf("custom loader class %s cannot be registered", c.ExternalName())
	}
	dict := env.dicts[c.Loader]
	if prev, ok := dict[c.Name]; ok && prev != c {
		return fmt.Errorf("duplicate class record for %s in %s loader", c.ExternalName(), c.Loader)
	}
	dict[c.Name] = c
	return nil
}

// Define makes a class available for on-demand loading without marking it
// loaded. The preload driver and constant-pool resolution go through
// ResolveOrLoad to pull classes from here.
func (env *Environment) Define(c *meta.Class) {
	env.mu.Lock()
	defer env.mu.Unlock()
	if c.Loader.IsBuiltin() {
		env.loadable[c.Loader][c.Name] = c
	}
}

// FindLoaded looks name up in the dictionary for loader, delegating
// app -> platform -> boot the way parent-first delegation does. Returns nil
// if the class is not loaded anywhere along the chain. Only works for the
// built-in loaders.
func (env *Environment) FindLoaded(name *meta.Symbol, l meta.Loader) *meta.Class {
	env.mu.RLock()
	defer env.mu.RUnlock()
	return env.findLoadedLocked(name, l)
}

func (env *Environment) findLoadedLocked(name *meta.Symbol, l meta.Loader) *meta.Class {
	for {
		if !l.IsBuiltin() {
			return nil
		}
		if c, ok := env.dicts[l][name]; ok {
			return c
		}
		parent, ok := l.Parent()
		if !ok {
			return nil
		}
		l = parent
	}
}

// ResolveOrLoad returns the loaded class for name under loader l, loading
// it (from the loadable set, with parent delegation) if necessary.
func (env *Environment) ResolveOrLoad(name *meta.Symbol, l meta.Loader) (*meta.Class, error) {
	env.mu.Lock()
	defer env.mu.Unlock()
	if c := env.findLoadedLocked(name, l); c != nil {
		return c, nil
	}
	if env.frozen {
		return nil, fmt.Errorf("environment frozen for dump; cannot load %s", name)
	}
	for cur := l; ; {
		if c, ok := env.loadable[cur][name]; ok {
			env.dicts[cur][name] = c
			return c, nil
		}
		parent, ok := cur.Parent()
		if !ok {
			return nil, fmt.Errorf("class %s not found for %s loader", name, l)
		}
		cur = parent
	}
}

// LoadedClasses returns every class in the given dictionary, in no
// particular order.
func (env *Environment) LoadedClasses(l meta.Loader) []*meta.Class {
	env.mu.RLock()
	defer env.mu.RUnlock()
	out := make([]*meta.Class, 0, len(env.dicts[l]))
	for _, c := range env.dicts[l] {
		out = append(out, c)
	}
	return out
}

// AllLoadedClasses returns the union over the built-in loaders.
func (env *Environment) AllLoadedClasses() []*meta.Class {
	var out []*meta.Class
	for _, l := range meta.BuiltinLoaders {
		out = append(out, env.LoadedClasses(l)...)
	}
	return out
}
