package manifest

import (
	"fmt"

	"github.com/chazu/mop/vm"
)

// ResolvedExtension is an [[extension]] entry whose classes were found.
type ResolvedExtension struct {
	Module vm.ExtensionModule
	// Source is the manifest entry it came from.
	Source Extension
}

// Resolver turns manifest extension entries into extension modules.
type Resolver struct {
	manifest *Manifest
	classes  vm.ClassResolver
}

// NewResolver creates a resolver that finds classes through classes,
// usually a *vm.Registry wired to a loader.
func NewResolver(m *Manifest, classes vm.ClassResolver) *Resolver {
	return &Resolver{
		manifest: m,
		classes:  classes,
	}
}

// Resolve resolves every extension in manifest order. Names must be unique
// and every listed class must resolve.
func (r *Resolver) Resolve() ([]ResolvedExtension, error) {
	seen := make(map[string]bool)
	var out []ResolvedExtension

	for _, ext := range r.manifest.Extensions {
		if ext.Name == "" {
			return nil, fmt.Errorf("extension without a name in %s", r.manifest.Dir)
		}
		if seen[ext.Name] {
			return nil, fmt.Errorf("extension %q declared twice", ext.Name)
		}
		seen[ext.Name] = true

		re, err := r.resolveOne(ext)
		if err != nil {
			return nil, fmt.Errorf("resolving extension %s: %w", ext.Name, err)
		}
		out = append(out, *re)
	}
	return out, nil
}

func (r *Resolver) resolveOne(ext Extension) (*ResolvedExtension, error) {
	if len(ext.Classes) == 0 && len(ext.StaticClasses) == 0 {
		return nil, fmt.Errorf("extension %q lists no classes", ext.Name)
	}
	classes, err := r.resolveClasses(ext.Classes)
	if err != nil {
		return nil, err
	}
	statics, err := r.resolveClasses(ext.StaticClasses)
	if err != nil {
		return nil, err
	}
	return &ResolvedExtension{
		Module: vm.ExtensionModule{
			Name:          ext.Name,
			Version:       ext.Version,
			Classes:       classes,
			StaticClasses: statics,
		},
		Source: ext,
	}, nil
}

func (r *Resolver) resolveClasses(names []string) ([]*vm.Class, error) {
	var out []*vm.Class
	for _, name := range names {
		if !ValidClassName(name) {
			return nil, fmt.Errorf("invalid class name %q", name)
		}
		if IsReservedPackage(name) {
			return nil, fmt.Errorf("class %q is in a builtin package; move it to a package of its own", name)
		}
		c, err := r.classes.ResolveClass(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// RegisterExtensions resolves the manifest's extensions through reg and
// registers each module with it. It must run before the extended classes
// are first dispatched on.
func RegisterExtensions(m *Manifest, reg *vm.Registry) ([]ResolvedExtension, error) {
	resolved, err := NewResolver(m, reg).Resolve()
	if err != nil {
		return nil, err
	}
	for _, re := range resolved {
		if err := reg.RegisterExtensionModule(re.Module); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}
