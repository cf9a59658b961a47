package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chazu/mop/gowrap"
	"github.com/chazu/mop/loader"
	"github.com/chazu/mop/manifest"
	"github.com/chazu/mop/vm"
)

// runtime wires a registry, a loader and the Go bridge for one project.
type runtime struct {
	registry *vm.Registry
	loader   *loader.Loader
	bridge   *gowrap.Bridge
}

func newRuntime(ctx context.Context, m *manifest.Manifest, warm bool) (*runtime, error) {
	reg := vm.NewRegistry(m.RegistryOptions())

	bridge := gowrap.NewBridge()
	bridge.Install(reg)

	dc := &loader.DescriptorCompiler{}
	l, err := loader.New(reg, dc, m.LoaderOptions())
	if err != nil {
		return nil, err
	}
	dc.Types = l
	reg.SetResolver(l)

	if warm && l.Store() != nil {
		n, err := l.WarmStart(ctx)
		if err != nil {
			log.Warningf("warm start: %s", err)
		} else {
			log.Infof("warm start compiled %d stored sources", n)
		}
	}

	exts, err := manifest.RegisterExtensions(m, reg)
	if err != nil {
		l.Close()
		return nil, err
	}
	for _, ext := range exts {
		log.Infof("extension %s %s registered", ext.Module.Name, ext.Module.Version)
	}

	return &runtime{registry: reg, loader: l, bridge: bridge}, nil
}

func (rt *runtime) Close() error {
	return rt.loader.Close()
}

// Invoke calls target ("pkg.Class.method") with args. A static method is
// tried first; otherwise a new instance built with the no-argument
// constructor receives the call.
func (rt *runtime) Invoke(ctx context.Context, target string, args []any) (any, error) {
	className, method, err := splitTarget(target)
	if err != nil {
		return nil, err
	}
	c, err := rt.loader.LoadClass(ctx, className)
	if err != nil {
		return nil, err
	}

	d := rt.registry.Dispatcher()
	result, err := d.InvokeStatic(ctx, c, method, args...)
	if err == nil || !errors.Is(err, vm.ErrMissingMethod) || errors.Is(err, vm.ErrInvocationFailure) {
		return result, err
	}

	instance, cerr := d.InvokeConstructor(ctx, c)
	if cerr != nil {
		return nil, fmt.Errorf("%s has no static %s and cannot be constructed: %w", c, method, cerr)
	}
	return d.InvokeMethod(ctx, instance, method, args...)
}

// Inspect prints the methods and properties of a class.
func (rt *runtime) Inspect(ctx context.Context, w io.Writer, className string) error {
	c, err := rt.loader.LoadClass(ctx, className)
	if err != nil {
		return err
	}
	mc, err := rt.registry.MetaClass(c)
	if err != nil {
		return err
	}
	methods, err := mc.Methods()
	if err != nil {
		return err
	}
	added, err := mc.MetaMethods()
	if err != nil {
		return err
	}
	props, err := mc.Properties()
	if err != nil {
		return err
	}

	kind := "class"
	if c.IsInterface() {
		kind = "interface"
	}
	fmt.Fprintf(w, "%s %s", kind, c.FullName())
	if c.Superclass != nil {
		fmt.Fprintf(w, " extends %s", c.Superclass.FullName())
	}
	fmt.Fprintln(w)

	sort.Slice(props, func(i, j int) bool { return props[i].Name() < props[j].Name() })
	if len(props) > 0 {
		fmt.Fprintln(w, "\nProperties:")
		for _, p := range props {
			access := ""
			if p.Modifiers().IsFinal() {
				access = " (read-only)"
			}
			fmt.Fprintf(w, "  %s %s%s\n", p.Type(), p.Name(), access)
		}
	}

	lines := make([]string, 0, len(methods)+len(added))
	for _, m := range methods {
		if m.Owner == vm.ObjectClass {
			continue
		}
		lines = append(lines, "  "+m.String())
	}
	for _, m := range added {
		lines = append(lines, "  "+m.String()+" (added)")
	}
	sort.Strings(lines)
	if len(lines) > 0 {
		fmt.Fprintln(w, "\nMethods:")
		fmt.Fprintln(w, strings.Join(lines, "\n"))
	}
	return nil
}

func printProfile(w io.Writer, p *vm.Profiler, n int) {
	stats := p.Stats()
	fmt.Fprintf(w, "\n%d dispatches (%d fallbacks) over %d selectors\n",
		stats.TotalDispatches, stats.TotalFallbacks, stats.Selectors)
	for _, sp := range p.TopSelectors(n) {
		hot := ""
		if sp.IsHot() {
			hot = " *"
		}
		fmt.Fprintf(w, "  %8d  %s.%s%s\n", sp.Dispatches.Load(), sp.Class, sp.Name, hot)
	}
}
