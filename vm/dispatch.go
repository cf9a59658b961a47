package vm

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Dispatcher: the runtime dispatch engine
// ---------------------------------------------------------------------------

// Dispatcher turns (receiver, selector, arguments) into a call. It resolves
// the receiver's class metadata through its registry, picks the overload
// visible from the sender, and runs the fallback chain when nothing applies.
//
// Every operation takes a context; the categories in scope travel with it.
type Dispatcher struct {
	registry *Registry
}

// Registry returns the registry the dispatcher resolves classes through.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// InvokeMethod dispatches name on receiver from the receiver's own point of
// view.
func (d *Dispatcher) InvokeMethod(ctx context.Context, receiver any, name string, args ...any) (any, error) {
	return d.InvokeMethodFrom(ctx, nil, receiver, name, false, args...)
}

// InvokeSuper dispatches name on receiver through the super-view of sender.
func (d *Dispatcher) InvokeSuper(ctx context.Context, sender *Class, receiver any, name string, args ...any) (any, error) {
	return d.InvokeMethodFrom(ctx, sender, receiver, name, true, args...)
}

// InvokeMethodFrom dispatches name on receiver as seen from sender. A nil
// sender means the receiver's class. A *Class receiver is a static call on
// that class.
func (d *Dispatcher) InvokeMethodFrom(ctx context.Context, sender *Class, receiver any, name string, isSuper bool, args ...any) (any, error) {
	if receiver == nil {
		dispatchTotal.WithLabelValues("instance", "null").Inc()
		return nil, fmt.Errorf("%w: cannot invoke method %s() on null object", ErrNullReceiver, name)
	}
	if c, ok := receiver.(*Class); ok && !isSuper {
		return d.InvokeStatic(ctx, c, name, args...)
	}
	if cl, ok := receiver.(*Closure); ok && sender == nil && !isSuper {
		return d.invokeOnClosure(ctx, cl, name, args)
	}

	class := d.registry.ClassOf(receiver)
	mc, err := d.registry.MetaClass(class)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		sender = class
	}

	kind := "instance"
	if isSuper {
		kind = "super"
	}
	argTypes := d.registry.ClassesOf(args)
	m, callArgs, err := d.findMethod(ctx, mc, sender, name, args, argTypes, isSuper)
	if err != nil {
		dispatchTotal.WithLabelValues(kind, "error").Inc()
		return nil, err
	}
	if m != nil {
		d.registry.profiler.RecordDispatch(class, name)
		dispatchTotal.WithLabelValues(kind, "resolved").Inc()
		return d.call(ctx, m, receiver, callArgs)
	}

	d.registry.profiler.RecordFallback(class, name)
	if isSuper && sender.Superclass != nil {
		// A miss on super runs the missing-method handling of the parent.
		smc, err := d.registry.MetaClass(sender.Superclass)
		if err != nil {
			return nil, err
		}
		mc = smc
	}
	res, err := d.invokeMissing(ctx, mc, sender, receiver, name, args, argTypes, isSuper)
	if err != nil {
		if errors.Is(err, ErrMissingMethod) {
			dispatchTotal.WithLabelValues(kind, "missing").Inc()
		} else {
			dispatchTotal.WithLabelValues(kind, "error").Inc()
		}
		return nil, err
	}
	dispatchTotal.WithLabelValues(kind, "fallback").Inc()
	return res, nil
}

// findMethod resolves name for the arguments. A lone list argument that
// matches nothing is retried as the argument list itself; the arguments to
// call with are returned alongside the method.
func (d *Dispatcher) findMethod(ctx context.Context, mc *ClassMetadata, sender *Class, name string, args []any, argTypes []*Class, isSuper bool) (*Method, []any, error) {
	m, err := d.resolve(ctx, mc, sender, name, argTypes, isSuper)
	if err != nil || m != nil {
		return m, args, err
	}
	if len(args) == 1 {
		if l, ok := args[0].(*List); ok {
			items := l.Items()
			m, err = d.resolve(ctx, mc, sender, name, d.registry.ClassesOf(items), isSuper)
			if err != nil || m != nil {
				return m, items, err
			}
		}
	}
	return nil, nil, nil
}

// resolve picks the overload visible from sender. Categories in scope are
// merged into the candidates and bypass the resolution cache.
func (d *Dispatcher) resolve(ctx context.Context, mc *ClassMetadata, sender *Class, name string, argTypes []*Class, isSuper bool) (*Method, error) {
	if !isSuper {
		if cats := categoryMethods(ctx, name); len(cats) > 0 {
			set := mc.index.Overloads(sender, name, false).Methods()
			return chooseInternal(mc.class, name, mergeCategory(mc.class, set, cats), argTypes)
		}
	}
	return mc.index.Resolve(sender, name, argTypes, isSuper)
}

// call invokes m. Static methods receive their owner as receiver.
func (d *Dispatcher) call(ctx context.Context, m *Method, receiver any, args []any) (any, error) {
	if m.IsStatic() && m.Kind == KindReal {
		receiver = m.Owner
	}
	return m.Invoke(ctx, receiver, args...)
}

// ---------------------------------------------------------------------------
// Fallback chain
// ---------------------------------------------------------------------------

// invokeMissing runs the fallback chain for a selector nothing in the index
// accepted.
func (d *Dispatcher) invokeMissing(ctx context.Context, mc *ClassMetadata, sender *Class, receiver any, name string, args []any, argTypes []*Class, isSuper bool) (any, error) {
	hookArgs := []any{name, args}

	if cm := categoryAccessor(ctx, mc.class, "methodMissing", stringObjectParams); cm != nil {
		fallbackTotal.WithLabelValues("category").Inc()
		return d.call(ctx, cm, receiver, hookArgs)
	}

	if !isSuper && d.registry.hasModifiedAncestor(mc.class) {
		m, err := d.relaxedSearch(mc.class, sender, name, argTypes)
		if err != nil {
			return nil, err
		}
		if m != nil {
			fallbackTotal.WithLabelValues("hierarchy").Inc()
			return d.call(ctx, m, receiver, args)
		}
	}

	if h := mc.invokeMethodHook; h != nil && !h.IsAbstract() {
		fallbackTotal.WithLabelValues("invokeMethod").Inc()
		return d.call(ctx, h, receiver, hookArgs)
	}

	if h := mc.methodMissing; h != nil && !h.IsAbstract() {
		fallbackTotal.WithLabelValues("methodMissing").Inc()
		return d.call(ctx, h, receiver, hookArgs)
	}

	if p := mc.property(sender, name, false, false); p != nil {
		if v, err := p.Get(ctx, receiver); err == nil {
			if res, ok, err := d.callValue(ctx, v, name, args); ok {
				fallbackTotal.WithLabelValues("property").Inc()
				return res, err
			}
		}
	}

	if m, ok := receiver.(map[string]any); ok {
		if res, ok, err := d.callValue(ctx, m[name], name, args); ok {
			fallbackTotal.WithLabelValues("map").Inc()
			return res, err
		}
	}

	fallbackTotal.WithLabelValues("missing").Inc()
	dispatchLog.Debugf("no method %s for %s(%s)", name, mc.class, typeList(argTypes))
	return nil, d.missingMethod(mc, name, args, argTypes, false)
}

// callValue calls v when it can be called: a closure runs directly, other
// values answer a call method. ok is false when v cannot be called.
func (d *Dispatcher) callValue(ctx context.Context, v any, name string, args []any) (any, bool, error) {
	var mm *MissingMethodError
	switch x := v.(type) {
	case nil, map[string]any:
		return nil, false, nil
	case *Closure:
		res, err := x.Call(ctx, args...)
		if notCallable(err, &mm) && mm.Method == "doCall" {
			return nil, false, nil
		}
		return res, true, err
	}
	if name == "call" {
		return nil, false, nil
	}
	res, err := d.InvokeMethod(ctx, v, "call", args...)
	if notCallable(err, &mm) && mm.Method == "call" {
		return nil, false, nil
	}
	return res, true, err
}

// notCallable reports a missing call target. A missing method raised from
// inside a body that did run is a failure of that body instead.
func notCallable(err error, mm **MissingMethodError) bool {
	return errors.As(err, mm) && !errors.Is(err, ErrInvocationFailure)
}

// relaxedSearch looks for name in the installed metadata of c's ancestors.
// Private methods are never found, and package-private ones only from the
// same package. The most derived declaring class wins.
func (d *Dispatcher) relaxedSearch(c, sender *Class, name string, argTypes []*Class) (*Method, error) {
	var ancestors []*Class
	for cur := c.Superclass; cur != nil; cur = cur.Superclass {
		ancestors = append(ancestors, cur)
	}
	ancestors = append(ancestors, c.AllInterfaces()...)

	snap := *d.registry.snapshot.Load()
	var found []*Method
	for _, a := range ancestors {
		amc := snap[a]
		if amc == nil || !amc.Modified() || !amc.Initialized() {
			continue
		}
		m, err := amc.PickMethod(name, argTypes)
		if err != nil {
			return nil, err
		}
		if m == nil || m.IsPrivate() {
			continue
		}
		if m.Modifiers.IsPackagePrivate() && !m.Owner.InSamePackage(sender) {
			continue
		}
		found = append(found, m)
	}
	if len(found) == 0 {
		return nil, nil
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[j].Owner.IsAssignableFrom(found[i].Owner) && found[i].Owner != found[j].Owner
	})
	return found[0], nil
}

// missingMethod builds the final error with suggestions drawn from the
// class's methods and contributed methods.
func (d *Dispatcher) missingMethod(mc *ClassMetadata, name string, args []any, argTypes []*Class, static bool) error {
	candidates := append(append([]*Method(nil), mc.methods...), mc.metaMethods...)
	return &MissingMethodError{
		Method:      name,
		Type:        mc.class,
		Args:        args,
		ArgTypes:    argTypes,
		Static:      static,
		Suggestions: methodSuggestions(name, argTypes, candidates),
	}
}

// ---------------------------------------------------------------------------
// Static calls and constructors
// ---------------------------------------------------------------------------

// InvokeStatic dispatches name on class c. Methods of Class itself apply
// with c as receiver when c declares no static method of that name.
func (d *Dispatcher) InvokeStatic(ctx context.Context, c *Class, name string, args ...any) (any, error) {
	mc, err := d.registry.MetaClass(c)
	if err != nil {
		return nil, err
	}
	argTypes := d.registry.ClassesOf(args)
	m, err := mc.index.ResolveStatic(name, argTypes)
	if err != nil {
		dispatchTotal.WithLabelValues("static", "error").Inc()
		return nil, err
	}
	if m != nil {
		d.registry.profiler.RecordDispatch(c, name)
		dispatchTotal.WithLabelValues("static", "resolved").Inc()
		return d.call(ctx, m, c, args)
	}

	if c != ClassClass {
		cmc, err := d.registry.MetaClass(ClassClass)
		if err != nil {
			return nil, err
		}
		m, err := cmc.PickMethod(name, argTypes)
		if err != nil {
			return nil, err
		}
		if m != nil && !m.IsStatic() {
			d.registry.profiler.RecordDispatch(ClassClass, name)
			dispatchTotal.WithLabelValues("static", "resolved").Inc()
			return m.Invoke(ctx, c, args...)
		}
	}

	d.registry.profiler.RecordFallback(c, name)
	dispatchTotal.WithLabelValues("static", "missing").Inc()
	statics := mc.index.StaticOverloads(name).Methods()
	var candidates []*Method
	for _, m := range append(append([]*Method(nil), mc.methods...), mc.metaMethods...) {
		if m.IsStatic() {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		candidates = statics
	}
	return nil, &MissingMethodError{
		Method:      name,
		Type:        c,
		Args:        args,
		ArgTypes:    argTypes,
		Static:      true,
		Suggestions: methodSuggestions(name, argTypes, candidates),
	}
}

// InvokeConstructor creates an instance of c. A single map argument that
// no constructor takes directly builds the instance with the no-argument
// constructor and then sets each entry as a property.
func (d *Dispatcher) InvokeConstructor(ctx context.Context, c *Class, args ...any) (any, error) {
	mc, err := d.registry.MetaClass(c)
	if err != nil {
		return nil, err
	}
	argTypes := d.registry.ClassesOf(args)

	if len(args) == 1 {
		if props, ok := args[0].(map[string]any); ok {
			if m, err := mc.RetrieveConstructor(argTypes); err == nil && m == nil {
				bean, err := d.InvokeConstructor(ctx, c)
				if err != nil {
					return nil, err
				}
				if err := d.SetProperties(ctx, bean, props); err != nil {
					return nil, err
				}
				return bean, nil
			}
		}
	}

	m, err := mc.ChooseConstructor(argTypes)
	if err != nil {
		var na *NoApplicableOverloadError
		if errors.As(err, &na) {
			dispatchTotal.WithLabelValues("constructor", "missing").Inc()
			return nil, &MissingMethodError{
				Method:      ConstructorName,
				Type:        c,
				Args:        args,
				ArgTypes:    argTypes,
				Static:      true,
				Suggestions: constructorSuggestions(c, argTypes, mc.constructors),
			}
		}
		dispatchTotal.WithLabelValues("constructor", "error").Inc()
		return nil, err
	}
	dispatchTotal.WithLabelValues("constructor", "resolved").Inc()
	d.registry.profiler.RecordDispatch(c, ConstructorName)
	return m.Invoke(ctx, c, args...)
}

// SetProperties sets each map entry as a property of bean, in key order.
func (d *Dispatcher) SetProperties(ctx context.Context, bean any, props map[string]any) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := d.SetProperty(ctx, bean, k, props[k]); err != nil {
			return err
		}
	}
	return nil
}
