package vm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ResolveStrategy selects where a closure looks up names its body does not
// define.
type ResolveStrategy uint8

const (
	// OwnerFirst tries the owner, then the delegate.
	OwnerFirst ResolveStrategy = iota
	// DelegateFirst tries the delegate, then the owner.
	DelegateFirst
	// OwnerOnly never consults the delegate.
	OwnerOnly
	// DelegateOnly never consults the owner.
	DelegateOnly
	// ToSelf resolves against the closure itself only.
	ToSelf
)

var strategyNames = [...]string{"OWNER_FIRST", "DELEGATE_FIRST", "OWNER_ONLY", "DELEGATE_ONLY", "TO_SELF"}

func (s ResolveStrategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("ResolveStrategy(%d)", uint8(s))
}

// Closure is a callable value with an owner, an optional delegate, and a
// resolve strategy that routes unknown method and property names.
type Closure struct {
	owner      any
	thisObject any

	mu       sync.RWMutex
	delegate any
	strategy ResolveStrategy

	params  []*Class // nil accepts any arguments
	body    Func
	curried []any
	doCall  *Method

	// pointer names the target selector of a method pointer closure.
	pointer string
}

// NewClosure creates a closure owned by owner. params declares the
// parameter types of the body; nil means it takes any arguments. The body
// receives the closure itself as receiver.
func NewClosure(owner any, params []*Class, body Func) *Closure {
	c := &Closure{owner: owner, thisObject: owner, params: params, body: body}
	if params != nil {
		c.doCall = &Method{
			Name:      "doCall",
			Owner:     ClosureClass,
			Params:    params,
			Return:    ObjectClass,
			Modifiers: Public,
			Kind:      KindClosure,
			Fn:        body,
		}
	}
	return c
}

// Owner returns the enclosing object.
func (c *Closure) Owner() any { return c.owner }

// ThisObject returns the object "this" referred to where the closure was
// created.
func (c *Closure) ThisObject() any { return c.thisObject }

// Delegate returns the current delegate, or nil.
func (c *Closure) Delegate() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delegate
}

// SetDelegate replaces the delegate.
func (c *Closure) SetDelegate(d any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

// ResolveStrategy returns the current strategy.
func (c *Closure) ResolveStrategy() ResolveStrategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strategy
}

// SetResolveStrategy replaces the strategy.
func (c *Closure) SetResolveStrategy(s ResolveStrategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy = s
}

// ParameterTypes returns the declared parameter types after currying, or
// nil for a closure that accepts anything.
func (c *Closure) ParameterTypes() []*Class {
	if c.params == nil {
		return nil
	}
	n := len(c.params) - len(c.curried)
	if n < 0 {
		n = 0
	}
	return c.params[len(c.params)-n:]
}

// MaximumNumberOfParameters returns how many arguments the closure takes,
// or -1 when it accepts any number.
func (c *Closure) MaximumNumberOfParameters() int {
	if c.params == nil {
		return -1
	}
	return len(c.ParameterTypes())
}

// IsMethodPointer reports whether the closure stands for a selector of its
// owner.
func (c *Closure) IsMethodPointer() bool { return c.pointer != "" }

// Curry returns a closure with args bound ahead of the call arguments.
func (c *Closure) Curry(args ...any) *Closure {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Closure{
		owner:      c.owner,
		thisObject: c.thisObject,
		delegate:   c.delegate,
		strategy:   c.strategy,
		params:     c.params,
		body:       c.body,
		curried:    append(append([]any(nil), c.curried...), args...),
		doCall:     c.doCall,
		pointer:    c.pointer,
	}
}

// Call runs the body with the curried arguments followed by args.
func (c *Closure) Call(ctx context.Context, args ...any) (any, error) {
	all := args
	if len(c.curried) > 0 {
		all = append(append([]any(nil), c.curried...), args...)
	}
	if c.doCall == nil {
		if c.body == nil {
			return nil, fmt.Errorf("%w: closure has no body", ErrAbstractMethod)
		}
		return c.body(ctx, c, all)
	}
	argTypes := ClassesOf(all)
	if !c.doCall.isValidFor(argTypes) {
		return nil, &MissingMethodError{Method: "doCall", Type: ClosureClass, Args: all, ArgTypes: argTypes}
	}
	return c.doCall.Invoke(ctx, c, all...)
}

func (c *Closure) String() string {
	if c.pointer != "" {
		return fmt.Sprintf("MethodClosure(%s)", c.pointer)
	}
	return fmt.Sprintf("Closure@%p", c)
}

// targets returns the objects consulted for an unknown name, in order.
func (c *Closure) targets() []any {
	owner, delegate := c.owner, c.Delegate()
	var out []any
	switch c.ResolveStrategy() {
	case OwnerFirst:
		out = []any{owner, delegate}
	case DelegateFirst:
		out = []any{delegate, owner}
	case OwnerOnly:
		out = []any{owner}
	case DelegateOnly:
		out = []any{delegate}
	}
	filtered := out[:0]
	for _, t := range out {
		if t != nil {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// ---------------------------------------------------------------------------
// Dispatch on closures
// ---------------------------------------------------------------------------

// invokeOnClosure runs call/doCall, then closure class methods, then the
// resolve strategy.
func (d *Dispatcher) invokeOnClosure(ctx context.Context, c *Closure, name string, args []any) (any, error) {
	if name == "call" || name == "doCall" {
		dispatchTotal.WithLabelValues("closure", "resolved").Inc()
		return c.Call(ctx, args...)
	}

	argTypes := d.registry.ClassesOf(args)
	mc, err := d.registry.MetaClass(ClosureClass)
	if err != nil {
		return nil, err
	}
	m, err := mc.PickMethod(name, argTypes)
	if err != nil {
		return nil, err
	}
	if m != nil {
		dispatchTotal.WithLabelValues("closure", "resolved").Inc()
		return d.call(ctx, m, c, args)
	}

	targets := c.targets()
	for _, t := range targets {
		if d.respondsTo(ctx, t, name, args, argTypes) {
			dispatchTotal.WithLabelValues("closure", "delegated").Inc()
			return d.InvokeMethod(ctx, t, name, args...)
		}
	}

	// Nothing declares the name; dynamic targets may still answer through
	// their own fallback chain.
	var missing error
	for _, t := range targets {
		if !d.isDynamicTarget(t) {
			continue
		}
		res, err := d.InvokeMethod(ctx, t, name, args...)
		if err == nil {
			dispatchTotal.WithLabelValues("closure", "delegated").Inc()
			return res, nil
		}
		var mm *MissingMethodError
		if !errors.As(err, &mm) {
			return nil, err
		}
		missing = err
	}
	dispatchTotal.WithLabelValues("closure", "missing").Inc()
	if missing != nil {
		return nil, missing
	}
	return nil, &MissingMethodError{
		Method:      name,
		Type:        ClosureClass,
		Args:        args,
		ArgTypes:    argTypes,
		Suggestions: methodSuggestions(name, argTypes, mc.methods),
	}
}

// respondsTo reports whether target declares or inherits a method that
// accepts the arguments, categories included.
func (d *Dispatcher) respondsTo(ctx context.Context, target any, name string, args []any, argTypes []*Class) bool {
	if cls, ok := target.(*Class); ok {
		mc, err := d.registry.MetaClass(cls)
		if err != nil {
			return false
		}
		m, err := mc.RetrieveStaticMethod(name, argTypes)
		return err == nil && m != nil
	}
	if _, ok := target.(*Closure); ok && (name == "call" || name == "doCall") {
		return true
	}
	class := d.registry.ClassOf(target)
	mc, err := d.registry.MetaClass(class)
	if err != nil {
		return false
	}
	m, _, err := d.findMethod(ctx, mc, class, name, args, argTypes, false)
	return err == nil && m != nil
}

func (d *Dispatcher) isDynamicTarget(t any) bool {
	switch x := t.(type) {
	case *Closure:
		return true
	case *Class:
		return x.IsDynamic()
	}
	return d.registry.ClassOf(t).IsDynamic()
}

// closureProperty reads name on a closure: its own bean properties first,
// then the strategy targets.
func (d *Dispatcher) closureProperty(ctx context.Context, c *Closure, name string) (any, error) {
	if name == "class" {
		return ClosureClass, nil
	}
	mc, err := d.registry.MetaClass(ClosureClass)
	if err != nil {
		return nil, err
	}
	if p := mc.properties[ClosureClass].get(name); p != nil {
		return p.Get(ctx, c)
	}
	var first error
	for _, t := range c.targets() {
		v, err := d.GetProperty(ctx, t, name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrMissingProperty) {
			return nil, err
		}
		if first == nil {
			first = err
		}
	}
	if first != nil {
		return nil, first
	}
	return nil, &MissingPropertyError{Property: name, Type: ClosureClass,
		Suggestions: propertySuggestions(name, mc.properties[ClosureClass].values())}
}

// setClosureProperty writes name on a closure, mirroring closureProperty.
func (d *Dispatcher) setClosureProperty(ctx context.Context, c *Closure, name string, value any) error {
	mc, err := d.registry.MetaClass(ClosureClass)
	if err != nil {
		return err
	}
	if p := mc.properties[ClosureClass].get(name); p != nil {
		return p.Set(ctx, c, value)
	}
	var first error
	for _, t := range c.targets() {
		err := d.SetProperty(ctx, t, name, value)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrMissingProperty) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	if first != nil {
		return first
	}
	return &MissingPropertyError{Property: name, Type: ClosureClass}
}

// MethodPointer returns a closure that dispatches name on receiver with
// whatever arguments it is called with.
func (d *Dispatcher) MethodPointer(receiver any, name string) *Closure {
	c := NewClosure(receiver, nil, func(ctx context.Context, _ any, args []any) (any, error) {
		return d.InvokeMethod(ctx, receiver, name, args...)
	})
	c.pointer = fmt.Sprintf("%v.%s", receiver, name)
	return c
}
