package vm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ConstructorName is the selector under which constructors are indexed.
const ConstructorName = "<init>"

// Func is the invoke operation of an overload. Static methods and
// constructors receive their class as receiver.
type Func func(ctx context.Context, receiver any, args []any) (any, error)

// Func0 is an invoke operation taking no arguments.
type Func0 func(ctx context.Context, receiver any) (any, error)

// Func1 is an invoke operation taking one argument.
type Func1 func(ctx context.Context, receiver any, arg any) (any, error)

// Func2 is an invoke operation taking two arguments.
type Func2 func(ctx context.Context, receiver any, arg1, arg2 any) (any, error)

// Generic widens a fixed-arity function to Func.
func (f Func0) Generic() Func {
	return func(ctx context.Context, receiver any, _ []any) (any, error) { return f(ctx, receiver) }
}

// Generic widens a fixed-arity function to Func.
func (f Func1) Generic() Func {
	return func(ctx context.Context, receiver any, args []any) (any, error) { return f(ctx, receiver, args[0]) }
}

// Generic widens a fixed-arity function to Func.
func (f Func2) Generic() Func {
	return func(ctx context.Context, receiver any, args []any) (any, error) {
		return f(ctx, receiver, args[0], args[1])
	}
}

// Returning builds a Func that ignores its inputs and returns v.
func Returning(v any) Func {
	return func(context.Context, any, []any) (any, error) { return v, nil }
}

// MethodKind distinguishes declared methods from externally contributed ones.
type MethodKind uint8

const (
	// KindReal is a method declared by the class description.
	KindReal MethodKind = iota
	// KindNew is an extension method registered against a class.
	KindNew
	// KindMixin is a method copied in from a mixin class.
	KindMixin
	// KindCategory is a method contributed by an active category.
	KindCategory
	// KindClosure is a method backed by a closure.
	KindClosure
)

// Method is one overload: an immutable executable candidate for a selector.
// Owner is the declaring class; for extension and category methods it is
// the self type the method was registered against.
type Method struct {
	Name      string
	Owner     *Class
	Params    []*Class
	Return    *Class // nil for void
	Modifiers Modifiers
	Kind      MethodKind
	Fn        Func

	// Origin is the static method an extension or category method wraps.
	Origin *Method
}

// NewMethod creates a declared method. Owner is set when the method is
// added to a class.
func NewMethod(name string, mods Modifiers, ret *Class, params []*Class, fn Func) *Method {
	return &Method{
		Name:      name,
		Params:    params,
		Return:    ret,
		Modifiers: mods,
		Fn:        fn,
	}
}

func (m *Method) IsStatic() bool    { return m.Modifiers.IsStatic() }
func (m *Method) IsPrivate() bool   { return m.Modifiers.IsPrivate() }
func (m *Method) IsPublic() bool    { return m.Modifiers.IsPublic() }
func (m *Method) IsProtected() bool { return m.Modifiers.IsProtected() }
func (m *Method) IsAbstract() bool  { return m.Modifiers.IsAbstract() || m.Fn == nil }
func (m *Method) IsBridge() bool    { return m.Modifiers&Bridge != 0 }

// IsNew reports whether m was contributed from outside the class
// description (extension or mixin method).
func (m *Method) IsNew() bool { return m.Kind == KindNew || m.Kind == KindMixin }

// IsVarargs reports whether the last parameter is an array slot.
func (m *Method) IsVarargs() bool {
	n := len(m.Params)
	return n > 0 && m.Params[n-1].IsArray()
}

// IsVoid reports whether m returns nothing.
func (m *Method) IsVoid() bool { return m.Return == nil }

// mopName is the trampoline name a compiler emits for m in its owner.
func (m *Method) mopName() string {
	prefix := "super$"
	if m.IsPrivate() {
		prefix = "this$"
	}
	return prefix + strconv.Itoa(m.Owner.SuperClassDistance()) + "$" + m.Name
}

// Signature renders "name(T1, T2)".
func (m *Method) Signature() string {
	return m.Name + "(" + typeList(m.Params) + ")"
}

// String renders "Owner#name(T1, T2)".
func (m *Method) String() string {
	owner := "?"
	if m.Owner != nil {
		owner = m.Owner.FullName()
	}
	return owner + "#" + m.Signature()
}

func typeList(types []*Class) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}

// Invoke coerces args to the parameter types and calls the method. Errors
// raised by the body always come back wrapped in *InvocationError, so a
// missing member inside the body is told apart from a missing target.
func (m *Method) Invoke(ctx context.Context, receiver any, args ...any) (any, error) {
	coerced, err := Coerce(args, m)
	if err != nil {
		return nil, err
	}
	return m.call(ctx, receiver, coerced)
}

func (m *Method) call(ctx context.Context, receiver any, args []any) (result any, err error) {
	if m.Fn == nil {
		return nil, &InvocationError{Method: m, Cause: fmt.Errorf("%w: %s", ErrAbstractMethod, m)}
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &InvocationError{Method: m, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	result, err = m.Fn(ctx, receiver, args)
	if err != nil {
		err = wrapInvocation(m, err)
	}
	return result, err
}

// sameTypes compares parameter vectors by class identity.
func sameTypes(a, b []*Class) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
