package vm

import (
	"context"
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"
)

// installBuiltinMethods declares the methods of the builtin classes. It
// runs once from init, before any metadata is built.
func installBuiltinMethods() {
	installObjectMethods()
	installStringMethods()
	installCollectionMethods()
	installClassMethods()
	installClosureMethods()
}

func declare(c *Class, name string, ret *Class, fn Func, params ...*Class) *Method {
	return c.AddMethod(NewMethod(name, Public, ret, params, fn))
}

func declareAbstract(c *Class, name string, ret *Class, params ...*Class) *Method {
	return c.AddMethod(NewMethod(name, Public|Abstract, ret, params, nil))
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

func installObjectMethods() {
	declare(ObjectClass, "toString", StringClass, func(_ context.Context, r any, _ []any) (any, error) {
		return fmt.Sprint(r), nil
	})
	declare(ObjectClass, "equals", BoolPrim, func(_ context.Context, r any, args []any) (any, error) {
		return identical(r, args[0]), nil
	}, ObjectClass)
	declare(ObjectClass, "hashCode", IntPrim, func(_ context.Context, r any, _ []any) (any, error) {
		return hashOf(r), nil
	})
}

// identical compares by value for comparable values and by reference for
// maps, slices and other reference kinds.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	return false
}

func hashOf(v any) int {
	h := fnv.New32a()
	switch x := v.(type) {
	case *Object, *Closure, *Class, *List:
		fmt.Fprintf(h, "%p", x)
	default:
		fmt.Fprint(h, v)
	}
	return int(int32(h.Sum32()))
}

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

func installStringMethods() {
	str := func(fn func(s string) any) Func {
		return func(_ context.Context, r any, _ []any) (any, error) {
			return fn(r.(string)), nil
		}
	}
	declare(StringClass, "length", IntPrim, str(func(s string) any { return len([]rune(s)) }))
	declare(StringClass, "isEmpty", BoolPrim, str(func(s string) any { return s == "" }))
	declare(StringClass, "toUpperCase", StringClass, str(func(s string) any { return strings.ToUpper(s) }))
	declare(StringClass, "toLowerCase", StringClass, str(func(s string) any { return strings.ToLower(s) }))
	declare(StringClass, "toString", StringClass, str(func(s string) any { return s }))
}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

func installCollectionMethods() {
	declareAbstract(CollectionClass, "size", IntPrim)
	declareAbstract(CollectionClass, "isEmpty", BoolPrim)
	declareAbstract(ListClass, "get", ObjectClass, IntPrim)
	declareAbstract(ListClass, "add", BoolPrim, ObjectClass)

	list := func(r any) *List { return r.(*List) }
	declare(ArrayListClass, "size", IntPrim, func(_ context.Context, r any, _ []any) (any, error) {
		return list(r).Len(), nil
	})
	declare(ArrayListClass, "isEmpty", BoolPrim, func(_ context.Context, r any, _ []any) (any, error) {
		return list(r).Len() == 0, nil
	})
	declare(ArrayListClass, "get", ObjectClass, func(_ context.Context, r any, args []any) (any, error) {
		l, i := list(r), args[0].(int)
		if i < 0 || i >= l.Len() {
			return nil, fmt.Errorf("index %d out of bounds for length %d", i, l.Len())
		}
		return l.Get(i), nil
	}, IntPrim)
	declare(ArrayListClass, "add", BoolPrim, func(_ context.Context, r any, args []any) (any, error) {
		list(r).Add(args[0])
		return true, nil
	}, ObjectClass)
	ArrayListClass.AddConstructor(Public, func(context.Context, any, []any) (any, error) {
		return NewList(), nil
	})
	ArrayListClass.AddConstructor(Public, func(_ context.Context, _ any, args []any) (any, error) {
		if src, ok := args[0].(*List); ok {
			return NewList(src.Items()...), nil
		}
		return NewList(), nil
	}, CollectionClass)

	declareAbstract(MapClass, "get", ObjectClass, ObjectClass)
	declareAbstract(MapClass, "put", ObjectClass, ObjectClass, ObjectClass)
	declareAbstract(MapClass, "size", IntPrim)
	declareAbstract(MapClass, "containsKey", BoolPrim, ObjectClass)

	m := func(r any) map[string]any { return r.(map[string]any) }
	key := func(k any) string {
		if s, ok := k.(string); ok {
			return s
		}
		return fmt.Sprint(k)
	}
	declare(HashMapClass, "get", ObjectClass, func(_ context.Context, r any, args []any) (any, error) {
		return m(r)[key(args[0])], nil
	}, ObjectClass)
	declare(HashMapClass, "put", ObjectClass, func(_ context.Context, r any, args []any) (any, error) {
		k := key(args[0])
		prev := m(r)[k]
		m(r)[k] = args[1]
		return prev, nil
	}, ObjectClass, ObjectClass)
	declare(HashMapClass, "size", IntPrim, func(_ context.Context, r any, _ []any) (any, error) {
		return len(m(r)), nil
	})
	declare(HashMapClass, "containsKey", BoolPrim, func(_ context.Context, r any, args []any) (any, error) {
		_, ok := m(r)[key(args[0])]
		return ok, nil
	}, ObjectClass)
	HashMapClass.AddConstructor(Public, func(context.Context, any, []any) (any, error) {
		return map[string]any{}, nil
	})
}

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

func installClassMethods() {
	cls := func(fn func(c *Class) any) Func {
		return func(_ context.Context, r any, _ []any) (any, error) {
			return fn(r.(*Class)), nil
		}
	}
	declare(ClassClass, "getName", StringClass, cls(func(c *Class) any { return c.FullName() }))
	declare(ClassClass, "getSimpleName", StringClass, cls(func(c *Class) any { return c.SimpleName() }))
	declare(ClassClass, "getPackageName", StringClass, cls(func(c *Class) any { return c.Package }))
	declare(ClassClass, "getSuperclass", ClassClass, cls(func(c *Class) any {
		if c.Superclass == nil {
			return nil
		}
		return c.Superclass
	}))
	declare(ClassClass, "isInterface", BoolPrim, cls(func(c *Class) any { return c.IsInterface() }))
	declare(ClassClass, "isAssignableFrom", BoolPrim, func(_ context.Context, r any, args []any) (any, error) {
		other, _ := args[0].(*Class)
		return r.(*Class).IsAssignableFrom(other), nil
	}, ClassClass)
}

// ---------------------------------------------------------------------------
// Closure
// ---------------------------------------------------------------------------

func installClosureMethods() {
	cl := func(r any) *Closure { return r.(*Closure) }
	varargs := []*Class{ObjectArrayClass}

	declare(ClosureClass, "call", ObjectClass, func(ctx context.Context, r any, args []any) (any, error) {
		return cl(r).Call(ctx, args[0].([]any)...)
	}, varargs...)
	declare(ClosureClass, "curry", ClosureClass, func(_ context.Context, r any, args []any) (any, error) {
		return cl(r).Curry(args[0].([]any)...), nil
	}, varargs...)
	declare(ClosureClass, "getOwner", ObjectClass, func(_ context.Context, r any, _ []any) (any, error) {
		return cl(r).Owner(), nil
	})
	declare(ClosureClass, "getThisObject", ObjectClass, func(_ context.Context, r any, _ []any) (any, error) {
		return cl(r).ThisObject(), nil
	})
	declare(ClosureClass, "getDelegate", ObjectClass, func(_ context.Context, r any, _ []any) (any, error) {
		return cl(r).Delegate(), nil
	})
	declare(ClosureClass, "setDelegate", nil, func(_ context.Context, r any, args []any) (any, error) {
		cl(r).SetDelegate(args[0])
		return nil, nil
	}, ObjectClass)
	declare(ClosureClass, "getResolveStrategy", IntPrim, func(_ context.Context, r any, _ []any) (any, error) {
		return int(cl(r).ResolveStrategy()), nil
	})
	declare(ClosureClass, "setResolveStrategy", nil, func(_ context.Context, r any, args []any) (any, error) {
		s := args[0].(int)
		if s < int(OwnerFirst) || s > int(ToSelf) {
			return nil, fmt.Errorf("invalid resolve strategy %d", s)
		}
		cl(r).SetResolveStrategy(ResolveStrategy(s))
		return nil, nil
	}, IntPrim)
	declare(ClosureClass, "getMaximumNumberOfParameters", IntPrim, func(_ context.Context, r any, _ []any) (any, error) {
		return cl(r).MaximumNumberOfParameters(), nil
	})
	declare(ClosureClass, "getParameterTypes", ClassClass.ArrayOf(), func(_ context.Context, r any, _ []any) (any, error) {
		types := cl(r).ParameterTypes()
		out := make([]any, len(types))
		for i, t := range types {
			out[i] = t
		}
		return out, nil
	})
}
