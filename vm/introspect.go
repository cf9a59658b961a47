package vm

import "sort"

// Introspect returns the bean property descriptors of c. A class-supplied
// BeanInfo hook takes precedence over the naming convention.
func Introspect(c *Class) ([]PropertyDescriptor, error) {
	if c.BeanInfo != nil {
		return c.BeanInfo(c)
	}
	return introspectAccessors(c), nil
}

// introspectAccessors applies the accessor naming convention to the public
// instance methods visible on c: getX() or isX() for reads and setX(v) for
// writes. A setter only pairs with a getter of the same type.
func introspectAccessors(c *Class) []PropertyDescriptor {
	type accessors struct {
		get, is *Method
		sets    []*Method
	}
	found := make(map[string]*accessors)
	var order []string
	at := func(name string) *accessors {
		a, ok := found[name]
		if !ok {
			a = &accessors{}
			found[name] = a
			order = append(order, name)
		}
		return a
	}

	// Walk root first so overriding declarations replace inherited ones.
	for _, cur := range publicChain(c) {
		for _, m := range cur.indexableMethods() {
			if !m.IsPublic() || m.IsStatic() {
				continue
			}
			prop, getter, boolean, ok := accessorKind(m.Name)
			if !ok {
				continue
			}
			switch {
			case getter && boolean:
				if len(m.Params) == 0 && m.Return == BoolPrim {
					at(prop).is = m
				}
			case getter:
				if len(m.Params) == 0 && !m.IsVoid() {
					at(prop).get = m
				}
			default:
				if len(m.Params) == 1 && m.IsVoid() {
					a := at(prop)
					a.sets = replaceOverride(a.sets, m)
				}
			}
		}
	}

	sort.Strings(order)
	out := make([]PropertyDescriptor, 0, len(order))
	for _, name := range order {
		a := found[name]
		read := a.is
		if read == nil {
			read = a.get
		}
		var typ *Class
		if read != nil {
			typ = read.Return
		}
		var write *Method
		for _, s := range a.sets {
			if typ == nil || s.Params[0] == typ {
				write = s
				break
			}
		}
		if write != nil && typ == nil {
			typ = write.Params[0]
		}
		if read == nil && write == nil {
			continue
		}
		out = append(out, PropertyDescriptor{Name: name, Type: typ, Read: read, Write: write})
	}
	return out
}

// publicChain returns the interfaces of c followed by its superclasses,
// root first.
func publicChain(c *Class) []*Class {
	chain := c.AllInterfaces()
	if c.IsInterface() {
		return chain
	}
	return append(chain, c.Superclasses()...)
}

func replaceOverride(set []*Method, m *Method) []*Method {
	for i, s := range set {
		if sameTypes(s.Params, m.Params) {
			set[i] = m
			return set
		}
	}
	return append(set, m)
}
