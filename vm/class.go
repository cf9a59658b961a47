package vm

import (
	"reflect"
	"sort"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Class: reflective description of a loaded type
// ---------------------------------------------------------------------------

// Class describes a loaded type: where it sits in the hierarchy and which
// members it declares. Descriptions are supplied by the host (builtin types,
// the gowrap bridge, or a loader.Compiler) and are treated as read-only once
// a ClassMetadata has been built for them.
type Class struct {
	Name       string
	Package    string
	Superclass *Class
	Interfaces []*Class
	Modifiers  Modifiers

	// Dynamic marks classes produced by the dynamic language rather than
	// plain host types. It is inherited by subclasses.
	Dynamic bool

	Primitive bool
	Component *Class // element type for array classes

	Methods      []*Method
	Constructors []*Method
	Fields       []*Field

	// RecordComponents names the accessor-backed components of a record
	// type, in declaration order.
	RecordComponents []string

	// BeanInfo overrides the default property introspection.
	BeanInfo func(*Class) ([]PropertyDescriptor, error)

	// GoType is set for classes that describe a Go type.
	GoType reflect.Type

	staticMu sync.RWMutex
	statics  map[*Field]any

	arrayOnce sync.Once
	arrayType *Class
}

// NewClass creates a public host class. A nil superclass means Object.
func NewClass(name string, superclass *Class) *Class {
	if superclass == nil {
		superclass = ObjectClass
	}
	pkg, simple := splitName(name)
	return &Class{
		Name:       simple,
		Package:    pkg,
		Superclass: superclass,
		Modifiers:  Public,
	}
}

// NewDynamicClass creates a class with the dynamic object capability.
func NewDynamicClass(name string, superclass *Class) *Class {
	c := NewClass(name, superclass)
	c.Dynamic = true
	return c
}

// NewInterface creates a public interface extending the given interfaces.
func NewInterface(name string, extends ...*Class) *Class {
	pkg, simple := splitName(name)
	return &Class{
		Name:       simple,
		Package:    pkg,
		Interfaces: extends,
		Modifiers:  Public | Interface | Abstract,
	}
}

func splitName(name string) (pkg, simple string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// Implement appends interfaces to the class and returns it.
func (c *Class) Implement(ifaces ...*Class) *Class {
	c.Interfaces = append(c.Interfaces, ifaces...)
	return c
}

// ---------------------------------------------------------------------------
// Member declaration helpers
// ---------------------------------------------------------------------------

// AddMethod declares m on c. The method's owner is set to c.
func (c *Class) AddMethod(m *Method) *Method {
	m.Owner = c
	c.Methods = append(c.Methods, m)
	return m
}

// Define declares a public method returning Object.
func (c *Class) Define(name string, fn Func, params ...*Class) *Method {
	return c.AddMethod(NewMethod(name, Public, ObjectClass, params, fn))
}

// DefineStatic declares a public static method returning Object.
func (c *Class) DefineStatic(name string, fn Func, params ...*Class) *Method {
	return c.AddMethod(NewMethod(name, Public|Static, ObjectClass, params, fn))
}

// AddConstructor declares a constructor. fn receives the class as receiver
// and returns the new instance.
func (c *Class) AddConstructor(mods Modifiers, fn Func, params ...*Class) *Method {
	m := NewMethod(ConstructorName, mods, c, params, fn)
	m.Owner = c
	c.Constructors = append(c.Constructors, m)
	return m
}

// AddField declares f on c.
func (c *Class) AddField(f *Field) *Field {
	f.Owner = c
	c.Fields = append(c.Fields, f)
	if f.Modifiers.IsStatic() && f.Initial != nil {
		c.setStatic(f, f.Initial)
	}
	return f
}

// DeclaredMethod returns the method declared directly on c with the given
// name and parameter types, or nil.
func (c *Class) DeclaredMethod(name string, params ...*Class) *Method {
	for _, m := range c.Methods {
		if m.Name == name && sameTypes(m.Params, params) {
			return m
		}
	}
	return nil
}

// DeclaredField returns the field declared directly on c, or nil.
func (c *Class) DeclaredField(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldNamed searches c and its superclasses for a field.
func (c *Class) FieldNamed(name string) *Field {
	for cur := c; cur != nil; cur = cur.Superclass {
		if f := cur.DeclaredField(name); f != nil {
			return f
		}
	}
	return nil
}

// NewInstance allocates an empty instance of c.
func (c *Class) NewInstance() *Object {
	return &Object{class: c}
}

func (c *Class) getStatic(f *Field) any {
	c.staticMu.RLock()
	defer c.staticMu.RUnlock()
	return c.statics[f]
}

func (c *Class) setStatic(f *Field, v any) {
	c.staticMu.Lock()
	defer c.staticMu.Unlock()
	if c.statics == nil {
		c.statics = make(map[*Field]any)
	}
	c.statics[f] = v
}

// ---------------------------------------------------------------------------
// Type tests
// ---------------------------------------------------------------------------

// IsInterface returns true for interface types.
func (c *Class) IsInterface() bool { return c.Modifiers&Interface != 0 }

// IsArray returns true for array types.
func (c *Class) IsArray() bool { return c.Component != nil }

// IsDynamic reports whether c or one of its superclasses has the dynamic
// object capability.
func (c *Class) IsDynamic() bool {
	for cur := c; cur != nil; cur = cur.Superclass {
		if cur.Dynamic {
			return true
		}
	}
	return false
}

// IsSubclassOf returns true if c is other or extends it through the
// superclass chain.
func (c *Class) IsSubclassOf(other *Class) bool {
	for current := c; current != nil; current = current.Superclass {
		if current == other {
			return true
		}
	}
	return false
}

// IsAssignableFrom reports whether a value of class other can be used where
// c is expected, by plain subtyping (no boxing, no widening).
func (c *Class) IsAssignableFrom(other *Class) bool {
	if other == nil {
		return false
	}
	if c == other {
		return true
	}
	if c.Primitive || other.Primitive {
		return false
	}
	if c.IsArray() {
		return other.IsArray() && !c.Component.Primitive && !other.Component.Primitive &&
			c.Component.IsAssignableFrom(other.Component)
	}
	if c == ObjectClass {
		return other != NullClass
	}
	if c.IsInterface() {
		return other.implements(c)
	}
	return other.IsSubclassOf(c)
}

func (c *Class) implements(iface *Class) bool {
	for cur := c; cur != nil; cur = cur.Superclass {
		for _, i := range cur.Interfaces {
			if i == iface || i.implements(iface) {
				return true
			}
		}
	}
	return false
}

// InSamePackage reports whether both classes live in the same package.
func (c *Class) InSamePackage(other *Class) bool {
	return other != nil && c.Package == other.Package
}

// ---------------------------------------------------------------------------
// Hierarchy helpers
// ---------------------------------------------------------------------------

// Superclasses returns the chain from the root down to c itself.
func (c *Class) Superclasses() []*Class {
	var chain []*Class
	for current := c; current != nil; current = current.Superclass {
		chain = append(chain, current)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// SuperClassDistance counts the classes from c up to the root inclusive:
// Object is 1, a direct subclass of Object is 2. Trampoline names encode it.
func (c *Class) SuperClassDistance() int {
	n := 0
	for current := c; current != nil; current = current.Superclass {
		n++
	}
	return n
}

// Depth returns the inheritance depth (0 for a root class).
func (c *Class) Depth() int {
	return c.SuperClassDistance() - 1
}

// AllInterfaces returns every interface c implements, transitively,
// including c itself when it is an interface. The result is sorted by name.
func (c *Class) AllInterfaces() []*Class {
	seen := make(map[*Class]bool)
	var out []*Class
	var visit func(i *Class)
	visit = func(i *Class) {
		if seen[i] {
			return
		}
		seen[i] = true
		out = append(out, i)
		for _, sup := range i.Interfaces {
			visit(sup)
		}
	}
	if c.IsInterface() {
		visit(c)
	}
	for cur := c; cur != nil; cur = cur.Superclass {
		for _, i := range cur.Interfaces {
			visit(i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].FullName() < out[b].FullName() })
	return out
}

// isTrampoline reports whether name is a generated this$/super$ accessor.
func isTrampoline(name string) bool {
	return strings.HasPrefix(name, "this$") || strings.HasPrefix(name, "super$")
}

// indexableMethods returns the declared methods that take part in ordinary
// dispatch; trampolines are only reachable through substitution.
func (c *Class) indexableMethods() []*Method {
	out := make([]*Method, 0, len(c.Methods))
	for _, m := range c.Methods {
		if !isTrampoline(m.Name) {
			out = append(out, m)
		}
	}
	return out
}

// mopMethods returns the trampolines declared on c and its superclasses,
// sorted by name.
func (c *Class) mopMethods() []*Method {
	var out []*Method
	for cur := c; cur != nil; cur = cur.Superclass {
		for _, m := range cur.Methods {
			if isTrampoline(m.Name) {
				out = append(out, m)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ---------------------------------------------------------------------------
// Names
// ---------------------------------------------------------------------------

// FullName returns the package-qualified name.
func (c *Class) FullName() string {
	if c.IsArray() {
		return c.Component.FullName() + "[]"
	}
	if c.Package == "" {
		return c.Name
	}
	return c.Package + "." + c.Name
}

// SimpleName returns the unqualified name.
func (c *Class) SimpleName() string {
	if c.IsArray() {
		return c.Component.SimpleName() + "[]"
	}
	return c.Name
}

// String implements the Stringer interface.
func (c *Class) String() string {
	if c == nil {
		return "null"
	}
	return c.FullName()
}

// ---------------------------------------------------------------------------
// ClassTable: global registry of classes by name
// ---------------------------------------------------------------------------

// ClassTable maps fully qualified names to classes.
type ClassTable struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewClassTable creates a table pre-populated with the builtin classes.
func NewClassTable() *ClassTable {
	ct := &ClassTable{classes: make(map[string]*Class)}
	for _, c := range builtinClasses() {
		ct.classes[c.FullName()] = c
	}
	return ct
}

// Register adds or replaces a class, returning the previous entry.
func (ct *ClassTable) Register(c *Class) *Class {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	key := c.FullName()
	prev := ct.classes[key]
	ct.classes[key] = c
	return prev
}

// Lookup finds a class by qualified name.
func (ct *ClassTable) Lookup(name string) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.classes[name]
}

// Remove drops a class by qualified name.
func (ct *ClassTable) Remove(name string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.classes, name)
}

// Has returns true if a class with this name is registered.
func (ct *ClassTable) Has(name string) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	_, ok := ct.classes[name]
	return ok
}

// All returns all registered classes sorted by name.
func (ct *ClassTable) All() []*Class {
	ct.mu.RLock()
	result := make([]*Class, 0, len(ct.classes))
	for _, c := range ct.classes {
		result = append(result, c)
	}
	ct.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].FullName() < result[j].FullName() })
	return result
}

// Len returns the number of registered classes.
func (ct *ClassTable) Len() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.classes)
}
