package vm

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Property is a named, readable and possibly writable member of a class as
// seen through its ClassMetadata.
type Property interface {
	Name() string
	Type() *Class
	Modifiers() Modifiers
	Get(ctx context.Context, receiver any) (any, error)
	Set(ctx context.Context, receiver any, value any) error
}

// PropertyDescriptor is one result of bean introspection.
type PropertyDescriptor struct {
	Name  string
	Type  *Class
	Read  *Method
	Write *Method
}

// ---------------------------------------------------------------------------
// FieldProperty
// ---------------------------------------------------------------------------

// FieldProperty exposes a field directly.
type FieldProperty struct {
	Field *Field
}

func (p *FieldProperty) Name() string         { return p.Field.Name }
func (p *FieldProperty) Type() *Class         { return p.Field.Type }
func (p *FieldProperty) Modifiers() Modifiers { return p.Field.Modifiers }

func (p *FieldProperty) Get(_ context.Context, receiver any) (any, error) {
	return p.Field.Get(receiver)
}

// Set writes the field. Final fields are read-only.
func (p *FieldProperty) Set(_ context.Context, receiver any, value any) error {
	if p.Field.Modifiers.IsFinal() {
		return &ReadOnlyPropertyError{Property: p.Field.Name, Type: p.Field.Owner}
	}
	return p.Field.Set(receiver, value)
}

// ---------------------------------------------------------------------------
// BeanProperty
// ---------------------------------------------------------------------------

// BeanProperty is backed by accessor methods. Field is the same-named field,
// patched in when the property replaces a field during indexing.
type BeanProperty struct {
	name   string
	typ    *Class
	Getter *Method
	Setter *Method
	Field  *Field
}

// NewBeanProperty creates an accessor-backed property.
func NewBeanProperty(name string, typ *Class, getter, setter *Method) *BeanProperty {
	if typ == nil {
		typ = ObjectClass
	}
	return &BeanProperty{name: name, typ: typ, Getter: getter, Setter: setter}
}

func (p *BeanProperty) Name() string { return p.name }
func (p *BeanProperty) Type() *Class { return p.typ }

// Modifiers reports the getter's modifiers, else the setter's, else the
// field's. The property is public when any accessor is.
func (p *BeanProperty) Modifiers() Modifiers {
	var mods Modifiers
	switch {
	case p.Getter != nil:
		mods = p.Getter.Modifiers
	case p.Setter != nil:
		mods = p.Setter.Modifiers
	case p.Field != nil:
		mods = p.Field.Modifiers
	}
	if (p.Getter != nil && p.Getter.IsPublic()) || (p.Setter != nil && p.Setter.IsPublic()) {
		mods = mods&^(Private|Protected) | Public
	}
	return mods
}

func (p *BeanProperty) Get(ctx context.Context, receiver any) (any, error) {
	if p.Getter == nil {
		if p.Field != nil {
			return p.Field.Get(receiver)
		}
		return nil, fmt.Errorf("cannot read write-only property: %s", p.name)
	}
	return p.Getter.Invoke(ctx, receiverFor(p.Getter, receiver))
}

func (p *BeanProperty) Set(ctx context.Context, receiver any, value any) error {
	if p.Setter == nil {
		if p.Field != nil && !p.Field.Modifiers.IsFinal() {
			return p.Field.Set(receiver, value)
		}
		return &ReadOnlyPropertyError{Property: p.name, Type: ownerOf(p)}
	}
	_, err := p.Setter.Invoke(ctx, receiverFor(p.Setter, receiver), value)
	return err
}

func ownerOf(p *BeanProperty) *Class {
	switch {
	case p.Getter != nil:
		return p.Getter.Owner
	case p.Field != nil:
		return p.Field.Owner
	}
	return nil
}

// ---------------------------------------------------------------------------
// MultiSetterProperty
// ---------------------------------------------------------------------------

// MultiSetterProperty stands for a property with several distinct setters.
// Writes go through full dispatch of the setter name so the overload is
// chosen by the value's runtime type.
type MultiSetterProperty struct {
	name       string
	setterName string
	Getter     *Method
	Field      *Field

	dispatcher *Dispatcher
}

func newMultiSetterProperty(name string, d *Dispatcher) *MultiSetterProperty {
	return &MultiSetterProperty{name: name, setterName: "set" + capitalize(name), dispatcher: d}
}

func (p *MultiSetterProperty) Name() string { return p.name }

func (p *MultiSetterProperty) Type() *Class {
	if p.Getter != nil && p.Getter.Return != nil {
		return p.Getter.Return
	}
	return ObjectClass
}

func (p *MultiSetterProperty) Modifiers() Modifiers {
	if p.Getter != nil {
		return p.Getter.Modifiers
	}
	return Public
}

func (p *MultiSetterProperty) Get(ctx context.Context, receiver any) (any, error) {
	if p.Getter == nil {
		if p.Field != nil {
			return p.Field.Get(receiver)
		}
		return nil, fmt.Errorf("cannot read write-only property: %s", p.name)
	}
	return p.Getter.Invoke(ctx, receiverFor(p.Getter, receiver))
}

func (p *MultiSetterProperty) Set(ctx context.Context, receiver any, value any) error {
	var err error
	if c, ok := receiver.(*Class); ok {
		_, err = p.dispatcher.InvokeStatic(ctx, c, p.setterName, value)
	} else {
		_, err = p.dispatcher.InvokeMethod(ctx, receiver, p.setterName, value)
	}
	return err
}

// staticVersion returns the view of p usable on the class itself, or nil.
func (p *MultiSetterProperty) staticVersion() Property {
	getter := p.Getter == nil || p.Getter.IsStatic()
	field := p.Field == nil || p.Field.Modifiers.IsStatic()
	switch {
	case getter && field:
		return p
	case getter:
		cp := *p
		cp.Field = nil
		return &cp
	case field:
		if p.Field != nil {
			return &FieldProperty{Field: p.Field}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// ArrayLengthProperty
// ---------------------------------------------------------------------------

// ArrayLengthProperty is the read-only length of an array receiver.
type ArrayLengthProperty struct{}

func (ArrayLengthProperty) Name() string         { return "length" }
func (ArrayLengthProperty) Type() *Class         { return IntPrim }
func (ArrayLengthProperty) Modifiers() Modifiers { return Public | Final }

func (ArrayLengthProperty) Get(_ context.Context, receiver any) (any, error) {
	arr, ok := receiver.([]any)
	if !ok {
		return nil, fmt.Errorf("length: %T is not an array", receiver)
	}
	return len(arr), nil
}

func (ArrayLengthProperty) Set(context.Context, any, any) error {
	return &ReadOnlyPropertyError{Property: "length", Type: ObjectArrayClass}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// receiverFor passes the owning class to static accessors.
func receiverFor(m *Method, receiver any) any {
	if m.IsStatic() {
		if _, ok := receiver.(*Class); !ok {
			return m.Owner
		}
	}
	return receiver
}

// fieldOf returns the field behind a property, if any.
func fieldOf(p Property) *Field {
	switch x := p.(type) {
	case *FieldProperty:
		return x.Field
	case *BeanProperty:
		return x.Field
	case *MultiSetterProperty:
		return x.Field
	}
	return nil
}

// decapitalize follows the bean naming rule: "URL" stays, "Name" becomes
// "name".
func decapitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	if len(r) > 1 && unicode.IsUpper(r[0]) && unicode.IsUpper(r[1]) {
		return s
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// accessorKind classifies a method name as a getter ("is" or "get") or a
// setter and returns the property name it implies.
func accessorKind(name string) (prop string, getter, boolean, ok bool) {
	switch {
	case strings.HasPrefix(name, "is") && len(name) >= 3:
		return decapitalize(name[2:]), true, true, true
	case strings.HasPrefix(name, "get") && len(name) >= 4:
		return decapitalize(name[3:]), true, false, true
	case strings.HasPrefix(name, "set") && len(name) >= 4:
		return decapitalize(name[3:]), false, false, true
	}
	return "", false, false, false
}

// isValidAccessorName reports whether name looks like a bean accessor.
func isValidAccessorName(name string) bool {
	_, _, _, ok := accessorKind(name)
	return ok
}

// filterPropertyMethods keeps the overloads usable as a getter (no
// parameters, non-void, primitive boolean for "is") or setter (one
// parameter). Several getters collapse to the one with the most general
// return type.
func filterPropertyMethods(set []*Method, getter, boolean bool) []*Method {
	var out []*Method
	for _, m := range set {
		n := len(m.Params)
		if !getter && n == 1 {
			out = append(out, m)
		}
		if getter && n == 0 && !m.IsVoid() && (!boolean || m.Return == BoolPrim) {
			out = append(out, m)
		}
	}
	if !getter || len(out) < 2 {
		return out
	}
	best := out[0]
	for _, m := range out[1:] {
		if m.Return.SuperClassDistance() < best.Return.SuperClassDistance() {
			best = m
		}
	}
	return []*Method{best}
}

// ---------------------------------------------------------------------------
// propertyMap: insertion-ordered name -> Property
// ---------------------------------------------------------------------------

type propertyMap struct {
	names  []string
	byName map[string]Property
}

func newPropertyMap() *propertyMap {
	return &propertyMap{byName: make(map[string]Property)}
}

func (pm *propertyMap) get(name string) Property {
	if pm == nil {
		return nil
	}
	return pm.byName[name]
}

func (pm *propertyMap) put(name string, p Property) {
	if _, ok := pm.byName[name]; !ok {
		pm.names = append(pm.names, name)
	}
	pm.byName[name] = p
}

func (pm *propertyMap) len() int {
	if pm == nil {
		return 0
	}
	return len(pm.names)
}

func (pm *propertyMap) each(fn func(name string, p Property)) {
	if pm == nil {
		return
	}
	for _, n := range pm.names {
		fn(n, pm.byName[n])
	}
}

func (pm *propertyMap) values() []Property {
	out := make([]Property, 0, pm.len())
	pm.each(func(_ string, p Property) { out = append(out, p) })
	return out
}
