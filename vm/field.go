package vm

import "fmt"

// Field is a declared data member. Instance fields live on *Object values;
// static fields live on the declaring class. Host classes supply Getter and
// Setter to reach into Go values.
type Field struct {
	Name      string
	Type      *Class
	Modifiers Modifiers
	Owner     *Class
	Initial   any

	Getter func(receiver any) (any, error)
	Setter func(receiver any, value any) error
}

// NewField creates a field description.
func NewField(name string, typ *Class, mods Modifiers) *Field {
	if typ == nil {
		typ = ObjectClass
	}
	return &Field{Name: name, Type: typ, Modifiers: mods}
}

// WithInitial sets the initial value and returns f.
func (f *Field) WithInitial(v any) *Field {
	f.Initial = v
	return f
}

// Get reads the field from receiver.
func (f *Field) Get(receiver any) (any, error) {
	if f.Getter != nil {
		return f.Getter(receiver)
	}
	if f.Modifiers.IsStatic() {
		return f.Owner.getStatic(f), nil
	}
	obj, ok := receiver.(*Object)
	if !ok || !obj.class.IsSubclassOf(f.Owner) {
		return nil, fmt.Errorf("field %s of %s not readable on %T", f.Name, f.Owner, receiver)
	}
	return obj.getField(f), nil
}

// Set writes the field on receiver after coercing value to the field type.
func (f *Field) Set(receiver any, value any) error {
	v, err := CastTo(value, f.Type)
	if err != nil {
		return err
	}
	if f.Setter != nil {
		return f.Setter(receiver, v)
	}
	if f.Modifiers.IsStatic() {
		f.Owner.setStatic(f, v)
		return nil
	}
	obj, ok := receiver.(*Object)
	if !ok || !obj.class.IsSubclassOf(f.Owner) {
		return fmt.Errorf("field %s of %s not writable on %T", f.Name, f.Owner, receiver)
	}
	obj.setField(f, v)
	return nil
}

// String renders the field as "Owner.name".
func (f *Field) String() string {
	return f.Owner.String() + "." + f.Name
}
