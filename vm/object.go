package vm

import (
	"fmt"
	"sync"
)

// Object is an instance of a class described by this runtime. Field values
// are keyed by their declaring Field so that shadowed names in subclasses
// stay distinct.
type Object struct {
	class *Class

	mu     sync.RWMutex
	fields map[*Field]any
}

// NewObject allocates an instance of c with field initial values applied.
func NewObject(c *Class) *Object {
	o := c.NewInstance()
	for cur := c; cur != nil; cur = cur.Superclass {
		for _, f := range cur.Fields {
			if !f.Modifiers.IsStatic() && f.Initial != nil {
				o.setField(f, f.Initial)
			}
		}
	}
	return o
}

// Class returns the object's class.
func (o *Object) Class() *Class { return o.class }

func (o *Object) getField(f *Field) any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.fields[f]
}

func (o *Object) setField(f *Field, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fields == nil {
		o.fields = make(map[*Field]any)
	}
	o.fields[f] = v
}

// FieldValue reads a field by name, searching the class chain.
func (o *Object) FieldValue(name string) (any, bool) {
	f := o.class.FieldNamed(name)
	if f == nil || f.Modifiers.IsStatic() {
		return nil, false
	}
	return o.getField(f), true
}

// String implements the Stringer interface.
func (o *Object) String() string {
	return fmt.Sprintf("%s@%p", o.class.FullName(), o)
}
