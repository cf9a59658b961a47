package gowrap

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"sync"

	"github.com/chazu/mop/vm"
)

// Bridge describes Go types on demand and remembers the result, so every
// value of a type shares one class. It implements vm.HostDescriber.
type Bridge struct {
	mu      sync.Mutex
	classes map[reflect.Type]*vm.Class
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{classes: make(map[reflect.Type]*vm.Class)}
}

// Describe builds a host class for t with a throwaway bridge.
func Describe(t reflect.Type) *vm.Class {
	return NewBridge().Describe(t)
}

// Describe returns the class of t, building it on first use. Unnamed types
// have no class and return nil.
func (b *Bridge) Describe(t reflect.Type) *vm.Class {
	if t == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.describeLocked(t)
}

// Install makes reg describe unknown Go values through b.
func (b *Bridge) Install(reg *vm.Registry) {
	reg.SetDescriber(b)
}

// Bind describes the type of each sample value and registers it with reg
// ahead of first use.
func (b *Bridge) Bind(reg *vm.Registry, samples ...any) error {
	for _, s := range samples {
		t := reflect.TypeOf(s)
		c := b.Describe(t)
		if c == nil {
			return fmt.Errorf("gowrap: cannot describe %v", t)
		}
		reg.RegisterHostType(t, c)
	}
	return nil
}

// Len returns the number of described types.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.classes)
}

func (b *Bridge) describeLocked(t reflect.Type) *vm.Class {
	if c, ok := b.classes[t]; ok {
		return c
	}
	tm, err := Introspect(t)
	if err != nil {
		return nil
	}

	c := vm.NewClass(tm.Name, nil)
	// Cache first: field and parameter types may refer back to t.
	b.classes[t] = c

	for _, fm := range tm.Fields {
		c.AddField(b.field(fm))
	}
	for _, fm := range tm.Methods {
		c.AddMethod(b.method(fm))
	}
	return c
}

// classFor maps a Go type to the class its values dispatch as.
func (b *Bridge) classFor(t reflect.Type) *vm.Class {
	switch t {
	case reflect.TypeOf(vm.Char(0)):
		return vm.CharacterClass
	case reflect.TypeOf((*big.Int)(nil)):
		return vm.BigIntegerClass
	case reflect.TypeOf((*big.Float)(nil)):
		return vm.BigDecimalClass
	case reflect.TypeOf([]any(nil)):
		return vm.ObjectArrayClass
	case reflect.TypeOf(map[string]any(nil)):
		return vm.HashMapClass
	case reflect.TypeOf((*vm.List)(nil)):
		return vm.ArrayListClass
	case reflect.TypeOf((*vm.Closure)(nil)):
		return vm.ClosureClass
	}
	switch t.Kind() {
	case reflect.Bool:
		return vm.BooleanClass
	case reflect.Int, reflect.Int32:
		return vm.IntegerClass
	case reflect.Int8:
		return vm.ByteClass
	case reflect.Int16:
		return vm.ShortClass
	case reflect.Int64, reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return vm.LongClass
	case reflect.Float32:
		return vm.FloatClass
	case reflect.Float64:
		return vm.DoubleClass
	case reflect.String:
		return vm.StringClass
	case reflect.Struct:
		if c := b.describeLocked(t); c != nil {
			return c
		}
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct {
			if c := b.describeLocked(t); c != nil {
				return c
			}
		}
	}
	return vm.ObjectClass
}

func (b *Bridge) field(fm FieldModel) *vm.Field {
	mods := vm.Public
	if !fm.Settable {
		mods |= vm.Final
	}
	f := vm.NewField(fm.Property, b.classFor(fm.GoType), mods)
	index := fm.Index
	f.Getter = func(receiver any) (any, error) {
		sv, err := structValue(receiver)
		if err != nil {
			return nil, err
		}
		fv, err := sv.FieldByIndexErr(index)
		if err != nil {
			return nil, err
		}
		return exportValue(fv), nil
	}
	if fm.Settable {
		f.Setter = func(receiver any, value any) error {
			sv, err := structValue(receiver)
			if err != nil {
				return err
			}
			fv, err := sv.FieldByIndexErr(index)
			if err != nil {
				return err
			}
			cv, err := convertArg(value, fv.Type())
			if err != nil {
				return err
			}
			fv.Set(cv)
			return nil
		}
	}
	return f
}

func (b *Bridge) method(fm FunctionModel) *vm.Method {
	params := make([]*vm.Class, len(fm.Params))
	for i, p := range fm.Params {
		if fm.Variadic && i == len(fm.Params)-1 {
			params[i] = b.classFor(p.GoType.Elem()).ArrayOf()
			continue
		}
		params[i] = b.classFor(p.GoType)
	}

	results := fm.Results
	if fm.ReturnsErr {
		results = results[:len(results)-1]
	}
	var ret *vm.Class
	switch len(results) {
	case 0:
	case 1:
		ret = b.classFor(results[0].GoType)
	default:
		ret = vm.ObjectArrayClass
	}

	return vm.NewMethod(fm.Selector, vm.Public, ret, params, invoker(fm))
}

// invoker calls the Go method behind fm on the receiver. A non-nil error
// result becomes the call's error; several other results come back as an
// array.
func invoker(fm FunctionModel) vm.Func {
	return func(ctx context.Context, receiver any, args []any) (any, error) {
		rv := reflect.ValueOf(receiver)
		if !rv.IsValid() {
			return nil, vm.ErrNullReceiver
		}
		m := rv.MethodByName(fm.Name)
		if !m.IsValid() {
			return nil, fmt.Errorf("%s has no method %s", rv.Type(), fm.Name)
		}
		if len(args) != len(fm.Params) {
			return nil, fmt.Errorf("%w: %s expects %d arguments, got %d", vm.ErrCoercion, fm.Name, len(fm.Params), len(args))
		}

		in := make([]reflect.Value, 0, len(args)+1)
		if fm.TakesContext {
			in = append(in, reflect.ValueOf(ctx))
		}
		for i, a := range args {
			v, err := convertArg(a, fm.Params[i].GoType)
			if err != nil {
				return nil, fmt.Errorf("argument %d of %s: %w", i, fm.Name, err)
			}
			in = append(in, v)
		}

		var out []reflect.Value
		if fm.Variadic {
			out = m.CallSlice(in)
		} else {
			out = m.Call(in)
		}

		if fm.ReturnsErr {
			last := out[len(out)-1]
			out = out[:len(out)-1]
			if !last.IsNil() {
				return nil, last.Interface().(error)
			}
		}
		switch len(out) {
		case 0:
			return nil, nil
		case 1:
			return exportValue(out[0]), nil
		}
		vals := make([]any, len(out))
		for i, o := range out {
			vals[i] = exportValue(o)
		}
		return vals, nil
	}
}
