package gowrap

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// Introspect returns the exported surface of t. t must be a named type or
// a pointer to one.
func Introspect(t reflect.Type) (*TypeModel, error) {
	if t == nil {
		return nil, errors.New("nil type")
	}
	name := GoTypeToClassName(t)
	if name == "" {
		return nil, fmt.Errorf("%s is not a named type", t)
	}

	tm := &TypeModel{
		Name:    name,
		GoType:  t,
		Pointer: t.Kind() == reflect.Pointer,
	}

	base := t
	if tm.Pointer {
		base = t.Elem()
	}
	if base.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(base) {
			if !f.IsExported() || f.Anonymous {
				continue
			}
			tm.Fields = append(tm.Fields, FieldModel{
				Name:     f.Name,
				Property: GoNameToSelector(f.Name),
				Index:    f.Index,
				GoType:   f.Type,
				TypeStr:  f.Type.String(),
				Settable: tm.Pointer,
			})
		}
	}

	// t.Method on a non-interface type includes the receiver as In(0).
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.IsExported() {
			continue
		}
		tm.Methods = append(tm.Methods, functionModelFromType(m.Name, m.Type, 1))
	}
	return tm, nil
}

func functionModelFromType(name string, ft reflect.Type, skip int) FunctionModel {
	fm := FunctionModel{
		Name:     name,
		Selector: GoNameToSelector(name),
		Variadic: ft.IsVariadic(),
	}
	if ft.NumIn() > skip && ft.In(skip) == contextType {
		fm.TakesContext = true
		skip++
	}
	for i := skip; i < ft.NumIn(); i++ {
		p := ft.In(i)
		fm.Params = append(fm.Params, ParamModel{GoType: p, TypeStr: p.String()})
	}
	for i := 0; i < ft.NumOut(); i++ {
		r := ft.Out(i)
		fm.Results = append(fm.Results, ParamModel{GoType: r, TypeStr: r.String()})
	}

	// Check if last result is error
	if n := ft.NumOut(); n > 0 && ft.Out(n-1) == errorType {
		fm.ReturnsErr = true
	}
	return fm
}
