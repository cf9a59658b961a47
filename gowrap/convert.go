package gowrap

import (
	"fmt"
	"reflect"

	"github.com/chazu/mop/vm"
)

// structValue dereferences receiver to the struct it holds.
func structValue(receiver any) (reflect.Value, error) {
	v := reflect.ValueOf(receiver)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, vm.ErrNullReceiver
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%T is not a struct", receiver)
	}
	return v, nil
}

// convertArg fits a runtime value to Go type t. Numbers convert across
// kinds, []any fills typed slices, and map[string]any fills string-keyed
// maps.
func convertArg(arg any, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(t) {
		return v, nil
	}

	switch x := arg.(type) {
	case []any:
		if t.Kind() == reflect.Slice {
			out := reflect.MakeSlice(t, len(x), len(x))
			for i, e := range x {
				ev, err := convertArg(e, t.Elem())
				if err != nil {
					return reflect.Value{}, err
				}
				out.Index(i).Set(ev)
			}
			return out, nil
		}
	case map[string]any:
		if t.Kind() == reflect.Map && t.Key().Kind() == reflect.String {
			out := reflect.MakeMapWithSize(t, len(x))
			for k, e := range x {
				ev, err := convertArg(e, t.Elem())
				if err != nil {
					return reflect.Value{}, err
				}
				out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
			}
			return out, nil
		}
	}

	if compatibleKinds(v.Kind(), t.Kind()) && v.Type().ConvertibleTo(t) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot use %T as %s", vm.ErrCoercion, arg, t)
}

// compatibleKinds rules out reflect conversions that change meaning, such
// as int to string.
func compatibleKinds(from, to reflect.Kind) bool {
	switch {
	case isNumeric(from) && isNumeric(to):
		return true
	case from == reflect.String && to == reflect.String:
		return true
	case from == reflect.Bool && to == reflect.Bool:
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// exportValue turns a Go result into a runtime value. Nil pointers, maps,
// slices and interfaces become nil; unsigned integers of unnamed types
// widen to int64 to match their Long class.
func exportValue(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if v.Type().PkgPath() == "" {
			return int64(v.Uint())
		}
	}
	if !v.CanInterface() {
		return nil
	}
	return v.Interface()
}
