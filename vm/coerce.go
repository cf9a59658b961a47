package vm

import (
	"fmt"
	"math/big"
	"reflect"
)

// Coerce fits args to m's parameter list: it fixes the argument count
// (implicit nil, varargs packing) and converts each value to the Go
// representation of its parameter type. It is a pure function of its inputs.
func Coerce(args []any, m *Method) ([]any, error) {
	fixed := m.correctArguments(args)
	if len(fixed) != len(m.Params) {
		return nil, fmt.Errorf("%w: %s expects %d arguments, got %d", ErrCoercion, m, len(m.Params), len(args))
	}
	var out []any
	for i, p := range m.Params {
		v, err := CastTo(fixed[i], p)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, m, err)
		}
		if out == nil && !sameValue(v, fixed[i]) {
			out = append([]any(nil), fixed...)
		}
		if out != nil {
			out[i] = v
		}
	}
	if out == nil {
		return fixed, nil
	}
	return out, nil
}

// sameValue reports whether a and b are the same value without comparing
// values whose dynamic type cannot be compared.
func sameValue(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil {
		return true
	}
	switch ta.Kind() {
	case reflect.Struct, reflect.Array:
		return false
	}
	if !ta.Comparable() {
		return false
	}
	return a == b
}

// CastTo converts v to the Go representation of class c. Numbers convert
// freely across the numeric tower; nil fails for primitives.
func CastTo(v any, c *Class) (any, error) {
	if v == nil {
		if c.Primitive {
			return nil, fmt.Errorf("%w: cannot assign null to primitive %s", ErrCoercion, c)
		}
		return nil, nil
	}
	if c == ObjectClass || c == nil {
		return v, nil
	}
	if c.IsArray() {
		arr, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not an array of %s", ErrCoercion, v, c.Component)
		}
		if c.Component == ObjectClass {
			return arr, nil
		}
		out := make([]any, len(arr))
		for i, e := range arr {
			ce, err := CastTo(e, c.Component)
			if err != nil {
				return nil, err
			}
			out[i] = ce
		}
		return out, nil
	}
	switch Box(c) {
	case IntegerClass:
		n, err := toInt64(v)
		return int(n), err
	case LongClass:
		return toInt64(v)
	case ShortClass:
		n, err := toInt64(v)
		return int16(n), err
	case ByteClass:
		n, err := toInt64(v)
		return int8(n), err
	case FloatClass:
		f, err := toFloat64(v)
		return float32(f), err
	case DoubleClass:
		return toFloat64(v)
	case BigIntegerClass:
		return toBigInt(v)
	case BigDecimalClass:
		return toBigFloat(v)
	case NumberClass:
		if _, err := toFloat64(v); err != nil {
			return nil, err
		}
		return v, nil
	case BooleanClass:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case CharacterClass:
		switch x := v.(type) {
		case Char:
			return x, nil
		case string:
			if r := []rune(x); len(r) == 1 {
				return Char(r[0]), nil
			}
		}
	case StringClass:
		switch x := v.(type) {
		case string:
			return x, nil
		case Char:
			return string(rune(x)), nil
		}
	default:
		vc := ClassOf(v)
		if vc == nil || Assignable(c, vc) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot cast %T to %s", ErrCoercion, v, c)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case Char:
		return int64(x), nil
	case float32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case *big.Int:
		return x.Int64(), nil
	case *big.Float:
		n, _ := x.Int64()
		return n, nil
	}
	return 0, fmt.Errorf("%w: %T is not a number", ErrCoercion, v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f, nil
	case *big.Float:
		f, _ := x.Float64()
		return f, nil
	}
	n, err := toInt64(v)
	return float64(n), err
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		return x, nil
	case *big.Float:
		n, _ := x.Int(nil)
		return n, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	return big.NewInt(n), nil
}

func toBigFloat(v any) (*big.Float, error) {
	switch x := v.(type) {
	case *big.Float:
		return x, nil
	case *big.Int:
		return new(big.Float).SetInt(x), nil
	case float32, float64:
		f, _ := toFloat64(v)
		return big.NewFloat(f), nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	return new(big.Float).SetInt64(n), nil
}
