package vm

// isValidFor reports whether m can accept arguments of the given types.
// A trailing array parameter also accepts zero or more loose arguments of
// its component type.
func (m *Method) isValidFor(argTypes []*Class) bool {
	params := m.Params
	size := len(argTypes)
	last := len(params) - 1

	if m.IsVarargs() && size >= last {
		for i := 0; i < last; i++ {
			if !acceptsArgument(params[i], argTypes[i]) {
				return false
			}
		}
		varg := params[last]
		if size == len(params) {
			if acceptsArgument(varg, argTypes[last]) {
				return true
			}
			if c := argTypes[last].Component; c != nil && Assignable(varg.Component, c) {
				return true
			}
		}
		for i := last; i < size; i++ {
			if !Assignable(varg.Component, argTypes[i]) {
				return false
			}
		}
		return true
	}
	if len(params) == size {
		for i := range params {
			if !acceptsArgument(params[i], argTypes[i]) {
				return false
			}
		}
		return true
	}
	// A lone reference parameter can be called with no arguments; it
	// receives nil.
	return len(params) == 1 && size == 0 && !params[0].Primitive
}

// spreadsVarargs reports whether args must be repacked into m's trailing
// array slot.
func (m *Method) spreadsVarargs(args []any) bool {
	if !m.IsVarargs() {
		return false
	}
	last := len(m.Params) - 1
	switch {
	case last == len(args):
		return true
	case last > len(args):
		return false
	case len(args) > len(m.Params):
		return true
	}
	a := args[len(args)-1]
	if a == nil {
		return false
	}
	_, isArray := a.([]any)
	return !isArray
}

// correctArguments fixes the argument count for m: implicit nil for a lone
// parameter, an empty varargs slot, or loose trailing arguments packed into
// an array.
func (m *Method) correctArguments(args []any) []any {
	params := m.Params
	if len(params) == 1 && len(args) == 0 {
		if m.IsVarargs() {
			return []any{[]any{}}
		}
		return []any{nil}
	}
	if !m.spreadsVarargs(args) {
		return args
	}
	last := len(params) - 1
	out := make([]any, len(params))
	copy(out, args[:last])
	if len(args) == last {
		out[last] = []any{}
		return out
	}
	out[last] = append([]any(nil), args[last:]...)
	return out
}
