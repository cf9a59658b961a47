package vm

// ---------------------------------------------------------------------------
// Parameter distance
// ---------------------------------------------------------------------------

// Shifts place each kind of conversion cost in its own band so that a
// cheaper band can never outweigh a costlier one.
const (
	objectShift    = 23
	interfaceShift = 0
	primitiveShift = 21
	varargsShift   = 44
)

// primitiveOrder indexes the rows and columns of primitiveDistance.
var primitiveOrder = []*Class{
	BoolPrim, BooleanClass,
	BytePrim, ByteClass,
	ShortPrim, ShortClass,
	CharPrim, CharacterClass,
	IntPrim, IntegerClass,
	LongPrim, LongClass,
	BigIntegerClass,
	FloatPrim, FloatClass,
	DoublePrim, DoubleClass,
	BigDecimalClass,
	NumberClass,
	ObjectClass,
}

// primitiveDistance[arg][param] is the cost of passing an argument of the
// row type to a parameter of the column type.
var primitiveDistance = [][]int64{
	{0, 1, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 2},
	{1, 0, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 2},
	{18, 19, 0, 1, 2, 3, 16, 17, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
	{18, 19, 1, 0, 2, 3, 16, 17, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
	{18, 19, 14, 15, 0, 1, 16, 17, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
	{18, 19, 14, 15, 1, 0, 16, 17, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
	{18, 19, 16, 17, 14, 15, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
	{18, 19, 16, 17, 14, 15, 1, 0, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
	{18, 19, 14, 15, 12, 13, 16, 17, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	{18, 19, 14, 15, 12, 13, 16, 17, 1, 0, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	{18, 19, 14, 15, 12, 13, 16, 17, 10, 11, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{18, 19, 14, 15, 12, 13, 16, 17, 10, 11, 1, 0, 2, 3, 4, 5, 6, 7, 8, 9},
	{18, 19, 9, 10, 7, 8, 16, 17, 5, 6, 3, 4, 0, 14, 15, 12, 13, 11, 1, 2},
	{18, 19, 14, 15, 12, 13, 16, 17, 10, 11, 8, 9, 7, 0, 1, 2, 3, 4, 5, 6},
	{18, 19, 14, 15, 12, 13, 16, 17, 10, 11, 8, 9, 7, 1, 0, 2, 3, 4, 5, 6},
	{18, 19, 14, 15, 12, 13, 16, 17, 10, 11, 8, 9, 7, 5, 6, 0, 1, 2, 3, 4},
	{18, 19, 14, 15, 12, 13, 16, 17, 10, 11, 8, 9, 7, 5, 6, 1, 0, 2, 3, 4},
	{18, 19, 14, 15, 12, 13, 16, 17, 10, 11, 8, 9, 7, 5, 6, 3, 4, 0, 1, 2},
	{18, 19, 14, 15, 12, 13, 16, 17, 10, 11, 8, 9, 7, 5, 6, 3, 4, 2, 0, 1},
	{18, 19, 14, 15, 12, 13, 16, 17, 10, 11, 8, 9, 7, 5, 6, 3, 4, 2, 1, 0},
}

func primitiveIndex(c *Class) int {
	for i, p := range primitiveOrder {
		if p == c {
			return i
		}
	}
	return -1
}

func primitiveDistanceOf(param, arg *Class) int64 {
	pi, ai := primitiveIndex(param), primitiveIndex(arg)
	if pi == -1 || ai == -1 {
		return -1
	}
	return primitiveDistance[ai][pi]
}

// interfaceDistance is the longest path from c to iface through the
// implements and extends edges, or -1 when c does not implement iface.
func interfaceDistance(c, iface *Class) int64 {
	if c == nil {
		return -1
	}
	if c == iface {
		return 0
	}
	max := int64(-1)
	for _, i := range c.Interfaces {
		sub := interfaceDistance(i, iface)
		if sub != -1 {
			sub++
		}
		if sub > max {
			max = sub
		}
	}
	sup := interfaceDistance(c.Superclass, iface)
	if sup != -1 {
		sup++
	}
	if sup > max {
		max = sup
	}
	return max
}

// argumentDistance scores a single argument against a single parameter.
// Lower is more specific; 0 is an exact match.
func argumentDistance(arg, param *Class) int64 {
	if param == arg {
		return 0
	}
	if param.IsInterface() {
		if arg == NullClass {
			return 2
		}
		if d := interfaceDistance(Box(arg), param); d >= 0 {
			return d << interfaceShift
		}
	}
	var d int64
	if arg != NullClass {
		if pd := primitiveDistanceOf(param, arg); pd != -1 {
			return pd << primitiveShift
		}
		d += int64(len(primitiveOrder)) + 1
		if arg.IsArray() && !param.IsArray() {
			d += 4
		}
		for c := Box(arg); c != nil && c != param; c = c.Superclass {
			d += 3
		}
		return d << objectShift
	}
	switch {
	case param == NullClass:
		return 0
	case param == ObjectClass:
		return 1 << objectShift
	case param.Primitive:
		d = 2
	default:
		for c := param; c != nil && c != ObjectClass; c = c.Superclass {
			d += 2
		}
	}
	return d << objectShift
}

// ParameterDistance scores how closely argTypes fit m's parameters,
// including the varargs penalties.
func ParameterDistance(argTypes []*Class, m *Method) int64 {
	params := m.Params
	if len(params) == 0 {
		return 0
	}
	var ret int64
	last := len(params) - 1
	for i := 0; i < last && i < len(argTypes); i++ {
		ret += argumentDistance(argTypes[i], params[i])
	}
	switch {
	case len(argTypes) == len(params):
		base := params[last]
		if !acceptsArgument(base, argTypes[last]) && base.IsArray() {
			base = base.Component
			ret += 2 << varargsShift
		}
		ret += argumentDistance(argTypes[last], base)
	case len(argTypes) > len(params):
		ret += int64(2+len(argTypes)-len(params)) << varargsShift
		component := params[last].Component
		if component == nil {
			component = ObjectClass
		}
		for i := last; i < len(argTypes); i++ {
			ret += argumentDistance(argTypes[i], component)
		}
	default:
		ret += 1 << varargsShift
	}
	return ret
}

// ---------------------------------------------------------------------------
// Assignability with boxing and numeric widening
// ---------------------------------------------------------------------------

var widening = map[*Class][]*Class{
	IntegerClass:    {ShortClass, ByteClass, BigIntegerClass},
	DoubleClass:     {IntegerClass, LongClass, ShortClass, ByteClass, FloatClass, BigDecimalClass, BigIntegerClass},
	BigDecimalClass: {DoubleClass, IntegerClass, LongClass, ShortClass, ByteClass, FloatClass, BigIntegerClass},
	BigIntegerClass: {IntegerClass, LongClass, ShortClass, ByteClass},
	LongClass:       {IntegerClass, ShortClass, ByteClass},
	FloatClass:      {IntegerClass, LongClass, ShortClass, ByteClass},
	ShortClass:      {ByteClass},
}

// Assignable reports whether a value of type from can be passed where to is
// expected, allowing nil, boxing, and the numeric widening table.
func Assignable(to, from *Class) bool {
	if to == from || from == NullClass || from == nil || to == ObjectClass {
		return true
	}
	to, from = Box(to), Box(from)
	if to == from {
		return true
	}
	for _, w := range widening[to] {
		if w == from {
			return true
		}
	}
	return to.IsAssignableFrom(from)
}

// acceptsArgument is Assignable for a parameter slot: nil does not fit a
// primitive.
func acceptsArgument(param, arg *Class) bool {
	if arg == NullClass {
		return !param.Primitive
	}
	return Assignable(param, arg)
}

// parametersCompatible reports whether every params[i] accepts args[i].
func parametersCompatible(args, params []*Class) bool {
	if len(args) != len(params) {
		return false
	}
	for i := range args {
		if !Assignable(params[i], args[i]) {
			return false
		}
	}
	return true
}
