package vm

import (
	"math/big"
	"reflect"
	"strings"
)

// Char is a single character value, dispatched as Character.
type Char rune

// ---------------------------------------------------------------------------
// Builtin classes
// ---------------------------------------------------------------------------

var (
	ObjectClass = &Class{Name: "Object", Package: "lang", Modifiers: Public}

	// NullClass is the type of the nil receiver and nil arguments.
	NullClass = &Class{Name: "NullObject", Package: "lang", Superclass: ObjectClass, Modifiers: Public | Final}

	NumberClass = &Class{Name: "Number", Package: "lang", Superclass: ObjectClass, Modifiers: Public | Abstract}

	BoolPrim   = primitive("boolean")
	BytePrim   = primitive("byte")
	ShortPrim  = primitive("short")
	CharPrim   = primitive("char")
	IntPrim    = primitive("int")
	LongPrim   = primitive("long")
	FloatPrim  = primitive("float")
	DoublePrim = primitive("double")

	BooleanClass    = boxed("Boolean", "lang", ObjectClass)
	ByteClass       = boxed("Byte", "lang", NumberClass)
	ShortClass      = boxed("Short", "lang", NumberClass)
	CharacterClass  = boxed("Character", "lang", ObjectClass)
	IntegerClass    = boxed("Integer", "lang", NumberClass)
	LongClass       = boxed("Long", "lang", NumberClass)
	BigIntegerClass = boxed("BigInteger", "math", NumberClass)
	FloatClass      = boxed("Float", "lang", NumberClass)
	DoubleClass     = boxed("Double", "lang", NumberClass)
	BigDecimalClass = boxed("BigDecimal", "math", NumberClass)

	CharSequenceClass = NewInterface("lang.CharSequence")
	StringClass       = boxed("String", "lang", ObjectClass)

	ClassClass   = boxed("Class", "lang", ObjectClass)
	ClosureClass = &Class{Name: "Closure", Package: "lang", Superclass: ObjectClass, Modifiers: Public | Abstract}

	CollectionClass = NewInterface("util.Collection")
	ListClass       = NewInterface("util.List", CollectionClass)
	MapClass        = NewInterface("util.Map")
	ArrayListClass  = &Class{Name: "ArrayList", Package: "util", Superclass: ObjectClass, Modifiers: Public}
	HashMapClass    = &Class{Name: "HashMap", Package: "util", Superclass: ObjectClass, Modifiers: Public}

	ObjectArrayClass = ObjectClass.ArrayOf()
)

func primitive(name string) *Class {
	return &Class{Name: name, Primitive: true, Modifiers: Public | Final}
}

func boxed(name, pkg string, super *Class) *Class {
	return &Class{Name: name, Package: pkg, Superclass: super, Modifiers: Public | Final}
}

func init() {
	StringClass.Interfaces = []*Class{CharSequenceClass}
	ArrayListClass.Interfaces = []*Class{ListClass}
	HashMapClass.Interfaces = []*Class{MapClass}
	installBuiltinMethods()
}

func builtinClasses() []*Class {
	return []*Class{
		ObjectClass, NullClass, NumberClass,
		BooleanClass, ByteClass, ShortClass, CharacterClass, IntegerClass, LongClass,
		BigIntegerClass, FloatClass, DoubleClass, BigDecimalClass,
		CharSequenceClass, StringClass, ClassClass, ClosureClass,
		CollectionClass, ListClass, MapClass, ArrayListClass, HashMapClass,
	}
}

var primitiveNames = map[string]*Class{
	"boolean": BoolPrim, "byte": BytePrim, "short": ShortPrim, "char": CharPrim,
	"int": IntPrim, "long": LongPrim, "float": FloatPrim, "double": DoublePrim,
}

// BuiltinClass resolves a builtin class by simple name, qualified name, or
// primitive keyword. Array types use a trailing "[]".
func BuiltinClass(name string) *Class {
	if strings.HasSuffix(name, "[]") {
		if c := BuiltinClass(strings.TrimSuffix(name, "[]")); c != nil {
			return c.ArrayOf()
		}
		return nil
	}
	if c, ok := primitiveNames[name]; ok {
		return c
	}
	for _, c := range builtinClasses() {
		if c.Name == name || c.FullName() == name {
			return c
		}
	}
	return nil
}

// ArrayOf returns the array class with component c.
func (c *Class) ArrayOf() *Class {
	c.arrayOnce.Do(func() {
		c.arrayType = &Class{
			Name:       c.Name + "[]",
			Package:    c.Package,
			Superclass: ObjectClass,
			Component:  c,
			Modifiers:  Public | Final,
		}
	})
	return c.arrayType
}

// ---------------------------------------------------------------------------
// Boxing
// ---------------------------------------------------------------------------

var boxing = map[*Class]*Class{
	BoolPrim: BooleanClass, BytePrim: ByteClass, ShortPrim: ShortClass, CharPrim: CharacterClass,
	IntPrim: IntegerClass, LongPrim: LongClass, FloatPrim: FloatClass, DoublePrim: DoubleClass,
}

// Box returns the wrapper class of a primitive, or c itself.
func Box(c *Class) *Class {
	if b, ok := boxing[c]; ok {
		return b
	}
	return c
}

// ---------------------------------------------------------------------------
// Go value to class mapping
// ---------------------------------------------------------------------------

// ClassOf maps a Go value to its builtin runtime class. It returns nil for
// values with no builtin mapping; Registry.ClassOf extends this with host
// classes.
func ClassOf(v any) *Class {
	switch x := v.(type) {
	case nil:
		return NullClass
	case *Object:
		return x.class
	case bool:
		return BooleanClass
	case int8:
		return ByteClass
	case int16:
		return ShortClass
	case Char:
		return CharacterClass
	case int, int32:
		return IntegerClass
	case int64:
		return LongClass
	case *big.Int:
		return BigIntegerClass
	case float32:
		return FloatClass
	case float64:
		return DoubleClass
	case *big.Float:
		return BigDecimalClass
	case string:
		return StringClass
	case []any:
		return ObjectArrayClass
	case *List:
		return ArrayListClass
	case map[string]any:
		return HashMapClass
	case *Closure:
		return ClosureClass
	case *Class:
		return ClassClass
	}
	return nil
}

// ClassesOf maps each argument through ClassOf, using Object for values
// with no builtin mapping.
func ClassesOf(args []any) []*Class {
	out := make([]*Class, len(args))
	for i, a := range args {
		if c := ClassOf(a); c != nil {
			out[i] = c
		} else {
			out[i] = ObjectClass
		}
	}
	return out
}

// goKindClass maps reflect types of builtin values; used by gowrap.
var goKindClass = map[reflect.Kind]*Class{
	reflect.Bool: BoolPrim, reflect.Int8: BytePrim, reflect.Int16: ShortPrim,
	reflect.Int: IntPrim, reflect.Int32: IntPrim, reflect.Int64: LongPrim,
	reflect.Float32: FloatPrim, reflect.Float64: DoublePrim, reflect.String: StringClass,
}

// ClassForKind returns the class used for a Go basic kind, or nil.
func ClassForKind(k reflect.Kind) *Class {
	return goKindClass[k]
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

// List is a growable sequence dispatched as ArrayList.
type List struct {
	items []any
}

// NewList creates a list holding items.
func NewList(items ...any) *List {
	return &List{items: append([]any(nil), items...)}
}

// Len returns the number of elements.
func (l *List) Len() int { return len(l.items) }

// Get returns element i.
func (l *List) Get(i int) any { return l.items[i] }

// Add appends v.
func (l *List) Add(v any) { l.items = append(l.items, v) }

// Items returns a copy of the elements.
func (l *List) Items() []any { return append([]any(nil), l.items...) }
