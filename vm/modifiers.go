package vm

import "strings"

// Modifiers is the access and shape flag set carried by classes, methods
// and fields.
type Modifiers uint16

const (
	Public Modifiers = 1 << iota
	Protected
	Private
	Static
	Final
	Abstract
	Synthetic
	Bridge
	Interface
)

// Has reports whether every flag in f is set.
func (m Modifiers) Has(f Modifiers) bool { return m&f == f }

// IsPublic returns true if the public flag is set.
func (m Modifiers) IsPublic() bool { return m&Public != 0 }

// IsProtected returns true if the protected flag is set.
func (m Modifiers) IsProtected() bool { return m&Protected != 0 }

// IsPrivate returns true if the private flag is set.
func (m Modifiers) IsPrivate() bool { return m&Private != 0 }

// IsStatic returns true if the static flag is set.
func (m Modifiers) IsStatic() bool { return m&Static != 0 }

// IsFinal returns true if the final flag is set.
func (m Modifiers) IsFinal() bool { return m&Final != 0 }

// IsAbstract returns true if the abstract flag is set.
func (m Modifiers) IsAbstract() bool { return m&Abstract != 0 }

// IsPackagePrivate returns true when none of public, protected or private
// is set.
func (m Modifiers) IsPackagePrivate() bool {
	return m&(Public|Protected|Private) == 0
}

var modifierNames = []struct {
	flag Modifiers
	name string
}{
	{Public, "public"},
	{Protected, "protected"},
	{Private, "private"},
	{Static, "static"},
	{Final, "final"},
	{Abstract, "abstract"},
	{Synthetic, "synthetic"},
	{Bridge, "bridge"},
	{Interface, "interface"},
}

// String renders the set in declaration order, e.g. "public static".
func (m Modifiers) String() string {
	var parts []string
	for _, mn := range modifierNames {
		if m&mn.flag != 0 {
			parts = append(parts, mn.name)
		}
	}
	return strings.Join(parts, " ")
}

// ParseModifiers converts names like "private" or "static" into a set.
// Unknown names are reported through ok=false.
func ParseModifiers(names ...string) (m Modifiers, ok bool) {
	ok = true
	for _, n := range names {
		found := false
		for _, mn := range modifierNames {
			if mn.name == n {
				m |= mn.flag
				found = true
				break
			}
		}
		if !found {
			ok = false
		}
	}
	return m, ok
}
