package manifest

import (
	"strings"
	"unicode"
)

// reservedPackages lists the packages of the runtime's builtin classes.
// Extension classes cannot live in them.
var reservedPackages = map[string]bool{
	"lang": true,
	"util": true,
}

// IsReservedPackage reports whether the class name sits in a builtin
// package. Only the root segment is checked: "acme.lang.Strings" is fine
// because the root is "acme".
func IsReservedPackage(className string) bool {
	root := className
	if idx := strings.Index(className, "."); idx >= 0 {
		root = className[:idx]
	} else {
		return false
	}
	return reservedPackages[root]
}

// ValidClassName reports whether name is a dotted sequence of identifiers.
func ValidClassName(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return false
		}
		for i, r := range seg {
			if r == '_' || r == '$' || unicode.IsLetter(r) {
				continue
			}
			if i > 0 && unicode.IsDigit(r) {
				continue
			}
			return false
		}
	}
	return true
}
