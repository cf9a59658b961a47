package gowrap

import (
	"reflect"
	"strings"
	"unicode"
)

// ClassPrefix is the root package of every described Go type.
const ClassPrefix = "go"

// GoPackageToPackage converts a Go import path to a runtime package name.
// e.g., "encoding/json" → "go.json", "github.com/acme/geo" → "go.geo"
func GoPackageToPackage(importPath string) string {
	if importPath == "" {
		return ClassPrefix
	}
	parts := strings.Split(importPath, "/")
	last := strings.ReplaceAll(parts[len(parts)-1], ".", "_")
	last = strings.ReplaceAll(last, "-", "_")
	return ClassPrefix + "." + last
}

// GoTypeToClassName converts a named Go type to a class name. Pointer
// types take their element's name; value types of structs get a "$Value"
// suffix so the two do not collide in the class table.
// e.g., *geo.Point → "go.geo.Point", geo.Point → "go.geo.Point$Value"
func GoTypeToClassName(t reflect.Type) string {
	suffix := ""
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	} else if t.Kind() == reflect.Struct {
		suffix = "$Value"
	}
	if t.Name() == "" {
		return ""
	}
	return GoPackageToPackage(t.PkgPath()) + "." + sanitize(t.Name()) + suffix
}

// sanitize turns generic instantiation names like Box[int] into
// identifier-safe text.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ',', ' ', '.', '/', '*':
			return '_'
		}
		return r
	}, name)
}

// GoNameToSelector converts an exported Go name to lower camel case,
// lowering a leading acronym as a whole.
// e.g., "GetName" → "getName", "URL" → "url", "HTTPServer" → "httpServer"
func GoNameToSelector(name string) string {
	runes := []rune(name)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	switch {
	case n == 0:
		return name
	case n == 1 || n == len(runes):
		// "Name" or "ID"
	default:
		// "HTTPServer": keep the S of Server upper
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
