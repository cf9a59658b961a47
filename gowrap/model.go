// Package gowrap describes Go types as runtime classes so the dispatcher
// can call methods and read fields of arbitrary Go values.
package gowrap

import "reflect"

// TypeModel is the exported surface of one Go type.
type TypeModel struct {
	Name    string // class name, e.g. "go.geo.Point"
	GoType  reflect.Type
	Pointer bool // GoType is a pointer to a named type
	Fields  []FieldModel
	Methods []FunctionModel
}

// FunctionModel is one exported method.
type FunctionModel struct {
	Name       string // Go name, e.g. "GetName"
	Selector   string // runtime name, e.g. "getName"
	Params     []ParamModel
	Results    []ParamModel
	Variadic   bool
	ReturnsErr bool // true if last result is error

	// TakesContext is set when the first Go parameter is a
	// context.Context. It is supplied by the dispatcher, not the caller.
	TakesContext bool
}

// ParamModel is a parameter or result.
type ParamModel struct {
	GoType  reflect.Type
	TypeStr string
}

// FieldModel is an exported struct field, including promoted ones.
type FieldModel struct {
	Name     string // Go name
	Property string // runtime name
	Index    []int
	GoType   reflect.Type
	TypeStr  string
	// Settable is false for fields reached through a value receiver.
	Settable bool
}
