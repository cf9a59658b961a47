package vm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	ErrNoApplicableOverload       = errors.New("no applicable overload")
	ErrAmbiguousOverload          = errors.New("ambiguous method overloading")
	ErrReadOnlyProperty           = errors.New("read-only property")
	ErrIllegalInitializationState = errors.New("illegal initialization state")
	ErrInvocationFailure          = errors.New("invocation failure")
	ErrMissingMethod              = errors.New("missing method")
	ErrMissingProperty            = errors.New("missing property")
	ErrNotInitialized             = errors.New("class metadata not initialized")
	ErrNullReceiver               = errors.New("null receiver")
	ErrAbstractMethod             = errors.New("abstract method")
	ErrCoercion                   = errors.New("argument coercion failed")
)

// NoApplicableOverloadError reports that no candidate accepts the argument
// types.
type NoApplicableOverloadError struct {
	Class    *Class
	Method   string
	ArgTypes []*Class
}

func (e *NoApplicableOverloadError) Error() string {
	return fmt.Sprintf("no applicable overload for %s#%s(%s)", e.Class, e.Method, typeList(e.ArgTypes))
}

func (e *NoApplicableOverloadError) Is(target error) bool { return target == ErrNoApplicableOverload }

// AmbiguousOverloadError reports equally specific candidates.
type AmbiguousOverloadError struct {
	Class      *Class
	Method     string
	ArgTypes   []*Class
	Candidates []*Method
}

func (e *AmbiguousOverloadError) Error() string {
	var b strings.Builder
	b.WriteString("Ambiguous method overloading for method ")
	b.WriteString(e.Class.String())
	b.WriteString("#")
	b.WriteString(e.Method)
	b.WriteString(".\nCannot resolve which method to invoke for [")
	b.WriteString(typeList(e.ArgTypes))
	b.WriteString("] due to overlapping prototypes between:")
	for _, m := range e.Candidates {
		b.WriteString("\n\t[")
		b.WriteString(typeList(m.Params))
		b.WriteString("]")
	}
	return b.String()
}

func (e *AmbiguousOverloadError) Is(target error) bool { return target == ErrAmbiguousOverload }

// MissingMethodError is raised once the fallback chain is exhausted.
type MissingMethodError struct {
	Method      string
	Type        *Class
	Args        []any
	ArgTypes    []*Class
	Static      bool
	Suggestions string
}

func (e *MissingMethodError) Error() string {
	static := ""
	if e.Static {
		static = "static "
	}
	return fmt.Sprintf("No signature of method: %s%s.%s() is applicable for argument types: (%s) values: %v%s",
		static, e.Type, e.Method, typeList(e.ArgTypes), formatValues(e.Args), e.Suggestions)
}

// Is matches ErrMissingMethod and ErrNoApplicableOverload.
func (e *MissingMethodError) Is(target error) bool {
	return target == ErrMissingMethod || target == ErrNoApplicableOverload
}

// MissingPropertyError reports an unknown property or field.
type MissingPropertyError struct {
	Property    string
	Type        *Class
	Field       bool
	Suggestions string
}

func (e *MissingPropertyError) Error() string {
	kind := "property"
	if e.Field {
		kind = "field"
	}
	return fmt.Sprintf("No such %s: %s for class: %s%s", kind, e.Property, e.Type, e.Suggestions)
}

func (e *MissingPropertyError) Is(target error) bool { return target == ErrMissingProperty }

// ReadOnlyPropertyError reports a write to a property with no setter and
// no mutable field.
type ReadOnlyPropertyError struct {
	Property string
	Type     *Class
}

func (e *ReadOnlyPropertyError) Error() string {
	return fmt.Sprintf("Cannot set read-only property: %s for class: %s", e.Property, e.Type)
}

func (e *ReadOnlyPropertyError) Is(target error) bool { return target == ErrReadOnlyProperty }

// InvocationError wraps an error raised by a resolved target.
type InvocationError struct {
	Method *Method
	Cause  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoking %s: %v", e.Method, e.Cause)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

func (e *InvocationError) Is(target error) bool { return target == ErrInvocationFailure }

func wrapInvocation(m *Method, err error) error {
	return &InvocationError{Method: m, Cause: err}
}

func illegalState(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrIllegalInitializationState}, args...)...)
}

func formatValues(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			parts[i] = "null"
			continue
		}
		parts[i] = fmt.Sprint(a)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
