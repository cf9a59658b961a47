package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/mop/vm"
)

// ErrCompilation matches every *CompilationError.
var ErrCompilation = errors.New("compilation failed")

// Source is one unit handed to a Compiler. Text is already normalized.
type Source struct {
	Name string
	Text string
	// Path is the file the text came from, empty for in-memory sources.
	Path string
	Hash Hash
}

// Compiler turns source text into a loadable class. The loader treats it
// as a black box.
type Compiler interface {
	Compile(ctx context.Context, src Source) (*vm.Class, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, src Source) (*vm.Class, error)

func (f CompilerFunc) Compile(ctx context.Context, src Source) (*vm.Class, error) {
	return f(ctx, src)
}

// CompilationError reports a failed compile of a named source.
type CompilationError struct {
	Name  string
	Path  string
	Cause error
}

func (e *CompilationError) Error() string {
	where := e.Name
	if e.Path != "" {
		where = fmt.Sprintf("%s (%s)", e.Name, e.Path)
	}
	if e.Cause == nil {
		return "compilation failed: " + where
	}
	return fmt.Sprintf("compilation failed: %s: %v", where, e.Cause)
}

func (e *CompilationError) Unwrap() error { return e.Cause }

func (e *CompilationError) Is(target error) bool { return target == ErrCompilation }

// asCompilationError wraps err unless the compiler already produced one.
func asCompilationError(src Source, err error) error {
	var ce *CompilationError
	if errors.As(err, &ce) {
		return err
	}
	return &CompilationError{Name: src.Name, Path: src.Path, Cause: err}
}
