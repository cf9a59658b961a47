package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/chazu/mop/vm"
)

// TypeResolver finds the classes a descriptor refers to.
type TypeResolver interface {
	ResolveType(ctx context.Context, name string) (*vm.Class, error)
}

// Descriptor is the TOML shape read by DescriptorCompiler.
//
//	class = "zoo.Dog"
//	extends = "zoo.Animal"
//
//	[[field]]
//	name = "name"
//	type = "String"
//	initial = "rex"
//
//	[[method]]
//	name = "speak"
//	returns = "woof"
type Descriptor struct {
	Class      string       `toml:"class"`
	Extends    string       `toml:"extends"`
	Implements []string     `toml:"implements"`
	Interface  bool         `toml:"interface"`
	Dynamic    bool         `toml:"dynamic"`
	Fields     []FieldDecl  `toml:"field"`
	Methods    []MethodDecl `toml:"method"`
}

// FieldDecl declares a field.
type FieldDecl struct {
	Name    string `toml:"name"`
	Type    string `toml:"type"`
	Static  bool   `toml:"static"`
	Private bool   `toml:"private"`
	Final   bool   `toml:"final"`
	Initial any    `toml:"initial"`
}

// MethodDecl declares a method answering either a constant or the value of
// one of the class's fields.
type MethodDecl struct {
	Name    string   `toml:"name"`
	Params  []string `toml:"params"`
	Static  bool     `toml:"static"`
	Returns any      `toml:"returns"`
	Field   string   `toml:"field"`
}

// DescriptorCompiler builds classes from TOML descriptors. It gives the
// runtime loadable classes without a language frontend.
type DescriptorCompiler struct {
	// Types resolves extends, implements, field and parameter types. Names
	// it cannot resolve fail the compile. When nil only builtin names work.
	Types TypeResolver
}

func (dc *DescriptorCompiler) Compile(ctx context.Context, src Source) (*vm.Class, error) {
	var d Descriptor
	if _, err := toml.Decode(src.Text, &d); err != nil {
		return nil, &CompilationError{Name: src.Name, Path: src.Path, Cause: err}
	}
	if d.Class == "" {
		d.Class = src.Name
	}
	if d.Extends == d.Class && d.Extends != "" {
		return nil, fmt.Errorf("%s extends itself", d.Class)
	}

	var c *vm.Class
	switch {
	case d.Interface:
		var supers []*vm.Class
		for _, n := range d.Implements {
			t, err := dc.resolve(ctx, n)
			if err != nil {
				return nil, err
			}
			supers = append(supers, t)
		}
		c = vm.NewInterface(d.Class, supers...)
	default:
		var super *vm.Class
		if d.Extends != "" {
			t, err := dc.resolve(ctx, d.Extends)
			if err != nil {
				return nil, err
			}
			super = t
		}
		if d.Dynamic {
			c = vm.NewDynamicClass(d.Class, super)
		} else {
			c = vm.NewClass(d.Class, super)
		}
		for _, n := range d.Implements {
			t, err := dc.resolve(ctx, n)
			if err != nil {
				return nil, err
			}
			if !t.IsInterface() {
				return nil, fmt.Errorf("%s implements %s, which is not an interface", d.Class, n)
			}
			c.Implement(t)
		}
	}

	for _, fd := range d.Fields {
		if err := dc.addField(ctx, c, fd); err != nil {
			return nil, err
		}
	}
	for _, md := range d.Methods {
		if err := dc.addMethod(ctx, c, md); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (dc *DescriptorCompiler) resolve(ctx context.Context, name string) (*vm.Class, error) {
	if c := vm.BuiltinClass(name); c != nil {
		return c, nil
	}
	if dc.Types == nil {
		return nil, fmt.Errorf("unknown type %s", name)
	}
	return dc.Types.ResolveType(ctx, name)
}

func (dc *DescriptorCompiler) addField(ctx context.Context, c *vm.Class, fd FieldDecl) error {
	if fd.Name == "" {
		return errors.New("field without a name")
	}
	typ := vm.ObjectClass
	if fd.Type != "" {
		t, err := dc.resolve(ctx, fd.Type)
		if err != nil {
			return err
		}
		typ = t
	}
	mods := vm.Public
	if fd.Private {
		mods = vm.Private
	}
	if fd.Static {
		mods |= vm.Static
	}
	if fd.Final {
		mods |= vm.Final
	}
	c.AddField(vm.NewField(fd.Name, typ, mods).WithInitial(fd.Initial))
	return nil
}

func (dc *DescriptorCompiler) addMethod(ctx context.Context, c *vm.Class, md MethodDecl) error {
	if md.Name == "" {
		return errors.New("method without a name")
	}
	params := make([]*vm.Class, 0, len(md.Params))
	for _, p := range md.Params {
		t, err := dc.resolve(ctx, p)
		if err != nil {
			return err
		}
		params = append(params, t)
	}

	fn := vm.Returning(md.Returns)
	if md.Field != "" {
		f := c.FieldNamed(md.Field)
		if f == nil {
			return fmt.Errorf("method %s reads unknown field %s", md.Name, md.Field)
		}
		fn = func(_ context.Context, receiver any, _ []any) (any, error) {
			return f.Get(receiver)
		}
	}
	mods := vm.Public
	if md.Static {
		mods |= vm.Static
	}
	c.AddMethod(vm.NewMethod(md.Name, mods, vm.ObjectClass, params, fn))
	return nil
}

// ResolveType finds name among builtins, registered classes and, failing
// those, loadable sources. The compile chain in ctx is kept, so descriptors
// that extend each other in a cycle fail instead of waiting on themselves.
func (l *Loader) ResolveType(ctx context.Context, name string) (*vm.Class, error) {
	if c := vm.BuiltinClass(name); c != nil {
		return c, nil
	}
	if l.reg != nil {
		if c := l.reg.Classes().Lookup(name); c != nil {
			return c, nil
		}
	}
	return l.LoadClass(ctx, name)
}
