package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/mop/loader"
	"github.com/chazu/mop/vm"
)

type mapResolver map[string]*vm.Class

func (m mapResolver) ResolveClass(name string) (*vm.Class, error) {
	if c, ok := m[name]; ok {
		return c, nil
	}
	return nil, errors.New("class not found: " + name)
}

func TestResolveExtensions(t *testing.T) {
	extras := vm.NewClass("acme.StringExtras", nil)
	factory := vm.NewClass("acme.StringFactory", nil)
	m := &Manifest{Extensions: []Extension{
		{Name: "strings", Version: "1.0", Classes: []string{"acme.StringExtras"}},
		{Name: "factory", StaticClasses: []string{"acme.StringFactory"}},
	}}

	resolved, err := NewResolver(m, mapResolver{
		"acme.StringExtras":  extras,
		"acme.StringFactory": factory,
	}).Resolve()
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	assert.Equal(t, "strings", resolved[0].Module.Name)
	assert.Equal(t, "1.0", resolved[0].Module.Version)
	assert.Equal(t, []*vm.Class{extras}, resolved[0].Module.Classes)
	assert.Equal(t, []*vm.Class{factory}, resolved[1].Module.StaticClasses)
	assert.Equal(t, m.Extensions[1], resolved[1].Source)
}

func TestResolveExtensionErrors(t *testing.T) {
	known := mapResolver{"acme.A": vm.NewClass("acme.A", nil)}
	tests := []struct {
		name string
		exts []Extension
		want string
	}{
		{"unnamed", []Extension{{Classes: []string{"acme.A"}}}, "without a name"},
		{"duplicate", []Extension{
			{Name: "x", Classes: []string{"acme.A"}},
			{Name: "x", Classes: []string{"acme.A"}},
		}, "declared twice"},
		{"empty", []Extension{{Name: "x"}}, "lists no classes"},
		{"invalid name", []Extension{{Name: "x", Classes: []string{"acme..A"}}}, "invalid class name"},
		{"reserved", []Extension{{Name: "x", Classes: []string{"lang.Patch"}}}, "builtin package"},
		{"unknown", []Extension{{Name: "x", StaticClasses: []string{"acme.Missing"}}}, "class not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewResolver(&Manifest{Extensions: tc.exts}, known).Resolve()
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestRegisterExtensionsFromSources(t *testing.T) {
	dir := t.TempDir()
	extDir := filepath.Join(dir, "ext", "acme")
	require.NoError(t, os.MkdirAll(extDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(extDir, "Shout.mop"), []byte(`
[[method]]
name = "shout"
static = true
params = ["String"]
returns = "LOUD"
`), 0o644))
	writeManifest(t, dir, `
[[extension]]
name = "shouting"
classes = ["acme.Shout"]
path = "ext"
`)

	m, err := Load(dir)
	require.NoError(t, err)

	reg := vm.NewRegistry(m.RegistryOptions())
	dc := &loader.DescriptorCompiler{}
	l, err := loader.New(reg, dc, m.LoaderOptions())
	require.NoError(t, err)
	defer l.Close()
	dc.Types = l
	reg.SetResolver(l)

	resolved, err := RegisterExtensions(m, reg)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Len(t, reg.Modules(), 1)
	assert.Equal(t, "shouting", reg.Modules()[0].Name)

	got, err := reg.Dispatcher().InvokeMethod(context.Background(), "hi", "shout")
	require.NoError(t, err)
	assert.Equal(t, "LOUD", got)
}
