package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/mop/vm"
)

const animalSource = `
class = "zoo.Animal"

[[field]]
name = "name"
type = "String"
initial = "unnamed"

[[method]]
name = "describe"
field = "name"
`

const dogSource = `
extends = "zoo.Animal"
implements = ["zoo.Pet"]

[[field]]
name = "population"
static = true
initial = 3

[[method]]
name = "speak"
returns = "woof"

[[method]]
name = "fetch"
params = ["String"]
returns = "fetched"
`

const petSource = `
interface = true
`

// newDescriptorLoader wires a descriptor compiler to a loader the way the
// command does.
func newDescriptorLoader(t *testing.T, dirs ...string) (*vm.Registry, *Loader) {
	t.Helper()
	reg := vm.NewRegistry(vm.Options{})
	dc := &DescriptorCompiler{}
	l, err := New(reg, dc, Options{SourceDirs: dirs})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	dc.Types = l
	reg.SetResolver(l)
	return reg, l
}

func TestDescriptorCompilerLoadsHierarchy(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "zoo/Animal.mop", animalSource)
	writeSource(t, dir, "zoo/Dog.mop", dogSource)
	writeSource(t, dir, "zoo/Pet.mop", petSource)
	reg, l := newDescriptorLoader(t, dir)
	ctx := context.Background()

	dog, err := l.LoadClass(ctx, "zoo.Dog")
	require.NoError(t, err)

	animal := reg.Classes().Lookup("zoo.Animal")
	require.NotNil(t, animal, "the superclass is loaded on demand")
	assert.Same(t, animal, dog.Superclass)
	pet := reg.Classes().Lookup("zoo.Pet")
	require.NotNil(t, pet)
	assert.True(t, pet.IsInterface())
	assert.True(t, pet.IsAssignableFrom(dog))

	d := reg.Dispatcher()
	rex := vm.NewObject(dog)
	got, err := d.InvokeMethod(ctx, rex, "speak")
	require.NoError(t, err)
	assert.Equal(t, "woof", got)

	got, err = d.InvokeMethod(ctx, rex, "describe")
	require.NoError(t, err)
	assert.Equal(t, "unnamed", got)

	got, err = d.InvokeMethod(ctx, rex, "fetch", "ball")
	require.NoError(t, err)
	assert.Equal(t, "fetched", got)

	_, err = d.InvokeMethod(ctx, rex, "fetch", 1)
	assert.Error(t, err)

	require.NoError(t, d.SetProperty(ctx, rex, "name", "rex"))
	got, err = d.InvokeMethod(ctx, rex, "describe")
	require.NoError(t, err)
	assert.Equal(t, "rex", got)
}

func TestDescriptorCompilerErrors(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "cyc/A.mop", `extends = "cyc.B"`)
	writeSource(t, dir, "cyc/B.mop", `extends = "cyc.A"`)
	writeSource(t, dir, "bad/Self.mop", `extends = "bad.Self"`)
	writeSource(t, dir, "bad/Syntax.mop", `class = `)
	writeSource(t, dir, "bad/Field.mop", "[[method]]\nname = \"m\"\nfield = \"nope\"\n")
	writeSource(t, dir, "bad/NotIface.mop", `implements = ["String"]`)
	_, l := newDescriptorLoader(t, dir)
	ctx := context.Background()

	_, err := l.LoadClass(ctx, "cyc.A")
	assert.ErrorIs(t, err, ErrCircularSource)

	for _, name := range []string{"bad.Self", "bad.Syntax", "bad.Field", "bad.NotIface"} {
		_, err := l.LoadClass(ctx, name)
		assert.ErrorIs(t, err, ErrCompilation, name)
	}

	_, err = l.ParseClass(ctx, `extends = "nowhere.Missing"`, "bad.Orphan")
	assert.ErrorIs(t, err, ErrCompilation)
	assert.ErrorIs(t, err, ErrClassNotFound)
}
