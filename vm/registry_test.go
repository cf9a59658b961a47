package vm

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func TestMetaClassConcurrentFirstUse(t *testing.T) {
	reg := NewRegistry(Options{})
	c := NewClass("reg.Busy", nil)
	c.Define("run", Returning(nil))

	const n = 32
	results := make([]*ClassMetadata, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mc, err := reg.MetaClass(c)
			if err != nil {
				t.Errorf("MetaClass: %v", err)
				return
			}
			results[i] = mc
		}(i)
	}
	wg.Wait()

	for i, mc := range results {
		if mc != results[0] {
			t.Fatalf("goroutine %d got a different metadata instance", i)
		}
	}
	if !results[0].Initialized() {
		t.Error("returned metadata is not initialized")
	}
	if len(reg.Entries()) != 1 {
		t.Errorf("Entries = %d, want 1", len(reg.Entries()))
	}
}

func TestRegistryChangeEvents(t *testing.T) {
	reg := NewRegistry(Options{})
	c := NewClass("reg.Watched", nil)

	var events []ChangeEvent
	reg.AddChangeListener(func(ev ChangeEvent) { events = append(events, ev) })

	built, err := reg.MetaClass(c)
	if err != nil {
		t.Fatalf("MetaClass: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("on-demand build fired %d events", len(events))
	}

	custom := NewClassMetadata(reg, c)
	reg.SetMetaClass(c, custom)
	if !custom.Modified() {
		t.Error("installed metadata should be marked modified")
	}
	got, err := reg.MetaClass(c)
	if err != nil || got != custom {
		t.Errorf("MetaClass after Set = %v, %v; want the installed metadata", got, err)
	}
	if !custom.Initialized() {
		t.Error("installed metadata should be initialized on first use")
	}

	reg.RemoveMetaClass(c)
	reg.RemoveMetaClass(c) // no entry, no event
	reg.Clear()

	want := []ChangeKind{ChangeSet, ChangeRemove, ChangeClear}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, k := range want {
		if events[i].Kind != k {
			t.Errorf("event %d = %s, want %s", i, events[i].Kind, k)
		}
	}
	if events[0].Old != built || events[0].New != custom {
		t.Error("set event should carry the old and new metadata")
	}
	if events[2].Class != nil {
		t.Error("clear event should have no class")
	}

	rebuilt, _ := reg.MetaClass(c)
	if rebuilt == custom || rebuilt.Modified() {
		t.Error("after Clear the metadata should be rebuilt on demand")
	}
}

func TestRegisterNewMethod(t *testing.T) {
	reg := NewRegistry(Options{})
	base := NewClass("reg.Base", nil)
	child := NewClass("reg.Child", base)
	d := reg.Dispatcher()
	ctx := context.Background()

	// Build the child first; registering on the base must invalidate it.
	if _, err := reg.MetaClass(child); err != nil {
		t.Fatalf("MetaClass: %v", err)
	}
	m := NewMethod("shout", Public, StringClass, []*Class{StringClass}, func(_ context.Context, _ any, args []any) (any, error) {
		return strings.ToUpper(args[0].(string)), nil
	})
	if err := reg.RegisterNewMethod(base, m); err != nil {
		t.Fatalf("RegisterNewMethod: %v", err)
	}
	if m.Kind != KindNew {
		t.Errorf("kind = %v, want KindNew", m.Kind)
	}

	got, err := d.InvokeMethod(ctx, NewObject(child), "shout", "hi")
	if err != nil || got != "HI" {
		t.Fatalf("shout = %v, %v; want HI", got, err)
	}

	// The base is now built; another registration must fail.
	if _, err := reg.MetaClass(base); err != nil {
		t.Fatal(err)
	}
	err = reg.RegisterNewMethod(base, NewMethod("late", Public, ObjectClass, nil, Returning(nil)))
	if !errors.Is(err, ErrIllegalInitializationState) {
		t.Errorf("late registration: err = %v, want ErrIllegalInitializationState", err)
	}
}

func TestRegisterExtensionModule(t *testing.T) {
	reg := NewRegistry(Options{})
	d := reg.Dispatcher()
	ctx := context.Background()

	ext := NewClass("reg.StringExtras", nil)
	ext.DefineStatic("exclaim", func(_ context.Context, _ any, args []any) (any, error) {
		return args[0].(string) + "!", nil
	}, StringClass)
	ext.AddMethod(NewMethod("hidden", Private|Static, ObjectClass, []*Class{StringClass}, Returning(nil)))

	statics := NewClass("reg.StringStatics", nil)
	statics.DefineStatic("blank", Returning(""), StringClass)

	err := reg.RegisterExtensionModule(ExtensionModule{
		Name:          "strings-extra",
		Version:       "1.0",
		Classes:       []*Class{ext},
		StaticClasses: []*Class{statics},
	})
	if err != nil {
		t.Fatalf("RegisterExtensionModule: %v", err)
	}

	if got, err := d.InvokeMethod(ctx, "hey", "exclaim"); err != nil || got != "hey!" {
		t.Errorf("exclaim = %v, %v; want hey!", got, err)
	}
	if _, err := d.InvokeMethod(ctx, "hey", "hidden"); !errors.Is(err, ErrMissingMethod) {
		t.Errorf("private static became an extension: err = %v", err)
	}
	if got, err := d.InvokeStatic(ctx, StringClass, "blank"); err != nil || got != "" {
		t.Errorf("String.blank = %v, %v", got, err)
	}

	mods := reg.Modules()
	if len(mods) != 1 || mods[0].Name != "strings-extra" {
		t.Errorf("Modules = %v", mods)
	}
}

func TestRelaxedSearchFindsInstalledAncestorMethods(t *testing.T) {
	reg := NewRegistry(Options{})
	d := reg.Dispatcher()
	ctx := context.Background()
	base := NewClass("reg.Vehicle", nil)
	car := NewClass("reg.Car", base)
	obj := NewObject(car)

	if _, err := d.InvokeMethod(ctx, obj, "honk"); !errors.Is(err, ErrMissingMethod) {
		t.Fatalf("honk before install: err = %v, want ErrMissingMethod", err)
	}

	custom := NewClassMetadata(reg, base)
	if err := custom.AddNewMethod(NewMethod("honk", Public, StringClass, nil, Returning("beep"))); err != nil {
		t.Fatal(err)
	}
	if err := custom.Initialize(); err != nil {
		t.Fatal(err)
	}
	reg.SetMetaClass(base, custom)

	if !reg.hasModifiedAncestor(car) {
		t.Fatal("car should see its modified ancestor")
	}
	got, err := d.InvokeMethod(ctx, obj, "honk")
	if err != nil || got != "beep" {
		t.Errorf("honk = %v, %v; want beep through the ancestor", got, err)
	}
}

type point struct{ X, Y int }

type fakeDescriber struct{ calls int }

func (f *fakeDescriber) Describe(t reflect.Type) *Class {
	f.calls++
	if t.Kind() != reflect.Struct {
		return nil
	}
	return NewClass("host."+t.Name(), nil)
}

func TestHostTypes(t *testing.T) {
	desc := &fakeDescriber{}
	reg := NewRegistry(Options{Describer: desc})

	pc := NewClass("geo.Point", nil)
	reg.RegisterHostType(reflect.TypeOf(point{}), pc)
	if got := reg.ClassOf(point{1, 2}); got != pc {
		t.Errorf("ClassOf(point) = %v, want %v", got, pc)
	}
	if reg.Classes().Lookup("geo.Point") != pc {
		t.Error("registered host class should be in the class table")
	}

	type size struct{ W, H int }
	first := reg.ClassOf(size{})
	second := reg.ClassOf(size{3, 4})
	if first != second || first.FullName() != "host.size" {
		t.Errorf("described class = %v then %v", first, second)
	}
	if desc.calls != 1 {
		t.Errorf("describer called %d times, want 1", desc.calls)
	}

	if got := reg.ClassOf(make(chan int)); got != ObjectClass {
		t.Errorf("ClassOf(chan) = %v, want Object", got)
	}
	if got := reg.ClassOf("s"); got != StringClass {
		t.Errorf("ClassOf(string) = %v, want String", got)
	}
}

type mapResolver map[string]*Class

func (m mapResolver) ResolveClass(name string) (*Class, error) {
	if c, ok := m[name]; ok {
		return c, nil
	}
	return nil, errors.New("no such class: " + name)
}

func TestResolveClass(t *testing.T) {
	lazy := NewClass("reg.Lazy", nil)
	reg := NewRegistry(Options{Resolver: mapResolver{"reg.Lazy": lazy}})

	if c, err := reg.ResolveClass("lang.String"); err != nil || c != StringClass {
		t.Errorf("ResolveClass(String) = %v, %v", c, err)
	}
	if c, err := reg.ResolveClass("reg.Lazy"); err != nil || c != lazy {
		t.Errorf("ResolveClass(reg.Lazy) = %v, %v", c, err)
	}
	if !reg.Classes().Has("reg.Lazy") {
		t.Error("resolved class should be cached in the class table")
	}
	if _, err := reg.ResolveClass("reg.Nope"); err == nil {
		t.Error("ResolveClass(reg.Nope) should fail")
	}
}
