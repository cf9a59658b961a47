package vm

import (
	"fmt"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Class creation tests
// ---------------------------------------------------------------------------

func TestNewClass(t *testing.T) {
	c := NewClass("geo.Point", nil)
	if c == nil {
		t.Fatal("NewClass returned nil")
	}
	if c.Name != "Point" || c.Package != "geo" {
		t.Errorf("Name, Package = %q, %q; want Point, geo", c.Name, c.Package)
	}
	if c.Superclass != ObjectClass {
		t.Error("nil superclass should default to Object")
	}
	if !c.Modifiers.IsPublic() {
		t.Error("host classes should be public")
	}
	if c.IsDynamic() {
		t.Error("NewClass should not be dynamic")
	}
}

func TestDynamicIsInherited(t *testing.T) {
	base := NewDynamicClass("dyn.Base", nil)
	child := NewClass("dyn.Child", base)

	if !child.IsDynamic() {
		t.Error("subclass of a dynamic class should be dynamic")
	}
	if ObjectClass.IsDynamic() {
		t.Error("Object should not be dynamic")
	}
}

func TestNewInterface(t *testing.T) {
	shape := NewInterface("geo.Shape")
	closed := NewInterface("geo.Closed", shape)
	circle := NewClass("geo.Circle", nil).Implement(closed)

	if !closed.IsInterface() {
		t.Error("NewInterface should set the Interface modifier")
	}
	if !shape.IsAssignableFrom(circle) {
		t.Error("Shape should be assignable from Circle through Closed")
	}
	all := circle.AllInterfaces()
	if len(all) != 2 || all[0] != closed || all[1] != shape {
		t.Errorf("AllInterfaces = %v, want [geo.Closed geo.Shape]", all)
	}
}

func TestDeclaredMembers(t *testing.T) {
	point := NewClass("geo.Point", nil)
	x := point.AddField(NewField("x", IntPrim, Public))
	move := point.Define("move", Returning(nil), IntPrim, IntPrim)
	colorPoint := NewClass("geo.ColorPoint", point)

	if x.Owner != point || move.Owner != point {
		t.Error("AddField and AddMethod should set the owner")
	}
	if point.DeclaredMethod("move", IntPrim, IntPrim) != move {
		t.Error("DeclaredMethod should find move(int, int)")
	}
	if point.DeclaredMethod("move", IntPrim) != nil {
		t.Error("DeclaredMethod should match parameter types exactly")
	}
	if colorPoint.DeclaredField("x") != nil {
		t.Error("DeclaredField should not search superclasses")
	}
	if colorPoint.FieldNamed("x") != x {
		t.Error("FieldNamed should search superclasses")
	}
}

func TestStaticFieldInitialValue(t *testing.T) {
	counter := NewClass("geo.Counter", nil)
	total := counter.AddField(NewField("total", IntPrim, Public|Static).WithInitial(7))

	if v, err := total.Get(nil); err != nil || v != 7 {
		t.Errorf("total = %v, %v; want 7", v, err)
	}
	if err := total.Set(nil, int64(8)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := total.Get(counter); v != 8 {
		t.Errorf("total = %v (%T), want int 8", v, v)
	}
}

// ---------------------------------------------------------------------------
// Class hierarchy tests
// ---------------------------------------------------------------------------

func TestIsSubclassOf(t *testing.T) {
	point := NewClass("Point", nil)
	colorPoint := NewClass("ColorPoint", point)
	rect := NewClass("Rectangle", nil)

	if !point.IsSubclassOf(ObjectClass) {
		t.Error("Point should be subclass of Object")
	}
	if !colorPoint.IsSubclassOf(point) {
		t.Error("ColorPoint should be subclass of Point")
	}
	if !colorPoint.IsSubclassOf(colorPoint) {
		t.Error("ColorPoint should be subclass of itself")
	}
	if colorPoint.IsSubclassOf(rect) {
		t.Error("ColorPoint should not be subclass of Rectangle")
	}
}

func TestIsAssignableFrom(t *testing.T) {
	tests := []struct {
		target, source *Class
		want           bool
	}{
		{ObjectClass, StringClass, true},
		{ObjectClass, NullClass, false},
		{CharSequenceClass, StringClass, true},
		{StringClass, ObjectClass, false},
		{IntPrim, IntegerClass, false},
		{IntegerClass, IntPrim, false},
		{ObjectArrayClass, StringClass.ArrayOf(), true},
		{ObjectArrayClass, IntPrim.ArrayOf(), false},
	}
	for _, tt := range tests {
		if got := tt.target.IsAssignableFrom(tt.source); got != tt.want {
			t.Errorf("%s.IsAssignableFrom(%s) = %t, want %t", tt.target, tt.source, got, tt.want)
		}
	}
}

func TestSuperclasses(t *testing.T) {
	point := NewClass("Point", nil)
	colorPoint := NewClass("ColorPoint", point)

	supers := colorPoint.Superclasses()
	if len(supers) != 3 {
		t.Fatalf("Superclasses() length = %d, want 3", len(supers))
	}
	if supers[0] != ObjectClass || supers[1] != point || supers[2] != colorPoint {
		t.Errorf("Superclasses() = %v, want root first", supers)
	}
}

func TestDepth(t *testing.T) {
	point := NewClass("Point", nil)
	colorPoint := NewClass("ColorPoint", point)

	if ObjectClass.Depth() != 0 {
		t.Errorf("Object.Depth() = %d, want 0", ObjectClass.Depth())
	}
	if point.Depth() != 1 {
		t.Errorf("Point.Depth() = %d, want 1", point.Depth())
	}
	if colorPoint.SuperClassDistance() != 3 {
		t.Errorf("ColorPoint.SuperClassDistance() = %d, want 3", colorPoint.SuperClassDistance())
	}
}

// ---------------------------------------------------------------------------
// Instance creation tests
// ---------------------------------------------------------------------------

func TestNewObjectAppliesInitialValues(t *testing.T) {
	point := NewClass("geo.Point", nil)
	point.AddField(NewField("x", IntPrim, Public).WithInitial(1))
	colorPoint := NewClass("geo.ColorPoint", point)
	colorPoint.AddField(NewField("color", StringClass, Public).WithInitial("red"))

	obj := NewObject(colorPoint)
	if obj.Class() != colorPoint {
		t.Error("object class should be ColorPoint")
	}
	if v, ok := obj.FieldValue("x"); !ok || v != 1 {
		t.Errorf("x = %v, %t; want the inherited initial value", v, ok)
	}
	if v, _ := obj.FieldValue("color"); v != "red" {
		t.Errorf("color = %v, want red", v)
	}
	if _, ok := obj.FieldValue("nope"); ok {
		t.Error("FieldValue should report unknown fields")
	}
}

func TestFieldRejectsForeignReceiver(t *testing.T) {
	point := NewClass("geo.Point", nil)
	x := point.AddField(NewField("x", IntPrim, Public))
	other := NewObject(NewClass("geo.Other", nil))

	if _, err := x.Get(other); err == nil {
		t.Error("Get on an unrelated object should fail")
	}
	if err := x.Set(other, 1); err == nil {
		t.Error("Set on an unrelated object should fail")
	}
}

// ---------------------------------------------------------------------------
// Name tests
// ---------------------------------------------------------------------------

func TestFullName(t *testing.T) {
	c := NewClass("Point", nil)
	if c.FullName() != "Point" {
		t.Errorf("FullName() = %q, want %q", c.FullName(), "Point")
	}

	c2 := NewClass("graphics.shapes.Point", nil)
	if c2.FullName() != "graphics.shapes.Point" {
		t.Errorf("FullName() = %q, want %q", c2.FullName(), "graphics.shapes.Point")
	}
	if c2.SimpleName() != "Point" {
		t.Errorf("SimpleName() = %q, want Point", c2.SimpleName())
	}
	if got := c2.ArrayOf().FullName(); got != "graphics.shapes.Point[]" {
		t.Errorf("array FullName() = %q", got)
	}
}

func TestString(t *testing.T) {
	var nilClass *Class
	if nilClass.String() != "null" {
		t.Errorf("nil String() = %q, want null", nilClass.String())
	}
	c := NewClass("graphics.Point", nil)
	if c.String() != "graphics.Point" {
		t.Errorf("String() = %q, want %q", c.String(), "graphics.Point")
	}
}

// ---------------------------------------------------------------------------
// ClassTable tests
// ---------------------------------------------------------------------------

func TestClassTableRegister(t *testing.T) {
	ct := NewClassTable()
	c := NewClass("geo.Point", nil)

	old := ct.Register(c)
	if old != nil {
		t.Error("first registration should return nil")
	}

	if !ct.Has("geo.Point") {
		t.Error("Has should return true")
	}
}

func TestClassTableHasBuiltins(t *testing.T) {
	ct := NewClassTable()
	if ct.Lookup(StringClass.FullName()) != StringClass {
		t.Error("builtin String should be registered")
	}
	if ct.Lookup(ObjectClass.FullName()) != ObjectClass {
		t.Error("builtin Object should be registered")
	}
}

func TestClassTableLookup(t *testing.T) {
	ct := NewClassTable()
	c := NewClass("geo.Point", nil)
	ct.Register(c)

	if ct.Lookup("geo.Point") != c {
		t.Error("Lookup should return the registered class")
	}
	if ct.Lookup("Point") != nil {
		t.Error("Lookup should require the qualified name")
	}
	ct.Remove("geo.Point")
	if ct.Has("geo.Point") {
		t.Error("Remove should drop the class")
	}
}

func TestClassTableReplace(t *testing.T) {
	ct := NewClassTable()
	c1 := NewClass("geo.Point", nil)
	c2 := NewClass("geo.Point", nil) // Same name, different object

	ct.Register(c1)
	old := ct.Register(c2)

	if old != c1 {
		t.Error("replacement should return old class")
	}
	if ct.Lookup("geo.Point") != c2 {
		t.Error("lookup should return new class")
	}
}

func TestClassTableAllSorted(t *testing.T) {
	ct := NewClassTable()
	ct.Register(NewClass("z.Last", nil))
	ct.Register(NewClass("a.First", nil))

	all := ct.All()
	for i := 1; i < len(all); i++ {
		if all[i-1].FullName() > all[i].FullName() {
			t.Fatalf("All() not sorted at %d: %s > %s", i, all[i-1], all[i])
		}
	}
}

func TestClassTableConcurrency(t *testing.T) {
	ct := NewClassTable()
	base := ct.Len()
	var wg sync.WaitGroup

	// Concurrent registrations
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ct.Register(NewClass(fmt.Sprintf("conc.Class%c", 'A'+n%26), nil))
		}(i)
	}

	// Concurrent lookups
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = ct.Lookup(fmt.Sprintf("conc.Class%c", 'A'+n%26))
		}(i)
	}

	wg.Wait()

	if ct.Len() != base+26 {
		t.Errorf("Len() = %d, want %d", ct.Len(), base+26)
	}
}

// ---------------------------------------------------------------------------
// Benchmarks
// ---------------------------------------------------------------------------

func BenchmarkNewClass(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewClass("geo.Point", nil)
	}
}

func BenchmarkIsAssignableFrom(b *testing.B) {
	iface := NewInterface("bench.Shape")
	c := NewClass("bench.Square", NewClass("bench.Rect", nil).Implement(iface))
	for i := 0; i < b.N; i++ {
		_ = iface.IsAssignableFrom(c)
	}
}
