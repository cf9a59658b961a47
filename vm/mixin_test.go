package vm

import (
	"context"
	"errors"
	"testing"
)

// newCounterMixin returns a mixin whose "tick" increments a counter kept
// on the mixin instance.
func newCounterMixin() *Class {
	counter := NewClass("mix.Counter", nil)
	ticks := counter.AddField(NewField("ticks", IntPrim, Private).WithInitial(0))
	counter.Define("tick", func(_ context.Context, r any, _ []any) (any, error) {
		v, err := ticks.Get(r)
		if err != nil {
			return nil, err
		}
		n := v.(int) + 1
		return n, ticks.Set(r, n)
	})
	counter.Define("speak", text("counter"))
	return counter
}

func TestMixinAddsMethods(t *testing.T) {
	reg := NewRegistry(Options{})
	d := reg.Dispatcher()
	ctx := context.Background()
	robot := NewClass("mix.Robot", nil)
	robot.Define("speak", text("beep"))
	counter := newCounterMixin()

	if err := reg.Mixin(robot, counter); err != nil {
		t.Fatalf("Mixin: %v", err)
	}
	if ms := reg.Mixins(robot); len(ms) != 1 || ms[0] != counter {
		t.Errorf("Mixins = %v", ms)
	}

	r1, r2 := NewObject(robot), NewObject(robot)
	for i := 1; i <= 3; i++ {
		if got := invoke(t, d, ctx, r1, "tick"); got != i {
			t.Errorf("r1 tick %d = %v", i, got)
		}
	}
	if got := invoke(t, d, ctx, r2, "tick"); got != 1 {
		t.Errorf("r2 tick = %v, want its own counter", got)
	}
	if got := invoke(t, d, ctx, r1, "speak"); got != "beep" {
		t.Errorf("speak = %v, want the class's own method", got)
	}

	mc, err := reg.MetaClass(robot)
	if err != nil {
		t.Fatal(err)
	}
	metas, _ := mc.MetaMethods()
	if len(metas) != 1 || metas[0].Kind != KindMixin {
		t.Errorf("MetaMethods = %v, want one mixin method", metas)
	}
}

func TestMixinRequiresAbstractMethods(t *testing.T) {
	reg := NewRegistry(Options{})
	named := NewClass("mix.Named", nil)
	named.AddMethod(NewMethod("name", Public|Abstract, StringClass, nil, nil))
	named.Define("greeting", func(context.Context, any, []any) (any, error) { return "hello", nil })

	plain := NewClass("mix.Plain", nil)
	if err := reg.Mixin(plain, named); err == nil {
		t.Error("Mixin should fail when the target lacks name()")
	}

	person := NewClass("mix.Person", nil)
	person.AddMethod(NewMethod("name", Public, StringClass, nil, Returning("ada")))
	if err := reg.Mixin(person, named); err != nil {
		t.Fatalf("Mixin: %v", err)
	}
	got, err := reg.Dispatcher().InvokeMethod(context.Background(), NewObject(person), "greeting")
	if err != nil || got != "hello" {
		t.Errorf("greeting = %v, %v", got, err)
	}
}

func TestMixinAfterInitializationFails(t *testing.T) {
	reg := NewRegistry(Options{})
	robot := NewClass("mix.Robot", nil)
	if _, err := reg.MetaClass(robot); err != nil {
		t.Fatal(err)
	}
	err := reg.Mixin(robot, newCounterMixin())
	if !errors.Is(err, ErrIllegalInitializationState) {
		t.Errorf("err = %v, want ErrIllegalInitializationState", err)
	}
	if len(reg.Mixins(robot)) != 0 {
		t.Error("a failed mixin should not be recorded")
	}
}
