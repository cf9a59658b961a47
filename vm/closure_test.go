package vm

import (
	"context"
	"errors"
	"testing"
)

// closureFixture has an owner and a delegate that both answer "who", and
// each answers one name of its own.
type closureFixture struct {
	d        *Dispatcher
	owner    *Object
	delegate *Object
}

func newClosureFixture() closureFixture {
	reg := NewRegistry(Options{})
	ownerClass := NewClass("cl.Owner", nil)
	ownerClass.Define("who", text("owner"))
	ownerClass.Define("ownerOnly", text("from owner"))
	ownerClass.AddField(NewField("label", StringClass, Public).WithInitial("owner label"))

	delegateClass := NewClass("cl.Delegate", nil)
	delegateClass.Define("who", text("delegate"))
	delegateClass.Define("delegateOnly", text("from delegate"))
	delegateClass.AddField(NewField("label", StringClass, Public).WithInitial("delegate label"))

	return closureFixture{
		d:        reg.Dispatcher(),
		owner:    NewObject(ownerClass),
		delegate: NewObject(delegateClass),
	}
}

func TestClosureResolveStrategies(t *testing.T) {
	f := newClosureFixture()
	ctx := context.Background()

	tests := []struct {
		strategy ResolveStrategy
		name     string
		want     string
		missing  bool
	}{
		{OwnerFirst, "who", "owner", false},
		{OwnerFirst, "delegateOnly", "from delegate", false},
		{DelegateFirst, "who", "delegate", false},
		{DelegateFirst, "ownerOnly", "from owner", false},
		{OwnerOnly, "delegateOnly", "", true},
		{DelegateOnly, "ownerOnly", "", true},
		{ToSelf, "who", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.strategy.String()+"/"+tt.name, func(t *testing.T) {
			c := NewClosure(f.owner, nil, nil)
			c.SetDelegate(f.delegate)
			c.SetResolveStrategy(tt.strategy)

			got, err := f.d.InvokeMethod(ctx, c, tt.name)
			if tt.missing {
				if !errors.Is(err, ErrMissingMethod) {
					t.Errorf("err = %v, want ErrMissingMethod", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("%s = %v, %v; want %s", tt.name, got, err, tt.want)
			}
		})
	}
}

func TestClosurePropertiesFollowStrategy(t *testing.T) {
	f := newClosureFixture()
	ctx := context.Background()
	c := NewClosure(f.owner, nil, nil)
	c.SetDelegate(f.delegate)

	if got, _ := f.d.GetProperty(ctx, c, "label"); got != "owner label" {
		t.Errorf("label = %v, want the owner's", got)
	}
	c.SetResolveStrategy(DelegateFirst)
	if got, _ := f.d.GetProperty(ctx, c, "label"); got != "delegate label" {
		t.Errorf("label = %v, want the delegate's", got)
	}
	if err := f.d.SetProperty(ctx, c, "label", "changed"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if v, _ := f.delegate.FieldValue("label"); v != "changed" {
		t.Errorf("delegate label = %v, want changed", v)
	}
	if got, _ := f.d.GetProperty(ctx, c, "class"); got != ClosureClass {
		t.Errorf("class = %v, want Closure", got)
	}
}

func TestClosureOwnProperties(t *testing.T) {
	f := newClosureFixture()
	ctx := context.Background()
	c := NewClosure(f.owner, []*Class{StringClass, IntegerClass}, nil)

	if err := f.d.SetProperty(ctx, c, "delegate", f.delegate); err != nil {
		t.Fatalf("SetProperty(delegate): %v", err)
	}
	if c.Delegate() != f.delegate {
		t.Error("delegate property did not set the delegate")
	}
	if err := f.d.SetProperty(ctx, c, "resolveStrategy", int(DelegateOnly)); err != nil {
		t.Fatalf("SetProperty(resolveStrategy): %v", err)
	}
	if c.ResolveStrategy() != DelegateOnly {
		t.Errorf("strategy = %s, want DELEGATE_ONLY", c.ResolveStrategy())
	}
	if got, _ := f.d.GetProperty(ctx, c, "maximumNumberOfParameters"); got != 2 {
		t.Errorf("maximumNumberOfParameters = %v, want 2", got)
	}
	if got, _ := f.d.GetProperty(ctx, c, "owner"); got != f.owner {
		t.Errorf("owner = %v", got)
	}
	if err := f.d.SetProperty(ctx, c, "resolveStrategy", 9); err == nil {
		t.Error("an out of range strategy should fail")
	}
}

func TestClosureCallAndCurry(t *testing.T) {
	ctx := context.Background()
	join := NewClosure(nil, []*Class{StringClass, StringClass}, func(_ context.Context, _ any, args []any) (any, error) {
		return args[0].(string) + "-" + args[1].(string), nil
	})

	got, err := join.Call(ctx, "a", "b")
	if err != nil || got != "a-b" {
		t.Fatalf("Call = %v, %v", got, err)
	}

	prefixed := join.Curry("x")
	if got, _ := prefixed.Call(ctx, "y"); got != "x-y" {
		t.Errorf("curried Call = %v, want x-y", got)
	}
	if n := prefixed.MaximumNumberOfParameters(); n != 1 {
		t.Errorf("curried arity = %d, want 1", n)
	}
	if join.MaximumNumberOfParameters() != 2 {
		t.Error("Curry must not change the original closure")
	}

	_, err = join.Call(ctx, "a", 1)
	var mm *MissingMethodError
	if !errors.As(err, &mm) || mm.Method != "doCall" {
		t.Errorf("typed mismatch: err = %v, want a missing doCall", err)
	}

	untyped := NewClosure(nil, nil, func(_ context.Context, _ any, args []any) (any, error) {
		return len(args), nil
	})
	if got, _ := untyped.Call(ctx, 1, "two", nil); got != 3 {
		t.Errorf("untyped Call = %v, want 3", got)
	}
	if untyped.MaximumNumberOfParameters() != -1 {
		t.Error("untyped closure should report -1 parameters")
	}
}

func TestClosureDispatch(t *testing.T) {
	f := newClosureFixture()
	ctx := context.Background()
	var self *Closure
	self = NewClosure(f.owner, nil, func(ctx context.Context, r any, _ []any) (any, error) {
		if r != self {
			t.Errorf("receiver = %v, want the closure", r)
		}
		return f.d.InvokeMethod(ctx, r, "who")
	})

	if got, err := f.d.InvokeMethod(ctx, self, "call"); err != nil || got != "owner" {
		t.Errorf("call = %v, %v", got, err)
	}
	self.SetDelegate(f.delegate)
	self.SetResolveStrategy(DelegateFirst)
	if got, _ := f.d.InvokeMethod(ctx, self, "call"); got != "delegate" {
		t.Errorf("call with delegate = %v", got)
	}
	if got, _ := f.d.InvokeMethod(ctx, self, "getDelegate"); got != f.delegate {
		t.Errorf("getDelegate = %v", got)
	}
}

func TestMethodPointer(t *testing.T) {
	z := newZoo(t)
	ctx := context.Background()
	dog := z.newDog(t, "rex")

	fetch := z.d.MethodPointer(dog, "fetch")
	if !fetch.IsMethodPointer() {
		t.Error("IsMethodPointer = false")
	}
	got, err := fetch.Call(ctx, "ball")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	want := invoke(t, z.d, ctx, dog, "fetch", "ball")
	if got != want {
		t.Errorf("pointer call = %v, direct call = %v", got, want)
	}

	speak := z.d.MethodPointer(dog, "speak")
	if got, _ := z.d.InvokeMethod(ctx, speak, "call"); got != "woof" {
		t.Errorf("speak pointer = %v, want woof", got)
	}
}
