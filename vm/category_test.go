package vm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func stringCategory(name string, suffix string) *Class {
	cat := NewClass("cat."+name, nil)
	cat.DefineStatic("decorate", func(_ context.Context, _ any, args []any) (any, error) {
		return args[0].(string) + suffix, nil
	}, StringClass)
	return cat
}

func TestCategoryScope(t *testing.T) {
	d := NewRegistry(Options{}).Dispatcher()
	ctx := context.Background()
	cat := stringCategory("Bang", "!")

	if _, err := d.InvokeMethod(ctx, "hi", "decorate"); !errors.Is(err, ErrMissingMethod) {
		t.Fatalf("outside scope: err = %v, want ErrMissingMethod", err)
	}

	err := UseCategories(ctx, []*Class{cat}, func(ctx context.Context) error {
		got, err := d.InvokeMethod(ctx, "hi", "decorate")
		if err != nil {
			return err
		}
		if got != "hi!" {
			t.Errorf("decorate = %v, want hi!", got)
		}
		if active := ActiveCategories(ctx); len(active) != 1 || active[0] != cat {
			t.Errorf("ActiveCategories = %v", active)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("UseCategories: %v", err)
	}

	if _, err := d.InvokeMethod(ctx, "hi", "decorate"); !errors.Is(err, ErrMissingMethod) {
		t.Errorf("after scope: err = %v, want ErrMissingMethod", err)
	}
	if len(ActiveCategories(ctx)) != 0 {
		t.Error("scope leaked into the outer context")
	}
}

func TestNestedCategoriesInnerWins(t *testing.T) {
	d := NewRegistry(Options{}).Dispatcher()
	outer := stringCategory("Outer", "?")
	inner := stringCategory("Inner", "!")
	other := NewClass("cat.Other", nil)
	other.DefineStatic("shout", func(_ context.Context, _ any, args []any) (any, error) {
		return strings.ToUpper(args[0].(string)), nil
	}, StringClass)

	err := UseCategories(context.Background(), []*Class{outer, other}, func(ctx context.Context) error {
		return UseCategories(ctx, []*Class{inner}, func(ctx context.Context) error {
			if got, _ := d.InvokeMethod(ctx, "a", "decorate"); got != "a!" {
				t.Errorf("decorate = %v, want the inner category", got)
			}
			if got, _ := d.InvokeMethod(ctx, "a", "shout"); got != "A" {
				t.Errorf("shout = %v, want the outer category still in scope", got)
			}
			if active := ActiveCategories(ctx); len(active) != 3 || active[2] != inner {
				t.Errorf("ActiveCategories = %v, want outer first", active)
			}
			return nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCategoryMoreSpecificSelfTypeWins(t *testing.T) {
	d := NewRegistry(Options{}).Dispatcher()
	cat := NewClass("cat.Describe", nil)
	cat.DefineStatic("describe", Returning("object"), ObjectClass)
	cat.DefineStatic("describe", Returning("string"), StringClass)

	err := UseCategories(context.Background(), []*Class{cat}, func(ctx context.Context) error {
		if got, _ := d.InvokeMethod(ctx, "s", "describe"); got != "string" {
			t.Errorf("describe on String = %v", got)
		}
		if got, _ := d.InvokeMethod(ctx, 3, "describe"); got != "object" {
			t.Errorf("describe on Integer = %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCategoryProperties(t *testing.T) {
	z := newZoo(t)
	cat := NewClass("cat.DogExtras", nil)
	tricks := map[*Object]any{}
	cat.DefineStatic("getTrick", func(_ context.Context, _ any, args []any) (any, error) {
		return tricks[args[0].(*Object)], nil
	}, z.dog)
	cat.DefineStatic("setTrick", func(_ context.Context, _ any, args []any) (any, error) {
		tricks[args[0].(*Object)] = args[1]
		return nil, nil
	}, z.dog, ObjectClass)

	dog := z.newDog(t, "rex")
	err := UseCategories(context.Background(), []*Class{cat}, func(ctx context.Context) error {
		if err := z.d.SetProperty(ctx, dog, "trick", "roll"); err != nil {
			return err
		}
		got, err := z.d.GetProperty(ctx, dog, "trick")
		if err != nil {
			return err
		}
		if got != "roll" {
			t.Errorf("trick = %v, want roll", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("UseCategories: %v", err)
	}

	if _, err := z.d.GetProperty(context.Background(), dog, "trick"); !errors.Is(err, ErrMissingProperty) {
		t.Errorf("outside scope: err = %v, want ErrMissingProperty", err)
	}
}

func TestCategoryScopeEndsOnError(t *testing.T) {
	boom := errors.New("boom")
	ctx := context.Background()
	err := UseCategories(ctx, []*Class{stringCategory("Err", "")}, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the callback error", err)
	}
	if activeCategoryScopes.Load() != 0 {
		t.Errorf("%d scopes still open", activeCategoryScopes.Load())
	}
}
