package vm

import (
	"context"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Categories: scoped extension methods
// ---------------------------------------------------------------------------

// A category class contributes its public static methods as instance
// methods of the type of their first parameter, but only inside a
// UseCategories scope. The scope is an immutable frame chain carried in the
// context, so it never leaks to other goroutines and unwinds with the call.

type categoryKey struct{}

// activeCategoryScopes counts open scopes process-wide. Zero means no
// context can carry categories and dispatch skips the lookup.
var activeCategoryScopes atomic.Int64

type categoryFrame struct {
	parent  *categoryFrame
	classes []*Class
	methods map[string][]*Method // includes the parent's, oldest first
}

func newCategoryFrame(parent *categoryFrame, classes []*Class) *categoryFrame {
	f := &categoryFrame{parent: parent, classes: classes, methods: make(map[string][]*Method)}
	if parent != nil {
		for name, ms := range parent.methods {
			f.methods[name] = ms
		}
	}
	for _, cat := range classes {
		for _, m := range cat.Methods {
			if !m.IsPublic() || !m.IsStatic() || len(m.Params) == 0 || isTrampoline(m.Name) {
				continue
			}
			cm := &Method{
				Name:      m.Name,
				Owner:     m.Params[0],
				Params:    m.Params[1:],
				Return:    m.Return,
				Modifiers: Public,
				Kind:      KindCategory,
				Origin:    m,
				Fn:        selfFirst(m),
			}
			prev := f.methods[m.Name]
			f.methods[m.Name] = append(prev[:len(prev):len(prev)], cm)
		}
	}
	return f
}

// UseCategories runs fn with the methods of categories in scope. Scopes
// nest; methods of an inner scope take precedence over those of an outer
// one with the same signature. The scope ends when fn returns or panics.
func UseCategories(ctx context.Context, categories []*Class, fn func(context.Context) error) error {
	frame := newCategoryFrame(categoriesFrom(ctx), categories)
	activeCategoryScopes.Add(1)
	defer activeCategoryScopes.Add(-1)
	dispatchLog.Debugf("category scope opened with %d classes", len(categories))
	return fn(context.WithValue(ctx, categoryKey{}, frame))
}

// ActiveCategories returns the category classes in scope for ctx, outermost
// first.
func ActiveCategories(ctx context.Context) []*Class {
	var frames []*categoryFrame
	for f := categoriesFrom(ctx); f != nil; f = f.parent {
		frames = append(frames, f)
	}
	var out []*Class
	for i := len(frames) - 1; i >= 0; i-- {
		out = append(out, frames[i].classes...)
	}
	return out
}

func categoriesFrom(ctx context.Context) *categoryFrame {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(categoryKey{}).(*categoryFrame)
	return f
}

func categoriesActive(ctx context.Context) bool {
	return activeCategoryScopes.Load() > 0 && categoriesFrom(ctx) != nil
}

// categoryMethods returns the category methods called name in scope.
func categoryMethods(ctx context.Context, name string) []*Method {
	if !categoriesActive(ctx) {
		return nil
	}
	return categoriesFrom(ctx).methods[name]
}

// selfFirst adapts a static method whose first parameter is the self type:
// the receiver becomes the first argument.
func selfFirst(origin *Method) Func {
	return func(ctx context.Context, receiver any, args []any) (any, error) {
		full := make([]any, 0, len(args)+1)
		full = append(full, receiver)
		full = append(full, args...)
		return origin.call(ctx, origin.Owner, full)
	}
}

// ---------------------------------------------------------------------------
// Merging category methods into overload sets
// ---------------------------------------------------------------------------

type matchKind uint8

const (
	matchAdd matchKind = iota
	matchReplace
	matchIgnore
)

// categoryMatch decides how category method cat relates to existing
// candidate m: a different signature is added, one contributed for the
// same or a more specific self type replaces m, anything else loses.
func categoryMatch(m, cat *Method) matchKind {
	if !sameTypes(m.Params, cat.Params) {
		return matchAdd
	}
	if m.Owner == cat.Owner || m.Owner.IsAssignableFrom(cat.Owner) {
		return matchReplace
	}
	return matchIgnore
}

// mergeCategory adds the category methods applicable to receiver class c
// into candidates and returns the merged set.
func mergeCategory(c *Class, candidates []*Method, cats []*Method) []*Method {
	out := append([]*Method(nil), candidates...)
	for _, cat := range cats {
		if !cat.Owner.IsAssignableFrom(c) {
			continue
		}
		out = addCategoryMethod(out, cat)
	}
	return out
}

func addCategoryMethod(set []*Method, cat *Method) []*Method {
	for i, m := range set {
		switch categoryMatch(m, cat) {
		case matchReplace:
			set[i] = cat
			return set
		case matchIgnore:
			return set
		}
	}
	return append(set, cat)
}

// categoryAccessor finds a category method named name applicable to c whose
// parameters satisfy accept. The one contributed for the most specific self
// type wins; among equals the innermost scope wins.
func categoryAccessor(ctx context.Context, c *Class, name string, accept func(params []*Class) bool) *Method {
	var best *Method
	for _, m := range categoryMethods(ctx, name) {
		if !m.Owner.IsAssignableFrom(c) || !accept(m.Params) {
			continue
		}
		if best == nil || best.Owner.IsAssignableFrom(m.Owner) {
			best = m
		}
	}
	return best
}

func noParams(params []*Class) bool { return len(params) == 0 }

func oneParam(params []*Class) bool { return len(params) == 1 }

func stringParam(params []*Class) bool { return len(params) == 1 && params[0] == StringClass }

func stringObjectParams(params []*Class) bool { return len(params) == 2 && params[0] == StringClass }
