package vm

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"weak"
)

// ---------------------------------------------------------------------------
// Mixins: permanent composition of one class's behavior into another
// ---------------------------------------------------------------------------

// mixinKey identifies the mixin instance that backs one receiver.
type mixinKey struct {
	mixin *Class
	owner weak.Pointer[Object]
}

// mixinState holds the applied mixins and their instances. Objects get one
// mixin instance each, dropped when the object is collected; other
// receivers share one instance per mixin class.
type mixinState struct {
	mu      sync.RWMutex
	applied map[*Class][]*Class

	instances sync.Map // mixinKey -> any
	shared    sync.Map // *Class -> any
}

// Mixin composes the public instance methods of mixin into target. A
// method target already declares (or inherits) is kept ("class wins").
// Abstract methods of mixin are requirements: target must implement each
// of them. Like any new method, it fails once target's metadata is built.
func (r *Registry) Mixin(target, mixin *Class) error {
	var ms []*Method
	for cur := mixin; cur != nil && cur != ObjectClass; cur = cur.Superclass {
		for _, m := range cur.Methods {
			if m.IsStatic() || isTrampoline(m.Name) {
				continue
			}
			if m.IsAbstract() {
				if !implementsConcretely(target, m) {
					return fmt.Errorf("class %s does not provide required method %s for mixin %s",
						target.Name, m.Signature(), mixin.Name)
				}
				continue
			}
			if !m.IsPublic() || declaresSignature(target, m) || shadowed(ms, m) {
				continue
			}
			ms = append(ms, &Method{
				Name:      m.Name,
				Owner:     target,
				Params:    m.Params,
				Return:    m.Return,
				Modifiers: Public,
				Kind:      KindMixin,
				Origin:    m,
				Fn:        r.mixinFn(mixin, m),
			})
		}
	}
	if err := r.RegisterNewMethods(target, ms...); err != nil {
		return err
	}

	r.mixins.mu.Lock()
	if r.mixins.applied == nil {
		r.mixins.applied = make(map[*Class][]*Class)
	}
	r.mixins.applied[target] = append(r.mixins.applied[target], mixin)
	r.mixins.mu.Unlock()

	registryLog.Infof("mixed %s into %s: %d methods", mixin, target, len(ms))
	return nil
}

// Mixins returns the classes mixed into target, in application order.
func (r *Registry) Mixins(target *Class) []*Class {
	r.mixins.mu.RLock()
	defer r.mixins.mu.RUnlock()
	return append([]*Class(nil), r.mixins.applied[target]...)
}

func implementsConcretely(c *Class, m *Method) bool {
	for cur := c; cur != nil; cur = cur.Superclass {
		if dm := cur.DeclaredMethod(m.Name, m.Params...); dm != nil && !dm.IsAbstract() {
			return true
		}
	}
	return false
}

// shadowed reports whether a subclass of the mixin already contributed the
// signature of m.
func shadowed(ms []*Method, m *Method) bool {
	for _, x := range ms {
		if x.Name == m.Name && sameTypes(x.Params, m.Params) {
			return true
		}
	}
	return false
}

// mixinFn runs origin on the mixin instance that belongs to the receiver.
func (r *Registry) mixinFn(mixin *Class, origin *Method) Func {
	return func(ctx context.Context, receiver any, args []any) (any, error) {
		inst, err := r.mixinInstance(ctx, mixin, receiver)
		if err != nil {
			return nil, err
		}
		return origin.call(ctx, inst, args)
	}
}

func (r *Registry) mixinInstance(ctx context.Context, mixin *Class, receiver any) (any, error) {
	obj, ok := receiver.(*Object)
	if !ok {
		if inst, ok := r.mixins.shared.Load(mixin); ok {
			return inst, nil
		}
		inst, err := r.dispatcher.InvokeConstructor(ctx, mixin)
		if err != nil {
			return nil, err
		}
		actual, _ := r.mixins.shared.LoadOrStore(mixin, inst)
		return actual, nil
	}

	key := mixinKey{mixin: mixin, owner: weak.Make(obj)}
	if inst, ok := r.mixins.instances.Load(key); ok {
		return inst, nil
	}
	inst, err := r.dispatcher.InvokeConstructor(ctx, mixin)
	if err != nil {
		return nil, err
	}
	actual, loaded := r.mixins.instances.LoadOrStore(key, inst)
	if !loaded {
		instances := &r.mixins.instances
		runtime.AddCleanup(obj, func(k mixinKey) { instances.Delete(k) }, key)
	}
	return actual, nil
}
