package vm

import (
	"context"
	"fmt"
	"unicode"
)

// ---------------------------------------------------------------------------
// Property access
// ---------------------------------------------------------------------------

// hookBypassKey marks a context in which the getProperty/setProperty hooks
// of one object are already running, so the hook's own default access
// reaches the pipeline instead of recursing.
type hookBypassKey struct{}

func hookBypassed(ctx context.Context, obj *Object) bool {
	o, _ := ctx.Value(hookBypassKey{}).(*Object)
	return o == obj
}

func withoutHooks(ctx context.Context, obj *Object) context.Context {
	return context.WithValue(ctx, hookBypassKey{}, obj)
}

// propertyTarget returns the metadata that answers property access on
// receiver and whether the access is static.
func (d *Dispatcher) propertyTarget(receiver any) (*ClassMetadata, bool, error) {
	if c, ok := receiver.(*Class); ok && c != ClassClass {
		mc, err := d.registry.MetaClass(c)
		return mc, true, err
	}
	mc, err := d.registry.MetaClass(d.registry.ClassOf(receiver))
	return mc, false, err
}

// GetProperty reads name on receiver.
func (d *Dispatcher) GetProperty(ctx context.Context, receiver any, name string) (any, error) {
	return d.GetPropertyFrom(ctx, nil, receiver, name, false)
}

// GetPropertyFrom reads name on receiver as seen from sender.
func (d *Dispatcher) GetPropertyFrom(ctx context.Context, sender *Class, receiver any, name string, useSuper bool) (any, error) {
	if receiver == nil {
		return nil, fmt.Errorf("%w: cannot get property '%s' on null object", ErrNullReceiver, name)
	}
	if name == "class" {
		return d.registry.ClassOf(receiver), nil
	}
	if cl, ok := receiver.(*Closure); ok && sender == nil && !useSuper {
		return d.closureProperty(ctx, cl, name)
	}
	mc, isStatic, err := d.propertyTarget(receiver)
	if err != nil {
		return nil, err
	}
	if obj, ok := receiver.(*Object); ok && !useSuper && mc.getPropertyHook != nil && !hookBypassed(ctx, obj) {
		return d.call(withoutHooks(ctx, obj), mc.getPropertyHook, obj, []any{name})
	}
	if sender == nil {
		sender = mc.class
	}

	goMap, isMap := receiver.(map[string]any)
	isMap = isMap && mc.isMap
	special := mc.isMap && name == "empty"

	mm, prop := d.getAccessors(ctx, mc, sender, name, useSuper, isStatic)

	if mm == nil || special || isVisibleProperty(prop, mm, sender) {
		if prop != nil && prop.Modifiers().IsPublic() {
			if v, err := prop.Get(ctx, receiver); err == nil {
				return v, nil
			}
			prop = nil
		}
		if isMap && !isStatic {
			return goMap[name], nil
		}
		if prop != nil {
			if v, err := prop.Get(ctx, receiver); err == nil {
				return v, nil
			}
		}
	}

	// Map entries come before a non-public getter.
	if isMap && !isStatic && mm != nil && !mm.IsPublic() {
		return goMap[name], nil
	}

	var args []any
	if mm == nil && !useSuper && !isStatic && categoriesActive(ctx) {
		mm = categoryAccessor(ctx, mc.class, "propertyMissing", stringParam)
		if mm == nil {
			mm = categoryAccessor(ctx, mc.class, "get", stringParam)
		}
		if mm != nil {
			args = []any{name}
		}
	}
	if mm == nil && mc.genericGet != nil && (mc.genericGet.IsStatic() || !isStatic) {
		mm = mc.genericGet
		args = []any{name}
	}
	if mm != nil {
		return d.call(ctx, mm, receiver, args)
	}

	if isStatic {
		return d.classProperty(ctx, mc, receiver.(*Class), name)
	}
	switch x := receiver.(type) {
	case *List:
		return d.spreadProperty(ctx, x.Items(), name)
	case []any:
		return d.spreadProperty(ctx, x, name)
	}
	if h := mc.propertyMissingGet; h != nil {
		fallbackTotal.WithLabelValues("propertyMissing").Inc()
		return d.call(ctx, h, receiver, []any{name})
	}
	return nil, d.missingProperty(mc, name, false)
}

// getAccessors returns the getter and the field-like property that answer
// name. A capitalised name also finds the decapitalised property, and a
// category getter can take the getter's place.
func (d *Dispatcher) getAccessors(ctx context.Context, mc *ClassMetadata, sender *Class, name string, useSuper, isStatic bool) (*Method, Property) {
	mp := mc.property(sender, name, useSuper, isStatic)
	if _, isField := mp.(*FieldProperty); (mp == nil || isField) && capitalisedName(name) {
		saved := mp
		mp = mc.property(sender, decapitalize(name), useSuper, isStatic)
		if _, isField := mp.(*FieldProperty); mp == nil || (saved != nil && isField) {
			mp = saved
		}
	}

	var mm *Method
	if bp, ok := mp.(*BeanProperty); ok {
		mm = bp.Getter
		mp = fieldProperty(bp.Field)
	}

	if !useSuper && !isStatic && categoriesActive(ctx) {
		suffix := capitalize(name)
		cm := categoryAccessor(ctx, mc.class, "get"+suffix, noParams)
		if cm == nil {
			cm = categoryAccessor(ctx, mc.class, "is"+suffix, noParams)
		}
		if cm != nil && (mm == nil || categoryMatch(mm, cm) == matchReplace) {
			mm = cm
		}
	}
	return mm, mp
}

// fieldProperty wraps f, keeping a nil field a nil Property.
func fieldProperty(f *Field) Property {
	if f == nil {
		return nil
	}
	return &FieldProperty{Field: f}
}

func capitalisedName(name string) bool {
	r := []rune(name)
	if len(r) == 0 || !unicode.IsUpper(r[0]) || (len(r) > 1 && unicode.IsUpper(r[1])) {
		return false
	}
	return name != "Class" && name != "MetaClass"
}

// isVisibleProperty reports whether a field seen from sender hides the
// accessor method: the sender must be a proper subclass of the field's
// owner with access to the field, and the method must come from outside
// the owner's hierarchy.
func isVisibleProperty(field Property, method *Method, sender *Class) bool {
	fp, ok := field.(*FieldProperty)
	if !ok || sender == nil || fp.Field.Modifiers.IsPrivate() {
		return false
	}
	owner := fp.Field.Owner
	if owner == sender || !owner.IsAssignableFrom(sender) {
		return false
	}
	mods := fp.Field.Modifiers
	if !mods.IsPublic() && !mods.IsProtected() && !owner.InSamePackage(sender) {
		return false
	}
	return !owner.IsAssignableFrom(method.Owner) && !method.Owner.IsInterface()
}

// classProperty reads name on a class value through the properties of
// Class itself.
func (d *Dispatcher) classProperty(ctx context.Context, mc *ClassMetadata, c *Class, name string) (any, error) {
	cmc, err := d.registry.MetaClass(ClassClass)
	if err != nil {
		return nil, err
	}
	if p := cmc.properties[ClassClass].get(name); p != nil {
		return p.Get(ctx, c)
	}
	return nil, d.missingProperty(mc, name, true)
}

// spreadProperty reads name on every element.
func (d *Dispatcher) spreadProperty(ctx context.Context, items []any, name string) (any, error) {
	out := NewList()
	for _, it := range items {
		if it == nil {
			out.Add(nil)
			continue
		}
		v, err := d.GetProperty(ctx, it, name)
		if err != nil {
			return nil, err
		}
		out.Add(v)
	}
	return out, nil
}

// SetProperty writes name on receiver.
func (d *Dispatcher) SetProperty(ctx context.Context, receiver any, name string, value any) error {
	return d.SetPropertyFrom(ctx, nil, receiver, name, value, false)
}

// SetPropertyFrom writes name on receiver as seen from sender.
func (d *Dispatcher) SetPropertyFrom(ctx context.Context, sender *Class, receiver any, name string, value any, useSuper bool) error {
	if receiver == nil {
		return fmt.Errorf("%w: cannot set property '%s' on null object", ErrNullReceiver, name)
	}
	if cl, ok := receiver.(*Closure); ok && sender == nil && !useSuper {
		return d.setClosureProperty(ctx, cl, name, value)
	}
	mc, isStatic, err := d.propertyTarget(receiver)
	if err != nil {
		return err
	}
	if obj, ok := receiver.(*Object); ok && !useSuper && mc.setPropertyHook != nil && !hookBypassed(ctx, obj) {
		_, err := d.call(withoutHooks(ctx, obj), mc.setPropertyHook, obj, []any{name, value})
		return err
	}
	if sender == nil {
		sender = mc.class
	}

	goMap, isMap := receiver.(map[string]any)
	isMap = isMap && mc.isMap

	var (
		method *Method
		field  Property
		args   []any
	)
	mp := mc.property(sender, name, useSuper, isStatic)
	if bp, ok := mp.(*BeanProperty); ok {
		method = bp.Setter
		if method != nil || (bp.Field != nil && !bp.Field.Modifiers.IsFinal()) {
			args = []any{value}
			field = fieldProperty(bp.Field)
		}
	} else if mp != nil {
		field = mp
	}

	if !useSuper && !isStatic && name != "" && categoriesActive(ctx) {
		cm := categoryAccessor(ctx, mc.class, "set"+capitalize(name), oneParam)
		if cm != nil && (method == nil || categoryMatch(method, cm) == matchReplace) {
			method = cm
			args = []any{value}
		}
	}

	if field != nil && (method == nil || isVisibleProperty(field, method, sender)) &&
		(!isMap || isStatic || field.Modifiers().IsPublic()) {
		if field.Modifiers().IsFinal() {
			return &ReadOnlyPropertyError{Property: name, Type: mc.class}
		}
		return field.Set(ctx, receiver, value)
	}

	if method == nil && !useSuper && !isStatic && categoriesActive(ctx) {
		if method = categoryAccessor(ctx, mc.class, "set", stringObjectParams); method != nil {
			args = []any{name, value}
		}
	}
	if method == nil && mc.genericSet != nil && (mc.genericSet.IsStatic() || !isStatic) {
		method = mc.genericSet
		args = []any{name, value}
	}

	special := mc.isMap && name == "empty"
	if isMap && !isStatic && !(method != nil && method.IsPublic()) &&
		(mp == nil || !mp.Modifiers().IsPublic() || special) {
		goMap[name] = value
		return nil
	}

	if method != nil {
		_, err := d.call(ctx, method, receiver, args)
		return err
	}
	if mp != nil {
		return &ReadOnlyPropertyError{Property: name, Type: mc.class}
	}
	if h := mc.propertyMissingSet; h != nil && !isStatic {
		fallbackTotal.WithLabelValues("propertyMissing").Inc()
		_, err := d.call(ctx, h, receiver, []any{name, value})
		return err
	}
	return d.missingProperty(mc, name, isStatic)
}

func (d *Dispatcher) missingProperty(mc *ClassMetadata, name string, static bool) error {
	props := mc.properties[mc.class].values()
	if static {
		props = mc.staticProperties.values()
	}
	return &MissingPropertyError{Property: name, Type: mc.class, Suggestions: propertySuggestions(name, props)}
}

// ---------------------------------------------------------------------------
// Attributes: direct field access
// ---------------------------------------------------------------------------

func (d *Dispatcher) attributeField(receiver any, name string) (*Class, *Field, error) {
	if receiver == nil {
		return nil, nil, fmt.Errorf("%w: cannot access field '%s' on null object", ErrNullReceiver, name)
	}
	class, static := d.registry.ClassOf(receiver), false
	if c, ok := receiver.(*Class); ok {
		class, static = c, true
	}
	f := class.FieldNamed(name)
	if f == nil || (static && !f.Modifiers.IsStatic()) {
		var fields []Property
		for cur := class; cur != nil; cur = cur.Superclass {
			for _, cf := range cur.Fields {
				fields = append(fields, &FieldProperty{Field: cf})
			}
		}
		return nil, nil, &MissingPropertyError{Property: name, Type: class, Field: true,
			Suggestions: propertySuggestions(name, fields)}
	}
	return class, f, nil
}

// GetAttribute reads field name on receiver without going through
// accessors.
func (d *Dispatcher) GetAttribute(_ context.Context, receiver any, name string) (any, error) {
	_, f, err := d.attributeField(receiver, name)
	if err != nil {
		return nil, err
	}
	return f.Get(receiver)
}

// SetAttribute writes field name on receiver without going through
// accessors. Final fields cannot be written.
func (d *Dispatcher) SetAttribute(_ context.Context, receiver any, name string, value any) error {
	class, f, err := d.attributeField(receiver, name)
	if err != nil {
		return err
	}
	if f.Modifiers.IsFinal() {
		return &ReadOnlyPropertyError{Property: name, Type: class}
	}
	return f.Set(receiver, value)
}
