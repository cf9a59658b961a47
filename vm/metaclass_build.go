package vm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// build runs the indexing walk. It is called once, under mc.mu.
func (mc *ClassMetadata) build() error {
	c := mc.class
	mc.index = NewMemberIndex(c, mc.mode)
	mc.seenNew = make(map[*Method]bool)
	mc.methods, mc.metaMethods = nil, nil
	mc.properties = make(map[*Class]*propertyMap)
	mc.superProperties = make(map[*Class]*propertyMap)
	mc.staticProperties = newPropertyMap()
	mc.genericGet, mc.genericSet = nil, nil
	mc.propertyMissingGet, mc.propertyMissingSet = nil, nil
	mc.methodMissing, mc.invokeMethodHook = nil, nil
	mc.getPropertyHook, mc.setPropertyHook = nil, nil

	supers := superChain(c)
	pivot := pivotOf(c, supers)
	main := mc.index.Header(c)

	mc.indexInterfaces(main)
	mc.populate(supers, pivot)
	mc.inheritInterfaceNewMethods(main)
	for _, m := range mc.overloads {
		mc.addToIndex(main, m)
	}

	mc.index.copyToSuper()
	if c.IsDynamic() {
		mc.connectMultimethods(supers, pivot)
		mc.removeMultimethodsOverloadedWithPrivate()
	}
	mc.replaceWithTrampolines()

	mc.buildConstructors()
	mc.ctorCache = newResolutionCache(mc.mode)
	return mc.buildProperties(supers)
}

// superChain lists the classes whose members c inherits, root first.
// Reference arrays also see the members of Object[].
func superChain(c *Class) []*Class {
	if c.IsInterface() {
		return []*Class{ObjectClass}
	}
	chain := c.Superclasses()
	if c.IsArray() && c != ObjectArrayClass && !c.Component.Primitive {
		chain = append([]*Class{ObjectArrayClass}, chain...)
	}
	return chain
}

// pivotOf returns the last class of the chain that is not dynamic. Every
// class above and including it shares one header; dynamic classes below it
// get their own.
func pivotOf(c *Class, supers []*Class) *Class {
	if c.IsInterface() {
		return ObjectClass
	}
	for i, s := range supers {
		if s.Dynamic {
			if i == 0 {
				return s
			}
			return supers[i-1]
		}
	}
	return supers[len(supers)-1]
}

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

func (mc *ClassMetadata) indexInterfaces(main *Header) {
	c := mc.class
	for _, iface := range c.AllInterfaces() {
		for _, m := range iface.indexableMethods() {
			if iface == c || (m.IsPublic() && !m.IsStatic()) {
				mc.addToIndex(main, m)
			}
			if iface != c && isValidAccessorName(m.Name) {
				mc.addToIndex(mc.index.Header(iface), m)
			}
		}
	}
}

func (mc *ClassMetadata) populate(supers []*Class, pivot *Class) {
	c := mc.class
	h := mc.index.Header(pivot)
	i := 0
	for ; i < len(supers); i++ {
		s := supers[i]
		for _, m := range s.indexableMethods() {
			mc.addToAllMethods(m)
			if s == pivot || m.IsPublic() || m.IsProtected() ||
				(!m.IsPrivate() && m.Owner.InSamePackage(c)) {
				mc.addToIndex(h, m)
			}
		}
		for _, m := range mc.newMethodsOf(s) {
			if mc.markNew(m) {
				mc.addToIndex(h, m)
			}
		}
		if s == pivot {
			i++
			break
		}
	}

	last := h
	for ; i < len(supers); i++ {
		s := supers[i]
		h = mc.index.Header(s)
		mc.index.copyNonPrivate(last, h)
		last = h
		for _, m := range s.indexableMethods() {
			mc.addToAllMethods(m)
			mc.addToIndex(h, m)
		}
		for _, m := range mc.newMethodsOf(s) {
			if m.Name == ConstructorName && m.Owner != c {
				continue
			}
			if mc.markNew(m) {
				mc.addToIndex(h, m)
			}
		}
	}
}

// inheritInterfaceNewMethods folds extension methods registered for the
// interfaces of the class into its header, unless the class chain already
// declares the signature.
func (mc *ClassMetadata) inheritInterfaceNewMethods(main *Header) {
	for _, iface := range mc.class.AllInterfaces() {
		for _, m := range mc.newMethodsOf(iface) {
			if m.Kind == KindNew && declaresSignature(mc.class, m) {
				continue
			}
			if mc.markNew(m) {
				mc.addToIndex(main, m)
			}
		}
	}
}

func declaresSignature(c *Class, m *Method) bool {
	for cur := c; cur != nil; cur = cur.Superclass {
		if cur.DeclaredMethod(m.Name, m.Params...) != nil {
			return true
		}
	}
	return false
}

// connectMultimethods copies the declared overrides of each class up into
// the headers of its ancestors, down to the pivot, so a call made from an
// ancestor's code still reaches the override.
func (mc *ClassMetadata) connectMultimethods(supers []*Class, pivot *Class) {
	var last *Header
	for i := len(supers) - 1; i >= 0; i-- {
		h := mc.index.Header(supers[i])
		if last != nil {
			mc.index.copyNonPrivateNonNew(last, h)
		}
		last = h
		if supers[i] == pivot {
			break
		}
	}
}

// removeMultimethodsOverloadedWithPrivate resets an ancestor's this-view to
// its own declarations whenever that ancestor declares a private method of
// the same name: private calls bind lexically and must not see overrides.
func (mc *ClassMetadata) removeMultimethodsOverloadedWithPrivate() {
	for _, h := range mc.index.Headers() {
		if h.Class == mc.class {
			continue
		}
		for _, e := range h.Entries() {
			for _, m := range e.Methods.Methods() {
				if m.IsPrivate() && m.Owner == h.Class {
					e.Methods = e.SuperMethods.copy()
					break
				}
			}
		}
	}
}

// replaceWithTrampolines points super-views at super$D$name accessors and
// private this-views at this$D$name accessors. A super-view overload that
// is the header class's own, with no accessor, is replaced by the nearest
// ancestor implementation or dropped.
func (mc *ClassMetadata) replaceWithTrampolines() {
	mops := make(map[string][]*Method)
	for _, m := range mc.class.mopMethods() {
		mops[m.Name] = append(mops[m.Name], m)
	}

	for _, h := range mc.index.Headers() {
		dist := h.Class.SuperClassDistance() - 1
		for _, e := range h.Entries() {
			e.SuperMethods = superView(h.Class, dist, e.SuperMethods, mops)
		}
	}

	if len(mops) == 0 {
		return
	}
	for _, h := range mc.index.Headers() {
		for _, e := range h.Entries() {
			e.Methods = thisView(e.Methods, mops)
		}
	}
}

func superView(c *Class, dist int, set OverloadSet, mops map[string][]*Method) OverloadSet {
	if set.Len() == 0 {
		return set
	}
	out := set.copy()
	for i := 0; i < out.Len(); i++ {
		m := out.At(i)
		if isNonReal(m) {
			continue
		}
		if !m.IsPrivate() {
			if t := superTrampoline(mops, m, dist); t != nil {
				out.set(i, t)
				continue
			}
		}
		if !m.IsBridge() && m.Owner != c {
			continue
		}
		if impl := nearestAncestorImpl(c.Superclass, m); impl != nil {
			out.set(i, impl)
			continue
		}
		out.removeAt(i)
		i--
	}
	return out
}

func thisView(set OverloadSet, mops map[string][]*Method) OverloadSet {
	var out OverloadSet
	copied := false
	for i := 0; i < set.Len(); i++ {
		m := set.At(i)
		if isNonReal(m) || !m.IsPrivate() {
			continue
		}
		if t := matchTrampoline(mops, m.mopName(), m.Params); t != nil {
			if !copied {
				out, copied = set.copy(), true
			}
			out.set(i, t)
		}
	}
	if !copied {
		return set
	}
	return out
}

// superTrampoline finds the highest numbered super$D$name accessor for m.
// Bridge methods only match the accessor of the immediate level.
func superTrampoline(mops map[string][]*Method, m *Method, dist int) *Method {
	if len(mops) == 0 {
		return nil
	}
	if m.IsBridge() {
		return matchTrampoline(mops, "super$"+strconv.Itoa(dist)+"$"+m.Name, m.Params)
	}
	for d := dist; d > 0; d-- {
		if t := matchTrampoline(mops, "super$"+strconv.Itoa(d)+"$"+m.Name, m.Params); t != nil {
			return t
		}
	}
	return nil
}

func matchTrampoline(mops map[string][]*Method, name string, params []*Class) *Method {
	for _, t := range mops[name] {
		if sameTypes(t.Params, params) {
			return t
		}
	}
	return nil
}

// nearestAncestorImpl walks up from c for a concrete, non-private
// declaration with m's parameters.
func nearestAncestorImpl(c *Class, m *Method) *Method {
	for cur := c; cur != nil; cur = cur.Superclass {
		d := cur.DeclaredMethod(m.Name, m.Params...)
		if d != nil && !d.IsPrivate() && !d.IsAbstract() {
			return d
		}
	}
	return nil
}

func (mc *ClassMetadata) newMethodsOf(c *Class) []*Method {
	out := mc.registry.newMethodsFor(c)
	if c == mc.class && len(mc.newMethods) > 0 {
		out = append(append([]*Method(nil), out...), mc.newMethods...)
	}
	return out
}

func (mc *ClassMetadata) markNew(m *Method) bool {
	if mc.seenNew[m] {
		return false
	}
	mc.seenNew[m] = true
	mc.metaMethods = append(mc.metaMethods, m)
	return true
}

func (mc *ClassMetadata) addToAllMethods(m *Method) {
	if m.IsPublic() {
		mc.methods = append(mc.methods, m)
	}
}

func (mc *ClassMetadata) addToIndex(h *Header, m *Method) {
	mc.index.addTo(h, m)
	mc.recordHook(m)
}

// recordHook remembers the fallback hooks the class declares. Methods are
// indexed root first, so a declaration from a subclass replaces one from
// its ancestor.
func (mc *ClassMetadata) recordHook(m *Method) {
	if m.IsStatic() || m.IsPrivate() {
		return
	}
	p := m.Params
	stringFirst := len(p) > 0 && p[0] == StringClass
	switch m.Name {
	case "methodMissing":
		if len(p) == 2 && stringFirst && (p[1] == ObjectClass || p[1] == ObjectArrayClass) {
			mc.methodMissing = closerHook(mc.methodMissing, m)
		}
	case "propertyMissing":
		switch {
		case len(p) == 1 && stringFirst:
			mc.propertyMissingGet = closerHook(mc.propertyMissingGet, m)
		case len(p) == 2 && stringFirst:
			mc.propertyMissingSet = closerHook(mc.propertyMissingSet, m)
		}
	case "invokeMethod":
		if len(p) == 2 && stringFirst && p[1] == ObjectClass {
			mc.invokeMethodHook = closerHook(mc.invokeMethodHook, m)
		}
	case "get":
		if len(p) == 1 && stringFirst && !m.IsVoid() {
			mc.genericGet = closerHook(mc.genericGet, m)
		}
	case "set":
		if len(p) == 2 && stringFirst {
			mc.genericSet = closerHook(mc.genericSet, m)
		}
	case "getProperty":
		if len(p) == 1 && stringFirst {
			mc.getPropertyHook = closerHook(mc.getPropertyHook, m)
		}
	case "setProperty":
		if len(p) == 2 && stringFirst {
			mc.setPropertyHook = closerHook(mc.setPropertyHook, m)
		}
	}
}

func closerHook(existing, m *Method) *Method {
	if existing == nil || existing.IsAbstract() {
		return m
	}
	if m.IsAbstract() || existing.Owner == m.Owner {
		return existing
	}
	if existing.Owner.IsAssignableFrom(m.Owner) {
		return m
	}
	return existing
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func (mc *ClassMetadata) buildConstructors() {
	c := mc.class
	ctors := append([]*Method(nil), c.Constructors...)
	for _, m := range mc.metaMethods {
		if m.Name == ConstructorName && m.Owner == c {
			ctors = append(ctors, m)
		}
	}
	if len(c.Constructors) == 0 && !c.IsInterface() && !c.Modifiers.IsAbstract() && !c.Primitive && !c.IsArray() {
		ctors = append(ctors, implicitConstructor(c))
	}
	mc.constructors = ctors
}

// implicitConstructor is the no-argument constructor of a class that
// declares none.
func implicitConstructor(c *Class) *Method {
	return &Method{
		Name:      ConstructorName,
		Owner:     c,
		Return:    c,
		Modifiers: Public | Synthetic,
		Fn: func(context.Context, any, []any) (any, error) {
			return NewObject(c), nil
		},
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func (mc *ClassMetadata) props(c *Class) *propertyMap {
	pm, ok := mc.properties[c]
	if !ok {
		pm = newPropertyMap()
		mc.properties[c] = pm
	}
	return pm
}

func (mc *ClassMetadata) superProps(c *Class) *propertyMap {
	pm, ok := mc.superProperties[c]
	if !ok {
		pm = newPropertyMap()
		mc.superProperties[c] = pm
	}
	return pm
}

func (mc *ClassMetadata) buildProperties(supers []*Class) error {
	c := mc.class
	descriptors, err := Introspect(c)
	if err != nil {
		if !mc.lenient {
			return fmt.Errorf("introspecting %s: %w", c, err)
		}
		metaclassLog.Warningf("introspecting %s: %s", c, err)
		descriptors = nil
	}

	if c.IsInterface() {
		addConsts(c, mc.props(c))
		mc.applyDescriptors(descriptors)
		mc.applyStrayAccessors(ObjectClass, mc.props(ObjectClass), true)
	} else {
		ifaces := c.AllInterfaces()
		if c.IsArray() {
			mc.props(c).put("length", ArrayLengthProperty{})
		}
		mc.inheritStaticInterfaceFields(supers, ifaces)
		mc.inheritFields(supers)
		mc.applyDescriptors(descriptors)
		mc.applyRecordComponents()

		for _, s := range supers {
			mc.applyStrayAccessors(s, mc.props(s), true)
		}
		for _, i := range ifaces {
			mc.applyStrayAccessors(i, mc.props(i), true)
		}
		for _, s := range supers {
			mc.applyStrayAccessors(s, mc.superProps(s), false)
		}
	}
	for _, p := range mc.beanProps {
		mc.addMetaBeanProperty(p)
	}
	mc.fillStaticPropertyIndex()
	return nil
}

func (mc *ClassMetadata) inheritStaticInterfaceFields(supers, ifaces []*Class) {
	for _, iface := range ifaces {
		ip, ok := mc.properties[iface]
		if !ok {
			ip = newPropertyMap()
			addConsts(iface, ip)
			mc.properties[iface] = ip
		}
		for _, s := range supers {
			if iface.IsAssignableFrom(s) {
				copyNonPrivateFields(ip, mc.props(s), nil)
			}
		}
	}
}

func (mc *ClassMetadata) inheritFields(supers []*Class) {
	var prev *propertyMap
	for _, s := range supers {
		cur := mc.props(s)
		if prev.len() > 0 {
			copyNonPrivateFields(prev, cur, s)
			copyNonPrivateFields(prev, mc.superProps(s), s)
		}
		prev = cur
		addFields(s, cur)
	}
}

func addConsts(iface *Class, pm *propertyMap) {
	for _, sup := range iface.Interfaces {
		addConsts(sup, pm)
	}
	addFields(iface, pm)
}

func addFields(c *Class, pm *propertyMap) {
	for _, f := range c.Fields {
		pm.put(f.Name, &FieldProperty{Field: f})
	}
}

// copyNonPrivateFields copies the fields of from that are visible to klass:
// public, protected, or package-private within klass's package.
func copyNonPrivateFields(from, to *propertyMap, klass *Class) {
	from.each(func(name string, p Property) {
		fp, ok := p.(*FieldProperty)
		if !ok {
			return
		}
		m := fp.Field.Modifiers
		if m.IsPublic() || m.IsProtected() || (!m.IsPrivate() && klass != nil && fp.Field.Owner.InSamePackage(klass)) {
			to.put(name, fp)
		}
	})
}

func (mc *ClassMetadata) applyDescriptors(descriptors []PropertyDescriptor) {
	for _, pd := range descriptors {
		if pd.Type == nil {
			continue
		}
		mc.addMetaBeanProperty(NewBeanProperty(pd.Name, pd.Type, pd.Read, pd.Write))
	}
}

// applyRecordComponents exposes each record component through its
// same-named accessor.
func (mc *ClassMetadata) applyRecordComponents() {
	for _, name := range mc.class.RecordComponents {
		m := mc.class.DeclaredMethod(name)
		if m == nil || m.IsVoid() || m.IsStatic() {
			continue
		}
		mc.addMetaBeanProperty(NewBeanProperty(name, m.Return, m, nil))
	}
}

// addMetaBeanProperty files bp in the static index when it is reachable
// statically, otherwise in the class's own index, keeping the field of the
// entry it replaces.
func (mc *ClassMetadata) addMetaBeanProperty(bp *BeanProperty) {
	if mc.establishStatic(bp) != nil {
		mc.staticProperties.put(bp.Name(), bp)
		return
	}
	pm := mc.props(mc.class)
	if old := pm.get(bp.Name()); old != nil {
		bp.Field = fieldOf(old)
	}
	pm.put(bp.Name(), bp)
}

// applyStrayAccessors derives properties from accessor-shaped methods in
// the header of source that introspection did not report.
func (mc *ClassMetadata) applyStrayAccessors(source *Class, target *propertyMap, isThis bool) {
	h := mc.index.headers[source]
	if h == nil {
		return
	}
	d := mc.registry.Dispatcher()
	for _, e := range h.Entries() {
		prop, getter, boolean, ok := accessorKind(e.Name)
		if !ok {
			continue
		}
		set := e.Methods
		if !isThis {
			set = e.SuperMethods
		}
		for _, m := range filterPropertyMethods(set.Methods(), getter, boolean) {
			old := target.get(prop)
			if p := replacementProperty(old, prop, getter, m, d); p != old {
				target.put(prop, p)
			}
		}
	}
}

// replacementProperty merges accessor m into the existing property. An
// "is" getter is never displaced by a "get" getter, and a second distinct
// setter turns the property into a multi-setter.
func replacementProperty(p Property, name string, isGetter bool, m *Method, d *Dispatcher) Property {
	switch x := p.(type) {
	case nil:
		if isGetter {
			return NewBeanProperty(name, m.Return, m, nil)
		}
		return NewBeanProperty(name, m.Params[0], nil, m)
	case *FieldProperty:
		bp := NewBeanProperty(name, x.Field.Type, nil, nil)
		if isGetter {
			bp.Getter = m
		} else {
			bp.Setter = m
		}
		bp.Field = x.Field
		return bp
	case *MultiSetterProperty:
		if isGetter && !isIsGetter(x.Getter) {
			x.Getter = m
		}
		return x
	case *BeanProperty:
		if isGetter {
			if !isIsGetter(x.Getter) {
				x.Getter = m
			}
			return x
		}
		if x.Setter == nil || x.Setter == m {
			x.Setter = m
			return x
		}
		msp := newMultiSetterProperty(name, d)
		msp.Field = x.Field
		msp.Getter = x.Getter
		return msp
	}
	return p
}

func isIsGetter(m *Method) bool {
	return m != nil && strings.HasPrefix(m.Name, "is")
}

func (mc *ClassMetadata) fillStaticPropertyIndex() {
	index := func(name string, p Property) {
		var sp Property
		switch x := p.(type) {
		case *FieldProperty:
			if x.Field.Modifiers.IsStatic() {
				sp = x
			}
		case *BeanProperty:
			sp = mc.establishStatic(x)
		case *MultiSetterProperty:
			sp = x.staticVersion()
		}
		if sp != nil {
			mc.staticProperties.put(name, sp)
		}
	}
	mc.props(mc.class).each(index)

	if mc.class.IsInterface() {
		stray := newPropertyMap()
		mc.applyStrayAccessors(mc.class, stray, true)
		stray.each(index)
	}
}

// findStaticAccessMethod returns the getter to use on the class itself. A
// non-static isX getter gives way to a static getX when one exists.
func (mc *ClassMetadata) findStaticAccessMethod(bp *BeanProperty) *Method {
	getter := bp.Getter
	if getter != nil && !getter.IsStatic() && strings.HasPrefix(getter.Name, "is") {
		name := "get" + getter.Name[2:]
		if cands := filterPropertyMethods(mc.index.StaticOverloads(name).Methods(), true, false); len(cands) > 0 {
			getter = cands[0]
		}
	}
	return getter
}

// establishStatic returns the view of bp usable on the class itself, or
// nil when bp needs an instance.
func (mc *ClassMetadata) establishStatic(bp *BeanProperty) Property {
	setter := bp.Setter
	getter := mc.findStaticAccessMethod(bp)
	var staticField *Field
	if bp.Field != nil && bp.Field.Modifiers.IsStatic() {
		staticField = bp.Field
	}

	g := getter == nil || getter.IsStatic()
	s := setter == nil || setter.IsStatic()

	var out Property
	if staticField != nil {
		out = &FieldProperty{Field: staticField}
	}
	switch {
	case g && s:
		shadow := getter != bp.Getter
		if staticField != nil && !shadow {
			out = bp
		} else if getter != nil || setter != nil {
			typ := bp.Type()
			if typ == BoolPrim && shadow {
				typ = getter.Return
			}
			out = NewBeanProperty(bp.Name(), typ, getter, setter)
		}
	case g:
		if getter != nil {
			np := NewBeanProperty(bp.Name(), getter.Return, getter, nil)
			np.Field = staticField
			out = np
		}
	case s:
		if setter != nil {
			np := NewBeanProperty(bp.Name(), bp.Type(), nil, setter)
			np.Field = staticField
			out = np
		}
	}
	return out
}
