package vm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ---------------------------------------------------------------------------
// ClassMetadata: the per-class dispatch index
// ---------------------------------------------------------------------------

// ClassMetadata holds everything dispatch needs to know about one class:
// the member index with its this/super views, the property maps, and the
// fallback hooks the class declares.
//
// It is built once by Initialize under mu and is read without locks
// afterwards. Every read accessor fails with ErrNotInitialized before the
// build completes, and every mutator fails with
// ErrIllegalInitializationState after it.
type ClassMetadata struct {
	class    *Class
	registry *Registry
	mode     CacheMode
	lenient  bool

	mu          sync.Mutex
	initialized atomic.Bool
	modified    atomic.Bool

	newMethods []*Method
	overloads  []*Method
	beanProps  []*BeanProperty

	index        *MemberIndex
	methods      []*Method
	metaMethods  []*Method
	seenNew      map[*Method]bool
	constructors []*Method
	ctorCache    *ResolutionCache

	properties       map[*Class]*propertyMap
	superProperties  map[*Class]*propertyMap
	staticProperties *propertyMap

	genericGet         *Method
	genericSet         *Method
	propertyMissingGet *Method
	propertyMissingSet *Method
	methodMissing      *Method
	invokeMethodHook   *Method
	getPropertyHook    *Method
	setPropertyHook    *Method

	isMap bool
}

// NewClassMetadata creates an uninitialized metadata for c. The registry
// supplies extension methods, cache mode and the introspection policy.
func NewClassMetadata(r *Registry, c *Class) *ClassMetadata {
	return &ClassMetadata{
		class:    c,
		registry: r,
		mode:     r.opts.CacheMode,
		lenient:  r.opts.LenientIntrospection,
		isMap:    MapClass.IsAssignableFrom(c),
	}
}

// Class returns the described class.
func (mc *ClassMetadata) Class() *Class { return mc.class }

// Initialized reports whether the build has completed.
func (mc *ClassMetadata) Initialized() bool { return mc.initialized.Load() }

// Modified reports whether the metadata was installed explicitly through
// Registry.SetMetaClass rather than built on demand.
func (mc *ClassMetadata) Modified() bool { return mc.modified.Load() }

// Index returns the member index. It is nil before initialization.
func (mc *ClassMetadata) Index() *MemberIndex {
	if !mc.initialized.Load() {
		return nil
	}
	return mc.index
}

// Initialize builds the index. It is idempotent and safe to call from
// several goroutines; only the first call does the work.
func (mc *ClassMetadata) Initialize() error {
	if mc.initialized.Load() {
		return nil
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.initialized.Load() {
		return nil
	}

	_, span := tracer.Start(context.Background(), "metaclass.build",
		trace.WithAttributes(attribute.String("class", mc.class.FullName())))
	defer span.End()

	start := time.Now()
	if err := mc.build(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metaclassBuilds.WithLabelValues("error").Inc()
		metaclassLog.Errorf("building metadata for %s: %s", mc.class, err)
		return err
	}
	mc.index.freeze()
	mc.initialized.Store(true)

	metaclassBuildDuration.Observe(time.Since(start).Seconds())
	metaclassBuilds.WithLabelValues("ok").Inc()
	metaclassLog.Debugf("built %s: %d headers, %d properties, %d static properties",
		mc.class, len(mc.index.Headers()), mc.props(mc.class).len(), mc.staticProperties.len())
	return nil
}

func (mc *ClassMetadata) checkInitialized() error {
	if !mc.initialized.Load() {
		return fmt.Errorf("%w: %s", ErrNotInitialized, mc.class)
	}
	return nil
}

func (mc *ClassMetadata) checkNotInitialized(what string) error {
	if mc.initialized.Load() {
		return illegalState("cannot %s on %s after initialization", what, mc.class)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Mutation before initialization
// ---------------------------------------------------------------------------

// AddNewMethod contributes an extension method to the class. It is indexed
// like a declared method of the class when the metadata is built.
func (mc *ClassMetadata) AddNewMethod(m *Method) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if err := mc.checkNotInitialized("add method " + m.Name); err != nil {
		return err
	}
	if m.Owner == nil {
		m.Owner = mc.class
	}
	if m.Kind == KindReal {
		m.Kind = KindNew
	}
	mc.newMethods = append(mc.newMethods, m)
	return nil
}

// AddOverload indexes m into the class's own header as-is once the
// metadata is built.
func (mc *ClassMetadata) AddOverload(m *Method) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if err := mc.checkNotInitialized("add overload " + m.Name); err != nil {
		return err
	}
	if m.Owner == nil {
		m.Owner = mc.class
	}
	mc.overloads = append(mc.overloads, m)
	return nil
}

// AddMetaBeanProperty contributes an accessor-backed property.
func (mc *ClassMetadata) AddMetaBeanProperty(p *BeanProperty) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if err := mc.checkNotInitialized("add property " + p.Name()); err != nil {
		return err
	}
	mc.beanProps = append(mc.beanProps, p)
	return nil
}

// ---------------------------------------------------------------------------
// Read API
// ---------------------------------------------------------------------------

// Methods returns the public methods declared along the class chain.
func (mc *ClassMetadata) Methods() ([]*Method, error) {
	if err := mc.checkInitialized(); err != nil {
		return nil, err
	}
	return mc.methods, nil
}

// MetaMethods returns the contributed methods: extension, mixin and methods
// added through AddNewMethod.
func (mc *ClassMetadata) MetaMethods() ([]*Method, error) {
	if err := mc.checkInitialized(); err != nil {
		return nil, err
	}
	return mc.metaMethods, nil
}

// Properties returns the instance properties of the class in index order.
func (mc *ClassMetadata) Properties() ([]Property, error) {
	if err := mc.checkInitialized(); err != nil {
		return nil, err
	}
	return mc.properties[mc.class].values(), nil
}

// Property returns the named instance property, or nil.
func (mc *ClassMetadata) Property(name string) (Property, error) {
	if err := mc.checkInitialized(); err != nil {
		return nil, err
	}
	return mc.properties[mc.class].get(name), nil
}

// HasProperty reports whether the class has an instance or static property
// called name.
func (mc *ClassMetadata) HasProperty(name string) (bool, error) {
	if err := mc.checkInitialized(); err != nil {
		return false, err
	}
	return mc.properties[mc.class].get(name) != nil || mc.staticProperties.get(name) != nil, nil
}

// StaticProperty returns the named static property, or nil.
func (mc *ClassMetadata) StaticProperty(name string) (Property, error) {
	if err := mc.checkInitialized(); err != nil {
		return nil, err
	}
	return mc.staticProperties.get(name), nil
}

// PickMethod resolves name for argTypes from the class's own point of view
// without running any fallback. It returns nil when nothing applies.
func (mc *ClassMetadata) PickMethod(name string, argTypes []*Class) (*Method, error) {
	if err := mc.checkInitialized(); err != nil {
		return nil, err
	}
	return mc.index.Resolve(mc.class, name, argTypes, false)
}

// RespondsTo returns the overloads of name that accept argTypes.
func (mc *ClassMetadata) RespondsTo(name string, argTypes ...*Class) ([]*Method, error) {
	if err := mc.checkInitialized(); err != nil {
		return nil, err
	}
	var out []*Method
	for _, m := range mc.index.Overloads(mc.class, name, false).Methods() {
		if m.isValidFor(argTypes) {
			out = append(out, m)
		}
	}
	return out, nil
}

// RetrieveConstructor picks the constructor for argTypes, or nil.
func (mc *ClassMetadata) RetrieveConstructor(argTypes []*Class) (*Method, error) {
	if err := mc.checkInitialized(); err != nil {
		return nil, err
	}
	if m, ok, err := mc.ctorCache.Lookup(argTypes); ok {
		return m, err
	}
	m, err := chooseInternal(mc.class, ConstructorName, mc.constructors, argTypes)
	mc.ctorCache.Store(argTypes, m, err)
	return m, err
}

// ChooseConstructor is RetrieveConstructor failing with
// *NoApplicableOverloadError when nothing fits.
func (mc *ClassMetadata) ChooseConstructor(argTypes []*Class) (*Method, error) {
	m, err := mc.RetrieveConstructor(argTypes)
	if err == nil && m == nil {
		err = &NoApplicableOverloadError{Class: mc.class, Method: ConstructorName, ArgTypes: argTypes}
	}
	return m, err
}

// Constructors returns the constructor candidates.
func (mc *ClassMetadata) Constructors() ([]*Method, error) {
	if err := mc.checkInitialized(); err != nil {
		return nil, err
	}
	return mc.constructors, nil
}

// RetrieveStaticMethod picks a static overload of name, or nil.
func (mc *ClassMetadata) RetrieveStaticMethod(name string, argTypes []*Class) (*Method, error) {
	if err := mc.checkInitialized(); err != nil {
		return nil, err
	}
	return mc.index.ResolveStatic(name, argTypes)
}

// CacheStats aggregates the resolution caches of the index.
func (mc *ClassMetadata) CacheStats() CacheStats {
	var s CacheStats
	if mc.initialized.Load() {
		mc.index.collectStats(&s)
		s.add(mc.ctorCache)
	}
	s.finish()
	return s
}

// property returns the property map entry as seen from sender.
func (mc *ClassMetadata) property(sender *Class, name string, useSuper, useStatic bool) Property {
	if useStatic {
		return mc.staticProperties.get(name)
	}
	index := mc.properties
	if useSuper {
		index = mc.superProperties
	}
	if sender == nil {
		sender = mc.class
	}
	if pm, ok := index[sender]; ok {
		return pm.get(name)
	}
	if sender != mc.class {
		return mc.property(mc.class, name, useSuper, false)
	}
	return nil
}
