package vm

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ---------------------------------------------------------------------------
// Registry: class -> ClassMetadata
// ---------------------------------------------------------------------------

// ClassResolver finds classes the registry does not know by name. The
// dynamic loader implements it.
type ClassResolver interface {
	ResolveClass(name string) (*Class, error)
}

// HostDescriber builds class descriptions for Go types on demand.
type HostDescriber interface {
	Describe(t reflect.Type) *Class
}

// Options configures a Registry.
type Options struct {
	// CacheMode selects the resolution cache shape of new metadata.
	CacheMode CacheMode
	// LenientIntrospection logs and swallows bean introspection failures
	// instead of failing the metadata build.
	LenientIntrospection bool
	// Resolver is consulted by ResolveClass for unknown names.
	Resolver ClassResolver
	// Describer maps Go values without a builtin class to host classes.
	Describer HostDescriber
}

// ChangeKind identifies a registry change.
type ChangeKind uint8

const (
	ChangeSet ChangeKind = iota
	ChangeRemove
	ChangeClear
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSet:
		return "set"
	case ChangeRemove:
		return "remove"
	}
	return "clear"
}

// ChangeEvent is delivered to registry listeners. Class is nil for
// ChangeClear.
type ChangeEvent struct {
	Kind ChangeKind
	Class *Class
	Old   *ClassMetadata
	New   *ClassMetadata
}

// ExtensionModule groups extension classes. Each public static method of a
// class in Classes becomes an instance method on the type of its first
// parameter; each public static method of a class in StaticClasses becomes
// a static method on that type.
type ExtensionModule struct {
	Name          string
	Version       string
	Classes       []*Class
	StaticClasses []*Class
}

type metaTable map[*Class]*ClassMetadata

// Registry owns the ClassMetadata of every class. Lookups read an
// immutable snapshot without locks; a miss builds the metadata once per
// class and publishes a new snapshot.
type Registry struct {
	opts Options

	snapshot atomic.Pointer[metaTable]
	builds   singleflight.Group
	mu       sync.Mutex // serializes snapshot publication and administration

	methodsMu  sync.RWMutex
	newMethods map[*Class][]*Method
	modules    []ExtensionModule

	listenersMu sync.RWMutex
	listeners   []func(ChangeEvent)

	classes   *ClassTable
	hostTypes sync.Map // reflect.Type -> *Class
	mixins    mixinState

	dispatcher *Dispatcher
	profiler   *Profiler
}

// NewRegistry creates a registry with the builtin classes in its class
// table.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		opts:       opts,
		newMethods: make(map[*Class][]*Method),
		classes:    NewClassTable(),
		profiler:   NewProfiler(),
	}
	empty := metaTable{}
	r.snapshot.Store(&empty)
	r.dispatcher = &Dispatcher{registry: r}
	registryLog.Debugf("registry created: cache mode %s, lenient %t", opts.CacheMode, opts.LenientIntrospection)
	return r
}

// Options returns the configuration the registry was created with.
func (r *Registry) Options() Options { return r.opts }

// Dispatcher returns the dispatch engine bound to this registry.
func (r *Registry) Dispatcher() *Dispatcher { return r.dispatcher }

// Classes returns the name -> class table.
func (r *Registry) Classes() *ClassTable { return r.classes }

// Profiler returns the dispatch profiler.
func (r *Registry) Profiler() *Profiler { return r.profiler }

// SetResolver installs the fallback class resolver.
func (r *Registry) SetResolver(res ClassResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.Resolver = res
}

// SetDescriber installs the host type describer.
func (r *Registry) SetDescriber(d HostDescriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.Describer = d
}

// ResolveClass finds a class by qualified name, asking the resolver when
// the table does not have it.
func (r *Registry) ResolveClass(name string) (*Class, error) {
	if c := r.classes.Lookup(name); c != nil {
		return c, nil
	}
	if c := BuiltinClass(name); c != nil {
		return c, nil
	}
	r.mu.Lock()
	res := r.opts.Resolver
	r.mu.Unlock()
	if res == nil {
		return nil, fmt.Errorf("class not found: %s", name)
	}
	c, err := res.ResolveClass(name)
	if err != nil {
		return nil, err
	}
	r.classes.Register(c)
	return c, nil
}

// ---------------------------------------------------------------------------
// Metadata lookup
// ---------------------------------------------------------------------------

func (r *Registry) lookup(c *Class) *ClassMetadata {
	return (*r.snapshot.Load())[c]
}

// MetaClass returns the initialized metadata of c, building it on first
// use. Concurrent first uses share one build.
func (r *Registry) MetaClass(c *Class) (*ClassMetadata, error) {
	if mc := r.lookup(c); mc != nil && mc.Initialized() {
		return mc, nil
	}
	v, err, _ := r.builds.Do(fmt.Sprintf("%p", c), func() (any, error) {
		mc := r.lookup(c)
		if mc == nil {
			mc = r.publishIfAbsent(c, NewClassMetadata(r, c))
		}
		if err := mc.Initialize(); err != nil {
			return nil, err
		}
		return mc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ClassMetadata), nil
}

// publishIfAbsent installs mc unless another entry got there first.
func (r *Registry) publishIfAbsent(c *Class, mc *ClassMetadata) *ClassMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := *r.snapshot.Load()
	if existing := old[c]; existing != nil {
		return existing
	}
	next := make(metaTable, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[c] = mc
	r.snapshot.Store(&next)
	return mc
}

// mutate publishes a modified copy of the snapshot. fn runs under r.mu.
func (r *Registry) mutate(fn func(next metaTable)) {
	old := *r.snapshot.Load()
	next := make(metaTable, len(old))
	for k, v := range old {
		next[k] = v
	}
	fn(next)
	r.snapshot.Store(&next)
}

// SetMetaClass installs mc for c, replacing any existing entry. The
// installed metadata is marked modified, which enables the relaxed
// hierarchy search for subclasses.
func (r *Registry) SetMetaClass(c *Class, mc *ClassMetadata) {
	mc.modified.Store(true)
	r.mu.Lock()
	var old *ClassMetadata
	r.mutate(func(next metaTable) {
		old = next[c]
		next[c] = mc
	})
	r.mu.Unlock()
	registryLog.Infof("metaclass of %s replaced", c)
	r.fire(ChangeEvent{Kind: ChangeSet, Class: c, Old: old, New: mc})
}

// RemoveMetaClass drops the entry for c; the next lookup rebuilds it.
func (r *Registry) RemoveMetaClass(c *Class) {
	r.mu.Lock()
	var old *ClassMetadata
	r.mutate(func(next metaTable) {
		old = next[c]
		delete(next, c)
	})
	r.mu.Unlock()
	if old != nil {
		r.fire(ChangeEvent{Kind: ChangeRemove, Class: c, Old: old})
	}
}

// Clear drops every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	empty := metaTable{}
	r.snapshot.Store(&empty)
	r.mu.Unlock()
	registryLog.Info("registry cleared")
	r.fire(ChangeEvent{Kind: ChangeClear})
}

// Entries returns the classes with metadata in the current snapshot.
func (r *Registry) Entries() []*ClassMetadata {
	snap := *r.snapshot.Load()
	out := make([]*ClassMetadata, 0, len(snap))
	for _, mc := range snap {
		out = append(out, mc)
	}
	return out
}

// hasModifiedAncestor reports whether any superclass or interface of c has
// explicitly installed metadata.
func (r *Registry) hasModifiedAncestor(c *Class) bool {
	snap := *r.snapshot.Load()
	for cur := c.Superclass; cur != nil; cur = cur.Superclass {
		if mc := snap[cur]; mc != nil && mc.Modified() {
			return true
		}
	}
	for _, i := range c.AllInterfaces() {
		if mc := snap[i]; mc != nil && mc.Modified() {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Listeners
// ---------------------------------------------------------------------------

// AddChangeListener registers fn for set, remove and clear events.
func (r *Registry) AddChangeListener(fn func(ChangeEvent)) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) fire(ev ChangeEvent) {
	r.listenersMu.RLock()
	ls := append([]func(ChangeEvent){}, r.listeners...)
	r.listenersMu.RUnlock()
	for _, fn := range ls {
		fn(ev)
	}
}

// ---------------------------------------------------------------------------
// Extension methods
// ---------------------------------------------------------------------------

// RegisterNewMethod contributes m to c. It fails once the metadata of c has
// been built; built metadata of subclasses is dropped so it picks the
// method up on its next lookup.
func (r *Registry) RegisterNewMethod(c *Class, m *Method) error {
	return r.RegisterNewMethods(c, m)
}

// RegisterNewMethods contributes several methods to c at once.
func (r *Registry) RegisterNewMethods(c *Class, ms ...*Method) error {
	if mc := r.lookup(c); mc != nil && mc.Initialized() {
		return illegalState("metaclass of %s is already initialized", c)
	}
	for _, m := range ms {
		if m.Owner == nil {
			m.Owner = c
		}
		if m.Kind == KindReal {
			m.Kind = KindNew
		}
	}

	r.methodsMu.Lock()
	r.newMethods[c] = append(r.newMethods[c], ms...)
	r.methodsMu.Unlock()

	r.invalidate(c)
	registryLog.Debugf("registered %d new methods on %s", len(ms), c)
	return nil
}

func (r *Registry) newMethodsFor(c *Class) []*Method {
	r.methodsMu.RLock()
	defer r.methodsMu.RUnlock()
	return r.newMethods[c]
}

// invalidate drops the metadata of c and of every subtype of c, except
// explicitly installed metadata.
func (r *Registry) invalidate(c *Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutate(func(next metaTable) {
		for k, mc := range next {
			if !c.IsAssignableFrom(k) {
				continue
			}
			if mc.Modified() {
				if mc.Initialized() && k != c {
					registryLog.Warningf("installed metaclass of %s will not see new methods of %s", k, c)
				}
				continue
			}
			delete(next, k)
		}
	})
}

// RegisterExtensionModule turns the public static methods of the module's
// classes into new methods of their self types.
func (r *Registry) RegisterExtensionModule(mod ExtensionModule) error {
	add := func(classes []*Class, static bool) error {
		for _, ext := range classes {
			for _, m := range ext.Methods {
				if !m.IsPublic() || !m.IsStatic() || len(m.Params) == 0 || isTrampoline(m.Name) {
					continue
				}
				nm := extensionMethod(m, static)
				if err := r.RegisterNewMethod(nm.Owner, nm); err != nil {
					return fmt.Errorf("extension module %s: %w", mod.Name, err)
				}
			}
		}
		return nil
	}
	if err := add(mod.Classes, false); err != nil {
		return err
	}
	if err := add(mod.StaticClasses, true); err != nil {
		return err
	}
	r.methodsMu.Lock()
	r.modules = append(r.modules, mod)
	r.methodsMu.Unlock()
	registryLog.Infof("extension module %s %s registered", mod.Name, mod.Version)
	return nil
}

// Modules returns the registered extension modules.
func (r *Registry) Modules() []ExtensionModule {
	r.methodsMu.RLock()
	defer r.methodsMu.RUnlock()
	return append([]ExtensionModule(nil), r.modules...)
}

// extensionMethod wraps static method origin, whose first parameter is the
// self type, as a method of that type. The receiver is passed as the first
// argument.
func extensionMethod(origin *Method, static bool) *Method {
	mods := Public
	if static {
		mods |= Static
	}
	return &Method{
		Name:      origin.Name,
		Owner:     origin.Params[0],
		Params:    origin.Params[1:],
		Return:    origin.Return,
		Modifiers: mods,
		Kind:      KindNew,
		Origin:    origin,
		Fn:        selfFirst(origin),
	}
}

// ---------------------------------------------------------------------------
// Runtime classes of values
// ---------------------------------------------------------------------------

// RegisterHostType binds a Go type to a class description.
func (r *Registry) RegisterHostType(t reflect.Type, c *Class) {
	r.hostTypes.Store(t, c)
	r.classes.Register(c)
}

// ClassOf returns the runtime class of v: builtin classes first, then
// registered host types, then the describer. Unknown values are Objects.
func (r *Registry) ClassOf(v any) *Class {
	if c := ClassOf(v); c != nil {
		return c
	}
	t := reflect.TypeOf(v)
	if c, ok := r.hostTypes.Load(t); ok {
		return c.(*Class)
	}
	r.mu.Lock()
	d := r.opts.Describer
	r.mu.Unlock()
	if d != nil {
		if c := d.Describe(t); c != nil {
			actual, _ := r.hostTypes.LoadOrStore(t, c)
			r.classes.Register(actual.(*Class))
			return actual.(*Class)
		}
	}
	return ObjectClass
}

// ClassesOf maps each argument through ClassOf.
func (r *Registry) ClassesOf(args []any) []*Class {
	out := make([]*Class, len(args))
	for i, a := range args {
		out[i] = r.ClassOf(a)
	}
	return out
}
