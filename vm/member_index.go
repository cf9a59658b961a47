package vm

import "sync/atomic"

// ---------------------------------------------------------------------------
// OverloadSet
// ---------------------------------------------------------------------------

// OverloadSet holds the candidates for one selector. Most selectors have a
// single overload, which is stored without a slice.
type OverloadSet struct {
	one  *Method
	many []*Method
}

// Len returns the number of overloads.
func (s OverloadSet) Len() int {
	if s.many != nil {
		return len(s.many)
	}
	if s.one != nil {
		return 1
	}
	return 0
}

// At returns overload i.
func (s OverloadSet) At(i int) *Method {
	if s.many != nil {
		return s.many[i]
	}
	return s.one
}

// Methods returns the overloads as a slice. The slice must not be modified.
func (s OverloadSet) Methods() []*Method {
	if s.many != nil {
		return s.many
	}
	if s.one != nil {
		return []*Method{s.one}
	}
	return nil
}

func (s OverloadSet) copy() OverloadSet {
	if s.many == nil {
		return s
	}
	return OverloadSet{many: append([]*Method(nil), s.many...)}
}

func (s *OverloadSet) set(i int, m *Method) {
	if s.many != nil {
		s.many[i] = m
		return
	}
	s.one = m
}

func (s *OverloadSet) removeAt(i int) {
	if s.many == nil {
		s.one = nil
		return
	}
	s.many = append(s.many[:i], s.many[i+1:]...)
	if len(s.many) == 1 {
		s.one, s.many = s.many[0], nil
	}
}

func (s *OverloadSet) append(m *Method) {
	switch {
	case s.many != nil:
		s.many = append(s.many, m)
	case s.one != nil:
		s.many = []*Method{s.one, m}
		s.one = nil
	default:
		s.one = m
	}
}

// isNonReal reports whether m was contributed rather than declared.
func isNonReal(m *Method) bool {
	return m.Kind != KindReal
}

// add merges m into s following the override rules: a method from a
// subclass replaces an ancestor's method with the same parameters, a
// private method is never replaced, a concrete method replaces an abstract
// one, and a contributed method replaces a declared one of the same class.
func (s OverloadSet) add(m *Method) OverloadSet {
	n := s.Len()
	for i := 0; i < n; i++ {
		existing := s.At(i)
		if existing == m {
			return s
		}
		if !sameTypes(existing.Params, m.Params) {
			continue
		}
		switch {
		case existing.IsPrivate():
		case existing.IsAbstract() && !m.IsAbstract():
			s = s.copy()
			s.set(i, m)
		case m.Owner == existing.Owner:
			if isNonReal(m) {
				s = s.copy()
				s.set(i, m)
			}
		case !m.Owner.IsAssignableFrom(existing.Owner):
			s = s.copy()
			s.set(i, m)
		}
		return s
	}
	s = s.copy()
	s.append(m)
	return s
}

// ---------------------------------------------------------------------------
// Entry and Header
// ---------------------------------------------------------------------------

// Entry is the per-selector slot of a header: the this-view, the
// super-view, and the static overloads, each with its own cache.
type Entry struct {
	Name     string
	Selector Selector
	Class    *Class

	Methods       OverloadSet
	SuperMethods  OverloadSet
	StaticMethods OverloadSet

	cache       *ResolutionCache
	superCache  *ResolutionCache
	staticCache *ResolutionCache
}

// Header is the method table seen from one sender class. The class being
// described has one header per class in its dynamic chain so that private
// methods bind lexically.
type Header struct {
	Class   *Class
	mode    CacheMode
	entries []*Entry // indexed by selector
	order   []*Entry
}

func newHeader(c *Class, mode CacheMode) *Header {
	return &Header{Class: c, mode: mode}
}

// Lookup returns the entry for name, or nil.
func (h *Header) Lookup(name string) *Entry {
	sel := selectors.Lookup(name)
	if sel == NoSelector || int(sel) >= len(h.entries) {
		return nil
	}
	return h.entries[sel]
}

// entry returns the entry for name, creating it during construction.
func (h *Header) entry(name string) *Entry {
	sel := selectors.Intern(name)
	if int(sel) >= len(h.entries) {
		grown := make([]*Entry, sel+1)
		copy(grown, h.entries)
		h.entries = grown
	}
	e := h.entries[sel]
	if e == nil {
		e = &Entry{
			Name:        name,
			Selector:    sel,
			Class:       h.Class,
			cache:       newResolutionCache(h.mode),
			superCache:  newResolutionCache(h.mode),
			staticCache: newResolutionCache(h.mode),
		}
		h.entries[sel] = e
		h.order = append(h.order, e)
	}
	return e
}

// Entries returns the entries in insertion order.
func (h *Header) Entries() []*Entry {
	return h.order
}

// ---------------------------------------------------------------------------
// MemberIndex
// ---------------------------------------------------------------------------

// MemberIndex stores the overload sets of one class, organised by sender
// header. It is append-only until frozen, and read-only afterwards.
type MemberIndex struct {
	Class   *Class
	mode    CacheMode
	headers map[*Class]*Header
	order   []*Header
	frozen  atomic.Bool
}

// NewMemberIndex creates an empty index for c.
func NewMemberIndex(c *Class, mode CacheMode) *MemberIndex {
	return &MemberIndex{Class: c, mode: mode, headers: make(map[*Class]*Header)}
}

// Header returns the header for sender c, creating it if needed.
func (mi *MemberIndex) Header(c *Class) *Header {
	if h, ok := mi.headers[c]; ok {
		return h
	}
	h := newHeader(c, mi.mode)
	mi.headers[c] = h
	mi.order = append(mi.order, h)
	return h
}

// HeaderFor returns the header for sender, falling back to the indexed
// class's own header.
func (mi *MemberIndex) HeaderFor(sender *Class) *Header {
	if sender != nil {
		if h, ok := mi.headers[sender]; ok {
			return h
		}
	}
	return mi.headers[mi.Class]
}

// Headers returns every header in creation order.
func (mi *MemberIndex) Headers() []*Header { return mi.order }

// Frozen reports whether the index rejects further additions.
func (mi *MemberIndex) Frozen() bool { return mi.frozen.Load() }

func (mi *MemberIndex) freeze() { mi.frozen.Store(true) }

// Overloads returns the this-view or super-view for name as seen from
// header.
func (mi *MemberIndex) Overloads(header *Class, name string, forSuper bool) OverloadSet {
	e := mi.lookupEntry(header, name, forSuper)
	if e == nil {
		return OverloadSet{}
	}
	if forSuper {
		return e.SuperMethods
	}
	return e.Methods
}

// lookupEntry finds the entry for name as seen from sender. A super call
// whose view is empty falls back to the sender's superclass header, and an
// unknown sender or name falls back to the indexed class's own header.
func (mi *MemberIndex) lookupEntry(sender *Class, name string, forSuper bool) *Entry {
	var e *Entry
	if h := mi.headers[sender]; h != nil {
		e = h.Lookup(name)
	}
	if forSuper && e != nil && e.SuperMethods.Len() == 0 && sender.Superclass != nil {
		if h := mi.headers[sender.Superclass]; h != nil {
			if se := h.Lookup(name); se != nil {
				e = se
			}
		}
	}
	if e == nil {
		if h := mi.headers[mi.Class]; h != nil {
			e = h.Lookup(name)
		}
	}
	return e
}

// StaticOverloads returns the static overloads for name.
func (mi *MemberIndex) StaticOverloads(name string) OverloadSet {
	h := mi.HeaderFor(mi.Class)
	if h == nil {
		return OverloadSet{}
	}
	if e := h.Lookup(name); e != nil {
		return e.StaticMethods
	}
	return OverloadSet{}
}

// AddOverload indexes m under header. It fails once the index is frozen.
func (mi *MemberIndex) AddOverload(header *Class, m *Method) error {
	if mi.Frozen() {
		return illegalState("cannot add %s to the index of %s after initialization", m, mi.Class)
	}
	mi.addTo(mi.Header(header), m)
	return nil
}

func (mi *MemberIndex) addTo(h *Header, m *Method) {
	e := h.entry(m.Name)
	if m.IsStatic() {
		e.StaticMethods = e.StaticMethods.add(m)
	}
	e.Methods = e.Methods.add(m)
}

// Resolve picks the overload of name for argTypes through the entry's
// cache. A nil method with a nil error means nothing applies; ambiguity is
// reported as *AmbiguousOverloadError and cached like any other answer.
func (mi *MemberIndex) Resolve(header *Class, name string, argTypes []*Class, forSuper bool) (*Method, error) {
	e := mi.lookupEntry(header, name, forSuper)
	if e == nil {
		return nil, nil
	}
	set, cache := e.Methods, e.cache
	if forSuper {
		set, cache = e.SuperMethods, e.superCache
	}
	return mi.resolveCached(cache, name, set, argTypes)
}

// ResolveStatic picks a static overload of name.
func (mi *MemberIndex) ResolveStatic(name string, argTypes []*Class) (*Method, error) {
	h := mi.HeaderFor(mi.Class)
	if h == nil {
		return nil, nil
	}
	e := h.Lookup(name)
	if e == nil {
		return nil, nil
	}
	return mi.resolveCached(e.staticCache, name, e.StaticMethods, argTypes)
}

func (mi *MemberIndex) resolveCached(cache *ResolutionCache, name string, set OverloadSet, argTypes []*Class) (*Method, error) {
	if set.Len() == 0 {
		return nil, nil
	}
	if m, ok, err := cache.Lookup(argTypes); ok {
		cacheResults.WithLabelValues("hit").Inc()
		return m, err
	}
	cacheResults.WithLabelValues("miss").Inc()
	m, err := chooseInternal(mi.Class, name, set.Methods(), argTypes)
	cache.Store(argTypes, m, err)
	return m, err
}

// ---------------------------------------------------------------------------
// Construction helpers
// ---------------------------------------------------------------------------

// copyNonPrivate copies every non-private overload of from into to.
func (mi *MemberIndex) copyNonPrivate(from, to *Header) {
	for _, e := range from.order {
		mi.copyFiltered(e, to, func(m *Method) bool { return !m.IsPrivate() })
	}
}

// copyNonPrivateNonNew copies declared, non-private overloads of from into
// to. Used to connect subclass overrides into ancestor headers.
func (mi *MemberIndex) copyNonPrivateNonNew(from, to *Header) {
	for _, e := range from.order {
		mi.copyFiltered(e, to, func(m *Method) bool { return !m.IsPrivate() && !m.IsNew() })
	}
}

func (mi *MemberIndex) copyFiltered(from *Entry, to *Header, keep func(*Method) bool) {
	n := from.Methods.Len()
	if n == 0 {
		return
	}
	target := to.entry(from.Name)
	for i := 0; i < n; i++ {
		m := from.Methods.At(i)
		if !keep(m) {
			continue
		}
		target.Methods = target.Methods.add(m)
		if m.IsStatic() {
			target.StaticMethods = target.StaticMethods.add(m)
		}
	}
}

// copyToSuper seeds every super-view with a copy of its this-view.
func (mi *MemberIndex) copyToSuper() {
	for _, h := range mi.order {
		for _, e := range h.order {
			e.SuperMethods = e.Methods.copy()
		}
	}
}

// collectStats adds every cache in the index to s.
func (mi *MemberIndex) collectStats(s *CacheStats) {
	for _, h := range mi.order {
		for _, e := range h.order {
			if e.Methods.Len() > 0 {
				s.add(e.cache)
			}
			if e.SuperMethods.Len() > 0 {
				s.add(e.superCache)
			}
			if e.StaticMethods.Len() > 0 {
				s.add(e.staticCache)
			}
		}
	}
}
