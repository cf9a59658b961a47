package vm

import (
	"fmt"
	"sync/atomic"
)

// Resolution caching for overload selection.
//
// Each selector entry carries a cache keyed by the exact argument-type
// vector (component-wise pointer identity). Writes are plain atomic
// replacements of immutable records, so concurrent writers at worst discard
// each other's answers; readers never see a partial record.

// CacheMode selects the cache shape used by new ClassMetadata.
type CacheMode uint8

const (
	// SingleEntry remembers only the last argument shape.
	SingleEntry CacheMode = iota
	// Polymorphic remembers up to MaxPICEntries shapes, then stops caching.
	Polymorphic
)

// ParseCacheMode accepts "monomorphic" (or "single") and "polymorphic".
func ParseCacheMode(s string) (CacheMode, error) {
	switch s {
	case "", "monomorphic", "single":
		return SingleEntry, nil
	case "polymorphic":
		return Polymorphic, nil
	}
	return SingleEntry, fmt.Errorf("unknown cache mode %q", s)
}

func (m CacheMode) String() string {
	if m == Polymorphic {
		return "polymorphic"
	}
	return "monomorphic"
}

// CacheState represents the current state of a resolution cache.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // No cached lookup yet
	CacheMonomorphic                   // Single shape cached
	CachePolymorphic                   // 2-6 shapes cached
	CacheMegamorphic                   // Too many shapes, always resolve
)

// MaxPICEntries is the maximum number of shapes in a polymorphic cache.
const MaxPICEntries = 6

// cacheRecord is an immutable resolution answer. method may be nil with a
// nil err, meaning "resolved to nothing".
type cacheRecord struct {
	args   []*Class
	method *Method
	err    error
}

type picTable struct {
	records []*cacheRecord
	mega    bool
}

// ResolutionCache remembers resolved overloads by argument shape.
type ResolutionCache struct {
	mode CacheMode
	last atomic.Pointer[cacheRecord]
	pic  atomic.Pointer[picTable]

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newResolutionCache(mode CacheMode) *ResolutionCache {
	return &ResolutionCache{mode: mode}
}

// Lookup returns the cached answer for args.
func (rc *ResolutionCache) Lookup(args []*Class) (m *Method, ok bool, err error) {
	if rc.mode == Polymorphic {
		if t := rc.pic.Load(); t != nil {
			for _, r := range t.records {
				if sameTypes(r.args, args) {
					rc.hits.Add(1)
					return r.method, true, r.err
				}
			}
		}
	} else if r := rc.last.Load(); r != nil && sameTypes(r.args, args) {
		rc.hits.Add(1)
		return r.method, true, r.err
	}
	rc.misses.Add(1)
	return nil, false, nil
}

// Store records the answer for args.
func (rc *ResolutionCache) Store(args []*Class, m *Method, err error) {
	r := &cacheRecord{args: append([]*Class(nil), args...), method: m, err: err}
	if rc.mode != Polymorphic {
		rc.last.Store(r)
		return
	}
	old := rc.pic.Load()
	if old == nil {
		rc.pic.Store(&picTable{records: []*cacheRecord{r}})
		return
	}
	if old.mega {
		return
	}
	for _, e := range old.records {
		if sameTypes(e.args, args) {
			return
		}
	}
	if len(old.records) >= MaxPICEntries {
		rc.pic.Store(&picTable{mega: true})
		return
	}
	records := make([]*cacheRecord, len(old.records), len(old.records)+1)
	copy(records, old.records)
	rc.pic.Store(&picTable{records: append(records, r)})
}

// State reports the cache shape.
func (rc *ResolutionCache) State() CacheState {
	if rc.mode != Polymorphic {
		if rc.last.Load() == nil {
			return CacheEmpty
		}
		return CacheMonomorphic
	}
	t := rc.pic.Load()
	switch {
	case t == nil:
		return CacheEmpty
	case t.mega:
		return CacheMegamorphic
	case len(t.records) == 1:
		return CacheMonomorphic
	}
	return CachePolymorphic
}

// Hits returns the number of cache hits.
func (rc *ResolutionCache) Hits() uint64 { return rc.hits.Load() }

// Misses returns the number of cache misses.
func (rc *ResolutionCache) Misses() uint64 { return rc.misses.Load() }

// HitRate returns the hit rate as a percentage (0-100).
func (rc *ResolutionCache) HitRate() float64 {
	h, m := rc.Hits(), rc.Misses()
	if h+m == 0 {
		return 0
	}
	return float64(h) * 100 / float64(h+m)
}

// Reset clears the cache back to empty.
func (rc *ResolutionCache) Reset() {
	rc.last.Store(nil)
	rc.pic.Store(nil)
	rc.hits.Store(0)
	rc.misses.Store(0)
}

// CacheStats holds aggregate resolution cache statistics.
type CacheStats struct {
	Entries         int     // Selector entries with a cache
	Monomorphic     int     // Caches holding one shape
	Polymorphic     int     // Caches holding several shapes
	Megamorphic     int     // Caches that gave up
	Empty           int     // Caches never used
	TotalHits       uint64  // Total cache hits
	TotalMisses     uint64  // Total cache misses
	HitRate         float64 // Overall hit rate percentage
	MonomorphicRate float64 // Percentage of used caches that are monomorphic
}

func (s *CacheStats) add(rc *ResolutionCache) {
	if rc == nil {
		return
	}
	s.Entries++
	switch rc.State() {
	case CacheMonomorphic:
		s.Monomorphic++
	case CachePolymorphic:
		s.Polymorphic++
	case CacheMegamorphic:
		s.Megamorphic++
	case CacheEmpty:
		s.Empty++
	}
	s.TotalHits += rc.Hits()
	s.TotalMisses += rc.Misses()
}

func (s *CacheStats) finish() {
	if total := s.TotalHits + s.TotalMisses; total > 0 {
		s.HitRate = float64(s.TotalHits) * 100 / float64(total)
	}
	if used := s.Entries - s.Empty; used > 0 {
		s.MonomorphicRate = float64(s.Monomorphic) * 100 / float64(used)
	}
}
