package vm

import (
	"sync"
	"sync/atomic"
)

// Profiler counts dispatches per receiver class and selector so hot call
// targets can be reported. Counters are lock-free; a selector becomes hot
// once its count reaches HotThreshold.

// SelectorProfile holds the counters for one class and selector.
type SelectorProfile struct {
	Class *Class
	Name  string

	Dispatches atomic.Uint64 // successful resolutions
	Fallbacks  atomic.Uint64 // dispatches that reached the fallback chain
	hot        atomic.Bool
}

// IsHot reports whether the threshold was exceeded.
func (sp *SelectorProfile) IsHot() bool { return sp.hot.Load() }

// ClassProfile holds the dispatch total of one receiver class.
type ClassProfile struct {
	Class      *Class
	Dispatches atomic.Uint64
}

type profileKey struct {
	class *Class
	name  string
}

// Profiler manages profiles for all dispatches through one registry.
type Profiler struct {
	selectorProfiles sync.Map // profileKey -> *SelectorProfile
	classProfiles    sync.Map // *Class -> *ClassProfile

	// HotThreshold is the dispatch count at which a selector turns hot.
	HotThreshold uint64 // Default: 1000

	// OnHot is called once per selector when it turns hot.
	OnHot func(*SelectorProfile)

	hotCount atomic.Uint64
	disabled atomic.Bool
}

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 1000}
}

// SetEnabled turns recording on or off.
func (p *Profiler) SetEnabled(on bool) { p.disabled.Store(!on) }

func (p *Profiler) profile(class *Class, name string) *SelectorProfile {
	key := profileKey{class, name}
	if val, ok := p.selectorProfiles.Load(key); ok {
		return val.(*SelectorProfile)
	}
	val, _ := p.selectorProfiles.LoadOrStore(key, &SelectorProfile{Class: class, Name: name})
	return val.(*SelectorProfile)
}

// RecordDispatch counts a dispatch of name on class. It returns true if
// this dispatch made the selector hot.
func (p *Profiler) RecordDispatch(class *Class, name string) bool {
	if p == nil || class == nil || p.disabled.Load() {
		return false
	}
	cval, _ := p.classProfiles.LoadOrStore(class, &ClassProfile{Class: class})
	cval.(*ClassProfile).Dispatches.Add(1)

	profile := p.profile(class, name)
	count := profile.Dispatches.Add(1)

	if count >= p.HotThreshold && profile.hot.CompareAndSwap(false, true) {
		p.hotCount.Add(1)
		if p.OnHot != nil {
			p.OnHot(profile)
		}
		return true
	}
	return false
}

// RecordFallback counts a dispatch of name on class that missed the index.
func (p *Profiler) RecordFallback(class *Class, name string) {
	if p == nil || class == nil || p.disabled.Load() {
		return
	}
	p.profile(class, name).Fallbacks.Add(1)
}

// Profile returns the profile for a class and selector, or nil if not
// tracked.
func (p *Profiler) Profile(class *Class, name string) *SelectorProfile {
	if val, ok := p.selectorProfiles.Load(profileKey{class, name}); ok {
		return val.(*SelectorProfile)
	}
	return nil
}

// IsHot returns true if the selector has exceeded the hot threshold.
func (p *Profiler) IsHot(class *Class, name string) bool {
	profile := p.Profile(class, name)
	return profile != nil && profile.IsHot()
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Classes         int    // Receiver classes seen
	Selectors       int    // Class and selector pairs seen
	HotSelectors    int    // Pairs over the threshold
	TotalDispatches uint64 // All recorded dispatches
	TotalFallbacks  uint64 // Dispatches that reached the fallback chain
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats

	p.classProfiles.Range(func(_, _ any) bool {
		stats.Classes++
		return true
	})

	p.selectorProfiles.Range(func(_, value any) bool {
		profile := value.(*SelectorProfile)
		stats.Selectors++
		stats.TotalDispatches += profile.Dispatches.Load()
		stats.TotalFallbacks += profile.Fallbacks.Load()
		if profile.IsHot() {
			stats.HotSelectors++
		}
		return true
	})
	return stats
}

// HotSelectors returns every profile over the threshold.
func (p *Profiler) HotSelectors() []*SelectorProfile {
	var hot []*SelectorProfile
	p.selectorProfiles.Range(func(_, value any) bool {
		profile := value.(*SelectorProfile)
		if profile.IsHot() {
			hot = append(hot, profile)
		}
		return true
	})
	return hot
}

// TopSelectors returns the n most frequently dispatched selectors.
func (p *Profiler) TopSelectors(n int) []*SelectorProfile {
	type selectorCount struct {
		profile *SelectorProfile
		count   uint64
	}

	var all []selectorCount
	p.selectorProfiles.Range(func(_, value any) bool {
		profile := value.(*SelectorProfile)
		all = append(all, selectorCount{profile, profile.Dispatches.Load()})
		return true
	})

	// Simple selection sort for top N (fine for small N)
	for i := 0; i < n && i < len(all); i++ {
		maxIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].count > all[maxIdx].count {
				maxIdx = j
			}
		}
		all[i], all[maxIdx] = all[maxIdx], all[i]
	}

	result := make([]*SelectorProfile, 0, n)
	for i := 0; i < n && i < len(all); i++ {
		result = append(result, all[i].profile)
	}
	return result
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.selectorProfiles.Range(func(key, _ any) bool {
		p.selectorProfiles.Delete(key)
		return true
	})
	p.classProfiles.Range(func(key, _ any) bool {
		p.classProfiles.Delete(key)
		return true
	})
	p.hotCount.Store(0)
}
