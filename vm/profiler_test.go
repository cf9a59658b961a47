package vm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestProfilerRecordDispatch(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 5
	c := NewClass("prof.Target", nil)

	// First dispatch
	becameHot := p.RecordDispatch(c, "run")
	if becameHot {
		t.Error("Selector should not be hot after 1 dispatch")
	}

	profile := p.Profile(c, "run")
	if profile == nil {
		t.Fatal("Profile should exist after dispatch")
	}
	if profile.Dispatches.Load() != 1 {
		t.Errorf("Expected 1 dispatch, got %d", profile.Dispatches.Load())
	}

	// Dispatch 4 more times (total 5)
	for i := 0; i < 4; i++ {
		becameHot = p.RecordDispatch(c, "run")
	}

	// Should become hot at exactly threshold
	if !becameHot {
		t.Error("Selector should become hot at threshold")
	}
	if !p.IsHot(c, "run") {
		t.Error("IsHot should return true")
	}

	// Additional dispatches should not re-trigger hot
	if p.RecordDispatch(c, "run") {
		t.Error("Selector should not re-trigger hot")
	}
}

func TestProfilerOnHotCallback(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 2
	c := NewClass("prof.Target", nil)

	var fired []*SelectorProfile
	p.OnHot = func(sp *SelectorProfile) { fired = append(fired, sp) }

	for i := 0; i < 5; i++ {
		p.RecordDispatch(c, "run")
	}
	if len(fired) != 1 || fired[0].Name != "run" || fired[0].Class != c {
		t.Errorf("OnHot fired %v, want once for run", fired)
	}
}

func TestProfilerStats(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 5
	a := NewClass("prof.A", nil)
	b := NewClass("prof.B", nil)

	for i := 0; i < 10; i++ {
		p.RecordDispatch(a, "m1") // Will be hot
	}
	for i := 0; i < 3; i++ {
		p.RecordDispatch(a, "m2") // Won't be hot
	}
	p.RecordDispatch(b, "m1")
	p.RecordFallback(b, "missing")
	p.RecordFallback(b, "missing")

	stats := p.Stats()
	if stats.Classes != 2 {
		t.Errorf("Expected 2 classes, got %d", stats.Classes)
	}
	if stats.Selectors != 4 {
		t.Errorf("Expected 4 selectors, got %d", stats.Selectors)
	}
	if stats.HotSelectors != 1 {
		t.Errorf("Expected 1 hot selector, got %d", stats.HotSelectors)
	}
	if stats.TotalDispatches != 14 {
		t.Errorf("Expected 14 dispatches, got %d", stats.TotalDispatches)
	}
	if stats.TotalFallbacks != 2 {
		t.Errorf("Expected 2 fallbacks, got %d", stats.TotalFallbacks)
	}
}

func TestProfilerTopSelectors(t *testing.T) {
	p := NewProfiler()
	c := NewClass("prof.Target", nil)

	for i := 0; i < 3; i++ {
		p.RecordDispatch(c, "low")
	}
	for i := 0; i < 9; i++ {
		p.RecordDispatch(c, "high")
	}
	for i := 0; i < 6; i++ {
		p.RecordDispatch(c, "mid")
	}

	top := p.TopSelectors(2)
	if len(top) != 2 {
		t.Fatalf("Expected 2 selectors, got %d", len(top))
	}
	if top[0].Name != "high" || top[1].Name != "mid" {
		t.Errorf("TopSelectors = [%s %s], want [high mid]", top[0].Name, top[1].Name)
	}

	if got := p.TopSelectors(10); len(got) != 3 {
		t.Errorf("TopSelectors(10) returned %d, want 3", len(got))
	}
}

func TestProfilerDisabledAndReset(t *testing.T) {
	p := NewProfiler()
	c := NewClass("prof.Target", nil)

	p.SetEnabled(false)
	p.RecordDispatch(c, "run")
	if p.Profile(c, "run") != nil {
		t.Error("disabled profiler should not record")
	}

	p.SetEnabled(true)
	p.RecordDispatch(c, "run")
	p.Reset()
	if stats := p.Stats(); stats.Selectors != 0 || stats.Classes != 0 {
		t.Errorf("after Reset: %+v", stats)
	}

	var nilProfiler *Profiler
	if nilProfiler.RecordDispatch(c, "run") {
		t.Error("nil profiler should ignore dispatches")
	}
}

func TestProfilerConcurrent(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 100
	c := NewClass("prof.Target", nil)

	var hotCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if p.RecordDispatch(c, "run") {
					hotCount.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := p.Profile(c, "run").Dispatches.Load(); got != 500 {
		t.Errorf("Expected 500 dispatches, got %d", got)
	}
	if hotCount.Load() != 1 {
		t.Errorf("Selector turned hot %d times, want exactly 1", hotCount.Load())
	}
}

func TestDispatchFeedsProfiler(t *testing.T) {
	z := newZoo(t)
	ctx := context.Background()
	dog := z.newDog(t, "rex")

	for i := 0; i < 3; i++ {
		invoke(t, z.d, ctx, dog, "speak")
	}
	z.d.InvokeMethod(ctx, dog, "absent")

	prof := z.reg.Profiler()
	if got := prof.Profile(z.dog, "speak").Dispatches.Load(); got != 3 {
		t.Errorf("speak dispatches = %d, want 3", got)
	}
	if got := prof.Profile(z.dog, "absent").Fallbacks.Load(); got != 1 {
		t.Errorf("absent fallbacks = %d, want 1", got)
	}
	if prof.Profile(z.dog, ConstructorName) == nil {
		t.Error("constructor dispatch was not recorded")
	}
}
