package vm

import "sync"

// Selector is the interned id of a member name. Headers index their entries
// by selector so lookups are slice reads instead of map probes.
type Selector int

// NoSelector is returned by Lookup for names that were never interned.
const NoSelector Selector = -1

// SelectorTable interns member names to dense ids.
//
// The table is append-only; ids are stable for the life of the process and
// shared by every ClassMetadata.
type SelectorTable struct {
	mu     sync.RWMutex
	byName map[string]Selector
	byID   []string
}

// NewSelectorTable creates an empty table.
func NewSelectorTable() *SelectorTable {
	return &SelectorTable{
		byName: make(map[string]Selector),
		byID:   make([]string, 0, 256),
	}
}

var selectors = NewSelectorTable()

// Selectors returns the process-wide selector table.
func Selectors() *SelectorTable { return selectors }

// Intern returns the id for name, creating it if needed.
func (st *SelectorTable) Intern(name string) Selector {
	st.mu.RLock()
	if id, ok := st.byName[name]; ok {
		st.mu.RUnlock()
		return id
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	if id, ok := st.byName[name]; ok {
		return id
	}
	id := Selector(len(st.byID))
	st.byName[name] = id
	st.byID = append(st.byID, name)
	return id
}

// Lookup returns the id for name without creating it.
func (st *SelectorTable) Lookup(name string) Selector {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if id, ok := st.byName[name]; ok {
		return id
	}
	return NoSelector
}

// Name returns the name for an id, or "" if invalid.
func (st *SelectorTable) Name(id Selector) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if id < 0 || int(id) >= len(st.byID) {
		return ""
	}
	return st.byID[id]
}

// Len returns the number of interned names.
func (st *SelectorTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}
