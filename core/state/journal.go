package state

import "sync"

// Journal is an undo log shared by every module that takes part in a single
// entry point. Mutations record an inverse closure; End reverts everything
// recorded since the matching Begin when the call failed.
//
// Calls nest: a module invoked by another module opens its own scope, and only
// the outermost End discards the log. A nil *Journal accepts every call and
// records nothing.
type Journal struct {
	mu      sync.Mutex
	entries []func()
	depth   int
}

// NewJournal returns an empty journal.
func NewJournal() *Journal { return &Journal{} }

// Begin opens a scope and returns its mark.
func (j *Journal) Begin() int {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.depth++
	return len(j.entries)
}

// Record appends an undo closure to the current scope.
func (j *Journal) Record(undo func()) {
	if j == nil || undo == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.depth == 0 {
		return
	}
	j.entries = append(j.entries, undo)
}

// End closes the scope opened at mark. A non-nil err reverts every entry
// recorded since mark, newest first. The error is returned unchanged so callers
// can write `return j.End(mark, err)`.
func (j *Journal) End(mark int, err error) error {
	if j == nil {
		return err
	}
	j.mu.Lock()
	var undo []func()
	if err != nil && mark < len(j.entries) {
		undo = append(undo, j.entries[mark:]...)
		j.entries = j.entries[:mark]
	}
	if j.depth > 0 {
		j.depth--
	}
	if j.depth == 0 {
		j.entries = nil
	}
	j.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	return err
}

// Active reports whether a scope is open.
func (j *Journal) Active() bool {
	if j == nil {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.depth > 0
}
