// Package history keeps a linear undo/redo log of player decisions. Each
// entry holds references to the state before and after the decision, so
// undo and redo swap references instead of copying state.
package history

import (
	"sync"

	"github.com/signalsfoundry/mto-simulator/model"
)

// Entry is one recorded decision.
type Entry[S any] struct {
	Decision model.Decision
	Previous S
	Next     S
}

// Log is a linear decision history with a cursor. Entries before the
// cursor are applied; entries at or after it can be redone.
type Log[S any] struct {
	mu      sync.Mutex
	entries []Entry[S]
	cursor  int
	limit   int
}

// New returns an empty log. A positive limit caps the number of entries,
// dropping the oldest.
func New[S any](limit int) *Log[S] {
	return &Log[S]{limit: limit}
}

// Record appends e at the cursor, discarding any redo tail.
func (l *Log[S]) Record(e Entry[S]) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries[:l.cursor:l.cursor], e)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = append([]Entry[S](nil), l.entries[len(l.entries)-l.limit:]...)
	}
	l.cursor = len(l.entries)
}

// Undo steps the cursor back and returns the entry to revert. ok is false
// when nothing can be undone.
func (l *Log[S]) Undo() (e Entry[S], ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor == 0 || !l.entries[l.cursor-1].Decision.CanUndo {
		return e, false
	}
	l.cursor--
	return l.entries[l.cursor], true
}

// Redo steps the cursor forward and returns the entry to reapply.
func (l *Log[S]) Redo() (e Entry[S], ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor >= len(l.entries) {
		return e, false
	}
	e = l.entries[l.cursor]
	l.cursor++
	return e, true
}

// Clear drops all entries.
func (l *Log[S]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.cursor = 0
}

// CanUndo reports whether Undo would succeed.
func (l *Log[S]) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor > 0 && l.entries[l.cursor-1].Decision.CanUndo
}

// CanRedo reports whether Redo would succeed.
func (l *Log[S]) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor < len(l.entries)
}

// Decisions returns the decisions in order and the cursor position.
func (l *Log[S]) Decisions() ([]model.Decision, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := make([]model.Decision, len(l.entries))
	for i, e := range l.entries {
		res[i] = e.Decision
	}
	return res, l.cursor
}

// Len returns the number of recorded entries.
func (l *Log[S]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
