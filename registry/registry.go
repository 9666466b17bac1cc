// Package registry provides an ordered collection that many goroutines can
// traverse concurrently while a single writer inserts or removes elements.
//
// Traversals use cursors. A cursor remembers the registry version that was
// current when it was opened; once a structural mutation bumps the version,
// the cursor's next Next call fails with ErrStaleScan and the caller restarts
// the traversal with a fresh cursor. Mutations wait for open cursors to drain,
// but only for a bounded patience window, so a slow reader cannot starve a
// writer and a reader that mutates mid-scan cannot deadlock itself.
//
// Most callers should use Find, Each or Snapshot, which implement the
// begin/walk/retry/end loop and always close their cursors.
package registry

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrStaleScan reports that the registry changed since the cursor was
	// opened. The cursor must be closed and the scan restarted.
	ErrStaleScan = errors.New("registry: stale scan")

	// ErrEndOfScan reports that the cursor has visited every element.
	ErrEndOfScan = errors.New("registry: end of scan")

	// ErrUnknownCursor reports a cursor that was never opened or was already closed.
	ErrUnknownCursor = errors.New("registry: unknown cursor")
)

// DefaultPatience is how long a mutation waits for open cursors before it
// proceeds and invalidates them.
const DefaultPatience = 250 * time.Millisecond

// CursorID identifies an open traversal.
type CursorID uint64

type cursor struct {
	version uint64
	pos     int
}

// Registry is an ordered collection of comparable elements.
// The zero value is not usable; create instances with New.
type Registry[T comparable] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	version  uint64
	active   int
	pending  int
	mutating bool
	cursors  map[CursorID]*cursor
	nextID   CursorID
	patience time.Duration
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	patience time.Duration
}

// WithPatience sets how long Insert and Remove wait for open cursors before
// invalidating them. A non-positive value waits until every cursor is closed.
func WithPatience(d time.Duration) Option {
	return func(o *options) { o.patience = d }
}

// New creates an empty registry.
func New[T comparable](opts ...Option) *Registry[T] {
	o := options{patience: DefaultPatience}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry[T]{
		cursors:  make(map[CursorID]*cursor),
		patience: o.patience,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// BeginScan opens a cursor positioned before the first element.
// It blocks while a mutation is pending so that writers are not starved.
func (r *Registry[T]) BeginScan() CursorID {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.pending > 0 {
		r.cond.Wait()
	}

	r.nextID++
	cid := r.nextID
	r.cursors[cid] = &cursor{version: r.version}
	r.active++
	return cid
}

// Next returns the element under the cursor and advances it.
// It returns ErrStaleScan without advancing when the registry changed since
// the cursor was opened, and ErrEndOfScan after the last element.
func (r *Registry[T]) Next(cid CursorID) (T, error) {
	var zero T

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cursors[cid]
	if !ok {
		return zero, ErrUnknownCursor
	}
	if c.version != r.version {
		return zero, ErrStaleScan
	}
	if c.pos >= len(r.items) {
		return zero, ErrEndOfScan
	}

	item := r.items[c.pos]
	c.pos++
	return item, nil
}

// EndScan closes the cursor. Closing an unknown cursor is a no-op.
func (r *Registry[T]) EndScan(cid CursorID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cursors[cid]; !ok {
		return
	}
	delete(r.cursors, cid)
	r.active--
	if r.active == 0 {
		r.cond.Broadcast()
	}
}

// Insert appends item to the registry.
func (r *Registry[T]) Insert(item T) {
	r.mutate(func() bool {
		r.items = append(r.items, item)
		return true
	})
}

// Remove deletes the first element equal to item and reports whether one was found.
func (r *Registry[T]) Remove(item T) bool {
	return r.mutate(func() bool {
		for i, existing := range r.items {
			if existing == item {
				r.items = append(r.items[:i:i], r.items[i+1:]...)
				return true
			}
		}
		return false
	})
}

// mutate serializes writers, waits for open cursors up to the patience
// window and applies fn. The version is bumped only when fn changed the
// registry.
func (r *Registry[T]) mutate(fn func() bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending++
	for r.mutating {
		r.cond.Wait()
	}
	r.mutating = true

	if r.active > 0 {
		if r.patience > 0 {
			deadline := time.Now().Add(r.patience)
			wake := time.AfterFunc(r.patience, func() {
				r.mu.Lock()
				r.cond.Broadcast()
				r.mu.Unlock()
			})
			for r.active > 0 && time.Now().Before(deadline) {
				r.cond.Wait()
			}
			wake.Stop()
		} else {
			for r.active > 0 {
				r.cond.Wait()
			}
		}
	}

	changed := fn()
	if changed {
		r.version++
	}

	r.mutating = false
	r.pending--
	r.cond.Broadcast()
	return changed
}

// Version returns the current structural version.
func (r *Registry[T]) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// ActiveScans returns the number of open cursors.
func (r *Registry[T]) ActiveScans() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Len returns the number of elements.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
