package registry

import "errors"

// Find returns the first element for which match reports true.
// The traversal restarts transparently when it goes stale.
func (r *Registry[T]) Find(match func(T) bool) (T, bool) {
	var zero T
	for {
		item, found, err := r.findOnce(match)
		if errors.Is(err, ErrStaleScan) {
			continue
		}
		if err != nil || !found {
			return zero, false
		}
		return item, true
	}
}

func (r *Registry[T]) findOnce(match func(T) bool) (T, bool, error) {
	var zero T
	cid := r.BeginScan()
	defer r.EndScan(cid)

	for {
		item, err := r.Next(cid)
		if errors.Is(err, ErrEndOfScan) {
			return zero, false, nil
		}
		if err != nil {
			return zero, false, err
		}
		if match(item) {
			return item, true, nil
		}
	}
}

// Each calls fn for every element. When the traversal goes stale it is
// restarted, and elements already passed to fn are skipped, so fn sees each
// element at most once per call. Elements inserted during the walk may or
// may not be visited. A non-nil error from fn stops the walk and is returned.
func (r *Registry[T]) Each(fn func(T) error) error {
	seen := make(map[T]struct{})
	for {
		err := r.eachOnce(seen, fn)
		if errors.Is(err, ErrStaleScan) {
			continue
		}
		return err
	}
}

func (r *Registry[T]) eachOnce(seen map[T]struct{}, fn func(T) error) error {
	cid := r.BeginScan()
	defer r.EndScan(cid)

	for {
		item, err := r.Next(cid)
		if errors.Is(err, ErrEndOfScan) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		if err := fn(item); err != nil {
			return err
		}
	}
}

// Snapshot returns a consistent copy of the registry's elements.
func (r *Registry[T]) Snapshot() []T {
	for {
		items, err := r.snapshotOnce()
		if errors.Is(err, ErrStaleScan) {
			continue
		}
		return items
	}
}

func (r *Registry[T]) snapshotOnce() ([]T, error) {
	cid := r.BeginScan()
	defer r.EndScan(cid)

	var items []T
	for {
		item, err := r.Next(cid)
		if errors.Is(err, ErrEndOfScan) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

// Contains reports whether an element equal to item is present.
func (r *Registry[T]) Contains(item T) bool {
	_, ok := r.Find(func(candidate T) bool { return candidate == item })
	return ok
}
