package finance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/registry"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/user"
)

// entry is the directory's handle on a user. The key never changes; the user
// value is replaced on every committed update and is only read or written
// with the user's lock held.
type entry struct {
	key  user.Key
	user *user.User
}

// Directory indexes users by plan and mediates every change to a user.
//
// Each mutation takes the user's lock, works on a copy of the user, persists
// the copy and only then publishes it, so the stored and in-memory states
// never diverge. The lock is held until the store call returns.
type Directory struct {
	store   store.Store
	logger  *slog.Logger
	locks   *keyedMutex[user.Key]
	regOpts []registry.Option

	all      *registry.Registry[*entry]
	inactive *registry.Registry[user.Key]

	mu    sync.Mutex
	plans map[string]*registry.Registry[user.Key]
}

// NewDirectory creates an empty directory persisting to s.
func NewDirectory(s store.Store, logger *slog.Logger, opts ...registry.Option) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		store:    s,
		logger:   logger,
		locks:    newKeyedMutex[user.Key](),
		regOpts:  opts,
		all:      registry.New[*entry](opts...),
		inactive: registry.New[user.Key](opts...),
		plans:    make(map[string]*registry.Registry[user.Key]),
	}
}

// Lock acquires the per-user lock for key and returns the unlock function.
func (d *Directory) Lock(key user.Key) func() {
	return d.locks.Lock(key)
}

// UsersOf returns the live registry of users subscribed to planName.
func (d *Directory) UsersOf(planName string) *registry.Registry[user.Key] {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.plans[planName]
	if !ok {
		r = registry.New[user.Key](d.regOpts...)
		d.plans[planName] = r
	}
	return r
}

// Inactive returns the keys of users that are not subscribed to any plan.
func (d *Directory) Inactive() []user.Key {
	return d.inactive.Snapshot()
}

// Keys returns the keys of all known users.
func (d *Directory) Keys() []user.Key {
	entries := d.all.Snapshot()
	keys := make([]user.Key, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// Len returns the number of known users.
func (d *Directory) Len() int { return d.all.Len() }

func (d *Directory) find(key user.Key) (*entry, bool) {
	return d.all.Find(func(e *entry) bool { return e.key == key })
}

// User returns a copy of the user stored under key.
func (d *Directory) User(key user.Key) (*user.User, error) {
	unlock := d.Lock(key)
	defer unlock()

	e, ok := d.find(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, key)
	}
	return e.user.Clone(), nil
}

// Users returns copies of every known user ordered by key.
func (d *Directory) Users() []*user.User {
	keys := d.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	out := make([]*user.User, 0, len(keys))
	for _, key := range keys {
		u, err := d.User(key)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Register subscribes key to planName, creating the user if it is unknown or
// reactivating it if it is unsubscribed. prepare runs on the new state
// before it is persisted and may reject the registration.
func (d *Directory) Register(ctx context.Context, key user.Key, planName string, prepare func(u *user.User) error) (*user.User, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	unlock := d.Lock(key)
	defer unlock()

	e, exists := d.find(key)
	var prev, next *user.User
	if exists {
		prev = e.user
		if prev.Subscribed() {
			return nil, fmt.Errorf("%w: %s is subscribed to %q", ErrDuplicateSubscription, key, prev.Plan)
		}
		next = prev.Clone()
	} else {
		next = user.New(key)
	}
	next.Plan = planName

	if prepare != nil {
		if err := prepare(next); err != nil {
			return nil, err
		}
	}
	next.Touch()

	if err := d.persist(ctx, prev, next); err != nil {
		return nil, err
	}

	if exists {
		e.user = next
		d.inactive.Remove(key)
	} else {
		d.all.Insert(&entry{key: key, user: next})
	}
	d.UsersOf(planName).Insert(key)

	return next.Clone(), nil
}

// Unregister unsubscribes the user and moves it to the inactive bucket.
// check may veto the change, for example when invoices are unpaid.
func (d *Directory) Unregister(ctx context.Context, key user.Key, check func(u *user.User) error) (*user.User, error) {
	unlock := d.Lock(key)
	defer unlock()

	e, ok := d.find(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, key)
	}
	if !e.user.Subscribed() {
		return nil, fmt.Errorf("%w: %s", ErrNotSubscribed, key)
	}

	next := e.user.Clone()
	if check != nil {
		if err := check(next); err != nil {
			return nil, err
		}
	}
	from := next.Plan
	next.PreviousPlans = append(next.PreviousPlans, from)
	next.Plan = ""
	next.Touch()

	if err := d.persist(ctx, e.user, next); err != nil {
		return nil, err
	}

	e.user = next
	d.UsersOf(from).Remove(key)
	d.inactive.Insert(key)

	return next.Clone(), nil
}

// ChangePlan moves a subscribed user to another plan under a single lock
// hold. move runs on the new state and may veto the change.
func (d *Directory) ChangePlan(ctx context.Context, key user.Key, to string, move func(u *user.User) error) (*user.User, error) {
	unlock := d.Lock(key)
	defer unlock()

	e, ok := d.find(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, key)
	}
	if !e.user.Subscribed() {
		return nil, fmt.Errorf("%w: %s", ErrNotSubscribed, key)
	}
	from := e.user.Plan
	if from == to {
		return nil, fmt.Errorf("%w: %s is subscribed to %q", ErrDuplicateSubscription, key, to)
	}

	next := e.user.Clone()
	if move != nil {
		if err := move(next); err != nil {
			return nil, err
		}
	}
	next.PreviousPlans = append(next.PreviousPlans, from)
	next.Plan = to
	next.Touch()

	if err := d.persist(ctx, e.user, next); err != nil {
		return nil, err
	}

	e.user = next
	d.UsersOf(from).Remove(key)
	d.UsersOf(to).Insert(key)

	return next.Clone(), nil
}

// Remove deletes the user entirely. before runs with the lock held ahead of
// the store call and may veto the removal.
func (d *Directory) Remove(ctx context.Context, key user.Key, before func(u *user.User) error) error {
	unlock := d.Lock(key)
	defer unlock()

	e, ok := d.find(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, key)
	}
	if before != nil {
		if err := before(e.user.Clone()); err != nil {
			return err
		}
	}

	if err := d.store.RemoveUser(ctx, key); err != nil {
		return Internal("remove user", err)
	}

	d.all.Remove(e)
	if e.user.Subscribed() {
		d.UsersOf(e.user.Plan).Remove(key)
	} else {
		d.inactive.Remove(key)
	}
	return nil
}

// Update runs fn on a copy of the user with the lock held. When fn reports a
// change the copy is persisted and published. fn must not change the plan.
func (d *Directory) Update(ctx context.Context, key user.Key, fn func(u *user.User) (bool, error)) (*user.User, error) {
	unlock := d.Lock(key)
	defer unlock()

	e, ok := d.find(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, key)
	}

	next := e.user.Clone()
	changed, err := fn(next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return next, nil
	}
	next.Plan = e.user.Plan
	next.Touch()

	if err := d.persist(ctx, e.user, next); err != nil {
		return nil, err
	}
	e.user = next
	return next.Clone(), nil
}

// Save persists u as the new state of its user.
func (d *Directory) Save(ctx context.Context, u *user.User) error {
	_, err := d.Update(ctx, u.Key, func(next *user.User) (bool, error) {
		plan := next.Plan
		*next = *u.Clone()
		next.Plan = plan
		return true, nil
	})
	return err
}

// Load indexes users read from the store without persisting them again.
// Users already known are replaced.
func (d *Directory) Load(users []*user.User) {
	for _, u := range users {
		u := u.Clone()
		unlock := d.Lock(u.Key)

		if e, ok := d.find(u.Key); ok {
			if e.user.Subscribed() {
				d.UsersOf(e.user.Plan).Remove(u.Key)
			} else {
				d.inactive.Remove(u.Key)
			}
			e.user = u
		} else {
			d.all.Insert(&entry{key: u.Key, user: u})
		}

		if u.Subscribed() {
			d.UsersOf(u.Plan).Insert(u.Key)
		} else {
			d.inactive.Insert(u.Key)
		}
		unlock()
	}
}

// Members returns a snapshot of the users subscribed to planName.
func (d *Directory) Members(planName string) []user.Key {
	return d.UsersOf(planName).Snapshot()
}

// persist writes next and any invoice that differs from prev. The user
// record is authoritative; a failed invoice write is logged.
func (d *Directory) persist(ctx context.Context, prev, next *user.User) error {
	if err := d.store.SaveUser(ctx, next); err != nil {
		return Internal("save user", err)
	}

	for _, inv := range changedInvoices(prev, next) {
		if err := d.store.SaveInvoice(ctx, inv); err != nil {
			d.logger.Warn("failed to save invoice",
				"user_id", next.UserID,
				"provider_id", next.ProviderID,
				"invoice_id", inv.ID.String(),
				"error", err,
			)
		}
	}
	return nil
}

func changedInvoices(prev, next *user.User) []*invoice.Invoice {
	seen := make(map[string]*invoice.Invoice)
	if prev != nil {
		for _, inv := range prev.Invoices {
			seen[inv.ID.String()] = inv
		}
	}

	var out []*invoice.Invoice
	for _, inv := range next.Invoices {
		old, ok := seen[inv.ID.String()]
		if ok && old.State == inv.State && old.Total.Equal(inv.Total) && old.UpdatedAt.Equal(inv.UpdatedAt) {
			continue
		}
		out = append(out, inv)
	}
	return out
}
