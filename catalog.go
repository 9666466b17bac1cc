package finance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/registry"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/types"
)

// installed is an installed plan. The plan model is read and written only
// with the plan's lock held.
type installed struct {
	name string
	kind Kind
	plan *plan.Plan
}

// Catalog holds the installed plans and their kinds.
type Catalog struct {
	store  store.Store
	logger *slog.Logger
	locks  *keyedMutex[string]
	plans  *registry.Registry[*installed]
}

// NewCatalog creates an empty catalog persisting to s.
func NewCatalog(s store.Store, logger *slog.Logger, opts ...registry.Option) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:  s,
		logger: logger,
		locks:  newKeyedMutex[string](),
		plans:  registry.New[*installed](opts...),
	}
}

// Lock acquires the per-plan lock for name.
func (c *Catalog) Lock(name string) func() {
	return c.locks.Lock(name)
}

func (c *Catalog) find(name string) (*installed, bool) {
	return c.plans.Find(func(e *installed) bool { return e.name == name })
}

// Install validates p's options with k and adds the plan. The stored plan
// carries the options as normalized by the kind.
func (c *Catalog) Install(ctx context.Context, p *plan.Plan, k Kind) (*plan.Plan, error) {
	if p.Name == "" {
		return nil, ValidationError{Field: "name", Message: "required"}
	}

	unlock := c.Lock(p.Name)
	defer unlock()

	if _, ok := c.find(p.Name); ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanExists, p.Name)
	}

	if err := k.SetOptions(p.Options); err != nil {
		return nil, fmt.Errorf("%w: plan %q: %w", ErrConfiguration, p.Name, err)
	}

	stored := p.Clone()
	stored.Kind = k.Name()
	stored.Options = k.Options()
	stored.Running = false
	if stored.CreatedAt.IsZero() {
		stored.Entity = types.NewEntity()
	} else {
		stored.Touch()
	}

	if err := c.store.SavePlan(ctx, stored); err != nil {
		return nil, Internal("save plan", err)
	}

	c.plans.Insert(&installed{name: p.Name, kind: k, plan: stored})
	return stored.Clone(), nil
}

// Uninstall stops the plan's workers and removes it. guard, when set, runs
// under the plan lock first and may veto the removal.
func (c *Catalog) Uninstall(ctx context.Context, name string, guard func() error) error {
	unlock := c.Lock(name)
	defer unlock()

	e, ok := c.find(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrPlanNotFound, name)
	}
	if guard != nil {
		if err := guard(); err != nil {
			return err
		}
	}

	if e.kind.Running() {
		if err := e.kind.StopWorkers(ctx); err != nil {
			return fmt.Errorf("stop plan %q: %w", name, err)
		}
	}

	if err := c.store.RemovePlan(ctx, name); err != nil {
		return Internal("remove plan", err)
	}

	c.plans.Remove(e)
	return nil
}

// Plan returns a copy of the named plan.
func (c *Catalog) Plan(name string) (*plan.Plan, error) {
	unlock := c.Lock(name)
	defer unlock()

	e, ok := c.find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, name)
	}
	p := e.plan.Clone()
	p.Running = e.kind.Running()
	return p, nil
}

// Kind returns the kind serving the named plan.
func (c *Catalog) Kind(name string) (Kind, error) {
	e, ok := c.find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, name)
	}
	return e.kind, nil
}

// UpdateOptions merges updates into the plan's options. An empty value
// removes a key. On failure the previous options stay in effect.
func (c *Catalog) UpdateOptions(ctx context.Context, name string, updates map[string]string) (before, after *plan.Plan, err error) {
	unlock := c.Lock(name)
	defer unlock()

	e, ok := c.find(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrPlanNotFound, name)
	}

	previous := e.kind.Options()
	if err := e.kind.SetOptions(MergeOptions(previous, updates)); err != nil {
		return nil, nil, err
	}

	next := e.plan.Clone()
	next.Options = e.kind.Options()
	next.Touch()

	if err := c.store.SavePlan(ctx, next); err != nil {
		if rerr := e.kind.SetOptions(previous); rerr != nil {
			c.logger.Error("failed to restore plan options",
				"plan", name,
				"error", rerr,
			)
		}
		return nil, nil, Internal("save plan", err)
	}

	before = e.plan
	e.plan = next
	return before.Clone(), next.Clone(), nil
}

// Start starts the workers of the named plan. It is a no-op when they are
// already running.
func (c *Catalog) Start(ctx context.Context, name string) error {
	e, ok := c.find(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrPlanNotFound, name)
	}
	return c.start(ctx, e)
}

// Stop stops the workers of the named plan. It is a no-op when they are
// not running.
func (c *Catalog) Stop(ctx context.Context, name string) error {
	e, ok := c.find(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrPlanNotFound, name)
	}
	return c.stop(ctx, e)
}

// StartAll starts the workers of every installed plan concurrently. Plans
// that fail to start are reported together; the others keep running.
func (c *Catalog) StartAll(ctx context.Context) error {
	return c.fanOut(ctx, c.start)
}

// StopAll stops the workers of every installed plan concurrently.
func (c *Catalog) StopAll(ctx context.Context) error {
	return c.fanOut(ctx, c.stop)
}

func (c *Catalog) fanOut(ctx context.Context, fn func(context.Context, *installed) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs MultiError
	)
	for _, e := range c.plans.Snapshot() {
		g.Go(func() error {
			if err := fn(ctx, e); err != nil {
				mu.Lock()
				errs.Add(fmt.Errorf("plan %q: %w", e.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // failures are collected in errs
	return errs.ErrOrNil()
}

func (c *Catalog) start(ctx context.Context, e *installed) error {
	unlock := c.Lock(e.name)
	defer unlock()

	if e.kind.Running() {
		return nil
	}
	if err := e.kind.StartWorkers(ctx); err != nil {
		return err
	}
	c.setRunning(ctx, e, true)
	return nil
}

func (c *Catalog) stop(ctx context.Context, e *installed) error {
	unlock := c.Lock(e.name)
	defer unlock()

	if !e.kind.Running() {
		return nil
	}
	if err := e.kind.StopWorkers(ctx); err != nil {
		return err
	}
	c.setRunning(ctx, e, false)
	return nil
}

// setRunning records the worker state. The flag is informational, so a
// failed write is logged.
func (c *Catalog) setRunning(ctx context.Context, e *installed, running bool) {
	next := e.plan.Clone()
	next.Running = running
	if err := c.store.SavePlan(ctx, next); err != nil {
		c.logger.Warn("failed to persist plan state",
			"plan", e.name,
			"running", running,
			"error", err,
		)
	}
	e.plan = next
}

// List returns copies of every installed plan ordered by name.
func (c *Catalog) List() []*plan.Plan {
	entries := c.plans.Snapshot()
	out := make([]*plan.Plan, 0, len(entries))
	for _, e := range entries {
		p, err := c.Plan(e.name)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the names of the installed plans.
func (c *Catalog) Names() []string {
	entries := c.plans.Snapshot()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	sort.Strings(names)
	return names
}

// Len returns the number of installed plans.
func (c *Catalog) Len() int { return c.plans.Len() }
