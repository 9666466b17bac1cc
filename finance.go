package finance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/finance/actuator"
	"github.com/xraph/finance/id"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/registry"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/usage"
	"github.com/xraph/finance/user"
)

const (
	// DefaultWorkerInterval is how often plan workers run.
	DefaultWorkerInterval = 10 * time.Second
	// DefaultStopTimeout bounds how long stopping a plan's workers may take.
	DefaultStopTimeout = 30 * time.Second
)

// CreditAccount is implemented by kinds that keep a credits balance.
type CreditAccount interface {
	AddCredits(u *user.User, amount types.Money) error
}

// Engine is the finance engine. Construct one per process with New and
// share it between request handlers.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   clockwork.Clock

	kinds    map[string]KindConstructor
	usage    usage.Source
	actuator actuator.Actuator

	// Worker configuration
	interval    time.Duration
	stopTimeout time.Duration
	patience    time.Duration

	dir     *Directory
	catalog *Catalog

	mu      sync.Mutex
	started bool
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		clock:       clockwork.NewRealClock(),
		kinds:       make(map[string]KindConstructor),
		usage:       usage.Empty,
		interval:    DefaultWorkerInterval,
		stopTimeout: DefaultStopTimeout,
		patience:    registry.DefaultPatience,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.actuator == nil {
		e.actuator = actuator.Nop{Logger: e.logger}
	}
	e.dir = NewDirectory(s, e.logger, registry.WithPatience(e.patience))
	e.catalog = NewCatalog(s, e.logger, registry.WithPatience(e.patience))

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithHookTimeout bounds every plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithKind registers a plan kind under name.
func WithKind(name string, ctor KindConstructor) Option {
	return func(e *Engine) {
		e.kinds[name] = ctor
	}
}

// WithUsageSource sets where billing fetches usage records from.
func WithUsageSource(src usage.Source) Option {
	return func(e *Engine) {
		e.usage = src
	}
}

// WithActuator sets the backend that pauses, stops and resumes resources.
func WithActuator(a actuator.Actuator) Option {
	return func(e *Engine) {
		e.actuator = a
	}
}

// WithWorkerInterval sets how often plan workers run.
func WithWorkerInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithStopTimeout bounds how long stopping a plan's workers may take.
func WithStopTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stopTimeout = d
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithScanPatience sets how long registry mutations wait for open scans.
// Non-positive values are ignored.
func WithScanPatience(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.patience = d
		}
	}
}

// Directory returns the user directory.
func (e *Engine) Directory() *Directory { return e.dir }

// Catalog returns the installed plans.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Plugins returns the hook registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store returns the backing store.
func (e *Engine) Store() store.Store { return e.store }

// Clock returns the engine's clock.
func (e *Engine) Clock() clockwork.Clock { return e.clock }

// Start migrates the store, restores plans and users from it and starts
// the workers of every plan. Plans whose stored options no longer validate
// are skipped and reported in the returned error; the engine still starts.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}

	if err := e.store.Migrate(ctx); err != nil {
		return Internal("migrate", err)
	}

	var errs MultiError

	plans, err := e.store.GetAllPlans(ctx)
	if err != nil {
		return Internal("load plans", err)
	}
	for _, p := range plans {
		if _, err := e.installPlan(ctx, p); err != nil {
			e.logger.Error("failed to restore plan",
				"plan", p.Name,
				"kind", p.Kind,
				"error", err,
			)
			errs.Add(err)
		}
	}

	users, err := e.store.GetAllUsers(ctx)
	if err != nil {
		return Internal("load users", err)
	}
	e.dir.Load(users)

	e.plugins.EmitInit(ctx, e)

	if err := e.catalog.StartAll(ctx); err != nil {
		errs.Add(err)
	}
	e.started = true

	e.logger.Info("finance engine started",
		"plans", e.catalog.Len(),
		"users", e.dir.Len(),
		"worker_interval", e.interval,
	)

	return errs.ErrOrNil()
}

// Stop stops every plan's workers, notifies plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs MultiError
	if e.started {
		errs.Add(e.catalog.StopAll(ctx))
		e.started = false
	}

	e.plugins.EmitShutdown(ctx)

	errs.Add(e.store.Close())
	return errs.ErrOrNil()
}

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (e *Engine) isStarted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// ──────────────────────────────────────────────────
// Plan Management
// ──────────────────────────────────────────────────

// newKind constructs the kind named kindName for planName.
func (e *Engine) newKind(planName, kindName string) (Kind, error) {
	ctor, ok := e.kinds[kindName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kindName)
	}
	return ctor(Deps{
		PlanName:    planName,
		Directory:   e.dir,
		Usage:       e.usage,
		Actuator:    e.actuator,
		Hooks:       e.plugins,
		Logger:      e.logger,
		Clock:       e.clock,
		Interval:    e.interval,
		StopTimeout: e.stopTimeout,
	}), nil
}

func (e *Engine) installPlan(ctx context.Context, p *plan.Plan) (*plan.Plan, error) {
	k, err := e.newKind(p.Name, p.Kind)
	if err != nil {
		return nil, err
	}
	return e.catalog.Install(ctx, p, k)
}

// InstallPlan validates and installs a plan. Its workers start immediately
// when the engine is running.
func (e *Engine) InstallPlan(ctx context.Context, p *plan.Plan) (*plan.Plan, error) {
	stored, err := e.installPlan(ctx, p)
	if err != nil {
		return nil, err
	}

	if e.isStarted() {
		if err := e.catalog.Start(ctx, stored.Name); err != nil {
			return nil, err
		}
		stored.Running = true
	}

	e.logger.Info("plan installed", "plan", stored.Name, "kind", stored.Kind)
	e.plugins.EmitPlanInstalled(ctx, stored)
	return stored, nil
}

// UninstallPlan stops a plan's workers and removes it. A plan that still has
// members cannot be uninstalled.
func (e *Engine) UninstallPlan(ctx context.Context, name string) error {
	err := e.catalog.Uninstall(ctx, name, func() error {
		if members := e.dir.UsersOf(name).Len(); members > 0 {
			return fmt.Errorf("%w: %q has %d users", ErrPlanInUse, name, members)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("plan uninstalled", "plan", name)
	e.plugins.EmitPlanUninstalled(ctx, name)
	return nil
}

// UpdatePlanOptions merges updates into a plan's options. An empty value
// removes the key.
func (e *Engine) UpdatePlanOptions(ctx context.Context, name string, updates map[string]string) (*plan.Plan, error) {
	before, after, err := e.catalog.UpdateOptions(ctx, name, updates)
	if err != nil {
		return nil, err
	}

	e.plugins.EmitPlanUpdated(ctx, before, after)
	return after, nil
}

// ApplyPlan installs p, or makes the installed plan of the same name carry
// exactly p's options. Changing the kind of an installed plan is refused.
func (e *Engine) ApplyPlan(ctx context.Context, p *plan.Plan) (*plan.Plan, error) {
	current, err := e.catalog.Plan(p.Name)
	if errors.Is(err, ErrPlanNotFound) {
		return e.InstallPlan(ctx, p)
	}
	if err != nil {
		return nil, err
	}
	if current.Kind != p.Kind {
		return nil, fmt.Errorf("%w: plan %q is %s, not %s", ErrInvalidOption, p.Name, current.Kind, p.Kind)
	}

	updates := make(map[string]string, len(p.Options))
	for k := range current.Options {
		updates[k] = ""
	}
	for k, v := range p.Options {
		updates[k] = v
	}
	if maps.Equal(MergeOptions(current.Options, updates), current.Options) {
		return current, nil
	}
	return e.UpdatePlanOptions(ctx, p.Name, updates)
}

// Plan returns an installed plan.
func (e *Engine) Plan(name string) (*plan.Plan, error) {
	return e.catalog.Plan(name)
}

// ListPlans returns every installed plan ordered by name.
func (e *Engine) ListPlans() []*plan.Plan {
	return e.catalog.List()
}

// ReloadPricing re-reads the pricing file of a plan.
func (e *Engine) ReloadPricing(_ context.Context, name string) error {
	unlock := e.catalog.Lock(name)
	defer unlock()

	k, err := e.catalog.Kind(name)
	if err != nil {
		return err
	}
	return k.ReloadPricing()
}

// ──────────────────────────────────────────────────
// User Management
// ──────────────────────────────────────────────────

// RegisterUser subscribes key to planName, creating the user if needed.
func (e *Engine) RegisterUser(ctx context.Context, key user.Key, planName string) (*user.User, error) {
	// The plan lock is taken before the user lock and keeps the plan
	// installed until the user is indexed under it.
	unlock := e.catalog.Lock(planName)
	k, err := e.catalog.Kind(planName)
	if err != nil {
		unlock()
		return nil, err
	}

	u, err := e.dir.Register(ctx, key, planName, func(u *user.User) error {
		return k.RegisterUser(ctx, u)
	})
	unlock()
	if err != nil {
		return nil, err
	}

	e.logger.Info("user registered",
		"user_id", key.UserID,
		"provider_id", key.ProviderID,
		"plan", planName,
	)
	e.plugins.EmitUserRegistered(ctx, u)
	return u, nil
}

// UnregisterUser unsubscribes a user from its plan. The usage since the last
// billing is charged under that plan first. It fails with ErrUnpaid while the
// user owes money under the plan.
func (e *Engine) UnregisterUser(ctx context.Context, key user.Key) (*user.User, error) {
	var (
		from    string
		settled *Settlement
	)
	u, err := e.dir.Unregister(ctx, key, func(u *user.User) error {
		from = u.Plan
		k, err := e.catalog.Kind(u.Plan)
		if err != nil {
			return nil
		}
		settled, err = k.UnregisterUser(ctx, u)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("user unregistered",
		"user_id", key.UserID,
		"provider_id", key.ProviderID,
		"plan", from,
	)
	e.emitSettlement(ctx, u, settled)
	e.plugins.EmitUserUnregistered(ctx, u, from)
	return u, nil
}

// ChangePlan moves a user to another plan. The usage since the last billing
// is charged under the plan being left.
func (e *Engine) ChangePlan(ctx context.Context, key user.Key, to string) (*user.User, error) {
	unlock := e.catalog.Lock(to)
	next, err := e.catalog.Kind(to)
	if err != nil {
		unlock()
		return nil, err
	}

	var (
		from    string
		settled *Settlement
	)
	u, err := e.dir.ChangePlan(ctx, key, to, func(u *user.User) error {
		from = u.Plan
		current, err := e.catalog.Kind(u.Plan)
		if err != nil {
			return next.RegisterUser(ctx, u)
		}
		settled, err = current.ChangePlan(ctx, u, next)
		return err
	})
	unlock()
	if err != nil {
		return nil, err
	}

	e.logger.Info("user changed plan",
		"user_id", key.UserID,
		"provider_id", key.ProviderID,
		"from", from,
		"to", to,
	)
	e.emitSettlement(ctx, u, settled)
	e.plugins.EmitPlanChanged(ctx, u, from, to)
	return u, nil
}

func (e *Engine) emitSettlement(ctx context.Context, u *user.User, s *Settlement) {
	switch {
	case s == nil:
	case s.Invoice != nil:
		e.plugins.EmitInvoiceGenerated(ctx, s.Invoice)
	case s.Amount.IsPositive():
		e.plugins.EmitCreditsDeducted(ctx, u, s.Amount)
	}
}

// RemoveUser deletes a user and its history.
func (e *Engine) RemoveUser(ctx context.Context, key user.Key) error {
	if err := e.dir.Remove(ctx, key, nil); err != nil {
		return err
	}

	e.logger.Info("user removed", "user_id", key.UserID, "provider_id", key.ProviderID)
	e.plugins.EmitUserRemoved(ctx, key)
	return nil
}

// PurgeUser deletes every resource of the user through the actuator, then
// removes the user.
func (e *Engine) PurgeUser(ctx context.Context, key user.Key) error {
	err := e.dir.Remove(ctx, key, func(u *user.User) error {
		if err := e.actuator.Purge(ctx, u.UserID, u.ProviderID); err != nil {
			return fmt.Errorf("%w: purge: %w", ErrActuatorFailed, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("user purged", "user_id", key.UserID, "provider_id", key.ProviderID)
	e.plugins.EmitUserRemoved(ctx, key)
	return nil
}

// User returns a copy of a user.
func (e *Engine) User(key user.Key) (*user.User, error) {
	return e.dir.User(key)
}

// ListUsers returns the members of planName, or every user when planName
// is empty.
func (e *Engine) ListUsers(planName string) []*user.User {
	if planName == "" {
		return e.dir.Users()
	}

	keys := e.dir.Members(planName)
	out := make([]*user.User, 0, len(keys))
	for _, key := range keys {
		u, err := e.dir.User(key)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}

// ──────────────────────────────────────────────────
// Authorization
// ──────────────────────────────────────────────────

// IsAuthorized decides whether the user may perform op. Users without a
// plan may manage what they own but not create anything.
func (e *Engine) IsAuthorized(ctx context.Context, key user.Key, op Operation) (bool, error) {
	u, err := e.dir.User(key)
	if err != nil {
		return false, err
	}
	if !u.Subscribed() {
		return op != OpCreate, nil
	}

	k, err := e.catalog.Kind(u.Plan)
	if err != nil {
		return false, err
	}
	return k.IsAuthorized(ctx, u, op)
}

// ──────────────────────────────────────────────────
// Credits & Invoices
// ──────────────────────────────────────────────────

// AddCredits tops up the balance of a user on a credits-based plan.
func (e *Engine) AddCredits(ctx context.Context, key user.Key, amount types.Money) (*user.User, error) {
	u, err := e.dir.Update(ctx, key, func(u *user.User) (bool, error) {
		if !u.Subscribed() {
			return false, fmt.Errorf("%w: %s", ErrNotSubscribed, key)
		}
		k, err := e.catalog.Kind(u.Plan)
		if err != nil {
			return false, err
		}
		acct, ok := k.(CreditAccount)
		if !ok {
			return false, fmt.Errorf("%w: plan %q does not keep credits", ErrWrongPlanKind, u.Plan)
		}
		if err := acct.AddCredits(u, amount); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	e.plugins.EmitCreditsAdded(ctx, u, amount)
	return u, nil
}

// Balance returns the credits balance of a user.
func (e *Engine) Balance(key user.Key) (types.Money, error) {
	u, err := e.dir.User(key)
	if err != nil {
		return types.Zero, err
	}
	if u.Credits == nil {
		return types.Zero, nil
	}
	return u.Credits.Balance, nil
}

// PayInvoice marks an invoice of the user PAID.
func (e *Engine) PayInvoice(ctx context.Context, key user.Key, invoiceID string) (*invoice.Invoice, error) {
	return e.SetInvoiceState(ctx, key, invoiceID, invoice.StatePaid)
}

// SetInvoiceState moves an invoice of the user to state.
func (e *Engine) SetInvoiceState(ctx context.Context, key user.Key, invoiceID string, state invoice.State) (*invoice.Invoice, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: invoice state %q", ErrInvalidState, state)
	}

	var updated *invoice.Invoice
	var changed bool
	_, err := e.dir.Update(ctx, key, func(u *user.User) (bool, error) {
		inv := u.Invoice(invoiceID)
		if inv == nil {
			return false, fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
		}
		if inv.State != state {
			inv.SetState(state, e.clock.Now())
			changed = true
		}
		updated = inv.Clone()
		return changed, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		switch state {
		case invoice.StatePaid:
			e.plugins.EmitInvoicePaid(ctx, updated)
		case invoice.StateDefaulting:
			e.plugins.EmitInvoiceDefaulted(ctx, updated)
		}
	}
	return updated, nil
}

// Invoices returns a user's invoices, newest first, filtered by opts.
func (e *Engine) Invoices(key user.Key, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	u, err := e.dir.User(key)
	if err != nil {
		return nil, err
	}

	var out []*invoice.Invoice
	for i := len(u.Invoices) - 1; i >= 0; i-- {
		inv := u.Invoices[i]
		if opts.State != "" && inv.State != opts.State {
			continue
		}
		out = append(out, inv)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Invoice looks an invoice up by ID in the store.
func (e *Engine) Invoice(ctx context.Context, invoiceID string) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(invoiceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvoiceNotFound, err)
	}
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, Internal("get invoice", err)
	}
	return inv, nil
}
