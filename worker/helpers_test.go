package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/actuator/actuatortest"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plankind/postpaid"
	"github.com/xraph/finance/plankind/prepaid"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/store/memory"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/usage"
	"github.com/xraph/finance/user"
)

var epoch = time.Unix(0, 0).UTC()

func at(sec int64) time.Time { return epoch.Add(time.Duration(sec) * time.Second) }

// source serves scripted usage records per user and records its calls.
type source struct {
	mu      sync.Mutex
	records map[string][]usage.Record
	fail    map[string]error
	calls   int
}

func newSource() *source {
	return &source{records: make(map[string][]usage.Record), fail: make(map[string]error)}
}

func (s *source) set(userID string, recs ...usage.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = recs
}

func (s *source) failFor(userID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[userID] = err
}

func (s *source) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *source) UsageRecords(_ context.Context, userID, _ string, _, _ time.Time) ([]usage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.fail[userID]; err != nil {
		return nil, err
	}
	return s.records[userID], nil
}

// hookRecorder captures billing and enforcement hooks.
type hookRecorder struct {
	mu          sync.Mutex
	deducted    []types.Money
	generated   int
	defaulted   int
	failed      []user.Key
	transitions []string
	stopped     []string
	resumed     int
}

func (h *hookRecorder) Name() string { return "hooks" }

func (h *hookRecorder) OnCreditsDeducted(_ context.Context, _ *user.User, amount types.Money) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deducted = append(h.deducted, amount)
	return nil
}

func (h *hookRecorder) OnInvoiceGenerated(context.Context, *invoice.Invoice) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.generated++
	return nil
}

func (h *hookRecorder) OnInvoiceDefaulted(context.Context, *invoice.Invoice) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.defaulted++
	return nil
}

func (h *hookRecorder) OnBillingFailed(_ context.Context, key user.Key, _ string, _ error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, key)
	return nil
}

func (h *hookRecorder) OnEnforcementTransition(_ context.Context, _ *user.User, from, to user.ResourceState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, string(from)+"->"+string(to))
	return nil
}

func (h *hookRecorder) OnResourcesStopped(_ context.Context, _ *user.User, op string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = append(h.stopped, op)
	return nil
}

func (h *hookRecorder) OnResourcesResumed(context.Context, *user.User) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resumed++
	return nil
}

type fixture struct {
	ctx    context.Context
	clock  clockwork.FakeClock
	store  *memory.Store
	dir    *finance.Directory
	source *source
	act    *actuatortest.Recorder
	hooks  *hookRecorder
	deps   finance.Deps
	kind   finance.Kind
}

func baseOptions() map[string]string {
	return map[string]string{
		"billing_interval": "30",
		"enforcement_wait": "120",
		"pricing":          "compute,2,4,5.0;volume,100,0.5",
	}
}

func newFixture(t *testing.T, kindName string, opts map[string]string, start time.Time) *fixture {
	t.Helper()

	f := &fixture{
		ctx:    context.Background(),
		clock:  clockwork.NewFakeClockAt(start),
		store:  memory.New(),
		source: newSource(),
		act:    actuatortest.New(),
		hooks:  &hookRecorder{},
	}
	f.dir = finance.NewDirectory(f.store, nil)

	registry := plugin.NewRegistry()
	require.NoError(t, registry.Register(f.hooks))

	f.deps = finance.Deps{
		PlanName:  "gold",
		Directory: f.dir,
		Usage:     f.source,
		Actuator:  f.act,
		Hooks:     registry,
		Clock:     f.clock,
		Interval:  time.Second,
	}

	switch kindName {
	case prepaid.Name:
		f.kind = prepaid.New(f.deps)
	case postpaid.Name:
		f.kind = postpaid.New(f.deps)
	default:
		t.Fatalf("unknown kind %q", kindName)
	}
	require.NoError(t, f.kind.SetOptions(opts))
	return f
}

func (f *fixture) register(t *testing.T, userID string) user.Key {
	t.Helper()
	key := user.Key{UserID: userID, ProviderID: "p1"}
	_, err := f.dir.Register(f.ctx, key, "gold", func(u *user.User) error {
		return f.kind.RegisterUser(f.ctx, u)
	})
	require.NoError(t, err)
	return key
}

func (f *fixture) user(t *testing.T, key user.Key) *user.User {
	t.Helper()
	u, err := f.dir.User(key)
	require.NoError(t, err)
	return u
}

func (f *fixture) setBalance(t *testing.T, key user.Key, amount types.Money) {
	t.Helper()
	_, err := f.dir.Update(f.ctx, key, func(u *user.User) (bool, error) {
		u.EnsureCredits().Balance = amount
		return true, nil
	})
	require.NoError(t, err)
}

func compute(start, end time.Time) usage.Record {
	return usage.Record{Item: pricing.Compute(2, 4), Start: start, End: end}
}

var errSourceDown = errors.New("source down")
