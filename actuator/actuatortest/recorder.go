// Package actuatortest provides an in-memory Actuator for tests.
package actuatortest

import (
	"context"
	"sync"

	"github.com/xraph/finance/actuator"
)

// Call is one recorded actuator invocation.
type Call struct {
	Op         string
	UserID     string
	ProviderID string
}

// Recorder records every call and can be scripted to fail.
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	// Fail maps an operation name to the error it returns.
	Fail map[string]error
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{Fail: make(map[string]error)}
}

// NoHibernate makes Hibernate report actuator.ErrUnsupported.
func (r *Recorder) NoHibernate() *Recorder {
	r.SetFailure("hibernate", actuator.ErrUnsupported)
	return r
}

// SetFailure scripts op to return err; a nil err clears the failure.
func (r *Recorder) SetFailure(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.Fail, op)
		return
	}
	r.Fail[op] = err
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns the recorded operation names in order.
func (r *Recorder) Ops() []string {
	calls := r.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

func (r *Recorder) record(op, userID, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: op, UserID: userID, ProviderID: providerID})
	return r.Fail[op]
}

func (r *Recorder) Pause(_ context.Context, userID, providerID string) error {
	return r.record("pause", userID, providerID)
}

func (r *Recorder) Hibernate(_ context.Context, userID, providerID string) error {
	return r.record("hibernate", userID, providerID)
}

func (r *Recorder) Stop(_ context.Context, userID, providerID string) error {
	return r.record("stop", userID, providerID)
}

func (r *Recorder) Resume(_ context.Context, userID, providerID string) error {
	return r.record("resume", userID, providerID)
}

func (r *Recorder) Purge(_ context.Context, userID, providerID string) error {
	return r.record("purge", userID, providerID)
}

var _ actuator.Actuator = (*Recorder)(nil)
