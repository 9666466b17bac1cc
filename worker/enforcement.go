package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/finance"
	"github.com/xraph/finance/actuator"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/user"
)

// Action is the side effect a state transition asks for.
type Action int

const (
	ActionNone Action = iota
	// ActionRecordWaitStart stamps the start of the wait period.
	ActionRecordWaitStart
	// ActionSuspend hibernates the user's resources, or stops them when
	// hibernation is unsupported.
	ActionSuspend
	// ActionResume resumes the user's resources.
	ActionResume
)

func (a Action) String() string {
	switch a {
	case ActionRecordWaitStart:
		return "record_wait_start"
	case ActionSuspend:
		return "suspend"
	case ActionResume:
		return "resume"
	default:
		return "none"
	}
}

// Transition computes the next enforcement state of a user in state s.
// paid means the current period and all past debts are settled. waitStart is
// when the user entered WAITING_FOR_STOP and wait the hysteresis period.
//
//	DEFAULT          unpaid            -> WAITING_FOR_STOP (record wait start)
//	WAITING_FOR_STOP paid              -> DEFAULT
//	WAITING_FOR_STOP unpaid, elapsed   -> STOPPING
//	STOPPING         paid              -> DEFAULT
//	STOPPING         unpaid            -> STOPPED (suspend)
//	STOPPED          paid              -> RESUMING
//	RESUMING                           -> DEFAULT (resume)
func Transition(s user.ResourceState, paid bool, waitStart, now time.Time, wait time.Duration) (user.ResourceState, Action) {
	switch s {
	case user.StateWaitingForStop:
		if paid {
			return user.StateDefault, ActionNone
		}
		if now.Sub(waitStart) >= wait {
			return user.StateStopping, ActionNone
		}
		return user.StateWaitingForStop, ActionNone
	case user.StateStopping:
		if paid {
			return user.StateDefault, ActionNone
		}
		return user.StateStopped, ActionSuspend
	case user.StateStopped:
		if paid {
			return user.StateResuming, ActionNone
		}
		return user.StateStopped, ActionNone
	case user.StateResuming:
		return user.StateDefault, ActionResume
	default:
		if paid {
			return user.StateDefault, ActionNone
		}
		return user.StateWaitingForStop, ActionRecordWaitStart
	}
}

// Enforcement applies payment policy to the resources of one plan's users.
type Enforcement struct {
	plan     string
	kind     finance.Kind
	dir      *finance.Directory
	actuator actuator.Actuator
	hooks    *plugin.Registry
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewEnforcement creates the enforcement worker of the plan described by deps.
func NewEnforcement(deps finance.Deps, kind finance.Kind) *Enforcement {
	e := &Enforcement{
		plan:     deps.PlanName,
		kind:     kind,
		dir:      deps.Directory,
		actuator: deps.Actuator,
		hooks:    deps.Hooks,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.actuator == nil {
		e.actuator = actuator.Nop{Logger: e.logger}
	}
	e.logger = e.logger.With("worker", "enforcement", "plan", e.plan)
	return e
}

// RunOnce evaluates every user of the plan once.
func (e *Enforcement) RunOnce(ctx context.Context) Result {
	var res Result

	// No scan may stay open while a user lock is awaited.
	for _, key := range e.dir.Members(e.plan) {
		if err := ctx.Err(); err != nil {
			e.logger.Debug("enforcement run interrupted", "error", err)
			break
		}
		res.Processed++

		changed, err := e.EnforceUser(ctx, key)
		switch {
		case err != nil:
			res.Failed++
			e.logger.Warn("enforcement failed",
				"user_id", key.UserID,
				"provider_id", key.ProviderID,
				"error", err,
			)
		case changed:
			res.Changed++
		}
	}

	e.logger.Debug("enforcement run finished",
		"processed", res.Processed,
		"changed", res.Changed,
		"failed", res.Failed,
	)
	return res
}

type enforcement struct {
	from, to user.ResourceState
	stopped  string
	resumed  bool
	err      error
}

// EnforceUser evaluates one user with its lock held, calling the actuator
// when the transition requires it. An actuator failure is returned after
// the resulting state, if any, has been persisted.
func (e *Enforcement) EnforceUser(ctx context.Context, key user.Key) (bool, error) {
	now := e.clock.Now()
	settings := e.kind.Settings()

	var out enforcement
	u, err := e.dir.Update(ctx, key, func(u *user.User) (bool, error) {
		if u.Plan != e.plan {
			return false, nil
		}
		paid := finance.FullyPaid(e.kind, u)
		if settings.Mode == finance.ModeFlag {
			return e.flag(ctx, u, paid, &out), nil
		}
		return e.machine(ctx, u, paid, now, settings.EnforcementWait, &out), nil
	})
	if err != nil {
		if errors.Is(err, finance.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}

	if out.from != out.to {
		e.logger.Info("enforcement transition",
			"user_id", key.UserID,
			"provider_id", key.ProviderID,
			"from", out.from,
			"to", out.to,
		)
		e.hooks.EmitEnforcementTransition(ctx, u, out.from, out.to)
	}
	if out.stopped != "" {
		e.hooks.EmitResourcesStopped(ctx, u, out.stopped)
	}
	if out.resumed {
		e.hooks.EmitResourcesResumed(ctx, u)
	}
	changed := out.from != out.to || out.stopped != "" || out.resumed
	return changed, out.err
}

func (e *Enforcement) machine(ctx context.Context, u *user.User, paid bool, now time.Time, wait time.Duration, out *enforcement) bool {
	from := u.State
	if !from.Valid() {
		from = user.StateDefault
	}
	next, action := Transition(from, paid, u.WaitStart, now, wait)

	switch action {
	case ActionRecordWaitStart:
		u.WaitStart = now
	case ActionSuspend:
		op, err := actuator.Suspend(ctx, e.actuator, u.UserID, u.ProviderID)
		if err != nil {
			out.err = fmt.Errorf("%w: suspend: %w", finance.ErrActuatorFailed, err)
			next = user.StateStopping
			break
		}
		u.StoppedResources = true
		out.stopped = op
	case ActionResume:
		if err := e.actuator.Resume(ctx, u.UserID, u.ProviderID); err != nil {
			out.err = fmt.Errorf("%w: resume: %w", finance.ErrActuatorFailed, err)
			next = user.StateStopped
			break
		}
		u.StoppedResources = false
		out.resumed = true
	}
	if next == user.StateDefault {
		u.WaitStart = time.Time{}
	}

	out.from, out.to = from, next
	changed := u.State != next || action == ActionRecordWaitStart || out.stopped != "" || out.resumed
	u.State = next
	return changed
}

// flag implements the degraded mode: pause as soon as the user is unpaid,
// resume once paid.
func (e *Enforcement) flag(ctx context.Context, u *user.User, paid bool, out *enforcement) bool {
	out.from, out.to = u.State, u.State
	switch {
	case !paid && !u.StoppedResources:
		if err := e.actuator.Pause(ctx, u.UserID, u.ProviderID); err != nil {
			out.err = fmt.Errorf("%w: pause: %w", finance.ErrActuatorFailed, err)
			return false
		}
		u.StoppedResources = true
		out.stopped = "pause"
		return true
	case paid && u.StoppedResources:
		if err := e.actuator.Resume(ctx, u.UserID, u.ProviderID); err != nil {
			out.err = fmt.Errorf("%w: resume: %w", finance.ErrActuatorFailed, err)
			return false
		}
		u.StoppedResources = false
		out.resumed = true
		return true
	}
	return false
}
