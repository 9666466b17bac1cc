package finance

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/types"
)

// EnforcementMode selects how nonpayment is enforced.
type EnforcementMode string

const (
	// ModeStateMachine waits for the enforcement period, then hibernates or
	// stops the user's resources and resumes them once paid.
	ModeStateMachine EnforcementMode = "statemachine"
	// ModeFlag pauses resources as soon as the user is unpaid and resumes
	// them once paid, without a wait period.
	ModeFlag EnforcementMode = "flag"
)

// Settings are the parsed options shared by the built-in plan kinds.
type Settings struct {
	BillingInterval time.Duration
	EnforcementWait time.Duration
	TimeUnit        time.Duration
	InvoiceDue      time.Duration
	Mode            EnforcementMode
	InitialCredits  types.Money
	PricingFile     string
}

// ParseSettings validates a plan's option map. billing_interval,
// enforcement_wait and one of pricing or pricing_file are required; the
// intervals are integers counted in time_unit (default "s"). Every failure
// wraps ErrInvalidOption. The returned policy is the parsed pricing table.
func ParseSettings(opts map[string]string) (Settings, *pricing.Policy, error) {
	s := Settings{
		TimeUnit: time.Second,
		Mode:     ModeStateMachine,
	}

	if raw, ok := opts[plan.OptTimeUnit]; ok && raw != "" {
		unit, err := parseTimeUnit(raw)
		if err != nil {
			return Settings{}, nil, err
		}
		s.TimeUnit = unit
	}

	var err error
	if s.BillingInterval, err = requiredCount(opts, plan.OptBillingInterval, s.TimeUnit); err != nil {
		return Settings{}, nil, err
	}
	if s.BillingInterval <= 0 {
		return Settings{}, nil, ValidationError{Field: plan.OptBillingInterval, Message: "must be positive"}
	}
	if s.EnforcementWait, err = requiredCount(opts, plan.OptEnforcementWait, s.TimeUnit); err != nil {
		return Settings{}, nil, err
	}

	s.InvoiceDue = s.BillingInterval
	if _, ok := opts[plan.OptInvoiceDue]; ok {
		if s.InvoiceDue, err = requiredCount(opts, plan.OptInvoiceDue, s.TimeUnit); err != nil {
			return Settings{}, nil, err
		}
	}

	if raw, ok := opts[plan.OptEnforcementMode]; ok && raw != "" {
		switch mode := EnforcementMode(strings.ToLower(raw)); mode {
		case ModeStateMachine, ModeFlag:
			s.Mode = mode
		default:
			return Settings{}, nil, ValidationError{Field: plan.OptEnforcementMode, Message: fmt.Sprintf("unknown mode %q", raw)}
		}
	}

	if raw, ok := opts[plan.OptInitialCredits]; ok && raw != "" {
		credits, err := types.Parse(raw)
		if err != nil {
			return Settings{}, nil, ValidationError{Field: plan.OptInitialCredits, Message: "not a number"}
		}
		s.InitialCredits = credits
	}

	policy, err := loadPricing(opts)
	if err != nil {
		return Settings{}, nil, err
	}
	s.PricingFile = opts[plan.OptPricingFile]

	return s, policy, nil
}

func loadPricing(opts map[string]string) (*pricing.Policy, error) {
	inline, hasInline := opts[plan.OptPricing]
	file := opts[plan.OptPricingFile]

	switch {
	case file != "":
		p, err := pricing.LoadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidOption, plan.OptPricingFile, err)
		}
		return p, nil
	case hasInline:
		p, err := pricing.ParseInline(inline)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidOption, plan.OptPricing, err)
		}
		return p, nil
	default:
		return nil, ValidationError{Field: plan.OptPricing, Message: "one of pricing or pricing_file is required"}
	}
}

func requiredCount(opts map[string]string, key string, unit time.Duration) (time.Duration, error) {
	raw, ok := opts[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, ValidationError{Field: key, Message: "required"}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, ValidationError{Field: key, Message: fmt.Sprintf("not an integer: %q", raw)}
	}
	if n < 0 {
		return 0, ValidationError{Field: key, Message: "must not be negative"}
	}
	return time.Duration(n) * unit, nil
}

// parseTimeUnit accepts a unit name ("ms", "s", "m", "h") or a Go duration.
func parseTimeUnit(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		d, err = time.ParseDuration("1" + raw)
	}
	if err != nil || d <= 0 {
		return 0, ValidationError{Field: plan.OptTimeUnit, Message: fmt.Sprintf("invalid unit %q", raw)}
	}
	return d, nil
}

// MergeOptions returns base overlaid with updates. An empty value in updates
// deletes the key.
func MergeOptions(base, updates map[string]string) map[string]string {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]string, len(updates))
	}
	for k, v := range updates {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
