package finance

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the engine wraps exactly one of
// them so callers can tell bad input from "try again later".
var (
	ErrConfiguration    = errors.New("finance: configuration error")
	ErrInvalidParameter = errors.New("finance: invalid parameter")
	ErrInternal         = errors.New("finance: internal error")
)

// Sentinel errors for common failure scenarios.
var (
	// User errors
	ErrUserNotFound          = fmt.Errorf("%w: user not found", ErrInvalidParameter)
	ErrDuplicateSubscription = fmt.Errorf("%w: user already subscribed", ErrInvalidParameter)
	ErrNotSubscribed         = fmt.Errorf("%w: user not subscribed to a plan", ErrInvalidParameter)
	ErrUnpaid                = fmt.Errorf("%w: outstanding balance or invoices not settled", ErrInvalidParameter)
	ErrInvalidKey            = fmt.Errorf("%w: invalid user key", ErrInvalidParameter)

	// Plan errors
	ErrPlanNotFound  = fmt.Errorf("%w: plan not found", ErrInvalidParameter)
	ErrPlanExists    = fmt.Errorf("%w: plan already exists", ErrInvalidParameter)
	ErrPlanInUse     = fmt.Errorf("%w: plan has subscribed users", ErrInvalidParameter)
	ErrInvalidOption = fmt.Errorf("%w: invalid plan option", ErrInvalidParameter)
	ErrUnknownKind   = fmt.Errorf("%w: unknown plan kind", ErrConfiguration)

	// Invoice and credits errors
	ErrInvoiceNotFound = fmt.Errorf("%w: invoice not found", ErrInvalidParameter)
	ErrInvalidState    = fmt.Errorf("%w: invalid state", ErrInvalidParameter)
	ErrWrongPlanKind   = fmt.Errorf("%w: operation not supported by the user's plan", ErrInvalidParameter)
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrInvalidParameter)

	// Runtime errors
	ErrStopTimeout       = fmt.Errorf("%w: worker did not stop in time", ErrInternal)
	ErrStoreUnavailable  = fmt.Errorf("%w: store unavailable", ErrInternal)
	ErrUsageUnavailable  = fmt.Errorf("%w: usage source unavailable", ErrInternal)
	ErrActuatorFailed    = fmt.Errorf("%w: actuator failed", ErrInternal)
	ErrPricingIncomplete = fmt.Errorf("%w: usage not covered by pricing", ErrInternal)
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("finance: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap makes validation failures match ErrInvalidOption.
func (e ValidationError) Unwrap() error { return ErrInvalidOption }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "finance: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("finance: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// Internal tags a collaborator failure as ErrInternal unless it already
// carries a category.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInternal) || errors.Is(err, ErrInvalidParameter) || errors.Is(err, ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}

// IsInvalidParameter returns true if the caller supplied bad input.
func IsInvalidParameter(err error) bool { return errors.Is(err, ErrInvalidParameter) }

// IsConfiguration returns true if the error comes from invalid configuration.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

// IsInternal returns true if the error is a collaborator failure and the
// operation can be retried.
func IsInternal(err error) bool { return errors.Is(err, ErrInternal) }
