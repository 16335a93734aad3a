package recur

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios. Every failure is
// terminal for the call: the operation aborts and no tentative state
// is committed.
var (
	// General errors
	ErrNotFound     = errors.New("recur: not found")
	ErrInvalidInput = errors.New("recur: invalid input")
	ErrUnauthorized = errors.New("recur: unauthorized")

	// Plan errors
	ErrPlanNotFound = errors.New("recur: plan not found")
	ErrPlanInactive = errors.New("recur: plan is inactive")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("recur: no active subscription")
	ErrAlreadySubscribed    = errors.New("recur: already subscribed")

	// Payment errors
	ErrInsufficientPayment = errors.New("recur: payment below plan price")
	ErrNothingToWithdraw   = errors.New("recur: nothing to withdraw")
	ErrTransferFailed      = errors.New("recur: value transfer failed")

	// Store errors
	ErrStoreNotReady   = errors.New("recur: store not ready")
	ErrStoreClosed     = errors.New("recur: store is closed")
	ErrMigrationFailed = errors.New("recur: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("recur: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap classifies every validation failure as invalid input.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsPaymentError returns true if the error concerns the attached
// payment or an outgoing transfer rather than ledger state.
func IsPaymentError(err error) bool {
	return errors.Is(err, ErrInsufficientPayment) ||
		errors.Is(err, ErrNothingToWithdraw) ||
		errors.Is(err, ErrTransferFailed)
}

// IsRejected returns true if the error is a caller-side rejection (bad
// input, missing authorization, unsatisfiable precondition) as opposed
// to a store or transfer failure.
func IsRejected(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrPlanInactive) ||
		errors.Is(err, ErrAlreadySubscribed) ||
		errors.Is(err, ErrInsufficientPayment) ||
		IsNotFound(err)
}
