package orders

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/platform/db"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrIllegalTransition is wrapped by IllegalTransitionError.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrInvalidAmount rejects non-positive payments and sub-cent amounts.
	ErrInvalidAmount = errors.New("payment amount must be positive")
	// ErrOverpaymentRejected is wrapped by OverpaymentError.
	ErrOverpaymentRejected = errors.New("payment exceeds order total")
	// ErrOrderLocked rejects item edits once an order has left pending.
	ErrOrderLocked = errors.New("order items can only change while pending")
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInsufficientStock is the inventory sentinel, re-exported for callers of this package.
	ErrInsufficientStock = inventory.ErrInsufficientStock
	// ErrConcurrencyConflict marks retryable aborts caused by competing transactions.
	ErrConcurrencyConflict = db.ErrConcurrencyConflict
	// ErrStorageTimeout marks operations that gave up waiting on storage.
	ErrStorageTimeout = db.ErrStorageTimeout
)

// IllegalTransitionError names the rejected move.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition from %q to %q", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// OverpaymentError carries the amounts that made a payment exceed the total.
type OverpaymentError struct {
	Total     decimal.Decimal
	Paid      decimal.Decimal
	Attempted decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds remaining balance %s (total %s, paid %s)",
		e.Attempted, e.Total.Sub(e.Paid), e.Total, e.Paid)
}

func (e *OverpaymentError) Unwrap() error {
	return ErrOverpaymentRejected
}
