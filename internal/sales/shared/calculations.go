package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	common "github.com/odyssey-erp/odyssey-trade/internal/shared"
)

// PaymentStatus classifies how much of an order has been paid.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// ErrInvalidTotals rejects fee and discount combinations that break the totals formula.
var ErrInvalidTotals = errors.New("invalid order totals")

// Totals holds the money fields of an order.
type Totals struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// LineTotal is quantity × unit price.
func LineTotal(quantity int64, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(quantity))
}

// ComputeTotals sums the line totals and applies fee and discount:
// total = subtotal + shippingFee - discount.
func ComputeTotals(lineTotals []decimal.Decimal, shippingFee, discount decimal.Decimal) (Totals, error) {
	if shippingFee.IsNegative() {
		return Totals{}, fmt.Errorf("%w: shipping fee must be >= 0", ErrInvalidTotals)
	}
	if discount.IsNegative() {
		return Totals{}, fmt.Errorf("%w: discount must be >= 0", ErrInvalidTotals)
	}
	if !common.IsMoney(shippingFee) || !common.IsMoney(discount) {
		return Totals{}, fmt.Errorf("%w: fees allow at most %d decimal places", ErrInvalidTotals, common.MoneyScale)
	}
	subtotal := decimal.Sum(decimal.Zero, lineTotals...)
	if !common.IsMoney(subtotal) {
		return Totals{}, fmt.Errorf("%w: subtotal %s has more than %d decimal places", ErrInvalidTotals, subtotal, common.MoneyScale)
	}
	if subtotal.IsNegative() {
		return Totals{}, fmt.Errorf("%w: subtotal must be >= 0", ErrInvalidTotals)
	}
	gross := subtotal.Add(shippingFee)
	if discount.GreaterThan(gross) {
		return Totals{}, fmt.Errorf("%w: discount %s exceeds %s", ErrInvalidTotals, discount, gross)
	}
	return Totals{
		Subtotal:    subtotal,
		ShippingFee: shippingFee,
		Discount:    discount,
		Total:       gross.Sub(discount),
	}, nil
}

// DerivePaymentStatus is the only place payment status is computed. Every write path
// stores its result so the status can never drift from (paid, total).
func DerivePaymentStatus(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case total.IsPositive() && paid.GreaterThanOrEqual(total):
		return PaymentPaid
	case paid.IsPositive():
		return PaymentPartial
	default:
		return PaymentPending
	}
}
