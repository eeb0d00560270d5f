package shared

import "github.com/shopspring/decimal"

// MoneyScale is the number of decimal places stored for money columns.
const MoneyScale = 2

// IsMoney reports whether d fits a money column without rounding.
func IsMoney(d decimal.Decimal) bool {
	return d.Round(MoneyScale).Equal(d)
}
