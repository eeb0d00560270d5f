package db

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundTrip(t *testing.T) {
	for _, raw := range []string{"0", "100", "40.25", "-12.5", "123456789.0001"} {
		d := decimal.RequireFromString(raw)
		require.True(t, d.Equal(Decimal(Numeric(d))), raw)
	}
}

func TestDecimalNullIsZero(t *testing.T) {
	require.True(t, Decimal(pgtype.Numeric{}).IsZero())
	require.True(t, Decimal(pgtype.Numeric{NaN: true, Valid: true}).IsZero())
}
