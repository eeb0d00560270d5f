package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestClassifyConflicts(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		err := fmt.Errorf("update order: %w", &pgconn.PgError{Code: code})
		require.ErrorIs(t, Classify(err), ErrConcurrencyConflict, code)
	}
}

func TestClassifyTimeouts(t *testing.T) {
	for _, code := range []string{"55P03", "57014"} {
		require.ErrorIs(t, Classify(&pgconn.PgError{Code: code}), ErrStorageTimeout, code)
	}
	require.ErrorIs(t, Classify(fmt.Errorf("lock: %w", context.DeadlineExceeded)), ErrStorageTimeout)
}

func TestClassifyPassesThrough(t *testing.T) {
	domain := errors.New("insufficient stock")
	require.Same(t, domain, Classify(domain))
	require.NoError(t, Classify(nil))

	unique := &pgconn.PgError{Code: "23505"}
	require.Equal(t, error(unique), Classify(unique))
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", unique)))
	require.False(t, IsUniqueViolation(domain))
}

func TestClassifyIsIdempotent(t *testing.T) {
	once := Classify(&pgconn.PgError{Code: "40001"})
	require.Equal(t, once, Classify(once))
}
