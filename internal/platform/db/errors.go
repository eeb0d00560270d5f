package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrConcurrencyConflict marks a transaction aborted by a serialization failure or
	// deadlock. Retrying the whole operation is safe.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrStorageTimeout marks lock waits or statements that exceeded their budget.
	ErrStorageTimeout = errors.New("storage timeout")
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeUniqueViolation      = "23505"
)

// Classify maps driver errors onto the package sentinels. Errors that already carry a
// sentinel, and errors that are not storage related, are returned untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrStorageTimeout) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		case codeLockNotAvailable, codeQueryCanceled:
			return fmt.Errorf("%w: %v", ErrStorageTimeout, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStorageTimeout, err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
