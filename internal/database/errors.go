package database

import (
	"context"
	"errors"

	"matchstats/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// IsRetryable reports whether err is a transient conflict between concurrent
// transactions. A unique violation counts: two first-writers of the same
// dimension name race on the unique index before serializable checks fire.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return true
		}
	}
	return false
}

// Classify turns a store error into a typed failure. Errors that are already
// typed and context errors pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != "" || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(op, "record not found")
	}
	if IsRetryable(err) {
		return apperr.Conflict(op, err)
	}
	return apperr.Store(op, err)
}
