// Package dbpkg provides helpers to make db initialization and error handling easier.
package dbpkg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/go-petr/pet-ledger/pkg/txpkg"
)

// Postgres error codes the ledger reacts to.
const (
	SerializationFailure pq.ErrorCode = "40001"
	UniqueViolation      pq.ErrorCode = "23505"
	CheckViolation       pq.ErrorCode = "23514"
)

// Setup sets up connection with database.
func Setup(ctx context.Context, driver, source string) (*sql.DB, error) {
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Code returns the Postgres error code carried by err, if any.
func Code(err error) (pq.ErrorCode, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code, true
	}

	return "", false
}

// Constraint returns the name of the violated constraint carried by err, if any.
func Constraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}

	return ""
}

// IsSerializationFailure reports whether the database aborted the transaction
// because it conflicted with a concurrent one.
func IsSerializationFailure(err error) bool {
	code, ok := Code(err)
	return ok && code == SerializationFailure
}

// Classify marks serialization failures as retriable conflicts and returns
// every other error unchanged.
func Classify(err error) error {
	if IsSerializationFailure(err) {
		return txpkg.Conflict(err)
	}

	return err
}
