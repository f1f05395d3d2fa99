package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	serialization := fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})
	deadlock := &pgconn.PgError{Code: "40P01"}
	lockTimeout := fmt.Errorf("lock provider: %w", &pgconn.PgError{Code: "55P03"})
	unique := &pgconn.PgError{Code: "23505"}

	if !IsSerializationFailure(serialization) || !IsSerializationFailure(deadlock) {
		t.Fatal("expected 40001 and 40P01 to be serialization failures")
	}
	if IsSerializationFailure(lockTimeout) {
		t.Fatal("lock timeout is not a serialization failure")
	}
	if !IsLockTimeout(lockTimeout) {
		t.Fatal("expected 55P03 to be a lock timeout")
	}
	if !IsUniqueViolation(unique) || IsUniqueViolation(deadlock) {
		t.Fatal("unique violation classification mismatch")
	}
}

func TestReadyCheckWithoutPool(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
