package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRunInTxCommits(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tm := NewTxManager(sqlDB)
	err = tm.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := QuerierFromCtx(ctx, sqlDB).ExecContext(ctx, "UPDATE accounts SET name = 'x'")
		return err
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("debit refused")
	tm := NewTxManager(sqlDB)
	err = tm.RunInTx(context.Background(), func(ctx context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestRunInTxNestedJoinsOuter(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	mock.ExpectBegin()
	mock.ExpectCommit()

	tm := NewTxManager(sqlDB)
	err = tm.RunInTx(context.Background(), func(outer context.Context) error {
		outerTx, _ := TxFromCtx(outer)
		return tm.RunInTx(outer, func(inner context.Context) error {
			innerTx, ok := TxFromCtx(inner)
			if !ok || innerTx != outerTx {
				t.Fatalf("expected nested call to reuse the outer tx")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
