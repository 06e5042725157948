package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/riteshkumar/savings-ledger/internal/money"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("open sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sql expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func TestTxUsesReadCommitted(t *testing.T) {
	if txOptions.Isolation != sql.LevelReadCommitted {
		t.Fatalf("isolation=%v want=%v", txOptions.Isolation, sql.LevelReadCommitted)
	}
}

func TestTxCommitRunsStatementsInTx(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSavingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE savings SET balance = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`).
		WithArgs("25.00", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewTxManager(db).WithinTx(context.Background(), func(ctx context.Context) error {
		return repo.UpdateBalance(ctx, "s1", money.MustParse("25"))
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTxRollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	boom := stderrors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := NewTxManager(db).WithinTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	if !stderrors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
}

func TestTxNestedCallJoinsOuter(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTxManager(db)
	repo := NewSavingRepository(db)

	// one BEGIN and one ROLLBACK: the inner call must not open or commit its own
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE savings SET balance = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`).
		WithArgs("5.00", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := tm.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := tm.WithinTx(ctx, func(ctx context.Context) error {
			return repo.UpdateBalance(ctx, "s1", money.MustParse("5"))
		}); err != nil {
			return err
		}
		return stderrors.New("outer fails")
	})
	if err == nil || err.Error() != "outer fails" {
		t.Fatalf("err=%v want outer fails", err)
	}
}

func TestTxRollbackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	defer func() {
		if p := recover(); p != "kaboom" {
			t.Fatalf("recovered %v want kaboom", p)
		}
	}()
	_ = NewTxManager(db).WithinTx(context.Background(), func(ctx context.Context) error {
		panic("kaboom")
	})
}

func TestTxBeginAndCommitFailures(t *testing.T) {
	t.Run("begin", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin().WillReturnError(stderrors.New("no connection"))

		called := false
		err := NewTxManager(db).WithinTx(context.Background(), func(ctx context.Context) error {
			called = true
			return nil
		})
		if err == nil || called {
			t.Fatalf("err=%v called=%v, want error before fn runs", err, called)
		}
	})

	t.Run("commit", func(t *testing.T) {
		db, mock := newMockDB(t)
		serialization := stderrors.New("could not serialize access")
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(serialization)

		err := NewTxManager(db).WithinTx(context.Background(), func(ctx context.Context) error {
			return nil
		})
		if !stderrors.Is(err, serialization) {
			t.Fatalf("err=%v want wrapped commit error", err)
		}
	})
}
