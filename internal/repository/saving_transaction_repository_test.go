package repository

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/riteshkumar/savings-ledger/internal/errors"
	"github.com/riteshkumar/savings-ledger/internal/models"
	"github.com/riteshkumar/savings-ledger/internal/money"
)

const insertEntrySQL = `INSERT INTO saving_transactions (id, saving_id, type, amount, description) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

func TestEntryCreateArgs(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2024, 2, 2, 2, 2, 2, 0, time.UTC)

	mock.ExpectQuery(insertEntrySQL).
		WithArgs("e1", "s1", "deposit", "12.50", nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectQuery(insertEntrySQL).
		WithArgs("e2", "s1", "transfer_out", "3.00", "rent").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	repo := NewSavingTransactionRepository(db)
	entry := &models.SavingTransaction{ID: "e1", SavingID: "s1", Type: models.TransactionTypeDeposit, Amount: money.MustParse("12.5")}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	if !entry.CreatedAt.Equal(created) {
		t.Fatalf("created_at=%v want=%v", entry.CreatedAt, created)
	}

	note := "rent"
	out := &models.SavingTransaction{ID: "e2", SavingID: "s1", Type: models.TransactionTypeTransferOut, Amount: money.MustParse("3"), Description: &note}
	if err := repo.Create(context.Background(), out); err != nil {
		t.Fatal(err)
	}
}

func TestEntryCreateErrorMapping(t *testing.T) {
	db, mock := newMockDB(t)
	unique := &pq.Error{Code: "23505", Message: "duplicate key"}

	mock.ExpectQuery(insertEntrySQL).
		WithArgs(sqlmock.AnyArg(), "missing", "deposit", "1.00", nil).
		WillReturnError(&pq.Error{Code: "23503", Message: "violates foreign key constraint"})
	mock.ExpectQuery(insertEntrySQL).
		WithArgs(sqlmock.AnyArg(), "s1", "deposit", "1.00", nil).
		WillReturnError(unique)

	repo := NewSavingTransactionRepository(db)
	ctx := context.Background()
	orphan := &models.SavingTransaction{SavingID: "missing", Type: models.TransactionTypeDeposit, Amount: money.MustParse("1")}
	if err := repo.Create(ctx, orphan); !errors.IsNotFound(err) {
		t.Fatalf("foreign key violation: want not found, got %v", err)
	}
	if orphan.ID == "" {
		t.Fatal("id not generated")
	}

	dup := &models.SavingTransaction{SavingID: "s1", Type: models.TransactionTypeDeposit, Amount: money.MustParse("1")}
	err := repo.Create(ctx, dup)
	if errors.IsNotFound(err) || !stderrors.Is(err, unique) {
		t.Fatalf("other pq error: want wrapped error, got %v", err)
	}
}

func TestEntryListNewestFirst(t *testing.T) {
	db, mock := newMockDB(t)
	at := time.Date(2024, 4, 4, 12, 0, 0, 0, time.UTC)

	// same created_at: seq breaks the tie
	mock.ExpectQuery(`SELECT id, saving_id, type, amount, description, created_at FROM saving_transactions WHERE saving_id = $1 ORDER BY created_at DESC, seq DESC`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "saving_id", "type", "amount", "description", "created_at"}).
			AddRow("e2", "s1", "withdrawal", "4.00", "atm", at).
			AddRow("e1", "s1", "deposit", "10", nil, at))

	list, err := NewSavingTransactionRepository(db).ListBySaving(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "e2" || list[1].ID != "e1" {
		t.Fatalf("order unexpected: %+v", list)
	}
	if list[0].Type != models.TransactionTypeWithdrawal || list[0].Description == nil || *list[0].Description != "atm" {
		t.Fatalf("first entry unexpected: %+v", list[0])
	}
	if list[1].Description != nil || list[1].Amount.String() != "10.00" {
		t.Fatalf("second entry unexpected: %+v", list[1])
	}
}

func TestEntryDeleteBySaving(t *testing.T) {
	db, mock := newMockDB(t)
	down := stderrors.New("lost connection")

	mock.ExpectExec(`DELETE FROM saving_transactions WHERE saving_id = $1`).WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM saving_transactions WHERE saving_id = $1`).WithArgs("s1").WillReturnError(down)

	repo := NewSavingTransactionRepository(db)
	if err := repo.DeleteBySaving(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteBySaving(context.Background(), "s1"); !stderrors.Is(err, down) {
		t.Fatalf("want wrapped error, got %v", err)
	}
}
