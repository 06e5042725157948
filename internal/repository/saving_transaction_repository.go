package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/riteshkumar/savings-ledger/internal/errors"
	"github.com/riteshkumar/savings-ledger/internal/models"
)

// SavingTransactionRepository stores the append-only ledger of a saving.
// Entries are never updated; they are only removed together with their saving.
type SavingTransactionRepository interface {
	Create(ctx context.Context, transaction *models.SavingTransaction) error
	ListBySaving(ctx context.Context, savingID string) ([]*models.SavingTransaction, error)
	DeleteBySaving(ctx context.Context, savingID string) error
}

type PostgresSavingTransactionRepository struct {
	db *sql.DB
}

func NewSavingTransactionRepository(db *sql.DB) *PostgresSavingTransactionRepository {
	return &PostgresSavingTransactionRepository{db: db}
}

func (r *PostgresSavingTransactionRepository) Create(ctx context.Context, transaction *models.SavingTransaction) error {
	// Generate UUID if not set
	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}

	query := `INSERT INTO saving_transactions (id, saving_id, type, amount, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := querierFrom(ctx, r.db).QueryRowContext(ctx, query,
		transaction.ID,
		transaction.SavingID,
		string(transaction.Type),
		transaction.Amount,
		transaction.Description,
	).Scan(&transaction.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return errors.ErrSavingNotFound
		}
		return fmt.Errorf("failed to create saving transaction: %w", err)
	}
	return nil
}

// ListBySaving returns the ledger newest first.
func (r *PostgresSavingTransactionRepository) ListBySaving(ctx context.Context, savingID string) ([]*models.SavingTransaction, error) {
	query := `SELECT id, saving_id, type, amount, description, created_at
		FROM saving_transactions
		WHERE saving_id = $1
		ORDER BY created_at DESC, seq DESC`

	rows, err := querierFrom(ctx, r.db).QueryContext(ctx, query, savingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get saving transactions by saving ID: %w", err)
	}
	defer rows.Close()

	transactions := []*models.SavingTransaction{}
	for rows.Next() {
		transaction := &models.SavingTransaction{}
		var txType string
		var description sql.NullString

		err := rows.Scan(&transaction.ID, &transaction.SavingID, &txType, &transaction.Amount, &description, &transaction.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saving transaction: %w", err)
		}

		transaction.Type = models.TransactionType(txType)
		if description.Valid {
			transaction.Description = &description.String
		}
		transactions = append(transactions, transaction)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over saving transactions: %w", err)
	}
	return transactions, nil
}

func (r *PostgresSavingTransactionRepository) DeleteBySaving(ctx context.Context, savingID string) error {
	_, err := querierFrom(ctx, r.db).ExecContext(ctx, `DELETE FROM saving_transactions WHERE saving_id = $1`, savingID)
	if err != nil {
		return fmt.Errorf("failed to delete saving transactions: %w", err)
	}
	return nil
}
