package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riteshkumar/savings-ledger/internal/errors"
	"github.com/riteshkumar/savings-ledger/internal/models"
	"github.com/riteshkumar/savings-ledger/internal/money"
)

type SavingRepository interface {
	Create(ctx context.Context, saving *models.Saving) error
	GetByID(ctx context.Context, id string) (*models.Saving, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Saving, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*models.Saving, error)
	Update(ctx context.Context, saving *models.Saving) error
	UpdateBalance(ctx context.Context, id string, balance money.Amount) error
	Delete(ctx context.Context, id string) error
}

type PostgresSavingRepository struct {
	db *sql.DB
}

func NewSavingRepository(db *sql.DB) *PostgresSavingRepository {
	return &PostgresSavingRepository{db: db}
}

const savingColumns = `id, customer_id, name, account_type, balance, interest_rate, goal, description, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSaving(row rowScanner) (*models.Saving, error) {
	saving := &models.Saving{}
	var rate, goal decimal.NullDecimal
	var description sql.NullString

	err := row.Scan(&saving.ID, &saving.CustomerID, &saving.Name, &saving.AccountType, &saving.Balance,
		&rate, &goal, &description, &saving.CreatedAt, &saving.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if rate.Valid {
		r := money.NewRate(rate.Decimal)
		saving.InterestRate = &r
	}
	if goal.Valid {
		g := money.FromDecimal(goal.Decimal)
		saving.Goal = &g
	}
	if description.Valid {
		saving.Description = &description.String
	}
	return saving, nil
}

func (r *PostgresSavingRepository) Create(ctx context.Context, saving *models.Saving) error {
	if saving.ID == "" {
		saving.ID = uuid.New().String()
	}

	query := `INSERT INTO savings (id, customer_id, name, account_type, balance, interest_rate, goal, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`

	err := querierFrom(ctx, r.db).QueryRowContext(ctx, query,
		saving.ID,
		saving.CustomerID,
		saving.Name,
		saving.AccountType,
		saving.Balance,
		saving.InterestRate,
		saving.Goal,
		saving.Description,
	).Scan(&saving.CreatedAt, &saving.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create saving: %w", err)
	}
	return nil
}

func (r *PostgresSavingRepository) GetByID(ctx context.Context, id string) (*models.Saving, error) {
	query := `SELECT ` + savingColumns + ` FROM savings WHERE id = $1`

	saving, err := scanSaving(querierFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrSavingNotFound
		}
		return nil, fmt.Errorf("failed to get saving by ID: %w", err)
	}
	return saving, nil
}

// GetByIDForUpdate locks the saving row until the surrounding transaction ends.
func (r *PostgresSavingRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Saving, error) {
	query := `SELECT ` + savingColumns + ` FROM savings WHERE id = $1 FOR UPDATE`

	saving, err := scanSaving(querierFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrSavingNotFound
		}
		return nil, fmt.Errorf("failed to get saving by ID for update: %w", err)
	}
	return saving, nil
}

func (r *PostgresSavingRepository) ListByCustomer(ctx context.Context, customerID string) ([]*models.Saving, error) {
	query := `SELECT ` + savingColumns + ` FROM savings
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := querierFrom(ctx, r.db).QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list savings by customer: %w", err)
	}
	defer rows.Close()

	savings := []*models.Saving{}
	for rows.Next() {
		saving, err := scanSaving(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saving: %w", err)
		}
		savings = append(savings, saving)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over savings: %w", err)
	}
	return savings, nil
}

func (r *PostgresSavingRepository) Update(ctx context.Context, saving *models.Saving) error {
	query := `UPDATE savings
		SET name = $1, account_type = $2, balance = $3, interest_rate = $4, goal = $5, description = $6,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $7
		RETURNING updated_at`

	err := querierFrom(ctx, r.db).QueryRowContext(ctx, query,
		saving.Name,
		saving.AccountType,
		saving.Balance,
		saving.InterestRate,
		saving.Goal,
		saving.Description,
		saving.ID,
	).Scan(&saving.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return errors.ErrSavingNotFound
		}
		return fmt.Errorf("failed to update saving: %w", err)
	}
	return nil
}

func (r *PostgresSavingRepository) UpdateBalance(ctx context.Context, id string, balance money.Amount) error {
	query := `UPDATE savings SET balance = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`

	result, err := querierFrom(ctx, r.db).ExecContext(ctx, query, balance, id)
	if err != nil {
		return fmt.Errorf("failed to update saving balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating saving balance: %w", err)
	}

	if rowsAffected == 0 {
		return errors.ErrSavingNotFound
	}

	return nil
}

func (r *PostgresSavingRepository) Delete(ctx context.Context, id string) error {
	result, err := querierFrom(ctx, r.db).ExecContext(ctx, `DELETE FROM savings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete saving: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after deleting saving: %w", err)
	}

	if rowsAffected == 0 {
		return errors.ErrSavingNotFound
	}

	return nil
}
