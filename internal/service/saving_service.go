package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/riteshkumar/savings-ledger/internal/errors"
	"github.com/riteshkumar/savings-ledger/internal/models"
	"github.com/riteshkumar/savings-ledger/internal/money"
	"github.com/riteshkumar/savings-ledger/internal/projection"
	"github.com/riteshkumar/savings-ledger/internal/repository"
)

// SavingService is the savings ledger. Every call names the customer it acts
// for; a saving owned by someone else is never read or changed.
type SavingService interface {
	ListSavings(ctx context.Context, customerID string) ([]*models.Saving, error)
	CreateSaving(ctx context.Context, customerID string, req *models.SavingRequest) (*models.Saving, error)
	UpdateSaving(ctx context.Context, id, customerID string, req *models.SavingRequest) (*models.Saving, error)
	DeleteSaving(ctx context.Context, id, customerID string) error
	Deposit(ctx context.Context, id, customerID string, req *models.AmountRequest) (*models.Saving, error)
	Withdraw(ctx context.Context, id, customerID string, req *models.AmountRequest) (*models.Saving, error)
	Transfer(ctx context.Context, customerID string, req *models.TransferRequest) error
	ListTransactions(ctx context.Context, id, customerID string) ([]*models.SavingTransaction, error)
	GetInterestProjection(ctx context.Context, id, customerID string, months int) ([]models.ProjectionEntry, error)
}

type SavingServiceImpl struct {
	txManager       repository.TxManager
	savingRepo      repository.SavingRepository
	transactionRepo repository.SavingTransactionRepository
	auditRepo       repository.AuditRepository
	logger          *slog.Logger
	now             func() time.Time
}

func NewSavingService(txManager repository.TxManager, savingRepo repository.SavingRepository, transactionRepo repository.SavingTransactionRepository, auditRepo repository.AuditRepository, logger *slog.Logger) *SavingServiceImpl {
	return &SavingServiceImpl{
		txManager:       txManager,
		savingRepo:      savingRepo,
		transactionRepo: transactionRepo,
		auditRepo:       auditRepo,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *SavingServiceImpl) ListSavings(ctx context.Context, customerID string) ([]*models.Saving, error) {
	if customerID == "" {
		return nil, errors.ErrMissingCustomer
	}

	savings, err := s.savingRepo.ListByCustomer(ctx, customerID)
	if err != nil {
		s.logger.Error("failed to list savings",
			"customer_id", customerID,
			"error", err.Error(),
		)
		return nil, errors.NewStorageError("list savings", err)
	}
	return savings, nil
}

func (s *SavingServiceImpl) CreateSaving(ctx context.Context, customerID string, req *models.SavingRequest) (*models.Saving, error) {
	if customerID == "" {
		return nil, errors.ErrMissingCustomer
	}
	if err := validateSavingRequest(req); err != nil {
		s.logger.Warn("invalid create saving request",
			"customer_id", customerID,
			"error", err.Error(),
		)
		return nil, err
	}

	saving := &models.Saving{CustomerID: customerID}
	applySavingRequest(saving, req)

	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.savingRepo.Create(ctx, saving); err != nil {
			return err
		}
		// The opening balance is seeded directly; the audit row is its only trace.
		return s.createSavingAuditLog(ctx, models.AuditActionCreate, saving.ID, nil, saving)
	})
	if err != nil {
		s.logger.Error("failed to create saving",
			"customer_id", customerID,
			"error", err.Error(),
		)
		return nil, storageError("create saving", err)
	}

	s.logger.Info("saving created successfully",
		"saving_id", saving.ID,
		"customer_id", customerID,
		"balance", saving.Balance.String(),
	)
	return saving, nil
}

// UpdateSaving overwrites every editable field, balance included. A balance
// change made here is an admin correction: it is audited, not ledgered.
func (s *SavingServiceImpl) UpdateSaving(ctx context.Context, id, customerID string, req *models.SavingRequest) (*models.Saving, error) {
	if err := validateIdentity(id, customerID); err != nil {
		return nil, err
	}
	if err := validateSavingRequest(req); err != nil {
		s.logger.Warn("invalid update saving request",
			"saving_id", id,
			"error", err.Error(),
		)
		return nil, err
	}

	var updated *models.Saving
	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.getSavingForCustomer(ctx, id, customerID, true)
		if err != nil {
			return err
		}

		before := *existing
		applySavingRequest(existing, req)
		if err := s.savingRepo.Update(ctx, existing); err != nil {
			return err
		}
		if err := s.createSavingAuditLog(ctx, models.AuditActionUpdate, id, &before, existing); err != nil {
			return err
		}

		if !before.Balance.Equal(existing.Balance) {
			s.logger.Warn("saving balance overwritten outside the ledger",
				"saving_id", id,
				"old_balance", before.Balance.String(),
				"new_balance", existing.Balance.String(),
			)
		}
		updated = existing
		return nil
	})
	if err != nil {
		return nil, s.logFailure("update saving", id, err)
	}

	return updated, nil
}

// DeleteSaving removes the ledger entries first, then the saving itself.
func (s *SavingServiceImpl) DeleteSaving(ctx context.Context, id, customerID string) error {
	if err := validateIdentity(id, customerID); err != nil {
		return err
	}

	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		saving, err := s.getSavingForCustomer(ctx, id, customerID, true)
		if err != nil {
			return err
		}
		if err := s.transactionRepo.DeleteBySaving(ctx, id); err != nil {
			return err
		}
		if err := s.savingRepo.Delete(ctx, id); err != nil {
			return err
		}
		return s.createSavingAuditLog(ctx, models.AuditActionDelete, id, saving, nil)
	})
	if err != nil {
		return s.logFailure("delete saving", id, err)
	}

	s.logger.Info("saving deleted successfully",
		"saving_id", id,
		"customer_id", customerID,
	)
	return nil
}

func (s *SavingServiceImpl) Deposit(ctx context.Context, id, customerID string, req *models.AmountRequest) (*models.Saving, error) {
	return s.post(ctx, id, customerID, req, models.TransactionTypeDeposit)
}

func (s *SavingServiceImpl) Withdraw(ctx context.Context, id, customerID string, req *models.AmountRequest) (*models.Saving, error) {
	return s.post(ctx, id, customerID, req, models.TransactionTypeWithdrawal)
}

// post applies a deposit or withdrawal: the balance update and its ledger
// entry are written in one unit of work.
func (s *SavingServiceImpl) post(ctx context.Context, id, customerID string, req *models.AmountRequest, txType models.TransactionType) (*models.Saving, error) {
	if err := validateIdentity(id, customerID); err != nil {
		return nil, err
	}
	amount, err := validateAmount(req.Amount)
	if err != nil {
		s.logger.Warn("invalid "+string(txType)+" request",
			"saving_id", id,
			"error", err.Error(),
		)
		return nil, err
	}

	var updated *models.Saving
	err = s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		saving, err := s.getSavingForCustomer(ctx, id, customerID, true)
		if err != nil {
			return err
		}

		newBalance := saving.Balance.Add(amount)
		if txType == models.TransactionTypeWithdrawal {
			if saving.Balance.LessThan(amount) {
				s.logger.Warn("insufficient funds for withdrawal",
					"saving_id", id,
					"available_balance", saving.Balance.String(),
					"requested_amount", amount.String(),
				)
				return errors.ErrInsufficientFunds
			}
			newBalance = saving.Balance.Sub(amount)
		} else if err := checkBalanceLimit(newBalance); err != nil {
			return err
		}

		if err := s.savingRepo.UpdateBalance(ctx, id, newBalance); err != nil {
			return err
		}
		if err := s.appendEntry(ctx, id, txType, amount, req.Description); err != nil {
			return err
		}

		updated, err = s.savingRepo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.logFailure(string(txType), id, err)
	}

	s.logger.Info(string(txType)+" applied",
		"saving_id", id,
		"amount", amount.String(),
		"balance", updated.Balance.String(),
	)
	return updated, nil
}

// Transfer moves funds between two savings of the same customer. Both rows are
// locked in ascending id order; both balance writes and both ledger entries
// commit together or not at all.
func (s *SavingServiceImpl) Transfer(ctx context.Context, customerID string, req *models.TransferRequest) error {
	if err := s.validateTransferRequest(customerID, req); err != nil {
		s.logger.Warn("invalid transfer request",
			"from_id", req.FromID,
			"to_id", req.ToID,
			"error", err.Error(),
		)
		return err
	}
	amount := *req.Amount

	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		locked := make(map[string]*models.Saving, 2)
		for _, id := range lockOrder(req.FromID, req.ToID) {
			saving, err := s.savingRepo.GetByIDForUpdate(ctx, id)
			if err != nil && !errors.IsNotFound(err) {
				return err
			}
			locked[id] = saving
		}

		source := locked[req.FromID]
		if err := checkOwner(source, customerID); err != nil {
			return fmt.Errorf("source saving: %w", err)
		}
		destination := locked[req.ToID]
		if err := checkOwner(destination, customerID); err != nil {
			return fmt.Errorf("destination saving: %w", err)
		}

		if source.Balance.LessThan(amount) {
			s.logger.Warn("insufficient funds in source saving",
				"from_id", req.FromID,
				"available_balance", source.Balance.String(),
				"requested_amount", amount.String(),
			)
			return errors.ErrInsufficientFunds
		}
		if err := checkBalanceLimit(destination.Balance.Add(amount)); err != nil {
			return err
		}

		if err := s.savingRepo.UpdateBalance(ctx, source.ID, source.Balance.Sub(amount)); err != nil {
			return err
		}
		if err := s.savingRepo.UpdateBalance(ctx, destination.ID, destination.Balance.Add(amount)); err != nil {
			return err
		}
		if err := s.appendEntry(ctx, source.ID, models.TransactionTypeTransferOut, amount, req.Description); err != nil {
			return err
		}
		return s.appendEntry(ctx, destination.ID, models.TransactionTypeTransferIn, amount, req.Description)
	})
	if err != nil {
		return s.logFailure("transfer", req.FromID, err)
	}

	s.logger.Info("transfer completed",
		"from_id", req.FromID,
		"to_id", req.ToID,
		"amount", amount.String(),
	)
	return nil
}

func (s *SavingServiceImpl) ListTransactions(ctx context.Context, id, customerID string) ([]*models.SavingTransaction, error) {
	if err := validateIdentity(id, customerID); err != nil {
		return nil, err
	}
	if _, err := s.getSavingForCustomer(ctx, id, customerID, false); err != nil {
		return nil, s.logFailure("list transactions", id, err)
	}

	transactions, err := s.transactionRepo.ListBySaving(ctx, id)
	if err != nil {
		return nil, s.logFailure("list transactions", id, err)
	}
	return transactions, nil
}

func (s *SavingServiceImpl) GetInterestProjection(ctx context.Context, id, customerID string, months int) ([]models.ProjectionEntry, error) {
	if err := validateIdentity(id, customerID); err != nil {
		return nil, err
	}
	saving, err := s.getSavingForCustomer(ctx, id, customerID, false)
	if err != nil {
		return nil, s.logFailure("interest projection", id, err)
	}
	return projection.Project(saving.Balance, saving.InterestRate, months, s.now())
}

// getSavingForCustomer loads a saving and checks that customerID owns it.
// With forUpdate the row stays locked until the surrounding unit of work ends.
func (s *SavingServiceImpl) getSavingForCustomer(ctx context.Context, id, customerID string, forUpdate bool) (*models.Saving, error) {
	load := s.savingRepo.GetByID
	if forUpdate {
		load = s.savingRepo.GetByIDForUpdate
	}
	saving, err := load(ctx, id)
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}
	if err := checkOwner(saving, customerID); err != nil {
		return nil, err
	}
	return saving, nil
}

func (s *SavingServiceImpl) appendEntry(ctx context.Context, savingID string, txType models.TransactionType, amount money.Amount, description *string) error {
	entry := &models.SavingTransaction{
		SavingID:    savingID,
		Type:        txType,
		Amount:      amount,
		Description: description,
	}
	if err := s.transactionRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to append %s entry: %w", txType, err)
	}
	return nil
}

func (s *SavingServiceImpl) createSavingAuditLog(ctx context.Context, action, savingID string, before, after *models.Saving) error {
	auditLog := &models.AuditLog{
		EntityType: models.EntityTypeSaving,
		EntityID:   savingID,
		Action:     action,
		NewValue:   json.RawMessage("null"),
	}

	if before != nil {
		oldValue, err := json.Marshal(models.NewSavingSnapshot(before))
		if err != nil {
			return err
		}
		auditLog.OldValue = oldValue
	}
	if after != nil {
		newValue, err := json.Marshal(models.NewSavingSnapshot(after))
		if err != nil {
			return err
		}
		auditLog.NewValue = newValue
	}

	return s.auditRepo.Create(ctx, auditLog)
}

// logFailure logs err at the level its kind deserves and returns it with
// storage failures wrapped.
func (s *SavingServiceImpl) logFailure(operation, savingID string, err error) error {
	switch {
	case errors.IsNotFound(err), errors.IsForbidden(err), errors.IsInsufficientFunds(err), errors.IsValidationError(err):
		s.logger.Warn(operation+" rejected",
			"saving_id", savingID,
			"error", err.Error(),
		)
		return err
	default:
		s.logger.Error("failed to "+operation,
			"saving_id", savingID,
			"error", err.Error(),
		)
		return storageError(operation, err)
	}
}

func (s *SavingServiceImpl) validateTransferRequest(customerID string, req *models.TransferRequest) error {
	if customerID == "" {
		return errors.ErrMissingCustomer
	}
	if req.FromID == "" {
		return errors.NewValidationError("fromId", "must be non-empty")
	}
	if req.ToID == "" {
		return errors.NewValidationError("toId", "must be non-empty")
	}
	if req.FromID == req.ToID {
		return errors.ErrSameAccount
	}
	_, err := validateAmount(req.Amount)
	return err
}

func validateIdentity(id, customerID string) error {
	if customerID == "" {
		return errors.ErrMissingCustomer
	}
	if id == "" {
		return errors.ErrInvalidSavingID
	}
	return nil
}

func validateAmount(amount *money.Amount) (money.Amount, error) {
	if amount == nil || !amount.IsPositive() {
		return money.Zero, errors.ErrInvalidAmount
	}
	if amount.GreaterThan(money.MaxAmount) {
		return money.Zero, errors.NewValidationError("amount", "must not exceed "+money.MaxAmount.String())
	}
	return *amount, nil
}

// checkBalanceLimit rejects a credit that would push a balance past what the
// balance column can hold.
func checkBalanceLimit(balance money.Amount) error {
	if balance.GreaterThan(money.MaxAmount) {
		return errors.NewValidationError("amount", "resulting balance would exceed "+money.MaxAmount.String())
	}
	return nil
}

func validateSavingRequest(req *models.SavingRequest) error {
	if strings.TrimSpace(req.AccountName) == "" {
		return errors.NewValidationError("accountName", "is required")
	}
	if strings.TrimSpace(req.AccountType) == "" {
		return errors.NewValidationError("accountType", "is required")
	}
	if req.Balance == nil {
		return errors.NewValidationError("balance", "is required")
	}
	if req.Balance.IsNegative() {
		return errors.NewValidationError("balance", "must not be negative")
	}
	if req.Balance.GreaterThan(money.MaxAmount) {
		return errors.NewValidationError("balance", "must not exceed "+money.MaxAmount.String())
	}
	if req.InterestRate != nil {
		if req.InterestRate.IsNegative() {
			return errors.NewValidationError("interestRate", "must not be negative")
		}
		if req.InterestRate.GreaterThan(money.MaxRate) {
			return errors.NewValidationError("interestRate", "must not exceed "+money.MaxRate.String())
		}
	}
	if req.Goal != nil {
		if req.Goal.IsNegative() {
			return errors.NewValidationError("goal", "must not be negative")
		}
		if req.Goal.GreaterThan(money.MaxAmount) {
			return errors.NewValidationError("goal", "must not exceed "+money.MaxAmount.String())
		}
	}
	return nil
}

func applySavingRequest(saving *models.Saving, req *models.SavingRequest) {
	saving.Name = strings.TrimSpace(req.AccountName)
	saving.AccountType = strings.TrimSpace(req.AccountType)
	saving.Balance = *req.Balance
	saving.InterestRate = req.InterestRate
	saving.Goal = req.Goal
	saving.Description = req.Description
}

func checkOwner(saving *models.Saving, customerID string) error {
	if saving == nil {
		return errors.ErrSavingNotFound
	}
	if saving.CustomerID != customerID {
		return errors.ErrForbidden
	}
	return nil
}

func lockOrder(a, b string) []string {
	if b < a {
		return []string{b, a}
	}
	return []string{a, b}
}

// storageError wraps err unless it already carries a domain meaning.
func storageError(operation string, err error) error {
	if errors.IsNotFound(err) || errors.IsForbidden(err) || errors.IsInsufficientFunds(err) ||
		errors.IsValidationError(err) || errors.IsStorageError(err) {
		return err
	}
	return errors.NewStorageError(operation, err)
}
