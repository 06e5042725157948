package models

import (
	"encoding/json"
	"time"

	"github.com/riteshkumar/savings-ledger/internal/money"
)

type Saving struct {
	ID           string        `json:"id"`
	CustomerID   string        `json:"-"`
	Name         string        `json:"name"`
	AccountType  string        `json:"accountType"`
	Balance      money.Amount  `json:"balance"`
	InterestRate *money.Rate   `json:"interestRate"`
	Goal         *money.Amount `json:"goal"`
	Description  *string       `json:"description"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// TransactionType is the kind of a ledger entry.
type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "deposit"
	TransactionTypeWithdrawal  TransactionType = "withdrawal"
	TransactionTypeTransferIn  TransactionType = "transfer_in"
	TransactionTypeTransferOut TransactionType = "transfer_out"
)

// Credits reports whether the entry adds to the balance.
func (t TransactionType) Credits() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeTransferIn
}

// SavingTransaction is an append-only ledger entry of a saving.
type SavingTransaction struct {
	ID          string          `json:"id"`
	SavingID    string          `json:"-"`
	Type        TransactionType `json:"type"`
	Amount      money.Amount    `json:"amount"`
	Description *string         `json:"description"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type AuditLog struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	OldValue   json.RawMessage `json:"old_value"`
	NewValue   json.RawMessage `json:"new_value"`
	CreatedAt  time.Time       `json:"created_at"`
}

const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
	AuditActionDelete = "DELETE"
)

const (
	EntityTypeSaving = "SAVING"
)

// SavingRequest is the create/update payload. Pointers distinguish a missing
// field from a zero value.
type SavingRequest struct {
	AccountName  string        `json:"accountName"`
	AccountType  string        `json:"accountType"`
	Balance      *money.Amount `json:"balance"`
	InterestRate *money.Rate   `json:"interestRate"`
	Goal         *money.Amount `json:"goal"`
	Description  *string       `json:"description"`
}

type AmountRequest struct {
	Amount      *money.Amount `json:"amount"`
	Description *string       `json:"description"`
}

type TransferRequest struct {
	FromID      string        `json:"fromId"`
	ToID        string        `json:"toId"`
	Amount      *money.Amount `json:"amount"`
	Description *string       `json:"description"`
}

// ProjectionEntry is one month of a simulated interest projection.
type ProjectionEntry struct {
	Month    string       `json:"month"`
	Interest money.Amount `json:"interest"`
	Balance  money.Amount `json:"balance"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SavingSnapshot is the audit representation of a saving.
type SavingSnapshot struct {
	ID           string        `json:"id"`
	CustomerID   string        `json:"customer_id"`
	Name         string        `json:"name"`
	AccountType  string        `json:"account_type"`
	Balance      money.Amount  `json:"balance"`
	InterestRate *money.Rate   `json:"interest_rate"`
	Goal         *money.Amount `json:"goal"`
}

func NewSavingSnapshot(s *Saving) SavingSnapshot {
	return SavingSnapshot{
		ID:           s.ID,
		CustomerID:   s.CustomerID,
		Name:         s.Name,
		AccountType:  s.AccountType,
		Balance:      s.Balance,
		InterestRate: s.InterestRate,
		Goal:         s.Goal,
	}
}
