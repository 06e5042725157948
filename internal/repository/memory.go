package repository

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riteshkumar/savings-ledger/internal/errors"
	"github.com/riteshkumar/savings-ledger/internal/models"
	"github.com/riteshkumar/savings-ledger/internal/money"
)

// memoryState is one consistent version of the in-memory data.
type memoryState struct {
	savings map[string]models.Saving
	order   []string                              // saving ids, insertion order
	entries map[string][]models.SavingTransaction // by saving id, insertion order
	audit   []models.AuditLog
	nextID  int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		savings: make(map[string]models.Saving),
		entries: make(map[string][]models.SavingTransaction),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		savings: make(map[string]models.Saving, len(s.savings)),
		order:   append([]string(nil), s.order...),
		entries: make(map[string][]models.SavingTransaction, len(s.entries)),
		audit:   append([]models.AuditLog(nil), s.audit...),
		nextID:  s.nextID,
	}
	for id, saving := range s.savings {
		c.savings[id] = saving
	}
	for id, list := range s.entries {
		c.entries[id] = append([]models.SavingTransaction(nil), list...)
	}
	return c
}

type memTxKey struct{}

// MemoryStore keeps savings, ledger entries and audit logs in process memory.
// Each unit of work edits a private copy that replaces the committed state
// only when it succeeds, so readers never see half-applied changes. Units of
// work run one at a time.
type MemoryStore struct {
	writeMu   sync.Mutex
	mu        sync.RWMutex
	committed *memoryState
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		committed: newMemoryState(),
		now:       time.Now,
	}
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memoryState); ok {
		return fn(ctx)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	staged := m.committed.clone()
	m.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, staged)); err != nil {
		return err
	}

	m.mu.Lock()
	m.committed = staged
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) read(ctx context.Context, fn func(s *memoryState) error) error {
	if staged, ok := ctx.Value(memTxKey{}).(*memoryState); ok {
		return fn(staged)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.committed)
}

func (m *MemoryStore) write(ctx context.Context, fn func(s *memoryState) error) error {
	return m.WithinTx(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(memTxKey{}).(*memoryState))
	})
}

// Savings returns the store as a SavingRepository.
func (m *MemoryStore) Savings() SavingRepository { return memorySavings{m} }

// Transactions returns the store as a SavingTransactionRepository.
func (m *MemoryStore) Transactions() SavingTransactionRepository { return memoryTransactions{m} }

// Audit returns the store as an AuditRepository.
func (m *MemoryStore) Audit() AuditRepository { return memoryAudit{m} }

type memorySavings struct{ m *MemoryStore }

func (r memorySavings) Create(ctx context.Context, saving *models.Saving) error {
	if saving.ID == "" {
		saving.ID = uuid.New().String()
	}
	now := r.m.now()
	return r.m.write(ctx, func(s *memoryState) error {
		saving.CreatedAt = now
		saving.UpdatedAt = now
		s.savings[saving.ID] = cloneSaving(*saving)
		s.order = append(s.order, saving.ID)
		return nil
	})
}

func (r memorySavings) GetByID(ctx context.Context, id string) (*models.Saving, error) {
	var out *models.Saving
	err := r.m.read(ctx, func(s *memoryState) error {
		saving, ok := s.savings[id]
		if !ok {
			return errors.ErrSavingNotFound
		}
		out = ptrSaving(saving)
		return nil
	})
	return out, err
}

// GetByIDForUpdate needs no row lock: units of work are already serialized.
func (r memorySavings) GetByIDForUpdate(ctx context.Context, id string) (*models.Saving, error) {
	return r.GetByID(ctx, id)
}

func (r memorySavings) ListByCustomer(ctx context.Context, customerID string) ([]*models.Saving, error) {
	out := []*models.Saving{}
	err := r.m.read(ctx, func(s *memoryState) error {
		for i := len(s.order) - 1; i >= 0; i-- {
			saving, ok := s.savings[s.order[i]]
			if !ok || saving.CustomerID != customerID {
				continue
			}
			out = append(out, ptrSaving(saving))
		}
		return nil
	})
	return out, err
}

func (r memorySavings) Update(ctx context.Context, saving *models.Saving) error {
	now := r.m.now()
	return r.m.write(ctx, func(s *memoryState) error {
		existing, ok := s.savings[saving.ID]
		if !ok {
			return errors.ErrSavingNotFound
		}
		saving.CustomerID = existing.CustomerID
		saving.CreatedAt = existing.CreatedAt
		saving.UpdatedAt = now
		s.savings[saving.ID] = cloneSaving(*saving)
		return nil
	})
}

func (r memorySavings) UpdateBalance(ctx context.Context, id string, balance money.Amount) error {
	now := r.m.now()
	return r.m.write(ctx, func(s *memoryState) error {
		saving, ok := s.savings[id]
		if !ok {
			return errors.ErrSavingNotFound
		}
		saving.Balance = balance
		saving.UpdatedAt = now
		s.savings[id] = saving
		return nil
	})
}

func (r memorySavings) Delete(ctx context.Context, id string) error {
	return r.m.write(ctx, func(s *memoryState) error {
		if _, ok := s.savings[id]; !ok {
			return errors.ErrSavingNotFound
		}
		if len(s.entries[id]) > 0 {
			return errors.NewStorageError("delete saving", errLedgerNotEmpty)
		}
		delete(s.savings, id)
		for i, sid := range s.order {
			if sid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return nil
	})
}

type memoryTransactions struct{ m *MemoryStore }

func (r memoryTransactions) Create(ctx context.Context, transaction *models.SavingTransaction) error {
	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}
	now := r.m.now()
	return r.m.write(ctx, func(s *memoryState) error {
		if _, ok := s.savings[transaction.SavingID]; !ok {
			return errors.ErrSavingNotFound
		}
		transaction.CreatedAt = now
		s.entries[transaction.SavingID] = append(s.entries[transaction.SavingID], cloneEntry(*transaction))
		return nil
	})
}

func (r memoryTransactions) ListBySaving(ctx context.Context, savingID string) ([]*models.SavingTransaction, error) {
	out := []*models.SavingTransaction{}
	err := r.m.read(ctx, func(s *memoryState) error {
		list := s.entries[savingID]
		for i := len(list) - 1; i >= 0; i-- {
			entry := cloneEntry(list[i])
			out = append(out, &entry)
		}
		return nil
	})
	return out, err
}

func (r memoryTransactions) DeleteBySaving(ctx context.Context, savingID string) error {
	return r.m.write(ctx, func(s *memoryState) error {
		delete(s.entries, savingID)
		return nil
	})
}

type memoryAudit struct{ m *MemoryStore }

func (r memoryAudit) Create(ctx context.Context, log *models.AuditLog) error {
	now := r.m.now()
	return r.m.write(ctx, func(s *memoryState) error {
		s.nextID++
		log.ID = strconv.FormatInt(s.nextID, 10)
		log.CreatedAt = now
		s.audit = append(s.audit, *log)
		return nil
	})
}

func (r memoryAudit) GetByEntityID(ctx context.Context, entityType, entityID string) ([]*models.AuditLog, error) {
	var logs []*models.AuditLog
	err := r.m.read(ctx, func(s *memoryState) error {
		for i := len(s.audit) - 1; i >= 0; i-- {
			log := s.audit[i]
			if log.EntityType == entityType && log.EntityID == entityID {
				logs = append(logs, &log)
			}
		}
		return nil
	})
	return logs, err
}

// cloneSaving copies the pointer fields so callers never share memory with
// the stored state.
func cloneSaving(saving models.Saving) models.Saving {
	if saving.InterestRate != nil {
		rate := *saving.InterestRate
		saving.InterestRate = &rate
	}
	if saving.Goal != nil {
		goal := *saving.Goal
		saving.Goal = &goal
	}
	saving.Description = cloneString(saving.Description)
	return saving
}

func ptrSaving(saving models.Saving) *models.Saving {
	c := cloneSaving(saving)
	return &c
}

func cloneEntry(entry models.SavingTransaction) models.SavingTransaction {
	entry.Description = cloneString(entry.Description)
	return entry
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

var errLedgerNotEmpty = stderrors.New("saving still has ledger entries")
