package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/domain/transaction"
)

// TransactionStore keeps transactions in process memory. It is meant for local
// development and tests; nothing survives a restart.
type TransactionStore struct {
	mu      sync.RWMutex
	records map[string]*transaction.Transaction
	order   []string // insertion order, used to keep List stable on equal dates
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{records: make(map[string]*transaction.Transaction)}
}

// ParseID accepts canonical UUID strings.
func (s *TransactionStore) ParseID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", transaction.ErrInvalidID
	}
	return id.String(), nil
}

func (s *TransactionStore) ListByEmail(ctx context.Context, email string) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*transaction.Transaction
	for _, id := range s.order {
		if t := s.records[id]; t.Email == email {
			result = append(result, clone(t))
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Fields.DateKey() > result[j].Fields.DateKey()
	})
	return result, nil
}

func (s *TransactionStore) GetByID(ctx context.Context, id, email string) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.records[id]
	if !ok || t.Email != email {
		return nil, nil
	}
	return clone(t), nil
}

func (s *TransactionStore) Create(ctx context.Context, t *transaction.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := clone(t)
	stored.ID = uuid.NewString()
	s.records[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return stored.ID, nil
}

func (s *TransactionStore) Update(ctx context.Context, id, email string, patch transaction.Fields, updatedAt time.Time) (*transaction.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.records[id]
	if !ok || t.Email != email {
		return &transaction.UpdateResult{Acknowledged: true}, nil
	}

	t.Fields = t.Fields.Merge(patch)
	t.UpdatedAt = updatedAt
	return &transaction.UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
}

func (s *TransactionStore) Delete(ctx context.Context, id, email string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.records[id]
	if !ok || t.Email != email {
		return 0, nil
	}

	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

func clone(t *transaction.Transaction) *transaction.Transaction {
	c := *t
	c.Fields = t.Fields.Merge(transaction.Fields{})
	return &c
}

var _ transaction.Repository = (*TransactionStore)(nil)
