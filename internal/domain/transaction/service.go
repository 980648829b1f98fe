package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Service enforces ownership on every transaction operation before handing
// the call to the repository.
type Service struct {
	repo Repository
	log  logrus.FieldLogger
	now  func() time.Time
}

// NewService creates a transaction service. A nil repo yields a service that
// answers every call with ErrUnavailable.
func NewService(repo Repository, log logrus.FieldLogger) *Service {
	return &Service{
		repo: repo,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// List returns the records owned by ownerEmail. Callers may only list their own records.
func (s *Service) List(ctx context.Context, ownerEmail, callerEmail string) ([]*Transaction, error) {
	if s.repo == nil {
		return nil, ErrUnavailable
	}
	if ownerEmail == "" {
		return nil, fmt.Errorf("%w: email query parameter is required", ErrInvalidArgument)
	}
	if ownerEmail != callerEmail {
		return nil, ErrForbidden
	}

	transactions, err := s.repo.ListByEmail(ctx, ownerEmail)
	if err != nil {
		return nil, s.internal("list", "", ownerEmail, err)
	}
	if transactions == nil {
		transactions = []*Transaction{}
	}
	return transactions, nil
}

// GetByID returns the caller's record with the given id. Records owned by
// someone else are reported as not found.
func (s *Service) GetByID(ctx context.Context, rawID, callerEmail string) (*Transaction, error) {
	if s.repo == nil {
		return nil, ErrUnavailable
	}
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}

	t, err := s.repo.GetByID(ctx, id, callerEmail)
	if err != nil {
		return nil, s.internal("get", id, callerEmail, err)
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

// Create stores a new record owned by the caller.
func (s *Service) Create(ctx context.Context, payload Fields, callerEmail string) (*InsertResult, error) {
	if s.repo == nil {
		return nil, ErrUnavailable
	}
	if payload.IsEmpty() {
		return nil, fmt.Errorf("%w: transaction body is empty", ErrInvalidArgument)
	}

	t := &Transaction{
		Email:     callerEmail,
		CreatedAt: s.now(),
		Fields:    payload,
	}

	id, err := s.repo.Create(ctx, t)
	if err != nil {
		return nil, s.internal("create", "", callerEmail, err)
	}

	s.log.WithFields(logrus.Fields{"op": "create", "id": id}).Debug("transaction created")
	return &InsertResult{Acknowledged: true, InsertedID: id}, nil
}

// Update merges patch into the caller's record. Ownership and identifiers
// cannot be changed through this path.
func (s *Service) Update(ctx context.Context, rawID string, patch Fields, callerEmail string) (*UpdateResult, error) {
	if s.repo == nil {
		return nil, ErrUnavailable
	}
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}

	result, err := s.repo.Update(ctx, id, callerEmail, patch, s.now())
	if err != nil {
		return nil, s.internal("update", id, callerEmail, err)
	}
	if result == nil || result.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Delete permanently removes the caller's record.
func (s *Service) Delete(ctx context.Context, rawID, callerEmail string) (*DeleteResult, error) {
	if s.repo == nil {
		return nil, ErrUnavailable
	}
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}

	deleted, err := s.repo.Delete(ctx, id, callerEmail)
	if err != nil {
		return nil, s.internal("delete", id, callerEmail, err)
	}
	if deleted == 0 {
		return nil, ErrNotFound
	}
	return &DeleteResult{Acknowledged: true, DeletedCount: deleted}, nil
}

func (s *Service) parseID(raw string) (string, error) {
	id, err := s.repo.ParseID(raw)
	if err != nil {
		if errors.Is(err, ErrInvalidID) {
			return "", fmt.Errorf("%w: invalid transaction id", ErrInvalidArgument)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return id, nil
}

func (s *Service) internal(op, id, email string, err error) error {
	s.log.WithFields(logrus.Fields{
		"op":    op,
		"id":    id,
		"email": email,
	}).WithError(err).Error("transaction store error")
	return fmt.Errorf("%w: %s transaction: %v", ErrInternal, op, err)
}
