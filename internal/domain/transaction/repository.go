package transaction

import (
	"context"
	"time"
)

// Repository is the storage collaborator behind the transaction service.
// Every lookup and write is scoped by the owner's email so that the ownership
// check and the operation happen in one single-document call.
type Repository interface {
	// ParseID validates and normalizes an identifier in the store's own format.
	// It returns ErrInvalidID without contacting the store.
	ParseID(raw string) (string, error)
	// ListByEmail returns every record owned by email, newest date first.
	ListByEmail(ctx context.Context, email string) ([]*Transaction, error)
	// GetByID returns nil, nil when no record matches both id and email.
	GetByID(ctx context.Context, id, email string) (*Transaction, error)
	// Create stores t and returns the identifier the store assigned.
	Create(ctx context.Context, t *Transaction) (string, error)
	// Update merges patch into the record matching id and email and stamps updatedAt.
	Update(ctx context.Context, id, email string, patch Fields, updatedAt time.Time) (*UpdateResult, error)
	// Delete removes the record matching id and email and returns how many were removed.
	Delete(ctx context.Context, id, email string) (int64, error)
}
