package firestoredb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fintrack/internal/domain/transaction"
)

const autoIDLength = 20

// TransactionStore keeps transactions in a Firestore collection, one document
// per transaction, keyed by Firestore auto-IDs.
type TransactionStore struct {
	client *firestore.Client
	coll   *firestore.CollectionRef
}

func NewTransactionStore(client *firestore.Client, collection string) *TransactionStore {
	return &TransactionStore{client: client, coll: client.Collection(collection)}
}

// ParseID accepts 20-character alphanumeric document IDs.
func (s *TransactionStore) ParseID(raw string) (string, error) {
	if len(raw) != autoIDLength {
		return "", transaction.ErrInvalidID
	}
	for _, r := range raw {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "", transaction.ErrInvalidID
		}
	}
	return raw, nil
}

// ListByEmail filters on the owner only and orders in process, so no
// composite index is needed.
func (s *TransactionStore) ListByEmail(ctx context.Context, email string) ([]*transaction.Transaction, error) {
	iter := s.coll.Where(transaction.KeyEmail, "==", email).Documents(ctx)
	defer iter.Stop()

	var transactions []*transaction.Transaction
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}

		t, err := fromData(snap.Ref.ID, snap.Data())
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}

	sort.SliceStable(transactions, func(i, j int) bool {
		a, b := transactions[i], transactions[j]
		if a.Fields.DateKey() != b.Fields.DateKey() {
			return a.Fields.DateKey() > b.Fields.DateKey()
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return transactions, nil
}

func (s *TransactionStore) GetByID(ctx context.Context, id, email string) (*transaction.Transaction, error) {
	snap, err := s.coll.Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	data := snap.Data()
	if owner, _ := data[transaction.KeyEmail].(string); owner != email {
		return nil, nil
	}
	return fromData(snap.Ref.ID, data)
}

func (s *TransactionStore) Create(ctx context.Context, t *transaction.Transaction) (string, error) {
	data := toData(t.Fields.Values())
	data[transaction.KeyEmail] = t.Email
	data[transaction.KeyCreatedAt] = t.CreatedAt

	ref := s.coll.NewDoc()
	if _, err := ref.Create(ctx, data); err != nil {
		return "", fmt.Errorf("failed to insert transaction: %w", err)
	}
	return ref.ID, nil
}

// Update checks ownership and applies the patch inside one Firestore
// transaction. Each supplied top-level field is replaced as a whole.
func (s *TransactionStore) Update(ctx context.Context, id, email string, patch transaction.Fields, updatedAt time.Time) (*transaction.UpdateResult, error) {
	ref := s.coll.Doc(id)
	result := &transaction.UpdateResult{Acknowledged: true}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result.MatchedCount, result.ModifiedCount = 0, 0

		owned, err := ownedBy(tx, ref, email)
		if err != nil || !owned {
			return err
		}

		values := toData(patch.Values())
		updates := make([]firestore.Update, 0, len(values)+1)
		for k, v := range values {
			updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
		}
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{transaction.KeyUpdatedAt}, Value: updatedAt})

		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		result.MatchedCount, result.ModifiedCount = 1, 1
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	return result, nil
}

func (s *TransactionStore) Delete(ctx context.Context, id, email string) (int64, error) {
	ref := s.coll.Doc(id)
	var deleted int64

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		deleted = 0

		owned, err := ownedBy(tx, ref, email)
		if err != nil || !owned {
			return err
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		deleted = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete transaction: %w", err)
	}
	return deleted, nil
}

func ownedBy(tx *firestore.Transaction, ref *firestore.DocumentRef, email string) (bool, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	owner, _ := snap.Data()[transaction.KeyEmail].(string)
	return owner == email, nil
}

// toData converts domain values to Firestore types. Firestore has no decimal
// type, so amounts are stored as doubles.
func toData(values map[string]any) map[string]any {
	data := make(map[string]any, len(values)+2)
	for k, v := range values {
		if d, ok := v.(decimal.Decimal); ok {
			data[k] = d.InexactFloat64()
			continue
		}
		data[k] = v
	}
	return data
}

func fromData(id string, data map[string]any) (*transaction.Transaction, error) {
	t := &transaction.Transaction{ID: id}
	t.Email, _ = data[transaction.KeyEmail].(string)
	if ts, ok := data[transaction.KeyCreatedAt].(time.Time); ok {
		t.CreatedAt = ts.UTC()
	}
	if ts, ok := data[transaction.KeyUpdatedAt].(time.Time); ok {
		t.UpdatedAt = ts.UTC()
	}

	fields, err := transaction.ParseFields(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", id, err)
	}
	t.Fields = fields
	return t, nil
}

var _ transaction.Repository = (*TransactionStore)(nil)
