package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fintrack/internal/domain/transaction"
)

// TransactionStore keeps transactions as documents in a MongoDB collection,
// keyed by ObjectID.
type TransactionStore struct {
	coll *mongo.Collection
}

func NewTransactionStore(coll *mongo.Collection) *TransactionStore {
	return &TransactionStore{coll: coll}
}

// ParseID accepts 24-character hex ObjectIDs.
func (s *TransactionStore) ParseID(raw string) (string, error) {
	oid, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return "", transaction.ErrInvalidID
	}
	return oid.Hex(), nil
}

func (s *TransactionStore) ListByEmail(ctx context.Context, email string) ([]*transaction.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: transaction.KeyDate, Value: -1}})

	cursor, err := s.coll.Find(ctx, bson.M{transaction.KeyEmail: email}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	transactions := make([]*transaction.Transaction, 0, len(docs))
	for _, doc := range docs {
		t, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, nil
}

func (s *TransactionStore) GetByID(ctx context.Context, id, email string) (*transaction.Transaction, error) {
	filter, err := ownedFilter(id, email)
	if err != nil {
		return nil, err
	}

	var doc bson.M
	err = s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return fromDocument(doc)
}

func (s *TransactionStore) Create(ctx context.Context, t *transaction.Transaction) (string, error) {
	doc, err := toDocument(t.Fields.Values())
	if err != nil {
		return "", err
	}
	doc[transaction.KeyEmail] = t.Email
	doc[transaction.KeyCreatedAt] = t.CreatedAt

	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert transaction: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (s *TransactionStore) Update(ctx context.Context, id, email string, patch transaction.Fields, updatedAt time.Time) (*transaction.UpdateResult, error) {
	filter, err := ownedFilter(id, email)
	if err != nil {
		return nil, err
	}

	set, err := toDocument(patch.Values())
	if err != nil {
		return nil, err
	}
	set[transaction.KeyUpdatedAt] = updatedAt

	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	return &transaction.UpdateResult{
		Acknowledged:  true,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
	}, nil
}

func (s *TransactionStore) Delete(ctx context.Context, id, email string) (int64, error) {
	filter, err := ownedFilter(id, email)
	if err != nil {
		return 0, err
	}

	res, err := s.coll.DeleteOne(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transaction: %w", err)
	}
	return res.DeletedCount, nil
}

func ownedFilter(id, email string) (bson.M, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, transaction.ErrInvalidID
	}
	return bson.M{"_id": oid, transaction.KeyEmail: email}, nil
}

// toDocument converts domain values to BSON-friendly ones. Amounts are stored
// as Decimal128 so no precision is lost.
func toDocument(values map[string]any) (bson.M, error) {
	doc := make(bson.M, len(values)+2)
	for k, v := range values {
		if d, ok := v.(decimal.Decimal); ok {
			dec, err := primitive.ParseDecimal128(d.String())
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s: %w", k, err)
			}
			doc[k] = dec
			continue
		}
		doc[k] = v
	}
	return doc, nil
}

func fromDocument(doc bson.M) (*transaction.Transaction, error) {
	t := &transaction.Transaction{}

	if oid, ok := doc["_id"].(primitive.ObjectID); ok {
		t.ID = oid.Hex()
	}
	t.Email, _ = doc[transaction.KeyEmail].(string)
	t.CreatedAt = toTime(doc[transaction.KeyCreatedAt])
	t.UpdatedAt = toTime(doc[transaction.KeyUpdatedAt])

	values := make(map[string]any, len(doc))
	for k, v := range doc {
		if dec, ok := v.(primitive.Decimal128); ok {
			d, err := decimal.NewFromString(dec.String())
			if err != nil {
				return nil, fmt.Errorf("failed to decode %s of %s: %w", k, t.ID, err)
			}
			values[k] = d
			continue
		}
		values[k] = normalize(v)
	}

	fields, err := transaction.ParseFields(values)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", t.ID, err)
	}
	t.Fields = fields
	return t, nil
}

// normalize turns nested BSON containers into plain maps and slices so they
// encode to JSON the same way the client sent them.
func normalize(v any) any {
	switch val := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = normalize(e)
		}
		return m
	case primitive.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	default:
		return v
	}
}

func toTime(v any) time.Time {
	switch ts := v.(type) {
	case primitive.DateTime:
		return ts.Time().UTC()
	case time.Time:
		return ts.UTC()
	default:
		return time.Time{}
	}
}

var _ transaction.Repository = (*TransactionStore)(nil)
