package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/domain/transaction"
)

// TransactionStore keeps each transaction as a JSONB document in the
// my_transactions table. Owner and timestamps live in their own columns.
type TransactionStore struct {
	db *DB
}

func NewTransactionStore(db *DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// ParseID accepts UUIDs.
func (s *TransactionStore) ParseID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", transaction.ErrInvalidID
	}
	return id.String(), nil
}

func (s *TransactionStore) ListByEmail(ctx context.Context, email string) ([]*transaction.Transaction, error) {
	query := `
		SELECT id, email, data, created_at, updated_at
		FROM my_transactions
		WHERE email = $1
		ORDER BY data->>'date' DESC NULLS LAST, created_at
	`

	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return transactions, nil
}

func (s *TransactionStore) GetByID(ctx context.Context, id, email string) (*transaction.Transaction, error) {
	query := `
		SELECT id, email, data, created_at, updated_at
		FROM my_transactions
		WHERE id = $1 AND email = $2
	`

	t, err := scanTransaction(s.db.QueryRowContext(ctx, query, id, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TransactionStore) Create(ctx context.Context, t *transaction.Transaction) (string, error) {
	data, err := encodeData(t.Fields)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO my_transactions (id, email, data, created_at) VALUES ($1, $2, $3, $4)`,
		id, t.Email, data, t.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert transaction: %w", err)
	}

	return id, nil
}

func (s *TransactionStore) Update(ctx context.Context, id, email string, patch transaction.Fields, updatedAt time.Time) (*transaction.UpdateResult, error) {
	data, err := encodeData(patch)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE my_transactions
		SET data = data || $3::jsonb,
		    updated_at = $4
		WHERE id = $1 AND email = $2
	`

	res, err := s.db.ExecContext(ctx, query, id, email, data, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read update result: %w", err)
	}

	return &transaction.UpdateResult{Acknowledged: true, MatchedCount: n, ModifiedCount: n}, nil
}

func (s *TransactionStore) Delete(ctx context.Context, id, email string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM my_transactions WHERE id = $1 AND email = $2`,
		id, email,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*transaction.Transaction, error) {
	var (
		t         transaction.Transaction
		data      []byte
		updatedAt sql.NullTime
	)

	if err := row.Scan(&t.ID, &t.Email, &data, &t.CreatedAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	if updatedAt.Valid {
		t.UpdatedAt = updatedAt.Time.UTC()
	}
	t.CreatedAt = t.CreatedAt.UTC()

	fields, err := decodeData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", t.ID, err)
	}
	t.Fields = fields
	return &t, nil
}

// encodeData renders fields as a JSON object. Amounts are written as JSON
// numbers with their full decimal text so JSONB keeps them exact.
func encodeData(f transaction.Fields) ([]byte, error) {
	values := f.Values()
	if d, ok := values[transaction.KeyAmount].(decimal.Decimal); ok {
		values[transaction.KeyAmount] = json.Number(d.String())
	}

	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction data: %w", err)
	}
	return data, nil
}

func decodeData(data []byte) (transaction.Fields, error) {
	values := map[string]any{}
	if len(data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&values); err != nil {
			return transaction.Fields{}, err
		}
	}
	return transaction.ParseFields(values)
}

var _ transaction.Repository = (*TransactionStore)(nil)
