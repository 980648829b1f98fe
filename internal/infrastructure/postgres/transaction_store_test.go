package postgres

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fintrack/internal/domain/transaction"
)

func TestEncodeDecodeData_KeepsAmountExact(t *testing.T) {
	amount := decimal.RequireFromString("0.10000000000000000001")
	category := "food"

	data, err := encodeData(transaction.Fields{
		Amount:   &amount,
		Category: &category,
		Extra:    map[string]any{"qty": 3},
	})
	if err != nil {
		t.Fatalf("encodeData() failed: %v", err)
	}
	if !strings.Contains(string(data), `"amount":0.10000000000000000001`) {
		t.Errorf("encodeData() = %s, want amount as an exact JSON number", data)
	}

	got, err := decodeData(data)
	if err != nil {
		t.Fatalf("decodeData() failed: %v", err)
	}
	if got.Amount == nil || !got.Amount.Equal(amount) {
		t.Errorf("Amount = %v, want %v", got.Amount, amount)
	}
	if got.Category == nil || *got.Category != "food" {
		t.Errorf("Category = %v, want food", got.Category)
	}
	if got.Extra["qty"] == nil {
		t.Error("Extra[qty] lost")
	}
}

func TestDecodeData_Empty(t *testing.T) {
	got, err := decodeData(nil)
	if err != nil {
		t.Fatalf("decodeData(nil) failed: %v", err)
	}
	if !got.IsEmpty() {
		t.Errorf("decodeData(nil) = %+v, want empty fields", got)
	}
}

func TestParseID(t *testing.T) {
	s := NewTransactionStore(nil)
	if _, err := s.ParseID("65a1f0c2e4b0a1b2c3d4e5f6"); !errors.Is(err, transaction.ErrInvalidID) {
		t.Errorf("ParseID(ObjectID) error = %v, want ErrInvalidID", err)
	}
	if _, err := s.ParseID("6f9619ff-8b86-d011-b42d-00c04fc964ff"); err != nil {
		t.Errorf("ParseID(uuid) unexpected error: %v", err)
	}
}
