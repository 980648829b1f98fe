package transaction

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFields_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		wantEmpty bool
		check     func(t *testing.T, f Fields)
	}{
		{
			name: "Known and extra fields",
			body: `{"amount": 12.50, "type": "expense", "category": "food", "description": "lunch", "date": "2024-01-01", "merchant": "Cafe", "tags": ["a"]}`,
			check: func(t *testing.T, f Fields) {
				if f.Amount == nil || !f.Amount.Equal(decimal.RequireFromString("12.5")) {
					t.Errorf("Amount = %v, want 12.5", f.Amount)
				}
				if f.Category == nil || *f.Category != "food" {
					t.Errorf("Category = %v, want food", f.Category)
				}
				if f.Extra["merchant"] != "Cafe" {
					t.Errorf("Extra[merchant] = %v, want Cafe", f.Extra["merchant"])
				}
				if _, ok := f.Extra["tags"].([]any); !ok {
					t.Errorf("Extra[tags] = %T, want []any", f.Extra["tags"])
				}
			},
		},
		{
			name: "Amount keeps decimal precision",
			body: `{"amount": 0.10000000000000000001}`,
			check: func(t *testing.T, f Fields) {
				if f.Amount == nil || f.Amount.String() != "0.10000000000000000001" {
					t.Errorf("Amount = %v, want 0.10000000000000000001", f.Amount)
				}
			},
		},
		{
			name:    "Quoted numeric amount",
			body:    `{"amount": "50", "date": "2024-01-01"}`,
			wantErr: true,
		},
		{
			name:    "Amount as boolean",
			body:    `{"amount": true}`,
			wantErr: true,
		},
		{
			name:      "Reserved keys only",
			body:      `{"email": "x@y.com", "_id": "1", "id": "2", "createdAt": "now", "updatedAt": "now"}`,
			wantEmpty: true,
		},
		{
			name:      "Null known fields are treated as absent",
			body:      `{"amount": null, "date": null}`,
			wantEmpty: true,
		},
		{
			name:      "Empty object",
			body:      `{}`,
			wantEmpty: true,
		},
		{
			name:    "Amount not a number",
			body:    `{"amount": "fifty"}`,
			wantErr: true,
		},
		{
			name:    "Epoch date",
			body:    `{"date": 1704067200000}`,
			wantErr: true,
		},
		{
			name:    "Description not a string",
			body:    `{"description": 10}`,
			wantErr: true,
		},
		{
			name:    "Operator key",
			body:    `{"$where": "1"}`,
			wantErr: true,
		},
		{
			name:    "Dotted key",
			body:    `{"a.b": 1}`,
			wantErr: true,
		},
		{
			name:    "Not an object",
			body:    `[1, 2]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Fields
			err := json.Unmarshal([]byte(tt.body), &f)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Unmarshal() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() unexpected error: %v", err)
			}
			if f.IsEmpty() != tt.wantEmpty {
				t.Errorf("IsEmpty() = %v, want %v", f.IsEmpty(), tt.wantEmpty)
			}
			if tt.check != nil {
				tt.check(t, f)
			}
		})
	}
}

func TestFields_Merge(t *testing.T) {
	amount := decimal.NewFromInt(10)
	category := "food"
	base := Fields{Amount: &amount, Category: &category, Extra: map[string]any{"note": "a", "keep": true}}

	newCategory := "travel"
	merged := base.Merge(Fields{Category: &newCategory, Extra: map[string]any{"note": "b"}})

	if *merged.Category != "travel" {
		t.Errorf("Category = %q, want travel", *merged.Category)
	}
	if !merged.Amount.Equal(amount) {
		t.Errorf("Amount = %v, want untouched 10", merged.Amount)
	}
	if merged.Extra["note"] != "b" || merged.Extra["keep"] != true {
		t.Errorf("Extra = %v, want note=b keep=true", merged.Extra)
	}
	if base.Extra["note"] != "a" {
		t.Error("Merge mutated the receiver's Extra map")
	}
}

func TestTransaction_JSON(t *testing.T) {
	amount := decimal.NewFromInt(50)
	date := "2024-01-01"
	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tx := Transaction{
		ID:        "abc",
		Email:     "a@x.com",
		CreatedAt: created,
		Fields:    Fields{Amount: &amount, Date: &date, Extra: map[string]any{"merchant": "Cafe"}},
	}

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	body := string(data)
	for _, want := range []string{`"amount":50`, `"date":"2024-01-01"`, `"email":"a@x.com"`, `"id":"abc"`, `"merchant":"Cafe"`} {
		if !strings.Contains(body, want) {
			t.Errorf("Marshal() = %s, missing %s", body, want)
		}
	}
	if strings.Contains(body, "updatedAt") {
		t.Errorf("Marshal() = %s, updatedAt should be omitted before the first update", body)
	}

	var back Transaction
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if back.ID != "abc" || back.Email != "a@x.com" || !back.CreatedAt.Equal(created) {
		t.Errorf("Unmarshal() header = %+v", back)
	}
	if back.Fields.Amount == nil || !back.Fields.Amount.Equal(amount) {
		t.Errorf("Unmarshal() amount = %v, want 50", back.Fields.Amount)
	}
}

func TestParseFields(t *testing.T) {
	f, err := ParseFields(map[string]any{
		"email":    "ignored@x.com",
		"amount":   json.Number("19.99"),
		"date":     "2024-03-01",
		"merchant": "Cafe",
	})
	if err != nil {
		t.Fatalf("ParseFields() failed: %v", err)
	}
	if f.Amount == nil || f.Amount.String() != "19.99" {
		t.Errorf("Amount = %v, want 19.99", f.Amount)
	}
	if f.DateKey() != "2024-03-01" {
		t.Errorf("DateKey() = %q, want 2024-03-01", f.DateKey())
	}
	if _, ok := f.Extra["email"]; ok {
		t.Error("reserved key leaked into Extra")
	}

	if _, err := ParseFields(map[string]any{"amount": []int{1}}); err == nil {
		t.Error("ParseFields() expected error for unsupported amount type")
	}
}
