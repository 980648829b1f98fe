package transaction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Document keys shared by every store.
const (
	KeyID          = "id"
	KeyMongoID     = "_id"
	KeyEmail       = "email"
	KeyDate        = "date"
	KeyAmount      = "amount"
	KeyType        = "type"
	KeyCategory    = "category"
	KeyDescription = "description"
	KeyCreatedAt   = "createdAt"
	KeyUpdatedAt   = "updatedAt"
)

// reservedKeys are owned by the server and never accepted from a request body.
var reservedKeys = map[string]struct{}{
	KeyID:        {},
	KeyMongoID:   {},
	KeyEmail:     {},
	KeyCreatedAt: {},
	KeyUpdatedAt: {},
}

// Fields is the caller-controlled part of a transaction: a set of known,
// typed fields plus an open map for anything else the client wants to keep.
// A nil pointer means the field was not supplied.
type Fields struct {
	Amount      *decimal.Decimal
	Type        *string
	Category    *string
	Description *string
	Date        *string
	Extra       map[string]any
}

// Transaction is a single record in the "my transactions" collection.
type Transaction struct {
	ID        string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    Fields
}

// InsertResult acknowledges a Create and carries the identifier the store assigned.
type InsertResult struct {
	Acknowledged bool   `json:"acknowledged"`
	InsertedID   string `json:"insertedId"`
}

// UpdateResult reports how many records an Update matched and changed.
type UpdateResult struct {
	Acknowledged  bool  `json:"acknowledged"`
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
}

// DeleteResult reports how many records a Delete removed.
type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}

// IsEmpty reports whether no field at all was supplied.
func (f Fields) IsEmpty() bool {
	return f.Amount == nil && f.Type == nil && f.Category == nil &&
		f.Description == nil && f.Date == nil && len(f.Extra) == 0
}

// DateKey returns the ordering key used by List. Records without a date sort last.
func (f Fields) DateKey() string {
	if f.Date == nil {
		return ""
	}
	return *f.Date
}

// Values flattens the fields into a document map. The amount is kept as a
// decimal.Decimal; stores convert it to their native numeric type.
func (f Fields) Values() map[string]any {
	values := make(map[string]any, len(f.Extra)+5)
	for k, v := range f.Extra {
		values[k] = v
	}
	if f.Amount != nil {
		values[KeyAmount] = *f.Amount
	}
	if f.Type != nil {
		values[KeyType] = *f.Type
	}
	if f.Category != nil {
		values[KeyCategory] = *f.Category
	}
	if f.Description != nil {
		values[KeyDescription] = *f.Description
	}
	if f.Date != nil {
		values[KeyDate] = *f.Date
	}
	return values
}

// Merge applies a partial patch: supplied fields overwrite, everything else is kept.
func (f Fields) Merge(patch Fields) Fields {
	merged := f
	merged.Extra = make(map[string]any, len(f.Extra)+len(patch.Extra))
	for k, v := range f.Extra {
		merged.Extra[k] = v
	}
	for k, v := range patch.Extra {
		merged.Extra[k] = v
	}
	if patch.Amount != nil {
		merged.Amount = patch.Amount
	}
	if patch.Type != nil {
		merged.Type = patch.Type
	}
	if patch.Category != nil {
		merged.Category = patch.Category
	}
	if patch.Description != nil {
		merged.Description = patch.Description
	}
	if patch.Date != nil {
		merged.Date = patch.Date
	}
	return merged
}

// UnmarshalJSON decodes a request body. Reserved keys are dropped, known keys
// are type-checked and everything else lands in Extra.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*f = Fields{}
	for key, value := range raw {
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}

		switch key {
		case KeyAmount:
			if isNull(value) {
				continue
			}
			if !isNumber(value) {
				return fmt.Errorf("amount must be a number")
			}
			var d decimal.Decimal
			if err := d.UnmarshalJSON(value); err != nil {
				return fmt.Errorf("amount must be a number: %w", err)
			}
			f.Amount = &d
		case KeyType, KeyCategory, KeyDescription, KeyDate:
			if isNull(value) {
				continue
			}
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("%s must be a string", key)
			}
			f.setString(key, s)
		default:
			if err := validateExtraKey(key); err != nil {
				return err
			}
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if f.Extra == nil {
				f.Extra = make(map[string]any)
			}
			f.Extra[key] = v
		}
	}

	return nil
}

// ParseFields rebuilds Fields from a stored document. Reserved keys are ignored;
// callers read them separately.
func ParseFields(values map[string]any) (Fields, error) {
	var f Fields
	for key, value := range values {
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}

		switch key {
		case KeyAmount:
			if value == nil {
				continue
			}
			d, err := toDecimal(value)
			if err != nil {
				return Fields{}, err
			}
			f.Amount = &d
		case KeyType, KeyCategory, KeyDescription, KeyDate:
			s, ok := value.(string)
			if !ok {
				if value == nil {
					continue
				}
				s = fmt.Sprint(value)
			}
			f.setString(key, s)
		default:
			if f.Extra == nil {
				f.Extra = make(map[string]any)
			}
			f.Extra[key] = value
		}
	}
	return f, nil
}

// MarshalJSON renders the record as one flat object, the shape clients send in.
func (t Transaction) MarshalJSON() ([]byte, error) {
	doc := t.Fields.Values()
	if t.Fields.Amount != nil {
		doc[KeyAmount] = json.Number(t.Fields.Amount.String())
	}
	doc[KeyID] = t.ID
	doc[KeyEmail] = t.Email
	if !t.CreatedAt.IsZero() {
		doc[KeyCreatedAt] = t.CreatedAt
	}
	if !t.UpdatedAt.IsZero() {
		doc[KeyUpdatedAt] = t.UpdatedAt
	}
	return json.Marshal(doc)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var header struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}

	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*t = Transaction{
		ID:        header.ID,
		Email:     header.Email,
		CreatedAt: header.CreatedAt,
		UpdatedAt: header.UpdatedAt,
		Fields:    fields,
	}
	return nil
}

func (f *Fields) setString(key, value string) {
	v := value
	switch key {
	case KeyType:
		f.Type = &v
	case KeyCategory:
		f.Category = &v
	case KeyDescription:
		f.Description = &v
	case KeyDate:
		f.Date = &v
	}
}

// validateExtraKey rejects keys that document stores interpret as operators or paths.
func validateExtraKey(key string) error {
	if key == "" {
		return fmt.Errorf("field names must not be empty")
	}
	if strings.HasPrefix(key, "$") || strings.Contains(key, ".") {
		return fmt.Errorf("field name %q must not start with '$' or contain '.'", key)
	}
	return nil
}

// isNumber reports whether raw is a bare JSON number. decimal also accepts
// quoted numbers, which would not read back in the shape they were sent.
func isNumber(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return false
	}
	c := trimmed[0]
	return c == '-' || (c >= '0' && c <= '9')
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case *decimal.Decimal:
		return *v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int32:
		return decimal.NewFromInt32(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(v)
	default:
		s := fmt.Sprint(v)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return decimal.Decimal{}, fmt.Errorf("unsupported amount type %T", value)
		}
		return decimal.NewFromString(s)
	}
}
