package prompts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	ErrNullID    = errors.New("id cannot be null")
	ErrInvalidID = errors.New("id must be an integer or a string")
	ErrUnsetID   = errors.New("id is not set")
)

// ID identifies a template. Authors may use integers or strings; two ids are
// equal when their canonical text forms match, so 2 and "2" name the same
// template.
type ID struct {
	num   int64
	str   string
	isNum bool
}

// IntID returns a numeric id.
func IntID(n int64) ID {
	return ID{num: n, isNum: true}
}

// StringID returns a string id.
func StringID(s string) ID {
	return ID{str: s}
}

// ParseID converts a decoded JSON (or YAML) value into an ID.
func ParseID(v any) (ID, error) {
	switch n := v.(type) {
	case nil:
		return ID{}, ErrNullID
	case ID:
		if n == (ID{}) {
			return ID{}, ErrUnsetID
		}
		return n, nil
	case string:
		return StringID(n), nil
	case int:
		return IntID(int64(n)), nil
	case int32:
		return IntID(int64(n)), nil
	case int64:
		return IntID(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return ID{}, ErrInvalidID
		}
		return IntID(int64(n)), nil
	case uint64:
		if n > math.MaxInt64 {
			return ID{}, ErrInvalidID
		}
		return IntID(int64(n)), nil
	case float32:
		return floatID(float64(n))
	case float64:
		return floatID(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return IntID(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return ID{}, ErrInvalidID
		}
		return floatID(f)
	default:
		return ID{}, ErrInvalidID
	}
}

func floatID(f float64) (ID, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return ID{}, ErrInvalidID
	}
	return IntID(int64(f)), nil
}

// String returns the canonical text form used for comparison.
func (id ID) String() string {
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// IsNumeric reports whether the id was authored as a number.
func (id ID) IsNumeric() bool {
	return id.isNum
}

// Equal compares canonical forms.
func (id ID) Equal(other ID) bool {
	return id.String() == other.String()
}

// Value returns the id as an int64 or a string, the way it was authored.
func (id ID) Value() any {
	if id.isNum {
		return id.num
	}
	return id.str
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.isNum {
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
	return json.Marshal(id.str)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	parsed, err := ParseID(v)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
