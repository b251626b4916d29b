package field

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Value is a typed, not yet serialized value. The set of implementations is
// closed: Null, Int, Float, Decimal, String, Bool, Time, Bytes, UUID and JSON.
type Value interface {
	// Kind returns the natural column kind of the value.
	Kind() Kind
	// Arg returns the value in the form handed to database/sql drivers.
	Arg() any
	// String returns a human readable form, used in logs and error messages.
	String() string

	value()
}

type (
	// Null is the SQL NULL value.
	Null struct{}
	// Int is an integer value.
	Int int64
	// Float is a floating point value.
	Float float64
	// Decimal is an exact numeric value kept in its decimal text form.
	Decimal string
	// String is a character value.
	String string
	// Bool is a boolean value.
	Bool bool
	// Time is a timestamp or date value.
	Time time.Time
	// Bytes is a binary value.
	Bytes []byte
	// UUID is a UUID value.
	UUID uuid.UUID
	// JSON is an encoded JSON document.
	JSON json.RawMessage
)

func (Null) value()    {}
func (Int) value()     {}
func (Float) value()   {}
func (Decimal) value() {}
func (String) value()  {}
func (Bool) value()    {}
func (Time) value()    {}
func (Bytes) value()   {}
func (UUID) value()    {}
func (JSON) value()    {}

// Clone returns a copy of v that shares no memory with it.
func Clone(v Value) Value {
	switch v := v.(type) {
	case Bytes:
		return Bytes(slices.Clone([]byte(v)))
	case JSON:
		return JSON(slices.Clone([]byte(v)))
	default:
		return v
	}
}

// Kind implements Value.
func (Null) Kind() Kind { return KindInvalid }

// Kind implements Value.
func (Int) Kind() Kind { return KindBigInt }

// Kind implements Value.
func (Float) Kind() Kind { return KindFloat }

// Kind implements Value.
func (Decimal) Kind() Kind { return KindDecimal }

// Kind implements Value.
func (String) Kind() Kind { return KindText }

// Kind implements Value.
func (Bool) Kind() Kind { return KindBool }

// Kind implements Value.
func (Time) Kind() Kind { return KindTime }

// Kind implements Value.
func (Bytes) Kind() Kind { return KindBytes }

// Kind implements Value.
func (UUID) Kind() Kind { return KindUUID }

// Kind implements Value.
func (JSON) Kind() Kind { return KindJSON }

// Arg implements Value.
func (Null) Arg() any { return nil }

// Arg implements Value.
func (v Int) Arg() any { return int64(v) }

// Arg implements Value.
func (v Float) Arg() any { return float64(v) }

// Arg implements Value.
func (v Decimal) Arg() any { return string(v) }

// Arg implements Value.
func (v String) Arg() any { return string(v) }

// Arg implements Value.
func (v Bool) Arg() any { return bool(v) }

// Arg implements Value.
func (v Time) Arg() any { return time.Time(v) }

// Arg implements Value.
func (v Bytes) Arg() any { return []byte(v) }

// Arg implements Value.
func (v UUID) Arg() any { return uuid.UUID(v).String() }

// Arg implements Value.
func (v JSON) Arg() any { return []byte(v) }

func (Null) String() string      { return "NULL" }
func (v Int) String() string     { return strconv.FormatInt(int64(v), 10) }
func (v Float) String() string   { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Decimal) String() string { return string(v) }
func (v String) String() string  { return strconv.Quote(string(v)) }
func (v Bool) String() string    { return strconv.FormatBool(bool(v)) }
func (v Time) String() string    { return time.Time(v).UTC().Format(time.RFC3339Nano) }
func (v Bytes) String() string   { return fmt.Sprintf("bytes(%d)", len(v)) }
func (v UUID) String() string    { return uuid.UUID(v).String() }
func (v JSON) String() string    { return string(v) }

// ParseDecimal validates s as a decimal number and returns it as a value.
func ParseDecimal(s string) (Decimal, error) {
	if strings.Contains(s, "/") {
		return "", fmt.Errorf("field: invalid decimal %q", s)
	}
	if _, ok := new(big.Rat).SetString(s); !ok {
		return "", fmt.Errorf("field: invalid decimal %q", s)
	}
	return Decimal(s), nil
}

// FromAny converts a Go value decoded from a descriptor file or handed in by
// a caller into a Value. Integral float64 values, as produced by
// encoding/json, become Int.
func FromAny(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case int:
		return Int(v), nil
	case int8:
		return Int(v), nil
	case int16:
		return Int(v), nil
	case int32:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case uint8:
		return Int(v), nil
	case uint16:
		return Int(v), nil
	case uint32:
		return Int(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, fmt.Errorf("field: %d overflows int64", v)
		}
		return Int(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("field: %d overflows int64", v)
		}
		return Int(v), nil
	case float32:
		return Float(v), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return Int(v), nil
		}
		return Float(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return Int(n), nil
		}
		return ParseDecimal(v.String())
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case time.Time:
		return Time(v), nil
	case []byte:
		return Bytes(v), nil
	case uuid.UUID:
		return UUID(v), nil
	case json.RawMessage:
		return JSON(v), nil
	default:
		return nil, fmt.Errorf("field: unsupported value type %T", v)
	}
}

// Literal is the stable, self-describing encoding of a Value used by
// persisted migration plans.
type Literal struct {
	Type  string `json:"type" yaml:"type"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// ToLiteral encodes v.
func ToLiteral(v Value) Literal {
	switch v := v.(type) {
	case nil, Null:
		return Literal{Type: "null"}
	case Int:
		return Literal{Type: "int", Value: v.String()}
	case Float:
		return Literal{Type: "float", Value: v.String()}
	case Decimal:
		return Literal{Type: "decimal", Value: string(v)}
	case String:
		return Literal{Type: "string", Value: string(v)}
	case Bool:
		return Literal{Type: "bool", Value: v.String()}
	case Time:
		return Literal{Type: "time", Value: v.String()}
	case Bytes:
		return Literal{Type: "bytes", Value: base64.StdEncoding.EncodeToString(v)}
	case UUID:
		return Literal{Type: "uuid", Value: v.String()}
	case JSON:
		return Literal{Type: "json", Value: string(v)}
	default:
		panic(fmt.Sprintf("field: unexpected value %T", v))
	}
}

// Decode returns the Value l encodes.
func (l Literal) Decode() (Value, error) {
	switch l.Type {
	case "null":
		return Null{}, nil
	case "int":
		n, err := strconv.ParseInt(l.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field: decode int literal: %w", err)
		}
		return Int(n), nil
	case "float":
		f, err := strconv.ParseFloat(l.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("field: decode float literal: %w", err)
		}
		return Float(f), nil
	case "decimal":
		return ParseDecimal(l.Value)
	case "string":
		return String(l.Value), nil
	case "bool":
		b, err := strconv.ParseBool(l.Value)
		if err != nil {
			return nil, fmt.Errorf("field: decode bool literal: %w", err)
		}
		return Bool(b), nil
	case "time":
		t, err := time.Parse(time.RFC3339Nano, l.Value)
		if err != nil {
			return nil, fmt.Errorf("field: decode time literal: %w", err)
		}
		return Time(t), nil
	case "bytes":
		b, err := base64.StdEncoding.DecodeString(l.Value)
		if err != nil {
			return nil, fmt.Errorf("field: decode bytes literal: %w", err)
		}
		return Bytes(b), nil
	case "uuid":
		u, err := uuid.Parse(l.Value)
		if err != nil {
			return nil, fmt.Errorf("field: decode uuid literal: %w", err)
		}
		return UUID(u), nil
	case "json":
		if !json.Valid([]byte(l.Value)) {
			return nil, fmt.Errorf("field: invalid json literal %q", l.Value)
		}
		return JSON(l.Value), nil
	default:
		return nil, fmt.Errorf("field: unknown literal type %q", l.Type)
	}
}

// Equal reports if two values are the same typed value.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return ToLiteral(a) == ToLiteral(b)
}
