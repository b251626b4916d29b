package field

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind is the family of a logical column type.
type Kind uint8

// Logical type families.
const (
	KindInvalid Kind = iota
	KindInt
	KindBigInt
	KindFloat
	KindDecimal
	KindText
	KindVarchar
	KindBool
	KindTime
	KindDate
	KindBytes
	KindUUID
	KindJSON
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindInt:     "integer",
	KindBigInt:  "bigint",
	KindFloat:   "float",
	KindDecimal: "decimal",
	KindText:    "text",
	KindVarchar: "varchar",
	KindBool:    "boolean",
	KindTime:    "timestamp",
	KindDate:    "date",
	KindBytes:   "blob",
	KindUUID:    "uuid",
	KindJSON:    "json",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Numeric reports if the kind holds numbers.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindBigInt || k == KindFloat || k == KindDecimal
}

// Textual reports if the kind holds character data.
func (k Kind) Textual() bool {
	return k == KindText || k == KindVarchar
}

// Type is the logical type of a column. Size applies to varchar columns,
// Precision and Scale to decimal columns.
type Type struct {
	Kind      Kind
	Size      int
	Precision int
	Scale     int
}

// TypeInt returns the 32-bit integer type.
func TypeInt() Type { return Type{Kind: KindInt} }

// TypeBigInt returns the 64-bit integer type.
func TypeBigInt() Type { return Type{Kind: KindBigInt} }

// TypeFloat returns the floating point type.
func TypeFloat() Type { return Type{Kind: KindFloat} }

// TypeDecimal returns an exact numeric type.
func TypeDecimal(precision, scale int) Type {
	return Type{Kind: KindDecimal, Precision: precision, Scale: scale}
}

// TypeText returns the unbounded character type.
func TypeText() Type { return Type{Kind: KindText} }

// TypeVarchar returns a bounded character type.
func TypeVarchar(size int) Type { return Type{Kind: KindVarchar, Size: size} }

// TypeBool returns the boolean type.
func TypeBool() Type { return Type{Kind: KindBool} }

// TypeTime returns the timestamp type.
func TypeTime() Type { return Type{Kind: KindTime} }

// TypeDate returns the calendar date type.
func TypeDate() Type { return Type{Kind: KindDate} }

// TypeBytes returns the binary type.
func TypeBytes() Type { return Type{Kind: KindBytes} }

// TypeUUID returns the UUID type.
func TypeUUID() Type { return Type{Kind: KindUUID} }

// TypeJSON returns the JSON document type.
func TypeJSON() Type { return Type{Kind: KindJSON} }

// String returns the canonical spelling of the type, as accepted by ParseType.
func (t Type) String() string {
	switch t.Kind {
	case KindVarchar:
		return fmt.Sprintf("varchar(%d)", t.Size)
	case KindDecimal:
		return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
	default:
		return t.Kind.String()
	}
}

// Valid reports if the type is well formed.
func (t Type) Valid() error {
	switch t.Kind {
	case KindInvalid:
		return fmt.Errorf("field: invalid type")
	case KindVarchar:
		if t.Size <= 0 {
			return fmt.Errorf("field: varchar size must be positive, got %d", t.Size)
		}
	case KindDecimal:
		if t.Precision <= 0 || t.Scale < 0 || t.Scale > t.Precision {
			return fmt.Errorf("field: invalid decimal(%d,%d)", t.Precision, t.Scale)
		}
	default:
		if int(t.Kind) >= len(kindNames) {
			return fmt.Errorf("field: unknown type kind %d", t.Kind)
		}
	}
	return nil
}

// Widens reports if changing a column from t to to keeps every value that t
// can hold. Only widenings that can be undone without loss on data written
// before the change qualify.
func (t Type) Widens(to Type) bool {
	switch {
	case t.Kind == KindVarchar && to.Kind == KindVarchar:
		return to.Size > t.Size
	case t.Kind == KindDecimal && to.Kind == KindDecimal:
		return to.Scale == t.Scale && to.Precision > t.Precision
	default:
		return false
	}
}

// Accepts reports if a value of the given kind can be stored in, or compared
// with, a column of type t.
func (t Type) Accepts(v Value) bool {
	switch v := v.(type) {
	case Null:
		return true
	case Int:
		return t.Kind.Numeric()
	case Float:
		return t.Kind == KindFloat || t.Kind == KindDecimal
	case Decimal:
		return t.Kind == KindDecimal || t.Kind == KindFloat
	case String:
		if t.Kind == KindVarchar {
			return utf8.RuneCountInString(string(v)) <= t.Size
		}
		return t.Kind == KindText
	case Bool:
		return t.Kind == KindBool
	case Time:
		return t.Kind == KindTime || t.Kind == KindDate
	case Bytes:
		return t.Kind == KindBytes
	case UUID:
		return t.Kind == KindUUID
	case JSON:
		return t.Kind == KindJSON
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if err := t.Valid(); err != nil {
		return nil, err
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseType parses a type spelling such as "varchar(64)", "decimal(10,2)"
// or "timestamp". Common aliases are accepted.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	name, args, err := splitArgs(s)
	if err != nil {
		return Type{}, err
	}
	var t Type
	switch name {
	case "int", "integer", "int32":
		t = TypeInt()
	case "bigint", "int64", "long":
		t = TypeBigInt()
	case "float", "double", "real", "float64":
		t = TypeFloat()
	case "decimal", "numeric":
		if len(args) != 2 {
			return Type{}, fmt.Errorf("field: %q expects precision and scale", s)
		}
		t = TypeDecimal(args[0], args[1])
	case "text", "string":
		t = TypeText()
	case "varchar":
		if len(args) != 1 {
			return Type{}, fmt.Errorf("field: %q expects a size", s)
		}
		t = TypeVarchar(args[0])
	case "bool", "boolean":
		t = TypeBool()
	case "timestamp", "time", "datetime":
		t = TypeTime()
	case "date":
		t = TypeDate()
	case "blob", "bytes", "binary":
		t = TypeBytes()
	case "uuid":
		t = TypeUUID()
	case "json", "jsonb":
		t = TypeJSON()
	default:
		return Type{}, fmt.Errorf("field: unknown type %q", s)
	}
	if name != "varchar" && name != "decimal" && name != "numeric" && len(args) > 0 {
		return Type{}, fmt.Errorf("field: type %q takes no arguments", name)
	}
	return t, t.Valid()
}

func splitArgs(s string) (string, []int, error) {
	open := strings.IndexByte(s, '(')
	if open == -1 {
		return s, nil, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("field: malformed type %q", s)
	}
	var args []int
	for _, part := range strings.Split(s[open+1:len(s)-1], ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return "", nil, fmt.Errorf("field: malformed type %q: %w", s, err)
		}
		args = append(args, n)
	}
	return strings.TrimSpace(s[:open]), args, nil
}
