package query

import (
	"time"

	"github.com/google/uuid"
)

// Column is a typed column reference. Generated model packages declare one
// per column so that predicates are checked by the Go compiler:
//
//	var Age = query.Column[int64]("age")
//	b.Where(user.Age.GTE(18))
type Column[T any] string

// Name returns the column name.
func (c Column[T]) Name() string { return string(c) }

// On qualifies the column with a joined relation path.
func (c Column[T]) On(path string) Column[T] { return Column[T](path + "." + string(c)) }

// EQ returns a predicate that checks if the column equals the given value.
func (c Column[T]) EQ(v T) Predicate { return EQ(string(c), v) }

// NEQ returns a predicate that checks if the column does not equal the given value.
func (c Column[T]) NEQ(v T) Predicate { return NEQ(string(c), v) }

// GT returns a predicate that checks if the column is greater than the given value.
func (c Column[T]) GT(v T) Predicate { return GT(string(c), v) }

// GTE returns a predicate that checks if the column is greater than or equal to the given value.
func (c Column[T]) GTE(v T) Predicate { return GTE(string(c), v) }

// LT returns a predicate that checks if the column is less than the given value.
func (c Column[T]) LT(v T) Predicate { return LT(string(c), v) }

// LTE returns a predicate that checks if the column is less than or equal to the given value.
func (c Column[T]) LTE(v T) Predicate { return LTE(string(c), v) }

// Between returns a predicate that checks if the column is in [low, high].
func (c Column[T]) Between(low, high T) Predicate { return Between(string(c), low, high) }

// In returns a predicate that checks if the column value is in the given list.
func (c Column[T]) In(vs ...T) Predicate { return In(string(c), anys(vs)...) }

// NotIn returns a predicate that checks if the column value is not in the given list.
func (c Column[T]) NotIn(vs ...T) Predicate { return NotIn(string(c), anys(vs)...) }

// IsNull returns a predicate that checks if the column is NULL.
func (c Column[T]) IsNull() Predicate { return IsNull(string(c)) }

// NotNull returns a predicate that checks if the column is not NULL.
func (c Column[T]) NotNull() Predicate { return NotNull(string(c)) }

// Asc orders by the column ascending.
func (c Column[T]) Asc() Order { return Asc(string(c)) }

// Desc orders by the column descending.
func (c Column[T]) Desc() Order { return Desc(string(c)) }

// Typed columns of the common logical types.
type (
	IntColumn   = Column[int64]
	FloatColumn = Column[float64]
	BoolColumn  = Column[bool]
	TimeColumn  = Column[time.Time]
	UUIDColumn  = Column[uuid.UUID]
)

// StringColumn is a typed text column with pattern predicates.
//
//	var Email = query.StringColumn("email")
//	b.Where(user.Email.HasSuffix("@example.com"))
type StringColumn string

// Name returns the column name.
func (c StringColumn) Name() string { return string(c) }

// On qualifies the column with a joined relation path.
func (c StringColumn) On(path string) StringColumn { return StringColumn(path + "." + string(c)) }

// EQ returns a predicate that checks if the column equals the given value.
func (c StringColumn) EQ(v string) Predicate { return EQ(string(c), v) }

// NEQ returns a predicate that checks if the column does not equal the given value.
func (c StringColumn) NEQ(v string) Predicate { return NEQ(string(c), v) }

// GT returns a predicate that checks if the column sorts after the given value.
func (c StringColumn) GT(v string) Predicate { return GT(string(c), v) }

// GTE returns a predicate that checks if the column sorts after or equals the given value.
func (c StringColumn) GTE(v string) Predicate { return GTE(string(c), v) }

// LT returns a predicate that checks if the column sorts before the given value.
func (c StringColumn) LT(v string) Predicate { return LT(string(c), v) }

// LTE returns a predicate that checks if the column sorts before or equals the given value.
func (c StringColumn) LTE(v string) Predicate { return LTE(string(c), v) }

// In returns a predicate that checks if the column value is in the given list.
func (c StringColumn) In(vs ...string) Predicate { return In(string(c), anys(vs)...) }

// NotIn returns a predicate that checks if the column value is not in the given list.
func (c StringColumn) NotIn(vs ...string) Predicate { return NotIn(string(c), anys(vs)...) }

// Like returns a predicate matching a raw LIKE pattern.
func (c StringColumn) Like(pattern string) Predicate { return Like(string(c), pattern) }

// Contains returns a predicate that checks if the column contains the substring.
func (c StringColumn) Contains(v string) Predicate { return Contains(string(c), v) }

// ContainsFold returns a predicate that checks if the column contains the substring, ignoring case.
func (c StringColumn) ContainsFold(v string) Predicate { return ContainsFold(string(c), v) }

// HasPrefix returns a predicate that checks if the column starts with the prefix.
func (c StringColumn) HasPrefix(v string) Predicate { return HasPrefix(string(c), v) }

// HasSuffix returns a predicate that checks if the column ends with the suffix.
func (c StringColumn) HasSuffix(v string) Predicate { return HasSuffix(string(c), v) }

// IsNull returns a predicate that checks if the column is NULL.
func (c StringColumn) IsNull() Predicate { return IsNull(string(c)) }

// NotNull returns a predicate that checks if the column is not NULL.
func (c StringColumn) NotNull() Predicate { return NotNull(string(c)) }

// Asc orders by the column ascending.
func (c StringColumn) Asc() Order { return Asc(string(c)) }

// Desc orders by the column descending.
func (c StringColumn) Desc() Order { return Desc(string(c)) }

func anys[T any](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
