package sql

import (
	"errors"
	"strings"

	"github.com/syssam/quarry"
)

// errorCoder is implemented by driver errors that carry a string code,
// such as *pq.Error.
type errorCoder interface {
	Code() string
}

// errorNumberer is implemented by driver errors that carry a numeric code.
type errorNumberer interface {
	Number() uint16
}

// sqlStateError is implemented by errors that expose their SQLSTATE.
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild  = 1452 // Cannot add or update a child row
	mysqlCheckViolation   = 3819
)

// constraintRule describes how a kind of violation is reported by each
// supported driver.
type constraintRule struct {
	name     string
	state    string
	numbers  []uint16
	messages []string
}

var constraintRules = []constraintRule{
	{
		name:     "unique",
		state:    pgUniqueViolation,
		numbers:  []uint16{mysqlDuplicateEntry},
		messages: []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	},
	{
		name:     "foreign key",
		state:    pgForeignKeyViolation,
		numbers:  []uint16{mysqlForeignKeyParent, mysqlForeignKeyChild},
		messages: []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	},
	{
		name:     "check",
		state:    pgCheckViolation,
		numbers:  []uint16{mysqlCheckViolation},
		messages: []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	},
}

func (r constraintRule) match(err error) bool {
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == r.state {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == r.state {
		return true
	}
	if e, ok := asError[errorNumberer](err); ok {
		for _, n := range r.numbers {
			if e.Number() == n {
				return true
			}
		}
	}
	// Drivers without structured errors, such as the pure Go SQLite driver.
	msg := err.Error()
	for _, m := range r.messages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// ConstraintKind returns "unique", "foreign key" or "check" for errors
// raised by a constraint violation, and "" for any other error.
func ConstraintKind(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range constraintRules {
		if r.match(err) {
			return r.name
		}
	}
	return ""
}

// IsUniqueConstraintError reports if the error resulted from a uniqueness
// violation.
func IsUniqueConstraintError(err error) bool { return ConstraintKind(err) == "unique" }

// IsForeignKeyConstraintError reports if the error resulted from a
// foreign-key violation.
func IsForeignKeyConstraintError(err error) bool { return ConstraintKind(err) == "foreign key" }

// IsCheckConstraintError reports if the error resulted from a check
// constraint violation.
func IsCheckConstraintError(err error) bool { return ConstraintKind(err) == "check" }

// wrapConstraint wraps driver constraint violations in a
// quarry.ConstraintError and returns other errors unchanged.
func wrapConstraint(err error) error {
	if err == nil || quarry.IsConstraintError(err) {
		return err
	}
	if kind := ConstraintKind(err); kind != "" {
		return quarry.NewConstraintError(kind+" constraint violated", err)
	}
	return err
}

// asError finds the first error in the chain implementing T.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}
