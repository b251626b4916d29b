package quarry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Sentinel errors, one per error family. Every typed error below matches its
// family sentinel with errors.Is.
var (
	// ErrSchema is matched by every SchemaError.
	ErrSchema = errors.New("quarry: invalid schema")
	// ErrQueryBuild is matched by every QueryBuildError.
	ErrQueryBuild = errors.New("quarry: invalid query")
	// ErrCompile is matched by every CompileError.
	ErrCompile = errors.New("quarry: compile failed")
	// ErrMigration is matched by every MigrationError.
	ErrMigration = errors.New("quarry: migration planning failed")
	// ErrEagerLoad is matched by every EagerLoadError.
	ErrEagerLoad = errors.New("quarry: invalid eager load")
)

// SchemaErrorKind enumerates the schema registry failures.
type SchemaErrorKind uint8

// Schema registry failures.
const (
	SchemaDuplicateModel SchemaErrorKind = iota + 1
	SchemaUnknownModel
	SchemaUnknownRelation
	SchemaUnknownTarget
	SchemaDependencyCycle
	SchemaInvalidModel
	SchemaFrozen
)

// String returns the kind name.
func (k SchemaErrorKind) String() string {
	switch k {
	case SchemaDuplicateModel:
		return "duplicate model"
	case SchemaUnknownModel:
		return "unknown model"
	case SchemaUnknownRelation:
		return "unknown relation"
	case SchemaUnknownTarget:
		return "unknown target"
	case SchemaDependencyCycle:
		return "dependency cycle"
	case SchemaInvalidModel:
		return "invalid model"
	case SchemaFrozen:
		return "registry frozen"
	default:
		return fmt.Sprintf("SchemaErrorKind(%d)", k)
	}
}

// SchemaError is returned by the schema registry.
type SchemaError struct {
	Kind     SchemaErrorKind
	Model    string   // Model the error was raised on.
	Relation string   // Relation name, if applicable.
	Column   string   // Column name, if applicable.
	Target   string   // Relation target, if applicable.
	Cycle    []string // Models forming a dependency cycle.
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("quarry: schema error (")
	b.WriteString(e.Kind.String())
	b.WriteString(")")
	if e.Model != "" {
		b.WriteString(" on model ")
		b.WriteString(e.Model)
	}
	if e.Relation != "" {
		b.WriteString(" relation ")
		b.WriteString(e.Relation)
	}
	if e.Column != "" {
		b.WriteString(" column ")
		b.WriteString(e.Column)
	}
	if len(e.Cycle) > 0 {
		b.WriteString(": cycle ")
		b.WriteString(strings.Join(e.Cycle, " -> "))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches the sentinel error for SchemaError.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// NewSchemaError returns a new SchemaError.
func NewSchemaError(kind SchemaErrorKind, model, message string) *SchemaError {
	return &SchemaError{Kind: kind, Model: model, Message: message}
}

// IsSchemaError reports whether err is a SchemaError. When kinds are given,
// the error must also be of one of them.
func IsSchemaError(err error, kinds ...SchemaErrorKind) bool {
	e, ok := asError[*SchemaError](err)
	return ok && (len(kinds) == 0 || slices.Contains(kinds, e.Kind))
}

// QueryBuildErrorKind enumerates the query builder failures.
type QueryBuildErrorKind uint8

// Query builder failures.
const (
	QueryUnknownColumn QueryBuildErrorKind = iota + 1
	QueryUnknownRelation
	QueryMissingPredicate
	QueryInvalidClauseCombination
	QueryTypeMismatch
	QueryUnknownModel
)

// String returns the kind name.
func (k QueryBuildErrorKind) String() string {
	switch k {
	case QueryUnknownColumn:
		return "unknown column"
	case QueryUnknownRelation:
		return "unknown relation"
	case QueryMissingPredicate:
		return "missing predicate"
	case QueryInvalidClauseCombination:
		return "invalid clause combination"
	case QueryTypeMismatch:
		return "type mismatch"
	case QueryUnknownModel:
		return "unknown model"
	default:
		return fmt.Sprintf("QueryBuildErrorKind(%d)", k)
	}
}

// QueryBuildError is returned by the query builder.
type QueryBuildError struct {
	Kind     QueryBuildErrorKind
	Op       string // Operation kind (select, insert, update, delete).
	Model    string
	Column   string
	Relation string
	Clause   string // Clause that triggered the error, e.g. "limit".
	Message  string
}

// Error implements the error interface.
func (e *QueryBuildError) Error() string {
	var b strings.Builder
	b.WriteString("quarry: query error (")
	b.WriteString(e.Kind.String())
	b.WriteString(")")
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Model != "" {
		b.WriteString(" on model ")
		b.WriteString(e.Model)
	}
	if e.Relation != "" {
		b.WriteString(" relation ")
		b.WriteString(e.Relation)
	}
	if e.Column != "" {
		b.WriteString(" column ")
		b.WriteString(e.Column)
	}
	if e.Clause != "" {
		b.WriteString(" clause ")
		b.WriteString(e.Clause)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is reports whether the target matches the sentinel error for QueryBuildError.
func (e *QueryBuildError) Is(target error) bool {
	return target == ErrQueryBuild
}

// NewQueryBuildError returns a new QueryBuildError.
func NewQueryBuildError(kind QueryBuildErrorKind, op, model, message string) *QueryBuildError {
	return &QueryBuildError{Kind: kind, Op: op, Model: model, Message: message}
}

// IsQueryBuildError reports whether err is a QueryBuildError of one of the
// given kinds, or of any kind when none are given.
func IsQueryBuildError(err error, kinds ...QueryBuildErrorKind) bool {
	e, ok := asError[*QueryBuildError](err)
	return ok && (len(kinds) == 0 || slices.Contains(kinds, e.Kind))
}

// CompileErrorKind enumerates the SQL compiler failures.
type CompileErrorKind uint8

// SQL compiler failures.
const (
	CompileUnsupportedConstruct CompileErrorKind = iota + 1
	CompileInvalidAST
)

// String returns the kind name.
func (k CompileErrorKind) String() string {
	switch k {
	case CompileUnsupportedConstruct:
		return "unsupported construct"
	case CompileInvalidAST:
		return "invalid ast"
	default:
		return fmt.Sprintf("CompileErrorKind(%d)", k)
	}
}

// CompileError is returned when an AST or a migration operation cannot be
// lowered to SQL for a dialect.
type CompileError struct {
	Kind      CompileErrorKind
	Dialect   string
	Construct string // Feature the dialect lacks, e.g. "RETURNING".
	Message   string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("quarry: compile error (")
	b.WriteString(e.Kind.String())
	b.WriteString(")")
	if e.Construct != "" {
		b.WriteString(": ")
		b.WriteString(e.Construct)
	}
	if e.Dialect != "" {
		b.WriteString(" is not supported by dialect ")
		b.WriteString(e.Dialect)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is reports whether the target matches the sentinel error for CompileError.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompile
}

// NewUnsupportedError returns a CompileError for a construct the dialect does
// not advertise.
func NewUnsupportedError(dialect, construct string) *CompileError {
	return &CompileError{Kind: CompileUnsupportedConstruct, Dialect: dialect, Construct: construct}
}

// IsCompileError reports whether err is a CompileError of one of the given
// kinds, or of any kind when none are given.
func IsCompileError(err error, kinds ...CompileErrorKind) bool {
	e, ok := asError[*CompileError](err)
	return ok && (len(kinds) == 0 || slices.Contains(kinds, e.Kind))
}

// MigrationErrorKind enumerates the migration planner failures.
type MigrationErrorKind uint8

// Migration planner failures.
const (
	MigrationUnresolvableCycle MigrationErrorKind = iota + 1
	MigrationDestructiveWithoutConfirmation
	MigrationIrreversibleAlteration
	MigrationChecksumMismatch
)

// String returns the kind name.
func (k MigrationErrorKind) String() string {
	switch k {
	case MigrationUnresolvableCycle:
		return "unresolvable cycle"
	case MigrationDestructiveWithoutConfirmation:
		return "destructive without confirmation"
	case MigrationIrreversibleAlteration:
		return "irreversible alteration"
	case MigrationChecksumMismatch:
		return "checksum mismatch"
	default:
		return fmt.Sprintf("MigrationErrorKind(%d)", k)
	}
}

// MigrationError is returned by the migration planner.
type MigrationError struct {
	Kind    MigrationErrorKind
	Op      string   // Operation kind, e.g. "drop table".
	Table   string
	Column  string
	Cycle   []string // Tables forming an unresolvable cycle.
	Message string
	Hint    string
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
	var b strings.Builder
	b.WriteString("quarry: migration error (")
	b.WriteString(e.Kind.String())
	b.WriteString(")")
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Table != "" {
		b.WriteString(" on table ")
		b.WriteString(e.Table)
	}
	if e.Column != "" {
		b.WriteString(" column ")
		b.WriteString(e.Column)
	}
	if len(e.Cycle) > 0 {
		b.WriteString(": cycle ")
		b.WriteString(strings.Join(e.Cycle, " -> "))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Hint != "" {
		b.WriteString(" (hint: ")
		b.WriteString(e.Hint)
		b.WriteString(")")
	}
	return b.String()
}

// Is reports whether the target matches the sentinel error for MigrationError.
func (e *MigrationError) Is(target error) bool {
	return target == ErrMigration
}

// NewMigrationError returns a new MigrationError.
func NewMigrationError(kind MigrationErrorKind, op, table, message string) *MigrationError {
	return &MigrationError{Kind: kind, Op: op, Table: table, Message: message}
}

// IsMigrationError reports whether err is a MigrationError of one of the
// given kinds, or of any kind when none are given.
func IsMigrationError(err error, kinds ...MigrationErrorKind) bool {
	e, ok := asError[*MigrationError](err)
	return ok && (len(kinds) == 0 || slices.Contains(kinds, e.Kind))
}

// EagerLoadErrorKind enumerates the eager-load planner failures.
type EagerLoadErrorKind uint8

// Eager-load planner failures.
const (
	EagerLoadUnknownPath EagerLoadErrorKind = iota + 1
	EagerLoadAmbiguousPath
	// EagerLoadCompositeKey is returned when a batched step would need an
	// IN predicate over a multi-column key.
	EagerLoadCompositeKey
)

// String returns the kind name.
func (k EagerLoadErrorKind) String() string {
	switch k {
	case EagerLoadUnknownPath:
		return "unknown path"
	case EagerLoadAmbiguousPath:
		return "ambiguous path"
	case EagerLoadCompositeKey:
		return "composite key"
	default:
		return fmt.Sprintf("EagerLoadErrorKind(%d)", k)
	}
}

// EagerLoadError is returned by the eager-load planner.
type EagerLoadError struct {
	Kind       EagerLoadErrorKind
	Path       string   // Full requested path, e.g. "author.posts".
	Segment    string   // Segment that failed to resolve.
	Model      string   // Model the segment was resolved against.
	Candidates []string // Matching relations for an ambiguous segment.
}

// Error implements the error interface.
func (e *EagerLoadError) Error() string {
	var b strings.Builder
	b.WriteString("quarry: eager load error (")
	b.WriteString(e.Kind.String())
	b.WriteString(")")
	if e.Path != "" {
		fmt.Fprintf(&b, " in path %q", e.Path)
	}
	if e.Segment != "" {
		fmt.Fprintf(&b, ": segment %q", e.Segment)
		if e.Model != "" {
			b.WriteString(" on model ")
			b.WriteString(e.Model)
		}
	}
	if len(e.Candidates) > 0 {
		b.WriteString(" matches ")
		b.WriteString(strings.Join(e.Candidates, ", "))
	}
	return b.String()
}

// Is reports whether the target matches the sentinel error for EagerLoadError.
func (e *EagerLoadError) Is(target error) bool {
	return target == ErrEagerLoad
}

// IsEagerLoadError reports whether err is an EagerLoadError of one of the
// given kinds, or of any kind when none are given.
func IsEagerLoadError(err error, kinds ...EagerLoadErrorKind) bool {
	e, ok := asError[*EagerLoadError](err)
	return ok && (len(kinds) == 0 || slices.Contains(kinds, e.Kind))
}

// ConstraintError represents a database constraint violation raised while
// executing compiled statements.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("quarry: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "quarry: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("quarry: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors, so errors.Is and errors.As look
// through every one of them.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// asError walks the error chain, including joined and aggregated errors,
// and returns the first error of type T.
func asError[T error](err error) (T, bool) {
	var target T
	if err == nil {
		return target, false
	}
	ok := errors.As(err, &target)
	return target, ok
}
