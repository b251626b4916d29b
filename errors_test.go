package quarry_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/quarry"
)

func TestSchemaError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := &quarry.SchemaError{
			Kind:     quarry.SchemaUnknownTarget,
			Model:    "Post",
			Relation: "author",
			Message:  `target "Author" is not registered`,
		}
		assert.Equal(t, `quarry: schema error (unknown target) on model Post relation author: target "Author" is not registered`, err.Error())
	})

	t.Run("Cycle", func(t *testing.T) {
		err := &quarry.SchemaError{Kind: quarry.SchemaDependencyCycle, Cycle: []string{"A", "B", "C", "A"}}
		assert.Equal(t, "quarry: schema error (dependency cycle): cycle A -> B -> C -> A", err.Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := quarry.NewSchemaError(quarry.SchemaDuplicateModel, "Author", "already registered")
		assert.True(t, errors.Is(err, quarry.ErrSchema))
		assert.False(t, errors.Is(err, quarry.ErrQueryBuild))
	})

	t.Run("IsSchemaError", func(t *testing.T) {
		err := quarry.NewSchemaError(quarry.SchemaDuplicateModel, "Author", "")
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, quarry.IsSchemaError(wrapped))
		assert.True(t, quarry.IsSchemaError(wrapped, quarry.SchemaDuplicateModel))
		assert.False(t, quarry.IsSchemaError(wrapped, quarry.SchemaUnknownModel))
		assert.False(t, quarry.IsSchemaError(errors.New("other")))
		assert.False(t, quarry.IsSchemaError(nil))
	})
}

func TestQueryBuildError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := &quarry.QueryBuildError{Kind: quarry.QueryUnknownColumn, Op: "select", Model: "Author", Column: "nickname"}
		assert.Equal(t, "quarry: query error (unknown column) in select on model Author column nickname", err.Error())
	})

	t.Run("IsQueryBuildError", func(t *testing.T) {
		err := quarry.NewQueryBuildError(quarry.QueryMissingPredicate, "delete", "Post", "refusing to affect every row")
		assert.True(t, errors.Is(err, quarry.ErrQueryBuild))
		assert.True(t, quarry.IsQueryBuildError(err, quarry.QueryMissingPredicate))
		assert.False(t, quarry.IsQueryBuildError(err, quarry.QueryUnknownColumn))
	})
}

func TestCompileError(t *testing.T) {
	err := quarry.NewUnsupportedError("mysql", "RETURNING")
	assert.Equal(t, "quarry: compile error (unsupported construct): RETURNING is not supported by dialect mysql", err.Error())
	assert.True(t, errors.Is(err, quarry.ErrCompile))
	assert.True(t, quarry.IsCompileError(fmt.Errorf("compile: %w", err), quarry.CompileUnsupportedConstruct))
	assert.False(t, quarry.IsCompileError(err, quarry.CompileInvalidAST))
}

func TestMigrationError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := &quarry.MigrationError{
			Kind:  quarry.MigrationUnresolvableCycle,
			Cycle: []string{"a", "b", "c", "a"},
			Hint:  "create the constraints as deferrable",
		}
		assert.Equal(t, "quarry: migration error (unresolvable cycle): cycle a -> b -> c -> a (hint: create the constraints as deferrable)", err.Error())
	})

	t.Run("IsMigrationError", func(t *testing.T) {
		err := quarry.NewMigrationError(quarry.MigrationDestructiveWithoutConfirmation, "drop table", "posts", "")
		assert.Equal(t, "quarry: migration error (destructive without confirmation) in drop table on table posts", err.Error())
		assert.True(t, errors.Is(err, quarry.ErrMigration))
		assert.True(t, quarry.IsMigrationError(err, quarry.MigrationDestructiveWithoutConfirmation))
		assert.False(t, quarry.IsMigrationError(err, quarry.MigrationChecksumMismatch))
	})
}

func TestEagerLoadError(t *testing.T) {
	err := &quarry.EagerLoadError{Kind: quarry.EagerLoadUnknownPath, Path: "posts.likes", Segment: "likes", Model: "Post"}
	assert.Equal(t, `quarry: eager load error (unknown path) in path "posts.likes": segment "likes" on model Post`, err.Error())
	assert.True(t, errors.Is(err, quarry.ErrEagerLoad))
	assert.True(t, quarry.IsEagerLoadError(err, quarry.EagerLoadUnknownPath))
	assert.False(t, quarry.IsEagerLoadError(err, quarry.EagerLoadAmbiguousPath))
}

func TestConstraintError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := quarry.NewConstraintError("UNIQUE constraint failed", nil)
		assert.Equal(t, "quarry: constraint failed: UNIQUE constraint failed", err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("db error")
		err := quarry.NewConstraintError("constraint violated", underlying)
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("IsConstraintError", func(t *testing.T) {
		err := quarry.NewConstraintError("check failed", nil)
		assert.True(t, quarry.IsConstraintError(fmt.Errorf("wrapper: %w", err)))
		assert.False(t, quarry.IsConstraintError(errors.New("other error")))
		assert.False(t, quarry.IsConstraintError(nil))
	})
}

func TestAggregateError(t *testing.T) {
	t.Run("NoErrors", func(t *testing.T) {
		assert.NoError(t, quarry.NewAggregateError(nil, nil))
	})

	t.Run("SingleError", func(t *testing.T) {
		single := errors.New("boom")
		assert.Same(t, single, quarry.NewAggregateError(nil, single))
	})

	t.Run("Multiple", func(t *testing.T) {
		err := quarry.NewAggregateError(
			quarry.NewSchemaError(quarry.SchemaUnknownTarget, "Post", "no Author"),
			quarry.NewSchemaError(quarry.SchemaDependencyCycle, "A", ""),
		)
		require.Error(t, err)
		var agg *quarry.AggregateError
		require.True(t, errors.As(err, &agg))
		assert.Len(t, agg.Errors, 2)
		assert.Contains(t, err.Error(), "quarry: multiple errors:")
		assert.True(t, quarry.IsSchemaError(err, quarry.SchemaDependencyCycle))
		assert.True(t, errors.Is(err, quarry.ErrSchema))
	})
}
