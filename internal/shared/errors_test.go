package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"wrapped validation", fmt.Errorf("config: %w", ErrValidation), KindValidation},
		{"conflict", ErrConflict, KindConflict},
		{"dependency", Dependency("redis", errors.New("dial tcp")), KindDependencyFailure},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled beats timeout", errors.Join(context.DeadlineExceeded, context.Canceled), KindCanceled},
		{"timeout beats conflict", errors.Join(ErrConflict, ErrTimeout), KindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMarkKind(t *testing.T) {
	base := errors.New("connection reset")

	marked := MarkKind(base, KindDependencyFailure)
	require.Error(t, marked)
	assert.True(t, errors.Is(marked, base))
	assert.ErrorIs(t, marked, ErrDependencyFailure)

	assert.Same(t, marked, MarkKind(marked, KindDependencyFailure), "marking twice must not re-wrap")
	assert.Equal(t, base, MarkKind(base, KindUnknown))
	assert.Equal(t, ErrConflict, MarkKind(nil, KindConflict))
	assert.Nil(t, MarkKind(nil, KindCanceled))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ctx"))

	base := errors.New("boom")
	assert.Equal(t, base, Wrap(base, ""))
	assert.EqualError(t, Wrap(base, "load"), "load: boom")
}

func TestDependency(t *testing.T) {
	assert.Nil(t, Dependency("sqlite", nil))

	err := Dependency("sqlite", errors.New("database is locked"))
	assert.Contains(t, err.Error(), "sqlite: database is locked")
	assert.Equal(t, KindDependencyFailure, KindOf(err))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Validation", KindValidation.String())
	assert.Equal(t, "Conflict", KindConflict.String())
	assert.Equal(t, "DependencyFailure", KindDependencyFailure.String())
	assert.Equal(t, "Unknown", Kind(99).String())
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(MarkKind(errors.New("bad port"), KindValidation)))
	assert.False(t, IsValidation(Dependency("redis", errors.New("dial tcp"))))
	assert.False(t, IsValidation(nil))
}
