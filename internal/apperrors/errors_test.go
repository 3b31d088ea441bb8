package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindInvalidState, "transaction %s already decided", "tx-1")
	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.True(t, IsKind(err, KindInvalidState))
	assert.False(t, IsKind(err, KindNotFound))
	assert.Contains(t, err.Error(), "tx-1")
}

func TestKindOfWrappedChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, KindExternalWriteBack, "apply payment")
	wrapped := fmt.Errorf("decide: %w", err)

	assert.Equal(t, KindExternalWriteBack, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindValidation, "ignored"))
}
