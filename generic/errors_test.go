package generic

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindWireCodes(t *testing.T) {
	assert.Equal(t, "VALIDATION_ERROR", KindValidation.String())
	assert.Equal(t, "INSUFFICIENT_BALANCE", KindInsufficientBalance.String())
	assert.Equal(t, "ALREADY_PROCESSED", KindAlreadyProcessed.String())
	assert.Equal(t, "INTERNAL", Kind(99).String())
}

func TestErrorsMatchByKind(t *testing.T) {
	err := Errorf(KindNotFound, "Leave type %s not found", "x")
	wrapped := fmt.Errorf("handler: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrForbidden))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, "Leave type x not found", MessageOf(wrapped))
}

func TestMessageOfHidesInternalErrors(t *testing.T) {
	cause := errors.New("disk I/O error")

	assert.Equal(t, "Internal server error", MessageOf(cause))
	assert.Equal(t, "Internal server error", MessageOf(Wrap(KindInternal, "failed to query", cause)))
	assert.Equal(t, KindInternal, KindOf(cause))

	dup := Wrap(KindDuplicateKey, "Leave type with this name already exists", cause)
	assert.Equal(t, "Leave type with this name already exists", MessageOf(dup))
	assert.ErrorIs(t, dup, cause)
	assert.Contains(t, dup.Error(), "disk I/O error")
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsRetryable(ErrConflict))
	assert.False(t, IsRetryable(ErrValidation))
	assert.True(t, IsClientError(ErrInsufficientBalance))
	assert.False(t, IsClientError(errors.New("boom")))
	assert.False(t, IsKind(nil, KindInternal))
}
