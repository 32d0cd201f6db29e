package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("leave: %w", Conflict("not a member"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "not a member", ReasonOf(err))
}

func TestTransientKeepsExistingKind(t *testing.T) {
	nf := NotFound("space not found")
	assert.Same(t, nf, Transient("load space", nf))

	raw := errors.New("connection reset")
	wrapped := Transient("load space", raw)
	assert.Equal(t, KindTransientIO, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, raw)
	assert.Nil(t, Transient("noop", nil))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, "boom", ReasonOf(errors.New("boom")))
}
