package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", State("execute", "not approved (status=%s)", "DENIED"))
	assert.Equal(t, KindState, KindOf(err))
	assert.True(t, Is(err, KindState))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindState))
}

func TestErrorMessage(t *testing.T) {
	base := errors.New("timeout")
	err := Provider("review", base)
	assert.Equal(t, "review: timeout", err.Error())
	assert.ErrorIs(t, err, base)

	v := Validation("", "missing %s", "symbol")
	assert.Equal(t, "missing symbol", v.Error())
}
