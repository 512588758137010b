package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_IsValidAndOrdered(t *testing.T) {
	a, b := New(), New()
	assert.True(t, Valid(a))
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, a[:10], b[:10])
}

func TestValid_Rejects(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("not-a-ulid"))
	assert.False(t, Valid("01ARZ3NDEKTSV4RRFFQ69G5FAVX"))
}
