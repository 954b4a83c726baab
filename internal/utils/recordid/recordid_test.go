package recordid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsValidAndSorted(t *testing.T) {
	a := New()
	b := New()

	require.True(t, strings.HasPrefix(a, "up_"))
	assert.True(t, IsValid(a))
	assert.True(t, IsValid(b))
	assert.Less(t, a, b, "monotonic ids must sort by creation")
	assert.Equal(t, strings.ToLower(a), a)
}

func TestIsValidRejects(t *testing.T) {
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("jan_01hx"))
	assert.False(t, IsValid("up_not-a-ulid"))
}

func TestNewLocalIDRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		id := NewLocalID()
		require.Len(t, id, 4)
		assert.True(t, IsLocalID(id), id)
	}
}

func TestIsLocalID(t *testing.T) {
	assert.True(t, IsLocalID("1000"))
	assert.True(t, IsLocalID("9999"))
	assert.False(t, IsLocalID("0999"))
	assert.False(t, IsLocalID("12a4"))
	assert.False(t, IsLocalID("12345"))
}
