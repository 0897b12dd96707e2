package generic

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndFormatDays(t *testing.T) {
	d, err := ParseDays(" 1.50 ")
	require.NoError(t, err)
	assert.Equal(t, "1.5", FormatDays(d))

	_, err = ParseDays("one")
	assert.Error(t, err)

	assert.Equal(t, "3", FormatDays(DaysFromInt(3)))
	assert.Equal(t, "0", FormatDays(decimal.Zero))
}

func TestNewIDIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
