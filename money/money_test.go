package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	d, err := Parse("4000.00")
	require.NoError(t, err)
	assert.Equal(t, "4000.00", Format(d))
	assert.True(t, d.Equal(decimal.NewFromInt(4000)))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-number")
	assert.Error(t, err)
}

func TestFormatPadsFraction(t *testing.T) {
	assert.Equal(t, "50.00", Format(decimal.NewFromInt(50)))
	assert.Equal(t, "-1000.00", Format(decimal.NewFromInt(-1000)))
	assert.Equal(t, "0.50", Format(decimal.NewFromFloat(0.5)))
}

func TestIsPositive(t *testing.T) {
	assert.True(t, IsPositive(decimal.NewFromInt(1)))
	assert.False(t, IsPositive(decimal.Zero))
	assert.False(t, IsPositive(decimal.NewFromInt(-1)))
}
