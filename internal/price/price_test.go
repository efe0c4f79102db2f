package price_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wessimpson/lobsim/internal/price"
)

func TestFromDecimalString(t *testing.T) {
	cases := []struct {
		in   string
		want price.Ticks
	}{
		{"50", 500000},
		{"50.1234", 501234},
		{"0.0001", 1},
		{"50.00005", 500000}, // half-to-even rounds down to the even neighbor
		{"50.00015", 500002}, // half-to-even rounds up to the even neighbor
	}
	for _, c := range cases {
		got, err := price.FromDecimalString(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "input %q", c.in)
	}
}

func TestFromDecimalStringRejectsNegative(t *testing.T) {
	_, err := price.FromDecimalString("-1.00")
	assert.Error(t, err)
}

func TestFromDecimalStringRejectsGarbage(t *testing.T) {
	_, err := price.FromDecimalString("not-a-price")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	got, err := price.FromDecimalString("123.4567")
	require.NoError(t, err)
	assert.Equal(t, "123.4567", got.String())
}

func TestValid(t *testing.T) {
	assert.True(t, price.Ticks(1).Valid())
	assert.False(t, price.Ticks(0).Valid())
}
