package moneyfmt

import (
	"testing"

	"simcash/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFromCents(t *testing.T) {
	require.True(t, FromCents(12345).Equal(mustDecimal(t, "123.45")))
	require.True(t, FromCents(0).Equal(mustDecimal(t, "0")))
	require.True(t, FromCents(-500).Equal(mustDecimal(t, "-5")))
}

func TestToCents(t *testing.T) {
	require.Equal(t, domain.Cents(12345), ToCents(mustDecimal(t, "123.45")))
	require.Equal(t, domain.Cents(100), ToCents(mustDecimal(t, "1")))
	require.Equal(t, domain.Cents(0), ToCents(mustDecimal(t, "0")))
}

func TestFormat(t *testing.T) {
	require.Equal(t, "123.45 USD", Format(12345, "USD"))
	require.Equal(t, "0.00 USD", Format(0, "USD"))
}

func TestParseAmount_RoundTrip(t *testing.T) {
	c, err := ParseAmount("99.99")
	require.NoError(t, err)
	require.Equal(t, domain.Cents(9999), c)
}

func TestParseAmount_Invalid(t *testing.T) {
	_, err := ParseAmount("not-a-number")
	require.Error(t, err)
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
