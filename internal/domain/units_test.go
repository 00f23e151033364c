package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"1", 6, "1000000"},
		{"1.5", 6, "1500000"},
		{"0.000001", 6, "1"},
		{"1", 18, "1000000000000000000"},
		{"0.000000000000000001", 18, "1"},
		{"2500.25", 6, "2500250000"},
		{"0", 6, "0"},
		{".5", 6, "500000"},
		{"3.", 6, "3000000"},
	}
	for _, tt := range tests {
		got, err := ParseUnits(tt.in, tt.decimals)
		require.NoError(t, err, "ParseUnits(%q, %d)", tt.in, tt.decimals)
		assert.Equal(t, tt.want, got.String(), "ParseUnits(%q, %d)", tt.in, tt.decimals)
	}
}

func TestParseUnitsRejects(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
	}{
		{"", 6},
		{"-1", 6},
		{"0.0000001", 6},  // too many fractional digits for 6 decimals
		{"1.1234567", 6},
		{"abc", 6},
		{"1.2.3", 6},
		{".", 6},  // no digits either side of the point
		{"+", 6},  // bare sign
		{"+.", 18},
	}
	for _, c := range cases {
		_, err := ParseUnits(c.in, c.decimals)
		assert.Error(t, err, "ParseUnits(%q, %d)", c.in, c.decimals)
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"1000000", 6, "1"},
		{"1500000", 6, "1.5"},
		{"1", 6, "0.000001"},
		{"1000000000000000000", 18, "1"},
		{"2500250000", 6, "2500.25"},
		{"0", 6, "0"},
	}
	for _, tt := range tests {
		n, ok := new(big.Int).SetString(tt.in, 10)
		require.True(t, ok)
		assert.Equal(t, tt.want, FormatUnits(n, tt.decimals))
	}
}

// The scaling boundary between the two assets is where a unit bug is most
// consequential, so verify parse/format agree across both granularities.
func TestUnitsRoundTrip(t *testing.T) {
	for _, decimals := range []uint8{6, 18} {
		for _, amt := range []string{"0.5", "1", "123.456", "999999"} {
			n, err := ParseUnits(amt, decimals)
			require.NoError(t, err)
			assert.Equal(t, amt, FormatUnits(n, decimals), "decimals=%d", decimals)
		}
	}
}

func TestNewAccount(t *testing.T) {
	acct, err := NewAccount("0x52908400098527886E0F7030069857D2E4169EE7", 0)
	require.NoError(t, err)
	assert.Equal(t, "0", acct.Number.String())

	_, err = NewAccount("not-an-address", 0)
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = NewAccount("0x0000000000000000000000000000000000000000", 0)
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = NewAccount("0x52908400098527886E0F7030069857D2E4169EE7", -1)
	assert.ErrorIs(t, err, ErrInvalidReference)
}
