package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vals(supply, borrow int64) PositionValues {
	return PositionValues{Supply: big.NewInt(supply), Borrow: big.NewInt(borrow)}
}

func TestMarginBps(t *testing.T) {
	tests := []struct {
		name   string
		supply int64
		borrow int64
		want   int64
	}{
		{"healthy cushion", 15000, 10000, 5000},
		{"thin cushion", 10500, 10000, 500},
		{"exactly collateralized", 10000, 10000, 0},
		{"underwater clamps to zero", 9000, 10000, 0},
		{"floor division", 10001, 10000, 1},
		{"floor discards remainder", 10999, 10000, 999},
		{"one wei over", 3, 2, 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarginBps(vals(tt.supply, tt.borrow))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestMarginBpsZeroBorrow(t *testing.T) {
	for _, supply := range []int64{0, 1, 10000} {
		_, err := MarginBps(vals(supply, 0))
		assert.ErrorIs(t, err, ErrNoBorrowValue, "supply=%d", supply)
	}
}

func TestMarginBpsNilValues(t *testing.T) {
	_, err := MarginBps(PositionValues{Supply: big.NewInt(1)})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestMarginBpsLargeValues(t *testing.T) {
	supply, ok := new(big.Int).SetString("200000000000000000000000000000000000000", 10)
	require.True(t, ok)
	borrow, ok := new(big.Int).SetString("100000000000000000000000000000000000000", 10)
	require.True(t, ok)

	got, err := MarginBps(PositionValues{Supply: supply, Borrow: borrow})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), got.Int64())
}

func TestValidThresholdBps(t *testing.T) {
	assert.True(t, ValidThresholdBps(0))
	assert.True(t, ValidThresholdBps(1000))
	assert.True(t, ValidThresholdBps(10000))
	assert.False(t, ValidThresholdBps(10001))
	assert.False(t, ValidThresholdBps(-1))
}
