package numbers

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_FromNumeric(t *testing.T) {
	t.Run("Empty string reads as zero", func(t *testing.T) {
		n, err := FromNumeric("")
		assert.Nil(t, err)
		assert.Equal(t, 0, n.Sign())
	})

	t.Run("Full uint256 values round-trip", func(t *testing.T) {
		maxUint256 := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
		n, err := FromNumeric(maxUint256)
		assert.Nil(t, err)
		assert.Equal(t, maxUint256, n.String())
	})

	t.Run("Garbage errors", func(t *testing.T) {
		_, err := FromNumeric("0x12")
		assert.NotNil(t, err)
	})
}

func Test_AddSubNumeric(t *testing.T) {
	t.Run("Add onto empty column", func(t *testing.T) {
		s, err := AddNumeric("", big.NewInt(79056085))
		assert.Nil(t, err)
		assert.Equal(t, "79056085", s)
	})

	t.Run("Add and Sub invert each other", func(t *testing.T) {
		s, err := AddNumeric("1000", big.NewInt(234))
		assert.Nil(t, err)
		s, err = SubNumeric(s, big.NewInt(234))
		assert.Nil(t, err)
		assert.Equal(t, "1000", s)
	})

	t.Run("Sub can go negative, clamping is the caller's job", func(t *testing.T) {
		s, err := SubNumeric("5", big.NewInt(9))
		assert.Nil(t, err)
		assert.Equal(t, "-4", s)
	})
}

func Test_MulDiv(t *testing.T) {
	t.Run("Truncates toward zero", func(t *testing.T) {
		assert.Equal(t, "3", MulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(3)).String())
	})

	t.Run("Zero denominator yields zero", func(t *testing.T) {
		assert.Equal(t, 0, MulDiv(big.NewInt(10), big.NewInt(5), big.NewInt(0)).Sign())
	})

	t.Run("Share to token conversion", func(t *testing.T) {
		// 500 shares at totalAssets=2000, totalSupply=1000 is 1000 tokens.
		assert.Equal(t, "1000", MulDiv(big.NewInt(500), big.NewInt(2000), big.NewInt(1000)).String())
	})
}

func Test_NumericGreaterThan(t *testing.T) {
	greater, err := NumericGreaterThan("100000000000000000000001", "100000000000000000000000")
	assert.Nil(t, err)
	assert.True(t, greater)

	greater, err = NumericGreaterThan("5", "5")
	assert.Nil(t, err)
	assert.False(t, greater)
}

func Test_Ratios(t *testing.T) {
	t.Run("RatioOf divides as a decimal", func(t *testing.T) {
		assert.Equal(t, "0.5", RatioOf(big.NewInt(1), big.NewInt(2)))
	})

	t.Run("RatioOf with zero denominator", func(t *testing.T) {
		assert.Equal(t, "0", RatioOf(big.NewInt(1), big.NewInt(0)))
	})

	t.Run("AnnualizedRatio scales to a year", func(t *testing.T) {
		// 1% over exactly half a year annualizes to 2%.
		const halfYearMillis = 365 * 24 * 3600 * 1000 / 2
		apr, err := AnnualizedRatio("0.01", halfYearMillis)
		assert.Nil(t, err)
		assert.Equal(t, "0.02", apr)
	})

	t.Run("AnnualizedRatio with zero duration", func(t *testing.T) {
		apr, err := AnnualizedRatio("0.01", 0)
		assert.Nil(t, err)
		assert.Equal(t, "0", apr)
	})
}
