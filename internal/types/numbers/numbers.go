package numbers

import (
	"math/big"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// NewBig257 returns a big.Int wide enough for a full uint256 value.
func NewBig257() *big.Int {
	return big.NewInt(257)
}

// FromNumeric parses a base-10 numeric column value. Empty strings read as
// zero so that freshly created rows behave like zeroed counters.
func FromNumeric(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := NewBig257().SetString(s, 10)
	if !ok {
		return nil, xerrors.Errorf("invalid numeric value '%s'", s)
	}
	return n, nil
}

func Zero() *big.Int {
	return big.NewInt(0)
}

// AddNumeric adds a big delta onto a stored numeric string.
func AddNumeric(current string, delta *big.Int) (string, error) {
	c, err := FromNumeric(current)
	if err != nil {
		return "", err
	}
	return c.Add(c, delta).String(), nil
}

// SubNumeric subtracts a big delta from a stored numeric string. Callers that
// must not go negative clamp the result themselves.
func SubNumeric(current string, delta *big.Int) (string, error) {
	c, err := FromNumeric(current)
	if err != nil {
		return "", err
	}
	return c.Sub(c, delta).String(), nil
}

// MulDiv computes a*b/c with truncation, the share/token conversion shape.
// Returns zero when c is zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	if c.Sign() == 0 {
		return big.NewInt(0)
	}
	r := new(big.Int).Mul(a, b)
	return r.Div(r, c)
}

// NumericGreaterThan compares two numeric strings without precision loss.
func NumericGreaterThan(a, b string) (bool, error) {
	na, err := decimal.NewFromString(a)
	if err != nil {
		return false, err
	}
	nb, err := decimal.NewFromString(b)
	if err != nil {
		return false, err
	}
	return na.GreaterThan(nb), nil
}

// RatioOf divides a by b as a decimal string, for report profitability math.
// Returns "0" when b is zero.
func RatioOf(a, b *big.Int) string {
	if b.Sign() == 0 {
		return "0"
	}
	da := decimal.NewFromBigInt(a, 0)
	db := decimal.NewFromBigInt(b, 0)
	return da.Div(db).String()
}

// AnnualizedRatio scales a profit ratio for a duration in milliseconds up to
// a yearly rate. Returns "0" for non-positive durations.
func AnnualizedRatio(ratio string, durationMillis uint64) (string, error) {
	if durationMillis == 0 {
		return "0", nil
	}
	r, err := decimal.NewFromString(ratio)
	if err != nil {
		return "", err
	}
	const millisPerYear = 365 * 24 * 3600 * 1000
	scale := decimal.NewFromInt(millisPerYear).Div(decimal.NewFromInt(int64(durationMillis)))
	return r.Mul(scale).String(), nil
}
