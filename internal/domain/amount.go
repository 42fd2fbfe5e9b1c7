package domain

import (
	"bytes"
	"fmt"
	"math/big"
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	maxAmount = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1)), 0)
	minAmount = decimal.NewFromBigInt(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127)), 0)

	// i128 needs at most 39 digits
	amountPattern = regexp.MustCompile(`^-?[0-9]{1,39}$`)
)

// maxAmountDigits bounds exponents: any non-zero value scaled past it is out of range.
const maxAmountDigits = 39

// Amount is a signed 128-bit integer quantity of an asset in its smallest unit.
// The zero value is 0.
type Amount struct {
	d decimal.Decimal
}

// NewAmount validates that d is an integer inside the signed 128-bit range.
func NewAmount(d decimal.Decimal) (Amount, error) {
	if d.IsZero() {
		return Amount{}, nil
	}
	exp := d.Exponent()
	if exp > maxAmountDigits {
		return Amount{}, fmt.Errorf("%w: exponent %d overflows i128", ErrInvalidAmount, exp)
	}
	// a coefficient with fewer digits than the negative exponent always leaves a fraction
	if exp < 0 && int(-exp) > len(d.Coefficient().Text(10)) {
		return Amount{}, fmt.Errorf("%w: exponent %d is not an integer", ErrInvalidAmount, exp)
	}
	if !d.Equal(d.Truncate(0)) {
		return Amount{}, fmt.Errorf("%w: %s is not an integer", ErrInvalidAmount, clip(d.String()))
	}
	if d.GreaterThan(maxAmount) || d.LessThan(minAmount) {
		return Amount{}, fmt.Errorf("%w: %s overflows i128", ErrInvalidAmount, clip(d.String()))
	}

	return Amount{d: d}, nil
}

// AmountFromInt64 builds an Amount from an int64, which always fits.
func AmountFromInt64(v int64) Amount {
	return Amount{d: decimal.NewFromInt(v)}
}

// ParseAmount parses a base-10 integer string: an optional minus sign and up to 39 digits.
func ParseAmount(s string) (Amount, error) {
	if !amountPattern.MatchString(s) {
		return Amount{}, fmt.Errorf("%w: %q is not a base-10 integer", ErrInvalidAmount, clip(s))
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q is not a base-10 integer", ErrInvalidAmount, s)
	}
	return NewAmount(decimal.NewFromBigInt(v, 0))
}

// clip keeps error messages short whatever the caller sent.
func clip(s string) string {
	const limit = 48
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// Decimal returns the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// BigInt returns the value as a big.Int.
func (a Amount) BigInt() *big.Int {
	return a.d.BigInt()
}

func (a Amount) String() string {
	return a.d.String()
}

// Cmp compares a and b: -1 if a < b, 0 if equal, +1 if a > b.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// GreaterThanOrEqual reports whether a >= b.
func (a Amount) GreaterThanOrEqual(b Amount) bool {
	return a.d.GreaterThanOrEqual(b.d)
}

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.d.LessThan(b.d)
}

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool {
	return a.d.IsNegative()
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// Add returns a+b, failing on i128 overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	return NewAmount(a.d.Add(b.d))
}

// Sub returns a-b, failing on i128 overflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	return NewAmount(a.d.Sub(b.d))
}

// MarshalJSON encodes the amount as a decimal string, as i128 does not fit a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare integers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
