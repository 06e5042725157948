// Package money provides fixed-point amounts and interest rates backed by
// shopspring/decimal. Amounts always carry two fraction digits; every
// reduction of scale rounds half-up (away from zero).
package money

import (
	"bytes"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// Scale is the number of fraction digits kept for currency amounts.
	Scale int32 = 2
	// RateScale is the number of fraction digits kept for intermediate rate math.
	RateScale int32 = 8
	// RateInputScale is the number of fraction digits stored for a rate.
	RateInputScale int32 = 4

	// amountIntDigits and rateIntDigits match NUMERIC(19,2) and NUMERIC(9,4).
	amountIntDigits = 17
	rateIntDigits   = 5

	// maxInputLen and maxFractionDigits bound parsing before any rescaling.
	maxInputLen       = 64
	maxFractionDigits = 16
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)

	// MaxAmount is the largest amount a balance, goal or posting may hold.
	MaxAmount = Amount{d: decimal.RequireFromString("99999999999999999.99")}
	// MaxRate is the largest storable interest rate.
	MaxRate = Rate{d: decimal.RequireFromString("99999.9999")}

	ErrOutOfRange = errors.New("value out of range")
)

// parseBounded parses s and rejects values whose integer part has more than
// intDigits digits or whose exponent reaches below maxFractionDigits.
func parseBounded(s string, intDigits int) (decimal.Decimal, error) {
	if len(s) > maxInputLen {
		return decimal.Zero, fmt.Errorf("%w: more than %d characters", ErrOutOfRange, maxInputLen)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}
	exp := int64(d.Exponent())
	if exp < -maxFractionDigits {
		return decimal.Zero, fmt.Errorf("%w: more than %d fraction digits", ErrOutOfRange, maxFractionDigits)
	}
	if int64(d.NumDigits())+exp > int64(intDigits) {
		return decimal.Zero, fmt.Errorf("%w: more than %d integer digits", ErrOutOfRange, intDigits)
	}
	return d, nil
}

// Amount is a currency value with a fixed scale of two.
type Amount struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Amount{d: decimal.Zero}

// FromDecimal rounds d to the currency scale.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d.Round(Scale)}
}

// Parse reads a decimal string such as "1200.50". Values that cannot fit a
// balance column are rejected.
func Parse(s string) (Amount, error) {
	d, err := parseBounded(s, amountIntDigits)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// MulRate multiplies by a fractional rate and rounds the product back to the
// currency scale.
func (a Amount) MulRate(r decimal.Decimal) Amount {
	return FromDecimal(a.d.Mul(r))
}

func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }
func (a Amount) IsPositive() bool { return a.d.IsPositive() }
func (a Amount) IsNegative() bool { return a.d.IsNegative() }
func (a Amount) IsZero() bool { return a.d.IsZero() }
func (a Amount) Decimal() decimal.Decimal { return a.d }

// String renders the amount with exactly two fraction digits.
func (a Amount) String() string { return a.d.StringFixed(Scale) }

// MarshalJSON encodes the amount as a bare JSON number, e.g. 1010.00.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	parsed, err := Parse(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (a *Amount) Scan(value interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return err
	}
	*a = FromDecimal(d)
	return nil
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Rate is a nominal annual interest rate expressed in percent, e.g. 4.5 for 4.5%.
type Rate struct {
	d decimal.Decimal
}

func NewRate(d decimal.Decimal) Rate { return Rate{d: d} }

// ParseRate reads a percentage string such as "4.25", rounded half-up to
// RateInputScale.
func ParseRate(s string) (Rate, error) {
	d, err := parseBounded(s, rateIntDigits)
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	return Rate{d: d.Round(RateInputScale)}, nil
}

func MustParseRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Rate) IsNegative() bool { return r.d.IsNegative() }
func (r Rate) IsZero() bool { return r.d.IsZero() }
func (r Rate) Equal(o Rate) bool { return r.d.Equal(o.d) }
func (r Rate) GreaterThan(o Rate) bool { return r.d.GreaterThan(o.d) }
func (r Rate) Decimal() decimal.Decimal { return r.d }
func (r Rate) String() string { return r.d.String() }

// MonthlyFraction converts the annual percentage into a monthly fraction:
// (R / 100) / 12, each division rounded half-up at RateScale.
func (r Rate) MonthlyFraction() decimal.Decimal {
	return r.d.DivRound(hundred, RateScale).DivRound(twelve, RateScale)
}

func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(r.d.String()), nil
}

func (r *Rate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	parsed, err := ParseRate(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r *Rate) Scan(value interface{}) error {
	return r.d.Scan(value)
}

func (r Rate) Value() (driver.Value, error) {
	return r.d.String(), nil
}
