// Package wire holds the JSON value codecs shared by the HTTP API and the
// rule importer.
package wire

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// maxIntDigits matches the NUMERIC(12,2) money columns.
const maxIntDigits = 10

// Decimal reads a money value given either as a JSON string or number.
// Values must fit NUMERIC(12,2): at most 10 integer digits and 2 decimals.
func Decimal(d *jx.Decoder) (decimal.Decimal, error) {
	var (
		v   decimal.Decimal
		err error
	)
	switch tt := d.Next(); tt {
	case jx.String:
		s, serr := d.Str()
		if serr != nil {
			return decimal.Zero, serr
		}
		v, err = decimal.NewFromString(s)
	case jx.Number:
		n, nerr := d.Num()
		if nerr != nil {
			return decimal.Zero, nerr
		}
		v, err = decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("expected decimal, got %s", tt)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return checkMoney(v)
}

// checkMoney bounds v by its digit count and exponent only, so huge exponents
// are rejected without being expanded.
func checkMoney(v decimal.Decimal) (decimal.Decimal, error) {
	if v.IsZero() {
		return decimal.Zero, nil
	}
	digits, exp := int64(v.NumDigits()), int64(v.Exponent())
	if digits+exp > maxIntDigits {
		return decimal.Zero, errors.Errorf("amount out of range: more than %d integer digits", maxIntDigits)
	}
	if exp < -2 {
		if -exp > digits+2 || !v.Equal(v.Round(2)) {
			return decimal.Zero, errors.New("amount has more than 2 decimal places")
		}
	}
	return v, nil
}

// NullDecimal is Decimal that also accepts null.
func NullDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	if d.Next() == jx.Null {
		return decimal.NullDecimal{}, d.Null()
	}
	v, err := Decimal(d)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

// Strings reads an array of strings. Null reads as an empty slice.
func Strings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// Time reads an RFC 3339 timestamp.
func Time(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse time")
	}
	return t, nil
}

// NullTime is Time that also accepts null.
func NullTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	t, err := Time(d)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// NullInt reads an integer or null.
func NullInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Money writes v as a string with exactly two decimals.
func Money(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

// MoneyField writes a named money field.
func MoneyField(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	Money(e, v)
}
