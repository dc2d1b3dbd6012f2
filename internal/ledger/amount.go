package ledger

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"

	"ledger-serverless/internal/apperr"
)

// Amount is a monetary value in cents. It is written to and read from JSON as
// a decimal number, e.g. 20.5.
type Amount int64

// MaxAmount bounds a single loan operation, in cents.
const MaxAmount Amount = 100_000_000_000

var (
	ErrAmountFormat    = errors.New("amount must be a number with at most two decimal places")
	ErrAmountPrecision = errors.New("amount must have at most two decimal places")
)

func ParseAmount(value string) (Amount, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrAmountFormat
	}
	if math.Abs(f)*100 > float64(MaxAmount) {
		return 0, ErrAmountFormat
	}

	if decimalPlaces(value) > 2 {
		return 0, ErrAmountPrecision
	}
	return Amount(math.Round(f * 100)), nil
}

// decimalPlaces counts the significant fractional digits of a decimal literal,
// taking an exponent into account. value must already parse as a float.
func decimalPlaces(value string) int {
	mantissa, exp := value, 0
	if i := strings.IndexAny(value, "eE"); i >= 0 {
		parsed, err := strconv.Atoi(value[i+1:])
		if err != nil {
			return math.MaxInt
		}
		mantissa, exp = value[:i], parsed
	}

	_, fraction, _ := strings.Cut(mantissa, ".")
	places := len(strings.TrimRight(fraction, "0")) - exp
	if places < 0 {
		return 0
	}
	return places
}

func (a Amount) String() string {
	return strconv.FormatFloat(float64(a)/100, 'f', -1, 64)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == '"' {
		return apperr.Invalid(ErrAmountFormat)
	}

	parsed, err := ParseAmount(string(data))
	if err != nil {
		return apperr.Invalid(err)
	}
	*a = parsed
	return nil
}
