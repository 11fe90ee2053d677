package sponsorpay

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FeeRate is a percentage held in fixed point, with four fractional digits
// of precision. A FeeRate of 50000 is 5%, and 29000 is 2.9%.
type FeeRate int64

const (
	feeRateDigits = 4
	feeRateScale  = 10000

	// MaxFeeRate is 100%.
	MaxFeeRate FeeRate = 100 * feeRateScale
)

// parseDecimal parses the given decimal string into an integer scaled by
// 10^digits. More fractional digits than allowed is an error, as are
// exponents, so no precision is ever lost.
func parseDecimal(s string, digits int) (int64, error) {
	s = strings.TrimSpace(s)

	neg := strings.HasPrefix(s, "-")

	if neg {
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")

	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if len(frac) > digits {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, digits)
	}

	if whole == "" {
		whole = "0"
	}

	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
			}
		}
	}

	frac += strings.Repeat("0", digits-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)

	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, err)
	}

	f, err := strconv.ParseInt(frac, 10, 64)

	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, err)
	}

	scale := int64(math.Pow10(digits))

	if w > (math.MaxInt64-f)/scale {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}

	n := w*scale + f

	if neg {
		n = -n
	}
	return n, nil
}

// ParseCents parses a decimal amount of dollars, such as "250.33", into
// cents. At most two decimal places are accepted.
func ParseCents(s string) (int64, error) { return parseDecimal(s, 2) }

// FormatCents formats the given amount of cents as dollars, for example
// 25033 is formatted as "$250.33".
func FormatCents(cents int64) string {
	sign := ""

	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// ParseFeeRate parses a percentage such as "5" or "2.75" into a FeeRate. The
// percentage must lie between 0 and 100 inclusive.
func ParseFeeRate(s string) (FeeRate, error) {
	n, err := parseDecimal(s, feeRateDigits)

	if err != nil {
		return 0, err
	}

	r := FeeRate(n)

	if r < 0 || r > MaxFeeRate {
		return 0, fmt.Errorf("%w: fee percent %s out of range", ErrInvalidAmount, s)
	}
	return r, nil
}

// FeeRateFromFloat converts the given percentage into a FeeRate, rounding to
// the nearest representable rate. This is only meant for configuration
// values, fee arithmetic never touches floating point.
func FeeRateFromFloat(percent float64) (FeeRate, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%w: fee percent %v out of range", ErrInvalidAmount, percent)
	}
	return FeeRate(math.Round(percent * feeRateScale)), nil
}

func (r FeeRate) String() string {
	s := strconv.FormatInt(int64(r)/feeRateScale, 10)

	if frac := int64(r) % feeRateScale; frac != 0 {
		s += "." + strings.TrimRight(fmt.Sprintf("%04d", frac), "0")
	}
	return s
}
