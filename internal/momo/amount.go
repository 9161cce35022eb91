package momo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FormatAmount renders an amount held in minor units as the decimal string
// the provider expects, e.g. (1425, 2) -> "14.25" and (1500, 0) -> "1500".
func FormatAmount(minor int64, exponent int) string {
	if exponent <= 0 {
		return strconv.FormatInt(minor, 10)
	}
	div := int64(1)
	for i := 0; i < exponent; i++ {
		div *= 10
	}
	whole := minor / div
	frac := minor % div
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%0*d", whole, exponent, frac)
}

// ParseAmount converts a decimal string into minor units for the given
// currency exponent. It rejects negative values and more fractional digits
// than the currency supports, keeping amounts minor-unit-safe without
// floating point.
func ParseAmount(value string, exponent int) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("amount is required")
	}
	if strings.HasPrefix(trimmed, "-") {
		return 0, errors.New("amount must be positive")
	}
	whole := trimmed
	frac := ""
	if i := strings.IndexByte(trimmed, '.'); i >= 0 {
		whole, frac = trimmed[:i], trimmed[i+1:]
	}
	if len(frac) > exponent {
		return 0, fmt.Errorf("amount has more than %d decimal places", exponent)
	}
	for len(frac) < exponent {
		frac += "0"
	}
	digits := whole + frac
	if digits == "" {
		return 0, errors.New("amount is required")
	}
	minor, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %q", value)
	}
	return minor, nil
}
