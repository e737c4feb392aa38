package market

import (
	"math/big"
	"strings"
)

// Decimals is the native token precision.
const Decimals = 18

// ParsePrice converts a decimal string such as "0.01" into minor units with
// exact integer arithmetic. The price must be positive and have at most
// Decimals fractional digits.
func ParsePrice(s string) (*big.Int, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &InvalidPriceError{Price: raw, Reason: "empty"}
	}
	if s[0] == '-' {
		return nil, &InvalidPriceError{Price: raw, Reason: "must be positive"}
	}
	s = strings.TrimPrefix(s, "+")

	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && frac == "" {
		return nil, &InvalidPriceError{Price: raw, Reason: "missing fractional digits"}
	}
	if whole == "" && frac == "" {
		return nil, &InvalidPriceError{Price: raw, Reason: "not a number"}
	}
	if !allDigits(whole) || !allDigits(frac) {
		return nil, &InvalidPriceError{Price: raw, Reason: "not a decimal number"}
	}
	if len(frac) > Decimals {
		return nil, &InvalidPriceError{Price: raw, Reason: "more than 18 fractional digits"}
	}

	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, &InvalidPriceError{Price: raw, Reason: "not a decimal number"}
	}
	if wei.Sign() <= 0 {
		return nil, &InvalidPriceError{Price: raw, Reason: "must be positive"}
	}
	return wei, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatUnits renders minor units as a decimal string with at least one
// fractional digit, e.g. 10^18 -> "1.0" and 10^16 -> "0.01".
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0.0"
	}
	neg := v.Sign() < 0
	digits := new(big.Int).Abs(v).String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		frac = "0"
	}
	out := whole + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}
