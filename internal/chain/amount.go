package chain

import (
	"math/big"
	"strings"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// ParseAmount converts a decimal string like "1.25" to the smallest unit
// using the given number of decimal places. Excess decimal digits are
// rejected rather than truncated.
func ParseAmount(amount string, decimalPlaces int) (*big.Int, error) {
	if amount == "" {
		return nil, walleterr.ErrInvalidAmount
	}

	if strings.HasPrefix(amount, "-") {
		return nil, walleterr.ErrInvalidAmount
	}

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, walleterr.ErrInvalidAmount
	}

	intPart := parts[0]
	decPart := ""
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if intPart == "" {
		intPart = "0"
	}
	for _, c := range intPart {
		if c < '0' || c > '9' {
			return nil, walleterr.ErrInvalidAmount
		}
	}
	intVal, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, walleterr.ErrInvalidAmount
	}

	multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimalPlaces)), nil)
	result := new(big.Int).Mul(intVal, multiplier)

	if decPart != "" {
		for _, c := range decPart {
			if c < '0' || c > '9' {
				return nil, walleterr.ErrInvalidAmount
			}
		}
		if len(decPart) > decimalPlaces {
			return nil, walleterr.WithSuggestion(
				walleterr.ErrInvalidAmount,
				"the native coin supports at most 8 decimal places",
			)
		}
		for len(decPart) < decimalPlaces {
			decPart += "0"
		}
		decVal, ok := new(big.Int).SetString(decPart, 10)
		if !ok {
			return nil, walleterr.ErrInvalidAmount
		}
		result = result.Add(result, decVal)
	}

	return result, nil
}

// ParseNativeAmount parses a native-coin decimal string into int64
// smallest units, rejecting values that overflow int64.
func ParseNativeAmount(amount string) (int64, error) {
	v, err := ParseAmount(amount, Decimals)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, walleterr.ErrInvalidAmount
	}
	return v.Int64(), nil
}

// FormatAmount renders a smallest-unit value as a decimal string with
// trailing zeros trimmed ("1.5" not "1.50000000").
func FormatAmount(v *big.Int, decimalPlaces int) string {
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)

	multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimalPlaces)), nil)
	intPart, decPart := new(big.Int).QuoRem(abs, multiplier, new(big.Int))

	s := intPart.String()
	if decPart.Sign() != 0 {
		dec := decPart.String()
		for len(dec) < decimalPlaces {
			dec = "0" + dec
		}
		dec = strings.TrimRight(dec, "0")
		s += "." + dec
	}
	if neg {
		s = "-" + s
	}
	return s
}

// FormatNativeAmount renders an int64 smallest-unit native value.
func FormatNativeAmount(v int64) string {
	return FormatAmount(big.NewInt(v), Decimals)
}
