package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	AmountConfig  = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000} // token amounts
	UsdConfig     = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000} // USD values
	PriceConfig   = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000} // USD per token unit
	RateConfig    = DecimalConfig{DecimalPrecision: 5, Scale: 100_000}       // fee/margin rates
	FundingConfig = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000} // funding index
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

type RoundingMode int

const (
	RoundDown     RoundingMode = iota // truncate toward zero
	RoundUp                           // away from zero when remainder != 0
	RoundHalfEven                     // banker's rounding
)

// DivideInt128 performs numerator / denominator with rounding.
// Denominator must be positive.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.QuoRem(numerator, denom, remainder)

	result := quotient.Int64()
	remSign := remainder.Sign()

	switch roundingMode {
	case RoundUp:
		if remSign > 0 {
			result++
		} else if remSign < 0 {
			result--
		}
	case RoundHalfEven:
		half := big.NewInt(denominator / 2)
		abs := getInt128()
		abs.Abs(remainder)
		cmp := abs.Cmp(half)
		if cmp > 0 || (cmp == 0 && denominator%2 == 0 && result%2 != 0) {
			if numerator.Sign() < 0 {
				result--
			} else {
				result++
			}
		}
		putInt128(abs)
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

// MulDiv computes a * b / denominator with an int128 intermediate.
func MulDiv(a, b, denominator int64, mode RoundingMode) int64 {
	raw := MultiplyInt128(a, b)
	result := DivideInt128(raw, denominator, mode)
	putInt128(raw)
	return result
}

// ApplyRate computes amount * rate at RateConfig scale.
func ApplyRate(amount, rate int64, mode RoundingMode) int64 {
	raw := MultiplyInt128(amount, rate)
	result := DivideInt128(raw, RateConfig.Scale, mode)
	putInt128(raw)
	return result
}

// TokenToUsd converts a token amount to USD at the given price.
func TokenToUsd(amount, price int64, mode RoundingMode) int64 {
	raw := MultiplyInt128(amount, price)
	result := DivideInt128(raw, PriceConfig.Scale, mode)
	putInt128(raw)
	return result
}

// UsdToToken converts a USD value to a token amount at the given price.
func UsdToToken(usd, price int64, mode RoundingMode) int64 {
	if price == 0 {
		return 0
	}
	raw := MultiplyInt128(usd, PriceConfig.Scale)
	result := DivideInt128(raw, price, mode)
	putInt128(raw)
	return result
}

// ConvertToken converts an amount of one token into another through
// their USD prices. Rounds the result down so residue stays with the payer.
func ConvertToken(amount, fromPrice, toPrice int64, mode RoundingMode) int64 {
	if toPrice == 0 {
		return 0
	}
	raw := MultiplyInt128(amount, fromPrice)
	result := DivideInt128(raw, toPrice, mode)
	putInt128(raw)
	return result
}
