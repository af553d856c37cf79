package math

// FundingFee computes the fee grown on a debt principal across a funding
// index interval: (currentIndex - lastIndex) * principal at FundingConfig
// scale. Fees owed to the pool round down. A non-positive interval yields
// zero; the venue index never moves backwards, a stale read is treated as
// no growth.
func FundingFee(principal, lastIndex, currentIndex int64) int64 {
	if principal <= 0 || currentIndex <= lastIndex {
		return 0
	}
	raw := MultiplyInt128(currentIndex-lastIndex, principal)
	fee := DivideInt128(raw, FundingConfig.Scale, RoundDown)
	putInt128(raw)
	return fee
}

// BoostFee computes the borrow fee charged on placement:
// borrowAmount * boostFeeRate at RateConfig scale, rounded down.
func BoostFee(borrowAmount, boostFeeRate int64) int64 {
	if borrowAmount <= 0 || boostFeeRate <= 0 {
		return 0
	}
	return ApplyRate(borrowAmount, boostFeeRate, RoundDown)
}

// MarginRequirement computes sizeUsd * rate at RateConfig scale.
// Requirements owed by the user round up.
func MarginRequirement(sizeUsd, rate int64) int64 {
	if sizeUsd <= 0 || rate <= 0 {
		return 0
	}
	return ApplyRate(sizeUsd, rate, RoundUp)
}
