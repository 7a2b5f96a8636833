// Package statistics implements the integer statistics used to decide reward
// eligibility. Values are non-negative *big.Int with uint256 semantics: every
// division truncates and no subtraction is allowed to go below zero.
package statistics

import (
	"math/big"
)

// Sum returns the sum of values.
func Sum(values []*big.Int) *big.Int {
	sum := new(big.Int)
	for _, v := range values {
		if v != nil {
			sum.Add(sum, v)
		}
	}
	return sum
}

// Mean returns the truncated arithmetic mean of values, zero for an empty slice.
func Mean(values []*big.Int) *big.Int {
	if len(values) == 0 {
		return new(big.Int)
	}
	sum := Sum(values)
	return sum.Quo(sum, big.NewInt(int64(len(values))))
}

// AbsDiff returns |a - b|.
func AbsDiff(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Sub(a, b)
	}
	return new(big.Int).Sub(b, a)
}

// SatSub returns a - b, or zero when b > a.
func SatSub(a, b *big.Int) *big.Int {
	if b.Cmp(a) >= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(a, b)
}

// Variance returns the population variance of values together with their
// mean. Deviations are taken as |x - mean| before squaring.
func Variance(values []*big.Int) (variance, mean *big.Int) {
	mean = Mean(values)
	if len(values) == 0 {
		return new(big.Int), mean
	}
	sum := new(big.Int)
	for _, v := range values {
		if v == nil {
			v = new(big.Int)
		}
		d := AbsDiff(v, mean)
		sum.Add(sum, d.Mul(d, d))
	}
	return sum.Quo(sum, big.NewInt(int64(len(values)))), mean
}

// Stddev returns the floor square root of the population variance together
// with the mean.
func Stddev(values []*big.Int) (stddev, mean *big.Int) {
	variance, mean := Variance(values)
	return new(big.Int).Sqrt(variance), mean
}

// LowerBound returns mean - factor*stddev, floored at zero.
func LowerBound(mean, stddev *big.Int, factor uint64) *big.Int {
	dev := new(big.Int).Mul(stddev, new(big.Int).SetUint64(factor))
	return SatSub(mean, dev)
}

// Eligible reports whether score >= mean - stddev, with the threshold floored
// at zero instead of wrapping when stddev > mean.
func Eligible(score, mean, stddev *big.Int) bool {
	return EligibleWithFactor(score, mean, stddev, 1)
}

// EligibleWithFactor is Eligible with the deviation scaled by factor.
func EligibleWithFactor(score, mean, stddev *big.Int, factor uint64) bool {
	return score.Cmp(LowerBound(mean, stddev, factor)) >= 0
}

// InnerMean returns the mean of the values lying within one standard
// deviation of the mean, i.e. inside [mean-stddev, mean+stddev]. It is zero
// when no value qualifies.
func InnerMean(values []*big.Int) *big.Int {
	stddev, mean := Stddev(values)
	lo := SatSub(mean, stddev)
	hi := new(big.Int).Add(mean, stddev)

	sum := new(big.Int)
	var n int64
	for _, v := range values {
		if v == nil {
			v = new(big.Int)
		}
		if v.Cmp(lo) >= 0 && v.Cmp(hi) <= 0 {
			sum.Add(sum, v)
			n++
		}
	}
	if n == 0 {
		return new(big.Int)
	}
	return sum.Quo(sum, big.NewInt(n))
}
