package journal

import (
	"math/big"
)

const (
	secondsPerYear = 31536000
	secondsPerDay  = 86400
)

var (
	bpsDenominator  = big.NewInt(10000)
	yearDenominator = big.NewInt(secondsPerYear)
)

// SimpleInterestWei computes principal * aprBps * elapsed over a
// 365-day year, floored to wei. All arithmetic stays in big.Int so the
// result is exact.
func SimpleInterestWei(principal *big.Int, aprBps uint64, elapsedSeconds uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || aprBps == 0 || elapsedSeconds == 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(principal, new(big.Int).SetUint64(aprBps))
	interest.Mul(interest, new(big.Int).SetUint64(elapsedSeconds))
	interest.Div(interest, bpsDenominator)
	interest.Div(interest, yearDenominator)
	return interest
}

// accrualBucket is one day's slice of a loan's accrued interest.
type accrualBucket struct {
	// Day is the UTC midnight timestamp the bucket belongs to.
	Day uint64
	Wei *big.Int
}

// prorateDaily splits totalWei across the UTC days between start and
// asOf, weighting each day by its covered seconds. Division remainders
// are carried into the final bucket so the buckets sum to totalWei
// exactly.
func prorateDaily(totalWei *big.Int, start, asOf uint64) []accrualBucket {
	if totalWei == nil || totalWei.Sign() <= 0 || asOf <= start {
		return nil
	}
	elapsed := asOf - start
	elapsedBig := new(big.Int).SetUint64(elapsed)

	var buckets []accrualBucket
	allocated := big.NewInt(0)
	for cursor := start; cursor < asOf; {
		dayStart := cursor - cursor%secondsPerDay
		dayEnd := dayStart + secondsPerDay
		if dayEnd > asOf {
			dayEnd = asOf
		}
		covered := new(big.Int).SetUint64(dayEnd - cursor)

		share := new(big.Int).Mul(totalWei, covered)
		share.Div(share, elapsedBig)
		allocated.Add(allocated, share)

		buckets = append(buckets, accrualBucket{Day: dayStart, Wei: share})
		cursor = dayEnd
	}

	if len(buckets) > 0 {
		leftover := new(big.Int).Sub(totalWei, allocated)
		last := buckets[len(buckets)-1]
		last.Wei = new(big.Int).Add(last.Wei, leftover)
		buckets[len(buckets)-1] = last
	}
	return buckets
}
