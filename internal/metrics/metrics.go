// Package metrics holds the shared arithmetic used by every source adapter:
// period-over-period deltas, ratio rounding, and the underperformer filter.
// Each adapter used to carry its own copy of this math; it lives here once so
// cross-vendor comparisons stay consistent.
package metrics

import "math"

// Round rounds v to the given number of decimal places using
// round-half-away-from-zero (multiply up, round, divide back). All rate
// metrics reported by adapters go through this helper.
func Round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// Delta returns the percentage change from previous to current, rounded to
// one decimal place. Returns nil when previous is zero, since a delta against an
// empty prior period is undefined, not infinite.
func Delta(current, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	d := math.Round(((current-previous)/previous)*1000) / 10
	return &d
}

// DeltaFromCounts is Delta for integer counts.
func DeltaFromCounts(current, previous int64) *float64 {
	return Delta(float64(current), float64(previous))
}

// Rate returns part/whole as a percentage rounded to the given decimals, or 0
// when whole is zero.
func Rate(part, whole float64, decimals int) float64 {
	if whole == 0 {
		return 0
	}
	return Round(part/whole*100, decimals)
}

// Average returns the arithmetic mean of values, or 0 for an empty slice.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Underperforming reports whether an item should be flagged against its
// cohort. Both conditions must hold: the item's rate is below fraction of the
// cohort average AND its volume clears the minimum floor. The volume floor
// keeps low-traffic noise from being flagged.
func Underperforming(rate, cohortAvg, volume, fraction, minVolume float64) bool {
	if cohortAvg == 0 {
		return false
	}
	return rate < cohortAvg*fraction && volume >= minVolume
}
