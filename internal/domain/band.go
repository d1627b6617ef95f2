package domain

import "github.com/shopspring/decimal"

// Band is the severity classification of a counted quantity relative to the
// item's minimum threshold.
type Band string

const (
	BandCritical Band = "critical"
	BandLow      Band = "low"
	BandHealthy  Band = "healthy"
)

// lowBandFactor is the multiplier on MinQuantity separating low from healthy.
var lowBandFactor = decimal.NewFromFloat(1.5)

// Classify places a quantity into exactly one band:
//
//	critical  quantity <  min
//	low       min <= quantity < min*1.5
//	healthy   quantity >= min*1.5
//
// It is a total function of (quantity, min); every input lands in one band.
func Classify(quantity, min decimal.Decimal) Band {
	switch {
	case quantity.LessThan(min):
		return BandCritical
	case quantity.LessThan(min.Mul(lowBandFactor)):
		return BandLow
	default:
		return BandHealthy
	}
}
