package marketdata

import (
	"math"

	"github.com/sawpanic/chartpulse/internal/market"
)

const (
	// cryptoBuffer oversizes the window for markets that trade every day.
	cryptoBuffer = 1.2
	// equityBuffer oversizes further to absorb weekends and holidays.
	equityBuffer = 1.7
	// windowPadDays is a constant pad so tiny requests still span a bar.
	windowPadDays = 2
)

// DaysToFetch sizes the upstream calendar window needed to yield at least
// NumCandles bars after market gaps are accounted for.
func DaysToFetch(spec market.RequestSpec) int {
	buffer := equityBuffer
	if IsCrypto(spec) {
		buffer = cryptoBuffer
	}
	perDay := spec.Interval.CandlesPerDay()
	if perDay <= 0 {
		return windowPadDays
	}
	return int(math.Ceil(float64(spec.NumCandles)/perDay*buffer)) + windowPadDays
}
