package indicators

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/markcheno/go-talib"

	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/market"
)

const (
	bbPeriod    = 20
	bbStdDev    = 2.0
	rsiPeriod   = 14
	stochPeriod = 14
	kSmooth     = 3
	dSmooth     = 3
)

// Snapshot is the scalar digest of a series after indicator computation.
// NaN fields mean the series is still inside the indicator's warm-up window.
type Snapshot struct {
	LatestClose float64
	PeriodHigh  float64
	PeriodLow   float64
	BBUpper     float64
	BBMiddle    float64
	BBLower     float64
	StochK      float64
	StochD      float64
}

// Compute derives the Snapshot for the latest bar: full-window extremes,
// Bollinger Bands (20, 2) and smoothed StochRSI (14, 14, 3, 3). Bollinger
// fields round to 2 decimals, Stoch to integers, the rest to 4.
func Compute(series market.Series) (Snapshot, error) {
	if series.Empty() {
		return Snapshot{}, errs.New(errs.IndicatorComputeFailed, "indicators", series.Ticker,
			"cannot compute indicators on an empty series")
	}

	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()
	n := len(closes)

	periodHigh, periodLow := highs[n-1], lows[n-1]
	if n >= 2 {
		periodHigh = last(talib.Max(highs, n))
		periodLow = last(talib.Min(lows, n))
	}

	snap := Snapshot{
		LatestClose: round(closes[n-1], 4),
		PeriodHigh:  round(periodHigh, 4),
		PeriodLow:   round(periodLow, 4),
		BBUpper:     math.NaN(),
		BBMiddle:    math.NaN(),
		BBLower:     math.NaN(),
	}

	if n >= bbPeriod {
		upper, middle, lower := talib.BBands(closes, bbPeriod, bbStdDev, bbStdDev, talib.SMA)
		snap.BBUpper = round(last(upper), 2)
		snap.BBMiddle = round(last(middle), 2)
		snap.BBLower = round(last(lower), 2)
	}

	k, d := stochRSI(closes)
	snap.StochK = round(k, 0)
	snap.StochD = round(d, 0)
	return snap, nil
}

// stochRSI composes RSI, a rolling stochastic of the RSI line, and two SMA
// smoothing passes. The library leaves warm-up slots at zero, so each step
// slices off its own lookback before feeding the next.
func stochRSI(closes []float64) (k, d float64) {
	k, d = math.NaN(), math.NaN()
	if len(closes) <= rsiPeriod {
		return k, d
	}
	validRSI := talib.Rsi(closes, rsiPeriod)[rsiPeriod:]
	if len(validRSI) < stochPeriod {
		return k, d
	}

	lowest := talib.Min(validRSI, stochPeriod)
	highest := talib.Max(validRSI, stochPeriod)
	raw := make([]float64, 0, len(validRSI)-stochPeriod+1)
	for i := stochPeriod - 1; i < len(validRSI); i++ {
		spread := highest[i] - lowest[i]
		if spread == 0 {
			raw = append(raw, math.NaN())
			continue
		}
		raw = append(raw, (validRSI[i]-lowest[i])/spread*100)
	}
	if len(raw) < kSmooth {
		return k, d
	}

	validK := talib.Sma(raw, kSmooth)[kSmooth-1:]
	k = validK[len(validK)-1]
	if len(validK) < dSmooth {
		return k, d
	}
	d = last(talib.Sma(validK, dSmooth))
	return k, d
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Available reports whether the value escaped its warm-up window.
func Available(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Format renders a value for prompts and reports, with unavailable values
// shown as N/A.
func Format(v float64, decimals int) string {
	if !Available(v) {
		return "N/A"
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// MarshalJSON encodes NaN fields as null so the document stays valid JSON
// for downstream consumers.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, 8)
	for name, v := range s.fields() {
		if Available(v) {
			m[name] = v
		} else {
			m[name] = nil
		}
	}
	return json.Marshal(m)
}

func (s Snapshot) fields() map[string]float64 {
	return map[string]float64{
		"latest_close": s.LatestClose,
		"period_high":  s.PeriodHigh,
		"period_low":   s.PeriodLow,
		"bb_upper":     s.BBUpper,
		"bb_middle":    s.BBMiddle,
		"bb_lower":     s.BBLower,
		"stoch_k":      s.StochK,
		"stoch_d":      s.StochD,
	}
}
