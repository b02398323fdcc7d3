package market

import (
	"fmt"
	"math"
	"strings"
)

// Interval is the duration between successive bars.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
	Interval1mo Interval = "1mo"
)

// candlesPerDay maps each interval to its bar density. Weekly and monthly
// intervals are fractional since one bar spans multiple days.
var candlesPerDay = map[Interval]float64{
	Interval1m:  1440,
	Interval5m:  288,
	Interval15m: 96,
	Interval30m: 48,
	Interval1h:  24,
	Interval4h:  6,
	Interval1d:  1,
	Interval1w:  1.0 / 7.0,
	Interval1mo: 1.0 / 30.0,
}

// ParseInterval validates and canonicalizes an interval string.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := candlesPerDay[iv]; !ok {
		return "", fmt.Errorf("unsupported interval %q", s)
	}
	return iv, nil
}

// Valid reports whether the interval is one of the supported values.
func (i Interval) Valid() bool {
	_, ok := candlesPerDay[i]
	return ok
}

// CandlesPerDay returns the expected bar count per calendar day.
func (i Interval) CandlesPerDay() float64 {
	return candlesPerDay[i]
}

func (i Interval) String() string {
	return string(i)
}

// RequestSpec identifies one report request. Immutable once validated.
type RequestSpec struct {
	Ticker     string   `json:"ticker"`
	Interval   Interval `json:"interval"`
	NumCandles int      `json:"num_candles"`
	Exchange   string   `json:"exchange,omitempty"`
}

// Normalize returns a copy with the ticker and exchange uppercased.
func (s RequestSpec) Normalize() RequestSpec {
	s.Ticker = strings.ToUpper(strings.TrimSpace(s.Ticker))
	s.Exchange = strings.ToUpper(strings.TrimSpace(s.Exchange))
	return s
}

// Validate checks the spec at the request edge.
func (s RequestSpec) Validate() error {
	if strings.TrimSpace(s.Ticker) == "" {
		return fmt.Errorf("ticker is required")
	}
	if !s.Interval.Valid() {
		return fmt.Errorf("unsupported interval %q", s.Interval)
	}
	if s.NumCandles < 1 {
		return fmt.Errorf("num_candles must be at least 1, got %d", s.NumCandles)
	}
	return nil
}

// Candle is a single OHLCV bar. Time is unix seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Validate enforces the per-bar price ordering invariant.
func (c Candle) Validate() error {
	lo, hi := math.Min(c.Open, c.Close), math.Max(c.Open, c.Close)
	if c.Low > lo || hi > c.High {
		return fmt.Errorf("candle at %d violates low<=open/close<=high (o=%g h=%g l=%g c=%g)",
			c.Time, c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle at %d has negative volume %g", c.Time, c.Volume)
	}
	return nil
}

// Finite reports whether all four price fields are finite numbers.
func (c Candle) Finite() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Series is an ordered OHLCV bar sequence, strictly ascending by time.
type Series struct {
	Ticker   string   `json:"ticker,omitempty"`
	Interval Interval `json:"interval,omitempty"`
	Candles  []Candle `json:"candles"`
}

// Len returns the number of bars.
func (s Series) Len() int {
	return len(s.Candles)
}

// Empty reports whether the series has no bars.
func (s Series) Empty() bool {
	return len(s.Candles) == 0
}

// Last returns the most recent bar.
func (s Series) Last() (Candle, bool) {
	if s.Empty() {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// LastClose returns the close of the most recent bar, NaN when empty.
func (s Series) LastClose() float64 {
	last, ok := s.Last()
	if !ok {
		return math.NaN()
	}
	return last.Close
}

// Closes returns the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high column.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.High
	}
	return out
}

// Lows returns the low column.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Low
	}
	return out
}

// Validate checks strict time ordering and per-bar invariants.
func (s Series) Validate() error {
	for i, c := range s.Candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && c.Time <= s.Candles[i-1].Time {
			return fmt.Errorf("timestamps not strictly ascending at index %d (%d <= %d)",
				i, c.Time, s.Candles[i-1].Time)
		}
	}
	return nil
}

// Tail returns a copy trimmed to the last n bars.
func (s Series) Tail(n int) Series {
	if n >= len(s.Candles) {
		return s
	}
	out := s
	out.Candles = s.Candles[len(s.Candles)-n:]
	return out
}
