package marketdata

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/market"
)

// adjCloseAliases are the adjusted-close spellings seen across upstream
// table formats. A plain close column always wins over these.
var adjCloseAliases = map[string]struct{}{
	"adj close":      {},
	"adj_close":      {},
	"adjusted close": {},
	"adjusted_close": {},
}

var timestampAliases = map[string]struct{}{
	"timestamp": {},
	"time":      {},
	"date":      {},
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

// Normalize turns an upstream table into a clean Series: columns are matched
// case-insensitively, adjusted close backfills a missing close, rows with
// non-finite prices are dropped, and the result is sorted ascending and
// trimmed to the last numCandles bars.
func Normalize(table rawTable, ticker string, interval market.Interval, numCandles int) (market.Series, error) {
	colIdx := make(map[string]int, len(table.columns))
	timeIdx, adjIdx := -1, -1
	for i, col := range table.columns {
		name := strings.ToLower(strings.TrimSpace(col))
		if _, ok := timestampAliases[name]; ok {
			if timeIdx == -1 {
				timeIdx = i
			}
			continue
		}
		if _, ok := adjCloseAliases[name]; ok {
			adjIdx = i
			continue
		}
		if _, seen := colIdx[name]; !seen {
			colIdx[name] = i
		}
	}
	if _, ok := colIdx["close"]; !ok && adjIdx >= 0 {
		colIdx["close"] = adjIdx
	}

	if timeIdx == -1 {
		return market.Series{}, errs.New(errs.SchemaMismatch, "data_fetch", ticker,
			"upstream table has no timestamp column")
	}
	for _, required := range []string{"open", "high", "low", "close"} {
		if _, ok := colIdx[required]; !ok {
			return market.Series{}, errs.New(errs.SchemaMismatch, "data_fetch", ticker,
				"upstream table missing %q column", required)
		}
	}
	volIdx, hasVolume := colIdx["volume"]

	candles := make([]market.Candle, 0, len(table.rows))
	for _, row := range table.rows {
		ts, ok := parseTimestamp(cell(row, timeIdx))
		if !ok {
			continue
		}
		c := market.Candle{
			Time:  ts,
			Open:  parseFloat(cell(row, colIdx["open"])),
			High:  parseFloat(cell(row, colIdx["high"])),
			Low:   parseFloat(cell(row, colIdx["low"])),
			Close: parseFloat(cell(row, colIdx["close"])),
		}
		if !c.Finite() {
			continue
		}
		if hasVolume {
			if v := parseFloat(cell(row, volIdx)); !math.IsNaN(v) && !math.IsInf(v, 0) {
				c.Volume = v
			}
		}
		candles = append(candles, c)
	}

	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Time < candles[j].Time })
	candles = dedupeByTime(candles)

	series := market.Series{Ticker: ticker, Interval: interval, Candles: candles}
	return series.Tail(numCandles), nil
}

// dedupeByTime collapses equal timestamps, keeping the later row, so the
// series stays strictly ascending.
func dedupeByTime(candles []market.Candle) []market.Candle {
	if len(candles) < 2 {
		return candles
	}
	out := candles[:1]
	for _, c := range candles[1:] {
		if c.Time == out[len(out)-1].Time {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseTimestamp(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return unix, true
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}
