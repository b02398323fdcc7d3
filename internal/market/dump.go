package market

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// dumpRow is the on-disk row shape consumed by the external chart renderer.
// The date column doubles as the index.
type dumpRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// WriteDump serializes the series as a JSON row table at path.
func WriteDump(path string, s Series) error {
	rows := make([]dumpRow, 0, s.Len())
	for _, c := range s.Candles {
		rows = append(rows, dumpRow{
			Date:   time.Unix(c.Time, 0).UTC().Format(time.RFC3339),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode series dump: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write series dump %s: %w", path, err)
	}
	return nil
}

// ReadDump loads a series dump written by WriteDump. Ticker and interval are
// not part of the dump; callers attach them if needed.
func ReadDump(path string) (Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Series{}, fmt.Errorf("failed to read series dump %s: %w", path, err)
	}
	var rows []dumpRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return Series{}, fmt.Errorf("failed to decode series dump %s: %w", path, err)
	}
	s := Series{Candles: make([]Candle, 0, len(rows))}
	for _, r := range rows {
		ts, err := time.Parse(time.RFC3339, r.Date)
		if err != nil {
			return Series{}, fmt.Errorf("bad date %q in series dump: %w", r.Date, err)
		}
		s.Candles = append(s.Candles, Candle{
			Time:   ts.Unix(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return s, nil
}
