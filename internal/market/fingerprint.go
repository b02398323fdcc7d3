package market

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// fingerprintCols is the fixed column count of an OHLCV table.
const fingerprintCols = 5

// emptyFingerprint is returned for series with no bars.
const emptyFingerprint = "empty_series"

// Fingerprint derives a 16-hex-character digest identifying the logical
// dataset. Shape, first and last timestamps, and the last close are a
// sufficient statistic for append-only bar data.
func (s Series) Fingerprint() string {
	if s.Empty() {
		return emptyFingerprint
	}
	first := s.Candles[0]
	last := s.Candles[len(s.Candles)-1]
	parts := []string{
		fmt.Sprintf("shape:%dx%d", len(s.Candles), fingerprintCols),
		fmt.Sprintf("start:%d", first.Time),
		fmt.Sprintf("end:%d", last.Time),
		fmt.Sprintf("last_close:%.4f", last.Close),
	}
	sum := md5.Sum([]byte(strings.Join(parts, "_")))
	return hex.EncodeToString(sum[:])[:16]
}
