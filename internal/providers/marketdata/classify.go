package marketdata

import (
	"strings"

	"github.com/sawpanic/chartpulse/internal/market"
)

// cryptoVenues are the exchanges whose listings always trade 24/7.
var cryptoVenues = map[string]struct{}{
	"BINANCE":  {},
	"KRAKEN":   {},
	"COINBASE": {},
	"OKX":      {},
	"BYBIT":    {},
	"KUCOIN":   {},
	"GEMINI":   {},
	"BITSTAMP": {},
}

// IsCrypto reports whether the request targets a crypto market: either the
// exchange is a known crypto venue or the ticker is a dashed pair like
// BTC-USD. Everything else is treated as an equity.
func IsCrypto(spec market.RequestSpec) bool {
	if _, ok := cryptoVenues[strings.ToUpper(strings.TrimSpace(spec.Exchange))]; ok {
		return true
	}
	return strings.Contains(spec.Ticker, "-")
}

// SplitPair breaks a dashed pair into base and quote symbols. A bare symbol
// is paired against USD.
func SplitPair(ticker string) (base, quote string) {
	if i := strings.Index(ticker, "-"); i > 0 && i < len(ticker)-1 {
		return ticker[:i], ticker[i+1:]
	}
	return ticker, "USD"
}
