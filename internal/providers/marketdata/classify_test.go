package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/chartpulse/internal/market"
)

func TestIsCrypto(t *testing.T) {
	cases := []struct {
		name   string
		spec   market.RequestSpec
		crypto bool
	}{
		{"crypto_venue", market.RequestSpec{Ticker: "XBTUSD", Exchange: "KRAKEN"}, true},
		{"crypto_venue_lowercase", market.RequestSpec{Ticker: "XBTUSD", Exchange: "kraken"}, true},
		{"dashed_pair_without_venue", market.RequestSpec{Ticker: "BTC-USD"}, true},
		{"plain_equity", market.RequestSpec{Ticker: "AAPL"}, false},
		{"equity_on_unknown_exchange", market.RequestSpec{Ticker: "AAPL", Exchange: "NASDAQ"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.crypto, IsCrypto(tc.spec))
		})
	}
}

func TestSplitPair(t *testing.T) {
	t.Run("dashed_pair", func(t *testing.T) {
		base, quote := SplitPair("BTC-USD")
		assert.Equal(t, "BTC", base)
		assert.Equal(t, "USD", quote)
	})

	t.Run("bare_symbol_defaults_to_usd", func(t *testing.T) {
		base, quote := SplitPair("ETH")
		assert.Equal(t, "ETH", base)
		assert.Equal(t, "USD", quote)
	})
}

func TestDaysToFetch(t *testing.T) {
	t.Run("crypto_hourly", func(t *testing.T) {
		spec := market.RequestSpec{Ticker: "BTC-USD", Interval: market.Interval1h, NumCandles: 150, Exchange: "KRAKEN"}
		// ceil(150/24 * 1.2) + 2
		assert.Equal(t, 10, DaysToFetch(spec))
	})

	t.Run("equity_daily", func(t *testing.T) {
		spec := market.RequestSpec{Ticker: "AAPL", Interval: market.Interval1d, NumCandles: 30}
		// ceil(30/1 * 1.7) + 2
		assert.Equal(t, 53, DaysToFetch(spec))
	})

	t.Run("weekly_spans_multiple_days_per_bar", func(t *testing.T) {
		spec := market.RequestSpec{Ticker: "AAPL", Interval: market.Interval1w, NumCandles: 10}
		// ceil(10*7 * 1.7) + 2
		assert.Equal(t, 121, DaysToFetch(spec))
	})

	t.Run("equity_window_wider_than_crypto", func(t *testing.T) {
		crypto := market.RequestSpec{Ticker: "BTC-USD", Interval: market.Interval1d, NumCandles: 100}
		equity := market.RequestSpec{Ticker: "AAPL", Interval: market.Interval1d, NumCandles: 100}
		assert.Greater(t, DaysToFetch(equity), DaysToFetch(crypto))
	})
}
