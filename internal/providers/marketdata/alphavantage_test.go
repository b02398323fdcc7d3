package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/market"
)

const equityCSV = `timestamp,open,high,low,close,volume
2024-01-04,103,108,102,107,6000
2024-01-03,100,105,99,104,5000
`

func newTestProvider(t *testing.T, handler http.Handler) (*AlphaVantage, *httptest.Server) {
	t.Helper()
	t.Setenv(APIKeyEnv, "test-key")
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := NewAlphaVantage(config.ProviderConfig{
		BaseURL:           server.URL,
		TimeoutSeconds:    5,
		RequestsPerMinute: 6000,
		Burst:             100,
	})
	p.retryDelay = time.Millisecond
	return p, server
}

func TestAlphaVantageFetch(t *testing.T) {
	t.Run("missing_api_key_detected_before_any_call", func(t *testing.T) {
		var calls int32
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))
		p.apiKey = ""

		_, err := p.Fetch(context.Background(), market.RequestSpec{
			Ticker: "AAPL", Interval: market.Interval1d, NumCandles: 10,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.MissingCredentials))
		assert.Zero(t, atomic.LoadInt32(&calls))
	})

	t.Run("equity_daily_happy_path", func(t *testing.T) {
		var query atomic.Value
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query.Store(r.URL.Query())
			w.Write([]byte(equityCSV))
		}))

		series, err := p.Fetch(context.Background(), market.RequestSpec{
			Ticker: "aapl", Interval: market.Interval1d, NumCandles: 10,
		})
		require.NoError(t, err)
		require.Equal(t, 2, series.Len())
		assert.Equal(t, 107.0, series.LastClose())
		assert.NoError(t, series.Validate())

		q := query.Load().(url.Values)
		assert.Equal(t, "TIME_SERIES_DAILY_ADJUSTED", q["function"][0])
		assert.Equal(t, "AAPL", q["symbol"][0])
		assert.Equal(t, "csv", q["datatype"][0])
		assert.Equal(t, "test-key", q["apikey"][0])
	})

	t.Run("crypto_intraday_query_shape", func(t *testing.T) {
		var query atomic.Value
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query.Store(r.URL.Query())
			w.Write([]byte(equityCSV))
		}))

		_, err := p.Fetch(context.Background(), market.RequestSpec{
			Ticker: "BTC-USD", Interval: market.Interval1h, NumCandles: 150, Exchange: "KRAKEN",
		})
		require.NoError(t, err)

		q := query.Load().(url.Values)
		assert.Equal(t, "CRYPTO_INTRADAY", q["function"][0])
		assert.Equal(t, "BTC", q["symbol"][0])
		assert.Equal(t, "USD", q["market"][0])
		assert.Equal(t, "60min", q["interval"][0])
		assert.Equal(t, "full", q["outputsize"][0])
	})

	t.Run("series_trimmed_to_num_candles", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(equityCSV))
		}))

		series, err := p.Fetch(context.Background(), market.RequestSpec{
			Ticker: "AAPL", Interval: market.Interval1d, NumCandles: 1,
		})
		require.NoError(t, err)
		require.Equal(t, 1, series.Len())
		assert.Equal(t, 107.0, series.LastClose())
	})

	t.Run("json_error_body_maps_to_unknown_symbol", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"Error Message": "Invalid API call. Please retry with a valid symbol."}`))
		}))

		_, err := p.Fetch(context.Background(), market.RequestSpec{
			Ticker: "NONEXIST", Interval: market.Interval1d, NumCandles: 10,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.UnknownSymbol))
	})

	t.Run("throttle_note_maps_to_upstream_unavailable", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"Note": "Thank you for using our API. Call frequency limit reached."}`))
		}))

		_, err := p.Fetch(context.Background(), market.RequestSpec{
			Ticker: "AAPL", Interval: market.Interval1d, NumCandles: 10,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.UpstreamUnavailable))
	})

	t.Run("server_errors_retried_then_surfaced", func(t *testing.T) {
		var calls int32
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))

		_, err := p.Fetch(context.Background(), market.RequestSpec{
			Ticker: "AAPL", Interval: market.Interval1d, NumCandles: 10,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.UpstreamUnavailable))
		assert.Equal(t, int32(fetchRetries+1), atomic.LoadInt32(&calls))
	})

	t.Run("breaker_opens_after_consecutive_failures", func(t *testing.T) {
		var calls int32
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))

		spec := market.RequestSpec{Ticker: "AAPL", Interval: market.Interval1d, NumCandles: 10}
		_, err := p.Fetch(context.Background(), spec)
		require.Error(t, err)

		before := atomic.LoadInt32(&calls)
		_, err = p.Fetch(context.Background(), spec)
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.UpstreamUnavailable))
		assert.Equal(t, before, atomic.LoadInt32(&calls), "open breaker must fail fast without calling upstream")
	})

	t.Run("unsupported_intraday_interval", func(t *testing.T) {
		var calls int32
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))

		_, err := p.Fetch(context.Background(), market.RequestSpec{
			Ticker: "AAPL", Interval: market.Interval4h, NumCandles: 10,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.InvalidInterval))
		assert.Zero(t, atomic.LoadInt32(&calls))
	})

	t.Run("empty_table_maps_to_unknown_symbol", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("timestamp,open,high,low,close,volume\n"))
		}))

		_, err := p.Fetch(context.Background(), market.RequestSpec{
			Ticker: "EMPTY", Interval: market.Interval1d, NumCandles: 10,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.UnknownSymbol))
	})
}
