package marketdata

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/market"
)

const (
	APIKeyEnv = "ALPHA_VANTAGE_API_KEY"

	stageFetch    = "data_fetch"
	userAgent     = "chartpulse/1.0"
	maxBodyBytes  = 32 << 20
	compactRows   = 100
	fetchRetries  = 2
	retryBackoff  = time.Second
	breakerTrips  = 3
	breakerWindow = 60 * time.Second
	breakerReopen = 30 * time.Second
)

// intradayParam maps bar intervals onto the upstream intraday granularity
// values. Intervals absent here cannot be served intraday.
var intradayParam = map[market.Interval]string{
	market.Interval1m:  "1min",
	market.Interval5m:  "5min",
	market.Interval15m: "15min",
	market.Interval30m: "30min",
	market.Interval1h:  "60min",
}

// Provider fetches a normalized OHLCV series for one request.
type Provider interface {
	Fetch(ctx context.Context, spec market.RequestSpec) (market.Series, error)
}

// AlphaVantage fetches candles from an Alpha Vantage compatible HTTP API in
// CSV form. Calls are rate limited and wrapped in a circuit breaker so a
// flapping upstream sheds load fast instead of queueing timeouts.
type AlphaVantage struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	retryDelay time.Duration
}

// NewAlphaVantage builds the client from config, reading the API key from
// the environment. A missing key is reported on the first Fetch, before any
// network call.
func NewAlphaVantage(cfg config.ProviderConfig) *AlphaVantage {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.alphavantage.co"
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 75
	}
	if cfg.Burst == 0 {
		cfg.Burst = 5
	}

	settings := gobreaker.Settings{
		Name:     "alphavantage",
		Interval: breakerWindow,
		Timeout:  breakerReopen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= breakerTrips {
				return true
			}
			if counts.Requests >= 10 {
				errorRate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
				return errorRate >= 50.0
			}
			return false
		},
		// Only transport-level trouble should trip the breaker; a bad
		// symbol is the caller's problem, not the upstream's.
		IsSuccessful: func(err error) bool {
			return err == nil || !errs.IsKind(err, errs.UpstreamUnavailable)
		},
	}

	return &AlphaVantage{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  os.Getenv(APIKeyEnv),
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.Burst),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		retryDelay: retryBackoff,
	}
}

// Fetch retrieves, normalizes and trims the series for spec.
func (p *AlphaVantage) Fetch(ctx context.Context, spec market.RequestSpec) (market.Series, error) {
	spec = spec.Normalize()
	if p.apiKey == "" {
		return market.Series{}, errs.New(errs.MissingCredentials, stageFetch, spec.Ticker,
			"%s is not set", APIKeyEnv)
	}

	crypto := IsCrypto(spec)
	days := DaysToFetch(spec)
	reqURL, err := p.buildQuery(spec, crypto, days)
	if err != nil {
		return market.Series{}, err
	}

	var table rawTable
	for attempt := 0; ; attempt++ {
		table, err = p.fetchTable(ctx, reqURL, spec.Ticker)
		if err == nil || attempt >= fetchRetries || !errs.IsKind(err, errs.UpstreamUnavailable) {
			break
		}
		select {
		case <-ctx.Done():
			return market.Series{}, errs.Wrap(errs.UpstreamUnavailable, stageFetch, spec.Ticker, ctx.Err())
		case <-time.After(p.retryDelay * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return market.Series{}, err
	}

	series, err := Normalize(table, spec.Ticker, spec.Interval, spec.NumCandles)
	if err != nil {
		return market.Series{}, err
	}
	if series.Empty() {
		return market.Series{}, errs.New(errs.UnknownSymbol, stageFetch, spec.Ticker,
			"upstream returned no usable rows for %s", spec.Ticker)
	}
	return series, nil
}

func (p *AlphaVantage) buildQuery(spec market.RequestSpec, crypto bool, days int) (string, error) {
	q := url.Values{}
	q.Set("apikey", p.apiKey)
	q.Set("datatype", "csv")

	full := float64(days)*spec.Interval.CandlesPerDay() > compactRows

	if crypto {
		base, quote := SplitPair(spec.Ticker)
		q.Set("symbol", base)
		q.Set("market", quote)
		switch spec.Interval {
		case market.Interval1d:
			q.Set("function", "DIGITAL_CURRENCY_DAILY")
		case market.Interval1w:
			q.Set("function", "DIGITAL_CURRENCY_WEEKLY")
		case market.Interval1mo:
			q.Set("function", "DIGITAL_CURRENCY_MONTHLY")
		default:
			iv, ok := intradayParam[spec.Interval]
			if !ok {
				return "", errs.New(errs.InvalidInterval, stageFetch, spec.Ticker,
					"interval %s is not served intraday by the upstream", spec.Interval)
			}
			q.Set("function", "CRYPTO_INTRADAY")
			q.Set("interval", iv)
			if full {
				q.Set("outputsize", "full")
			}
		}
	} else {
		q.Set("symbol", spec.Ticker)
		switch spec.Interval {
		case market.Interval1d:
			q.Set("function", "TIME_SERIES_DAILY_ADJUSTED")
			if full {
				q.Set("outputsize", "full")
			}
		case market.Interval1w:
			q.Set("function", "TIME_SERIES_WEEKLY_ADJUSTED")
		case market.Interval1mo:
			q.Set("function", "TIME_SERIES_MONTHLY_ADJUSTED")
		default:
			iv, ok := intradayParam[spec.Interval]
			if !ok {
				return "", errs.New(errs.InvalidInterval, stageFetch, spec.Ticker,
					"interval %s is not served intraday by the upstream", spec.Interval)
			}
			q.Set("function", "TIME_SERIES_INTRADAY")
			q.Set("interval", iv)
			if full {
				q.Set("outputsize", "full")
			}
		}
	}
	return p.baseURL + "/query?" + q.Encode(), nil
}

func (p *AlphaVantage) fetchTable(ctx context.Context, reqURL, ticker string) (rawTable, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return rawTable{}, errs.Wrap(errs.UpstreamUnavailable, stageFetch, ticker, err)
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.doRequest(ctx, reqURL, ticker)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return rawTable{}, errs.Wrap(errs.UpstreamUnavailable, stageFetch, ticker, err)
		}
		return rawTable{}, err
	}
	return result.(rawTable), nil
}

func (p *AlphaVantage) doRequest(ctx context.Context, reqURL, ticker string) (rawTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return rawTable{}, errs.Wrap(errs.UpstreamUnavailable, stageFetch, ticker, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return rawTable{}, errs.Wrap(errs.UpstreamUnavailable, stageFetch, ticker, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return rawTable{}, errs.New(errs.MissingCredentials, stageFetch, ticker,
			"upstream rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return rawTable{}, errs.New(errs.UpstreamUnavailable, stageFetch, ticker,
			"upstream status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return rawTable{}, errs.Wrap(errs.UpstreamUnavailable, stageFetch, ticker, err)
	}

	// The API answers errors as a 200 with a small JSON document even when
	// CSV was requested.
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		return rawTable{}, classifyAPIError(string(trimmed), ticker)
	}

	table, err := parseCSV(bytes.NewReader(body))
	if err != nil {
		return rawTable{}, errs.Wrap(errs.SchemaMismatch, stageFetch, ticker, err)
	}
	return table, nil
}

func classifyAPIError(body, ticker string) error {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "apikey"):
		return errs.New(errs.MissingCredentials, stageFetch, ticker, "upstream rejected the api key")
	case strings.Contains(lower, "error message"), strings.Contains(lower, "invalid api call"):
		return errs.New(errs.UnknownSymbol, stageFetch, ticker, "upstream rejected symbol %s", ticker)
	default:
		return errs.New(errs.UpstreamUnavailable, stageFetch, ticker,
			"upstream throttled the request: %s", snippet(body))
	}
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
