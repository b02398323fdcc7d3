package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/chartpulse/internal/cache"
	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/infrastructure/db"
	"github.com/sawpanic/chartpulse/internal/market"
	"github.com/sawpanic/chartpulse/internal/persistence"
	"github.com/sawpanic/chartpulse/internal/telemetry"
)

// statsWindow is the aggregation window for telemetry rollups.
const statsWindow = 60 * time.Minute

// defaultReportsLimit caps GET /reports when no limit is given.
const defaultReportsLimit = 20

// maxReportsLimit is the hard ceiling for GET /reports.
const maxReportsLimit = 200

// defaultNumCandles applies when POST /reports/generate omits num_candles.
const defaultNumCandles = 150

// Handlers serves the operator endpoints over the shared cache, telemetry
// sink, report generator, and report index.
type Handlers struct {
	cache     *cache.TieredCache
	sink      *telemetry.Sink
	generator ReportGenerator
	dbm       *db.Manager
	started   time.Time
}

// NewHandlers wires the operator handlers to the process-wide components.
// generator may be nil when the serve process has no pipeline.
func NewHandlers(store *cache.TieredCache, sink *telemetry.Sink, generator ReportGenerator, dbm *db.Manager) *Handlers {
	return &Handlers{
		cache:     store,
		sink:      sink,
		generator: generator,
		dbm:       dbm,
		started:   time.Now(),
	}
}

// writeJSON writes a JSON response with a fallback on encoding failure.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

// writeError writes the standardized error payload.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value(requestIDKey).(string)
	if requestID == "" {
		requestID = "unknown"
	}
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.dbm != nil && h.dbm.IsEnabled() {
		if err := h.dbm.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	dbStats := map[string]interface{}{"enabled": false}
	if h.dbm != nil {
		dbStats = h.dbm.Stats()
	}

	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: time.Since(h.started).Seconds(),
		CacheEnabled:  h.cache.Enabled(),
		Database:      dbStats,
	})
}

// CacheStats handles GET /cache/stats.
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

// CacheClearExpired handles POST /cache/clear-expired.
func (h *Handlers) CacheClearExpired(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ClearResponse{Removed: h.cache.ClearExpired()})
}

// CacheClear handles POST /cache/clear.
func (h *Handlers) CacheClear(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ClearResponse{Removed: h.cache.ClearAll()})
}

// TelemetryStats handles GET /telemetry/stats.
func (h *Handlers) TelemetryStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.telemetrySnapshot())
}

// TelemetryReset handles POST /telemetry/reset.
func (h *Handlers) TelemetryReset(w http.ResponseWriter, r *http.Request) {
	h.sink.Reset()
	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "reset"})
}

// TelemetryReport handles GET /telemetry/report with the operator text
// rollup.
func (h *Handlers) TelemetryReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.sink.Report()))
}

// GenerateReport handles POST /reports/generate: it runs the full pipeline
// synchronously and returns the composed report path. The route carries its
// own deadline since a cold request spans provider, renderer, and LLM calls.
func (h *Handlers) GenerateReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.generator == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "report_generation_disabled",
			"This server was started without a report pipeline")
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_body",
			"Request body must be a JSON object")
		return
	}
	if strings.TrimSpace(req.Ticker) == "" {
		h.writeError(w, r, http.StatusBadRequest, "missing_ticker", "ticker is required")
		return
	}

	interval, err := market.ParseInterval(req.Interval)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_interval", err.Error())
		return
	}
	numCandles := req.NumCandles
	if numCandles == 0 {
		numCandles = defaultNumCandles
	}

	result, err := h.generator.GenerateReport(r.Context(), market.RequestSpec{
		Ticker:     req.Ticker,
		Interval:   interval,
		NumCandles: numCandles,
		Exchange:   req.Exchange,
	})
	if err != nil {
		status, code := generateFailureStatus(err)
		h.writeError(w, r, status, code, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, GenerateResponse{
		Path:      result.Path,
		Message:   result.Message,
		RequestID: result.RequestID,
		ElapsedMS: float64(result.Elapsed) / float64(time.Millisecond),
	})
}

// generateFailureStatus maps pipeline error kinds onto HTTP statuses.
func generateFailureStatus(err error) (int, string) {
	kind := errs.KindOf(err)
	switch kind {
	case errs.ConfigInvalid, errs.InvalidInterval:
		return http.StatusBadRequest, string(kind)
	case errs.UnknownSymbol:
		return http.StatusNotFound, string(kind)
	case errs.MissingCredentials:
		return http.StatusServiceUnavailable, string(kind)
	case errs.UpstreamUnavailable, errs.AnalysisUnavailable:
		return http.StatusBadGateway, string(kind)
	case "":
		return http.StatusInternalServerError, "report_generation_failed"
	default:
		return http.StatusInternalServerError, string(kind)
	}
}

// Reports handles GET /reports with optional symbol and limit query
// parameters.
func (h *Handlers) Reports(w http.ResponseWriter, r *http.Request) {
	if h.dbm == nil || !h.dbm.IsEnabled() {
		h.writeError(w, r, http.StatusServiceUnavailable, "report_index_disabled",
			"The report index database is not enabled")
		return
	}

	limit := defaultReportsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, r, http.StatusBadRequest, "invalid_limit",
				"limit must be a positive integer")
			return
		}
		if parsed > maxReportsLimit {
			parsed = maxReportsLimit
		}
		limit = parsed
	}

	repo := h.dbm.Reports()
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))

	var (
		recs []persistence.ReportRecord
		err  error
	)
	if symbol != "" {
		recs, err = repo.ListBySymbol(r.Context(), symbol, limit)
	} else {
		recs, err = repo.Latest(r.Context(), limit)
	}
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "report_index_error",
			"Failed to query the report index")
		return
	}

	h.writeJSON(w, http.StatusOK, ReportsResponse{Count: len(recs), Reports: recs})
}

// NotFound handles unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}

// telemetrySnapshot builds the shared stats rollup for the JSON endpoint and
// the websocket push.
func (h *Handlers) telemetrySnapshot() TelemetryStatsResponse {
	ops := make(map[string]telemetry.OpStats, 4)
	for _, op := range []telemetry.Op{
		telemetry.OpDataFetch,
		telemetry.OpChartGen,
		telemetry.OpLLMAnalyze,
		telemetry.OpReportGen,
	} {
		stats := h.sink.OpStats(op, statsWindow)
		if stats.Count == 0 {
			continue
		}
		ops[string(op)] = stats
	}

	return TelemetryStatsResponse{
		Timestamp:     time.Now().UTC(),
		Session:       h.sink.Session(),
		CacheHitRates: h.sink.CacheHitRates(),
		Ops:           ops,
	}
}
