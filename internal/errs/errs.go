package errs

import (
	"errors"
	"fmt"
)

// Kind is the short stable tag attached to every pipeline failure.
type Kind string

const (
	MissingCredentials     Kind = "missing_credentials"
	UpstreamUnavailable    Kind = "upstream_unavailable"
	UnknownSymbol          Kind = "unknown_symbol"
	InvalidInterval        Kind = "invalid_interval"
	SchemaMismatch         Kind = "schema_mismatch"
	IndicatorComputeFailed Kind = "indicator_compute_failed"
	ChartRenderFailed      Kind = "chart_render_failed"
	AnalysisEmpty          Kind = "analysis_empty"
	AnalysisUnavailable    Kind = "analysis_unavailable"
	ReportComposeFailed    Kind = "report_compose_failed"
	CacheCorrupt           Kind = "cache_corrupt"
	ConfigInvalid          Kind = "config_invalid"
)

// Error is a stage failure carrying the kind tag plus the stage and ticker
// for diagnostics.
type Error struct {
	Kind   Kind
	Stage  string
	Ticker string
	Err    error
}

// New builds an Error from a formatted message.
func New(kind Kind, stage, ticker, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Stage: stage, Ticker: ticker, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches kind, stage and ticker to an underlying error.
func Wrap(kind Kind, stage, ticker string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Ticker: ticker, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Stage != "" && e.Ticker != "":
		return fmt.Sprintf("%s: %s [%s]: %v", e.Kind, e.Stage, e.Ticker, e.Err)
	case e.Stage != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two Errors by kind, so errors.Is(err, &Error{Kind: k}) and the
// IsKind helper both work through wrap chains.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the kind from an error chain, or "" when none is attached.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
