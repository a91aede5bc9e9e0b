package query

import (
	"errors"
	"time"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
	"github.com/couchcryptid/s2s-forecast-service/internal/observability"
)

// InstrumentedEngine records outcome counts and latency for every query.
type InstrumentedEngine struct {
	inner   domain.Querier
	metrics *observability.Metrics
}

// NewInstrumentedEngine wraps inner with Prometheus instrumentation.
func NewInstrumentedEngine(inner domain.Querier, metrics *observability.Metrics) *InstrumentedEngine {
	return &InstrumentedEngine{inner: inner, metrics: metrics}
}

func (e *InstrumentedEngine) Snapshot(variable string, step int) (domain.Snapshot, error) {
	start := time.Now()
	res, err := e.inner.Snapshot(variable, step)
	e.observe("snapshot", start, err)
	return res, err
}

func (e *InstrumentedEngine) PointSeries(variable string, lat, lon float64) (domain.PointSeries, error) {
	start := time.Now()
	res, err := e.inner.PointSeries(variable, lat, lon)
	e.observe("series", start, err)
	return res, err
}

func (e *InstrumentedEngine) Statistics(variable string, step int) (domain.Statistics, error) {
	start := time.Now()
	res, err := e.inner.Statistics(variable, step)
	e.observe("statistics", start, err)
	return res, err
}

func (e *InstrumentedEngine) Histogram(variable string, step, bins int) (domain.Histogram, error) {
	start := time.Now()
	res, err := e.inner.Histogram(variable, step, bins)
	e.observe("histogram", start, err)
	return res, err
}

func (e *InstrumentedEngine) Info() domain.CubeInfo {
	return e.inner.Info()
}

func (e *InstrumentedEngine) observe(op string, start time.Time, err error) {
	e.metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	e.metrics.Queries.WithLabelValues(op, Outcome(err)).Inc()
}

// Outcome classifies a query error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrEmptyData):
		return "empty"
	case errors.Is(err, domain.ErrUnknownVariable),
		errors.Is(err, domain.ErrIndexOutOfRange),
		errors.Is(err, domain.ErrInvalidArgument):
		return "client_error"
	default:
		return "error"
	}
}
