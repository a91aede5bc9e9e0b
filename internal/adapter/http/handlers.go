package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

type api struct {
	svc    CubeService
	logger *slog.Logger
}

func (a *api) handleCube(w http.ResponseWriter, r *http.Request) {
	q, ok := a.querier(w, r)
	if !ok {
		return
	}
	a.write(w, r, q.Info())
}

func (a *api) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	q, ok := a.querier(w, r)
	if !ok {
		return
	}
	p, err := parseStep(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	snap, err := q.Snapshot(r.PathValue("name"), p.Step)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.write(w, r, newSnapshotResponse(snap))
}

func (a *api) handleSeries(w http.ResponseWriter, r *http.Request) {
	q, ok := a.querier(w, r)
	if !ok {
		return
	}
	p, err := parsePoint(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	series, err := q.PointSeries(r.PathValue("name"), p.Lat, p.Lon)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.write(w, r, newSeriesResponse(series))
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	q, ok := a.querier(w, r)
	if !ok {
		return
	}
	p, err := parseStep(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := q.Statistics(r.PathValue("name"), p.Step)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.write(w, r, statsResponse{Statistics: st, Table: st.Ordered()})
}

func (a *api) handleHistogram(w http.ResponseWriter, r *http.Request) {
	q, ok := a.querier(w, r)
	if !ok {
		return
	}
	p, err := parseHistogram(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	h, err := q.Histogram(r.PathValue("name"), p.Step, p.Bins)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.write(w, r, h)
}

// querier fetches the current query stack, answering 503 while no cube has
// been built.
func (a *api) querier(w http.ResponseWriter, r *http.Request) (domain.Querier, bool) {
	q, err := a.svc.Querier()
	if err != nil {
		a.writeStatus(w, r, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return nil, false
	}
	return q, true
}

func (a *api) write(w http.ResponseWriter, r *http.Request, v any) {
	a.writeStatus(w, r, http.StatusOK, v)
}

func (a *api) writeStatus(w http.ResponseWriter, r *http.Request, status int, v any) {
	err := respond(w, r, status, v)
	if err == nil {
		return
	}
	if !errors.Is(err, errEncode) {
		a.logger.Warn("write response failed", "path", r.URL.Path, "error", err)
		return
	}
	a.logger.Error("encode response failed", "path", r.URL.Path, "error", err)
	if err := respond(w, r, http.StatusInternalServerError, errorResponse{Error: errEncode.Error()}); err != nil {
		a.logger.Warn("write response failed", "path", r.URL.Path, "error", err)
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("query failed", "path", r.URL.Path, "error", err)
	}
	a.writeStatus(w, r, status, errorResponse{Error: err.Error()})
}

// statusFor maps query errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownVariable):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIndexOutOfRange), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptyData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
