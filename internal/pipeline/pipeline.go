// Package pipeline loads the forecast, builds the cube, and keeps the
// current cube available to concurrent queries across reloads.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
	"github.com/couchcryptid/s2s-forecast-service/internal/observability"
	"github.com/couchcryptid/s2s-forecast-service/internal/query"
)

// ErrNotReady is returned by Querier until the first cube has been built.
var ErrNotReady = errors.New("no forecast cube loaded")

// Source reads the raw ensemble forecast.
type Source interface {
	Load(ctx context.Context) (domain.RawCube, error)
	Describe() string
}

// Notifier announces cube lifecycle events.
type Notifier interface {
	Publish(ctx context.Context, event domain.CubeEvent) error
}

// Options tune a Service.
type Options struct {
	Reducer     domain.Reducer
	Concurrency int
	// CacheSize bounds the per-cube query cache. Zero disables caching.
	CacheSize      int
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	NotifyTimeout  time.Duration
}

// DefaultOptions matches the service defaults.
func DefaultOptions() Options {
	return Options{
		Reducer:        domain.MeanReducer{},
		Concurrency:    4,
		CacheSize:      256,
		Attempts:       3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		NotifyTimeout:  5 * time.Second,
	}
}

// served pairs a cube with the querier stack built over it. It is swapped
// in as a unit so readers never see a querier for a different cube.
type served struct {
	cube    *domain.Cube
	querier domain.Querier
}

// Service owns the served cube.
type Service struct {
	source   Source
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	opts     Options

	current  atomic.Pointer[served]
	reloadMu sync.Mutex
}

// New creates a Service. notifier may be nil.
func New(source Source, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Service {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Reducer == nil {
		opts.Reducer = domain.MeanReducer{}
	}
	return &Service{
		source:   source,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
	}
}

// CheckReadiness returns nil once a cube is being served.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.current.Load() == nil {
		return ErrNotReady
	}
	return nil
}

// Querier returns the query stack for the current cube.
func (s *Service) Querier() (domain.Querier, error) {
	cur := s.current.Load()
	if cur == nil {
		return nil, ErrNotReady
	}
	return cur.querier, nil
}

// Cube returns the current cube, or nil before the first build.
func (s *Service) Cube() *domain.Cube {
	if cur := s.current.Load(); cur != nil {
		return cur.cube
	}
	return nil
}

// Reload loads and builds a new cube and swaps it in. On failure the
// previous cube, if any, stays in service. Concurrent calls are serialized.
func (s *Service) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	cube, err := s.build(ctx)
	took := time.Since(start)
	if err != nil {
		s.metrics.CubeBuilds.WithLabelValues("error").Inc()
		s.logger.Error("cube build failed",
			"source", s.source.Describe(),
			"error", err,
			"serving_previous", s.current.Load() != nil,
		)
		s.notify(ctx, domain.NewCubeBuildFailedEvent(s.source.Describe(), err, took))
		return err
	}

	engine := domain.NewEngine(cube)
	s.current.Store(&served{cube: cube, querier: s.decorate(engine)})

	info := engine.Info()
	s.metrics.CubeBuilds.WithLabelValues("success").Inc()
	s.metrics.CubeBuildDuration.Observe(took.Seconds())
	s.metrics.CubeSteps.Set(float64(info.Steps))
	s.metrics.CubeVariables.Set(float64(len(info.Variables)))
	s.metrics.CubeReady.Set(1)

	attrs := []any{
		"source", info.Source,
		"init_time", info.InitTime.Format(time.DateOnly),
		"reducer", info.Reducer,
		"variables", len(info.Variables),
		"steps", info.Steps,
		"grid", [2]int{info.NLat, info.NLon},
		"duration", took,
	}
	if info.Steps > 0 {
		attrs = append(attrs, "first_step", info.StepLabels[0], "last_step", info.StepLabels[info.Steps-1])
	}
	s.logger.Info("cube built", attrs...)

	s.notify(ctx, domain.NewCubeBuiltEvent(info, took))
	return nil
}

// Run reloads the cube each time trigger fires, until ctx is cancelled.
// Failed reloads are logged and leave the current cube in place.
func (s *Service) Run(ctx context.Context, trigger <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-trigger:
			s.logger.Info("reload requested", "signal", sig)
			// Reload logs and counts its own failures; the current cube stays.
			_ = s.Reload(ctx)
		}
	}
}

// build loads the raw forecast, retrying transient load failures with
// exponential backoff, then assembles the cube.
func (s *Service) build(ctx context.Context) (*domain.Cube, error) {
	backoff := s.opts.InitialBackoff
	for attempt := 1; ; attempt++ {
		raw, err := s.source.Load(ctx)
		if err == nil {
			return domain.Build(ctx, raw,
				domain.WithReducer(s.opts.Reducer),
				domain.WithConcurrency(s.opts.Concurrency),
			)
		}
		if attempt >= s.opts.Attempts || permanent(err) || ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("forecast load failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if !retry.SleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, s.opts.MaxBackoff)
	}
}

func (s *Service) decorate(engine *domain.Engine) domain.Querier {
	var q domain.Querier = engine
	if s.opts.CacheSize > 0 {
		q = query.NewCachedEngine(q, s.opts.CacheSize, s.metrics)
	}
	return query.NewInstrumentedEngine(q, s.metrics)
}

func (s *Service) notify(ctx context.Context, event domain.CubeEvent) {
	if s.notifier == nil {
		return
	}
	if s.opts.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.NotifyTimeout)
		defer cancel()
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.metrics.EventsPublished.WithLabelValues("error").Inc()
		s.logger.Warn("publish cube event failed", "type", event.Type, "error", err)
		return
	}
	s.metrics.EventsPublished.WithLabelValues("success").Inc()
}

// permanent reports errors that another attempt cannot fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrMalformedCube) || errors.Is(err, domain.ErrEmptyEnsemble)
}
