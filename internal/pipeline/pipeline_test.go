package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
	"github.com/couchcryptid/s2s-forecast-service/internal/observability"
	"github.com/couchcryptid/s2s-forecast-service/internal/pipeline"
)

var errTransient = errors.New("file busy")

func newService(src pipeline.Source, n pipeline.Notifier, opts pipeline.Options) (*pipeline.Service, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return pipeline.New(src, n, slog.New(slog.DiscardHandler), m, opts), m
}

func TestService_NotReadyBeforeLoad(t *testing.T) {
	svc, _ := newService(newMockSource(loadResult{raw: mockRaw("a.nc")}), nil, testOptions())

	require.ErrorIs(t, svc.CheckReadiness(t.Context()), pipeline.ErrNotReady)
	_, err := svc.Querier()
	require.ErrorIs(t, err, pipeline.ErrNotReady)
	assert.Nil(t, svc.Cube())
}

func TestService_Reload_HappyPath(t *testing.T) {
	builtAt := time.Date(2025, time.January, 2, 8, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(builtAt))
	t.Cleanup(func() { domain.SetClock(nil) })

	src := newMockSource(loadResult{raw: mockRaw("nmme_2025_01.nc")})
	notifier := &mockNotifier{}
	svc, m := newService(src, notifier, testOptions())

	require.NoError(t, svc.Reload(t.Context()))
	require.NoError(t, svc.CheckReadiness(t.Context()))

	q, err := svc.Querier()
	require.NoError(t, err)
	info := q.Info()
	assert.Equal(t, "nmme_2025_01.nc", info.Source)
	assert.Equal(t, 3, info.Steps)
	assert.Equal(t, 7, info.NLat)
	assert.Equal(t, 12, info.NLon)
	assert.Equal(t, -180.0, info.LonMin)

	st, err := q.Statistics("tmp2m", 0)
	require.NoError(t, err)
	assert.Equal(t, 84, st.Count)

	assert.InDelta(t, 1, testutil.ToFloat64(m.CubeBuilds.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CubeReady), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.CubeSteps), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CubeVariables), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EventsPublished.WithLabelValues("success")), 0)

	events := notifier.Events()
	require.Len(t, events, 1)
	want := domain.CubeEvent{
		Type:       domain.EventCubeBuilt,
		Source:     "nmme_2025_01.nc",
		InitTime:   time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Reducer:    "mean",
		Variables:  []string{"prec", "tmp2m"},
		Steps:      3,
		NLat:       7,
		NLon:       12,
		ValidFrom:  time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:    time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		OccurredAt: builtAt,
	}
	if diff := cmp.Diff(want, events[0], cmpopts.IgnoreFields(domain.CubeEvent{}, "ID", "DurationMS")); diff != "" {
		t.Errorf("built event mismatch (-want +got):\n%s", diff)
	}
}

func TestService_Reload_RetriesTransientErrors(t *testing.T) {
	src := newMockSource(
		loadResult{err: errTransient},
		loadResult{err: errTransient},
		loadResult{raw: mockRaw("late.nc")},
	)
	svc, m := newService(src, nil, testOptions())

	require.NoError(t, svc.Reload(t.Context()))
	assert.Equal(t, 3, src.Calls())
	assert.Equal(t, "late.nc", svc.Cube().Source())
	assert.InDelta(t, 0, testutil.ToFloat64(m.CubeBuilds.WithLabelValues("error")), 0)
}

func TestService_Reload_GivesUpAfterAttempts(t *testing.T) {
	src := newMockSource(loadResult{err: errTransient})
	notifier := &mockNotifier{}
	opts := testOptions()
	opts.Attempts = 2
	svc, m := newService(src, notifier, opts)

	err := svc.Reload(t.Context())
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 2, src.Calls())
	require.ErrorIs(t, svc.CheckReadiness(t.Context()), pipeline.ErrNotReady)

	assert.InDelta(t, 1, testutil.ToFloat64(m.CubeBuilds.WithLabelValues("error")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.CubeReady), 0)

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCubeBuildFailed, events[0].Type)
	assert.Equal(t, "mock://forecast", events[0].Source)
	assert.Equal(t, "file busy", events[0].Error)
}

func TestService_Reload_PermanentErrorsNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"malformed", fmt.Errorf("%w: no latitude coordinate", domain.ErrMalformedCube)},
		{"empty ensemble", domain.ErrEmptyEnsemble},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newMockSource(loadResult{err: tt.err})
			svc, _ := newService(src, nil, testOptions())

			require.ErrorIs(t, svc.Reload(t.Context()), tt.err)
			assert.Equal(t, 1, src.Calls())
		})
	}
}

func TestService_Reload_BuildErrorIsFatalForThatCycle(t *testing.T) {
	raw := mockRaw("bad.nc")
	raw.Lat = raw.Lat[:2]
	src := newMockSource(loadResult{raw: raw})
	svc, _ := newService(src, nil, testOptions())

	require.ErrorIs(t, svc.Reload(t.Context()), domain.ErrMalformedCube)
	assert.Equal(t, 1, src.Calls())
}

func TestService_Reload_FailureKeepsPreviousCube(t *testing.T) {
	src := newMockSource(
		loadResult{raw: mockRaw("first.nc")},
		loadResult{err: domain.ErrEmptyEnsemble},
	)
	svc, m := newService(src, nil, testOptions())

	require.NoError(t, svc.Reload(t.Context()))
	before, err := svc.Querier()
	require.NoError(t, err)

	require.Error(t, svc.Reload(t.Context()))
	after, err := svc.Querier()
	require.NoError(t, err)

	assert.Same(t, before, after)
	assert.Equal(t, "first.nc", after.Info().Source)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CubeReady), 0)
}

func TestService_Reload_SwapsCube(t *testing.T) {
	src := newMockSource(
		loadResult{raw: mockRaw("january.nc")},
		loadResult{raw: mockRaw("february.nc")},
	)
	svc, _ := newService(src, nil, testOptions())

	require.NoError(t, svc.Reload(t.Context()))
	require.NoError(t, svc.Reload(t.Context()))

	q, err := svc.Querier()
	require.NoError(t, err)
	assert.Equal(t, "february.nc", q.Info().Source)
	assert.Equal(t, "february.nc", svc.Cube().Source())
}

func TestService_Reload_NotifierErrorIsNotFatal(t *testing.T) {
	notifier := &mockNotifier{err: errors.New("broker down")}
	svc, m := newService(newMockSource(loadResult{raw: mockRaw("a.nc")}), notifier, testOptions())

	require.NoError(t, svc.Reload(t.Context()))
	require.NoError(t, svc.CheckReadiness(t.Context()))
	assert.InDelta(t, 1, testutil.ToFloat64(m.EventsPublished.WithLabelValues("error")), 0)
}

func TestService_QueryCache(t *testing.T) {
	tests := []struct {
		name      string
		cacheSize int
		wantHits  float64
	}{
		{"enabled", 8, 1},
		{"disabled", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.CacheSize = tt.cacheSize
			svc, m := newService(newMockSource(loadResult{raw: mockRaw("a.nc")}), nil, opts)
			require.NoError(t, svc.Reload(t.Context()))

			q, err := svc.Querier()
			require.NoError(t, err)
			_, err = q.Histogram("prec", 1, 10)
			require.NoError(t, err)
			_, err = q.Histogram("prec", 1, 10)
			require.NoError(t, err)

			assert.InDelta(t, tt.wantHits, testutil.ToFloat64(m.QueryCache.WithLabelValues("histogram", "hit")), 0)
			assert.InDelta(t, 2, testutil.ToFloat64(m.Queries.WithLabelValues("histogram", "success")), 0)
		})
	}
}

func TestService_Reload_ContextCancelledDuringBackoff(t *testing.T) {
	src := newMockSource(loadResult{err: errTransient})
	opts := testOptions()
	opts.Attempts = 10
	opts.InitialBackoff = time.Hour
	opts.MaxBackoff = time.Hour
	svc, _ := newService(src, nil, opts)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := svc.Reload(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, src.Calls())
}

func TestService_Run_ReloadsOnSignal(t *testing.T) {
	src := newMockSource(
		loadResult{raw: mockRaw("first.nc")},
		loadResult{raw: mockRaw("second.nc")},
	)
	svc, _ := newService(src, nil, testOptions())
	require.NoError(t, svc.Reload(t.Context()))

	ctx, cancel := context.WithCancel(t.Context())
	trigger := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, trigger)
		close(done)
	}()

	trigger <- syscall.SIGHUP
	require.Eventually(t, func() bool {
		return svc.Cube().Source() == "second.nc"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestService_ConcurrentQueriesDuringReload(t *testing.T) {
	src := newMockSource(loadResult{raw: mockRaw("a.nc")})
	svc, _ := newService(src, nil, testOptions())
	require.NoError(t, svc.Reload(t.Context()))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				q, err := svc.Querier()
				if !assert.NoError(t, err) {
					return
				}
				_, err = q.Snapshot("prec", 2)
				assert.NoError(t, err)
			}
		}()
	}
	for range 5 {
		require.NoError(t, svc.Reload(t.Context()))
	}
	wg.Wait()
}

func TestService_Run_SurvivesFailedReload(t *testing.T) {
	src := newMockSource(
		loadResult{raw: mockRaw("first.nc")},
		loadResult{err: domain.ErrEmptyEnsemble},
		loadResult{raw: mockRaw("third.nc")},
	)
	svc, m := newService(src, nil, testOptions())
	require.NoError(t, svc.Reload(t.Context()))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	trigger := make(chan os.Signal, 1)
	go svc.Run(ctx, trigger)

	trigger <- syscall.SIGHUP
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.CubeBuilds.WithLabelValues("error")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "first.nc", svc.Cube().Source())

	trigger <- syscall.SIGHUP
	require.Eventually(t, func() bool {
		return svc.Cube().Source() == "third.nc"
	}, 2*time.Second, 5*time.Millisecond)
}
