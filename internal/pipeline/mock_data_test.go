package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
	"github.com/couchcryptid/s2s-forecast-service/internal/pipeline"
	"github.com/couchcryptid/s2s-forecast-service/internal/sample"
)

// mockRaw returns a small synthetic forecast named source.
func mockRaw(source string) domain.RawCube {
	opts := sample.DefaultOptions()
	opts.Source = source
	opts.Resolution = 30
	opts.Leads = 3
	opts.Members = 4
	return sample.Generate(opts)
}

type loadResult struct {
	raw domain.RawCube
	err error
}

// mockSource replays results in order and repeats the last one.
type mockSource struct {
	mu      sync.Mutex
	results []loadResult
	calls   int
}

func newMockSource(results ...loadResult) *mockSource {
	return &mockSource{results: results}
}

func (m *mockSource) Load(ctx context.Context) (domain.RawCube, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return domain.RawCube{}, err
	}
	i := min(m.calls, len(m.results)-1)
	m.calls++
	return m.results[i].raw, m.results[i].err
}

func (m *mockSource) Describe() string { return "mock://forecast" }

func (m *mockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockNotifier struct {
	mu     sync.Mutex
	events []domain.CubeEvent
	err    error
}

func (m *mockNotifier) Publish(ctx context.Context, event domain.CubeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	m.events = append(m.events, event)
	return m.err
}

func (m *mockNotifier) Events() []domain.CubeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CubeEvent(nil), m.events...)
}

func testOptions() pipeline.Options {
	return pipeline.Options{
		Reducer:        domain.MeanReducer{},
		Concurrency:    2,
		CacheSize:      16,
		Attempts:       3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		NotifyTimeout:  time.Second,
	}
}
