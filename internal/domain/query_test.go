package domain

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(mustBuild(t, fixtureRaw()))
}

func TestSnapshot(t *testing.T) {
	e := fixtureEngine(t)

	snap, err := e.Snapshot("prec", 1)
	require.NoError(t, err)

	assert.Equal(t, "prec", snap.Variable.Name)
	assert.Equal(t, 1, snap.Step)
	assert.Equal(t, date(2025, 2, 28), snap.ValidTime)
	assert.Equal(t, []float64{-10, 0, 10}, snap.Lat)
	assert.Equal(t, []float64{-160, -10, 0, 90}, snap.Lon)
	require.Len(t, snap.Values, 3)
	for _, row := range snap.Values {
		assert.Len(t, row, 4)
	}
	assert.Equal(t, 122.0, snap.Values[0][0])
	assert.Equal(t, 101.0, snap.Values[2][3])
	assert.Equal(t, 0.0, snap.ColorMin)
	assert.InDelta(t, 122.45, snap.ColorMax, 1e-9)
}

func TestSnapshot_DoesNotAliasCube(t *testing.T) {
	e := fixtureEngine(t)

	snap, err := e.Snapshot("prec", 0)
	require.NoError(t, err)
	snap.Values[0][0] = -1
	snap.Lat[0] = 42

	again, err := e.Snapshot("prec", 0)
	require.NoError(t, err)
	assert.Equal(t, 22.0, again.Values[0][0])
	assert.Equal(t, -10.0, again.Lat[0])
}

func TestSnapshot_AllNoData(t *testing.T) {
	values := []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	e := NewEngine(mustBuild(t, gridRaw(2, 2, values)))

	snap, err := e.Snapshot("prec", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.ColorMax)
	assert.True(t, math.IsNaN(snap.Values[1][1]))
}

func TestSnapshot_Errors(t *testing.T) {
	e := fixtureEngine(t)

	tests := []struct {
		name     string
		variable string
		step     int
		want     error
	}{
		{"unknown variable", "tmp", 0, ErrUnknownVariable},
		{"negative step", "prec", -1, ErrIndexOutOfRange},
		{"step past end", "prec", 3, ErrIndexOutOfRange},
		{"unknown variable wins over bad step", "tmp", 99, ErrUnknownVariable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Snapshot(tt.variable, tt.step)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPointSeries(t *testing.T) {
	e := fixtureEngine(t)

	ps, err := e.PointSeries("prec", -3, 300)
	require.NoError(t, err)

	assert.Equal(t, -3.0, ps.RequestedLat)
	assert.Equal(t, 300.0, ps.RequestedLon)
	assert.Equal(t, 0.0, ps.Lat)
	assert.Equal(t, -10.0, ps.Lon)
	assert.Equal(t, 1, ps.LatIndex)
	assert.Equal(t, 1, ps.LonIndex)

	require.Len(t, ps.Points, 3)
	values := make([]float64, len(ps.Points))
	for i, p := range ps.Points {
		values[i] = p.Value
	}
	assert.Equal(t, []float64{13, 113, 213}, values)
	assert.Equal(t, date(2025, 1, 31), ps.Points[0].ValidTime)
	assert.Equal(t, date(2025, 3, 31), ps.Points[2].ValidTime)
}

func TestPointSeries_OutsideGridClampsToEdge(t *testing.T) {
	e := fixtureEngine(t)

	ps, err := e.PointSeries("prec", 80, -179)
	require.NoError(t, err)
	assert.Equal(t, 2, ps.LatIndex)
	assert.Equal(t, 0, ps.LonIndex)
}

func TestPointSeries_Errors(t *testing.T) {
	e := fixtureEngine(t)

	_, err := e.PointSeries("tmp", 0, 0)
	require.ErrorIs(t, err, ErrUnknownVariable)

	_, err = e.PointSeries("prec", math.NaN(), 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.PointSeries("prec", 0, math.Inf(1))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNearestIndex(t *testing.T) {
	axis := []float64{-10, -5, 0, 5, 10}

	tests := []struct {
		x        float64
		expected int
	}{
		{-3, 1},
		{-2.5, 1},
		{2.5, 2},
		{-100, 0},
		{100, 4},
		{5, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, nearestIndex(axis, tt.x), "x=%v", tt.x)
	}
}

func TestStatistics(t *testing.T) {
	e := fixtureEngine(t)

	st, err := e.Statistics("prec", 0)
	require.NoError(t, err)

	assert.Equal(t, 12, st.Count)
	assert.InDelta(t, 11.5, st.Mean, 1e-12)
	assert.Equal(t, 0.0, st.Min)
	assert.Equal(t, 23.0, st.Max)
	assert.InDelta(t, 8.24115687671741, st.StdDev, 1e-9)
	assert.InDelta(t, 11.5, st.Median, 1e-12)
	assert.InDelta(t, 22.45, st.P95, 1e-9)

	rows := st.Ordered()
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"Mean", "Minimum", "Maximum", "Std Dev", "Median", "95th %ile"}, names)
	assert.Equal(t, st.Max, rows[2].Value)
}

func TestStatistics_IgnoresNoData(t *testing.T) {
	values := []float64{1, math.NaN(), 3, math.NaN()}
	e := NewEngine(mustBuild(t, gridRaw(2, 2, values)))

	st, err := e.Statistics("prec", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 2.0, st.Mean)
	assert.Equal(t, 1.0, st.StdDev)
}

func TestStatistics_Errors(t *testing.T) {
	values := []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	e := NewEngine(mustBuild(t, gridRaw(2, 2, values)))

	_, err := e.Statistics("prec", 0)
	require.ErrorIs(t, err, ErrEmptyData)

	_, err = e.Statistics("prec", 1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = e.Statistics("tmp", 0)
	require.ErrorIs(t, err, ErrUnknownVariable)
}

func TestHistogram(t *testing.T) {
	e := NewEngine(mustBuild(t, gridRaw(10, 10, oneToHundred())))

	h, err := e.Histogram("prec", 0, 10)
	require.NoError(t, err)

	assert.InDelta(t, 98.02, h.Threshold, 1e-9)
	assert.Equal(t, 98, h.Retained)
	assert.Equal(t, 2, h.Excluded)
	require.Len(t, h.Edges, 11)
	require.Len(t, h.Counts, 10)
	assert.Equal(t, 1.0, h.Edges[0])
	assert.Equal(t, 98.0, h.Edges[10])
	assert.Equal(t, []int{10, 10, 10, 9, 10, 10, 9, 10, 10, 10}, h.Counts)

	var total int
	for _, c := range h.Counts {
		total += c
	}
	assert.Equal(t, h.Retained, total)
	for i := 1; i < len(h.Edges); i++ {
		assert.Less(t, h.Edges[i-1], h.Edges[i])
	}
}

func TestHistogram_ZeroWidthSpan(t *testing.T) {
	values := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 5, 5}
	e := NewEngine(mustBuild(t, gridRaw(3, 4, values)))

	h, err := e.Histogram("prec", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5.0, h.Threshold)
	assert.Equal(t, []float64{0.5, 1, 1.5}, h.Edges)
	assert.Equal(t, []int{0, 10}, h.Counts)
	assert.Equal(t, 10, h.Retained)
	assert.Equal(t, 2, h.Excluded)
}

func TestHistogram_Errors(t *testing.T) {
	e := fixtureEngine(t)

	t.Run("non-positive bins", func(t *testing.T) {
		_, err := e.Histogram("prec", 0, 0)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("variable checked before bins", func(t *testing.T) {
		_, err := e.Histogram("tmp", 0, 0)
		require.ErrorIs(t, err, ErrUnknownVariable)
	})

	t.Run("step checked before bins", func(t *testing.T) {
		_, err := e.Histogram("prec", 7, -1)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	})

	t.Run("all no-data", func(t *testing.T) {
		values := []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}
		empty := NewEngine(mustBuild(t, gridRaw(2, 2, values)))
		_, err := empty.Histogram("prec", 0, 10)
		require.ErrorIs(t, err, ErrEmptyData)
	})

	t.Run("constant field leaves nothing below threshold", func(t *testing.T) {
		constant := NewEngine(mustBuild(t, gridRaw(2, 2, []float64{4, 4, 4, 4})))
		_, err := constant.Histogram("prec", 0, 10)
		require.ErrorIs(t, err, ErrEmptyData)
	})
}

func TestInfo(t *testing.T) {
	info := fixtureEngine(t).Info()

	assert.Equal(t, "fixture.nc", info.Source)
	assert.Equal(t, "mean", info.Reducer)
	assert.Equal(t, 3, info.Steps)
	assert.Equal(t, 3, info.NLat)
	assert.Equal(t, 4, info.NLon)
	assert.Equal(t, -10.0, info.LatMin)
	assert.Equal(t, 10.0, info.LatMax)
	assert.Equal(t, -160.0, info.LonMin)
	assert.Equal(t, 90.0, info.LonMax)
	require.Len(t, info.Variables, 1)
	assert.Equal(t, "mm/day", info.Variables[0].Units)
	assert.Len(t, info.StepLabels, 3)
}

func TestEngine_ConcurrentQueries(t *testing.T) {
	e := fixtureEngine(t)
	want, err := e.Statistics("prec", 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			step := i % 3
			if _, err := e.Snapshot("prec", step); err != nil {
				errs <- err
				return
			}
			if _, err := e.Histogram("prec", step, 5); err != nil {
				errs <- err
				return
			}
			if _, err := e.PointSeries("prec", float64(i%20-10), float64(i*7)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := e.Statistics("prec", 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
