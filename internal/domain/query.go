package domain

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	snapshotColorPercentile = 0.95
	statsPercentile         = 0.95
	histogramTrimPercentile = 0.98
)

// Querier is the read contract the presentation layer consumes.
type Querier interface {
	Snapshot(variable string, step int) (Snapshot, error)
	PointSeries(variable string, lat, lon float64) (PointSeries, error)
	Statistics(variable string, step int) (Statistics, error)
	Histogram(variable string, step, bins int) (Histogram, error)
	Info() CubeInfo
}

// Snapshot is one variable's lat/lon field at one step. No-data cells stay NaN
// in Values. The color scale runs from ColorMin (always 0) to ColorMax, the
// 95th percentile of the finite values (0 when there are none).
type Snapshot struct {
	Variable  Metadata    `json:"variable"`
	Step      int         `json:"step"`
	ValidTime time.Time   `json:"valid_time"`
	Lat       []float64   `json:"lat"`
	Lon       []float64   `json:"lon"`
	Values    [][]float64 `json:"values"`
	ColorMin  float64     `json:"color_min"`
	ColorMax  float64     `json:"color_max"`
}

// SeriesPoint pairs a valid time with the value forecast for it.
type SeriesPoint struct {
	ValidTime time.Time `json:"valid_time"`
	Value     float64   `json:"value"`
}

// PointSeries is the full forecast sequence at the grid cell nearest to the
// requested coordinate.
type PointSeries struct {
	Variable     Metadata      `json:"variable"`
	RequestedLat float64       `json:"requested_lat"`
	RequestedLon float64       `json:"requested_lon"`
	Lat          float64       `json:"lat"`
	Lon          float64       `json:"lon"`
	LatIndex     int           `json:"lat_index"`
	LonIndex     int           `json:"lon_index"`
	Points       []SeriesPoint `json:"points"`
}

// Statistics summarizes the finite values of one variable at one step.
// StdDev is the population standard deviation.
type Statistics struct {
	Variable Metadata `json:"variable"`
	Step     int      `json:"step"`
	Count    int      `json:"count"`
	Mean     float64  `json:"mean"`
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`
	StdDev   float64  `json:"std_dev"`
	Median   float64  `json:"median"`
	P95      float64  `json:"p95"`
}

// NamedValue is one row of a statistics table.
type NamedValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Ordered returns the statistics in display order.
func (s Statistics) Ordered() []NamedValue {
	return []NamedValue{
		{"Mean", s.Mean},
		{"Minimum", s.Min},
		{"Maximum", s.Max},
		{"Std Dev", s.StdDev},
		{"Median", s.Median},
		{"95th %ile", s.P95},
	}
}

// Histogram bins the finite values below the 98th percentile. Edges has one
// more entry than Counts; the last bin includes its right edge.
type Histogram struct {
	Variable  Metadata  `json:"variable"`
	Step      int       `json:"step"`
	Edges     []float64 `json:"edges"`
	Counts    []int     `json:"counts"`
	Threshold float64   `json:"threshold"`
	Retained  int       `json:"retained"`
	Excluded  int       `json:"excluded"`
}

// CubeInfo describes a cube for labels and selectors.
type CubeInfo struct {
	Source     string      `json:"source"`
	InitTime   time.Time   `json:"init_time"`
	BuiltAt    time.Time   `json:"built_at"`
	Reducer    string      `json:"reducer"`
	Variables  []Metadata  `json:"variables"`
	Steps      int         `json:"steps"`
	NLat       int         `json:"nlat"`
	NLon       int         `json:"nlon"`
	LatMin     float64     `json:"lat_min"`
	LatMax     float64     `json:"lat_max"`
	LonMin     float64     `json:"lon_min"`
	LonMax     float64     `json:"lon_max"`
	ValidTimes []time.Time `json:"valid_times"`
	StepLabels []string    `json:"step_labels"`
}

// Engine answers queries against one immutable Cube. It holds no mutable
// state, so one Engine may serve any number of goroutines.
type Engine struct {
	cube *Cube
}

// NewEngine binds a query engine to a built cube.
func NewEngine(cube *Cube) *Engine {
	return &Engine{cube: cube}
}

// Snapshot returns the lat/lon field of variable at step.
func (e *Engine) Snapshot(variable string, step int) (Snapshot, error) {
	f, data, err := e.cube.slice(variable, step)
	if err != nil {
		return Snapshot{}, err
	}

	nlat, nlon := e.cube.GridSize()
	flat := slices.Clone(data)
	rows := make([][]float64, nlat)
	for i := range rows {
		rows[i] = flat[i*nlon : (i+1)*nlon : (i+1)*nlon]
	}

	colorMax := percentile(sortedFinite(data), snapshotColorPercentile)
	if math.IsNaN(colorMax) {
		colorMax = 0
	}

	return Snapshot{
		Variable:  f.meta,
		Step:      step,
		ValidTime: e.cube.validTimes[step],
		Lat:       e.cube.Lat(),
		Lon:       e.cube.Lon(),
		Values:    rows,
		ColorMin:  0,
		ColorMax:  colorMax,
	}, nil
}

// PointSeries returns every step's value at the grid cell nearest to
// (lat, lon). Each axis is snapped independently by minimum absolute
// difference with ties going to the lower index. The requested longitude is
// first wrapped onto [-180, 180) so 0–360 inputs resolve as expected.
func (e *Engine) PointSeries(variable string, lat, lon float64) (PointSeries, error) {
	f, ok := e.cube.fields[variable]
	if !ok {
		return PointSeries{}, fmt.Errorf("%w: %q", ErrUnknownVariable, variable)
	}
	if !isFinite(lat) || !isFinite(lon) {
		return PointSeries{}, fmt.Errorf("%w: coordinate (%g, %g) is not finite", ErrInvalidArgument, lat, lon)
	}

	i := nearestIndex(e.cube.lat, lat)
	j := nearestIndex(e.cube.lon, NormalizeLongitude(lon))

	nlat, nlon := e.cube.GridSize()
	cell := i*nlon + j
	points := make([]SeriesPoint, len(e.cube.validTimes))
	for s, t := range e.cube.validTimes {
		points[s] = SeriesPoint{ValidTime: t, Value: f.values[s*nlat*nlon+cell]}
	}

	return PointSeries{
		Variable:     f.meta,
		RequestedLat: lat,
		RequestedLon: lon,
		Lat:          e.cube.lat[i],
		Lon:          e.cube.lon[j],
		LatIndex:     i,
		LonIndex:     j,
		Points:       points,
	}, nil
}

// Statistics summarizes the finite values of variable at step. It fails with
// ErrEmptyData when every value is no-data.
func (e *Engine) Statistics(variable string, step int) (Statistics, error) {
	f, data, err := e.cube.slice(variable, step)
	if err != nil {
		return Statistics{}, err
	}
	sorted := sortedFinite(data)
	if len(sorted) == 0 {
		return Statistics{}, fmt.Errorf("%w: %s at step %d", ErrEmptyData, variable, step)
	}

	mean, std := stat.PopMeanStdDev(sorted, nil)
	return Statistics{
		Variable: f.meta,
		Step:     step,
		Count:    len(sorted),
		Mean:     mean,
		Min:      sorted[0],
		Max:      sorted[len(sorted)-1],
		StdDev:   std,
		Median:   percentile(sorted, 0.5),
		P95:      percentile(sorted, statsPercentile),
	}, nil
}

// Histogram drops values at or above the 98th percentile and partitions the
// rest into bins equal-width bins spanning their min and max. A zero-width
// span is widened to ±0.5 around the single value.
func (e *Engine) Histogram(variable string, step, bins int) (Histogram, error) {
	f, data, err := e.cube.slice(variable, step)
	if err != nil {
		return Histogram{}, err
	}
	if bins <= 0 {
		return Histogram{}, fmt.Errorf("%w: bin count %d must be positive", ErrInvalidArgument, bins)
	}

	sorted := sortedFinite(data)
	if len(sorted) == 0 {
		return Histogram{}, fmt.Errorf("%w: %s at step %d", ErrEmptyData, variable, step)
	}
	threshold := percentile(sorted, histogramTrimPercentile)
	kept := sorted[:sort.SearchFloat64s(sorted, threshold)]
	if len(kept) == 0 {
		return Histogram{}, fmt.Errorf("%w: nothing below the 98th percentile of %s at step %d", ErrEmptyData, variable, step)
	}

	lo, hi := kept[0], kept[len(kept)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	edges := floats.Span(make([]float64, bins+1), lo, hi)
	edges[bins] = hi

	// stat.Histogram bins are half-open; nudge the top divider so the
	// maximum lands in the last bin.
	dividers := slices.Clone(edges)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	weights := stat.Histogram(nil, dividers, kept, nil)

	counts := make([]int, bins)
	for i, w := range weights {
		counts[i] = int(w)
	}

	return Histogram{
		Variable:  f.meta,
		Step:      step,
		Edges:     edges,
		Counts:    counts,
		Threshold: threshold,
		Retained:  len(kept),
		Excluded:  len(sorted) - len(kept),
	}, nil
}

// Info describes the cube behind the engine.
func (e *Engine) Info() CubeInfo {
	c := e.cube
	vars := make([]Metadata, len(c.names))
	for i, name := range c.names {
		vars[i] = c.fields[name].meta
	}
	nlat, nlon := c.GridSize()
	return CubeInfo{
		Source:     c.source,
		InitTime:   c.initTime,
		BuiltAt:    c.builtAt,
		Reducer:    c.reducer,
		Variables:  vars,
		Steps:      c.StepCount(),
		NLat:       nlat,
		NLon:       nlon,
		LatMin:     c.lat[0],
		LatMax:     c.lat[nlat-1],
		LonMin:     c.lon[0],
		LonMax:     c.lon[nlon-1],
		ValidTimes: c.ValidTimes(),
		StepLabels: c.StepLabels(),
	}
}

// nearestIndex returns the index of the axis value closest to x. Ties keep
// the lower index.
func nearestIndex(axis []float64, x float64) int {
	best, bestDist := 0, math.Abs(axis[0]-x)
	for i := 1; i < len(axis); i++ {
		if d := math.Abs(axis[i] - x); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
