package domain

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// Metadata labels a forecast variable.
type Metadata struct {
	Name     string `json:"name"`
	Units    string `json:"units"`
	LongName string `json:"long_name"`
}

// RawVariable holds one variable of the raw ensemble forecast. Values is
// row-major [lead][member][lat][lon]; NaN marks no-data.
type RawVariable struct {
	Meta   Metadata
	Values []float64
}

// RawCube is the loaded ensemble forecast before normalization. Longitudes
// may use the [0, 360) convention and latitudes may be descending.
type RawCube struct {
	Source    string
	InitTime  time.Time
	Lat       []float64
	Lon       []float64
	Lead      []float64 // months since InitTime
	Members   int
	Variables map[string]RawVariable
}

// Cube is the normalized, ensemble-reduced, time-indexed forecast. It is
// immutable after Build; every accessor returns a copy.
type Cube struct {
	source     string
	initTime   time.Time
	builtAt    time.Time
	reducer    string
	lat        []float64
	lon        []float64
	leads      []float64
	validTimes []time.Time
	names      []string
	fields     map[string]field
}

// field is one variable's [step][lat][lon] data.
type field struct {
	meta   Metadata
	values []float64
}

type buildOptions struct {
	reducer     Reducer
	concurrency int
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

// WithReducer replaces the default ensemble mean.
func WithReducer(r Reducer) BuildOption {
	return func(o *buildOptions) {
		if r != nil {
			o.reducer = r
		}
	}
}

// WithConcurrency bounds how many variables are reduced in parallel.
func WithConcurrency(n int) BuildOption {
	return func(o *buildOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// Build assembles a Cube from a raw ensemble forecast: it normalizes the
// coordinate axes, reduces the ensemble dimension, derives valid times and
// validates the result. It fails with ErrEmptyEnsemble when the raw cube has
// no members and with ErrMalformedCube when shapes or invariants do not hold.
func Build(ctx context.Context, raw RawCube, opts ...BuildOption) (*Cube, error) {
	o := buildOptions{reducer: MeanReducer{}, concurrency: 4}
	for _, opt := range opts {
		opt(&o)
	}

	if err := validateRaw(raw); err != nil {
		return nil, err
	}

	lon, lonPerm := NormalizeLongitudes(raw.Lon)
	latPerm := SortAxis(raw.Lat)
	lat := ApplyPermutation(raw.Lat, latPerm)

	steps, members, nlat, nlon := len(raw.Lead), raw.Members, len(raw.Lat), len(raw.Lon)
	shape := []int{steps, members, nlat, nlon}

	names := slices.Sorted(maps.Keys(raw.Variables))
	reduced := make([][]float64, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values := raw.Variables[name].Values
			if !isIdentity(lonPerm) {
				values = PermuteAxis(values, shape, 3, lonPerm)
			}
			if !isIdentity(latPerm) {
				values = PermuteAxis(values, shape, 2, latPerm)
			}
			out, err := ReduceEnsemble(values, steps, members, nlat*nlon, o.reducer)
			if err != nil {
				return fmt.Errorf("reduce %s: %w", name, err)
			}
			reduced[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fields := make(map[string]field, len(names))
	for i, name := range names {
		meta := raw.Variables[name].Meta
		if meta.Name == "" {
			meta.Name = name
		}
		fields[name] = field{meta: meta, values: reduced[i]}
	}

	c := &Cube{
		source:     raw.Source,
		initTime:   raw.InitTime,
		builtAt:    clock.Now(),
		reducer:    o.reducer.Name(),
		lat:        lat,
		lon:        lon,
		leads:      slices.Clone(raw.Lead),
		validTimes: ValidTimes(raw.InitTime, raw.Lead),
		names:      names,
		fields:     fields,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// validateRaw checks the raw shape before any work is done.
func validateRaw(raw RawCube) error {
	if raw.Members == 0 {
		return ErrEmptyEnsemble
	}
	if raw.Members < 0 {
		return fmt.Errorf("%w: negative member count %d", ErrMalformedCube, raw.Members)
	}
	if len(raw.Lat) == 0 || len(raw.Lon) == 0 || len(raw.Lead) == 0 {
		return fmt.Errorf("%w: empty axis (lat=%d lon=%d lead=%d)", ErrMalformedCube, len(raw.Lat), len(raw.Lon), len(raw.Lead))
	}
	if len(raw.Variables) == 0 {
		return fmt.Errorf("%w: no variables", ErrMalformedCube)
	}
	want := len(raw.Lead) * raw.Members * len(raw.Lat) * len(raw.Lon)
	for name, v := range raw.Variables {
		if len(v.Values) != want {
			return fmt.Errorf("%w: variable %s has %d values, want %d", ErrMalformedCube, name, len(v.Values), want)
		}
	}
	return nil
}

// validate checks the assembled cube's invariants.
func (c *Cube) validate() error {
	if len(c.validTimes) != len(c.leads) {
		return fmt.Errorf("%w: %d valid times for %d lead steps", ErrMalformedCube, len(c.validTimes), len(c.leads))
	}
	for i := 1; i < len(c.validTimes); i++ {
		if !c.validTimes[i].After(c.validTimes[i-1]) {
			return fmt.Errorf("%w: valid times not strictly increasing at step %d (%s after %s)",
				ErrMalformedCube, i, c.validTimes[i].Format(time.DateOnly), c.validTimes[i-1].Format(time.DateOnly))
		}
	}
	if err := checkAxis("latitude", c.lat); err != nil {
		return err
	}
	if err := checkAxis("longitude", c.lon); err != nil {
		return err
	}
	if c.lon[0] < -180 || c.lon[len(c.lon)-1] >= 180 {
		return fmt.Errorf("%w: longitude outside [-180, 180)", ErrMalformedCube)
	}
	want := len(c.leads) * len(c.lat) * len(c.lon)
	for name, f := range c.fields {
		if len(f.values) != want {
			return fmt.Errorf("%w: variable %s has %d values, want %d", ErrMalformedCube, name, len(f.values), want)
		}
	}
	return nil
}

func checkAxis(name string, axis []float64) error {
	for i := 1; i < len(axis); i++ {
		if !(axis[i] > axis[i-1]) {
			return fmt.Errorf("%w: %s axis not strictly increasing at index %d", ErrMalformedCube, name, i)
		}
	}
	return nil
}

// StepCount is the number of forecast steps.
func (c *Cube) StepCount() int { return len(c.validTimes) }

// Variables returns the variable names in sorted order.
func (c *Cube) Variables() []string { return slices.Clone(c.names) }

// Metadata returns the labels for one variable.
func (c *Cube) Metadata(name string) (Metadata, bool) {
	f, ok := c.fields[name]
	return f.meta, ok
}

func (c *Cube) Lat() []float64             { return slices.Clone(c.lat) }
func (c *Cube) Lon() []float64             { return slices.Clone(c.lon) }
func (c *Cube) Leads() []float64           { return slices.Clone(c.leads) }
func (c *Cube) ValidTimes() []time.Time    { return slices.Clone(c.validTimes) }
func (c *Cube) InitTime() time.Time        { return c.initTime }
func (c *Cube) BuiltAt() time.Time         { return c.builtAt }
func (c *Cube) Source() string             { return c.source }
func (c *Cube) Reducer() string            { return c.reducer }
func (c *Cube) GridSize() (nlat, nlon int) { return len(c.lat), len(c.lon) }

// StepLabels formats one selector label per step, e.g. "Feb 2025 (Lead: 1 mo)".
func (c *Cube) StepLabels() []string {
	labels := make([]string, len(c.validTimes))
	for i, t := range c.validTimes {
		labels[i] = fmt.Sprintf("%s (Lead: %d mo)", t.Format("Jan 2006"), int(c.leads[i]))
	}
	return labels
}

// slice resolves a variable and step to the read-only [lat][lon] block.
func (c *Cube) slice(name string, step int) (field, []float64, error) {
	f, ok := c.fields[name]
	if !ok {
		return field{}, nil, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}
	if step < 0 || step >= len(c.validTimes) {
		return field{}, nil, fmt.Errorf("%w: step %d not in [0, %d)", ErrIndexOutOfRange, step, len(c.validTimes))
	}
	n := len(c.lat) * len(c.lon)
	return f, f.values[step*n : (step+1)*n : (step+1)*n], nil
}
