// Package sample generates synthetic NMME-style ensemble forecasts. The
// output has the same conventions as the operational files: longitudes in
// [0, 360), descending latitudes, and leads at mid-month offsets.
package sample

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

// Options controls the generated grid.
type Options struct {
	Source     string
	InitTime   time.Time
	Resolution float64 // grid spacing in degrees
	Leads      int
	Members    int
	Seed       uint64
	// MissingEvery marks every n-th cell of each member field as no-data.
	// Zero disables it.
	MissingEvery int
}

// DefaultOptions mirrors a coarse monthly NMME run.
func DefaultOptions() Options {
	return Options{
		Source:     "nmme_sample.nc",
		InitTime:   time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Resolution: 5,
		Leads:      9,
		Members:    10,
		Seed:       1,
	}
}

// Generate builds a raw cube with two variables: prec (mm/day) and tmp2m (K).
func Generate(opts Options) domain.RawCube {
	if opts.Resolution <= 0 {
		opts.Resolution = 5
	}
	if opts.Leads <= 0 {
		opts.Leads = 1
	}
	if opts.Members <= 0 {
		opts.Members = 1
	}

	lat := axis(90, -90, -opts.Resolution)
	lon := axis(0, 360-opts.Resolution, opts.Resolution)
	lead := make([]float64, opts.Leads)
	for i := range lead {
		lead[i] = float64(i) + 0.5
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	return domain.RawCube{
		Source:   opts.Source,
		InitTime: opts.InitTime,
		Lat:      lat,
		Lon:      lon,
		Lead:     lead,
		Members:  opts.Members,
		Variables: map[string]domain.RawVariable{
			"prec": {
				Meta:   domain.Metadata{Name: "prec", Units: "mm/day", LongName: "Total Precipitation"},
				Values: field(lat, lon, opts, rng, precipitation, 0),
			},
			"tmp2m": {
				Meta:   domain.Metadata{Name: "tmp2m", Units: "K", LongName: "2m Temperature"},
				Values: field(lat, lon, opts, rng, temperature, math.Inf(-1)),
			},
		},
	}
}

func axis(from, to, step float64) []float64 {
	n := int(math.Round((to-from)/step)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)*step
	}
	return out
}

type climatology func(lat, lon, lead float64) float64

// precipitation peaks in the tropics and drifts east with lead.
func precipitation(lat, lon, lead float64) float64 {
	band := math.Exp(-(lat * lat) / (2 * 15 * 15))
	wave := 1 + 0.3*math.Sin((lon+30*lead)*math.Pi/180)
	return 8 * band * wave
}

// temperature falls off toward the poles with a seasonal swing.
func temperature(lat, _, lead float64) float64 {
	return 300 - 50*math.Abs(math.Sin(lat*math.Pi/180)) + 3*math.Cos(lead*math.Pi/6)
}

func field(lat, lon []float64, opts Options, rng *rand.Rand, base climatology, floor float64) []float64 {
	cells := len(lat) * len(lon)
	values := make([]float64, opts.Leads*opts.Members*cells)
	i := 0
	for l := range opts.Leads {
		lead := float64(l) + 0.5
		for range opts.Members {
			for y, la := range lat {
				for x, lo := range lon {
					cell := y*len(lon) + x
					if opts.MissingEvery > 0 && cell%opts.MissingEvery == 0 {
						values[i] = math.NaN()
					} else {
						values[i] = max(floor, base(la, lo, lead)+rng.NormFloat64())
					}
					i++
				}
			}
		}
	}
	return values
}
