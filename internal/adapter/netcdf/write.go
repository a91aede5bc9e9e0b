package netcdf

import (
	"fmt"
	"maps"
	"math"
	"slices"

	nc "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

// fillValue marks no-data cells on disk. It is the NetCDF default float fill,
// recorded in the missing_value attribute since the CDF writer rejects
// attribute names starting with an underscore.
const fillValue float32 = 9.96921e+36

// Write stores raw as a classic NetCDF file in the NMME layout: a length-1
// S dimension followed by L, M, Y and X, with float32 data and float64
// coordinates. NaN values are written as fillValue and flagged through the
// missing_value attribute.
func Write(path string, raw domain.RawCube) (err error) {
	steps, members, nlat, nlon := len(raw.Lead), raw.Members, len(raw.Lat), len(raw.Lon)
	want := steps * members * nlat * nlon
	for name, v := range raw.Variables {
		if len(v.Values) != want {
			return fmt.Errorf("%w: variable %s has %d values, want %d", domain.ErrMalformedCube, name, len(v.Values), want)
		}
	}

	w, err := nc.OpenWriter(path, nc.KindCDF)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	global, err := attributes([]string{"title", "source"}, map[string]any{
		"title":  "Seasonal ensemble forecast",
		"source": raw.Source,
	})
	if err != nil {
		return err
	}
	if err := w.AddAttributes(global); err != nil {
		return fmt.Errorf("write global attributes: %w", err)
	}

	s, units := encodeTime(raw.InitTime)
	memberIDs := make([]float64, members)
	for i := range memberIDs {
		memberIDs[i] = float64(i + 1)
	}
	coords := []struct {
		name   string
		values []float64
		attrs  map[string]any
	}{
		{"S", []float64{s}, map[string]any{"units": units, "long_name": "Forecast Start Time"}},
		{"L", raw.Lead, map[string]any{"units": "months", "long_name": "Lead"}},
		{"M", memberIDs, map[string]any{"units": "unitless", "long_name": "Ensemble Member"}},
		{"Y", raw.Lat, map[string]any{"units": "degree_north", "long_name": "Latitude"}},
		{"X", raw.Lon, map[string]any{"units": "degree_east", "long_name": "Longitude"}},
	}
	for _, c := range coords {
		attrs, err := attributes([]string{"units", "long_name"}, c.attrs)
		if err != nil {
			return err
		}
		if err := w.AddVar(c.name, api.Variable{
			Values:     slices.Clone(c.values),
			Dimensions: []string{c.name},
			Attributes: attrs,
		}); err != nil {
			return fmt.Errorf("write %s: %w", c.name, err)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(raw.Variables)) {
		v := raw.Variables[name]
		attrs, err := attributes([]string{"units", "long_name", "missing_value"}, map[string]any{
			"units":         v.Meta.Units,
			"long_name":     v.Meta.LongName,
			"missing_value": fillValue,
		})
		if err != nil {
			return err
		}
		if err := w.AddVar(name, api.Variable{
			Values:     nest(v.Values, steps, members, nlat, nlon),
			Dimensions: []string{"S", "L", "M", "Y", "X"},
			Attributes: attrs,
		}); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// attributes builds an ordered attribute map, skipping empty strings.
func attributes(keys []string, values map[string]any) (api.AttributeMap, error) {
	kept := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := values[k].(string); ok && s == "" {
			delete(values, k)
			continue
		}
		kept = append(kept, k)
	}
	m, err := util.NewOrderedMap(kept, values)
	if err != nil {
		return nil, fmt.Errorf("attributes: %w", err)
	}
	return m, nil
}

// nest shapes row-major [lead][member][lat][lon] values into [1][L][M][Y][X]
// float32 slices.
func nest(values []float64, steps, members, nlat, nlon int) [][][][][]float32 {
	out := make([][][][]float32, steps)
	k := 0
	for s := range out {
		out[s] = make([][][]float32, members)
		for m := range out[s] {
			out[s][m] = make([][]float32, nlat)
			for i := range out[s][m] {
				row := make([]float32, nlon)
				for j := range row {
					v := values[k]
					k++
					if math.IsNaN(v) {
						row[j] = fillValue
						continue
					}
					row[j] = float32(v)
				}
				out[s][m][i] = row
			}
		}
	}
	return [][][][][]float32{out}
}
