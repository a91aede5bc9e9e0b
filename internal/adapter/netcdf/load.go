package netcdf

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	nc "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

type role int

const (
	roleLead role = iota
	roleMember
	roleLat
	roleLon
	roleInit
)

func (r role) String() string {
	return [...]string{"lead", "member", "latitude", "longitude", "initialization time"}[r]
}

// Dimension names accepted for each role, in lookup order. NMME files use
// the single-letter IRI names.
var aliases = map[role][]string{
	roleLat:    {"Y", "lat", "latitude"},
	roleLon:    {"X", "lon", "longitude"},
	roleLead:   {"L", "lead", "lead_time"},
	roleMember: {"M", "member", "ensemble"},
	roleInit:   {"S", "time", "init_time"},
}

var roleByName = func() map[string]role {
	m := make(map[string]role)
	for r, names := range aliases {
		for _, n := range names {
			m[n] = r
		}
	}
	return m
}()

// Load reads a NetCDF ensemble forecast into a raw cube. Every variable whose
// dimensions cover lead, member, latitude and longitude (plus an optional
// length-1 initialization dimension) becomes a forecast variable.
func Load(path string) (domain.RawCube, error) {
	g, err := nc.Open(path)
	if err != nil {
		return domain.RawCube{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer g.Close()

	vars := g.ListVariables()
	coord := func(r role) (string, bool) {
		for _, name := range aliases[r] {
			if slices.Contains(vars, name) {
				return name, true
			}
		}
		return "", false
	}

	raw := domain.RawCube{
		Source:    filepath.Base(path),
		Variables: make(map[string]domain.RawVariable),
	}

	for _, r := range []role{roleLat, roleLon, roleLead} {
		name, ok := coord(r)
		if !ok {
			return domain.RawCube{}, fmt.Errorf("%w: no %s coordinate in %s", domain.ErrMalformedCube, r, path)
		}
		values, err := readAxis(g, name)
		if err != nil {
			return domain.RawCube{}, err
		}
		switch r {
		case roleLat:
			raw.Lat = values
		case roleLon:
			raw.Lon = values
		case roleLead:
			raw.Lead = values
		}
	}

	initName, ok := coord(roleInit)
	if !ok {
		return domain.RawCube{}, fmt.Errorf("%w: no %s in %s", domain.ErrMalformedCube, roleInit, path)
	}
	if raw.InitTime, err = readInitTime(g, initName); err != nil {
		return domain.RawCube{}, err
	}

	for _, name := range vars {
		if _, isCoord := roleByName[name]; isCoord {
			continue
		}
		v, err := g.GetVariable(name)
		if err != nil {
			return domain.RawCube{}, fmt.Errorf("read %s: %w", name, err)
		}
		order, ok := canonicalOrder(v.Dimensions)
		if !ok {
			continue
		}
		values, shape, err := flatten(v.Values)
		if err != nil {
			return domain.RawCube{}, fmt.Errorf("%w: variable %s: %v", domain.ErrMalformedCube, name, err)
		}
		if len(shape) != len(v.Dimensions) {
			return domain.RawCube{}, fmt.Errorf("%w: variable %s has %d dimensions but %d-D data",
				domain.ErrMalformedCube, name, len(v.Dimensions), len(shape))
		}
		for d, n := range shape {
			if !slices.Contains(order, d) && n != 1 {
				return domain.RawCube{}, fmt.Errorf("%w: variable %s has extra dimension %s of length %d",
					domain.ErrMalformedCube, name, v.Dimensions[d], n)
			}
		}

		members := shape[order[1]]
		if raw.Members == 0 {
			raw.Members = members
		} else if raw.Members != members {
			return domain.RawCube{}, fmt.Errorf("%w: variable %s has %d members, want %d",
				domain.ErrMalformedCube, name, members, raw.Members)
		}

		unpack(values, v.Attributes)
		raw.Variables[name] = domain.RawVariable{
			Meta: domain.Metadata{
				Name:     name,
				Units:    stringAttr(v.Attributes, "units"),
				LongName: stringAttr(v.Attributes, "long_name"),
			},
			Values: reorder(values, shape, order),
		}
	}

	if len(raw.Variables) == 0 {
		return domain.RawCube{}, fmt.Errorf("%w: no ensemble forecast variables in %s", domain.ErrMalformedCube, path)
	}
	return raw, nil
}

// canonicalOrder maps a variable's dimensions onto [lead, member, lat, lon].
// It reports false when any of the four is missing.
func canonicalOrder(dims []string) ([]int, bool) {
	order := []int{-1, -1, -1, -1}
	for d, name := range dims {
		r, ok := roleByName[name]
		if !ok || r == roleInit {
			continue
		}
		order[r] = d
	}
	if slices.Contains(order, -1) {
		return nil, false
	}
	return order, true
}

// reorder moves the four forecast dimensions into canonical order and drops
// the length-1 extras.
func reorder(values []float64, shape, order []int) []float64 {
	if slices.IsSorted(order) {
		return values
	}
	full := slices.Clone(order)
	for d := range shape {
		if !slices.Contains(order, d) {
			full = append(full, d)
		}
	}
	return transpose(values, shape, full)
}

func readAxis(g api.Group, name string) ([]float64, error) {
	v, err := g.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	values, shape, err := flatten(v.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: coordinate %s: %v", domain.ErrMalformedCube, name, err)
	}
	if len(shape) > 1 {
		return nil, fmt.Errorf("%w: coordinate %s is %d-D", domain.ErrMalformedCube, name, len(shape))
	}
	return values, nil
}

func readInitTime(g api.Group, name string) (time.Time, error) {
	v, err := g.GetVariable(name)
	if err != nil {
		return time.Time{}, fmt.Errorf("read %s: %w", name, err)
	}
	values, _, err := flatten(v.Values)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", domain.ErrMalformedCube, name, err)
	}
	if len(values) != 1 {
		return time.Time{}, fmt.Errorf("%w: want one initialization time, found %d", domain.ErrMalformedCube, len(values))
	}
	t, err := decodeTime(values[0], stringAttr(v.Attributes, "units"))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", domain.ErrMalformedCube, name, err)
	}
	return t, nil
}
