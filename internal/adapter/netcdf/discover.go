// Package netcdf reads and writes NMME-style seasonal ensemble forecasts
// stored as NetCDF files.
package netcdf

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
)

// ErrNoInputFile reports that input discovery found nothing to load.
var ErrNoInputFile = errors.New("no forecast input file")

// Discover returns the first file in dir matching pattern, in lexical order.
func Discover(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: nothing matches %s in %s", ErrNoInputFile, pattern, dir)
	}
	slices.Sort(matches)
	return matches[0], nil
}
