// Package domain models a multi-model ensemble seasonal forecast and the
// queries served against it.
//
// # Data Source
//
// Input files follow the NMME / IRI Data Library layout: one NetCDF file per
// initialization with dimensions
//
//	S  forecast start (scalar initialization time)
//	L  lead time in months, usually 0.5, 1.5, ... 8.5
//	M  ensemble member
//	Y  latitude, degrees north
//	X  longitude, degrees east in the 0–360 convention
//
// The NetCDF adapter maps those names onto a [RawCube]; this package never
// sees file formats.
//
// # Pipeline
//
// [Build] runs once per process:
//
//	normalize coordinates → reduce ensemble → derive valid times → validate
//
// Longitudes are wrapped with ((x + 180) mod 360) - 180 onto the half-open
// interval [-180, 180), so 180 becomes -180, and then stably sorted.
// Latitudes are sorted ascending. The same permutations are applied to every
// variable. See [NormalizeLongitudes] and [PermuteAxis].
//
// The member dimension is collapsed by a [Reducer]; the default is the
// arithmetic mean of the non-missing members. NaN is the no-data value
// throughout; a cell with no valid member reduces to NaN.
//
// Valid times come from calendar month arithmetic, not fixed durations:
//
//	init 2025-01-31, leads [0 1 2] → 2025-01-31, 2025-02-28, 2025-03-31
//
// Fractional leads are truncated toward zero, so the usual half-month leads
// 0.5, 1.5, 2.5 map to 0, 1, 2 months. See [ValidTimes].
//
// # Queries
//
// An [Engine] answers four read-only queries against one immutable [Cube]:
// spatial snapshot, point series, summary statistics and histogram. All
// aggregates ignore NaN and ±Inf. Percentiles interpolate linearly between
// the closest ranks of the sorted finite values.
//
//	Snapshot:   color scale [0, p95]
//	Statistics: mean, min, max, population std-dev, median, p95
//	Histogram:  drop values >= p98, then equal-width bins over the rest
//
// A Cube is never mutated after Build, so engines need no locking. Replacing
// the forecast means building a new Cube and swapping the reference.
package domain
