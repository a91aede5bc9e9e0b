package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/s2s-forecast-service/internal/adapter/netcdf"
	"github.com/couchcryptid/s2s-forecast-service/internal/sample"
)

func TestRun(t *testing.T) {
	opts := sample.DefaultOptions()
	opts.Resolution = 30
	opts.Leads = 2
	opts.Members = 3
	path := filepath.Join(t.TempDir(), opts.Source)
	require.NoError(t, netcdf.Write(path, sample.Generate(opts)))

	var out bytes.Buffer
	require.NoError(t, run(&out, path, "median", 4))

	text := out.String()
	assert.Contains(t, text, "source:     nmme_sample.nc")
	assert.Contains(t, text, "reducer:    median (3 members")
	assert.Contains(t, text, "grid:       7 x 12  lat [-90, 90]  lon [-180, 150]")
	assert.Contains(t, text, "Feb 2025 (Lead: 1 mo)")
	assert.Contains(t, text, "prec (mm/day) Total Precipitation")
	assert.Contains(t, text, "histogram (step 0")
}

func TestRun_Errors(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, run(&out, filepath.Join(t.TempDir(), "missing.nc"), "mean", 0))
	require.Error(t, run(&out, "unused.nc", "mode", 0))
}
