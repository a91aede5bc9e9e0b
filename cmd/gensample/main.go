// Command gensample writes a synthetic NMME-style ensemble forecast as a
// NetCDF file. The file uses the operational layout (S, L, M, Y, X), with
// longitudes in [0, 360) and leads at 0.5, 1.5, ... months, so it exercises
// the same normalization path as real input.
//
// Usage:
//
//	go run ./cmd/gensample -out data/nmme_sample.nc -init 2025-01 -members 10
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/s2s-forecast-service/internal/adapter/netcdf"
	"github.com/couchcryptid/s2s-forecast-service/internal/sample"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	def := sample.DefaultOptions()
	out := flag.String("out", filepath.Join("data", def.Source), "output NetCDF path")
	initMonth := flag.String("init", def.InitTime.Format("2006-01"), "initialization month (YYYY-MM)")
	resolution := flag.Float64("resolution", def.Resolution, "grid spacing in degrees")
	leads := flag.Int("leads", def.Leads, "number of monthly leads")
	members := flag.Int("members", def.Members, "ensemble members")
	seed := flag.Uint64("seed", def.Seed, "random seed")
	missing := flag.Int("missing-every", 0, "mark every n-th grid cell as no-data (0 disables)")
	flag.Parse()

	initTime, err := time.Parse("2006-01", *initMonth)
	if err != nil {
		return fmt.Errorf("invalid -init %q: %w", *initMonth, err)
	}
	if *resolution <= 0 || *leads <= 0 || *members <= 0 {
		flag.Usage()
		return fmt.Errorf("-resolution, -leads and -members must be positive")
	}

	opts := sample.Options{
		Source:       filepath.Base(*out),
		InitTime:     initTime,
		Resolution:   *resolution,
		Leads:        *leads,
		Members:      *members,
		Seed:         *seed,
		MissingEvery: *missing,
	}
	raw := sample.Generate(opts)

	if dir := filepath.Dir(*out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := netcdf.Write(*out, raw); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}

	log.Printf("wrote %s: %d variables, %d leads, %d members, %dx%d grid",
		*out, len(raw.Variables), len(raw.Lead), raw.Members, len(raw.Lat), len(raw.Lon))
	return nil
}
