// Command inspect loads a forecast file, builds the cube the service would
// serve, and prints a summary with per-step statistics for every variable.
// It exits non-zero when the file cannot be loaded or built.
//
// Usage:
//
//	go run ./cmd/inspect -reducer median data/nmme_prec.nc
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/s2s-forecast-service/internal/adapter/netcdf"
	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

func main() {
	reducerName := flag.String("reducer", "mean", "ensemble reducer (mean or median)")
	bins := flag.Int("bins", 0, "also print a histogram with this many bins for the first step")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: inspect [-reducer mean|median] [-bins n] <file.nc>")
		os.Exit(2)
	}

	if err := run(os.Stdout, flag.Arg(0), *reducerName, *bins); err != nil {
		fmt.Fprintln(os.Stderr, "inspect:", err)
		os.Exit(1)
	}
}

func run(w io.Writer, path, reducerName string, bins int) error {
	reducer, err := domain.ParseReducer(reducerName)
	if err != nil {
		return err
	}
	raw, err := netcdf.Load(path)
	if err != nil {
		return err
	}
	start := time.Now()
	cube, err := domain.Build(context.Background(), raw, domain.WithReducer(reducer))
	if err != nil {
		return err
	}
	took := time.Since(start)

	engine := domain.NewEngine(cube)
	info := engine.Info()

	fmt.Fprintf(w, "source:     %s\n", info.Source)
	fmt.Fprintf(w, "init time:  %s\n", info.InitTime.Format(time.DateOnly))
	fmt.Fprintf(w, "reducer:    %s (%d members, built in %s)\n", info.Reducer, raw.Members, took.Round(time.Millisecond))
	fmt.Fprintf(w, "grid:       %d x %d  lat [%g, %g]  lon [%g, %g]\n",
		info.NLat, info.NLon, info.LatMin, info.LatMax, info.LonMin, info.LonMax)
	fmt.Fprintf(w, "steps:      %d\n", info.Steps)
	for _, label := range info.StepLabels {
		fmt.Fprintf(w, "  %s\n", label)
	}

	for _, v := range info.Variables {
		fmt.Fprintf(w, "\n%s (%s) %s\n", v.Name, v.Units, v.LongName)
		if err := printStats(w, engine, v.Name, info.StepLabels); err != nil {
			return err
		}
		if bins > 0 {
			if err := printHistogram(w, engine, v.Name, bins); err != nil {
				return err
			}
		}
	}
	return nil
}

func printStats(w io.Writer, q domain.Querier, name string, labels []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "step\tcount\tmean\tmin\tmax\tstd\tmedian\tp95\t")
	for step, label := range labels {
		st, err := q.Statistics(name, step)
		if errors.Is(err, domain.ErrEmptyData) {
			fmt.Fprintf(tw, "%s\t0\t-\t-\t-\t-\t-\t-\t\n", label)
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t\n",
			label, st.Count, st.Mean, st.Min, st.Max, st.StdDev, st.Median, st.P95)
	}
	return tw.Flush()
}

func printHistogram(w io.Writer, q domain.Querier, name string, bins int) error {
	h, err := q.Histogram(name, 0, bins)
	if errors.Is(err, domain.ErrEmptyData) {
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "histogram (step 0, %d kept, %d at or above %.3f dropped)\n", h.Retained, h.Excluded, h.Threshold)
	for i, c := range h.Counts {
		fmt.Fprintf(w, "  [%10.3f, %10.3f) %d\n", h.Edges[i], h.Edges[i+1], c)
	}
	return nil
}
