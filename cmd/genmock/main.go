// Command genmock writes a deterministic synthetic forecast dataset: a
// rectangular contour file and a grid of forecast files around it, named
// with the <model>_pDDMMYYaDDMMYY.dat convention. The expected aggregates are
// printed so a pipeline run over the dataset can be checked by eye.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -issues 3 -horizons 4 -start 011221
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/couchcryptid/forecast-precip-etl/internal/domain"
	"github.com/couchcryptid/forecast-precip-etl/internal/mockdata"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	defaults := mockdata.DefaultOptions()

	out := flag.String("out", "", "output directory for the dataset")
	model := flag.String("model", defaults.Model, "model prefix for forecast file names")
	issues := flag.Int("issues", defaults.Issues, "number of consecutive issue dates")
	horizons := flag.Int("horizons", defaults.Horizons, "horizon dates per issue")
	start := flag.String("start", defaults.Start.Format("020106"), "first issue date (DDMMYY)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	startDate, err := domain.ParseForecastDate(*start)
	if err != nil {
		return err
	}

	ds, err := mockdata.Generate(*out, mockdata.Options{
		Model:    *model,
		Start:    startDate,
		Issues:   *issues,
		Horizons: *horizons,
	})
	if err != nil {
		return err
	}

	log.Printf("wrote contour: %s", ds.ContourPath)
	log.Printf("wrote %d forecast files to %s (%d points each, %d inside the contour)",
		len(ds.Files), ds.ForecastDir, ds.PointsPerFile, ds.RetainedPerFile)

	printExpected(ds)
	return nil
}

func printExpected(ds *mockdata.Dataset) {
	issues := make([]time.Time, 0, len(ds.Totals))
	for issue := range ds.Totals {
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Before(issues[j]) })

	fmt.Println("\n=== Expected totals by issue date ===")
	for _, issue := range issues {
		fmt.Printf("  %s  %10.2f\n", issue.Format("2006-01-02"), ds.Totals[issue])
	}
	fmt.Printf("\n  grand total  %10.2f\n", ds.GrandTotal)
}
