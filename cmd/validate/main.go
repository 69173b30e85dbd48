// Command validate performs integrity checks on a forecast dataset directory:
// the contour parses into a usable polygon, every forecast file name matches
// the naming convention with valid dates, every grid file parses, and the
// aggregated tables satisfy their total and cumulative invariants.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -contour data/mock/SYNTH_REGION.bln \
//	  -forecast-dir data/mock/forecast_files
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"regexp"

	"github.com/couchcryptid/forecast-precip-etl/internal/adapter/forecastfs"
	"github.com/couchcryptid/forecast-precip-etl/internal/config"
	"github.com/couchcryptid/forecast-precip-etl/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// tolerance for comparing float64 sums computed in different orders.
const tolerance = 1e-6

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	contour := flag.String("contour", "", "path to the contour (BLN) file")
	forecastDir := flag.String("forecast-dir", "", "directory containing forecast grid files")
	pattern := flag.String("pattern", config.DefaultForecastPattern, "forecast file name pattern")
	flag.Parse()

	if *contour == "" || *forecastDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*contour, *forecastDir, *pattern); code != 0 {
		os.Exit(code)
	}
}

// dataset carries what each phase produced for the phases after it.
type dataset struct {
	polygon domain.Polygon
	files   []domain.ForecastFile
	points  map[string][]domain.GridPoint
	batches []domain.DatedBatch
}

func run(contourPath, forecastDir, pattern string) int {
	re, err := regexp.Compile(pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: compile pattern: %v\n", err)
		return 1
	}
	src, err := forecastfs.NewSource(forecastDir, re, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	fmt.Println("=== Forecast Dataset Integrity Validation ===")
	fmt.Println()

	ds := &dataset{points: map[string][]domain.GridPoint{}}
	phases := []*phase{
		validateContour(ds, contourPath),
		validateFileNames(ds, src),
		validateGrids(ds, src),
		validateAggregation(ds),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Contour vertices: %d, forecast files: %d, grid points: %d\n",
		ds.polygon.Len(), len(ds.files), countPoints(ds.points))

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func countPoints(points map[string][]domain.GridPoint) int {
	n := 0
	for _, pts := range points {
		n += len(pts)
	}
	return n
}

// ── Phase 1: Contour ──

func validateContour(ds *dataset, path string) *phase {
	p := &phase{name: "Phase 1: Contour (BLN file)"}

	polygon, err := domain.ReadContourFile(path)
	if err != nil {
		p.errorf("%v (%s)", err, domain.ErrorKind(err))
		return p
	}
	ds.polygon = polygon

	c := polygon.Centroid()
	if !polygon.Contains(c.Longitude, c.Latitude) {
		fmt.Printf("  Note: vertex centroid (%.4f, %.4f) lies outside the contour (concave region)\n",
			c.Longitude, c.Latitude)
	}
	return p
}

// ── Phase 2: File names ──

func validateFileNames(ds *dataset, src *forecastfs.Source) *phase {
	p := &phase{name: "Phase 2: Forecast file names and dates"}

	files, err := src.Discover(context.Background())
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if len(files) == 0 {
		p.errorf("no forecast files match the naming pattern")
		return p
	}

	seen := map[[2]string]string{}
	for _, f := range files {
		if f.HorizonDate.Before(f.IssueDate) {
			p.errorf("%s: horizon %s precedes issue %s", f.Name,
				f.HorizonDate.Format("2006-01-02"), f.IssueDate.Format("2006-01-02"))
		}
		key := [2]string{f.IssueDate.Format("2006-01-02"), f.HorizonDate.Format("2006-01-02")}
		if other, ok := seen[key]; ok {
			fmt.Printf("  Note: %s and %s share issue/horizon %s/%s and will be summed\n", other, f.Name, key[0], key[1])
		}
		seen[key] = f.Name
	}
	ds.files = files
	return p
}

// ── Phase 3: Grid files ──

func validateGrids(ds *dataset, src *forecastfs.Source) *phase {
	p := &phase{name: "Phase 3: Grid files (lon lat value)"}

	for _, f := range ds.files {
		points, err := src.Extract(context.Background(), f)
		if err != nil {
			p.errorf("%v (%s)", err, domain.ErrorKind(err))
			continue
		}
		if len(points) == 0 {
			p.errorf("%s: no grid points", f.Name)
		}
		for i, pt := range points {
			if pt.Value < 0 {
				p.errorf("%s point %d: negative precipitation %g", f.Name, i+1, pt.Value)
			}
		}
		ds.points[f.Name] = points
	}
	return p
}

// ── Phase 4: Aggregation invariants ──

func validateAggregation(ds *dataset) *phase {
	p := &phase{name: "Phase 4: Aggregation invariants"}
	if ds.polygon.Len() == 0 {
		p.errorf("skipped: contour did not load")
		return p
	}

	agg := domain.NewAggregator()
	var clippedValues []float64
	for _, f := range ds.files {
		points, ok := ds.points[f.Name]
		if !ok {
			continue
		}
		clipped, err := domain.Clip(ds.polygon, points)
		if err != nil {
			p.errorf("%s: %v", f.Name, err)
			continue
		}
		for _, pt := range clipped {
			clippedValues = append(clippedValues, pt.Value)
		}
		if err := agg.Add(domain.DatedBatch{IssueDate: f.IssueDate, HorizonDate: f.HorizonDate, Source: f.Name, Points: clipped}); err != nil {
			p.errorf("%s: %v", f.Name, err)
		}
	}
	tables := agg.Tables()

	totals := make([]float64, len(tables.Totals))
	for i, row := range tables.Totals {
		totals[i] = row.Value
	}
	detail := make([]float64, len(tables.Detail))
	for i, row := range tables.Detail {
		detail[i] = row.Value
	}

	want := floats.Sum(clippedValues)
	checkClose(p, "sum of issue totals", floats.Sum(totals), want)
	checkClose(p, "sum of detail values", floats.Sum(detail), want)
	checkClose(p, "grand total", tables.GrandTotal, want)

	for _, series := range tables.Series() {
		label := series.IssueDate.Format("2006-01-02")
		if len(series.Horizons) == 0 {
			p.errorf("issue %s: no horizon rows", label)
			continue
		}
		running := make([]float64, len(series.Horizons))
		for i, row := range series.Horizons {
			running[i] = row.Value
		}
		floats.CumSum(running, running)
		for i, row := range series.Horizons {
			if math.Abs(row.Cumulative-running[i]) > tolerance {
				p.errorf("issue %s horizon %s: cumulative %g, running sum %g",
					label, row.HorizonDate.Format("2006-01-02"), row.Cumulative, running[i])
			}
		}
		last := series.Horizons[len(series.Horizons)-1].Cumulative
		if math.Abs(last-series.Total) > tolerance {
			p.errorf("issue %s: last cumulative %g != issue total %g", label, last, series.Total)
		}
	}

	fmt.Printf("  Retained %d of %d grid points inside the contour; grand total %.2f\n",
		len(clippedValues), countPoints(ds.points), tables.GrandTotal)
	return p
}

func checkClose(p *phase, what string, got, want float64) {
	if math.Abs(got-want) > tolerance*math.Max(1, math.Abs(want)) {
		p.errorf("%s: %g, expected %g", what, got, want)
	}
}
