// Package mockdata writes a deterministic synthetic forecast dataset: a
// rectangular contour and a regular grid of forecast files around it. The
// expected aggregates are computed without the clipping code so they can be
// used to check a pipeline run end to end.
package mockdata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options controls the generated dataset.
type Options struct {
	Model    string    // file name prefix, e.g. "ETA40"
	Start    time.Time // first issue date
	Issues   int       // consecutive issue dates
	Horizons int       // horizon dates per issue, starting the day after issue
}

// DefaultOptions produces 3 issues with 4 horizons each.
func DefaultOptions() Options {
	return Options{
		Model:    "ETA40",
		Start:    time.Date(2021, time.December, 1, 0, 0, 0, 0, time.UTC),
		Issues:   3,
		Horizons: 4,
	}
}

// Contour and grid geometry. Quarter-degree steps are exact in binary, so the
// grid hits the contour edges and vertices exactly.
const (
	contourWest  = -44.5
	contourEast  = -43.5
	contourSouth = -22.5
	contourNorth = -21.5

	gridWest  = -45.0
	gridSouth = -23.0
	gridStep  = 0.25
	gridCols  = 13
	gridRows  = 13
)

// HorizonKey identifies one (issue, horizon) pair.
type HorizonKey struct {
	Issue   time.Time
	Horizon time.Time
}

// Dataset describes what Generate wrote.
type Dataset struct {
	ContourPath string
	ForecastDir string
	Files       []string

	PointsPerFile   int
	RetainedPerFile int

	// Expected aggregates of the points inside the contour, boundary included.
	Totals     map[time.Time]float64
	Detail     map[HorizonKey]float64
	GrandTotal float64
}

// ContourName is the base name of the generated contour file.
const ContourName = "SYNTH_REGION.bln"

// Generate writes the contour into dir and the forecast files into
// dir/forecast_files.
func Generate(dir string, opts Options) (*Dataset, error) {
	if opts.Issues <= 0 || opts.Horizons <= 0 {
		return nil, fmt.Errorf("issues and horizons must be positive, got %d and %d", opts.Issues, opts.Horizons)
	}
	if opts.Model == "" {
		opts.Model = "ETA40"
	}

	forecastDir := filepath.Join(dir, "forecast_files")
	if err := os.MkdirAll(forecastDir, 0o755); err != nil {
		return nil, fmt.Errorf("create forecast dir: %w", err)
	}

	ds := &Dataset{
		ContourPath: filepath.Join(dir, ContourName),
		ForecastDir: forecastDir,
		Totals:      map[time.Time]float64{},
		Detail:      map[HorizonKey]float64{},
	}
	if err := os.WriteFile(ds.ContourPath, []byte(contourText()), 0o600); err != nil {
		return nil, fmt.Errorf("write contour: %w", err)
	}

	start := time.Date(opts.Start.Year(), opts.Start.Month(), opts.Start.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < opts.Issues; i++ {
		issue := start.AddDate(0, 0, i)
		for h := 1; h <= opts.Horizons; h++ {
			horizon := issue.AddDate(0, 0, h)
			name := FileName(opts.Model, issue, horizon)

			content, total, read, retained := gridText(i, h)
			if err := os.WriteFile(filepath.Join(forecastDir, name), []byte(content), 0o600); err != nil {
				return nil, fmt.Errorf("write %s: %w", name, err)
			}

			ds.Files = append(ds.Files, name)
			ds.PointsPerFile = read
			ds.RetainedPerFile = retained
			ds.Totals[issue] += total
			ds.Detail[HorizonKey{Issue: issue, Horizon: horizon}] += total
			ds.GrandTotal += total
		}
	}
	return ds, nil
}

// FileName builds "<model>_pDDMMYYaDDMMYY.dat".
func FileName(model string, issue, horizon time.Time) string {
	return fmt.Sprintf("%s_p%sa%s.dat", model, issue.Format("020106"), horizon.Format("020106"))
}

// contourText closes the rectangle by repeating its first vertex and adds a
// trailing label field on one record, both of which real BLN files do.
func contourText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "5, 1\n")
	fmt.Fprintf(&b, "%g, %g, SW\n", contourWest, contourSouth)
	fmt.Fprintf(&b, "%g, %g\n", contourWest, contourNorth)
	fmt.Fprintf(&b, "%g, %g\n", contourEast, contourNorth)
	fmt.Fprintf(&b, "%g, %g\n", contourEast, contourSouth)
	fmt.Fprintf(&b, "%g, %g\n", contourWest, contourSouth)
	return b.String()
}

// gridText renders one forecast file and returns the sum of the values
// inside the contour together with the read and retained point counts.
// Values are multiples of 0.25 so every float sum is exact.
func gridText(issue, horizon int) (content string, inside float64, read, retained int) {
	var b strings.Builder
	for row := 0; row < gridRows; row++ {
		lat := gridSouth + float64(row)*gridStep
		for col := 0; col < gridCols; col++ {
			lon := gridWest + float64(col)*gridStep
			value := float64((col*7+row*3+issue*5+horizon)%11) * 0.25
			fmt.Fprintf(&b, "%8.3f %8.3f %6.2f\n", lon, lat, value)
			read++
			if lon >= contourWest && lon <= contourEast && lat >= contourSouth && lat <= contourNorth {
				inside += value
				retained++
			}
		}
		if row%4 == 3 {
			b.WriteString("\n")
		}
	}
	return b.String(), inside, read, retained
}
