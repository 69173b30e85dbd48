package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/forecast-precip-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/forecast-precip-etl/internal/adapter/report"
	"github.com/couchcryptid/forecast-precip-etl/internal/domain"
	"github.com/couchcryptid/forecast-precip-etl/internal/observability"
	"github.com/couchcryptid/forecast-precip-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSource struct {
	mu          sync.Mutex
	files       []domain.ForecastFile
	points      map[string][]domain.GridPoint
	discoverErr error
	extractErr  map[string]error
	extracted   []string
	discovers   int
}

func (m *mockSource) Discover(_ context.Context) ([]domain.ForecastFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovers++
	if m.discoverErr != nil {
		return nil, m.discoverErr
	}
	return m.files, nil
}

func (m *mockSource) Extract(_ context.Context, file domain.ForecastFile) ([]domain.GridPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extracted = append(m.extracted, file.Name)
	if err := m.extractErr[file.Name]; err != nil {
		return nil, err
	}
	return m.points[file.Name], nil
}

func (m *mockSource) failDiscover(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoverErr = err
}

type mockLoader struct {
	mu      sync.Mutex
	reports []domain.Report
	err     error
	loaded  chan domain.Report
}

func (m *mockLoader) LoadReport(_ context.Context, report domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reports = append(m.reports, report)
	if m.loaded != nil {
		m.loaded <- report
	}
	return nil
}

// flakyGeocoder returns an error for the first n calls, where n is failures.
type flakyGeocoder struct {
	mu       sync.Mutex
	failures int
	calls    int
	lats     []float64
	lons     []float64
}

func (g *flakyGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lats = append(g.lats, lat)
	g.lons = append(g.lons, lon)
	if g.calls <= g.failures {
		return domain.GeocodingResult{}, errors.New("mapbox unavailable")
	}
	return domain.GeocodingResult{FormattedAddress: "Carrancas, Minas Gerais, Brazil", PlaceName: "Carrancas"}, nil
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- helpers ---

func day(d int) time.Time {
	return time.Date(2021, time.December, d, 0, 0, 0, 0, time.UTC)
}

func square(t *testing.T) domain.Polygon {
	t.Helper()
	p, err := domain.NewPolygon([]domain.Vertex{{Longitude: 0, Latitude: 0}, {Longitude: 0, Latitude: 10}, {Longitude: 10, Latitude: 10}, {Longitude: 10, Latitude: 0}})
	require.NoError(t, err)
	return p
}

func forecastFile(issue, horizon int) domain.ForecastFile {
	name := "ETA40_p" + day(issue).Format("020106") + "a" + day(horizon).Format("020106") + ".dat"
	return domain.ForecastFile{Path: "/data/" + name, Name: name, IssueDate: day(issue), HorizonDate: day(horizon)}
}

// newSquareSource serves two issues over a 0..10 square: each file has one
// point inside, one on the boundary and one outside.
func newSquareSource() *mockSource {
	files := []domain.ForecastFile{forecastFile(1, 2), forecastFile(1, 3), forecastFile(2, 3)}
	return &mockSource{
		files: files,
		points: map[string][]domain.GridPoint{
			files[0].Name: {{Longitude: 0, Latitude: 0, Value: 1}, {Longitude: 5, Latitude: 5, Value: 2}, {Longitude: 20, Latitude: 20, Value: 3}},
			files[1].Name: {{Longitude: 10, Latitude: 5, Value: 0.5}, {Longitude: 1, Latitude: 1, Value: 4}, {Longitude: -1, Latitude: 5, Value: 9}},
			files[2].Name: {{Longitude: 3, Latitude: 10, Value: 1.5}, {Longitude: 9, Latitude: 9, Value: 1}, {Longitude: 11, Latitude: 0, Value: 6}},
		},
	}
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	src := newSquareSource()
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(src, pipeline.NewClipper(square(t), discardLogger()), []pipeline.ReportLoader{ldr}, discardLogger(), metrics, "Camargos")

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	want := domain.Tables{
		Totals: []domain.IssueTotal{
			{IssueDate: day(1), Value: 7.5},
			{IssueDate: day(2), Value: 2.5},
		},
		Detail: []domain.HorizonRow{
			{IssueDate: day(1), HorizonDate: day(2), Value: 3, Cumulative: 3},
			{IssueDate: day(1), HorizonDate: day(3), Value: 4.5, Cumulative: 7.5},
			{IssueDate: day(2), HorizonDate: day(3), Value: 2.5, Cumulative: 2.5},
		},
		GrandTotal: 10,
	}
	if diff := cmp.Diff(want, report.Tables); diff != "" {
		t.Fatalf("tables mismatch (-want +got):\n%s", diff)
	}

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "Camargos", report.Region)
	assert.Equal(t, domain.RunStats{Files: 3, PointsRead: 9, PointsRetained: 6}, report.RunStats)

	require.Len(t, ldr.reports, 1)
	assert.Equal(t, report.RunID, ldr.reports[0].RunID)

	assert.NoError(t, p.CheckReadiness(context.Background()))
	last, ok := p.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.RunID, last.RunID)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.FilesProcessed))
	assert.Equal(t, 9.0, testutil.ToFloat64(metrics.PointsRead))
	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.PointsRetained))
	assert.Equal(t, 10.0, testutil.ToFloat64(metrics.LastGrandTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}

func TestPipeline_Run_LoadersInOrder(t *testing.T) {
	var order []string
	first := loaderFunc(func(_ context.Context, _ domain.Report) error {
		order = append(order, "first")
		return nil
	})
	second := loaderFunc(func(_ context.Context, _ domain.Report) error {
		order = append(order, "second")
		return nil
	})

	p := pipeline.New(newSquareSource(), pipeline.NewClipper(square(t), discardLogger()),
		[]pipeline.ReportLoader{first, second}, discardLogger(), newTestMetrics(), "r")

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPipeline_Run_NoFiles(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockSource{}, pipeline.NewClipper(square(t), discardLogger()),
		[]pipeline.ReportLoader{ldr}, discardLogger(), newTestMetrics(), "r")

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Totals)
	assert.Empty(t, report.Detail)
	assert.Equal(t, 0.0, report.GrandTotal)
	assert.Len(t, ldr.reports, 1)
}

func TestPipeline_Run_ExtractErrorAbortsRun(t *testing.T) {
	src := newSquareSource()
	bad := src.files[1].Name
	src.extractErr = map[string]error{
		bad: &domain.ParseError{File: bad, Line: 2, Msg: "expected 3 fields, got 2"},
	}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(src, pipeline.NewClipper(square(t), discardLogger()), []pipeline.ReportLoader{ldr}, discardLogger(), metrics, "r")

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
	assert.Equal(t, "parse", domain.ErrorKind(err))

	// Fail-fast: the third file is never read and nothing is loaded.
	assert.Equal(t, []string{src.files[0].Name, bad}, src.extracted)
	assert.Empty(t, ldr.reports)
	assert.Error(t, p.CheckReadiness(context.Background()))
	_, ok := p.LastReport()
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunErrors.WithLabelValues("parse")))
}

func TestPipeline_Run_GeometryError(t *testing.T) {
	src := newSquareSource()
	src.points[src.files[0].Name] = []domain.GridPoint{{Longitude: 1, Latitude: 1, Value: 1}, {Longitude: 1, Latitude: math.NaN(), Value: 1}}
	metrics := newTestMetrics()

	p := pipeline.New(src, pipeline.NewClipper(square(t), discardLogger()), nil, discardLogger(), metrics, "r")

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "geometry", domain.ErrorKind(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunErrors.WithLabelValues("geometry")))
}

func TestPipeline_Run_DiscoverError(t *testing.T) {
	src := &mockSource{discoverErr: &domain.DateParseError{Token: "321221"}}
	metrics := newTestMetrics()
	p := pipeline.New(src, pipeline.NewClipper(square(t), discardLogger()), nil, discardLogger(), metrics, "r")

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "date", domain.ErrorKind(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunErrors.WithLabelValues("date")))
}

func TestPipeline_Run_LoaderError(t *testing.T) {
	ldr := &mockLoader{err: errors.New("broker unavailable")}
	metrics := newTestMetrics()
	p := pipeline.New(newSquareSource(), pipeline.NewClipper(square(t), discardLogger()),
		[]pipeline.ReportLoader{ldr}, discardLogger(), metrics, "r")

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunErrors.WithLabelValues("load")))
	assert.Equal(t, "load", pipeline.ErrorKind(err))
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	src := newSquareSource()
	ldr := &mockLoader{}
	p := pipeline.New(src, pipeline.NewClipper(square(t), discardLogger()), []pipeline.ReportLoader{ldr}, discardLogger(), newTestMetrics(), "r")

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, src.extracted)
	assert.Empty(t, ldr.reports)
}

func TestPipeline_Watch_RerunsOnTick(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	src := newSquareSource()
	ldr := &mockLoader{loaded: make(chan domain.Report, 4)}
	p := pipeline.New(src, pipeline.NewClipper(square(t), discardLogger()), []pipeline.ReportLoader{ldr}, discardLogger(), newTestMetrics(), "r")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Watch(ctx, fakeClock, time.Hour)
		close(done)
	}()

	first := waitReport(t, ldr.loaded)

	// A failing run keeps the previous report current.
	src.failDiscover(errors.New("disk gone"))
	fakeClock.Advance(time.Hour)
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.discovers == 2
	}, time.Second, 10*time.Millisecond)
	last, ok := p.LastReport()
	require.True(t, ok)
	assert.Equal(t, first.RunID, last.RunID)

	src.failDiscover(nil)
	require.NoError(t, fakeClock.BlockUntilContext(ctx, 1))
	fakeClock.Advance(time.Hour)
	second := waitReport(t, ldr.loaded)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Tables, second.Tables)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func waitReport(t *testing.T, ch <-chan domain.Report) domain.Report {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for report")
		return domain.Report{}
	}
}

type loaderFunc func(ctx context.Context, report domain.Report) error

func (f loaderFunc) LoadReport(ctx context.Context, report domain.Report) error {
	return f(ctx, report)
}

func TestPipeline_Run_RelabelsRegionEachRun(t *testing.T) {
	geo := &flakyGeocoder{failures: 1}
	metrics := newTestMetrics()
	cached := mapbox.NewCachedGeocoder(geo, 10, metrics)
	p := pipeline.New(newSquareSource(), pipeline.NewClipper(square(t), discardLogger()), nil,
		discardLogger(), metrics, "CAMARGOS").WithGeocoder(square(t), cached)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CAMARGOS", first.Region, "lookup failure falls back to the contour name")

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Carrancas", second.Region, "recovered geocoder is picked up on the next run")

	third, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Carrancas", third.Region)

	assert.Equal(t, 2, geo.calls, "third run is served from the cache")
	assert.Equal(t, []float64{5, 5}, geo.lats)
	assert.Equal(t, []float64{5, 5}, geo.lons)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("reverse", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("reverse", "hit")))
}

func TestPipeline_Run_FailedRunLeavesOutputFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	const previous = "section,issue_date,horizon_date,value,cumulative\ngrand_total,,,42,\n"
	require.NoError(t, os.WriteFile(path, []byte(previous), 0o600))

	writer, err := report.NewFileWriter(path, report.FormatCSV)
	require.NoError(t, err)

	src := newSquareSource()
	src.extractErr = map[string]error{src.files[1].Name: &domain.ParseError{File: src.files[1].Name, Line: 2, Msg: "expected 3 fields, got 2"}}
	p := pipeline.New(src, pipeline.NewClipper(square(t), discardLogger()), []pipeline.ReportLoader{writer},
		discardLogger(), newTestMetrics(), "r")

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "parse", pipeline.ErrorKind(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, previous, string(data))

	// The next successful run replaces the file with a single report.
	src.extractErr = nil
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "section,issue_date"))
	assert.Contains(t, string(data), "grand_total,,,10,")
}
