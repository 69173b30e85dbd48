package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/forecast-precip-etl/internal/domain"
	"github.com/couchcryptid/forecast-precip-etl/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Source discovers forecast files and reads their grid points.
type Source interface {
	Discover(ctx context.Context) ([]domain.ForecastFile, error)
	Extract(ctx context.Context, file domain.ForecastFile) ([]domain.GridPoint, error)
}

// Transformer turns one file's grid points into a dated batch.
type Transformer interface {
	Transform(ctx context.Context, file domain.ForecastFile, points []domain.GridPoint) (domain.DatedBatch, error)
}

// ReportLoader writes a finished report to a destination.
type ReportLoader interface {
	LoadReport(ctx context.Context, report domain.Report) error
}

// Pipeline orchestrates the discover-extract-transform-aggregate-load run.
type Pipeline struct {
	source      Source
	transformer Transformer
	loaders     []ReportLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	region      string
	polygon     domain.Polygon
	geocoder    domain.Geocoder
	last        atomic.Pointer[domain.Report]
}

// New creates a Pipeline with the given stages and observability. Reports are
// labelled with region and handed to each loader in order.
func New(src Source, t Transformer, loaders []ReportLoader, logger *slog.Logger, metrics *observability.Metrics, region string) *Pipeline {
	return &Pipeline{
		source:      src,
		transformer: t,
		loaders:     loaders,
		logger:      logger,
		metrics:     metrics,
		region:      region,
	}
}

// WithGeocoder makes every run label its report by reverse-geocoding the
// polygon through geocoder. The region passed to New becomes the fallback
// label used when the lookup fails or comes back empty.
func (p *Pipeline) WithGeocoder(polygon domain.Polygon, geocoder domain.Geocoder) *Pipeline {
	p.polygon = polygon
	p.geocoder = geocoder
	return p
}

// CheckReadiness returns nil once a run has completed, or an error describing
// why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.last.Load() == nil {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LastReport returns the report of the last successful run.
func (p *Pipeline) LastReport() (domain.Report, bool) {
	r := p.last.Load()
	if r == nil {
		return domain.Report{}, false
	}
	return *r, true
}

// Run processes every discovered file once and loads the resulting report.
// The first error aborts the run; nothing is loaded in that case.
func (p *Pipeline) Run(ctx context.Context) (domain.Report, error) {
	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	report, err := p.run(ctx)
	if err != nil {
		p.metrics.RunErrors.WithLabelValues(ErrorKind(err)).Inc()
		return domain.Report{}, err
	}

	p.last.Store(&report)
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	p.metrics.LastGrandTotal.Set(report.GrandTotal)
	p.logger.Info("pipeline run complete",
		"run_id", report.RunID,
		"region", report.Region,
		"files", report.Files,
		"points_read", report.PointsRead,
		"points_retained", report.PointsRetained,
		"issues", len(report.Totals),
		"grand_total", report.GrandTotal,
		"duration", time.Since(start),
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context) (domain.Report, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)

	files, err := p.source.Discover(ctx)
	if err != nil {
		return domain.Report{}, fmt.Errorf("discover forecast files: %w", err)
	}
	logger.Info("pipeline run started", "files", len(files))

	agg := domain.NewAggregator()
	var stats domain.RunStats
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return domain.Report{}, err
		}

		points, err := p.source.Extract(ctx, file)
		if err != nil {
			return domain.Report{}, fmt.Errorf("forecast file %s: %w", file.Name, err)
		}
		batch, err := p.transformer.Transform(ctx, file, points)
		if err != nil {
			return domain.Report{}, fmt.Errorf("forecast file %s: %w", file.Name, err)
		}
		if err := agg.Add(batch); err != nil {
			return domain.Report{}, fmt.Errorf("forecast file %s: %w", file.Name, err)
		}

		stats.Files++
		stats.PointsRead += len(points)
		stats.PointsRetained += len(batch.Points)
		p.metrics.FilesProcessed.Inc()
		p.metrics.PointsRead.Add(float64(len(points)))
		p.metrics.PointsRetained.Add(float64(len(batch.Points)))
		p.metrics.PointsPerFile.Observe(float64(len(points)))

		logger.Debug("forecast file folded",
			"file", file.Name,
			"points", len(points),
			"retained", len(batch.Points),
		)
	}

	region := p.region
	if p.geocoder != nil {
		region = domain.LabelRegion(ctx, p.polygon, p.region, p.geocoder, logger)
	}

	report := domain.NewReport(runID, region, stats, agg.Tables())
	for _, loader := range p.loaders {
		if err := loader.LoadReport(ctx, report); err != nil {
			return domain.Report{}, &loadError{err: err}
		}
	}
	return report, nil
}

// Watch runs the pipeline immediately and then on every tick of interval
// until ctx is cancelled. A failed run is logged; the previous report stays
// current.
func (p *Pipeline) Watch(ctx context.Context, clock clockwork.Clock, interval time.Duration) {
	p.logger.Info("pipeline watching", "interval", interval)

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Run(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return
			}
			p.logger.Error("pipeline run failed", "error", err, "kind", ErrorKind(err))
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return
		case <-ticker.Chan():
		}
	}
}

// loadError marks a failure raised by a report loader.
type loadError struct {
	err error
}

func (e *loadError) Error() string { return "load report: " + e.err.Error() }

func (e *loadError) Unwrap() error { return e.err }

// ErrorKind extends domain.ErrorKind with "load" for report sink failures.
func ErrorKind(err error) string {
	var le *loadError
	if errors.As(err, &le) {
		return "load"
	}
	return domain.ErrorKind(err)
}
