package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/forecast-precip-etl/internal/domain"
)

// Clipper implements Transformer by keeping the grid points inside the
// contour polygon and tagging them with the file's dates.
type Clipper struct {
	polygon domain.Polygon
	logger  *slog.Logger
}

// NewClipper creates a Clipper for polygon.
func NewClipper(polygon domain.Polygon, logger *slog.Logger) *Clipper {
	return &Clipper{
		polygon: polygon,
		logger:  logger,
	}
}

func (c *Clipper) Transform(_ context.Context, file domain.ForecastFile, points []domain.GridPoint) (domain.DatedBatch, error) {
	clipped, err := domain.Clip(c.polygon, points)
	if err != nil {
		return domain.DatedBatch{}, err
	}
	if len(points) > 0 && len(clipped) == 0 {
		c.logger.Debug("no grid points inside contour", "file", file.Name, "points", len(points))
	}

	return domain.DatedBatch{
		IssueDate:   file.IssueDate,
		HorizonDate: file.HorizonDate,
		Source:      file.Name,
		Points:      clipped,
	}, nil
}
