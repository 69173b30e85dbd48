package domain

import (
	"context"
	"log/slog"
)

// GeocodingResult contains place data returned by a geocoding provider.
type GeocodingResult struct {
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves coordinates to place details.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// LabelRegion names the contour region for reports. When a geocoder is
// configured it reverse-geocodes the vertex centroid; otherwise, or when the
// lookup fails or comes back empty, fallback is returned.
func LabelRegion(ctx context.Context, polygon Polygon, fallback string, geocoder Geocoder, logger *slog.Logger) string {
	if geocoder == nil || polygon.Len() == 0 {
		return fallback
	}

	c := polygon.Centroid()
	result, err := geocoder.ReverseGeocode(ctx, c.Latitude, c.Longitude)
	if err != nil {
		logger.Warn("region reverse geocoding failed",
			"lat", c.Latitude,
			"lon", c.Longitude,
			"fallback", fallback,
			"error", err,
		)
		return fallback
	}

	switch {
	case result.PlaceName != "":
		return result.PlaceName
	case result.FormattedAddress != "":
		return result.FormattedAddress
	default:
		return fallback
	}
}
