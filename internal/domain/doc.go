// Package domain models gridded precipitation forecasts restricted to a
// region boundary and aggregated into per-run time series.
//
// # Grid Files
//
// One file per forecast run and target day. Each non-empty line holds three
// whitespace-separated numbers:
//
//	<longitude> <latitude> <value>
//	-44.2  -21.6  3.75
//
// The value is the forecast precipitation (mm) at that grid point. Lines with
// any other shape are rejected with a [ParseError]; nothing is skipped except
// whitespace-only lines.
//
// # Contour Files
//
// BLN-style boundary files. Records are comma separated and whitespace around
// commas is ignored. The first non-blank record is a header whose first field
// is the vertex count; every following record starts with longitude and
// latitude, further fields are ignored:
//
//	4, 1
//	-44.60, -21.90
//	-44.60, -21.30
//	-43.90, -21.30
//	-43.90, -21.90
//
// Blank records never count toward the header total. A mismatch is a
// [FormatError]. The ring is implicitly closed; a repeated closing vertex is
// allowed and harmless.
//
// # File Names
//
// Forecast file names carry two DDMMYY dates, the run (issue) date and the
// forecast (horizon) date:
//
//	ETA40_p011221a021221.dat  →  issued 2021-12-01, for 2021-12-02
//
// Extracting the tokens is the job of the discovery adapter; this package
// only parses them ([ParseForecastDate]).
//
// # Clipping
//
// [Polygon.Contains] is a crossing-number test on planar coordinates (no
// reprojection). Points on an edge or a vertex are inside. The edge test
// allows a relative rounding slack of 1e-12, so a point written as a decimal
// on a slanted edge still counts even when its float64 value misses the line.
//
// # Aggregation
//
// [Aggregator] sums values per issue date and per (issue, horizon) pair, then
// derives a cumulative total over horizons within each issue date. Sums are
// kept as exact decimals so the output is identical whatever order the files
// are read in.
package domain
