package domain

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// contourRecord is a non-blank contour line split into trimmed fields.
type contourRecord struct {
	line   int
	fields []string
}

// ReadContourFile opens path and parses it with ParseContour.
func ReadContourFile(path string) (Polygon, error) {
	f, err := os.Open(path)
	if err != nil {
		return Polygon{}, fmt.Errorf("open contour file: %w", err)
	}
	defer f.Close()

	return ParseContour(f, filepath.Base(path))
}

// ParseContour reads a comma-delimited boundary file. The first non-blank
// record is the header; its first field is the vertex count. Each following
// record contributes its first two fields as (longitude, latitude); extra
// fields are ignored. Records with an empty first field are blank and never
// counted.
func ParseContour(r io.Reader, name string) (Polygon, error) {
	records, err := readContourRecords(r, name)
	if err != nil {
		return Polygon{}, err
	}
	if len(records) == 0 {
		return Polygon{}, &FormatError{File: name, Msg: "missing header record"}
	}

	declared, err := parseVertexCount(records[0].fields[0])
	if err != nil {
		return Polygon{}, &ParseError{File: name, Line: records[0].line, Msg: "invalid vertex count", Err: err}
	}

	body := records[1:]
	vertices := make([]Vertex, 0, len(body))
	for _, rec := range body {
		if len(rec.fields) < 2 {
			return Polygon{}, &ParseError{File: name, Line: rec.line,
				Msg: fmt.Sprintf("expected at least 2 fields, got %d", len(rec.fields))}
		}
		lon, err := strconv.ParseFloat(rec.fields[0], 64)
		if err != nil {
			return Polygon{}, &ParseError{File: name, Line: rec.line, Msg: "invalid longitude", Err: err}
		}
		lat, err := strconv.ParseFloat(rec.fields[1], 64)
		if err != nil {
			return Polygon{}, &ParseError{File: name, Line: rec.line, Msg: "invalid latitude", Err: err}
		}
		vertices = append(vertices, Vertex{Longitude: lon, Latitude: lat})
	}

	if len(vertices) != declared {
		return Polygon{}, &FormatError{File: name, Declared: declared, Actual: len(vertices)}
	}

	polygon, err := NewPolygon(vertices)
	if err != nil {
		return Polygon{}, fmt.Errorf("contour %s: %w", name, err)
	}
	return polygon, nil
}

func readContourRecords(r io.Reader, name string) ([]contourRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []contourRecord
	lineNum := 0
	for sc.Scan() {
		lineNum++
		parts := strings.Split(strings.TrimSpace(sc.Text()), ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] == "" {
			continue
		}
		records = append(records, contourRecord{line: lineNum, fields: parts})
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{File: name, Line: lineNum + 1, Msg: "read failed", Err: err}
	}
	return records, nil
}

// parseVertexCount accepts "4" as well as integral floats such as "4.0",
// which some BLN writers emit.
func parseVertexCount(field string) (int, error) {
	if n, err := strconv.Atoi(field); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative count %d", n)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, fmt.Errorf("count %q is not a non-negative integer", field)
	}
	return int(f), nil
}
