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

// maxLineBytes bounds a single grid or contour line.
const maxLineBytes = 1 << 20

// GridPoint is one forecast grid location and its precipitation value.
type GridPoint struct {
	Longitude float64 `json:"long"`
	Latitude  float64 `json:"lat"`
	Value     float64 `json:"data_value"`
}

// ReadGridFile opens path and parses it with ParseGrid.
func ReadGridFile(path string) ([]GridPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grid file: %w", err)
	}
	defer f.Close()

	return ParseGrid(f, filepath.Base(path))
}

// ParseGrid reads whitespace-delimited "longitude latitude value" records.
// Whitespace-only lines are skipped; any other line must hold exactly three
// numeric tokens. Points are returned in input order.
func ParseGrid(r io.Reader, name string) ([]GridPoint, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var points []GridPoint
	lineNum := 0
	for sc.Scan() {
		lineNum++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, &ParseError{File: name, Line: lineNum,
				Msg: fmt.Sprintf("expected 3 fields, got %d", len(fields))}
		}

		var vals [3]float64
		for i, tok := range fields {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, &ParseError{File: name, Line: lineNum,
					Msg: fmt.Sprintf("field %d %q is not a number", i+1, tok), Err: err}
			}
			vals[i] = v
		}
		if math.IsNaN(vals[2]) || math.IsInf(vals[2], 0) {
			return nil, &ParseError{File: name, Line: lineNum,
				Msg: fmt.Sprintf("value %q is not finite", fields[2])}
		}

		points = append(points, GridPoint{Longitude: vals[0], Latitude: vals[1], Value: vals[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{File: name, Line: lineNum + 1, Msg: "read failed", Err: err}
	}
	return points, nil
}
