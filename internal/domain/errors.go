package domain

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrUndatedBatch is returned when a batch reaches the aggregator without an
// issue or horizon date.
var ErrUndatedBatch = errors.New("batch has no issue or horizon date")

// ParseError reports a grid or contour line that does not match its expected
// field structure or numeric format.
type ParseError struct {
	File string
	Line int // 1-based; 0 when the error is not tied to a line
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("parse error: %s: %s", loc, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FormatError reports a contour file whose header vertex count disagrees with
// the number of vertex records that follow it.
type FormatError struct {
	File     string
	Declared int
	Actual   int
	Msg      string
}

func (e *FormatError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("malformed contour file %s: %s", e.File, e.Msg)
	}
	return fmt.Sprintf("malformed contour file %s: header declares %d vertices, found %d",
		e.File, e.Declared, e.Actual)
}

// GeometryError reports a degenerate polygon or a point that cannot be
// located (non-finite coordinates).
type GeometryError struct {
	Msg string
}

func (e *GeometryError) Error() string { return "geometry error: " + e.Msg }

// DateParseError reports a filename date token that is not a valid DDMMYY date.
type DateParseError struct {
	Token string
	Err   error
}

func (e *DateParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid forecast date %q: %v", e.Token, e.Err)
	}
	return fmt.Sprintf("invalid forecast date %q", e.Token)
}

func (e *DateParseError) Unwrap() error { return e.Err }

// ErrorKind classifies an error chain for metrics labels:
// parse, format, geometry, date, io or other.
func ErrorKind(err error) string {
	var (
		parseErr    *ParseError
		formatErr   *FormatError
		geometryErr *GeometryError
		dateErr     *DateParseError
		pathErr     *fs.PathError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &formatErr):
		return "format"
	case errors.As(err, &geometryErr):
		return "geometry"
	case errors.As(err, &dateErr):
		return "date"
	case errors.As(err, &pathErr):
		return "io"
	default:
		return "other"
	}
}
