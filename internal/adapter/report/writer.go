// Package report renders finished pipeline reports as aligned text tables,
// CSV or JSON.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"text/tabwriter"

	"github.com/couchcryptid/forecast-precip-etl/internal/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Supported formats.
const (
	FormatPretty = "pretty"
	FormatCSV    = "csv"
	FormatJSON   = "json"
)

const dateLayout = "2006-01-02"

// Writer implements pipeline.ReportLoader by rendering each report to an
// io.Writer or, when built with NewFileWriter, by replacing a file.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	path   string
	format string
}

// NewWriter creates a Writer for one of the supported formats.
func NewWriter(w io.Writer, format string) (*Writer, error) {
	if err := checkFormat(format); err != nil {
		return nil, err
	}
	return &Writer{w: w, format: format}, nil
}

// NewFileWriter creates a Writer that replaces path with each report. The
// report is rendered to a temporary file in the same directory and renamed
// over path, so the file is only touched once a run has succeeded and always
// holds exactly one complete report.
func NewFileWriter(path, format string) (*Writer, error) {
	if err := checkFormat(format); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.New("report file path is empty")
	}
	return &Writer{path: path, format: format}, nil
}

func checkFormat(format string) error {
	switch format {
	case FormatPretty, FormatCSV, FormatJSON:
		return nil
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// LoadReport renders report in the configured format.
func (w *Writer) LoadReport(_ context.Context, report domain.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.path != "" {
		err = w.replaceFile(report)
	} else {
		err = w.render(w.w, report)
	}
	if err != nil {
		return fmt.Errorf("write %s report: %w", w.format, err)
	}
	return nil
}

func (w *Writer) render(out io.Writer, report domain.Report) error {
	switch w.format {
	case FormatCSV:
		return writeCSV(out, report)
	case FormatJSON:
		return writeJSON(out, report)
	default:
		return writePretty(out, report)
	}
}

func (w *Writer) replaceFile(report domain.Report) error {
	tmp, err := os.CreateTemp(filepath.Dir(w.path), "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return err
	}
	// Removing fails harmlessly once the rename has happened.
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := w.render(tmp, report); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), w.path)
}

func writePretty(w io.Writer, r domain.Report) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', tabwriter.AlignRight)

	_, _ = p.Fprintf(w, "Region: %s\nRun: %s (%s)\n", r.Region, r.RunID, r.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"))
	_, _ = p.Fprintf(w, "Files: %d   Points read: %d   Points retained: %d\n\n", r.Files, r.PointsRead, r.PointsRetained)

	fmt.Fprintln(w, "Total precipitation by issue date")
	fmt.Fprintln(tw, "Issue date\tTotal\t")
	for _, row := range r.Totals {
		_, _ = p.Fprintf(tw, "%s\t%.2f\t\n", row.IssueDate.Format(dateLayout), row.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Precipitation by issue and horizon date")
	fmt.Fprintln(tw, "Issue date\tHorizon date\tValue\tCumulative\t")
	for _, row := range r.Detail {
		_, _ = p.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t\n",
			row.IssueDate.Format(dateLayout), row.HorizonDate.Format(dateLayout), row.Value, row.Cumulative)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := p.Fprintf(w, "\nGrand total: %.2f\n", r.GrandTotal)
	return err
}

// writeCSV emits one table with a leading section column so that totals,
// detail rows and the grand total share a single header.
func writeCSV(w io.Writer, r domain.Report) error {
	cw := csv.NewWriter(w)
	records := [][]string{{"section", "issue_date", "horizon_date", "value", "cumulative"}}
	for _, row := range r.Totals {
		records = append(records, []string{"total", row.IssueDate.Format(dateLayout), "", formatFloat(row.Value), ""})
	}
	for _, row := range r.Detail {
		records = append(records, []string{
			"detail",
			row.IssueDate.Format(dateLayout),
			row.HorizonDate.Format(dateLayout),
			formatFloat(row.Value),
			formatFloat(row.Cumulative),
		})
	}
	records = append(records, []string{"grand_total", "", "", formatFloat(r.GrandTotal), ""})
	return cw.WriteAll(records)
}

func writeJSON(w io.Writer, r domain.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
