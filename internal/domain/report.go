package domain

import (
	"time"
)

// RunStats counts what a pipeline run read and kept.
type RunStats struct {
	Files          int `json:"files"`
	PointsRead     int `json:"points_read"`
	PointsRetained int `json:"points_retained"`
}

// Report is the finished output of one pipeline run, handed to sinks.
type Report struct {
	RunID       string    `json:"run_id"`
	Region      string    `json:"region"`
	GeneratedAt time.Time `json:"generated_at"`
	RunStats
	Tables
}

// NewReport stamps tables and stats with the run id, region label and the
// current time from the package clock.
func NewReport(runID, region string, stats RunStats, tables Tables) Report {
	return Report{
		RunID:       runID,
		Region:      region,
		GeneratedAt: clock.Now().UTC(),
		RunStats:    stats,
		Tables:      tables,
	}
}

// IssueSeries is one issue date's total and its horizon rows.
type IssueSeries struct {
	IssueDate time.Time    `json:"issue_date"`
	Total     float64      `json:"total"`
	Horizons  []HorizonRow `json:"horizons"`
}

// Series groups the detail table by issue date, in issue order.
func (t Tables) Series() []IssueSeries {
	series := make([]IssueSeries, 0, len(t.Totals))
	index := make(map[time.Time]int, len(t.Totals))
	for _, total := range t.Totals {
		index[total.IssueDate] = len(series)
		series = append(series, IssueSeries{IssueDate: total.IssueDate, Total: total.Value})
	}
	for _, row := range t.Detail {
		i, ok := index[row.IssueDate]
		if !ok {
			continue
		}
		series[i].Horizons = append(series[i].Horizons, row)
	}
	return series
}
