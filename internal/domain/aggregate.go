package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DatedBatch is one forecast file's clipped points tagged with the run
// (issue) date and the forecast (horizon) date.
type DatedBatch struct {
	IssueDate   time.Time
	HorizonDate time.Time
	Source      string
	Points      []GridPoint
}

// IssueTotal is a row of the total-by-issue table.
type IssueTotal struct {
	IssueDate time.Time `json:"issue_date"`
	Value     float64   `json:"value"`
}

// HorizonRow is a row of the detail-by-issue-and-horizon table. Cumulative is
// the running sum of Value over horizon dates within the row's issue date.
type HorizonRow struct {
	IssueDate   time.Time `json:"issue_date"`
	HorizonDate time.Time `json:"horizon_date"`
	Value       float64   `json:"value"`
	Cumulative  float64   `json:"cumulative"`
}

// Tables holds the aggregation output. Totals are ordered by issue date;
// Detail by issue date, then horizon date.
type Tables struct {
	Totals     []IssueTotal `json:"totals"`
	Detail     []HorizonRow `json:"detail"`
	GrandTotal float64      `json:"grand_total"`
}

type horizonKey struct {
	issue   time.Time
	horizon time.Time
}

// Aggregator folds dated batches into per-issue totals and per-(issue,
// horizon) sums. Sums are exact decimals, so the result does not depend on
// the order batches arrive in.
type Aggregator struct {
	totals map[time.Time]decimal.Decimal
	detail map[horizonKey]decimal.Decimal
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		totals: make(map[time.Time]decimal.Decimal),
		detail: make(map[horizonKey]decimal.Decimal),
	}
}

// Add folds a batch into the running sums. A batch with no points still
// registers its dates with a zero value.
func (a *Aggregator) Add(batch DatedBatch) error {
	if batch.IssueDate.IsZero() || batch.HorizonDate.IsZero() {
		return ErrUndatedBatch
	}

	issue := civilDate(batch.IssueDate)
	key := horizonKey{issue: issue, horizon: civilDate(batch.HorizonDate)}

	sum := decimal.Zero
	for _, pt := range batch.Points {
		sum = sum.Add(decimal.NewFromFloat(pt.Value))
	}

	a.totals[issue] = a.totals[issue].Add(sum)
	a.detail[key] = a.detail[key].Add(sum)
	return nil
}

// Tables builds the output tables from the current sums.
func (a *Aggregator) Tables() Tables {
	issues := make([]time.Time, 0, len(a.totals))
	for issue := range a.totals {
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Before(issues[j]) })

	grand := decimal.Zero
	totals := make([]IssueTotal, 0, len(issues))
	for _, issue := range issues {
		grand = grand.Add(a.totals[issue])
		totals = append(totals, IssueTotal{IssueDate: issue, Value: a.totals[issue].InexactFloat64()})
	}

	partitions := make(map[time.Time][]time.Time, len(issues))
	for key := range a.detail {
		partitions[key.issue] = append(partitions[key.issue], key.horizon)
	}

	detail := make([]HorizonRow, 0, len(a.detail))
	for _, issue := range issues {
		horizons := partitions[issue]
		sort.Slice(horizons, func(i, j int) bool { return horizons[i].Before(horizons[j]) })

		running := decimal.Zero
		for _, horizon := range horizons {
			v := a.detail[horizonKey{issue: issue, horizon: horizon}]
			running = running.Add(v)
			detail = append(detail, HorizonRow{
				IssueDate:   issue,
				HorizonDate: horizon,
				Value:       v.InexactFloat64(),
				Cumulative:  running.InexactFloat64(),
			})
		}
	}

	return Tables{Totals: totals, Detail: detail, GrandTotal: grand.InexactFloat64()}
}
