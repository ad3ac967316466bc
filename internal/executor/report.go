package executor

import (
	"github.com/shopspring/decimal"

	"github.com/solbeam/solbeam/internal/batch"
)

// Report summarizes a batch after a run or confirm pass. Records keep their
// original batch order regardless of worker completion order.
type Report struct {
	Records []batch.TransferRecord

	Pending   int
	Submitted int
	Confirmed int
	Failed    int

	// TotalTransferred sums the amounts of submitted and confirmed records.
	TotalTransferred decimal.Decimal

	// TotalRemaining sums the amounts of pending and failed records.
	TotalRemaining decimal.Decimal
}

// NewReport aggregates record states into a Report.
func NewReport(records []batch.TransferRecord) *Report {
	report := &Report{
		Records:          records,
		TotalTransferred: decimal.Zero,
		TotalRemaining:   decimal.Zero,
	}
	for i := range records {
		rec := &records[i]
		switch rec.State {
		case batch.StatePending:
			report.Pending++
			report.TotalRemaining = report.TotalRemaining.Add(rec.Request.Amount)
		case batch.StateSubmitted:
			report.Submitted++
			report.TotalTransferred = report.TotalTransferred.Add(rec.Request.Amount)
		case batch.StateConfirmed:
			report.Confirmed++
			report.TotalTransferred = report.TotalTransferred.Add(rec.Request.Amount)
		case batch.StateFailed:
			report.Failed++
			report.TotalRemaining = report.TotalRemaining.Add(rec.Request.Amount)
		}
	}
	return report
}

// Success reports whether the invocation should exit zero: no record may be
// left failed.
func (r *Report) Success() bool {
	return r.Failed == 0
}
