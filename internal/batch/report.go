package batch

import (
	"math"
	"path/filepath"
	"time"
)

// DaysUntil returns the whole days from now until t, rounded down. The value
// is negative once t has passed.
func DaysUntil(t, now time.Time) int {
	return int(math.Floor(t.Sub(now).Hours() / 24))
}

// Classify maps remaining days to a report status. Zero through warningDays
// inclusive is expiring soon.
func Classify(daysUntilExpiration, warningDays int) ReportStatus {
	switch {
	case daysUntilExpiration < 0:
		return ReportExpired
	case daysUntilExpiration <= warningDays:
		return ReportExpiringSoon
	default:
		return ReportValid
	}
}

// buildResult reduces a terminal job into its Result.
func buildResult(job *Job) *Result {
	r := &Result{
		JobID:        job.ID,
		Type:         job.Type,
		Status:       job.Status,
		Success:      job.FailedItems == 0,
		TotalItems:   job.TotalItems,
		SuccessCount: job.CompletedItems,
		FailedCount:  job.FailedItems,
		Items:        make([]Item, len(job.Items)),
	}
	for i, it := range job.Items {
		r.Items[i] = *it
	}
	if job.StartTime != nil && job.EndTime != nil {
		r.Duration = job.EndTime.Sub(*job.StartTime)
	}
	return r
}

// expirationAggregator collects parsed certificates by item index so the
// report follows discovery order, then order within the file, regardless of
// completion order.
type expirationAggregator struct {
	scannedDir  string
	warningDays int
	entries     [][]ExpirationReportItem
}

func newExpirationAggregator(opts ExpirationReportOptions, total int) *expirationAggregator {
	return &expirationAggregator{
		scannedDir:  opts.InputDir,
		warningDays: opts.warningDays(),
		entries:     make([][]ExpirationReportItem, total),
	}
}

// add records every certificate read from one item, classified against now.
func (a *expirationAggregator) add(index int, path string, certs []checkedCert, now time.Time) {
	items := make([]ExpirationReportItem, 0, len(certs))
	for _, c := range certs {
		days := DaysUntil(c.Info.NotAfter, now)
		items = append(items, ExpirationReportItem{
			Path:                path,
			FileName:            filepath.Base(path),
			Subject:             c.Info.Subject,
			Issuer:              c.Info.Issuer,
			ValidFrom:           c.Info.NotBefore,
			ValidTo:             c.Info.NotAfter,
			DaysUntilExpiration: days,
			Status:              Classify(days, a.warningDays),
			SerialNumber:        c.Info.SerialNumber,
			Trusted:             c.Trusted,
		})
	}
	a.entries[index] = items
}

func (a *expirationAggregator) report(jobID string, generatedAt time.Time) *ExpirationReport {
	rep := &ExpirationReport{
		JobID:       jobID,
		GeneratedAt: generatedAt,
		ScannedDir:  a.scannedDir,
		WarningDays: a.warningDays,
		Items:       []ExpirationReportItem{},
	}
	for _, items := range a.entries {
		for _, e := range items {
			rep.Items = append(rep.Items, e)
			switch e.Status {
			case ReportValid:
				rep.ValidCount++
			case ReportExpiringSoon:
				rep.ExpiringSoonCount++
			case ReportExpired:
				rep.ExpiredCount++
			}
		}
	}
	rep.TotalCertificates = len(rep.Items)
	return rep
}
