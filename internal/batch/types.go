// Package batch runs certificate jobs over a directory of input files. A job
// is discovered up front, executed item by item with failures isolated per
// item, observed through progress snapshots, and summarized as a Result or,
// for expiration jobs, an ExpirationReport.
package batch

import (
	"fmt"
	"time"
)

// JobType selects the operation applied to every discovered file.
type JobType string

const (
	JobConvert          JobType = "convert"
	JobExtractPublic    JobType = "extract_public"
	JobExpirationReport JobType = "expiration_report"
	JobImportTruststore JobType = "import_truststore"
)

// ParseJobType converts a job type name to a JobType.
func ParseJobType(s string) (JobType, error) {
	switch t := JobType(s); t {
	case JobConvert, JobExtractPublic, JobExpirationReport, JobImportTruststore:
		return t, nil
	default:
		return "", fmt.Errorf("unknown job type %q", s)
	}
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition can occur.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// ItemStatus is the lifecycle state of one input file.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemSuccess    ItemStatus = "success"
	ItemError      ItemStatus = "error"
)

// Terminal reports whether no further transition can occur.
func (s ItemStatus) Terminal() bool {
	return s == ItemSuccess || s == ItemError
}

func (s ItemStatus) rank() int {
	switch s {
	case ItemPending:
		return 0
	case ItemProcessing:
		return 1
	default:
		return 2
	}
}

// Job is the orchestrator-owned record of one batch run.
type Job struct {
	ID             string     `json:"id"`
	Type           JobType    `json:"type"`
	Items          []*Item    `json:"items"`
	Status         JobStatus  `json:"status"`
	TotalItems     int        `json:"totalItems"`
	CompletedItems int        `json:"completedItems"`
	FailedItems    int        `json:"failedItems"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        *time.Time `json:"endTime,omitempty"`
}

// snapshot returns a deep copy safe to hand to callers.
func (j *Job) snapshot() Job {
	cp := *j
	cp.Items = make([]*Item, len(j.Items))
	for i, it := range j.Items {
		c := *it
		cp.Items[i] = &c
	}
	return cp
}

// Item is one input file's journey through a job.
type Item struct {
	ID           string     `json:"id"`
	InputPath    string     `json:"inputPath"`
	OutputPath   string     `json:"outputPath,omitempty"`
	Status       ItemStatus `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	// Progress is reserved for operations that report sub-item progress.
	// All current operations are atomic and leave it nil.
	Progress *int `json:"progress,omitempty"`
}

// transition moves the item forward. Moving backwards or out of a terminal
// state is a programming error.
func (it *Item) transition(to ItemStatus) {
	if it.Status.Terminal() || to.rank() <= it.Status.rank() {
		panic(fmt.Sprintf("batch: invalid item transition %s -> %s for %s", it.Status, to, it.InputPath))
	}
	it.Status = to
}

// Result is the immutable summary of a finished job.
type Result struct {
	JobID        string        `json:"jobId"`
	Type         JobType       `json:"type"`
	Status       JobStatus     `json:"status"`
	Success      bool          `json:"success"`
	TotalItems   int           `json:"totalItems"`
	SuccessCount int           `json:"successCount"`
	FailedCount  int           `json:"failedCount"`
	Items        []Item        `json:"items"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// FailedItems returns the items that ended in error.
func (r *Result) FailedItems() []Item {
	var failed []Item
	for _, it := range r.Items {
		if it.Status == ItemError {
			failed = append(failed, it)
		}
	}
	return failed
}

// Progress is a point-in-time snapshot published after each item finishes.
type Progress struct {
	JobID           string  `json:"jobId"`
	CurrentItem     int     `json:"currentItem"`
	TotalItems      int     `json:"totalItems"`
	CurrentFile     string  `json:"currentFile"`
	PercentComplete float64 `json:"percentComplete"`
}

// ReportStatus classifies a certificate by remaining validity.
type ReportStatus string

const (
	ReportValid        ReportStatus = "valid"
	ReportExpiringSoon ReportStatus = "expiring_soon"
	ReportExpired      ReportStatus = "expired"
)

// ExpirationReportItem describes one certificate found by an expiration job.
type ExpirationReportItem struct {
	Path                string       `json:"path"`
	FileName            string       `json:"fileName"`
	Subject             string       `json:"subject"`
	Issuer              string       `json:"issuer"`
	ValidFrom           time.Time    `json:"validFrom"`
	ValidTo             time.Time    `json:"validTo"`
	DaysUntilExpiration int          `json:"daysUntilExpiration"`
	Status              ReportStatus `json:"status"`
	SerialNumber        string       `json:"serialNumber,omitempty"`
	// Trusted is set only when a trust store was requested.
	Trusted *bool `json:"trusted,omitempty"`
}

// ExpirationReport aggregates an expiration scan. The three counts always sum
// to TotalCertificates.
type ExpirationReport struct {
	JobID             string                 `json:"jobId"`
	GeneratedAt       time.Time              `json:"generatedAt"`
	ScannedDir        string                 `json:"scannedDir"`
	WarningDays       int                    `json:"warningDays"`
	TotalCertificates int                    `json:"totalCertificates"`
	ValidCount        int                    `json:"validCount"`
	ExpiringSoonCount int                    `json:"expiringSoonCount"`
	ExpiredCount      int                    `json:"expiredCount"`
	Items             []ExpirationReportItem `json:"items"`
}
