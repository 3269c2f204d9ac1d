package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/sensiblebit/certbatch/internal/batch"
	_ "modernc.org/sqlite"
)

// HistoryRecord is one finished job as persisted in the history database.
type HistoryRecord struct {
	JobID      string         `db:"job_id" json:"jobId"`
	Label      string         `db:"label" json:"label"`
	JobType    string         `db:"job_type" json:"type"`
	Status     string         `db:"status" json:"status"`
	Total      int            `db:"total_items" json:"totalItems"`
	Succeeded  int            `db:"succeeded" json:"succeeded"`
	Failed     int            `db:"failed" json:"failed"`
	StartedAt  time.Time      `db:"started_at" json:"startedAt"`
	DurationMS int64          `db:"duration_ms" json:"durationMs"`
	Failures   types.JSONText `db:"failures" json:"failures,omitempty"`
}

// FailedItem is the persisted form of an item that ended in error.
type FailedItem struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// FailedItems decodes the stored failures.
func (r HistoryRecord) FailedItems() ([]FailedItem, error) {
	var items []FailedItem
	if len(r.Failures) == 0 {
		return nil, nil
	}
	if err := r.Failures.Unmarshal(&items); err != nil {
		return nil, fmt.Errorf("decoding failures for job %s: %w", r.JobID, err)
	}
	return items, nil
}

// History is the SQLite job history store.
type History struct {
	*sqlx.DB
}

// OpenHistory opens (creating if needed) the history database at path. Use
// ":memory:" for a throwaway store.
func OpenHistory(path string) (*History, error) {
	dsn := "file::memory:?_pragma=journal_mode(off)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// A single connection keeps :memory: stores coherent and serializes writers.
	db.SetMaxOpenConns(1)

	h := &History{DB: db}
	if err := h.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	slog.Debug("history database opened", "path", path)
	return h, nil
}

func (h *History) initSchema() error {
	_, err := h.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			job_id      TEXT PRIMARY KEY,
			label       TEXT NOT NULL,
			job_type    TEXT NOT NULL,
			status      TEXT NOT NULL,
			total_items INTEGER NOT NULL,
			succeeded   INTEGER NOT NULL,
			failed      INTEGER NOT NULL,
			started_at  timestamp NOT NULL,
			duration_ms INTEGER NOT NULL,
			failures    TEXT
		);
	`)
	if err != nil {
		return fmt.Errorf("creating jobs table: %w", err)
	}
	_, err = h.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_started_at ON jobs (started_at);`)
	if err != nil {
		return fmt.Errorf("creating started_at index on jobs table: %w", err)
	}
	return nil
}

// Record persists a finished job's result.
func (h *History) Record(label string, startedAt time.Time, res *batch.Result) error {
	failures := []FailedItem{}
	for _, it := range res.FailedItems() {
		failures = append(failures, FailedItem{Path: it.InputPath, Error: it.ErrorMessage})
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("encoding failures: %w", err)
	}

	rec := HistoryRecord{
		JobID:      res.JobID,
		Label:      label,
		JobType:    string(res.Type),
		Status:     string(res.Status),
		Total:      res.TotalItems,
		Succeeded:  res.SuccessCount,
		Failed:     res.FailedCount,
		StartedAt:  startedAt.UTC(),
		DurationMS: res.Duration.Milliseconds(),
		Failures:   types.JSONText(failuresJSON),
	}
	_, err = h.NamedExec(`
		INSERT OR REPLACE INTO jobs (job_id, label, job_type, status, total_items, succeeded, failed, started_at, duration_ms, failures)
		VALUES (:job_id, :label, :job_type, :status, :total_items, :succeeded, :failed, :started_at, :duration_ms, :failures)
	`, rec)
	if err != nil {
		return fmt.Errorf("recording job %s: %w", res.JobID, err)
	}
	return nil
}

// Recent returns up to limit jobs, newest first. A limit of zero or less
// returns every job.
func (h *History) Recent(limit int) ([]HistoryRecord, error) {
	var records []HistoryRecord
	query := "SELECT * FROM jobs ORDER BY started_at DESC, job_id"
	var err error
	if limit > 0 {
		err = h.Select(&records, query+" LIMIT ?", limit)
	} else {
		err = h.Select(&records, query)
	}
	if err != nil {
		return nil, fmt.Errorf("listing job history: %w", err)
	}
	return records, nil
}
