package journal

import (
	"time"

	"yotoup/internal/batch"
)

// BatchStatus summarizes a batch row.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchPartial   BatchStatus = "partial"
	BatchFailed    BatchStatus = "failed"
)

// Batch is one recorded batch run.
type Batch struct {
	ID          string
	Title       string
	CardID      string
	Status      BatchStatus
	Concurrency int
	Total       int
	Succeeded   int
	Failed      int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Elapsed returns the run time, or zero while the batch is still open.
func (b Batch) Elapsed() time.Duration {
	if b.FinishedAt.IsZero() {
		return 0
	}
	return b.FinishedAt.Sub(b.StartedAt)
}

// Item is one recorded file outcome.
type Item struct {
	BatchID          string
	Index            int
	SourcePath       string
	FileName         string
	Status           batch.Status
	SourceSHA256     string
	SourceSize       int64
	UploadID         string
	Deduplicated     bool
	PollAttempts     int
	TranscodedSHA256 string
	DurationSeconds  float64
	TranscodedSize   int64
	ErrorKind        string
	ErrorMessage     string
	StartedAt        time.Time
	FinishedAt       time.Time
}

func batchStatus(report batch.Report) BatchStatus {
	succeeded := report.Succeeded()
	switch {
	case report.FinishedAt.IsZero():
		return BatchRunning
	case succeeded == len(report.Items):
		return BatchCompleted
	case succeeded == 0:
		return BatchFailed
	default:
		return BatchPartial
	}
}
