package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"yotoup/internal/batch"
	"yotoup/internal/services"
)

var _ batch.Recorder = (*Store)(nil)

const batchColumns = "id, title, card_id, status, concurrency, total, succeeded, failed, started_at, finished_at"

const itemColumns = "batch_id, item_index, source_path, file_name, status, source_sha256, source_size, upload_id, deduplicated, poll_attempts, transcoded_sha256, duration_seconds, transcoded_size, error_kind, error_message, started_at, finished_at"

// BeginBatch inserts the batch row and one pending row per file.
func (s *Store) BeginBatch(ctx context.Context, report batch.Report) error {
	ctx = ensureContext(ctx)
	started := report.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batches (id, status, concurrency, total, started_at) VALUES (?, ?, ?, ?, ?)`,
			report.BatchID, BatchRunning, report.Limit, len(report.Items), formatTime(started),
		); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		for _, item := range report.Items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO batch_items (batch_id, item_index, source_path, file_name, status) VALUES (?, ?, ?, ?, ?)`,
				report.BatchID, item.Index, item.Source.Path, item.Source.Name(), item.Status,
			); err != nil {
				return fmt.Errorf("insert batch item %d: %w", item.Index, err)
			}
		}
		return tx.Commit()
	})
}

// RecordItem stores the latest outcome for one file.
func (s *Store) RecordItem(ctx context.Context, batchID string, item batch.Item) error {
	var errKind, errMsg any
	if item.Err != nil {
		errKind = services.Kind(item.Err)
		errMsg = item.Err.Error()
	}
	res := item.Result
	_, err := s.exec(ctx, `INSERT INTO batch_items (`+itemColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(batch_id, item_index) DO UPDATE SET
            status = excluded.status,
            source_sha256 = excluded.source_sha256,
            source_size = excluded.source_size,
            upload_id = excluded.upload_id,
            deduplicated = excluded.deduplicated,
            poll_attempts = excluded.poll_attempts,
            transcoded_sha256 = excluded.transcoded_sha256,
            duration_seconds = excluded.duration_seconds,
            transcoded_size = excluded.transcoded_size,
            error_kind = excluded.error_kind,
            error_message = excluded.error_message,
            started_at = excluded.started_at,
            finished_at = excluded.finished_at`,
		batchID,
		item.Index,
		item.Source.Path,
		item.Source.Name(),
		item.Status,
		nullString(res.SourceSHA256),
		res.SourceSize,
		nullString(res.UploadID),
		boolToInt(res.Skipped),
		res.PollAttempts,
		nullString(res.Transcode.TranscodedSHA256),
		res.Transcode.Info.Duration,
		res.Transcode.Info.FileSize,
		errKind,
		errMsg,
		formatTime(item.StartedAt),
		formatTime(item.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record batch item %d: %w", item.Index, err)
	}
	return nil
}

// FinishBatch stores the final counts. It runs again after a retry pass.
func (s *Store) FinishBatch(ctx context.Context, report batch.Report) error {
	finished := report.FinishedAt
	if finished.IsZero() {
		finished = s.now()
		report.FinishedAt = finished
	}
	_, err := s.exec(ctx,
		`UPDATE batches SET status = ?, succeeded = ?, failed = ?, finished_at = ? WHERE id = ?`,
		batchStatus(report), report.Succeeded(), len(report.Failed()), formatTime(finished), report.BatchID,
	)
	if err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	return nil
}

// Annotate attaches the card title and id a batch produced.
func (s *Store) Annotate(ctx context.Context, batchID, title, cardID string) error {
	res, err := s.exec(ctx,
		`UPDATE batches SET title = COALESCE(?, title), card_id = COALESCE(?, card_id) WHERE id = ?`,
		nullString(title), nullString(cardID), batchID,
	)
	if err != nil {
		return fmt.Errorf("annotate batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "journal", "annotate", batchID, nil)
	}
	return nil
}

// ListBatches returns the most recent batches first. limit <= 0 means all.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBatch returns one batch. A missing id yields services.ErrNotFound.
func (s *Store) GetBatch(ctx context.Context, batchID string) (Batch, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+batchColumns+` FROM batches WHERE id = ?`, batchID)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, services.Wrap(services.ErrNotFound, "journal", "get batch", batchID, nil)
	}
	return b, err
}

// Items returns the file rows of a batch in input order.
func (s *Store) Items(ctx context.Context, batchID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM batch_items WHERE batch_id = ? ORDER BY item_index`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Prune removes batches started before cutoff along with their items.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM batches WHERE started_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune batches: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface{ Scan(dest ...any) error }

func scanBatch(row scanner) (Batch, error) {
	var (
		b           Batch
		title       sql.NullString
		cardID      sql.NullString
		status      string
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := row.Scan(&b.ID, &title, &cardID, &status, &b.Concurrency, &b.Total,
		&b.Succeeded, &b.Failed, &startedRaw, &finishedRaw); err != nil {
		return Batch{}, err
	}
	b.Title = title.String
	b.CardID = cardID.String
	b.Status = BatchStatus(status)
	b.StartedAt = parseTime(startedRaw)
	b.FinishedAt = parseTime(finishedRaw)
	return b, nil
}

func scanItem(row scanner) (Item, error) {
	var (
		item        Item
		fileName    sql.NullString
		status      string
		sourceSHA   sql.NullString
		sourceSize  sql.NullInt64
		uploadID    sql.NullString
		dedup       int
		transcoded  sql.NullString
		duration    sql.NullFloat64
		size        sql.NullInt64
		errKind     sql.NullString
		errMessage  sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := row.Scan(&item.BatchID, &item.Index, &item.SourcePath, &fileName, &status,
		&sourceSHA, &sourceSize, &uploadID, &dedup, &item.PollAttempts, &transcoded,
		&duration, &size, &errKind, &errMessage, &startedRaw, &finishedRaw); err != nil {
		return Item{}, err
	}
	item.FileName = fileName.String
	item.Status = batch.Status(status)
	item.SourceSHA256 = sourceSHA.String
	item.SourceSize = sourceSize.Int64
	item.UploadID = uploadID.String
	item.Deduplicated = dedup != 0
	item.TranscodedSHA256 = transcoded.String
	item.DurationSeconds = duration.Float64
	item.TranscodedSize = size.Int64
	item.ErrorKind = errKind.String
	item.ErrorMessage = errMessage.String
	item.StartedAt = parseTime(startedRaw)
	item.FinishedAt = parseTime(finishedRaw)
	return item, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
