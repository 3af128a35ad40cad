package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// Archiver copies each completed UTC day of execution history out of the
// primary store into object storage as one gzip-compressed JSONL file per
// day. Deletion of archived rows from Postgres is intentionally not done
// here; that is a separate, explicit step after the archive is verified.
type Archiver struct {
	writer     domain.BlobWriter
	reader     domain.BlobReader
	executions domain.ExecutionStore
	logger     *slog.Logger
}

// NewArchiver creates an Archiver. The reader is used to skip days that
// already have an archive object.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, executions domain.ExecutionStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:     writer,
		reader:     reader,
		executions: executions,
		logger:     logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveDay uploads all executions started during the UTC day containing
// the given time. Returns the number of records archived; zero with a nil
// error when the day is empty or already archived.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (int64, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	path := executionArchivePath(start)

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive check %s: %w", path, err)
	}
	if exists {
		return 0, nil
	}

	results, err := a.executions.ListBetween(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query %s: %w", start.Format("2006-01-02"), err)
	}
	if len(results) == 0 {
		return 0, nil
	}

	buf, err := gzipJSONL(results)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal %s: %w", start.Format("2006-01-02"), err)
	}

	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/gzip"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload %s: %w", path, err)
	}

	count := int64(len(results))
	a.logger.Info("archived executions",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int("bytes", len(buf)),
	)
	return count, nil
}

// Run archives the previous UTC day once at startup and then once per day.
// It blocks until the context is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		yesterday := time.Now().UTC().Add(-24 * time.Hour)
		if _, err := a.ArchiveDay(ctx, yesterday); err != nil {
			a.logger.Error("daily archive failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// executionArchivePath builds the object key for one day's archive, e.g.
// archive/executions/2026-08-23.jsonl.gz.
func executionArchivePath(day time.Time) string {
	return fmt.Sprintf("archive/executions/%s.jsonl.gz", day.Format("2006-01-02"))
}

// gzipJSONL serialises records as newline-delimited JSON and compresses the
// result. Amounts inside ExecutionResult marshal through their JSON forms,
// so the archive round-trips without precision loss.
func gzipJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	enc := json.NewEncoder(gz)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("jsonl gzip close: %w", err)
	}
	return buf.Bytes(), nil
}
