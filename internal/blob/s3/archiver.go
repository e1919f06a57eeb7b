package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/audit"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const ndjsonContentType = "application/x-ndjson"

// DayFileSource lists and reads audit day files.
type DayFileSource interface {
	DayFiles() ([]audit.DayFile, error)
	OpenDayFile(name string, fn func(r io.Reader, size int64) error) error
}

// ArchiverConfig configures an Archiver.
type ArchiverConfig struct {
	// Prefix is the object key prefix, e.g. "archive/executions".
	Prefix string
	// AfterDays is how many whole UTC days a file must be closed for before
	// it is uploaded.
	AfterDays int
	// Interval between runs of Run.
	Interval time.Duration
}

// Archiver copies audit day files older than AfterDays to object storage.
// Objects that already exist are skipped and local files are never removed.
type Archiver struct {
	cfg    ArchiverConfig
	source DayFileSource
	writer domain.BlobWriter
	reader domain.BlobReader
	now    func() time.Time
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(cfg ArchiverConfig, source DayFileSource, writer domain.BlobWriter, reader domain.BlobReader, logger *slog.Logger) *Archiver {
	if cfg.AfterDays < 1 {
		cfg.AfterDays = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Archiver{
		cfg:    cfg,
		source: source,
		writer: writer,
		reader: reader,
		now:    time.Now,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Run archives once immediately and then every Interval until ctx ends.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	for {
		if n, err := a.ArchiveOnce(ctx); err != nil {
			a.logger.WarnContext(ctx, "archive run failed", slog.String("error", err.Error()))
		} else if n > 0 {
			a.logger.InfoContext(ctx, "archived audit day files", slog.Int("count", n))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ArchiveOnce uploads every eligible day file that is not yet archived and
// returns how many were uploaded.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	files, err := a.source.DayFiles()
	if err != nil {
		return 0, fmt.Errorf("s3blob: list day files: %w", err)
	}
	cutoff := a.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -a.cfg.AfterDays)

	uploaded := 0
	for _, f := range files {
		if !f.Day.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}
		key := a.objectKey(f)
		exists, err := a.reader.Exists(ctx, key)
		if err != nil {
			return uploaded, err
		}
		if exists {
			continue
		}
		if err := a.upload(ctx, f, key); err != nil {
			return uploaded, err
		}
		uploaded++
		a.logger.InfoContext(ctx, "day file archived",
			slog.String("file", f.Name),
			slog.String("key", key),
			slog.Int64("size", f.Size),
		)
	}
	return uploaded, nil
}

// objectKey partitions archives by month: {prefix}/2025-01/executions-2025-01-31.jsonl.
func (a *Archiver) objectKey(f audit.DayFile) string {
	return path.Join(strings.Trim(a.cfg.Prefix, "/"), f.Day.Format("2006-01"), f.Name)
}

func (a *Archiver) upload(ctx context.Context, f audit.DayFile, key string) error {
	var buf bytes.Buffer
	err := a.source.OpenDayFile(f.Name, func(r io.Reader, _ int64) error {
		_, err := io.Copy(&buf, r)
		return err
	})
	if err != nil {
		return fmt.Errorf("s3blob: read %s: %w", f.Name, err)
	}
	if int64(buf.Len()) > MinPartSize {
		return a.writer.PutMultipart(ctx, key, &buf, MinPartSize)
	}
	return a.writer.Put(ctx, key, &buf, ndjsonContentType)
}
