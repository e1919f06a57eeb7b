// Package audit is the durable, append-only record of every execution
// attempt. Records are newline-delimited JSON, one file per UTC day, plus a
// combined per-strategy summary file.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const (
	dayFilePrefix = "executions-"
	dayFileSuffix = ".jsonl"
	dayLayout     = "2006-01-02"
	summaryFile   = "summary.json"

	maxLineBytes = 4 << 20
)

// Filter narrows List results. Zero fields match everything; Limit <= 0
// returns every record.
type Filter struct {
	Mode       domain.ExecutionMode
	StrategyID string
	Limit      int
}

func (f Filter) match(r domain.ExecutionRecord) bool {
	if f.Mode != "" && r.Mode != f.Mode {
		return false
	}
	if f.StrategyID != "" && r.StrategyID != f.StrategyID {
		return false
	}
	return true
}

// DayFile describes one on-disk day file.
type DayFile struct {
	Name string
	Path string
	Day  time.Time
	Size int64
}

// Log is the execution audit log. All writers are serialised by one mutex.
type Log struct {
	dir    string
	mirror domain.ExecutionStore
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	summary Summary
}

// Option configures a Log.
type Option func(*Log)

// WithMirror copies every append and price patch into store. Mirror failures
// are logged and never fail the audit write.
func WithMirror(store domain.ExecutionStore) Option {
	return func(l *Log) { l.mirror = store }
}

// WithClock overrides the clock used to stamp records without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New opens (creating if needed) the audit directory and loads or rebuilds
// the summary.
func New(dir string, logger *slog.Logger, opts ...Option) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create dir %s: %w", dir, err)
	}
	l := &Log{
		dir:    dir,
		now:    time.Now,
		logger: logger.With(slog.String("component", "audit_log")),
	}
	for _, opt := range opts {
		opt(l)
	}

	sum, err := l.loadSummary()
	if err != nil {
		l.logger.Warn("audit summary unreadable, rebuilding", slog.String("error", err.Error()))
		if sum, err = l.rebuildSummary(); err != nil {
			return nil, fmt.Errorf("audit: rebuild summary: %w", err)
		}
		if err := l.writeSummary(sum); err != nil {
			return nil, err
		}
	}
	l.summary = sum
	return l, nil
}

// Dir returns the audit directory.
func (l *Log) Dir() string { return l.dir }

// Append writes rec as one line to the day file of rec.Ts and folds it into
// the summary.
func (l *Log) Append(ctx context.Context, rec domain.ExecutionRecord) error {
	if rec.Ts.IsZero() {
		rec.Ts = l.now()
	}
	rec.Ts = rec.Ts.UTC()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	l.mu.Lock()
	err = l.appendLine(dayFileName(rec.Ts), line)
	if err == nil {
		l.summary.add(rec)
		l.summary.UpdatedAt = rec.Ts
		if werr := l.writeSummary(l.summary); werr != nil {
			l.logger.WarnContext(ctx, "audit summary write failed", slog.String("error", werr.Error()))
		}
	}
	l.mu.Unlock()
	if err != nil {
		return err
	}

	if l.mirror != nil {
		if merr := l.mirror.Insert(ctx, rec); merr != nil {
			l.logger.WarnContext(ctx, "audit mirror insert failed",
				slog.String("strategy_id", rec.StrategyID),
				slog.String("error", merr.Error()),
			)
		}
	}
	return nil
}

func (l *Log) appendLine(name string, line []byte) error {
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", name, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("audit: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audit: close %s: %w", name, err)
	}
	return nil
}

// List merges every day file, sorts by ts descending and truncates to the
// filter's limit. Records with equal timestamps keep their on-disk order
// reversed, so repeated reads return identical results.
func (l *Log) List(ctx context.Context, f Filter) ([]domain.ExecutionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.dayFiles()
	if err != nil {
		return nil, err
	}
	var out []domain.ExecutionRecord
	for _, df := range files {
		recs, err := l.readDayFile(ctx, df.Path)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if f.match(r) {
				out = append(out, r)
			}
		}
	}

	// Reverse first so the stable sort places later lines ahead of earlier
	// lines that share a timestamp.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ts.After(out[j].Ts) })

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (l *Log) readDayFile(ctx context.Context, path string) ([]domain.ExecutionRecord, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ExecutionRecord, 0, len(lines))
	for i, line := range lines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var r domain.ExecutionRecord
		if err := json.Unmarshal(line, &r); err != nil {
			l.logger.WarnContext(ctx, "skipping malformed audit line",
				slog.String("file", filepath.Base(path)),
				slog.Int("line", i+1),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// PatchPrice sets the fill price of orderID on the most recent record that
// carries it, marks the leg priceUpdated and recomputes the spread. The line
// is rewritten in place. domain.ErrNotFound is returned when no record
// matches.
func (l *Log) PatchPrice(ctx context.Context, orderID string, price float64) (domain.ExecutionRecord, error) {
	if orderID == "" {
		return domain.ExecutionRecord{}, fmt.Errorf("audit: patch price: empty order id: %w", domain.ErrNotFound)
	}

	l.mu.Lock()
	rec, err := l.patchLocked(orderID, price)
	l.mu.Unlock()
	if err != nil {
		return domain.ExecutionRecord{}, err
	}

	if l.mirror != nil {
		if merr := l.mirror.UpdateLegPrice(ctx, orderID, rec); merr != nil {
			l.logger.WarnContext(ctx, "audit mirror price update failed",
				slog.String("order_id", orderID),
				slog.String("error", merr.Error()),
			)
		}
	}
	return rec, nil
}

func (l *Log) patchLocked(orderID string, price float64) (domain.ExecutionRecord, error) {
	files, err := l.dayFiles()
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	needle := []byte(`"` + orderID + `"`)

	for fi := len(files) - 1; fi >= 0; fi-- {
		path := files[fi].Path
		lines, err := readLines(path)
		if err != nil {
			return domain.ExecutionRecord{}, err
		}
		for i := len(lines) - 1; i >= 0; i-- {
			if !bytes.Contains(lines[i], needle) {
				continue
			}
			var rec domain.ExecutionRecord
			if err := json.Unmarshal(lines[i], &rec); err != nil || !rec.HasOrder(orderID) {
				continue
			}
			before := rec.TotalAmount
			rec.ApplyFillPrice(orderID, price)

			patched, err := json.Marshal(rec)
			if err != nil {
				return domain.ExecutionRecord{}, fmt.Errorf("audit: marshal patched record: %w", err)
			}
			lines[i] = patched
			if err := writeLinesAtomic(path, lines); err != nil {
				return domain.ExecutionRecord{}, err
			}

			if s := l.summary.Strategies[summaryKey(rec)]; s != nil && !rec.IsRollback {
				s.TotalAmount += rec.TotalAmount - before
				if werr := l.writeSummary(l.summary); werr != nil {
					l.logger.Warn("audit summary write failed", slog.String("error", werr.Error()))
				}
			}
			return rec, nil
		}
	}
	return domain.ExecutionRecord{}, fmt.Errorf("audit: order %s: %w", orderID, domain.ErrNotFound)
}

// Summary returns a copy of the combined per-strategy summary.
func (l *Log) Summary(_ context.Context) Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summary.clone()
}

// DayFiles lists the day files in chronological order.
func (l *Log) DayFiles() ([]DayFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dayFiles()
}

// OpenDayFile opens a day file for reading while holding the writer lock
// only for the duration of the copy performed by fn.
func (l *Log) OpenDayFile(name string, fn func(r io.Reader, size int64) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(filepath.Join(l.dir, filepath.Base(name)))
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", name, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("audit: stat %s: %w", name, err)
	}
	return fn(f, st.Size())
}

func (l *Log) dayFiles() ([]DayFile, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("audit: read dir: %w", err)
	}
	var out []DayFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, dayFilePrefix) || !strings.HasSuffix(name, dayFileSuffix) {
			continue
		}
		day, err := time.Parse(dayLayout, strings.TrimSuffix(strings.TrimPrefix(name, dayFilePrefix), dayFileSuffix))
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("audit: stat %s: %w", name, err)
		}
		out = append(out, DayFile{Name: name, Path: filepath.Join(l.dir, name), Day: day, Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func dayFileName(ts time.Time) string {
	return dayFilePrefix + ts.UTC().Format(dayLayout) + dayFileSuffix
}

func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var lines [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan %s: %w", filepath.Base(path), err)
	}
	return lines, nil
}

func writeLinesAtomic(path string, lines [][]byte) error {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("audit: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("audit: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("audit: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("audit: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
