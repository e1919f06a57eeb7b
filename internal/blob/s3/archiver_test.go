package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/audit"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type memSource struct {
	files   []audit.DayFile
	content map[string]string
}

func (m *memSource) DayFiles() ([]audit.DayFile, error) { return m.files, nil }

func (m *memSource) OpenDayFile(name string, fn func(r io.Reader, size int64) error) error {
	s := m.content[name]
	return fn(strings.NewReader(s), int64(len(s)))
}

type memBucket struct {
	objects   map[string][]byte
	multipart []string
}

func newMemBucket() *memBucket { return &memBucket{objects: make(map[string][]byte)} }

func (b *memBucket) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	b.objects[path] = buf
	return err
}

func (b *memBucket) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	b.multipart = append(b.multipart, path)
	buf, err := io.ReadAll(data)
	b.objects[path] = buf
	return err
}

func (b *memBucket) Get(_ context.Context, path string) (io.ReadCloser, error) {
	buf, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (b *memBucket) List(context.Context, string) ([]domain.BlobInfo, error) { return nil, nil }

func (b *memBucket) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

func dayFile(day string) audit.DayFile {
	d, _ := time.Parse("2006-01-02", day)
	name := "executions-" + day + ".jsonl"
	return audit.DayFile{Name: name, Path: "/tmp/" + name, Day: d}
}

func TestArchiveOnceUploadsOldFilesOnly(t *testing.T) {
	src := &memSource{
		files: []audit.DayFile{dayFile("2025-01-01"), dayFile("2025-01-08"), dayFile("2025-01-10")},
		content: map[string]string{
			"executions-2025-01-01.jsonl": "{\"a\":1}\n",
			"executions-2025-01-08.jsonl": "{\"a\":2}\n",
			"executions-2025-01-10.jsonl": "{\"a\":3}\n",
		},
	}
	bucket := newMemBucket()
	a := NewArchiver(ArchiverConfig{Prefix: "archive/executions/", AfterDays: 2}, src, bucket, bucket, slog.Default())
	a.now = func() time.Time { return time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC) }

	n, err := a.ArchiveOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []byte("{\"a\":1}\n"), bucket.objects["archive/executions/2025-01/executions-2025-01-01.jsonl"])

	// Nothing new on a second pass.
	n, err = a.ArchiveOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArchiveOnceUsesMultipartForLargeFiles(t *testing.T) {
	big := strings.Repeat("x", int(MinPartSize)+1)
	src := &memSource{
		files:   []audit.DayFile{dayFile("2024-12-01")},
		content: map[string]string{"executions-2024-12-01.jsonl": big},
	}
	bucket := newMemBucket()
	a := NewArchiver(ArchiverConfig{Prefix: "p", AfterDays: 1}, src, bucket, bucket, slog.Default())

	n, err := a.ArchiveOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"p/2024-12/executions-2024-12-01.jsonl"}, bucket.multipart)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
}
