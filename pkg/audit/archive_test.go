package audit

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readArchive(t *testing.T, r io.Reader) []*LogRecord {
	t.Helper()

	gz, err := gzip.NewReader(r)
	require.NoError(t, err)
	defer gz.Close()

	var records []*LogRecord
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		record, err := FromJSON(scanner.Bytes())
		require.NoError(t, err)
		records = append(records, record)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestFileArchiver_Archive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	archiver := NewFileArchiver(dir)
	archiver.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	cutoff := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	location, err := archiver.Archive(context.Background(), exportFixture(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "audit-before-20240102T000000Z-20250102T030405Z.ndjson.gz"), location)

	f, err := os.Open(location)
	require.NoError(t, err)
	defer f.Close()

	records := readArchive(t, f)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].ID)
	assert.Equal(t, "3", records[1].EntityID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestFileArchiver_CancelledContext(t *testing.T) {
	archiver := NewFileArchiver(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := archiver.Archive(ctx, exportFixture(), time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

type fakePutter struct {
	key         string
	contentType string
	body        []byte
	err         error
	existing    map[string]bool
}

func (p *fakePutter) PutObject(ctx context.Context, key string, content io.Reader, contentType string) error {
	if p.err != nil {
		return p.err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	p.key, p.contentType, p.body = key, contentType, data
	return nil
}

func (p *fakePutter) ObjectExists(ctx context.Context, key string) (bool, error) {
	return p.existing[key], nil
}

func (p *fakePutter) HealthCheck(ctx context.Context) error {
	return p.err
}

func TestS3Archiver_Archive(t *testing.T) {
	putter := &fakePutter{}
	archiver := NewS3Archiver(putter, "audit/")
	archiver.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	key, err := archiver.Archive(context.Background(), exportFixture(), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "audit/audit-before-20240102T000000Z-20250102T030405Z.ndjson.gz", key)
	assert.Equal(t, key, putter.key)
	assert.Equal(t, "application/gzip", putter.contentType)

	records := readArchive(t, bytes.NewReader(putter.body))
	assert.Len(t, records, 2)
}

func TestS3Archiver_UploadFailure(t *testing.T) {
	boom := errors.New("bucket unavailable")
	archiver := NewS3Archiver(&fakePutter{err: boom}, "audit")

	_, err := archiver.Archive(context.Background(), exportFixture(), time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestS3Archiver_NeverOverwrites(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cutoff := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	putter := &fakePutter{existing: map[string]bool{
		"audit/audit-before-20240102T000000Z-20250102T030405Z.ndjson.gz": true,
	}}
	archiver := NewS3Archiver(putter, "audit")
	archiver.now = func() time.Time { return now }

	_, err := archiver.Archive(context.Background(), exportFixture(), cutoff)
	assert.ErrorContains(t, err, "already exists")
	assert.Empty(t, putter.key, "nothing is uploaded")
}

func TestS3Archiver_HealthCheck(t *testing.T) {
	assert.NoError(t, NewS3Archiver(&fakePutter{}, "audit").HealthCheck(context.Background()))

	boom := errors.New("bucket unavailable")
	assert.ErrorIs(t, NewS3Archiver(&fakePutter{err: boom}, "audit").HealthCheck(context.Background()), boom)
}
