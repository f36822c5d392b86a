package audit

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Archiver copies log records somewhere durable before retention deletes them
type Archiver interface {
	// Archive stores the records and returns the location written to
	Archive(ctx context.Context, records []*LogRecord, cutoff time.Time) (string, error)
}

// archiveName names the archive of records older than cutoff, written at now
func archiveName(cutoff, now time.Time) string {
	return fmt.Sprintf("audit-before-%s-%s.ndjson.gz",
		cutoff.UTC().Format("20060102T150405Z"),
		now.UTC().Format("20060102T150405Z"))
}

// writeGzipNDJSON compresses records as newline-delimited JSON into w
func writeGzipNDJSON(w io.Writer, records []*LogRecord) error {
	gz := gzip.NewWriter(w)
	if err := WriteNDJSON(gz, records); err != nil {
		gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// FileArchiver writes gzip compressed NDJSON files into a directory
type FileArchiver struct {
	dir string
	now func() time.Time
}

// NewFileArchiver creates an archiver writing into dir
func NewFileArchiver(dir string) *FileArchiver {
	return &FileArchiver{dir: dir, now: time.Now}
}

// Archive writes the records to a new file. The file appears only once fully written.
func (a *FileArchiver) Archive(ctx context.Context, records []*LogRecord, cutoff time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(a.dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(a.dir, ".archive-*")
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeGzipNDJSON(tmp, records); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive file: %w", err)
	}

	target := filepath.Join(a.dir, archiveName(cutoff, a.now()))
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}

	return target, nil
}

// ObjectStore uploads objects, implemented by the S3 client
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
	ObjectExists(ctx context.Context, key string) (bool, error)
	HealthCheck(ctx context.Context) error
}

// S3Archiver uploads gzip compressed NDJSON objects under a key prefix
type S3Archiver struct {
	objects ObjectStore
	prefix  string
	now     func() time.Time
}

// NewS3Archiver creates an archiver uploading into objects
func NewS3Archiver(objects ObjectStore, prefix string) *S3Archiver {
	return &S3Archiver{objects: objects, prefix: prefix, now: time.Now}
}

// Archive uploads the records as a single object. An existing archive is never overwritten.
func (a *S3Archiver) Archive(ctx context.Context, records []*LogRecord, cutoff time.Time) (string, error) {
	key := path.Join(a.prefix, archiveName(cutoff, a.now()))

	ctx, span := tracer.Start(ctx, "audit.S3Archiver.Archive",
		trace.WithAttributes(
			attribute.String("archive.key", key),
			attribute.Int("archive.records", len(records)),
		),
	)
	defer span.End()

	exists, err := a.objects.ObjectExists(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check archive")
		return "", fmt.Errorf("failed to check archive: %w", err)
	}
	if exists {
		err := fmt.Errorf("archive %s already exists", key)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var buf bytes.Buffer
	if err := writeGzipNDJSON(&buf, records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode archive")
		return "", err
	}

	if err := a.objects.PutObject(ctx, key, &buf, "application/gzip"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload archive")
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	span.SetStatus(codes.Ok, "archive uploaded")
	return key, nil
}

// HealthCheck reports whether the archive bucket is reachable
func (a *S3Archiver) HealthCheck(ctx context.Context) error {
	return a.objects.HealthCheck(ctx)
}
