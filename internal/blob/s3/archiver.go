package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/alanyoungcy/offerstream/internal/domain"
)

const contentTypeJSONLZstd = "application/zstd"

// JournalSource is the slice of domain.EventJournal the archiver reads.
type JournalSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.JournalEntry, error)
}

// Archiver serializes offers and journal rows to zstd-compressed JSONL and
// uploads them through a BlobWriter.
//
// Archived journal rows are not deleted here; pruning is a separate step for
// the caller once the upload has succeeded.
type Archiver struct {
	writer  domain.BlobWriter
	journal JournalSource
}

// NewArchiver creates an Archiver. journal may be nil when no journal is
// configured; ArchiveJournal then does nothing.
func NewArchiver(writer domain.BlobWriter, journal JournalSource) *Archiver {
	return &Archiver{writer: writer, journal: journal}
}

// ExportSnapshot uploads offers to snapshots/YYYY/MM/DD/HHMMSS.jsonl.zst and
// returns the key it wrote.
func (a *Archiver) ExportSnapshot(ctx context.Context, offers []domain.Offer, at time.Time) (string, error) {
	buf, err := compressJSONL(offers)
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot encode: %w", err)
	}

	path := SnapshotPath(at)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONLZstd); err != nil {
		return "", fmt.Errorf("s3blob: snapshot upload: %w", err)
	}
	return path, nil
}

// ArchiveJournal uploads every journal row older than before and returns how
// many rows the archive holds. Nothing is written when there are no rows.
func (a *Archiver) ArchiveJournal(ctx context.Context, before time.Time) (int64, error) {
	if a.journal == nil {
		return 0, nil
	}

	entries, err := a.journal.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive journal query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := compressJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive journal encode: %w", err)
	}

	path := ArchivePath("offer_events", before)
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0); err != nil {
		return 0, fmt.Errorf("s3blob: archive journal upload: %w", err)
	}
	return int64(len(entries)), nil
}

// SnapshotPath builds the key for a snapshot taken at t (UTC).
//
//	snapshots/2026/03/01/103045.jsonl.zst
func SnapshotPath(t time.Time) string {
	return "snapshots/" + t.UTC().Format("2006/01/02/150405") + ".jsonl.zst"
}

// ArchivePath builds the key for an archive of rows older than before.
//
//	archive/offer_events/2026-03-01T103045Z.jsonl.zst
func ArchivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl.zst", kind, before.UTC().Format("2006-01-02T150405Z"))
}

// compressJSONL encodes records one per line and compresses the result.
func compressJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}

	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
