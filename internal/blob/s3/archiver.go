package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marginguard/internal/domain"
)

// Archiver implements domain.Archiver: it pages aged rows out of the
// database into JSONL files in object storage, then deletes them from the
// primary store. Deletion happens only after the uploaded object is
// confirmed present, so a failed upload never loses rows.
type Archiver struct {
	writer      domain.BlobWriter
	reader      domain.BlobReader
	rebalances  domain.RebalanceStore
	audit       domain.AuditStore
}

// NewArchiver creates an Archiver over the given blob endpoints and stores.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, rebalances domain.RebalanceStore, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer:     writer,
		reader:     reader,
		rebalances: rebalances,
		audit:      audit,
	}
}

// ArchiveRebalances moves rebalance records older than before into
// archive/rebalances/YYYY-MM.jsonl and removes them from the database.
// It returns the number of records archived.
func (a *Archiver) ArchiveRebalances(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.rebalances.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rebalances query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rebalances marshal: %w", err)
	}

	path := archivePath("rebalances", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive rebalances: %w", err)
	}

	deleted, err := a.rebalances.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rebalances delete: %w", err)
	}

	count := int64(len(recs))
	if err := a.audit.Log(ctx, "archive.rebalances", domain.Account{}, map[string]any{
		"path":    path,
		"count":   count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive rebalances audit log: %w", err)
	}

	return count, nil
}

// ArchiveAuditLog moves audit entries older than before into
// archive/audit_log/YYYY-MM.jsonl and removes them from the database.
// It returns the number of entries archived.
func (a *Archiver) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit log query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit log marshal: %w", err)
	}

	path := archivePath("audit_log", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	deleted, err := a.audit.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit log delete: %w", err)
	}

	count := int64(len(entries))
	if err := a.audit.Log(ctx, "archive.audit_log", domain.Account{}, map[string]any{
		"path":    path,
		"count":   count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log entry: %w", err)
	}

	return count, nil
}

// upload writes the object and verifies it landed before the caller
// deletes anything from the database.
func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}

	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("verify %s: object missing after upload", path)
	}
	return nil
}

// archivePath builds the object key, partitioned by the cutoff's year-month:
//
//	archive/rebalances/2026-08.jsonl
//	archive/audit_log/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice as newline-delimited JSON, one compact
// line per element.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
