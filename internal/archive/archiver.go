// Package archive moves RunRecord rows trimmed from the primary store to
// cold S3-compatible storage before they are deleted.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// Archiver persists trimmed RunRecord batches to cold storage. A failed
// write never blocks the store's trim path: it is logged and swallowed,
// mirroring the source archiver's "never blocks the hot path" posture.
type Archiver struct {
	writer *Writer
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver backed by the given S3 Writer.
func NewArchiver(writer *Writer, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		audit:  audit,
		logger: logger.With(slog.String("component", "archive")),
	}
}

// ArchiveTrimmedRuns serializes trimmed run records as JSONL and uploads
// them to archive/runs/<chainId>/<tokenId>/<yyyy-mm>.jsonl. Best-effort: a
// failure is logged and swallowed rather than propagated, since archival
// must never block trimming. A successful upload is recorded to the audit
// log when one is configured.
func (a *Archiver) ArchiveTrimmedRuns(ctx context.Context, chainId int, tokenId domain.TokenId, runs []domain.RunRecord) {
	if len(runs) == 0 {
		return
	}

	buf, err := marshalJSONL(runs)
	if err != nil {
		a.logger.ErrorContext(ctx, "marshal trimmed runs failed", slog.String("error", err.Error()))
		return
	}

	path := fmt.Sprintf("archive/runs/%d/%d/%s.jsonl", chainId, tokenId, time.Now().Format("2006-01"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		a.logger.ErrorContext(ctx, "upload trimmed runs failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	if a.audit != nil {
		_ = a.audit.Log(ctx, "archive.runs", map[string]any{
			"path":    path,
			"count":   len(runs),
			"tokenId": int64(tokenId),
		})
	}
}

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
