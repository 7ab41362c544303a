package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/abogushcoder/annotation-platform/internal/model"
)

// InsertExportLog appends one dataset-download audit record.
func (s *Store) InsertExportLog(ctx context.Context, log *model.ExportLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO export_logs (id, exported_by, conversation_count, token_count, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		log.ID, log.ExportedBy, log.ConversationCount, log.TokenCount,
	)
	if err != nil {
		return fmt.Errorf("insert export log: %w", err)
	}
	return nil
}

// ListExportLogs returns the audit trail, newest first.
func (s *Store) ListExportLogs(ctx context.Context, limit int) ([]model.ExportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, exported_by, conversation_count, token_count, created_at
		FROM export_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list export logs: %w", err)
	}
	defer rows.Close()

	var out []model.ExportLog
	for rows.Next() {
		var l model.ExportLog
		if err := rows.Scan(&l.ID, &l.ExportedBy, &l.ConversationCount, &l.TokenCount, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan export log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
