package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/abogushcoder/annotation-platform/internal/model"
)

// CreateSystemPrompt inserts a prompt version. Activation is a separate
// step; new prompts start inactive unless IsActive is set.
func (s *Store) CreateSystemPrompt(ctx context.Context, p *model.SystemPrompt) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO system_prompts (id, name, content, is_active, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		p.ID, p.Name, p.Content, p.IsActive,
	)
	if err != nil {
		return fmt.Errorf("insert system prompt: %w", err)
	}
	return nil
}

// HasSystemPrompts reports whether any prompt version exists.
func (s *Store) HasSystemPrompts(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM system_prompts)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check system prompts: %w", err)
	}
	return exists, nil
}

// ActiveSystemPrompt returns the single active prompt, or nil when none
// is active.
func (s *Store) ActiveSystemPrompt(ctx context.Context) (*model.SystemPrompt, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, content, is_active, created_at
		FROM system_prompts WHERE is_active LIMIT 1`)

	var p model.SystemPrompt
	err := row.Scan(&p.ID, &p.Name, &p.Content, &p.IsActive, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active prompt: %w", err)
	}
	return &p, nil
}

// ListSystemPrompts returns every prompt version, newest first.
func (s *Store) ListSystemPrompts(ctx context.Context) ([]model.SystemPrompt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, content, is_active, created_at
		FROM system_prompts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list system prompts: %w", err)
	}
	defer rows.Close()

	var out []model.SystemPrompt
	for rows.Next() {
		var p model.SystemPrompt
		if err := rows.Scan(&p.ID, &p.Name, &p.Content, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan system prompt: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ActivatePrompt makes the given prompt the single active one. Clear and
// set run in one transaction so a concurrent export never sees two
// active prompts.
func (s *Store) ActivatePrompt(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE system_prompts SET is_active = FALSE WHERE is_active`); err != nil {
		return fmt.Errorf("clear active prompt: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE system_prompts SET is_active = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("activate prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
