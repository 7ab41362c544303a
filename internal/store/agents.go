package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abogushcoder/annotation-platform/internal/model"
)

// CreateAgent registers a provider agent for syncing.
func (s *Store) CreateAgent(ctx context.Context, a *model.Agent) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agents (id, external_id, label, api_key, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		a.ID, a.ExternalID, a.Label, a.APIKey,
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", asDuplicate(err))
	}
	return nil
}

// GetAgent fetches one agent by internal id.
func (s *Store) GetAgent(ctx context.Context, id uuid.UUID) (*model.Agent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, external_id, label, api_key, last_synced_at, created_at
		FROM agents WHERE id = $1`, id)

	var a model.Agent
	if err := row.Scan(&a.ID, &a.ExternalID, &a.Label, &a.APIKey, &a.LastSyncedAt, &a.CreatedAt); err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &a, nil
}

// ListAgents returns every registered agent, oldest first.
func (s *Store) ListAgents(ctx context.Context) ([]model.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, external_id, label, api_key, last_synced_at, created_at
		FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []model.Agent
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(&a.ID, &a.ExternalID, &a.Label, &a.APIKey, &a.LastSyncedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TouchAgentSynced records the completion time of the latest sync.
func (s *Store) TouchAgentSynced(ctx context.Context, agentID uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agents SET last_synced_at = $1 WHERE id = $2`, at, agentID)
	if err != nil {
		return fmt.Errorf("touch agent: %w", err)
	}
	return nil
}
