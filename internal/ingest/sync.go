package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/abogushcoder/annotation-platform/internal/elevenlabs"
	"github.com/abogushcoder/annotation-platform/internal/model"
	"github.com/abogushcoder/annotation-platform/internal/store"
)

// SubjectSyncCompleted is the NATS subject announcing a finished agent sync.
const SubjectSyncCompleted = "annotator.sync.completed"

// Store is the persistence surface the syncer needs.
type Store interface {
	ConversationExists(ctx context.Context, externalID string) (bool, error)
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	TouchAgentSynced(ctx context.Context, agentID uuid.UUID, at time.Time) error
	HasSystemPrompts(ctx context.Context) (bool, error)
	CreateSystemPrompt(ctx context.Context, p *model.SystemPrompt) error
}

// ProviderClient is the provider surface the syncer needs, satisfied by
// *elevenlabs.Client.
type ProviderClient interface {
	ListConversations(ctx context.Context, agentID string, pageSize int, cursor string) (*elevenlabs.ConversationPage, error)
	GetConversation(ctx context.Context, conversationID string) (json.RawMessage, error)
	GetAgent(ctx context.Context, agentID string) (*elevenlabs.AgentConfig, error)
	GetKBChunk(ctx context.Context, documentID, chunkID string) (*elevenlabs.KBChunk, error)
}

// Publisher posts completion notifications. Optional; nil disables it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Stats are the aggregate counts reported for one agent sync.
type Stats struct {
	Imported         int `json:"imported"`
	Skipped          int `json:"skipped"`
	Errors           int `json:"errors"`
	ChunkFetchErrors int `json:"chunk_fetch_errors"`
}

// Syncer imports newly-discovered conversations for an agent. Each
// conversation is isolated: one import failure is counted and the sync
// moves on. Only a failure of the listing call itself aborts the agent.
type Syncer struct {
	store    Store
	clients  func(apiKey string) ProviderClient
	events   Publisher
	pageSize int
	logger   *slog.Logger
}

func NewSyncer(s Store, clients func(apiKey string) ProviderClient, events Publisher, pageSize int, logger *slog.Logger) *Syncer {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Syncer{
		store:    s,
		clients:  clients,
		events:   events,
		pageSize: pageSize,
		logger:   logger,
	}
}

// SyncAgent walks the agent's paginated conversation listing and imports
// every conversation not seen before. Already-imported external ids are
// counted as skipped and left untouched.
func (s *Syncer) SyncAgent(ctx context.Context, agent *model.Agent) Stats {
	client := s.clients(agent.APIKey)
	normalizer := NewNormalizer(client, s.logger)

	var stats Stats
	cursor := ""

	for {
		page, err := client.ListConversations(ctx, agent.ExternalID, s.pageSize, cursor)
		if err != nil {
			s.logger.Error("failed to list conversations", "agent", agent.Label, "error", err)
			stats.Errors++
			break
		}
		if len(page.Conversations) == 0 {
			break
		}

		for _, summary := range page.Conversations {
			if summary.ConversationID == "" {
				continue
			}

			exists, err := s.store.ConversationExists(ctx, summary.ConversationID)
			if err != nil {
				s.logger.Error("failed to check conversation", "conversation_id", summary.ConversationID, "error", err)
				stats.Errors++
				continue
			}
			if exists {
				stats.Skipped++
				continue
			}

			imported, err := s.importConversation(ctx, normalizer, client, agent, summary.ConversationID, &stats)
			if err != nil {
				s.logger.Error("failed to import conversation", "conversation_id", summary.ConversationID, "error", err)
				stats.Errors++
				continue
			}
			if imported {
				stats.Imported++
			}
		}

		cursor = page.Cursor
		if cursor == "" {
			break
		}
	}

	if err := s.store.TouchAgentSynced(ctx, agent.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to stamp agent sync time", "agent", agent.Label, "error", err)
	}

	s.logger.Info("agent sync complete",
		"agent", agent.Label,
		"imported", stats.Imported,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"chunk_fetch_errors", stats.ChunkFetchErrors,
	)

	if s.events != nil {
		if err := s.events.Publish(SubjectSyncCompleted, map[string]any{
			"agent_id": agent.ExternalID,
			"imported": stats.Imported,
			"skipped":  stats.Skipped,
			"errors":   stats.Errors,
		}); err != nil {
			s.logger.Warn("failed to publish sync event", "error", err)
		}
	}

	return stats
}

func (s *Syncer) importConversation(ctx context.Context, n *Normalizer, client ProviderClient, agent *model.Agent, conversationID string, stats *Stats) (bool, error) {
	raw, err := client.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}

	normalized, err := n.Normalize(ctx, conversationID, raw)
	if err != nil {
		return false, err
	}
	stats.ChunkFetchErrors += normalized.ChunkFetchErrors

	conv := &model.Conversation{
		ID:               uuid.New(),
		ExternalID:       normalized.ExternalID,
		AgentID:          agent.ID,
		Status:           model.StatusUnassigned,
		CallDurationSecs: normalized.CallDurationSecs,
		CallTimestamp:    normalized.CallTimestamp,
		HasAudio:         normalized.HasAudio,
		RawData:          normalized.RawData,
		Turns:            normalized.Turns,
	}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		// The unique index on the external id is the authoritative
		// de-dup under concurrent sync triggers; losing that race is
		// a skip, not an error.
		if errors.Is(err, store.ErrDuplicate) {
			stats.Skipped++
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SeedPromptFromAgent fetches the agent's provider configuration and, when
// no system prompts exist yet, stores its prompt text as an inactive
// version for the reviewer to activate.
func (s *Syncer) SeedPromptFromAgent(ctx context.Context, agent *model.Agent) error {
	has, err := s.store.HasSystemPrompts(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	cfg, err := s.clients(agent.APIKey).GetAgent(ctx, agent.ExternalID)
	if err != nil {
		return err
	}
	text := cfg.ConversationConfig.Agent.Prompt.Prompt
	if text == "" {
		return nil
	}

	return s.store.CreateSystemPrompt(ctx, &model.SystemPrompt{
		ID:      uuid.New(),
		Name:    agent.Label + " (imported)",
		Content: text,
	})
}
