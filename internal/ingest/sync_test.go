package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/abogushcoder/annotation-platform/internal/elevenlabs"
	"github.com/abogushcoder/annotation-platform/internal/model"
	"github.com/abogushcoder/annotation-platform/internal/store"
)

type fakeStore struct {
	existing map[string]bool
	created  []*model.Conversation
	dupOn    map[string]bool // external ids that hit the unique index
	prompts  []*model.SystemPrompt
	synced   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: map[string]bool{}, dupOn: map[string]bool{}}
}

func (f *fakeStore) ConversationExists(_ context.Context, externalID string) (bool, error) {
	return f.existing[externalID], nil
}

func (f *fakeStore) CreateConversation(_ context.Context, conv *model.Conversation) error {
	if f.dupOn[conv.ExternalID] {
		return fmt.Errorf("insert conversation: %w", store.ErrDuplicate)
	}
	f.created = append(f.created, conv)
	f.existing[conv.ExternalID] = true
	return nil
}

func (f *fakeStore) TouchAgentSynced(_ context.Context, _ uuid.UUID, _ time.Time) error {
	f.synced = true
	return nil
}

func (f *fakeStore) HasSystemPrompts(_ context.Context) (bool, error) {
	return len(f.prompts) > 0, nil
}

func (f *fakeStore) CreateSystemPrompt(_ context.Context, p *model.SystemPrompt) error {
	f.prompts = append(f.prompts, p)
	return nil
}

type fakeProvider struct {
	pages    []*elevenlabs.ConversationPage
	pageIdx  int
	listErr  error
	details  map[string]json.RawMessage
	broken   map[string]bool // conversations whose detail fetch fails
	agentCfg *elevenlabs.AgentConfig
}

func (f *fakeProvider) ListConversations(_ context.Context, _ string, _ int, _ string) (*elevenlabs.ConversationPage, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.pageIdx >= len(f.pages) {
		return &elevenlabs.ConversationPage{}, nil
	}
	page := f.pages[f.pageIdx]
	f.pageIdx++
	return page, nil
}

func (f *fakeProvider) GetConversation(_ context.Context, conversationID string) (json.RawMessage, error) {
	if f.broken[conversationID] {
		return nil, fmt.Errorf("detail fetch failed")
	}
	detail, ok := f.details[conversationID]
	if !ok {
		detail = json.RawMessage(`{"transcript":[{"role":"user","message":"Hi"}]}`)
	}
	return detail, nil
}

func (f *fakeProvider) GetAgent(_ context.Context, _ string) (*elevenlabs.AgentConfig, error) {
	if f.agentCfg == nil {
		return nil, fmt.Errorf("agent not found")
	}
	return f.agentCfg, nil
}

func (f *fakeProvider) GetKBChunk(_ context.Context, _, _ string) (*elevenlabs.KBChunk, error) {
	return &elevenlabs.KBChunk{Content: "chunk"}, nil
}

func testAgent() *model.Agent {
	return &model.Agent{ID: uuid.New(), ExternalID: "agent_001", Label: "Test Agent", APIKey: "key"}
}

func newTestSyncer(s Store, p ProviderClient) *Syncer {
	return NewSyncer(s, func(string) ProviderClient { return p }, nil, 100, slog.Default())
}

func TestSyncAgent_ImportsNewConversations(t *testing.T) {
	provider := &fakeProvider{
		pages: []*elevenlabs.ConversationPage{
			{Conversations: []elevenlabs.ConversationSummary{
				{ConversationID: "conv_1"},
				{ConversationID: "conv_2"},
			}, Cursor: "page-2"},
			{Conversations: []elevenlabs.ConversationSummary{
				{ConversationID: "conv_3"},
			}},
		},
	}
	st := newFakeStore()

	stats := newTestSyncer(st, provider).SyncAgent(context.Background(), testAgent())

	if stats.Imported != 3 || stats.Skipped != 0 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want 3 imported across pages", stats)
	}
	if len(st.created) != 3 {
		t.Errorf("expected 3 conversations persisted, got %d", len(st.created))
	}
	if st.created[0].Status != model.StatusUnassigned {
		t.Errorf("new conversations must start unassigned, got %q", st.created[0].Status)
	}
	if !st.synced {
		t.Errorf("agent last-synced stamp not written")
	}
}

func TestSyncAgent_Idempotent(t *testing.T) {
	provider := &fakeProvider{
		pages: []*elevenlabs.ConversationPage{
			{Conversations: []elevenlabs.ConversationSummary{
				{ConversationID: "conv_1"},
				{ConversationID: "conv_2"},
			}},
		},
	}
	st := newFakeStore()
	syncer := newTestSyncer(st, provider)

	first := syncer.SyncAgent(context.Background(), testAgent())
	if first.Imported != 2 {
		t.Fatalf("first sync imported = %d, want 2", first.Imported)
	}

	provider.pageIdx = 0
	second := syncer.SyncAgent(context.Background(), testAgent())
	if second.Imported != 0 || second.Skipped != 2 || second.Errors != 0 {
		t.Errorf("re-sync stats = %+v, want only skips", second)
	}
	if len(st.created) != 2 {
		t.Errorf("re-sync must not create rows, have %d", len(st.created))
	}
}

func TestSyncAgent_ListFailureAborts(t *testing.T) {
	provider := &fakeProvider{listErr: fmt.Errorf("upstream 500")}
	st := newFakeStore()

	stats := newTestSyncer(st, provider).SyncAgent(context.Background(), testAgent())

	if stats.Errors != 1 {
		t.Errorf("errors = %d, want 1 for aborted listing", stats.Errors)
	}
	if stats.Imported != 0 || len(st.created) != 0 {
		t.Errorf("nothing should import after a listing failure")
	}
}

func TestSyncAgent_OneBadConversationDoesNotStopOthers(t *testing.T) {
	provider := &fakeProvider{
		pages: []*elevenlabs.ConversationPage{
			{Conversations: []elevenlabs.ConversationSummary{
				{ConversationID: "conv_ok_1"},
				{ConversationID: "conv_broken"},
				{ConversationID: "conv_ok_2"},
			}},
		},
		broken: map[string]bool{"conv_broken": true},
	}
	st := newFakeStore()

	stats := newTestSyncer(st, provider).SyncAgent(context.Background(), testAgent())

	if stats.Imported != 2 || stats.Errors != 1 {
		t.Errorf("stats = %+v, want 2 imported and 1 error", stats)
	}
}

func TestSyncAgent_UniqueIndexRaceCountsAsSkip(t *testing.T) {
	provider := &fakeProvider{
		pages: []*elevenlabs.ConversationPage{
			{Conversations: []elevenlabs.ConversationSummary{
				{ConversationID: "conv_raced"},
			}},
		},
	}
	st := newFakeStore()
	st.dupOn["conv_raced"] = true

	stats := newTestSyncer(st, provider).SyncAgent(context.Background(), testAgent())

	if stats.Imported != 0 || stats.Skipped != 1 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want the lost race counted as skipped", stats)
	}
}

func TestSeedPromptFromAgent(t *testing.T) {
	provider := &fakeProvider{agentCfg: &elevenlabs.AgentConfig{}}
	provider.agentCfg.ConversationConfig.Agent.Prompt.Prompt = "You are a test assistant."
	st := newFakeStore()
	syncer := newTestSyncer(st, provider)

	if err := syncer.SeedPromptFromAgent(context.Background(), testAgent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.prompts) != 1 {
		t.Fatalf("expected seeded prompt, got %d", len(st.prompts))
	}
	if st.prompts[0].Content != "You are a test assistant." {
		t.Errorf("prompt content = %q", st.prompts[0].Content)
	}
	if st.prompts[0].IsActive {
		t.Errorf("seeded prompt must start inactive")
	}

	// A second seed is a no-op once any prompt exists.
	if err := syncer.SeedPromptFromAgent(context.Background(), testAgent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.prompts) != 1 {
		t.Errorf("seeding must not duplicate prompts, got %d", len(st.prompts))
	}
}
