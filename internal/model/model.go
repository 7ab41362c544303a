package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation statuses. A conversation moves unassigned → assigned →
// in_progress → completed → approved/rejected; flagged is a side exit
// for calls the annotator cannot work with.
const (
	StatusUnassigned = "unassigned"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusFlagged    = "flagged"
)

// Turn roles as stored. Export maps "agent" to the assistant role.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Agent is a provider-side voice agent whose calls we import.
type Agent struct {
	ID           uuid.UUID
	ExternalID   string // provider agent id, unique
	Label        string
	APIKey       string // per-agent provider API key
	LastSyncedAt *time.Time
	CreatedAt    time.Time
}

// Conversation is one imported call session.
type Conversation struct {
	ID               uuid.UUID
	ExternalID       string // provider conversation id, unique
	AgentID          uuid.UUID
	AssignedTo       *uuid.UUID
	Status           string
	CallDurationSecs *int
	CallTimestamp    *time.Time
	HasAudio         bool
	RawData          []byte // full provider payload, retained for backfill/audit
	Tags             []string
	AnnotatorNotes   string
	ReviewerNotes    string
	Turns            []Turn
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	ReviewedAt       *time.Time
}

// Turn is one utterance within a conversation. (ConversationID, Position)
// is unique; position ascending is the total order for export.
type Turn struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Position       int
	Role           string
	OriginalText   string
	EditedText     string
	TimeInCallSecs *float64
	IsEdited       bool
	IsDeleted      bool
	IsInserted     bool
	// Weight is the training-weight override: nil = auto, 0 = exclude
	// from the loss, 1 = include. The compiler must distinguish nil
	// from an explicit 0.
	Weight     *int
	RAGContext []RAGChunk
	ToolCalls  []ToolCall
}

// EffectiveText returns the annotator-edited text when the edited flag
// is set, else the original transcript text.
func (t *Turn) EffectiveText() string {
	if t.IsEdited {
		return t.EditedText
	}
	return t.OriginalText
}

// RAGChunk is one retrieval-context block attached to a turn. Content is
// empty when the knowledge-base fetch failed; FetchError then carries the
// error string. VectorDistance stays nil when the provider omitted it.
type RAGChunk struct {
	DocumentID     string   `json:"document_id"`
	ChunkID        string   `json:"chunk_id"`
	Content        string   `json:"content"`
	VectorDistance *float64 `json:"vector_distance"`
	FetchError     string   `json:"fetch_error,omitempty"`
}

// ToolCall is a function invocation attributed to a single turn. A turn
// may carry several (parallel invocations within one agent response).
type ToolCall struct {
	ID           uuid.UUID
	TurnID       uuid.UUID
	ToolName     string
	OriginalArgs map[string]any
	EditedArgs   map[string]any
	StatusCode   *int
	ResponseBody map[string]any
	ErrorMessage string
	IsEdited     bool
	IsDeleted    bool
}

// EffectiveArgs returns the annotator-corrected arguments when the edited
// flag is set, else the originals.
func (tc *ToolCall) EffectiveArgs() map[string]any {
	if tc.IsEdited {
		return tc.EditedArgs
	}
	return tc.OriginalArgs
}

// SystemPrompt is a named, versioned instruction text. At most one is
// active at a time; the store's ActivatePrompt enforces that.
type SystemPrompt struct {
	ID        uuid.UUID
	Name      string
	Content   string
	IsActive  bool
	CreatedAt time.Time
}

// Tag labels conversations for filtering at export time.
type Tag struct {
	ID        uuid.UUID
	Name      string
	Color     string
	CreatedAt time.Time
}

// ExportLog is an append-only audit record of one dataset download.
type ExportLog struct {
	ID                uuid.UUID
	ExportedBy        *uuid.UUID
	ConversationCount int
	TokenCount        int
	CreatedAt         time.Time
}
