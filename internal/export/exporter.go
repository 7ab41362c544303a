package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/abogushcoder/annotation-platform/internal/model"
)

// SubjectExportCompleted is the NATS subject announcing a produced dataset.
const SubjectExportCompleted = "annotator.export.completed"

// Store is the persistence surface the exporter reads from. The whole
// build is a pure read; only the final audit log writes.
type Store interface {
	ApprovedConversations(ctx context.Context, agentID *uuid.UUID, tag string, toolCallsOnly bool, limit int) ([]model.Conversation, error)
	ActiveSystemPrompt(ctx context.Context) (*model.SystemPrompt, error)
	InsertExportLog(ctx context.Context, log *model.ExportLog) error
}

// Publisher posts completion notifications. Optional; nil disables it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Request parameterizes one dataset build.
type Request struct {
	Options
	AgentID       *uuid.UUID
	Tag           string
	ToolCallsOnly bool
	Limit         int
	TrainRatio    float64
	ExportedBy    *uuid.UUID
}

// Dataset is the result of one build: validator-passing examples plus the
// numbers the operator needs before committing to a training run.
type Dataset struct {
	Examples      []Example
	SkippedCount  int // candidates excluded by the validator
	Warnings      []string
	TokenCount    int
	EstimatedCost float64
}

// Blocked reports whether the dataset must not be downloaded: an empty or
// under-minimum dataset would be rejected by the training provider.
func (d *Dataset) Blocked() bool {
	return len(d.Examples) < MinDatasetSize
}

// Exporter builds datasets from approved, annotated conversations.
type Exporter struct {
	store     Store
	validator *Validator
	events    Publisher
	logger    *slog.Logger
}

func NewExporter(s Store, v *Validator, events Publisher, logger *slog.Logger) *Exporter {
	if v == nil {
		v = NewValidator(MaxExampleTokens)
	}
	return &Exporter{store: s, validator: v, events: events, logger: logger}
}

// BuildDataset compiles one candidate example per approved conversation
// matching the request's filters and keeps only those passing validation.
func (e *Exporter) BuildDataset(ctx context.Context, req Request) (*Dataset, error) {
	var prompt *model.SystemPrompt
	if req.IncludeSystemPrompt {
		p, err := e.store.ActiveSystemPrompt(ctx)
		if err != nil {
			return nil, fmt.Errorf("load active system prompt: %w", err)
		}
		prompt = p
	}

	conversations, err := e.store.ApprovedConversations(ctx, req.AgentID, req.Tag, req.ToolCallsOnly, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("load approved conversations: %w", err)
	}

	ds := &Dataset{}
	for i := range conversations {
		candidate := Compile(&conversations[i], prompt, req.Options)
		if findings := e.validator.Validate(candidate); len(findings) > 0 {
			e.logger.Debug("excluding invalid example",
				"conversation_id", conversations[i].ExternalID,
				"findings", findings,
			)
			ds.SkippedCount++
			continue
		}
		ds.Examples = append(ds.Examples, candidate)
	}

	ds.Warnings = ValidateDataset(ds.Examples)
	ds.TokenCount = CountTokens(ds.Examples)
	ds.EstimatedCost = EstimateTrainingCost(ds.TokenCount, DefaultEpochs)

	e.logger.Info("dataset built",
		"conversations", len(conversations),
		"examples", len(ds.Examples),
		"skipped", ds.SkippedCount,
		"tokens", ds.TokenCount,
	)

	return ds, nil
}

// LogExport appends the audit record for a delivered dataset and notifies
// listeners. Runs after the download is produced, so the audit trail can
// lag a delivered file.
func (e *Exporter) LogExport(ctx context.Context, ds *Dataset, exportedBy *uuid.UUID) error {
	entry := &model.ExportLog{
		ID:                uuid.New(),
		ExportedBy:        exportedBy,
		ConversationCount: len(ds.Examples),
		TokenCount:        ds.TokenCount,
		CreatedAt:         time.Now().UTC(),
	}
	if err := e.store.InsertExportLog(ctx, entry); err != nil {
		return fmt.Errorf("insert export log: %w", err)
	}

	if e.events != nil {
		if err := e.events.Publish(SubjectExportCompleted, map[string]any{
			"examples": len(ds.Examples),
			"tokens":   ds.TokenCount,
		}); err != nil {
			e.logger.Warn("failed to publish export event", "error", err)
		}
	}
	return nil
}
