package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/abogushcoder/annotation-platform/internal/model"
)

// ConversationExists reports whether a provider conversation id has
// already been imported.
func (s *Store) ConversationExists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE external_id = $1)`,
		externalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check conversation: %w", err)
	}
	return exists, nil
}

// CreateConversation writes a conversation with its turns and tool calls
// in one transaction. A unique-violation on the external id surfaces as
// ErrDuplicate so a concurrent sync of the same agent stays idempotent.
func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.Status == "" {
		conv.Status = model.StatusUnassigned
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, external_id, agent_id, status, call_duration_secs, call_timestamp, has_audio, raw_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`,
		conv.ID, conv.ExternalID, conv.AgentID, conv.Status,
		conv.CallDurationSecs, conv.CallTimestamp, conv.HasAudio, conv.RawData,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", asDuplicate(err))
	}

	for i := range conv.Turns {
		turn := &conv.Turns[i]
		if turn.ID == uuid.Nil {
			turn.ID = uuid.New()
		}
		turn.ConversationID = conv.ID

		_, err = tx.Exec(ctx, `
			INSERT INTO turns (id, conversation_id, position, role, original_text, time_in_call_secs, rag_context)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			turn.ID, conv.ID, turn.Position, turn.Role, turn.OriginalText, turn.TimeInCallSecs, turn.RAGContext,
		)
		if err != nil {
			return fmt.Errorf("insert turn %d: %w", turn.Position, err)
		}

		for j := range turn.ToolCalls {
			call := &turn.ToolCalls[j]
			if call.ID == uuid.Nil {
				call.ID = uuid.New()
			}
			call.TurnID = turn.ID

			_, err = tx.Exec(ctx, `
				INSERT INTO tool_calls (id, turn_id, tool_name, original_args, status_code, response_body, error_message)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				call.ID, turn.ID, call.ToolName, call.OriginalArgs, call.StatusCode, call.ResponseBody, call.ErrorMessage,
			)
			if err != nil {
				return fmt.Errorf("insert tool call %s: %w", call.ToolName, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetConversation fetches one conversation with turns and tool calls
// hydrated in position order.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, external_id, agent_id, assigned_to, status, call_duration_secs, call_timestamp, has_audio,
		       tags, annotator_notes, reviewer_notes, created_at, updated_at, completed_at, reviewed_at
		FROM conversations WHERE id = $1`, id)

	var conv model.Conversation
	err := row.Scan(&conv.ID, &conv.ExternalID, &conv.AgentID, &conv.AssignedTo, &conv.Status,
		&conv.CallDurationSecs, &conv.CallTimestamp, &conv.HasAudio,
		&conv.Tags, &conv.AnnotatorNotes, &conv.ReviewerNotes,
		&conv.CreatedAt, &conv.UpdatedAt, &conv.CompletedAt, &conv.ReviewedAt)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if err := s.hydrate(ctx, []*model.Conversation{&conv}); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ApprovedConversations lists export candidates: approved conversations,
// optionally filtered by agent, tag, and presence of surviving tool
// calls, hydrated in position order. limit <= 0 means no limit.
func (s *Store) ApprovedConversations(ctx context.Context, agentID *uuid.UUID, tag string, toolCallsOnly bool, limit int) ([]model.Conversation, error) {
	query := `
		SELECT c.id, c.external_id, c.agent_id, c.assigned_to, c.status, c.call_duration_secs, c.call_timestamp, c.has_audio,
		       c.tags, c.annotator_notes, c.reviewer_notes, c.created_at, c.updated_at, c.completed_at, c.reviewed_at
		FROM conversations c
		WHERE c.status = 'approved'`
	args := []any{}

	if agentID != nil {
		args = append(args, *agentID)
		query += fmt.Sprintf(" AND c.agent_id = $%d", len(args))
	}
	if tag != "" {
		args = append(args, tag)
		query += fmt.Sprintf(" AND $%d = ANY(c.tags)", len(args))
	}
	if toolCallsOnly {
		query += `
		AND EXISTS (
			SELECT 1 FROM turns t JOIN tool_calls tc ON tc.turn_id = t.id
			WHERE t.conversation_id = c.id AND NOT t.is_deleted AND NOT tc.is_deleted
		)`
	}

	query += " ORDER BY c.created_at"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list approved conversations: %w", err)
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		err := rows.Scan(&conv.ID, &conv.ExternalID, &conv.AgentID, &conv.AssignedTo, &conv.Status,
			&conv.CallDurationSecs, &conv.CallTimestamp, &conv.HasAudio,
			&conv.Tags, &conv.AnnotatorNotes, &conv.ReviewerNotes,
			&conv.CreatedAt, &conv.UpdatedAt, &conv.CompletedAt, &conv.ReviewedAt)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*model.Conversation, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := s.hydrate(ctx, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

// hydrate loads turns and tool calls for the given conversations in bulk
// and attaches them in position order.
func (s *Store) hydrate(ctx context.Context, convs []*model.Conversation) error {
	if len(convs) == 0 {
		return nil
	}

	byConv := make(map[uuid.UUID]*model.Conversation, len(convs))
	ids := make([]uuid.UUID, 0, len(convs))
	for _, c := range convs {
		byConv[c.ID] = c
		ids = append(ids, c.ID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, position, role, original_text, edited_text, time_in_call_secs,
		       is_edited, is_deleted, is_inserted, weight, rag_context
		FROM turns WHERE conversation_id = ANY($1) ORDER BY conversation_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t model.Turn
		err := rows.Scan(&t.ID, &t.ConversationID, &t.Position, &t.Role, &t.OriginalText, &t.EditedText,
			&t.TimeInCallSecs, &t.IsEdited, &t.IsDeleted, &t.IsInserted, &t.Weight, &t.RAGContext)
		if err != nil {
			return fmt.Errorf("scan turn: %w", err)
		}
		conv := byConv[t.ConversationID]
		conv.Turns = append(conv.Turns, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Index turns only after all appends: appending reallocates slices.
	byTurn := make(map[uuid.UUID]*model.Turn)
	for _, c := range convs {
		for i := range c.Turns {
			byTurn[c.Turns[i].ID] = &c.Turns[i]
		}
	}

	callRows, err := s.pool.Query(ctx, `
		SELECT tc.id, tc.turn_id, tc.tool_name, tc.original_args, tc.edited_args, tc.status_code,
		       tc.response_body, tc.error_message, tc.is_edited, tc.is_deleted
		FROM tool_calls tc JOIN turns t ON t.id = tc.turn_id
		WHERE t.conversation_id = ANY($1) ORDER BY t.conversation_id, t.position, tc.id`, ids)
	if err != nil {
		return fmt.Errorf("load tool calls: %w", err)
	}
	defer callRows.Close()

	for callRows.Next() {
		var tc model.ToolCall
		err := callRows.Scan(&tc.ID, &tc.TurnID, &tc.ToolName, &tc.OriginalArgs, &tc.EditedArgs,
			&tc.StatusCode, &tc.ResponseBody, &tc.ErrorMessage, &tc.IsEdited, &tc.IsDeleted)
		if err != nil {
			return fmt.Errorf("scan tool call: %w", err)
		}
		if turn, ok := byTurn[tc.TurnID]; ok {
			turn.ToolCalls = append(turn.ToolCalls, tc)
		}
	}
	return callRows.Err()
}

// SetConversationStatus moves a conversation through the review workflow.
func (s *Store) SetConversationStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET status = $1, updated_at = now(),
		       completed_at = CASE WHEN $1 = 'completed' THEN now() ELSE completed_at END,
		       reviewed_at  = CASE WHEN $1 IN ('approved', 'rejected') THEN now() ELSE reviewed_at END
		WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AssignConversation hands a conversation to an annotator.
func (s *Store) AssignConversation(ctx context.Context, id uuid.UUID, annotator *uuid.UUID) error {
	status := model.StatusAssigned
	if annotator == nil {
		status = model.StatusUnassigned
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations SET assigned_to = $1, status = $2, updated_at = now() WHERE id = $3`,
		annotator, status, id)
	if err != nil {
		return fmt.Errorf("assign conversation: %w", err)
	}
	return nil
}

// UpdateTurnText stores an annotator edit. The original text is never
// overwritten; export reads the edited text only while is_edited holds.
func (s *Store) UpdateTurnText(ctx context.Context, turnID uuid.UUID, text string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE turns SET edited_text = $1, is_edited = TRUE WHERE id = $2`, text, turnID)
	if err != nil {
		return fmt.Errorf("update turn text: %w", err)
	}
	return nil
}

// RevertTurnText drops an edit, restoring the original transcript text.
func (s *Store) RevertTurnText(ctx context.Context, turnID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE turns SET edited_text = '', is_edited = FALSE WHERE id = $1`, turnID)
	if err != nil {
		return fmt.Errorf("revert turn text: %w", err)
	}
	return nil
}

// SetTurnDeleted soft-deletes or restores a turn.
func (s *Store) SetTurnDeleted(ctx context.Context, turnID uuid.UUID, deleted bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE turns SET is_deleted = $1 WHERE id = $2`, deleted, turnID)
	if err != nil {
		return fmt.Errorf("set turn deleted: %w", err)
	}
	return nil
}

// SetTurnWeight sets or clears (nil) the training-weight override.
func (s *Store) SetTurnWeight(ctx context.Context, turnID uuid.UUID, weight *int) error {
	_, err := s.pool.Exec(ctx, `UPDATE turns SET weight = $1 WHERE id = $2`, weight, turnID)
	if err != nil {
		return fmt.Errorf("set turn weight: %w", err)
	}
	return nil
}

// InsertTurn adds an annotator-authored turn at the given position,
// shifting later turns up. The position unique constraint is deferred to
// commit so the shift and the insert land atomically.
func (s *Store) InsertTurn(ctx context.Context, conversationID uuid.UUID, position int, role, text string) (*model.Turn, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SET CONSTRAINTS turns_conversation_position_key DEFERRED`); err != nil {
		return nil, fmt.Errorf("defer position constraint: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE turns SET position = position + 1
		WHERE conversation_id = $1 AND position >= $2`, conversationID, position)
	if err != nil {
		return nil, fmt.Errorf("shift positions: %w", err)
	}

	turn := &model.Turn{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Position:       position,
		Role:           role,
		OriginalText:   text,
		IsInserted:     true,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO turns (id, conversation_id, position, role, original_text, is_inserted)
		VALUES ($1, $2, $3, $4, $5, TRUE)`,
		turn.ID, conversationID, position, role, text,
	)
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return turn, nil
}

// UpdateToolCallArgs stores annotator-corrected arguments.
func (s *Store) UpdateToolCallArgs(ctx context.Context, callID uuid.UUID, args map[string]any) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tool_calls SET edited_args = $1, is_edited = TRUE WHERE id = $2`, args, callID)
	if err != nil {
		return fmt.Errorf("update tool call args: %w", err)
	}
	return nil
}

// SetToolCallDeleted soft-deletes or restores a tool call.
func (s *Store) SetToolCallDeleted(ctx context.Context, callID uuid.UUID, deleted bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE tool_calls SET is_deleted = $1 WHERE id = $2`, deleted, callID)
	if err != nil {
		return fmt.Errorf("set tool call deleted: %w", err)
	}
	return nil
}
