package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abogushcoder/annotation-platform/internal/elevenlabs"
	"github.com/abogushcoder/annotation-platform/internal/model"
)

// reservedArgPrefix marks provider-internal argument keys (injected call
// metadata) that must never reach the training data.
const reservedArgPrefix = "__"

// ChunkFetcher fetches knowledge-base chunk content during normalization.
type ChunkFetcher interface {
	GetKBChunk(ctx context.Context, documentID, chunkID string) (*elevenlabs.KBChunk, error)
}

// rawDetail is the provider's conversation detail payload. Only the fields
// the normalizer consumes are declared; the full body is retained verbatim
// on the conversation row.
type rawDetail struct {
	Metadata struct {
		StartTimeUnixSecs int64 `json:"start_time_unix_secs"`
		CallDurationSecs  *int  `json:"call_duration_secs"`
	} `json:"metadata"`
	HasAudio   bool                 `json:"has_audio"`
	Transcript []rawTranscriptEntry `json:"transcript"`
}

type rawTranscriptEntry struct {
	Role           string          `json:"role"`
	Message        string          `json:"message"`
	TimeInCallSecs *float64        `json:"time_in_call_secs"`
	ToolCalls      []rawToolCall   `json:"tool_calls"`
	ToolResults    []rawToolResult `json:"tool_results"`
	RAGInfo        *rawRAGInfo     `json:"rag_retrieval_info"`
}

// rawToolCall carries every encoding of the call arguments the provider
// has ever emitted. Resolution order is defined by argSources below.
type rawToolCall struct {
	ToolName           string          `json:"tool_name"`
	RequestID          string          `json:"request_id"`
	ParamsJSON         json.RawMessage `json:"params_json"`
	ToolDetails        *rawToolDetails `json:"tool_details"`
	Params             map[string]any  `json:"params"`
	RequestHeadersBody string          `json:"request_headers_body"`
	StatusCode         *int            `json:"status_code"`
	ResponseBody       json.RawMessage `json:"response_body"`
	ErrorMessage       string          `json:"error_message"`
}

type rawToolDetails struct {
	Body string `json:"body"`
}

// rawToolResult is a result record the provider emits at turn level,
// separate from the call it answers.
type rawToolResult struct {
	RequestID   string          `json:"request_id"`
	ResultValue json.RawMessage `json:"result_value"`
	IsError     bool            `json:"is_error"`
}

type rawRAGInfo struct {
	Chunks []rawRAGChunk `json:"chunks"`
}

type rawRAGChunk struct {
	DocumentID     string   `json:"document_id"`
	ChunkID        string   `json:"chunk_id"`
	VectorDistance *float64 `json:"vector_distance"`
}

// argSource is one extractor in the ordered argument-resolution chain.
// The first source yielding a non-empty structured result wins; parse
// failures fall through to the next source.
type argSource struct {
	name    string
	extract func(rc rawToolCall) map[string]any
}

var argSources = []argSource{
	{"params_json", func(rc rawToolCall) map[string]any {
		return parseJSONObject(rc.ParamsJSON)
	}},
	{"tool_details.body", func(rc rawToolCall) map[string]any {
		if rc.ToolDetails == nil {
			return nil
		}
		return parseJSONObjectString(rc.ToolDetails.Body)
	}},
	{"params", func(rc rawToolCall) map[string]any {
		return rc.Params
	}},
	{"request_headers_body", func(rc rawToolCall) map[string]any {
		return parseJSONObjectString(rc.RequestHeadersBody)
	}},
}

// Normalized is the canonical form of one provider conversation, ready
// for a single transactional write.
type Normalized struct {
	ExternalID       string
	CallTimestamp    *time.Time
	CallDurationSecs *int
	HasAudio         bool
	RawData          []byte
	Turns            []model.Turn
	ChunkFetchErrors int
}

// Normalizer maps a raw provider transcript into canonical turns, tool
// calls, and RAG context.
type Normalizer struct {
	chunks ChunkFetcher
	logger *slog.Logger
}

func NewNormalizer(chunks ChunkFetcher, logger *slog.Logger) *Normalizer {
	return &Normalizer{chunks: chunks, logger: logger}
}

// Normalize converts one conversation's raw detail payload. A chunk fetch
// failure is recorded inline on the chunk and tallied, never fatal; only a
// malformed detail payload aborts the conversation.
func (n *Normalizer) Normalize(ctx context.Context, conversationID string, raw json.RawMessage) (*Normalized, error) {
	var detail rawDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, fmt.Errorf("parse conversation detail: %w", err)
	}

	out := &Normalized{
		ExternalID:       conversationID,
		CallDurationSecs: detail.Metadata.CallDurationSecs,
		HasAudio:         detail.HasAudio,
		RawData:          raw,
	}
	if detail.Metadata.StartTimeUnixSecs > 0 {
		ts := time.Unix(detail.Metadata.StartTimeUnixSecs, 0).UTC()
		out.CallTimestamp = &ts
	}

	// Results are emitted as separate turn-level records, so the lookup
	// map has to span the entire transcript, not just the call's turn.
	results := collectToolResults(detail.Transcript)

	for position, entry := range detail.Transcript {
		role := entry.Role
		if role != model.RoleUser && role != model.RoleAgent {
			role = model.RoleUser
		}

		turn := model.Turn{
			Position:       position,
			Role:           role,
			OriginalText:   entry.Message,
			TimeInCallSecs: entry.TimeInCallSecs,
		}

		if entry.RAGInfo != nil {
			turn.RAGContext = n.fetchRAGChunks(ctx, conversationID, position, entry.RAGInfo.Chunks, &out.ChunkFetchErrors)
		}

		for _, rc := range entry.ToolCalls {
			turn.ToolCalls = append(turn.ToolCalls, normalizeToolCall(rc, results))
		}

		out.Turns = append(out.Turns, turn)
	}

	return out, nil
}

func (n *Normalizer) fetchRAGChunks(ctx context.Context, conversationID string, position int, chunks []rawRAGChunk, fetchErrors *int) []model.RAGChunk {
	var out []model.RAGChunk
	for _, meta := range chunks {
		// Chunks missing either id cannot be fetched and are skipped.
		if meta.DocumentID == "" || meta.ChunkID == "" {
			continue
		}

		chunk := model.RAGChunk{
			DocumentID:     meta.DocumentID,
			ChunkID:        meta.ChunkID,
			VectorDistance: meta.VectorDistance,
		}

		fetched, err := n.chunks.GetKBChunk(ctx, meta.DocumentID, meta.ChunkID)
		if err != nil {
			n.logger.Warn("failed to fetch KB chunk",
				"conversation_id", conversationID,
				"position", position,
				"document_id", meta.DocumentID,
				"chunk_id", meta.ChunkID,
				"error", err,
			)
			chunk.FetchError = err.Error()
			*fetchErrors++
		} else {
			chunk.Content = fetched.Content
		}

		out = append(out, chunk)
	}
	return out
}

func normalizeToolCall(rc rawToolCall, results map[string]map[string]any) model.ToolCall {
	name := rc.ToolName
	if name == "" {
		name = "unknown"
	}

	args := resolveArgs(rc)

	response := map[string]any{}
	if matched, ok := results[rc.RequestID]; ok && rc.RequestID != "" {
		response = matched
	} else if legacy := parseResponseValue(rc.ResponseBody); legacy != nil {
		response = legacy
	}

	return model.ToolCall{
		ToolName:     name,
		OriginalArgs: args,
		StatusCode:   rc.StatusCode,
		ResponseBody: response,
		ErrorMessage: rc.ErrorMessage,
	}
}

// resolveArgs walks the ordered source chain and returns the first
// non-empty structured result, with reserved-prefix keys stripped.
// All sources empty or unparseable yields an empty map.
func resolveArgs(rc rawToolCall) map[string]any {
	for _, src := range argSources {
		args := src.extract(rc)
		if len(args) == 0 {
			continue
		}
		return stripReservedKeys(args)
	}
	return map[string]any{}
}

func stripReservedKeys(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if strings.HasPrefix(k, reservedArgPrefix) {
			continue
		}
		out[k] = v
	}
	return out
}

func collectToolResults(transcript []rawTranscriptEntry) map[string]map[string]any {
	results := make(map[string]map[string]any)
	for _, entry := range transcript {
		for _, res := range entry.ToolResults {
			if res.RequestID == "" {
				continue
			}
			if parsed := parseResponseValue(res.ResultValue); parsed != nil {
				results[res.RequestID] = parsed
			}
		}
	}
	return results
}

// parseResponseValue decodes a result value that can arrive either as an
// already-structured object or as JSON text. Text that fails to parse is
// preserved under a "raw" key rather than dropped.
func parseResponseValue(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}

	if obj := parseJSONObject(raw); obj != nil {
		return obj
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil || text == "" {
		return nil
	}
	if obj := parseJSONObjectString(text); obj != nil {
		return obj
	}
	return map[string]any{"raw": text}
}

func parseJSONObject(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

func parseJSONObjectString(s string) map[string]any {
	if s == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}
	return obj
}
