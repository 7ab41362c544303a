package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/abogushcoder/annotation-platform/internal/elevenlabs"
)

type fakeChunkFetcher struct {
	chunks map[string]string // "doc/chunk" → content
	fails  map[string]error  // "doc/chunk" → error
	calls  int
}

func (f *fakeChunkFetcher) GetKBChunk(_ context.Context, documentID, chunkID string) (*elevenlabs.KBChunk, error) {
	f.calls++
	key := documentID + "/" + chunkID
	if err, ok := f.fails[key]; ok {
		return nil, err
	}
	return &elevenlabs.KBChunk{Content: f.chunks[key]}, nil
}

func testNormalizer(f *fakeChunkFetcher) *Normalizer {
	if f == nil {
		f = &fakeChunkFetcher{}
	}
	return NewNormalizer(f, slog.Default())
}

func TestNormalize_RoleCoercionAndText(t *testing.T) {
	raw := json.RawMessage(`{"transcript":[
		{"role":"agent","message":"Welcome!"},
		{"role":"user","message":"Hi"},
		{"role":"system"},
		{"role":"tool_output","message":"..."}
	]}`)

	n := testNormalizer(nil)
	out, err := n.Normalize(context.Background(), "conv_roles", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.Turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(out.Turns))
	}
	if out.Turns[0].Role != "agent" || out.Turns[1].Role != "user" {
		t.Errorf("known roles must pass through, got %q %q", out.Turns[0].Role, out.Turns[1].Role)
	}
	// Unknown roles default to user instead of rejecting the entry.
	if out.Turns[2].Role != "user" || out.Turns[3].Role != "user" {
		t.Errorf("unknown roles must coerce to user, got %q %q", out.Turns[2].Role, out.Turns[3].Role)
	}
	if out.Turns[2].OriginalText != "" {
		t.Errorf("missing message must default to empty string, got %q", out.Turns[2].OriginalText)
	}
	for i, turn := range out.Turns {
		if turn.Position != i {
			t.Errorf("turn %d has position %d", i, turn.Position)
		}
	}
}

func TestNormalize_ArgResolutionPrecedence(t *testing.T) {
	tests := []struct {
		name string
		call string
		want map[string]any
	}{
		{
			name: "params_json wins over all others",
			call: `{"tool_name":"create_order",
				"params_json":{"source":"params_json"},
				"tool_details":{"body":"{\"source\":\"body\"}"},
				"params":{"source":"params"},
				"request_headers_body":"{\"source\":\"raw\"}"}`,
			want: map[string]any{"source": "params_json"},
		},
		{
			name: "tool_details body beats legacy fields",
			call: `{"tool_name":"create_order",
				"tool_details":{"body":"{\"source\":\"body\"}"},
				"params":{"source":"params"},
				"request_headers_body":"{\"source\":\"raw\"}"}`,
			want: map[string]any{"source": "body"},
		},
		{
			name: "legacy params beats raw body",
			call: `{"tool_name":"create_order",
				"params":{"source":"params"},
				"request_headers_body":"{\"source\":\"raw\"}"}`,
			want: map[string]any{"source": "params"},
		},
		{
			name: "raw body is the last resort",
			call: `{"tool_name":"create_order",
				"request_headers_body":"{\"source\":\"raw\"}"}`,
			want: map[string]any{"source": "raw"},
		},
		{
			name: "unparseable body falls through to next source",
			call: `{"tool_name":"create_order",
				"tool_details":{"body":"not json"},
				"params":{"source":"params"}}`,
			want: map[string]any{"source": "params"},
		},
		{
			name: "all sources empty yields empty map",
			call: `{"tool_name":"create_order","request_headers_body":"{{nope"}`,
			want: map[string]any{},
		},
		{
			name: "reserved prefix keys are stripped",
			call: `{"tool_name":"create_order",
				"params_json":{"customerName":"John","__conversation_id":"conv_1","__call_sid":"x"}}`,
			want: map[string]any{"customerName": "John"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := json.RawMessage(fmt.Sprintf(
				`{"transcript":[{"role":"agent","message":"ok","tool_calls":[%s]}]}`, tt.call))

			out, err := testNormalizer(nil).Normalize(context.Background(), "conv_args", raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(out.Turns) != 1 || len(out.Turns[0].ToolCalls) != 1 {
				t.Fatalf("expected one turn with one tool call")
			}

			got := out.Turns[0].ToolCalls[0].OriginalArgs
			if len(got) != len(tt.want) {
				t.Fatalf("args = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("args[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestNormalize_ToolResultMatchedAcrossTranscript(t *testing.T) {
	// The result record lives in a later transcript entry, keyed by
	// request id; it must still attach to the call.
	raw := json.RawMessage(`{"transcript":[
		{"role":"agent","message":"Placing order","tool_calls":[
			{"tool_name":"create_order","request_id":"req-1","params":{"customerName":"John"}}
		]},
		{"role":"user","tool_results":[
			{"request_id":"req-1","result_value":"{\"success\":true,\"orderId\":\"ORD-1\"}"}
		]}
	]}`)

	out, err := testNormalizer(nil).Normalize(context.Background(), "conv_results", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc := out.Turns[0].ToolCalls[0]
	if tc.ResponseBody["success"] != true {
		t.Errorf("expected matched result body, got %v", tc.ResponseBody)
	}
	if tc.ResponseBody["orderId"] != "ORD-1" {
		t.Errorf("expected orderId ORD-1, got %v", tc.ResponseBody["orderId"])
	}
}

func TestNormalize_ToolResultStructuredAndFallback(t *testing.T) {
	raw := json.RawMessage(`{"transcript":[
		{"role":"agent","tool_calls":[
			{"tool_name":"get_specials","request_id":"req-structured"},
			{"tool_name":"cancel_order","response_body":"{\"cancelled\":true}"},
			{"tool_name":"end_call"}
		],"tool_results":[
			{"request_id":"req-structured","result_value":{"specials":["margherita"]}}
		]}
	]}`)

	out, err := testNormalizer(nil).Normalize(context.Background(), "conv_fallback", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := out.Turns[0].ToolCalls

	// Already-structured result used as-is.
	if _, ok := calls[0].ResponseBody["specials"]; !ok {
		t.Errorf("structured result not attached: %v", calls[0].ResponseBody)
	}
	// No matching result record: legacy flat response_body is the fallback.
	if calls[1].ResponseBody["cancelled"] != true {
		t.Errorf("legacy response_body not used: %v", calls[1].ResponseBody)
	}
	// Nothing anywhere: empty map, not nil.
	if calls[2].ResponseBody == nil || len(calls[2].ResponseBody) != 0 {
		t.Errorf("expected empty response body, got %v", calls[2].ResponseBody)
	}
}

func TestNormalize_RAGChunks(t *testing.T) {
	fetcher := &fakeChunkFetcher{
		chunks: map[string]string{"doc1/c1": "Menu says margherita."},
		fails:  map[string]error{"doc1/c2": fmt.Errorf("chunk service unavailable")},
	}
	raw := json.RawMessage(`{"transcript":[
		{"role":"agent","message":"We have margherita.","rag_retrieval_info":{"chunks":[
			{"document_id":"doc1","chunk_id":"c1","vector_distance":0.12},
			{"document_id":"doc1","chunk_id":"c2"},
			{"document_id":"","chunk_id":"c3"},
			{"document_id":"doc1","chunk_id":""}
		]}}
	]}`)

	out, err := testNormalizer(fetcher).Normalize(context.Background(), "conv_rag", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks := out.Turns[0].RAGContext
	// Chunks missing either id are silently skipped, never fetched.
	if len(chunks) != 2 {
		t.Fatalf("expected 2 retained chunks, got %d", len(chunks))
	}
	if fetcher.calls != 2 {
		t.Errorf("expected 2 fetches, got %d", fetcher.calls)
	}

	if chunks[0].Content != "Menu says margherita." {
		t.Errorf("chunk 0 content = %q", chunks[0].Content)
	}
	if chunks[0].VectorDistance == nil || *chunks[0].VectorDistance != 0.12 {
		t.Errorf("chunk 0 distance = %v", chunks[0].VectorDistance)
	}

	// A failed fetch keeps the chunk with empty content plus the error
	// string, and the import still succeeds.
	if chunks[1].Content != "" {
		t.Errorf("failed chunk content = %q, want empty", chunks[1].Content)
	}
	if chunks[1].FetchError == "" {
		t.Errorf("failed chunk should record fetch error")
	}
	if chunks[1].VectorDistance != nil {
		t.Errorf("missing distance must stay nil, got %v", chunks[1].VectorDistance)
	}
	if out.ChunkFetchErrors != 1 {
		t.Errorf("ChunkFetchErrors = %d, want 1", out.ChunkFetchErrors)
	}
}

func TestNormalize_Metadata(t *testing.T) {
	raw := json.RawMessage(`{
		"metadata":{"start_time_unix_secs":1756400000,"call_duration_secs":95},
		"has_audio":true,
		"transcript":[{"role":"user","message":"Hi"}]
	}`)

	out, err := testNormalizer(nil).Normalize(context.Background(), "conv_meta", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.CallTimestamp == nil || out.CallTimestamp.Unix() != 1756400000 {
		t.Errorf("call timestamp = %v", out.CallTimestamp)
	}
	if out.CallDurationSecs == nil || *out.CallDurationSecs != 95 {
		t.Errorf("call duration = %v", out.CallDurationSecs)
	}
	if !out.HasAudio {
		t.Errorf("expected has_audio true")
	}
	if len(out.RawData) == 0 {
		t.Errorf("raw payload must be retained")
	}
}

func TestNormalize_MalformedDetail(t *testing.T) {
	_, err := testNormalizer(nil).Normalize(context.Background(), "conv_bad", json.RawMessage(`{notjson`))
	if err == nil {
		t.Fatal("expected error for malformed detail payload")
	}
}
