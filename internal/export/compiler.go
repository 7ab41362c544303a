package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/abogushcoder/annotation-platform/internal/model"
)

// emptyResponsePlaceholder stands in for empty tool response bodies.
// Providers return empty bodies for confirmations, but the model has to
// see an outcome to learn from.
const emptyResponsePlaceholder = `{"status": "ok"}`

// Options controls what the compiler emits. All three default to true.
type Options struct {
	IncludeSystemPrompt bool
	IncludeTools        bool
	IncludeRAGContext   bool
}

func DefaultOptions() Options {
	return Options{
		IncludeSystemPrompt: true,
		IncludeTools:        true,
		IncludeRAGContext:   true,
	}
}

// Compile walks one conversation's turns in position order and produces a
// candidate training example. Logically-deleted turns and tool calls are
// skipped as if they never existed; annotator edits and weight overrides
// are honored; inserted turns export identically to ingested ones. The
// active system prompt is a caller-supplied read, keeping compilation a
// pure projection of persisted state.
func Compile(conv *model.Conversation, prompt *model.SystemPrompt, opts Options) Example {
	var messages []Message

	if opts.IncludeSystemPrompt && prompt != nil {
		messages = append(messages, Message{Role: "system", Content: prompt.Content})
	}

	turns := liveTurns(conv.Turns)
	ragIndex := buildRAGIndex(turns)

	callCounter := 0
	seenUser := false

	for i := range turns {
		turn := &turns[i]
		if turn.Role == model.RoleUser {
			seenUser = true
		}

		calls := liveToolCalls(turn.ToolCalls)

		if len(calls) > 0 {
			messages = append(messages, compileToolCallTurn(turn, calls, &callCounter, seenUser)...)
			continue
		}

		text := strings.TrimSpace(turn.EffectiveText())
		if text == "" {
			continue
		}

		if turn.Role == model.RoleUser {
			msg := Message{Role: "user", Content: text}
			if opts.IncludeRAGContext {
				msg.Content = injectContext(text, ragIndex[turn.Position])
			}
			messages = append(messages, msg)
			continue
		}

		msg := Message{Role: "assistant", Content: text}
		applyWeight(&msg, turn, seenUser)
		messages = append(messages, msg)
	}

	example := Example{Messages: messages, ParallelToolCalls: false}
	if example.Messages == nil {
		example.Messages = []Message{}
	}

	if opts.IncludeTools {
		example.Tools = toolSubset(turns)
	}

	return example
}

// compileToolCallTurn emits the single assistant message carrying the
// turn's tool_calls plus one tool response message per call, in call
// order, with synthesized sequential identifiers.
func compileToolCallTurn(turn *model.Turn, calls []model.ToolCall, callCounter *int, seenUser bool) []Message {
	entries := make([]MessageToolCall, 0, len(calls))
	responses := make([]Message, 0, len(calls))

	for i := range calls {
		*callCounter++
		callID := fmt.Sprintf("call_%03d", *callCounter)

		entries = append(entries, MessageToolCall{
			ID:   callID,
			Type: "function",
			Function: FunctionCall{
				Name:      calls[i].ToolName,
				Arguments: encodeArgs(calls[i].EffectiveArgs()),
			},
		})

		responses = append(responses, Message{
			Role:       "tool",
			ToolCallID: callID,
			Content:    encodeResponseBody(calls[i].ResponseBody),
		})
	}

	assistant := Message{Role: "assistant", ToolCalls: entries}
	if text := strings.TrimSpace(turn.EffectiveText()); text != "" {
		assistant.Content = text
	}
	applyWeight(&assistant, turn, seenUser)

	return append([]Message{assistant}, responses...)
}

// applyWeight copies an explicit per-turn override onto the message;
// without one, assistant messages before the first user turn are excluded
// from the loss (greetings are not responses to user input).
func applyWeight(msg *Message, turn *model.Turn, seenUser bool) {
	if turn.Weight != nil {
		w := *turn.Weight
		msg.Weight = &w
		return
	}
	if !seenUser {
		zero := 0
		msg.Weight = &zero
	}
}

func encodeArgs(args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func encodeResponseBody(body map[string]any) string {
	if len(body) == 0 {
		return emptyResponsePlaceholder
	}
	data, err := json.Marshal(body)
	if err != nil {
		return emptyResponsePlaceholder
	}
	return string(data)
}

// liveTurns returns the non-deleted turns in position order.
func liveTurns(turns []model.Turn) []model.Turn {
	live := make([]model.Turn, 0, len(turns))
	for _, t := range turns {
		if !t.IsDeleted {
			live = append(live, t)
		}
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].Position < live[j].Position })
	return live
}

func liveToolCalls(calls []model.ToolCall) []model.ToolCall {
	live := make([]model.ToolCall, 0, len(calls))
	for _, tc := range calls {
		if !tc.IsDeleted {
			live = append(live, tc)
		}
	}
	return live
}

// buildRAGIndex maps a user turn's position to the retrieval chunks of
// every later non-deleted agent turn up to the next user turn, so context
// retrieved while answering attaches to the question that triggered it.
// A single left-to-right scan with a "last seen user position" register;
// agent RAG with no preceding user turn at all contributes nothing.
func buildRAGIndex(turns []model.Turn) map[int][]model.RAGChunk {
	index := make(map[int][]model.RAGChunk)
	lastUserPos := -1
	for i := range turns {
		if turns[i].Role == model.RoleUser {
			lastUserPos = turns[i].Position
			continue
		}
		if len(turns[i].RAGContext) == 0 || lastUserPos < 0 {
			continue
		}
		index[lastUserPos] = append(index[lastUserPos], turns[i].RAGContext...)
	}
	return index
}

// injectContext appends the non-empty chunk contents to the user text as
// a Context block. Chunks whose fetch failed (empty content) are excluded;
// when none remain, the text is returned untouched.
func injectContext(text string, chunks []model.RAGChunk) string {
	var contents []string
	for _, c := range chunks {
		if c.Content != "" {
			contents = append(contents, c.Content)
		}
	}
	if len(contents) == 0 {
		return text
	}
	return text + "\n\nContext:\n" + strings.Join(contents, "\n\n")
}

// toolSubset returns the catalog entries for tools actually invoked by
// non-deleted calls, in catalog order. No calls means no tools field.
func toolSubset(turns []model.Turn) []ToolDefinition {
	used := make(map[string]bool)
	for i := range turns {
		for _, tc := range liveToolCalls(turns[i].ToolCalls) {
			used[tc.ToolName] = true
		}
	}
	if len(used) == 0 {
		return nil
	}

	var subset []ToolDefinition
	for _, def := range ToolCatalog {
		if used[def.Function.Name] {
			subset = append(subset, def)
		}
	}
	return subset
}
