package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MaxExampleTokens is the default per-example token ceiling. The estimate
// divides serialized length by three, a deliberately pessimistic rate for
// JSON-heavy content.
const MaxExampleTokens = 65536

// Validator structurally checks compiled examples against the training
// schema's hard constraints. Findings are descriptive strings, not
// errors: an example with any finding is silently excluded from the
// dataset, never partially fixed up.
type Validator struct {
	MaxTokens int
}

func NewValidator(maxTokens int) *Validator {
	if maxTokens <= 0 {
		maxTokens = MaxExampleTokens
	}
	return &Validator{MaxTokens: maxTokens}
}

// Validate collects every violation in the example. All checks run
// independently except the empty-message-list case, which short-circuits.
func (v *Validator) Validate(example Example) []string {
	var errs []string
	msgs := example.Messages

	if len(msgs) == 0 {
		return []string{"No messages"}
	}

	hasUser, hasAssistant := false, false
	for _, m := range msgs {
		switch m.Role {
		case "user":
			hasUser = true
		case "assistant":
			hasAssistant = true
		}
	}
	if !hasUser {
		errs = append(errs, "Missing user message")
	}
	if !hasAssistant {
		errs = append(errs, "Missing assistant message")
	}

	// The model has to learn a final response: an example cannot end
	// expecting more input or on an unconsumed tool result.
	if last := msgs[len(msgs)-1]; last.Role != "assistant" {
		errs = append(errs, fmt.Sprintf("Last message must be assistant (got %s)", last.Role))
	}

	if serialized, err := json.Marshal(example); err == nil {
		estimated := len(serialized) / 3
		if estimated > v.MaxTokens {
			errs = append(errs, fmt.Sprintf("Example exceeds token limit (~%d tokens, max %d)", estimated, v.MaxTokens))
		}
	}

	seenIDs := make(map[string]bool)
	pending := make(map[string]bool)

	for i, msg := range msgs {
		if i == 0 && msg.Role != "system" && msg.Role != "user" {
			errs = append(errs, "First message must be system or user")
		}

		if (msg.Role == "user" || msg.Role == "system") && strings.TrimSpace(msg.Content) == "" {
			errs = append(errs, fmt.Sprintf("Empty content in %s message", msg.Role))
		}

		switch {
		case len(msg.ToolCalls) > 0:
			// A new block before the previous one fully resolved is an
			// ordering violation.
			if len(pending) > 0 {
				errs = append(errs, fmt.Sprintf("Unmatched tool_call_ids: %s", joinIDs(pending)))
				pending = make(map[string]bool)
			}

			for _, tc := range msg.ToolCalls {
				if seenIDs[tc.ID] {
					errs = append(errs, fmt.Sprintf("Duplicate tool_call_id: %s", tc.ID))
				}
				seenIDs[tc.ID] = true
				pending[tc.ID] = true

				if !json.Valid([]byte(tc.Function.Arguments)) {
					errs = append(errs, fmt.Sprintf("Invalid JSON args in %s", tc.Function.Name))
				}
			}

		case msg.Role == "tool":
			if len(pending) == 0 {
				errs = append(errs, "Orphaned tool response (no preceding tool_calls)")
			} else if !pending[msg.ToolCallID] {
				errs = append(errs, fmt.Sprintf("tool_call_id '%s' not in preceding tool_calls", msg.ToolCallID))
			} else {
				delete(pending, msg.ToolCallID)
			}
			if strings.TrimSpace(msg.Content) == "" {
				errs = append(errs, "Empty content in tool response")
			}

		default:
			if len(pending) > 0 {
				errs = append(errs, fmt.Sprintf("Unmatched tool_call_ids: %s", joinIDs(pending)))
				pending = make(map[string]bool)
			}
		}
	}

	if len(pending) > 0 {
		errs = append(errs, fmt.Sprintf("Unmatched tool_call_ids at end: %s", joinIDs(pending)))
	}

	return errs
}

func joinIDs(ids map[string]bool) string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
