package elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const DefaultBaseURL = "https://api.elevenlabs.io/v1/convai"

// Client is a read-only client for the conversational-AI provider API.
// API keys are per-agent workspace keys.
type Client struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	chunkClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		// KB chunk fetches happen once per RAG chunk during sync; keep
		// the timeout short so one slow chunk cannot stall an import.
		chunkClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// AgentSummary is one entry from the agent listing.
type AgentSummary struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

// AgentConfig is the full agent configuration, used to seed a system prompt.
type AgentConfig struct {
	AgentID            string `json:"agent_id"`
	Name               string `json:"name"`
	ConversationConfig struct {
		Agent struct {
			Prompt struct {
				Prompt string `json:"prompt"`
			} `json:"prompt"`
		} `json:"agent"`
	} `json:"conversation_config"`
}

// ConversationSummary is one entry from the paginated conversation listing.
type ConversationSummary struct {
	ConversationID string `json:"conversation_id"`
	StartTimeUnix  int64  `json:"start_time_unix_secs"`
	CallDuration   int    `json:"call_duration_secs"`
}

// ConversationPage is one page of the conversation listing, with the
// opaque continuation cursor (empty on the last page).
type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	Cursor        string                `json:"cursor"`
}

// KBChunk is the content of one knowledge-base chunk.
type KBChunk struct {
	Content string `json:"content"`
}

type errorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// ListAgents fetches all agents visible to the API key's workspace.
func (c *Client) ListAgents(ctx context.Context) ([]AgentSummary, error) {
	var page struct {
		Agents []AgentSummary `json:"agents"`
	}
	if err := c.getJSON(ctx, c.client, "/agents", nil, &page); err != nil {
		return nil, err
	}
	return page.Agents, nil
}

// GetAgent fetches one agent's full configuration, including its prompt.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*AgentConfig, error) {
	var cfg AgentConfig
	if err := c.getJSON(ctx, c.client, "/agents/"+url.PathEscape(agentID), nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListConversations fetches one page of an agent's conversations. Pass the
// cursor from the previous page to continue; an empty returned cursor ends
// the listing.
func (c *Client) ListConversations(ctx context.Context, agentID string, pageSize int, cursor string) (*ConversationPage, error) {
	params := url.Values{}
	params.Set("agent_id", agentID)
	params.Set("page_size", strconv.Itoa(pageSize))
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	var page ConversationPage
	if err := c.getJSON(ctx, c.client, "/conversations", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetConversation fetches one conversation's full detail, transcript
// included. The payload is returned raw: the ingestion normalizer owns
// the schema, and the whole body is retained on the conversation row.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (json.RawMessage, error) {
	body, err := c.get(ctx, c.client, "/conversations/"+url.PathEscape(conversationID), nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// GetConversationAudio fetches the recorded call audio.
func (c *Client) GetConversationAudio(ctx context.Context, conversationID string) ([]byte, error) {
	return c.get(ctx, c.client, "/conversations/"+url.PathEscape(conversationID)+"/audio", nil)
}

// GetKBChunk fetches one knowledge-base chunk's content by document and
// chunk id.
func (c *Client) GetKBChunk(ctx context.Context, documentID, chunkID string) (*KBChunk, error) {
	path := "/knowledge-base/" + url.PathEscape(documentID) + "/chunk/" + url.PathEscape(chunkID)
	var chunk KBChunk
	if err := c.getJSON(ctx, c.chunkClient, path, nil, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (c *Client) getJSON(ctx context.Context, hc *http.Client, path string, params url.Values, out any) error {
	body, err := c.get(ctx, hc, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, hc *http.Client, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
			return nil, fmt.Errorf("api error %d: %s — %s", resp.StatusCode, errResp.Detail.Status, errResp.Detail.Message)
		}
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
