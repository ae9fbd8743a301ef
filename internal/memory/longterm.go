package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kliniksehat/alicia/internal/httpkit"
	"github.com/kliniksehat/alicia/internal/llm"
)

// LongTerm recalls and records durable facts about a patient across
// conversations.
type LongTerm interface {
	Search(ctx context.Context, query, userID string) ([]string, error)
	Save(ctx context.Context, messages []llm.Message, userID string, metadata map[string]string) error
}

// LongTermConfig configures the long-term memory service client.
type LongTermConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// LongTermClient talks to a mem0-compatible memory service over HTTP.
type LongTermClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLongTermClient creates a long-term memory client.
func NewLongTermClient(cfg LongTermConfig) *LongTermClient {
	return &LongTermClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client: httpkit.NewClient(
			httpkit.WithTimeout(30 * time.Second),
		),
	}
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

type searchResponse struct {
	Results []struct {
		Memory string `json:"memory"`
	} `json:"results"`
}

type saveRequest struct {
	Messages []savedMessage    `json:"messages"`
	UserID   string            `json:"user_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type savedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Search retrieves memories relevant to the query for the given user.
func (c *LongTermClient) Search(ctx context.Context, query, userID string) ([]string, error) {
	var resp searchResponse
	if err := c.post(ctx, "/v1/memories/search/", searchRequest{Query: query, UserID: userID}, &resp); err != nil {
		return nil, err
	}

	memories := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Memory != "" {
			memories = append(memories, r.Memory)
		}
	}
	return memories, nil
}

// Save submits a conversation for fact extraction. Tool traffic is
// stripped; the service only needs what the user and assistant said.
func (c *LongTermClient) Save(ctx context.Context, messages []llm.Message, userID string, metadata map[string]string) error {
	var saved []savedMessage
	for _, m := range messages {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		if m.Content == "" {
			continue
		}
		saved = append(saved, savedMessage{Role: m.Role, Content: m.Content})
	}
	if len(saved) == 0 {
		return nil
	}

	return c.post(ctx, "/v1/memories/", saveRequest{Messages: saved, UserID: userID, Metadata: metadata}, nil)
}

func (c *LongTermClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return fmt.Errorf("memory service returned status %d: %s", resp.StatusCode, errBody)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// NoopLongTerm satisfies LongTerm when no memory service is configured.
type NoopLongTerm struct{}

func (NoopLongTerm) Search(context.Context, string, string) ([]string, error) { return nil, nil }

func (NoopLongTerm) Save(context.Context, []llm.Message, string, map[string]string) error {
	return nil
}
