// Package agent calls the summarization service that composes daily
// briefing text from a user's open reminders and recent activity.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if a base URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

type generateRequest struct {
	UserID string `json:"user_id"`
	Intent string `json:"intent"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate asks the agent to produce text for the given user and intent
// (e.g. "daily_briefing"). The returned text becomes the notification body.
func (c *Client) Generate(ctx context.Context, userID, intent string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("agent client not configured")
	}

	data, err := json.Marshal(generateRequest{UserID: userID, Intent: intent})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/generate", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode agent response: %w", err)
	}
	if gr.Text == "" {
		return "", fmt.Errorf("agent returned empty text")
	}
	return gr.Text, nil
}
