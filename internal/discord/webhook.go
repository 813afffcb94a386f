// Package discord posts notifications to a Discord channel webhook,
// mentioning the target user.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

type Client struct {
	mu         sync.RWMutex
	webhookURL string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(webhookURL string, opts ...Option) *Client {
	c := &Client{
		webhookURL: webhookURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the webhook URL is set.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.webhookURL != ""
}

// UpdateConfig hot-reloads the webhook URL.
func (c *Client) UpdateConfig(webhookURL string) {
	c.mu.Lock()
	c.webhookURL = webhookURL
	c.mu.Unlock()
}

type webhookMessage struct {
	Content         string          `json:"content"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type allowedMentions struct {
	Users []string `json:"users"`
}

// Send posts a mention of the user with the notification text. Discord
// webhooks return no per-message id worth keeping, so the delivery id is a
// fixed marker.
func (c *Client) Send(ctx context.Context, discordUserID, title, body string) (string, error) {
	c.mu.RLock()
	webhookURL := c.webhookURL
	c.mu.RUnlock()

	if webhookURL == "" {
		return "", fmt.Errorf("discord webhook not configured")
	}

	msg := webhookMessage{
		Content:         fmt.Sprintf("<@%s> **%s**\n%s", discordUserID, title, body),
		AllowedMentions: allowedMentions{Users: []string{discordUserID}},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", webhookURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("discord webhook failed: status %d", resp.StatusCode)
	}

	return "discord_sent", nil
}
