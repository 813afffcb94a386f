// Package email sends notification email through the Postmark HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	mu          sync.RWMutex
	serverToken string
	fromEmail   string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL overrides the Postmark endpoint (tests point this at a local
// server).
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverToken != ""
}

// UpdateConfig hot-reloads credentials, e.g. after a secret rotation.
func (c *Client) UpdateConfig(serverToken, fromEmail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverToken = serverToken
	if fromEmail != "" {
		c.fromEmail = fromEmail
	}
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

type postmarkResponse struct {
	MessageID string `json:"MessageID"`
	Message   string `json:"Message"`
}

// Send delivers a notification email and returns the provider's message id.
func (c *Client) Send(ctx context.Context, toEmail, subject, body string) (string, error) {
	c.mu.RLock()
	token := c.serverToken
	from := c.fromEmail
	apiURL := c.apiURL
	c.mu.RUnlock()

	if token == "" {
		return "", fmt.Errorf("email client not configured: missing server token")
	}

	htmlBody := fmt.Sprintf(
		`<h2>%s</h2><p>%s</p><hr><p style="color: #666; font-size: 12px;">Sent by Minder</p>`,
		subject, strings.ReplaceAll(body, "\n", "<br>"),
	)

	payload := postmarkEmail{
		From:     from,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: body,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	var pr postmarkResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("decode postmark response: %w", err)
	}
	return pr.MessageID, nil
}
