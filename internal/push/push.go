// Package push sends Web Push notifications to stored browser
// subscriptions using VAPID keys.
package push

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrExpired is returned when a push subscription is no longer valid
// (410 Gone). The subscription is dead; the failure is terminal.
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON delivered to the push service.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// subscription mirrors the browser's PushSubscription JSON as stored in the
// user's contact record.
type subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Service sends web push notifications. An unconfigured Service (missing
// VAPID keys) is excluded from channel selection entirely.
type Service struct {
	publicKey  string
	privateKey string
	subscriber string
	httpClient *http.Client
}

// NewService creates a push service with VAPID keys. subscriber is the
// contact address reported to push services (mailto: URL).
func NewService(publicKey, privateKey, subscriber string) *Service {
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured returns true when VAPID keys are present.
func (s *Service) Configured() bool {
	return s.publicKey != "" && s.privateKey != ""
}

// VAPIDPublicKey returns the public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send pushes a notification to the subscription stored as JSON in
// subscriptionJSON. Returns an opaque delivery marker on acceptance.
func (s *Service) Send(subscriptionJSON, title, body string) (string, error) {
	if !s.Configured() {
		return "", fmt.Errorf("push service not configured: missing VAPID keys")
	}

	var sub subscription
	if err := json.Unmarshal([]byte(subscriptionJSON), &sub); err != nil {
		return "", fmt.Errorf("parse push subscription: %w", err)
	}
	if sub.Endpoint == "" {
		return "", fmt.Errorf("push subscription has no endpoint")
	}

	data, err := json.Marshal(Payload{Title: title, Body: body})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      s.subscriber,
		TTL:             86400,
	})
	if err != nil {
		return "", fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return "", ErrExpired
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return fmt.Sprintf("webpush_accepted:%d", resp.StatusCode), nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.Bytes())

	return publicKey, privateKey, nil
}
