// Package handoff carries the asynchronous hand-off between notification
// creation (evaluation tick) and delivery (dispatch tick).
//
// Publishing is fire-and-forget: the persisted notification row is the
// source of truth, and the dispatch tick's recovery sweep re-drives rows
// whose hand-off message was lost. Delivery of a message is therefore
// at-least-once, and consumers must claim before sending.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Message is the hand-off payload connecting the two ticks.
type Message struct {
	NotificationID string `json:"notification_id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
}

// Bus is the hand-off transport.
type Bus interface {
	// Publish enqueues a message. Failure is the caller's problem only to
	// the extent of logging it.
	Publish(ctx context.Context, msg Message) error
	// Pull removes and returns up to max queued messages without blocking.
	Pull(ctx context.Context, max int) ([]Message, error)
}

// RedisBus is a Bus backed by a Redis list, durable across restarts of the
// scheduler process.
type RedisBus struct {
	client *redis.Client
	key    string
}

func NewRedisBus(addr, password, key string) *RedisBus {
	return &RedisBus{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		key: key,
	}
}

func (b *RedisBus) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal handoff message: %w", err)
	}
	if err := b.client.LPush(ctx, b.key, data).Err(); err != nil {
		return fmt.Errorf("publish handoff message: %w", err)
	}
	return nil
}

func (b *RedisBus) Pull(ctx context.Context, max int) ([]Message, error) {
	raw, err := b.client.RPopCount(ctx, b.key, max).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pull handoff messages: %w", err)
	}

	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			// A corrupt entry is dropped; the recovery sweep picks the
			// notification up from the store instead.
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

// MemoryBus is an in-process Bus for single-node deployments without Redis
// and for tests. Messages do not survive a restart, which the recovery
// sweep compensates for.
type MemoryBus struct {
	ch chan Message
}

func NewMemoryBus(capacity int) *MemoryBus {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryBus{ch: make(chan Message, capacity)}
}

func (b *MemoryBus) Publish(_ context.Context, msg Message) error {
	select {
	case b.ch <- msg:
		return nil
	default:
		return fmt.Errorf("handoff buffer full")
	}
}

func (b *MemoryBus) Pull(_ context.Context, max int) ([]Message, error) {
	var msgs []Message
	for len(msgs) < max {
		select {
		case msg := <-b.ch:
			msgs = append(msgs, msg)
		default:
			return msgs, nil
		}
	}
	return msgs, nil
}
