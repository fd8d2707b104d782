package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"contest-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

const outboxPrefix = "quiz:sync:"

// Outbox keeps one unsynced payload per user under quiz:sync:{userID}.
type Outbox struct {
	client *redis.Client
}

func NewOutbox(client *redis.Client) *Outbox {
	return &Outbox{client: client}
}

func (o *Outbox) Save(ctx context.Context, payload domain.SyncPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := o.client.Set(ctx, outboxPrefix+payload.UserID, raw, 0).Err(); err != nil {
		return fmt.Errorf("save payload: %w", err)
	}
	return nil
}

func (o *Outbox) Load(ctx context.Context, userID string) (domain.SyncPayload, bool, error) {
	raw, err := o.client.Get(ctx, outboxPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SyncPayload{}, false, nil
	}
	if err != nil {
		return domain.SyncPayload{}, false, fmt.Errorf("load payload: %w", err)
	}
	var payload domain.SyncPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.SyncPayload{}, false, fmt.Errorf("decode payload: %w", err)
	}
	return payload, true, nil
}

func (o *Outbox) Clear(ctx context.Context, userID string) error {
	if err := o.client.Del(ctx, outboxPrefix+userID).Err(); err != nil {
		return fmt.Errorf("clear payload: %w", err)
	}
	return nil
}

// PendingUsers lists users holding a payload.
func (o *Outbox) PendingUsers(ctx context.Context) ([]string, error) {
	var users []string
	iter := o.client.Scan(ctx, 0, outboxPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		users = append(users, strings.TrimPrefix(iter.Val(), outboxPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan pending: %w", err)
	}
	return users, nil
}
