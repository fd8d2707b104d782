package memory

import (
	"context"
	"sync"

	"contest-engine/internal/domain"
)

// Outbox keeps one unsynced payload per user in process memory.
type Outbox struct {
	mu    sync.Mutex
	slots map[string]domain.SyncPayload
}

func NewOutbox() *Outbox {
	return &Outbox{slots: make(map[string]domain.SyncPayload)}
}

func (o *Outbox) Save(_ context.Context, payload domain.SyncPayload) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.slots[payload.UserID] = payload
	return nil
}

func (o *Outbox) Load(_ context.Context, userID string) (domain.SyncPayload, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	payload, ok := o.slots[userID]
	return payload, ok, nil
}

func (o *Outbox) Clear(_ context.Context, userID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.slots, userID)
	return nil
}

// PendingUsers lists users holding a payload.
func (o *Outbox) PendingUsers(_ context.Context) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	users := make([]string, 0, len(o.slots))
	for id := range o.slots {
		users = append(users, id)
	}
	return users, nil
}
