package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"contest-engine/internal/domain"
)

// Outbox is a device-local single slot: one JSON file holding the most
// recent unsynced payload. A new payload replaces the previous one.
type Outbox struct {
	path string
	mu   sync.Mutex
}

func NewOutbox(path string) *Outbox {
	return &Outbox{path: path}
}

func (o *Outbox) Save(_ context.Context, payload domain.SyncPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		return fmt.Errorf("create outbox dir: %w", err)
	}
	tmp := o.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := os.Rename(tmp, o.path); err != nil {
		return fmt.Errorf("commit payload: %w", err)
	}
	return nil
}

// Load returns the held payload only when it belongs to userID.
func (o *Outbox) Load(_ context.Context, userID string) (domain.SyncPayload, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	payload, ok, err := o.readLocked()
	if err != nil || !ok || payload.UserID != userID {
		return domain.SyncPayload{}, false, err
	}
	return payload, true, nil
}

func (o *Outbox) Clear(_ context.Context, userID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	payload, ok, err := o.readLocked()
	if err != nil {
		return err
	}
	if !ok || payload.UserID != userID {
		return nil
	}
	if err := os.Remove(o.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove payload: %w", err)
	}
	return nil
}

// PendingUsers lists the owner of the held payload, if any.
func (o *Outbox) PendingUsers(_ context.Context) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	payload, ok, err := o.readLocked()
	if err != nil || !ok {
		return nil, err
	}
	return []string{payload.UserID}, nil
}

func (o *Outbox) readLocked() (domain.SyncPayload, bool, error) {
	raw, err := os.ReadFile(o.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.SyncPayload{}, false, nil
	}
	if err != nil {
		return domain.SyncPayload{}, false, fmt.Errorf("read payload: %w", err)
	}
	var payload domain.SyncPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.SyncPayload{}, false, fmt.Errorf("decode payload: %w", err)
	}
	return payload, true, nil
}
