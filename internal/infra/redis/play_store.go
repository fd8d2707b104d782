package redis

import (
	"context"
	"sync"
	"time"

	"contest-engine/internal/app"
	"github.com/redis/go-redis/v9"
)

// PlayStore keeps live plays in process and marks them in Redis so other
// instances can see who is mid-game.
type PlayStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	plays  map[string]*app.Play
}

func NewPlayStore(client *redis.Client, ttl time.Duration) *PlayStore {
	return &PlayStore{
		client: client,
		ttl:    ttl,
		plays:  make(map[string]*app.Play),
	}
}

func (s *PlayStore) GetOrCreate(userID string, create func() *app.Play) *app.Play {
	s.mu.Lock()
	defer s.mu.Unlock()
	if play, ok := s.plays[userID]; ok {
		return play
	}
	play := create()
	s.plays[userID] = play
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(userID), "1", s.ttl).Err()
	return play
}

func (s *PlayStore) Get(userID string) (*app.Play, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	play, ok := s.plays[userID]
	return play, ok
}

func (s *PlayStore) DeleteIfIdle(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	play, ok := s.plays[userID]
	if !ok {
		return
	}
	if play.Snapshot().State != app.PlayPlaying {
		delete(s.plays, userID)
		_ = s.client.Del(context.Background(), s.key(userID)).Err()
	}
}

func (s *PlayStore) key(userID string) string {
	return "quiz:play:" + userID
}
