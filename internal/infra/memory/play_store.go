package memory

import (
	"sync"

	"contest-engine/internal/app"
)

// PlayStore is an in-memory implementation of app.PlayRegistry.
type PlayStore struct {
	mu    sync.RWMutex
	plays map[string]*app.Play
}

func NewPlayStore() *PlayStore {
	return &PlayStore{
		plays: make(map[string]*app.Play),
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
	return play
}

func (s *PlayStore) Get(userID string) (*app.Play, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	play, ok := s.plays[userID]
	return play, ok
}

// DeleteIfIdle drops the user's play unless it is mid-session.
func (s *PlayStore) DeleteIfIdle(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	play, ok := s.plays[userID]
	if !ok {
		return
	}
	if play.Snapshot().State != app.PlayPlaying {
		delete(s.plays, userID)
	}
}
