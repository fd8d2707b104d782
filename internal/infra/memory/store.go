package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"contest-engine/internal/domain"

	"github.com/shopspring/decimal"
)

// Store is an in-memory record store implementing every app repository.
// Each method is atomic on its own; nothing spans calls.
type Store struct {
	mu           sync.RWMutex
	profiles     map[string]domain.UserProfile
	wallets      map[string]domain.Wallet
	transactions []domain.Transaction
	questions    map[string]domain.Question
	progress     []domain.ProgressRecord
	sessions     map[string]domain.GameSession
	contests     map[string]domain.Contest
	participants map[string]domain.ContestParticipant
	levels       []domain.LevelTitle
}

func NewStore() *Store {
	return &Store{
		profiles:     make(map[string]domain.UserProfile),
		wallets:      make(map[string]domain.Wallet),
		questions:    make(map[string]domain.Question),
		sessions:     make(map[string]domain.GameSession),
		contests:     make(map[string]domain.Contest),
		participants: make(map[string]domain.ContestParticipant),
	}
}

// PutQuestions seeds question content.
func (s *Store) PutQuestions(questions ...domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		s.questions[q.ID] = q
	}
}

// PutContest seeds or replaces a contest.
func (s *Store) PutContest(contest domain.Contest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests[contest.ID] = contest
}

// PutLevelTitles replaces the level configuration table.
func (s *Store) PutLevelTitles(rows ...domain.LevelTitle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = append([]domain.LevelTitle(nil), rows...)
	sort.Slice(s.levels, func(i, j int) bool { return s.levels[i].Level > s.levels[j].Level })
}

func (s *Store) GetProfile(_ context.Context, userID string) (domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.UserProfile{}, domain.ErrProfileNotFound
	}
	return p, nil
}

func (s *Store) UpsertProfile(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = profile
	return profile, nil
}

func (s *Store) ApplyXP(_ context.Context, userID string, update domain.XPUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return false, domain.ErrProfileNotFound
	}
	if p.XPSessionID == update.SessionID {
		return false, nil
	}
	if p.XP != update.PreviousXP {
		return false, domain.ErrXPConflict
	}
	p.XP = update.XP
	p.Level = update.Level
	p.HonoraryTitle = update.Title
	p.XPSessionID = update.SessionID
	s.profiles[userID] = p
	return true, nil
}

func (s *Store) SetBalance(_ context.Context, userID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.BalanceHTG = balance
	s.profiles[userID] = p
	return nil
}

func (s *Store) SetLastLevelNotified(_ context.Context, userID string, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.LastLevelNotified = level
	s.profiles[userID] = p
	return nil
}

func (s *Store) GetWallet(_ context.Context, userID string) (domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[userID]
	if !ok {
		return domain.Wallet{}, domain.ErrWalletNotFound
	}
	return w, nil
}

func (s *Store) UpsertWallet(_ context.Context, wallet domain.Wallet) (domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[wallet.UserID] = wallet
	return wallet, nil
}

func (s *Store) InsertTransaction(_ context.Context, tx domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.transactions {
		if existing.ID == tx.ID {
			return fmt.Errorf("transaction %s already exists", tx.ID)
		}
	}
	s.transactions = append(s.transactions, tx)
	return nil
}

// ListTransactions returns the user's transactions, newest first.
func (s *Store) ListTransactions(_ context.Context, userID string, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID != userID {
			continue
		}
		out = append(out, s.transactions[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListQuestionIDs(_ context.Context, filter domain.QuestionFilter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exclude := make(map[string]struct{}, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		exclude[id] = struct{}{}
	}
	ids := make([]string, 0, len(s.questions))
	for id, q := range s.questions {
		if filter.ForSolo && !q.ForSolo {
			continue
		}
		if filter.Difficulty > 0 && q.Difficulty != filter.Difficulty {
			continue
		}
		if _, skip := exclude[id]; skip {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if filter.Limit > 0 && len(ids) > filter.Limit {
		ids = ids[:filter.Limit]
	}
	return ids, nil
}

func (s *Store) GetQuestions(_ context.Context, ids []string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// LoadQuestions satisfies QuestionLoader so the store can back a QuestionCache.
func (s *Store) LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	return s.GetQuestions(ctx, ids)
}

func (s *Store) CorrectQuestionIDs(_ context.Context, userID string, among []string, excludeSessionID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wanted map[string]struct{}
	if among != nil {
		wanted = make(map[string]struct{}, len(among))
		for _, id := range among {
			wanted[id] = struct{}{}
		}
	}
	seen := make(map[string]struct{})
	for _, rec := range s.progress {
		if rec.UserID != userID || !rec.IsCorrect {
			continue
		}
		if excludeSessionID != "" && rec.SessionID == excludeSessionID {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[rec.QuestionID]; !ok {
				continue
			}
		}
		seen[rec.QuestionID] = struct{}{}
	}
	return seen, nil
}

func (s *Store) InsertProgress(_ context.Context, records []domain.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if s.hasProgressLocked(rec.SessionID, rec.QuestionID) {
			continue
		}
		s.progress = append(s.progress, rec)
	}
	return nil
}

// ProgressCount reports how many progress rows are stored for a user.
func (s *Store) ProgressCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.progress {
		if rec.UserID == userID {
			n++
		}
	}
	return n
}

func (s *Store) hasProgressLocked(sessionID, questionID string) bool {
	if sessionID == "" {
		return false
	}
	for _, rec := range s.progress {
		if rec.SessionID == sessionID && rec.QuestionID == questionID {
			return true
		}
	}
	return false
}

func (s *Store) CreateSession(_ context.Context, session domain.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	session.QuestionIDs = append([]string(nil), session.QuestionIDs...)
	s.sessions[session.ID] = session
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) CompleteSession(_ context.Context, sessionID string, score int, totalTimeMs int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if session.IsCompleted {
		return false, nil
	}
	session.IsCompleted = true
	session.Score = score
	session.TotalTimeMs = totalTimeMs
	session.CompletedAt = &at
	s.sessions[sessionID] = session
	return true, nil
}

func (s *Store) MarkXPSettled(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.XPSettled = true
	s.sessions[sessionID] = session
	return nil
}

func (s *Store) FindTies(_ context.Context, contestID, excludeUserID string, score int, totalTimeMs int64) ([]domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.GameSession
	for _, session := range s.sessions {
		if session.ContestID != contestID || session.UserID == excludeUserID || !session.IsCompleted {
			continue
		}
		if session.Score == score && session.TotalTimeMs == totalTimeMs {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkFinalists(_ context.Context, sessionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range sessionIDs {
		session, ok := s.sessions[id]
		if !ok {
			continue
		}
		session.IsFinalist = true
		s.sessions[id] = session
	}
	return nil
}

func (s *Store) GetContest(_ context.Context, contestID string) (domain.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contests[contestID]
	if !ok {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	return c, nil
}

func (s *Store) IncrementParticipants(_ context.Context, contestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[contestID]
	if !ok {
		return domain.ErrContestNotFound
	}
	c.CurrentParticipants++
	s.contests[contestID] = c
	return nil
}

func (s *Store) ListContestsByStatus(_ context.Context, status domain.ContestStatus) ([]domain.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Contest
	for _, c := range s.contests {
		if c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetContestStatus(_ context.Context, contestID string, status domain.ContestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[contestID]
	if !ok {
		return domain.ErrContestNotFound
	}
	c.Status = status
	s.contests[contestID] = c
	return nil
}

func (s *Store) GetParticipant(_ context.Context, contestID, userID string) (domain.ContestParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantKey(contestID, userID)]
	if !ok {
		return domain.ContestParticipant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) InsertParticipant(_ context.Context, participant domain.ContestParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey(participant.ContestID, participant.UserID)
	if _, ok := s.participants[key]; ok {
		return domain.ErrAlreadyJoined
	}
	s.participants[key] = participant
	return nil
}

func (s *Store) CompleteParticipant(_ context.Context, contestID, userID string, score int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey(contestID, userID)
	p, ok := s.participants[key]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.Status = domain.ParticipantCompleted
	p.Score = score
	p.CompletedAt = &at
	s.participants[key] = p
	return nil
}

func (s *Store) DisqualifyParticipant(_ context.Context, contestID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey(contestID, userID)
	p, ok := s.participants[key]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if p.Status == domain.ParticipantJoined {
		p.Status = domain.ParticipantDisqualified
		s.participants[key] = p
	}
	return nil
}

func (s *Store) ListParticipants(_ context.Context, contestID string) ([]domain.ContestParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ContestParticipant
	for _, p := range s.participants {
		if p.ContestID == contestID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) ListUserParticipations(_ context.Context, userID string) ([]domain.ContestParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ContestParticipant
	for _, p := range s.participants {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.After(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) TitleFor(_ context.Context, level int) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.levels {
		if row.Level <= level {
			return row.Title, true, nil
		}
	}
	return "", false, nil
}

func participantKey(contestID, userID string) string {
	return contestID + "/" + userID
}
