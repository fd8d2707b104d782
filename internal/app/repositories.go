package app

import (
	"context"
	"time"

	"contest-engine/internal/domain"

	"github.com/shopspring/decimal"
)

// ProfileRepository stores player profiles.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (domain.UserProfile, error)
	UpsertProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	// ApplyXP writes xp/level/title in one update unless update.SessionID was
	// already applied. It reports whether the row changed, and fails with
	// domain.ErrXPConflict when the stored xp is no longer update.PreviousXP.
	ApplyXP(ctx context.Context, userID string, update domain.XPUpdate) (bool, error)
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error
	SetLastLevelNotified(ctx context.Context, userID string, level int) error
}

// LedgerRepository stores wallets and their transactions.
type LedgerRepository interface {
	GetWallet(ctx context.Context, userID string) (domain.Wallet, error)
	UpsertWallet(ctx context.Context, wallet domain.Wallet) (domain.Wallet, error)
	InsertTransaction(ctx context.Context, tx domain.Transaction) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
}

// QuestionRepository loads question content.
type QuestionRepository interface {
	ListQuestionIDs(ctx context.Context, filter domain.QuestionFilter) ([]string, error)
	// GetQuestions returns the questions found for ids, in no particular order.
	GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
}

// ProgressRepository stores the per-question answer log.
type ProgressRepository interface {
	// CorrectQuestionIDs returns which of among the user answered correctly in
	// any session other than excludeSessionID. A nil among means all questions.
	CorrectQuestionIDs(ctx context.Context, userID string, among []string, excludeSessionID string) (map[string]struct{}, error)
	// InsertProgress ignores rows already stored for the same session and question.
	InsertProgress(ctx context.Context, records []domain.ProgressRecord) error
}

// SessionRepository stores game sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session domain.GameSession) error
	GetSession(ctx context.Context, sessionID string) (domain.GameSession, error)
	// CompleteSession stamps score and time once. It reports false when the
	// session was already completed and left untouched.
	CompleteSession(ctx context.Context, sessionID string, score int, totalTimeMs int64, at time.Time) (bool, error)
	MarkXPSettled(ctx context.Context, sessionID string) error
	// FindTies lists completed sessions of other users in the contest with the
	// exact same score and total time.
	FindTies(ctx context.Context, contestID, excludeUserID string, score int, totalTimeMs int64) ([]domain.GameSession, error)
	MarkFinalists(ctx context.Context, sessionIDs []string) error
}

// ContestRepository stores contests.
type ContestRepository interface {
	GetContest(ctx context.Context, contestID string) (domain.Contest, error)
	// IncrementParticipants bumps the display counter; it is not a capacity gate.
	IncrementParticipants(ctx context.Context, contestID string) error
	ListContestsByStatus(ctx context.Context, status domain.ContestStatus) ([]domain.Contest, error)
	SetContestStatus(ctx context.Context, contestID string, status domain.ContestStatus) error
}

// ParticipantRepository stores contest registrations.
type ParticipantRepository interface {
	GetParticipant(ctx context.Context, contestID, userID string) (domain.ContestParticipant, error)
	InsertParticipant(ctx context.Context, participant domain.ContestParticipant) error
	CompleteParticipant(ctx context.Context, contestID, userID string, score int, at time.Time) error
	// DisqualifyParticipant moves a joined entry to disqualified.
	DisqualifyParticipant(ctx context.Context, contestID, userID string) error
	ListParticipants(ctx context.Context, contestID string) ([]domain.ContestParticipant, error)
	ListUserParticipations(ctx context.Context, userID string) ([]domain.ContestParticipant, error)
}

// LevelConfigRepository resolves honorary titles from the level configuration table.
type LevelConfigRepository interface {
	// TitleFor returns the title of the highest configured level <= level.
	// ok is false when no row qualifies.
	TitleFor(ctx context.Context, level int) (title string, ok bool, err error)
}

// Store bundles every repository backed by one record store.
type Store interface {
	ProfileRepository
	LedgerRepository
	ProgressRepository
	SessionRepository
	ContestRepository
	ParticipantRepository
	LevelConfigRepository
}

// Outbox is a single-slot holding area for one unsynced payload per user.
// Save overwrites any payload already held.
type Outbox interface {
	Save(ctx context.Context, payload domain.SyncPayload) error
	Load(ctx context.Context, userID string) (domain.SyncPayload, bool, error)
	Clear(ctx context.Context, userID string) error
}

// Locker serializes work on a key across callers.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// PlayRegistry abstracts where live plays are kept (in-memory, Redis-marked, etc).
type PlayRegistry interface {
	GetOrCreate(userID string, create func() *Play) *Play
	Get(userID string) (*Play, bool)
	DeleteIfIdle(userID string)
}
