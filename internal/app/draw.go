package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"contest-engine/internal/domain"

	"github.com/google/uuid"
)

// DrawConfig sizes question draws per mode.
type DrawConfig struct {
	SoloDrawSize        int
	SoloMinPool         int
	ContestDefaultCount int
	FinalistPoolCap     int
}

// DefaultDrawConfig returns the production draw sizes.
func DefaultDrawConfig() DrawConfig {
	return DrawConfig{
		SoloDrawSize:        10,
		SoloMinPool:         5,
		ContestDefaultCount: 10,
		FinalistPoolCap:     10,
	}
}

// Draw is a freshly created session with its questions in draw order.
type Draw struct {
	Session   domain.GameSession
	Questions []domain.Question
}

// DrawEngine picks the question set for new play sessions.
type DrawEngine struct {
	questions QuestionRepository
	progress  ProgressRepository
	sessions  SessionRepository
	contests  ContestRepository
	cfg       DrawConfig
	clock     func() time.Time
	newID     func() string

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewDrawEngine(questions QuestionRepository, progress ProgressRepository, sessions SessionRepository, contests ContestRepository, cfg DrawConfig) *DrawEngine {
	return &DrawEngine{
		questions: questions,
		progress:  progress,
		sessions:  sessions,
		contests:  contests,
		cfg:       cfg,
		clock:     time.Now,
		newID:     uuid.NewString,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the random source, for deterministic tests.
func (e *DrawEngine) WithRand(rnd *rand.Rand) *DrawEngine {
	e.mu.Lock()
	e.rnd = rnd
	e.mu.Unlock()
	return e
}

// Draw selects question ids for mode, records the session and loads the questions.
func (e *DrawEngine) Draw(ctx context.Context, userID string, mode domain.Mode, contestID string) (Draw, error) {
	var contest *domain.Contest
	if mode == domain.ModeContest || mode == domain.ModeFinalist {
		c, err := e.contests.GetContest(ctx, contestID)
		if err != nil {
			return Draw{}, err
		}
		contest = &c
	}

	ids, err := e.SelectIDs(ctx, userID, mode, contest)
	if err != nil {
		return Draw{}, err
	}

	session := domain.GameSession{
		ID:          e.newID(),
		UserID:      userID,
		QuestionIDs: ids,
		CreatedAt:   e.clock(),
	}
	if contest != nil {
		session.ContestID = contest.ID
	}
	if err := e.sessions.CreateSession(ctx, session); err != nil {
		return Draw{}, fmt.Errorf("create session: %w", err)
	}

	questions, err := e.questions.GetQuestions(ctx, ids)
	if err != nil {
		return Draw{}, fmt.Errorf("load questions: %w", err)
	}
	ordered, err := orderQuestions(ids, questions)
	if err != nil {
		return Draw{}, err
	}
	return Draw{Session: session, Questions: ordered}, nil
}

// SelectIDs computes the ordered draw for mode without touching any session.
func (e *DrawEngine) SelectIDs(ctx context.Context, userID string, mode domain.Mode, contest *domain.Contest) ([]string, error) {
	switch mode {
	case domain.ModeSolo:
		seen, err := e.progress.CorrectQuestionIDs(ctx, userID, nil, "")
		if err != nil {
			return nil, fmt.Errorf("load solo progress: %w", err)
		}
		exclude := make([]string, 0, len(seen))
		for id := range seen {
			exclude = append(exclude, id)
		}
		pool, err := e.questions.ListQuestionIDs(ctx, domain.QuestionFilter{ForSolo: true, ExcludeIDs: exclude})
		if err != nil {
			return nil, fmt.Errorf("list solo questions: %w", err)
		}
		pool = without(pool, seen)
		if len(pool) < e.cfg.SoloMinPool {
			return nil, domain.ErrInsufficientPool
		}
		return e.shuffleTake(pool, e.cfg.SoloDrawSize), nil

	case domain.ModeContest:
		if contest == nil {
			return nil, domain.ErrContestNotFound
		}
		count := contest.QuestionCount
		if count <= 0 {
			count = e.cfg.ContestDefaultCount
		}
		if len(contest.QuestionIDs) < count {
			return nil, domain.ErrInsufficientPool
		}
		return e.shuffleTake(contest.QuestionIDs, count), nil

	case domain.ModeFinalist:
		pool, err := e.questions.ListQuestionIDs(ctx, domain.QuestionFilter{
			Difficulty: domain.DifficultyExpert,
			Limit:      e.cfg.FinalistPoolCap,
		})
		if err != nil {
			return nil, fmt.Errorf("list expert questions: %w", err)
		}
		return e.shuffleTake(pool, e.cfg.FinalistPoolCap), nil
	}
	return nil, fmt.Errorf("unknown play mode %q", mode)
}

// shuffleTake returns up to n ids from a uniform permutation of pool. pool is not modified.
func (e *DrawEngine) shuffleTake(pool []string, n int) []string {
	ids := append([]string(nil), pool...)
	e.mu.Lock()
	e.rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	e.mu.Unlock()
	if n < len(ids) {
		ids = ids[:n]
	}
	return ids
}

func without(ids []string, exclude map[string]struct{}) []string {
	if len(exclude) == 0 {
		return ids
	}
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := exclude[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// orderQuestions lays out questions in the order recorded on the session.
func orderQuestions(ids []string, questions []domain.Question) ([]domain.Question, error) {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
		}
		ordered = append(ordered, q)
	}
	return ordered, nil
}
