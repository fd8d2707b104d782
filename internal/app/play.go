package app

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"contest-engine/internal/domain"
)

// ErrPlayInProgress is returned when starting over a session that is still being played.
var ErrPlayInProgress = errors.New("a session is already in play")

type PlayState string

const (
	PlayReady   PlayState = "ready"
	PlayPlaying PlayState = "playing"
	PlayResult  PlayState = "result"
)

// Selection is a 0-based option index. NoSelection marks a timeout.
type Selection int

const NoSelection Selection = -1

// PlayConfig holds the fixed timings of a play-through.
type PlayConfig struct {
	QuestionTimeout time.Duration
	AnswerDwell     time.Duration
	TimeoutDwell    time.Duration
	SettleTimeout   time.Duration
}

func DefaultPlayConfig() PlayConfig {
	return PlayConfig{
		QuestionTimeout: 10 * time.Second,
		AnswerDwell:     1200 * time.Millisecond,
		TimeoutDwell:    800 * time.Millisecond,
		SettleTimeout:   30 * time.Second,
	}
}

// Stopper cancels a scheduled callback.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// RealScheduler schedules on the runtime timer heap.
var RealScheduler Scheduler = realScheduler{}

// SettleFunc receives the payload of a finished play.
type SettleFunc func(ctx context.Context, payload domain.SyncPayload) error

// AbortFunc is told about a session the fraud guard rejected.
type AbortFunc func(session domain.GameSession, cause error)

type PlayEventType string

const (
	EventQuestion     PlayEventType = "question"
	EventAnswer       PlayEventType = "answer"
	EventWarning      PlayEventType = "warning"
	EventAborted      PlayEventType = "aborted"
	EventFinished     PlayEventType = "finished"
	EventSynced       PlayEventType = "synced"
	EventSyncDeferred PlayEventType = "sync_deferred"
)

// QuestionView is a question as shown to the player, without its answer.
type QuestionView struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Difficulty  int      `json:"difficulty"`
	Text        string   `json:"questionText"`
	Options     []string `json:"options"`
	TimeLimitMs int64    `json:"timeLimitMs"`
}

// AnswerOutcome is the scored result of one submission.
type AnswerOutcome struct {
	QuestionID   string        `json:"questionId"`
	Selection    int           `json:"selection"`
	Correct      bool          `json:"correct"`
	CorrectIndex int           `json:"correctIndex"`
	Points       int           `json:"points"`
	Score        int           `json:"score"`
	TimeSpentMs  int64         `json:"timeSpentMs"`
	Last         bool          `json:"last"`
	Dwell        time.Duration `json:"-"`
}

// PlayEvent is published to subscribers on every state change.
type PlayEvent struct {
	Type      PlayEventType       `json:"type"`
	SessionID string              `json:"sessionId"`
	Index     int                 `json:"index"`
	Total     int                 `json:"total"`
	Question  *QuestionView       `json:"question,omitempty"`
	Answer    *AnswerOutcome      `json:"answer,omitempty"`
	Result    *domain.SyncPayload `json:"result,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// PlaySnapshot is a read-only view of a play.
type PlaySnapshot struct {
	State       PlayState `json:"state"`
	SessionID   string    `json:"sessionId"`
	Index       int       `json:"index"`
	Total       int       `json:"total"`
	Score       int       `json:"score"`
	TotalTimeMs int64     `json:"totalTimeMs"`
	Strikes     int       `json:"strikes"`
}

// Play drives one play-through: Ready -> Playing -> Result. Exactly one
// question is active at a time and it accepts a single answer.
type Play struct {
	cfg    PlayConfig
	guard  Guard
	sched  Scheduler
	settle SettleFunc
	now    func() time.Time

	onAbort AbortFunc

	mu          sync.Mutex
	state       PlayState
	generation  int
	session     domain.GameSession
	questions   []domain.Question
	index       int
	score       int
	totalTimeMs int64
	answers     []domain.SyncAnswer
	shownAt     time.Time
	answered    bool
	strikes     int
	timer       Stopper
	pending     Stopper
	result      *domain.SyncPayload
	subscribers map[chan PlayEvent]struct{}
}

func NewPlay(cfg PlayConfig, guard Guard, sched Scheduler, settle SettleFunc) *Play {
	return NewPlayWithClock(cfg, guard, sched, settle, time.Now)
}

// NewPlayWithClock is test-only for deterministic timings.
func NewPlayWithClock(cfg PlayConfig, guard Guard, sched Scheduler, settle SettleFunc, now func() time.Time) *Play {
	if sched == nil {
		sched = RealScheduler
	}
	return &Play{
		cfg:         cfg,
		guard:       guard,
		sched:       sched,
		settle:      settle,
		now:         now,
		state:       PlayReady,
		subscribers: make(map[chan PlayEvent]struct{}),
	}
}

// Start begins playing draw from its first question.
func (p *Play) Start(draw Draw) error {
	if len(draw.Questions) == 0 {
		return domain.ErrInsufficientPool
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PlayPlaying {
		return ErrPlayInProgress
	}

	p.generation++
	p.state = PlayPlaying
	p.session = draw.Session
	p.questions = draw.Questions
	p.index = 0
	p.score = 0
	p.totalTimeMs = 0
	p.answers = nil
	p.strikes = 0
	p.result = nil
	p.showLocked()
	return nil
}

// Submit answers the active question. NoSelection records a timeout.
func (p *Play) Submit(sel Selection) (AnswerOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitLocked(sel)
}

func (p *Play) submitLocked(sel Selection) (AnswerOutcome, error) {
	if p.state != PlayPlaying {
		return AnswerOutcome{}, domain.ErrNotPlaying
	}
	if p.answered {
		return AnswerOutcome{}, domain.ErrAnswerPending
	}
	p.answered = true
	stop(p.timer)

	question := p.questions[p.index]
	spent := p.now().Sub(p.shownAt)
	if spent < 0 {
		spent = 0
	}
	remaining := p.cfg.QuestionTimeout - spent
	if remaining < 0 {
		remaining = 0
	}

	timedOut := sel == NoSelection
	correct := !timedOut && int(sel) == question.CorrectIndex
	points := scorePoints(correct, remaining)

	p.score += points
	p.totalTimeMs += spent.Milliseconds()
	p.answers = append(p.answers, domain.SyncAnswer{
		QuestionID:  question.ID,
		IsCorrect:   correct,
		TimeSpentMs: spent.Milliseconds(),
	})

	dwell := p.cfg.AnswerDwell
	if timedOut {
		dwell = p.cfg.TimeoutDwell
	}
	outcome := AnswerOutcome{
		QuestionID:   question.ID,
		Selection:    int(sel),
		Correct:      correct,
		CorrectIndex: question.CorrectIndex,
		Points:       points,
		Score:        p.score,
		TimeSpentMs:  spent.Milliseconds(),
		Last:         p.index == len(p.questions)-1,
		Dwell:        dwell,
	}
	p.broadcastLocked(PlayEvent{Type: EventAnswer, Answer: &outcome})

	gen, idx := p.generation, p.index
	p.pending = p.sched.AfterFunc(dwell, func() { p.advance(gen, idx) })
	return outcome, nil
}

// VisibilityLost records that the player left the foreground. The error is
// ErrVisibilityFraud when the play was aborted for it.
func (p *Play) VisibilityLost() error {
	p.mu.Lock()
	if p.state != PlayPlaying {
		p.mu.Unlock()
		return nil
	}
	p.strikes++
	if p.guard.visibility(p.strikes) == VisibilityWarn {
		p.broadcastLocked(PlayEvent{
			Type:    EventWarning,
			Message: "do not leave the game while playing, next time the session is cancelled",
		})
		p.mu.Unlock()
		return nil
	}
	p.rejectAndUnlock(domain.ErrVisibilityFraud)
	return domain.ErrVisibilityFraud
}

// OnAbort registers fn to run after the fraud guard rejects a session.
func (p *Play) OnAbort(fn AbortFunc) {
	p.mu.Lock()
	p.onAbort = fn
	p.mu.Unlock()
}

// Abandon drops the play without settlement.
func (p *Play) Abandon() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PlayPlaying {
		return
	}
	p.abortLocked(nil)
}

// Result returns the payload of a finished play.
func (p *Play) Result() (domain.SyncPayload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.result == nil {
		return domain.SyncPayload{}, false
	}
	return *p.result, true
}

func (p *Play) Snapshot() PlaySnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PlaySnapshot{
		State:       p.state,
		SessionID:   p.session.ID,
		Index:       p.index,
		Total:       len(p.questions),
		Score:       p.score,
		TotalTimeMs: p.totalTimeMs,
		Strikes:     p.strikes,
	}
}

// Subscribe returns a channel of play events.
// The caller must invoke the returned cancel function to avoid leaks.
func (p *Play) Subscribe() (<-chan PlayEvent, func()) {
	ch := make(chan PlayEvent, 16)

	p.mu.Lock()
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		if _, ok := p.subscribers[ch]; ok {
			delete(p.subscribers, ch)
			close(ch)
		}
		p.mu.Unlock()
	}
	return ch, cancel
}

func (p *Play) timeout(gen, idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation || idx != p.index || p.answered {
		return
	}
	if _, err := p.submitLocked(NoSelection); err != nil && !errors.Is(err, domain.ErrNotPlaying) {
		log.Printf("play %s: timeout submit: %v", p.session.ID, err)
	}
}

func (p *Play) advance(gen, idx int) {
	p.mu.Lock()
	if gen != p.generation || idx != p.index || p.state != PlayPlaying {
		p.mu.Unlock()
		return
	}
	if p.index < len(p.questions)-1 {
		p.index++
		p.showLocked()
		p.mu.Unlock()
		return
	}

	total := time.Duration(p.totalTimeMs) * time.Millisecond
	if err := p.guard.pace(len(p.questions), total); err != nil {
		p.rejectAndUnlock(err)
		return
	}

	p.state = PlayResult
	payload := domain.SyncPayload{
		SessionID:   p.session.ID,
		UserID:      p.session.UserID,
		Score:       p.score,
		TotalTimeMs: p.totalTimeMs,
		Answers:     append([]domain.SyncAnswer(nil), p.answers...),
	}
	p.result = &payload
	p.broadcastLocked(PlayEvent{Type: EventFinished, Result: &payload})
	settle := p.settle
	p.mu.Unlock()

	if settle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SettleTimeout)
	defer cancel()
	err := settle(ctx, payload)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return
	}
	if err != nil {
		p.broadcastLocked(PlayEvent{Type: EventSyncDeferred, Message: "result saved offline, it will sync later"})
		return
	}
	p.broadcastLocked(PlayEvent{Type: EventSynced})
}

// showLocked puts the current question on screen and arms its timer.
func (p *Play) showLocked() {
	p.answered = false
	p.shownAt = p.now()
	gen, idx := p.generation, p.index
	p.timer = p.sched.AfterFunc(p.cfg.QuestionTimeout, func() { p.timeout(gen, idx) })

	q := p.questions[p.index]
	p.broadcastLocked(PlayEvent{
		Type: EventQuestion,
		Question: &QuestionView{
			ID:          q.ID,
			Category:    q.Category,
			Difficulty:  q.Difficulty,
			Text:        q.Text,
			Options:     q.Options,
			TimeLimitMs: p.cfg.QuestionTimeout.Milliseconds(),
		},
	})
}

// abortLocked returns the play to Ready. The session record stays incomplete.
func (p *Play) abortLocked(cause error) {
	stop(p.timer)
	stop(p.pending)
	p.generation++
	p.state = PlayReady
	msg := "session abandoned"
	if cause != nil {
		msg = cause.Error()
	}
	p.broadcastLocked(PlayEvent{Type: EventAborted, Message: msg})
}

// rejectAndUnlock aborts for a fraud cause, releases the lock and then
// reports the session to the abort hook.
func (p *Play) rejectAndUnlock(cause error) {
	p.abortLocked(cause)
	session, onAbort := p.session, p.onAbort
	p.mu.Unlock()
	if onAbort != nil {
		onAbort(session, cause)
	}
}

func (p *Play) broadcastLocked(ev PlayEvent) {
	ev.SessionID = p.session.ID
	ev.Index = p.index
	ev.Total = len(p.questions)
	for ch := range p.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest event to make room.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// scorePoints is the leaderboard score for one answer, distinct from experience.
func scorePoints(correct bool, remaining time.Duration) int {
	if !correct {
		return 0
	}
	return 100 + int(math.Floor(remaining.Seconds()*10))
}

func stop(s Stopper) {
	if s != nil {
		s.Stop()
	}
}
