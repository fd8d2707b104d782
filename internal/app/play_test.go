package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"contest-engine/internal/domain"
)

type manualTask struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTask) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// manualScheduler only runs callbacks when the test fires them.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &manualTask{delay: d, fn: f}
	s.tasks = append(s.tasks, task)
	return task
}

// fireNext runs the oldest pending task and returns its delay.
func (s *manualScheduler) fireNext(t *testing.T) time.Duration {
	t.Helper()
	s.mu.Lock()
	var next *manualTask
	for _, task := range s.tasks {
		if !task.stopped && !task.fired {
			next = task
			break
		}
	}
	if next == nil {
		s.mu.Unlock()
		t.Fatalf("no pending task")
	}
	next.fired = true
	s.mu.Unlock()

	next.fn()
	return next.delay
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testDraw(n int) Draw {
	questions := make([]domain.Question, 0, n)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("q%d", i+1)
		ids = append(ids, id)
		questions = append(questions, domain.Question{
			ID:           id,
			Text:         "question " + id,
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: 1,
		})
	}
	return Draw{
		Session:   domain.GameSession{ID: "session-1", UserID: "user-1", QuestionIDs: ids},
		Questions: questions,
	}
}

func newTestPlay(settle SettleFunc) (*Play, *manualScheduler, *fakeClock) {
	sched := &manualScheduler{}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	play := NewPlayWithClock(DefaultPlayConfig(), DefaultGuard(), sched, settle, clock.Now)
	return play, sched, clock
}

func TestPlayFullRunSettles(t *testing.T) {
	var settled []domain.SyncPayload
	play, sched, clock := newTestPlay(func(_ context.Context, p domain.SyncPayload) error {
		settled = append(settled, p)
		return nil
	})
	events, cancel := play.Subscribe()
	defer cancel()

	if err := play.Start(testDraw(10)); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 10; i++ {
		clock.Advance(5 * time.Second)
		outcome, err := play.Submit(1)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if !outcome.Correct || outcome.Points != 150 {
			t.Fatalf("answer %d: expected correct for 150 points, got %+v", i, outcome)
		}
		if outcome.Dwell != 1200*time.Millisecond {
			t.Fatalf("expected answer dwell, got %s", outcome.Dwell)
		}
		sched.fireNext(t)
	}

	snap := play.Snapshot()
	if snap.State != PlayResult {
		t.Fatalf("expected result state, got %s", snap.State)
	}
	if snap.Score != 1500 || snap.TotalTimeMs != 50000 {
		t.Fatalf("unexpected totals: %+v", snap)
	}
	if len(settled) != 1 {
		t.Fatalf("expected one settlement, got %d", len(settled))
	}
	if got := settled[0]; got.SessionID != "session-1" || got.UserID != "user-1" || len(got.Answers) != 10 {
		t.Fatalf("unexpected payload: %+v", got)
	}

	var sawFinished, sawSynced bool
	for len(events) > 0 {
		ev := <-events
		switch ev.Type {
		case EventFinished:
			sawFinished = true
		case EventSynced:
			sawSynced = true
		}
	}
	if !sawFinished || !sawSynced {
		t.Fatalf("expected finished and synced events, finished=%v synced=%v", sawFinished, sawSynced)
	}
}

func TestPlayTimeoutIsNeverCorrect(t *testing.T) {
	play, sched, clock := newTestPlay(nil)
	if err := play.Start(testDraw(3)); err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(10 * time.Second)
	if d := sched.fireNext(t); d != 10*time.Second {
		t.Fatalf("expected question timer of 10s, got %s", d)
	}

	result := play.Snapshot()
	if result.Score != 0 || result.TotalTimeMs != 10000 {
		t.Fatalf("unexpected totals after timeout: %+v", result)
	}
	if d := sched.fireNext(t); d != 800*time.Millisecond {
		t.Fatalf("expected timeout dwell of 800ms, got %s", d)
	}
	if snap := play.Snapshot(); snap.Index != 1 || snap.State != PlayPlaying {
		t.Fatalf("expected to advance to question 2, got %+v", snap)
	}
}

func TestPlayRejectsDuplicateSubmission(t *testing.T) {
	play, _, clock := newTestPlay(nil)
	if err := play.Start(testDraw(2)); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(2 * time.Second)
	if _, err := play.Submit(0); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := play.Submit(1); !errors.Is(err, domain.ErrAnswerPending) {
		t.Fatalf("expected ErrAnswerPending, got %v", err)
	}
	if snap := play.Snapshot(); snap.Score != 0 {
		t.Fatalf("wrong answer must not score, got %d", snap.Score)
	}
}

func TestPlaySubmitOutsidePlaying(t *testing.T) {
	play, _, _ := newTestPlay(nil)
	if _, err := play.Submit(0); !errors.Is(err, domain.ErrNotPlaying) {
		t.Fatalf("expected ErrNotPlaying, got %v", err)
	}
}

func TestPlayVisibilityStrikes(t *testing.T) {
	play, _, _ := newTestPlay(nil)
	if err := play.Start(testDraw(3)); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := play.VisibilityLost(); err != nil {
		t.Fatalf("first strike should only warn, got %v", err)
	}
	if play.Snapshot().State != PlayPlaying {
		t.Fatalf("expected to keep playing after first strike")
	}
	if err := play.VisibilityLost(); !errors.Is(err, domain.ErrVisibilityFraud) {
		t.Fatalf("expected ErrVisibilityFraud, got %v", err)
	}
	if play.Snapshot().State != PlayReady {
		t.Fatalf("expected ready state after disqualification")
	}
	if _, ok := play.Result(); ok {
		t.Fatalf("disqualified play must have no result")
	}
}

func TestPlayTooFastIsAborted(t *testing.T) {
	settleCalls := 0
	play, sched, clock := newTestPlay(func(context.Context, domain.SyncPayload) error {
		settleCalls++
		return nil
	})
	var rejected []domain.GameSession
	play.OnAbort(func(session domain.GameSession, cause error) {
		if errors.Is(cause, domain.ErrSuspiciousPerformance) {
			rejected = append(rejected, session)
		}
	})
	events, cancel := play.Subscribe()
	defer cancel()

	if err := play.Start(testDraw(10)); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 10; i++ {
		clock.Advance(500 * time.Millisecond)
		if _, err := play.Submit(1); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		sched.fireNext(t)
	}

	if state := play.Snapshot().State; state != PlayReady {
		t.Fatalf("expected ready after pace rejection, got %s", state)
	}
	if settleCalls != 0 {
		t.Fatalf("suspicious play must not settle")
	}
	if len(rejected) != 1 || rejected[0].ID != "session-1" {
		t.Fatalf("expected the abort hook once for session-1, got %+v", rejected)
	}
	var aborted bool
	for len(events) > 0 {
		if ev := <-events; ev.Type == EventAborted && ev.Message == domain.ErrSuspiciousPerformance.Error() {
			aborted = true
		}
	}
	if !aborted {
		t.Fatalf("expected aborted event")
	}
}

func TestPlayAbandonSkipsAbortHook(t *testing.T) {
	play, _, _ := newTestPlay(nil)
	called := false
	play.OnAbort(func(domain.GameSession, error) { called = true })
	if err := play.Start(testDraw(3)); err != nil {
		t.Fatalf("start: %v", err)
	}
	play.Abandon()
	if called {
		t.Fatalf("abandoning is not a fraud rejection")
	}
	if state := play.Snapshot().State; state != PlayReady {
		t.Fatalf("expected ready, got %s", state)
	}
}

func TestPlaySettleFailureIsDeferred(t *testing.T) {
	play, sched, clock := newTestPlay(func(context.Context, domain.SyncPayload) error {
		return domain.ErrSettlementFailed
	})
	events, cancel := play.Subscribe()
	defer cancel()

	if err := play.Start(testDraw(1)); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := play.Submit(1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sched.fireNext(t)

	var deferred bool
	for len(events) > 0 {
		if ev := <-events; ev.Type == EventSyncDeferred {
			deferred = true
		}
	}
	if !deferred {
		t.Fatalf("expected sync_deferred event")
	}
	if _, ok := play.Result(); !ok {
		t.Fatalf("result should be kept after a deferred sync")
	}
}

func TestPlayStartRequiresQuestions(t *testing.T) {
	play, _, _ := newTestPlay(nil)
	if err := play.Start(Draw{}); !errors.Is(err, domain.ErrInsufficientPool) {
		t.Fatalf("expected ErrInsufficientPool, got %v", err)
	}
}
