package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"contest-engine/internal/app"
	"contest-engine/internal/domain"
	"contest-engine/internal/infra/memory"
)

// idleScheduler never fires, keeping plays on their first question.
type idleScheduler struct{}

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

func (idleScheduler) AfterFunc(time.Duration, func()) app.Stopper { return idleTimer{} }

func newTestEngine(store *memory.Store) *app.Engine {
	outbox := memory.NewOutbox()
	reconciler := app.NewReconciler(store, outbox, memory.NewLocker(), 10*time.Second)
	ledger := app.NewLedger(store, store)
	boot := app.NewBootstrapper(store, store, ledger, reconciler, app.DefaultBootstrapConfig())
	draws := app.NewDrawEngine(store, store, store, store, app.DefaultDrawConfig())
	return app.NewEngine(draws, reconciler, boot, store, memory.NewPlayStore(), app.DefaultGuard(), app.DefaultPlayConfig(), idleScheduler{})
}

func TestEngineStartPlay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedSoloQuestions(store, 12)
	engine := newTestEngine(store)

	draw, err := engine.StartPlay(ctx, "u1", domain.ModeSolo, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(draw.Questions) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(draw.Questions))
	}
	if _, err := store.GetProfile(ctx, "u1"); err != nil {
		t.Fatalf("profile should be created lazily: %v", err)
	}

	snap := engine.Play("u1").Snapshot()
	if snap.State != app.PlayPlaying || snap.SessionID != draw.Session.ID {
		t.Fatalf("unexpected play %+v", snap)
	}

	if _, err := engine.StartPlay(ctx, "u1", domain.ModeSolo, ""); !errors.Is(err, app.ErrPlayInProgress) {
		t.Fatalf("expected ErrPlayInProgress, got %v", err)
	}

	engine.Leave("u1")
	if _, err := engine.StartPlay(ctx, "u1", domain.ModeSolo, ""); err != nil {
		t.Fatalf("start after leave: %v", err)
	}
}

func TestEngineContestPlayRequiresEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedSoloQuestions(store, 12)
	store.PutContest(domain.Contest{ID: "c1", QuestionIDs: []string{"solo-01", "solo-02", "solo-03"}, QuestionCount: 3})
	engine := newTestEngine(store)

	if _, err := engine.StartPlay(ctx, "u1", domain.ModeContest, "c1"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}

	if err := store.InsertParticipant(ctx, domain.ContestParticipant{ID: "p1", ContestID: "c1", UserID: "u1", Status: domain.ParticipantJoined}); err != nil {
		t.Fatalf("seed participant: %v", err)
	}
	if _, err := engine.StartPlay(ctx, "u1", domain.ModeContest, "c1"); err != nil {
		t.Fatalf("start contest: %v", err)
	}
}

func TestEngineVisibilityFraudDisqualifiesContestEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedSoloQuestions(store, 12)
	store.PutContest(domain.Contest{ID: "c1", Status: domain.ContestActive, QuestionIDs: []string{"solo-01", "solo-02", "solo-03"}, QuestionCount: 3})
	if err := store.InsertParticipant(ctx, domain.ContestParticipant{ID: "p1", ContestID: "c1", UserID: "u1", Status: domain.ParticipantJoined}); err != nil {
		t.Fatalf("seed participant: %v", err)
	}
	engine := newTestEngine(store)

	if _, err := engine.StartPlay(ctx, "u1", domain.ModeContest, "c1"); err != nil {
		t.Fatalf("start contest: %v", err)
	}
	play := engine.Play("u1")
	if err := play.VisibilityLost(); err != nil {
		t.Fatalf("first strike should only warn: %v", err)
	}
	if err := play.VisibilityLost(); !errors.Is(err, domain.ErrVisibilityFraud) {
		t.Fatalf("expected ErrVisibilityFraud, got %v", err)
	}

	entry, err := store.GetParticipant(ctx, "c1", "u1")
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if entry.Status != domain.ParticipantDisqualified {
		t.Fatalf("expected disqualified entry, got %s", entry.Status)
	}
	if _, err := engine.StartPlay(ctx, "u1", domain.ModeContest, "c1"); !errors.Is(err, domain.ErrDisqualified) {
		t.Fatalf("expected ErrDisqualified on restart, got %v", err)
	}
}

func TestEngineSoloFraudLeavesEntriesAlone(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedSoloQuestions(store, 12)
	store.PutContest(domain.Contest{ID: "c1", Status: domain.ContestActive, QuestionIDs: []string{"solo-01"}, QuestionCount: 1})
	_ = store.InsertParticipant(ctx, domain.ContestParticipant{ID: "p1", ContestID: "c1", UserID: "u1", Status: domain.ParticipantJoined})
	engine := newTestEngine(store)

	if _, err := engine.StartPlay(ctx, "u1", domain.ModeSolo, ""); err != nil {
		t.Fatalf("start solo: %v", err)
	}
	play := engine.Play("u1")
	_ = play.VisibilityLost()
	_ = play.VisibilityLost()

	entry, _ := store.GetParticipant(ctx, "c1", "u1")
	if entry.Status != domain.ParticipantJoined {
		t.Fatalf("solo fraud must not touch contest entries, got %s", entry.Status)
	}
}

func TestEngineContestPlayRejectedAfterEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedSoloQuestions(store, 12)
	past := time.Now().Add(-time.Minute)
	store.PutContest(domain.Contest{ID: "c1", Status: domain.ContestActive, EndsAt: &past, QuestionIDs: []string{"solo-01"}, QuestionCount: 1})
	store.PutContest(domain.Contest{ID: "c2", Status: domain.ContestFinished, QuestionIDs: []string{"solo-01"}, QuestionCount: 1})
	for _, id := range []string{"c1", "c2"} {
		if err := store.InsertParticipant(ctx, domain.ContestParticipant{ID: "p-" + id, ContestID: id, UserID: "u1", Status: domain.ParticipantJoined}); err != nil {
			t.Fatalf("seed participant: %v", err)
		}
	}
	engine := newTestEngine(store)

	for _, id := range []string{"c1", "c2"} {
		if _, err := engine.StartPlay(ctx, "u1", domain.ModeContest, id); !errors.Is(err, domain.ErrContestEnded) {
			t.Fatalf("%s: expected ErrContestEnded, got %v", id, err)
		}
	}
}
