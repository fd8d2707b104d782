package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"contest-engine/internal/domain"
)

// ContestEntries reads contests and keeps their entries.
type ContestEntries interface {
	ContestRepository
	ParticipantRepository
}

// Engine contains the play use cases: drawing a session, playing it and
// handing the result to settlement.
type Engine struct {
	draws      *DrawEngine
	reconciler *Reconciler
	boot       *Bootstrapper
	entries    ContestEntries
	plays      PlayRegistry
	guard      Guard
	playCfg    PlayConfig
	sched      Scheduler
	clock      func() time.Time
}

func NewEngine(draws *DrawEngine, reconciler *Reconciler, boot *Bootstrapper, entries ContestEntries, plays PlayRegistry, guard Guard, playCfg PlayConfig, sched Scheduler) *Engine {
	return &Engine{
		draws:      draws,
		reconciler: reconciler,
		boot:       boot,
		entries:    entries,
		plays:      plays,
		guard:      guard,
		playCfg:    playCfg,
		sched:      sched,
		clock:      time.Now,
	}
}

// Play returns the user's live play, creating an idle one if needed.
func (e *Engine) Play(userID string) *Play {
	return e.plays.GetOrCreate(userID, func() *Play {
		play := NewPlay(e.playCfg, e.guard, e.sched, e.settle)
		play.OnAbort(e.disqualify)
		return play
	})
}

// StartPlay draws a new session for mode and starts playing it.
func (e *Engine) StartPlay(ctx context.Context, userID string, mode domain.Mode, contestID string) (Draw, error) {
	if _, err := e.boot.EnsureProfile(ctx, userID); err != nil {
		return Draw{}, err
	}

	play := e.Play(userID)
	if play.Snapshot().State == PlayPlaying {
		return Draw{}, ErrPlayInProgress
	}

	if mode == domain.ModeContest {
		if err := e.checkEntry(ctx, userID, contestID); err != nil {
			return Draw{}, err
		}
	}

	draw, err := e.draws.Draw(ctx, userID, mode, contestID)
	if err != nil {
		return Draw{}, err
	}
	if err := play.Start(draw); err != nil {
		return Draw{}, err
	}
	return draw, nil
}

// checkEntry allows contest play only on a running contest with an unplayed entry.
func (e *Engine) checkEntry(ctx context.Context, userID, contestID string) error {
	contest, err := e.entries.GetContest(ctx, contestID)
	if err != nil {
		return err
	}
	if contest.Status == domain.ContestFinished || contest.Ended(e.clock()) {
		return domain.ErrContestEnded
	}

	participant, err := e.entries.GetParticipant(ctx, contestID, userID)
	if err != nil {
		return err
	}
	switch participant.Status {
	case domain.ParticipantJoined:
		return nil
	case domain.ParticipantDisqualified:
		return domain.ErrDisqualified
	}
	return fmt.Errorf("contest entry is %s: %w", participant.Status, domain.ErrAlreadyJoined)
}

// Leave abandons any running play and forgets it.
func (e *Engine) Leave(userID string) {
	play, ok := e.plays.Get(userID)
	if !ok {
		return
	}
	play.Abandon()
	e.plays.DeleteIfIdle(userID)
}

// Sync settles the user's finished play again, for a manual retry.
func (e *Engine) Sync(ctx context.Context, userID string) (bool, error) {
	replayed, err := e.reconciler.Replay(ctx, userID)
	if replayed || err != nil {
		return replayed, err
	}
	play, ok := e.plays.Get(userID)
	if !ok {
		return false, nil
	}
	payload, ok := play.Result()
	if !ok {
		return false, nil
	}
	_, err = e.reconciler.Settle(ctx, payload)
	return true, err
}

func (e *Engine) settle(ctx context.Context, payload domain.SyncPayload) error {
	_, err := e.reconciler.Settle(ctx, payload)
	return err
}

// disqualify marks the contest entry of a session rejected by the fraud guard.
func (e *Engine) disqualify(session domain.GameSession, cause error) {
	if !session.IsContest() {
		return
	}
	timeout := e.playCfg.SettleTimeout
	if timeout <= 0 {
		timeout = DefaultPlayConfig().SettleTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := e.entries.DisqualifyParticipant(ctx, session.ContestID, session.UserID); err != nil {
		log.Printf("engine: disqualify %s in contest %s: %v", session.UserID, session.ContestID, err)
		return
	}
	log.Printf("engine: %s disqualified from contest %s: %v", session.UserID, session.ContestID, cause)
}
