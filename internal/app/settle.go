package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"contest-engine/internal/domain"
	"contest-engine/internal/progression"

	"github.com/go-playground/validator/v10"
)

// SettlementReport describes what one reconciliation run changed.
type SettlementReport struct {
	SessionID        string   `json:"sessionId"`
	AlreadyCompleted bool     `json:"alreadyCompleted"`
	XPGained         int64    `json:"xpGained"`
	XPApplied        bool     `json:"xpApplied"`
	PreviousLevel    int      `json:"previousLevel"`
	Level            int      `json:"level"`
	Title            string   `json:"title,omitempty"`
	Finalists        []string `json:"finalists,omitempty"`
}

// LeveledUp reports whether this run moved the player to a new level.
func (r SettlementReport) LeveledUp() bool {
	return r.XPApplied && r.Level > r.PreviousLevel
}

// Reconciler applies a finished session's effects to the record store.
// Every step can be re-run against the same payload without doubling effects.
type Reconciler struct {
	store           Store
	outbox          Outbox
	locker          Locker
	validate        *validator.Validate
	questionTimeout time.Duration
	clock           func() time.Time
}

func NewReconciler(store Store, outbox Outbox, locker Locker, questionTimeout time.Duration) *Reconciler {
	return &Reconciler{
		store:           store,
		outbox:          outbox,
		locker:          locker,
		validate:        validator.New(),
		questionTimeout: questionTimeout,
		clock:           time.Now,
	}
}

// Settle reconciles payload. On failure the payload is queued in the outbox
// and the returned error matches domain.ErrSettlementFailed.
func (r *Reconciler) Settle(ctx context.Context, payload domain.SyncPayload) (SettlementReport, error) {
	if err := r.validate.Struct(payload); err != nil {
		return SettlementReport{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	report, err := r.apply(ctx, payload)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) {
			return report, err
		}
		if saveErr := r.outbox.Save(context.WithoutCancel(ctx), payload); saveErr != nil {
			log.Printf("settle %s: queue for retry: %v", payload.SessionID, saveErr)
		}
		return report, fmt.Errorf("%w: %w", domain.ErrSettlementFailed, err)
	}

	if err := r.outbox.Clear(ctx, payload.UserID); err != nil {
		log.Printf("settle %s: clear pending sync: %v", payload.SessionID, err)
	}
	return report, nil
}

// Replay makes one attempt to settle the user's pending payload. It reports
// whether a payload was found.
func (r *Reconciler) Replay(ctx context.Context, userID string) (bool, error) {
	payload, ok, err := r.outbox.Load(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load pending sync: %w", err)
	}
	if !ok {
		return false, nil
	}

	_, err = r.Settle(ctx, payload)
	if errors.Is(err, domain.ErrInvalidPayload) {
		log.Printf("replay %s: dropping invalid payload: %v", userID, err)
		if clearErr := r.outbox.Clear(ctx, userID); clearErr != nil {
			log.Printf("replay %s: clear: %v", userID, clearErr)
		}
	}
	return true, err
}

func (r *Reconciler) apply(ctx context.Context, payload domain.SyncPayload) (SettlementReport, error) {
	report := SettlementReport{SessionID: payload.SessionID}

	session, err := r.store.GetSession(ctx, payload.SessionID)
	if err != nil {
		return report, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != payload.UserID {
		return report, fmt.Errorf("%w: session %s belongs to another user", domain.ErrInvalidPayload, session.ID)
	}

	now := r.clock()
	score, totalTimeMs := payload.Score, payload.TotalTimeMs
	if session.IsCompleted {
		score, totalTimeMs = session.Score, session.TotalTimeMs
	}

	// 1. completion
	stamped, err := r.store.CompleteSession(ctx, session.ID, payload.Score, payload.TotalTimeMs, now)
	if err != nil {
		return report, fmt.Errorf("complete session: %w", err)
	}
	report.AlreadyCompleted = !stamped

	// 2. experience, against what was known before this session
	seen, err := r.store.CorrectQuestionIDs(ctx, payload.UserID, payload.QuestionIDs(), session.ID)
	if err != nil {
		return report, fmt.Errorf("load answered questions: %w", err)
	}
	report.XPGained = r.experience(payload.Answers, seen)

	// 3. profile
	if report.XPGained > 0 && !session.XPSettled {
		if err := r.applyXP(ctx, session, report.XPGained, &report); err != nil {
			return report, err
		}
	}

	// 4. progress log
	records := make([]domain.ProgressRecord, 0, len(payload.Answers))
	for _, a := range payload.Answers {
		records = append(records, domain.ProgressRecord{
			UserID:     payload.UserID,
			QuestionID: a.QuestionID,
			SessionID:  session.ID,
			IsCorrect:  a.IsCorrect,
			CreatedAt:  now,
		})
	}
	if err := r.store.InsertProgress(ctx, records); err != nil {
		return report, fmt.Errorf("insert progress: %w", err)
	}

	if !session.IsContest() {
		return report, nil
	}

	// 5. ties
	finalists, err := r.promoteTies(ctx, session, score, totalTimeMs)
	if err != nil {
		return report, err
	}
	report.Finalists = finalists

	// 6. participant
	err = r.store.CompleteParticipant(ctx, session.ContestID, payload.UserID, score, now)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		log.Printf("settle %s: no participant row for %s in contest %s", session.ID, payload.UserID, session.ContestID)
	} else if err != nil {
		return report, fmt.Errorf("complete participant: %w", err)
	}
	return report, nil
}

func (r *Reconciler) experience(answers []domain.SyncAnswer, seen map[string]struct{}) int64 {
	limit := r.questionTimeout.Seconds()
	var total int64
	for _, a := range answers {
		if !a.IsCorrect {
			continue
		}
		timeLeft := math.Max(0, limit-float64(a.TimeSpentMs)/1000)
		_, repeated := seen[a.QuestionID]
		total += progression.QuestionXP(true, timeLeft, repeated)
	}
	return total
}

// xpAttempts bounds retries when another settlement moves the profile's xp.
const xpAttempts = 5

func (r *Reconciler) applyXP(ctx context.Context, session domain.GameSession, gained int64, report *SettlementReport) error {
	var err error
	for attempt := 1; attempt <= xpAttempts; attempt++ {
		err = r.tryApplyXP(ctx, session, gained, report)
		if !errors.Is(err, domain.ErrXPConflict) {
			break
		}
		log.Printf("settle %s: xp changed concurrently (attempt %d)", session.ID, attempt)
	}
	if err != nil {
		return err
	}

	if err := r.store.MarkXPSettled(ctx, session.ID); err != nil {
		return fmt.Errorf("mark xp settled: %w", err)
	}
	return nil
}

func (r *Reconciler) tryApplyXP(ctx context.Context, session domain.GameSession, gained int64, report *SettlementReport) error {
	profile, err := r.store.GetProfile(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	report.PreviousLevel = profile.Level
	report.Level = profile.Level
	report.Title = profile.HonoraryTitle
	if profile.XPSessionID == session.ID {
		return nil
	}

	newXP := profile.XP + gained
	newLevel := progression.LevelForXP(newXP)
	title := profile.HonoraryTitle
	if newLevel != profile.Level || title == "" {
		title, err = r.resolveTitle(ctx, newLevel)
		if err != nil {
			return err
		}
	}

	applied, err := r.store.ApplyXP(ctx, session.UserID, domain.XPUpdate{
		SessionID:  session.ID,
		PreviousXP: profile.XP,
		XP:         newXP,
		Level:      newLevel,
		Title:      title,
	})
	if err != nil {
		return fmt.Errorf("apply xp: %w", err)
	}
	if applied {
		report.XPApplied = true
		report.Level = newLevel
		report.Title = title
	}
	return nil
}

// resolveTitle prefers the level configuration and falls back to the built-in table.
func (r *Reconciler) resolveTitle(ctx context.Context, level int) (string, error) {
	local := progression.TitleForLevel(level)
	configured, ok, err := r.store.TitleFor(ctx, level)
	if err != nil {
		return "", fmt.Errorf("resolve title: %w", err)
	}
	if !ok {
		log.Printf("settle: no level config at or below %d, using %q", level, local)
		return local, nil
	}
	if configured != local {
		log.Printf("settle: level config title %q differs from built-in %q at level %d", configured, local, level)
	}
	return configured, nil
}

func (r *Reconciler) promoteTies(ctx context.Context, session domain.GameSession, score int, totalTimeMs int64) ([]string, error) {
	var finalists []string
	detect := func(ctx context.Context) error {
		ties, err := r.store.FindTies(ctx, session.ContestID, session.UserID, score, totalTimeMs)
		if err != nil {
			return fmt.Errorf("find ties: %w", err)
		}
		if len(ties) == 0 {
			return nil
		}
		ids := make([]string, 0, len(ties)+1)
		ids = append(ids, session.ID)
		for _, t := range ties {
			ids = append(ids, t.ID)
		}
		if err := r.store.MarkFinalists(ctx, ids); err != nil {
			return fmt.Errorf("mark finalists: %w", err)
		}
		finalists = ids
		return nil
	}

	if r.locker == nil {
		return finalists, detect(ctx)
	}
	err := r.locker.WithLock(ctx, "contest:"+session.ContestID+":ties", detect)
	return finalists, err
}
