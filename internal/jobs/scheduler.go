package jobs

import (
	"context"
	"log"
	"time"

	"contest-engine/internal/app"
	"contest-engine/internal/domain"

	"github.com/go-co-op/gocron/v2"
)

// PendingLister lists users with an unsynced result in the outbox.
type PendingLister interface {
	PendingUsers(ctx context.Context) ([]string, error)
}

// Replayer settles a user's queued result.
type Replayer interface {
	Replay(ctx context.Context, userID string) (bool, error)
}

// ContestClock moves contests through scheduled -> active -> finished.
type ContestClock struct {
	contests app.ContestRepository
	now      func() time.Time
}

func NewContestClock(contests app.ContestRepository) *ContestClock {
	return &ContestClock{contests: contests, now: time.Now}
}

// WithClock overrides the time source.
func (c *ContestClock) WithClock(now func() time.Time) *ContestClock {
	c.now = now
	return c
}

// Tick applies every transition due at the current time and reports how many
// contests changed status.
func (c *ContestClock) Tick(ctx context.Context) (int, error) {
	now := c.now()
	changed := 0

	scheduled, err := c.contests.ListContestsByStatus(ctx, domain.ContestScheduled)
	if err != nil {
		return changed, err
	}
	for _, contest := range scheduled {
		if contest.ScheduledAt == nil || contest.ScheduledAt.After(now) {
			continue
		}
		if err := c.contests.SetContestStatus(ctx, contest.ID, domain.ContestActive); err != nil {
			log.Printf("[jobs] activate contest %s: %v", contest.ID, err)
			continue
		}
		log.Printf("[jobs] contest %s is active", contest.ID)
		changed++
	}

	active, err := c.contests.ListContestsByStatus(ctx, domain.ContestActive)
	if err != nil {
		return changed, err
	}
	for _, contest := range active {
		if !contest.Ended(now) {
			continue
		}
		if err := c.contests.SetContestStatus(ctx, contest.ID, domain.ContestFinished); err != nil {
			log.Printf("[jobs] finish contest %s: %v", contest.ID, err)
			continue
		}
		log.Printf("[jobs] contest %s is finished", contest.ID)
		changed++
	}
	return changed, nil
}

// OutboxSweeper retries every queued settlement.
type OutboxSweeper struct {
	pending  PendingLister
	replayer Replayer
}

func NewOutboxSweeper(pending PendingLister, replayer Replayer) *OutboxSweeper {
	return &OutboxSweeper{pending: pending, replayer: replayer}
}

// Sweep replays each pending user once and returns how many settled.
func (s *OutboxSweeper) Sweep(ctx context.Context) (int, error) {
	users, err := s.pending.PendingUsers(ctx)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, userID := range users {
		ok, err := s.replayer.Replay(ctx, userID)
		if err != nil {
			log.Printf("[jobs] replay %s: %v", userID, err)
			continue
		}
		if ok {
			settled++
		}
	}
	return settled, nil
}

// Config sets the job intervals. A zero interval disables the job.
type Config struct {
	ContestInterval time.Duration
	SweepInterval   time.Duration
	JobTimeout      time.Duration
}

// Scheduler runs the background jobs on gocron.
type Scheduler struct {
	sched gocron.Scheduler
}

// NewScheduler registers the jobs; either worker may be nil.
func NewScheduler(cfg Config, clock *ContestClock, sweeper *OutboxSweeper) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if clock != nil && cfg.ContestInterval > 0 {
		_, err := sched.NewJob(
			gocron.DurationJob(cfg.ContestInterval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				if _, err := clock.Tick(ctx); err != nil {
					log.Printf("[jobs] contest clock: %v", err)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	if sweeper != nil && cfg.SweepInterval > 0 {
		_, err := sched.NewJob(
			gocron.DurationJob(cfg.SweepInterval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				n, err := sweeper.Sweep(ctx)
				if err != nil {
					log.Printf("[jobs] outbox sweep: %v", err)
					return
				}
				if n > 0 {
					log.Printf("[jobs] outbox sweep settled %d result(s)", n)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}
	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
