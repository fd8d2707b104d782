package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"contest-engine/internal/domain"
	"contest-engine/internal/progression"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BootstrapConfig bounds the startup load.
type BootstrapConfig struct {
	Failsafe           time.Duration
	RecentTransactions int
}

func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{Failsafe: 6 * time.Second, RecentTransactions: 20}
}

// Snapshot is everything a client needs to become interactive.
type Snapshot struct {
	Profile       *domain.UserProfile         `json:"profile,omitempty"`
	Prestige      progression.Prestige        `json:"prestige,omitempty"`
	LevelUp       bool                        `json:"levelUp"`
	Wallet        *domain.Wallet              `json:"wallet,omitempty"`
	Transactions  []domain.Transaction        `json:"transactions"`
	Contests      []domain.ContestParticipant `json:"contests"`
	PendingSynced bool                        `json:"pendingSynced"`
	Partial       bool                        `json:"partial"`
}

// Bootstrapper loads a user's state at startup or after sign-in.
type Bootstrapper struct {
	profiles     ProfileRepository
	participants ParticipantRepository
	ledger       *Ledger
	reconciler   *Reconciler
	cfg          BootstrapConfig
	newSuffix    func() string
}

func NewBootstrapper(profiles ProfileRepository, participants ParticipantRepository, ledger *Ledger, reconciler *Reconciler, cfg BootstrapConfig) *Bootstrapper {
	return &Bootstrapper{
		profiles:     profiles,
		participants: participants,
		ledger:       ledger,
		reconciler:   reconciler,
		cfg:          cfg,
		newSuffix: func() string {
			return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
		},
	}
}

// EnsureProfile returns the user's profile, creating a default one on first sign-in.
func (b *Bootstrapper) EnsureProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	profile, err := b.profiles.GetProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return domain.UserProfile{}, fmt.Errorf("load profile: %w", err)
	}

	profile, err = b.profiles.UpsertProfile(ctx, domain.UserProfile{
		ID:            userID,
		Username:      "Player_" + b.newSuffix(),
		Level:         1,
		HonoraryTitle: progression.TitleForLevel(1),
	})
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("create profile: %w", err)
	}
	log.Printf("bootstrap: created profile %s (%s)", userID, profile.Username)
	return profile, nil
}

// Load replays any pending result once, then loads the user's state
// concurrently. The whole call is bounded by the failsafe, of which the
// replay gets at most half. After the failsafe elapses whatever has arrived
// is returned with Partial set. Only a profile failure is returned as an error.
func (b *Bootstrapper) Load(ctx context.Context, userID string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Failsafe)
	defer cancel()

	var snap Snapshot
	if b.reconciler != nil {
		snap.PendingSynced = b.replay(ctx, userID)
	}

	var (
		mu      sync.Mutex
		partial bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profile, err := b.EnsureProfile(gctx, userID)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.Profile = &profile
		snap.Prestige = progression.PrestigeForLevel(profile.Level)
		snap.LevelUp = progression.PendingLevelUp(profile.Level, profile.LastLevelNotified)
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		wallet, err := b.ledger.EnsureWallet(gctx, userID)
		if err != nil {
			log.Printf("bootstrap %s: wallet: %v", userID, err)
			mu.Lock()
			partial = true
			mu.Unlock()
			return nil
		}
		mu.Lock()
		snap.Wallet = &wallet
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		txs, err := b.ledger.Recent(gctx, userID, b.cfg.RecentTransactions)
		if err != nil {
			log.Printf("bootstrap %s: transactions: %v", userID, err)
			mu.Lock()
			partial = true
			mu.Unlock()
			return nil
		}
		mu.Lock()
		snap.Transactions = txs
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		joined, err := b.participants.ListUserParticipations(gctx, userID)
		if err != nil {
			log.Printf("bootstrap %s: contests: %v", userID, err)
			mu.Lock()
			partial = true
			mu.Unlock()
			return nil
		}
		mu.Lock()
		snap.Contests = joined
		mu.Unlock()
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		log.Printf("bootstrap %s: failsafe after %s, returning partial state", userID, b.cfg.Failsafe)
		mu.Lock()
		partial = true
		mu.Unlock()
	}

	mu.Lock()
	defer mu.Unlock()
	out := snap
	out.Partial = partial || err != nil
	return out, err
}

// replay settles the user's queued result, giving up after half the failsafe.
func (b *Bootstrapper) replay(ctx context.Context, userID string) bool {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Failsafe/2)
	defer cancel()

	type outcome struct {
		replayed bool
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		replayed, err := b.reconciler.Replay(ctx, userID)
		done <- outcome{replayed: replayed, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			log.Printf("bootstrap %s: pending sync still failing: %v", userID, out.err)
			return false
		}
		return out.replayed
	case <-ctx.Done():
		log.Printf("bootstrap %s: pending sync timed out, loading without it", userID)
		return false
	}
}

// AcknowledgeLevel records that the level-up celebration for level was shown.
func (b *Bootstrapper) AcknowledgeLevel(ctx context.Context, userID string, level int) error {
	if err := b.profiles.SetLastLevelNotified(ctx, userID, level); err != nil {
		return fmt.Errorf("acknowledge level: %w", err)
	}
	return nil
}
