package app

import (
	"time"

	"contest-engine/internal/domain"
)

// VisibilityVerdict is the outcome of a foreground-loss event.
type VisibilityVerdict int

const (
	VisibilityWarn VisibilityVerdict = iota
	VisibilityDisqualify
)

// VisibilityPolicy decides what the n-th foreground loss of a session means.
type VisibilityPolicy func(strikes int) VisibilityVerdict

// PacePolicy checks the finished session's total answer time.
type PacePolicy func(questionCount int, total time.Duration) error

// Guard bundles the integrity heuristics applied while playing. Both checks
// are deterrents against casual cheating, not proof of fair play.
type Guard struct {
	Visibility VisibilityPolicy
	Pace       PacePolicy
}

// DefaultGuard forgives one foreground loss and requires 800ms per question.
func DefaultGuard() Guard {
	return Guard{
		Visibility: StrikePolicy(2),
		Pace:       MinimumPace(800 * time.Millisecond),
	}
}

// StrikePolicy disqualifies on the limit-th strike and warns before.
func StrikePolicy(limit int) VisibilityPolicy {
	return func(strikes int) VisibilityVerdict {
		if strikes >= limit {
			return VisibilityDisqualify
		}
		return VisibilityWarn
	}
}

// MinimumPace rejects sessions faster than perQuestion on average. The bound is inclusive.
func MinimumPace(perQuestion time.Duration) PacePolicy {
	return func(questionCount int, total time.Duration) error {
		if total < time.Duration(questionCount)*perQuestion {
			return domain.ErrSuspiciousPerformance
		}
		return nil
	}
}

func (g Guard) visibility(strikes int) VisibilityVerdict {
	if g.Visibility == nil {
		return VisibilityWarn
	}
	return g.Visibility(strikes)
}

func (g Guard) pace(questionCount int, total time.Duration) error {
	if g.Pace == nil {
		return nil
	}
	return g.Pace(questionCount, total)
}
