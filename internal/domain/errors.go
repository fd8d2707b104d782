package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientPool is returned when a draw cannot reach its minimum size.
	ErrInsufficientPool = errors.New("not enough questions available")
	// ErrAlreadyJoined is returned when a user joins a contest twice.
	ErrAlreadyJoined = errors.New("already joined this contest")
	// ErrContestEnded is returned when a contest no longer accepts entries.
	ErrContestEnded = errors.New("contest has ended")
	// ErrInsufficientBalance is matched by *InsufficientBalanceError.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrSuspiciousPerformance rejects sessions answered faster than humanly plausible.
	ErrSuspiciousPerformance = errors.New("suspicious performance, result not saved")
	// ErrVisibilityFraud disqualifies a session that left the foreground too often.
	ErrVisibilityFraud = errors.New("left the game too many times, session cancelled")
	// ErrSettlementFailed means the result was queued and will sync later.
	ErrSettlementFailed = errors.New("settlement failed, result queued for retry")
	// ErrDisqualified refuses play on a contest entry removed by the fraud guard.
	ErrDisqualified = errors.New("disqualified from this contest")
	// ErrXPConflict means the profile's experience moved since it was read.
	ErrXPConflict = errors.New("profile experience changed concurrently")
	// ErrInvalidPayload rejects a malformed settlement payload.
	ErrInvalidPayload = errors.New("invalid settlement payload")

	ErrSessionNotFound     = errors.New("game session not found")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrContestNotFound     = errors.New("contest not found")
	ErrParticipantNotFound = errors.New("participant not found in contest")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrNotPlaying is returned for play actions outside the Playing state.
	ErrNotPlaying = errors.New("no question in play")
	// ErrAnswerPending rejects a second answer for the question on screen.
	ErrAnswerPending = errors.New("answer already submitted for this question")
)

// InsufficientBalanceError reports how much is missing to pay an entry fee.
type InsufficientBalanceError struct {
	Balance decimal.Decimal
	Fee     decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("balance %s HTG is below the entry fee of %s HTG, deposit at least %s HTG",
		e.Balance.StringFixed(2), e.Fee.StringFixed(2), e.Shortfall().StringFixed(2))
}

// Shortfall is the amount to deposit before joining.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Fee.Sub(e.Balance)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
