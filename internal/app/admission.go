package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"contest-engine/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// JoinRequest asks to register a user in a paid contest.
type JoinRequest struct {
	UserID    string `json:"userId" validate:"required"`
	ContestID string `json:"contestId" validate:"required"`
}

// JoinResult is the registration and the entry fee paid for it.
type JoinResult struct {
	Participant domain.ContestParticipant `json:"participant"`
	Transaction domain.Transaction        `json:"transaction"`
}

// Admission registers users in contests against their wallet balance.
type Admission struct {
	contests     ContestRepository
	participants ParticipantRepository
	ledger       *Ledger
	validate     *validator.Validate
	clock        func() time.Time
	newID        func() string
}

func NewAdmission(contests ContestRepository, participants ParticipantRepository, ledger *Ledger) *Admission {
	return &Admission{
		contests:     contests,
		participants: participants,
		ledger:       ledger,
		validate:     validator.New(),
		clock:        time.Now,
		newID:        uuid.NewString,
	}
}

// Join checks, in order: not already joined, contest not ended, balance
// covers the fee. The first failing check is returned and nothing is written.
// A registration that fails after the fee was taken is refunded.
func (a *Admission) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	if err := a.validate.Struct(req); err != nil {
		return JoinResult{}, fmt.Errorf("invalid join request: %w", err)
	}

	contest, err := a.contests.GetContest(ctx, req.ContestID)
	if err != nil {
		return JoinResult{}, err
	}

	_, err = a.participants.GetParticipant(ctx, contest.ID, req.UserID)
	switch {
	case err == nil:
		return JoinResult{}, domain.ErrAlreadyJoined
	case !errors.Is(err, domain.ErrParticipantNotFound):
		return JoinResult{}, fmt.Errorf("check participant: %w", err)
	}

	now := a.clock()
	if contest.Ended(now) {
		return JoinResult{}, domain.ErrContestEnded
	}

	tx, err := a.ledger.Debit(ctx, req.UserID, contest.EntryFee, domain.TransactionEntryFee, contest.ID, "Entry fee: "+contest.Title)
	if err != nil {
		return JoinResult{}, err
	}

	participant := domain.ContestParticipant{
		ID:        a.newID(),
		ContestID: contest.ID,
		UserID:    req.UserID,
		Status:    domain.ParticipantJoined,
		JoinedAt:  now,
	}
	if err := a.participants.InsertParticipant(ctx, participant); err != nil {
		if _, rerr := a.ledger.Refund(ctx, req.UserID, tx.Amount, tx.ID, "Refund: "+contest.Title); rerr != nil {
			log.Printf("admission: refund of fee %s for %s failed: %v", tx.ID, req.UserID, rerr)
			return JoinResult{Transaction: tx}, fmt.Errorf("insert participant after fee %s, refund failed: %w", tx.ID, errors.Join(err, rerr))
		}
		return JoinResult{}, fmt.Errorf("insert participant, fee %s refunded: %w", tx.ID, err)
	}

	if err := a.contests.IncrementParticipants(ctx, contest.ID); err != nil {
		log.Printf("admission: bump participant count of %s: %v", contest.ID, err)
	}
	return JoinResult{Participant: participant, Transaction: tx}, nil
}
