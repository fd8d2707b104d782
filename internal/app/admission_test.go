package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"contest-engine/internal/app"
	"contest-engine/internal/domain"
	"contest-engine/internal/infra/memory"

	"github.com/shopspring/decimal"
)

func newAdmissionFixture(t *testing.T, balance int64, fee int64, endsAt *time.Time) (*memory.Store, *app.Admission) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	store.PutContest(domain.Contest{
		ID:       "c1",
		Title:    "Friday Night",
		EntryFee: decimal.NewFromInt(fee),
		Status:   domain.ContestActive,
		EndsAt:   endsAt,
	})
	if _, err := store.UpsertProfile(ctx, domain.UserProfile{ID: "u1", Level: 1, BalanceHTG: decimal.NewFromInt(balance)}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	if _, err := store.UpsertWallet(ctx, domain.Wallet{UserID: "u1", TotalBalance: decimal.NewFromInt(balance)}); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	ledger := app.NewLedger(store, store)
	return store, app.NewAdmission(store, store, ledger)
}

func TestJoinInsufficientBalanceWritesNothing(t *testing.T) {
	ctx := context.Background()
	store, admission := newAdmissionFixture(t, 200, 250, nil)

	_, err := admission.Join(ctx, app.JoinRequest{UserID: "u1", ContestID: "c1"})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	var short *domain.InsufficientBalanceError
	if !errors.As(err, &short) || !short.Shortfall().Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected a shortfall of 50, got %v", err)
	}

	txs, _ := store.ListTransactions(ctx, "u1", 0)
	if len(txs) != 0 {
		t.Fatalf("expected no transactions, got %d", len(txs))
	}
	if _, err := store.GetParticipant(ctx, "c1", "u1"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected no participant row, got %v", err)
	}
}

func TestJoinDebitsWalletAndRegisters(t *testing.T) {
	ctx := context.Background()
	store, admission := newAdmissionFixture(t, 300, 250, nil)

	result, err := admission.Join(ctx, app.JoinRequest{UserID: "u1", ContestID: "c1"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if result.Transaction.Status != domain.TransactionCompleted || result.Transaction.PaymentMethod != app.PaymentMethodWallet {
		t.Fatalf("unexpected transaction %+v", result.Transaction)
	}
	if result.Participant.Status != domain.ParticipantJoined {
		t.Fatalf("unexpected participant %+v", result.Participant)
	}

	wallet, _ := store.GetWallet(ctx, "u1")
	if !wallet.TotalBalance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected wallet balance 50, got %s", wallet.TotalBalance)
	}
	profile, _ := store.GetProfile(ctx, "u1")
	if !profile.BalanceHTG.Equal(wallet.TotalBalance) {
		t.Fatalf("profile balance %s does not mirror wallet %s", profile.BalanceHTG, wallet.TotalBalance)
	}
	contest, _ := store.GetContest(ctx, "c1")
	if contest.CurrentParticipants != 1 {
		t.Fatalf("expected participant counter 1, got %d", contest.CurrentParticipants)
	}
}

func TestJoinChecksRunInOrder(t *testing.T) {
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	store, admission := newAdmissionFixture(t, 0, 250, &past)

	if _, err := admission.Join(ctx, app.JoinRequest{UserID: "u1", ContestID: "c1"}); !errors.Is(err, domain.ErrContestEnded) {
		t.Fatalf("ended contest should win over balance, got %v", err)
	}

	if err := store.InsertParticipant(ctx, domain.ContestParticipant{ID: "p1", ContestID: "c1", UserID: "u1", Status: domain.ParticipantJoined}); err != nil {
		t.Fatalf("seed participant: %v", err)
	}
	if _, err := admission.Join(ctx, app.JoinRequest{UserID: "u1", ContestID: "c1"}); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("already joined should win over ended, got %v", err)
	}
}

func TestJoinRequiresIDs(t *testing.T) {
	_, admission := newAdmissionFixture(t, 300, 250, nil)
	if _, err := admission.Join(context.Background(), app.JoinRequest{UserID: "u1"}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestJoinRefundsFeeWhenRegistrationFails(t *testing.T) {
	for name, insertErr := range map[string]error{
		"store down":  errors.New("network down"),
		"lost a race": domain.ErrAlreadyJoined,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store, _ := newAdmissionFixture(t, 300, 250, nil)
			failing := &failingParticipants{Store: store, err: insertErr}
			admission := app.NewAdmission(store, failing, app.NewLedger(store, store))

			_, err := admission.Join(ctx, app.JoinRequest{UserID: "u1", ContestID: "c1"})
			if !errors.Is(err, insertErr) {
				t.Fatalf("expected %v, got %v", insertErr, err)
			}

			wallet, _ := store.GetWallet(ctx, "u1")
			if !wallet.TotalBalance.Equal(decimal.NewFromInt(300)) {
				t.Fatalf("expected the fee back, wallet is %s", wallet.TotalBalance)
			}
			profile, _ := store.GetProfile(ctx, "u1")
			if !profile.BalanceHTG.Equal(wallet.TotalBalance) {
				t.Fatalf("profile balance %s does not mirror wallet %s", profile.BalanceHTG, wallet.TotalBalance)
			}
			txs, _ := store.ListTransactions(ctx, "u1", 0)
			var fees, refunds int
			for _, tx := range txs {
				switch tx.Type {
				case domain.TransactionEntryFee:
					fees++
				case domain.TransactionRefund:
					refunds++
					if !tx.Amount.Equal(decimal.NewFromInt(250)) {
						t.Fatalf("unexpected refund amount %s", tx.Amount)
					}
				}
			}
			if fees != 1 || refunds != 1 {
				t.Fatalf("expected one fee and one refund, got %d and %d", fees, refunds)
			}
			contest, _ := store.GetContest(ctx, "c1")
			if contest.CurrentParticipants != 0 {
				t.Fatalf("counter must not move, got %d", contest.CurrentParticipants)
			}
		})
	}
}

// failingParticipants refuses every registration with err.
type failingParticipants struct {
	*memory.Store
	err error
}

func (f *failingParticipants) InsertParticipant(context.Context, domain.ContestParticipant) error {
	return f.err
}
