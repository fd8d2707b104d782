package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"contest-engine/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethodWallet marks transactions paid from the in-app balance.
const PaymentMethodWallet = "WALLET"

// Ledger owns wallet balances. The wallet is the authoritative balance and
// the profile's balance_htg is rewritten from it after every mutation.
type Ledger struct {
	profiles ProfileRepository
	ledger   LedgerRepository
	clock    func() time.Time
	newID    func() string
}

func NewLedger(profiles ProfileRepository, ledger LedgerRepository) *Ledger {
	return &Ledger{
		profiles: profiles,
		ledger:   ledger,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

// EnsureWallet returns the user's wallet, creating it on first use. A new
// wallet starts from the balance cached on the profile, if any.
func (l *Ledger) EnsureWallet(ctx context.Context, userID string) (domain.Wallet, error) {
	wallet, err := l.ledger.GetWallet(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) {
		return domain.Wallet{}, fmt.Errorf("load wallet: %w", err)
	}

	wallet = domain.Wallet{UserID: userID}
	if profile, perr := l.profiles.GetProfile(ctx, userID); perr == nil && profile.BalanceHTG.IsPositive() {
		log.Printf("ledger: seeding wallet for %s from profile balance %s", userID, profile.BalanceHTG.StringFixed(2))
		wallet.TotalBalance = profile.BalanceHTG
		wallet.TotalDeposited = profile.BalanceHTG
	}
	wallet, err = l.ledger.UpsertWallet(ctx, wallet)
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("create wallet: %w", err)
	}
	return wallet, nil
}

// Debit takes amount from the wallet as a completed transaction. It fails
// with *domain.InsufficientBalanceError without writing anything when the
// balance is short.
func (l *Ledger) Debit(ctx context.Context, userID string, amount decimal.Decimal, kind domain.TransactionType, referenceID, description string) (domain.Transaction, error) {
	wallet, err := l.EnsureWallet(ctx, userID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if wallet.TotalBalance.LessThan(amount) {
		return domain.Transaction{}, &domain.InsufficientBalanceError{Balance: wallet.TotalBalance, Fee: amount}
	}

	return l.post(ctx, wallet, amount.Neg(), kind, referenceID, description)
}

// Refund credits amount back to the wallet, referencing the transaction it reverses.
func (l *Ledger) Refund(ctx context.Context, userID string, amount decimal.Decimal, referenceID, description string) (domain.Transaction, error) {
	wallet, err := l.EnsureWallet(ctx, userID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return l.post(ctx, wallet, amount, domain.TransactionRefund, referenceID, description)
}

// post records a completed wallet transaction and moves the balance by delta.
func (l *Ledger) post(ctx context.Context, wallet domain.Wallet, delta decimal.Decimal, kind domain.TransactionType, referenceID, description string) (domain.Transaction, error) {
	tx := domain.Transaction{
		ID:            l.newID(),
		UserID:        wallet.UserID,
		Amount:        delta.Abs(),
		Type:          kind,
		Status:        domain.TransactionCompleted,
		ReferenceID:   referenceID,
		PaymentMethod: PaymentMethodWallet,
		Description:   description,
		CreatedAt:     l.clock(),
	}
	if err := l.ledger.InsertTransaction(ctx, tx); err != nil {
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	wallet.TotalBalance = wallet.TotalBalance.Add(delta)
	if _, err := l.ledger.UpsertWallet(ctx, wallet); err != nil {
		return tx, fmt.Errorf("update wallet: %w", err)
	}
	l.project(ctx, wallet.UserID, wallet.TotalBalance)
	return tx, nil
}

// RecordPending stores a transaction awaiting an out-of-band confirmation.
func (l *Ledger) RecordPending(ctx context.Context, tx domain.Transaction) error {
	tx.Status = domain.TransactionPending
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.clock()
	}
	if err := l.ledger.InsertTransaction(ctx, tx); err != nil {
		return fmt.Errorf("insert pending transaction: %w", err)
	}
	return nil
}

// Recent lists the latest transactions of a user.
func (l *Ledger) Recent(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	txs, err := l.ledger.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// project rewrites the cached profile balance. The wallet stays correct if it fails.
func (l *Ledger) project(ctx context.Context, userID string, balance decimal.Decimal) {
	if err := l.profiles.SetBalance(ctx, userID, balance); err != nil && !errors.Is(err, domain.ErrProfileNotFound) {
		log.Printf("ledger: project balance for %s: %v", userID, err)
	}
}
