package app_test

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"contest-engine/internal/app"
	"contest-engine/internal/domain"
	"contest-engine/internal/infra/memory"

	"github.com/shopspring/decimal"
)

func TestOrderIDRoundTrip(t *testing.T) {
	orderID := app.OrderID("user-42", "9f1c")
	if orderID != "user-42__9f1c" {
		t.Fatalf("unexpected order id %q", orderID)
	}
	userID, ok := app.UserIDFromOrder(orderID)
	if !ok || userID != "user-42" {
		t.Fatalf("expected user-42, got %q ok=%v", userID, ok)
	}
	if _, ok := app.UserIDFromOrder("no-separator"); ok {
		t.Fatalf("expected failure without separator")
	}
}

func TestBeginDepositRecordsPendingAndRedirects(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if _, err := store.UpsertProfile(ctx, domain.UserProfile{ID: "u1", Username: "Player_ab12"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	payments := app.NewPayments(app.NewLedger(store, store), store, "https://pay.example.com/checkout")

	redirect, err := payments.BeginDeposit(ctx, app.DepositRequest{
		UserID:      "u1",
		Amount:      decimal.NewFromInt(500),
		Type:        domain.TransactionDeposit,
		Description: "Wallet top-up",
		ContestID:   "c1",
	})
	if err != nil {
		t.Fatalf("begin deposit: %v", err)
	}
	if !strings.HasPrefix(redirect.OrderID, "u1__") {
		t.Fatalf("order id must start with the user id, got %q", redirect.OrderID)
	}

	parsed, err := url.Parse(redirect.URL)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	q := parsed.Query()
	if q.Get("orderId") != redirect.OrderID || q.Get("username") != "Player_ab12" || q.Get("amount") != "500" || q.Get("contestId") != "c1" {
		t.Fatalf("unexpected redirect query %v", q)
	}

	txs, _ := store.ListTransactions(ctx, "u1", 0)
	if len(txs) != 1 || txs[0].ID != redirect.OrderID || txs[0].Status != domain.TransactionPending {
		t.Fatalf("expected one pending transaction keyed by order id, got %+v", txs)
	}
}

func TestBeginDepositRejectsNonPositiveAmount(t *testing.T) {
	store := memory.NewStore()
	payments := app.NewPayments(app.NewLedger(store, store), store, "https://pay.example.com/checkout")
	_, err := payments.BeginDeposit(context.Background(), app.DepositRequest{
		UserID: "u1", Amount: decimal.Zero, Type: domain.TransactionDeposit, Description: "x",
	})
	if err == nil {
		t.Fatalf("expected error for zero amount")
	}
}
