package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"contest-engine/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const orderSeparator = "__"

// ErrInvalidAmount rejects deposits that are not strictly positive.
var ErrInvalidAmount = errors.New("amount must be positive")

// DepositRequest starts an out-of-band payment.
type DepositRequest struct {
	UserID      string                 `json:"userId" validate:"required"`
	Amount      decimal.Decimal        `json:"amount"`
	Type        domain.TransactionType `json:"type" validate:"required"`
	Description string                 `json:"description" validate:"required"`
	ContestID   string                 `json:"contestId,omitempty"`
}

// DepositRedirect is where the client continues the payment.
type DepositRedirect struct {
	OrderID     string             `json:"orderId"`
	URL         string             `json:"url"`
	Transaction domain.Transaction `json:"transaction"`
}

// Payments prepares redirects to the external payment gateway. Completion
// arrives asynchronously elsewhere and is matched through the order id.
type Payments struct {
	ledger      *Ledger
	profiles    ProfileRepository
	redirectURL string
	validate    *validator.Validate
	newID       func() string
}

func NewPayments(ledger *Ledger, profiles ProfileRepository, redirectURL string) *Payments {
	return &Payments{
		ledger:      ledger,
		profiles:    profiles,
		redirectURL: redirectURL,
		validate:    validator.New(),
		newID:       uuid.NewString,
	}
}

// OrderID builds an order id from which the user id can be recovered.
func OrderID(userID, random string) string {
	return userID + orderSeparator + random
}

// UserIDFromOrder extracts the user id from an order id built by OrderID.
func UserIDFromOrder(orderID string) (string, bool) {
	userID, _, ok := strings.Cut(orderID, orderSeparator)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// BeginDeposit records a pending transaction and returns the gateway redirect.
// A failed pending record does not block the redirect.
func (p *Payments) BeginDeposit(ctx context.Context, req DepositRequest) (DepositRedirect, error) {
	if err := p.validate.Struct(req); err != nil {
		return DepositRedirect{}, fmt.Errorf("invalid deposit request: %w", err)
	}
	if !req.Amount.IsPositive() {
		return DepositRedirect{}, fmt.Errorf("invalid deposit request: %w", ErrInvalidAmount)
	}

	username := req.UserID
	profile, err := p.profiles.GetProfile(ctx, req.UserID)
	switch {
	case err == nil:
		username = profile.Username
	case !errors.Is(err, domain.ErrProfileNotFound):
		return DepositRedirect{}, fmt.Errorf("load profile: %w", err)
	}

	orderID := OrderID(req.UserID, p.newID())
	tx := domain.Transaction{
		ID:          orderID,
		UserID:      req.UserID,
		Amount:      req.Amount,
		Type:        req.Type,
		ReferenceID: req.ContestID,
		Description: req.Description,
	}
	if err := p.ledger.RecordPending(ctx, tx); err != nil {
		log.Printf("payments: pending record for %s: %v", orderID, err)
	}

	target, err := url.Parse(p.redirectURL)
	if err != nil {
		return DepositRedirect{}, fmt.Errorf("parse redirect url: %w", err)
	}
	q := target.Query()
	q.Set("userId", req.UserID)
	q.Set("username", username)
	q.Set("amount", req.Amount.String())
	q.Set("orderId", orderID)
	q.Set("type", string(req.Type))
	q.Set("description", req.Description)
	if req.ContestID != "" {
		q.Set("contestId", req.ContestID)
	}
	target.RawQuery = q.Encode()

	tx.Status = domain.TransactionPending
	return DepositRedirect{OrderID: orderID, URL: target.String(), Transaction: tx}, nil
}
