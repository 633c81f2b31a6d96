// Package payments applies purchase notifications from the payment provider to
// the credit ledger.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"supercv-backend/internal/credits"
	"supercv-backend/internal/shared/telemetry"
)

const EventPaymentSuccess = "payment.success"

var ErrInvalidEvent = errors.New("invalid payment event")

// Outcome labels what a webhook delivery did.
type Outcome string

const (
	OutcomeGranted   Outcome = "granted"
	OutcomeDuplicate Outcome = "already_processed"
	OutcomeIgnored   Outcome = "ignored"
)

// Event is the provider's notification body.
type Event struct {
	Event  string    `json:"event"`
	ID     string    `json:"id"`
	Status string    `json:"status"`
	Data   EventData `json:"data"`
}

// EventData identifies the buyer and the purchased amount.
type EventData struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	Credits   int    `json:"credits"`
}

// Result is returned to the provider.
type Result struct {
	Outcome      Outcome `json:"status"`
	AccountID    string  `json:"accountId,omitempty"`
	CreditsAdded int     `json:"creditsAdded,omitempty"`
	Balance      *int    `json:"creditBalance,omitempty"`
}

// Ledger is the credit surface purchases use.
type Ledger interface {
	Get(ctx context.Context, accountID string) (credits.Account, error)
	GetByEmail(ctx context.Context, email string) (credits.Account, error)
	Grant(ctx context.Context, accountID string, amount int, reference string) (credits.Account, bool, error)
}

type Service struct {
	Ledger Ledger
}

func NewService(ledger Ledger) *Service {
	return &Service{Ledger: ledger}
}

// Decode parses a raw webhook body.
func Decode(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return ev, nil
}

// Apply grants the purchased credits once per payment id. Events other than a
// successful payment are acknowledged and ignored.
func (s *Service) Apply(ctx context.Context, ev Event) (Result, error) {
	if ev.Event != EventPaymentSuccess && !strings.EqualFold(ev.Status, "success") {
		telemetry.Info("payments.event_ignored", map[string]any{"event": ev.Event, "payment_id": ev.ID})
		return Result{Outcome: OutcomeIgnored}, nil
	}
	paymentID := strings.TrimSpace(ev.ID)
	if paymentID == "" {
		return Result{}, fmt.Errorf("%w: payment id is required", ErrInvalidEvent)
	}
	if ev.Data.Credits <= 0 {
		return Result{}, fmt.Errorf("%w: credits must be positive", ErrInvalidEvent)
	}

	acct, err := s.resolve(ctx, ev.Data)
	if err != nil {
		if errors.Is(err, credits.ErrNotFound) {
			telemetry.Error("payments.account_not_found", map[string]any{"payment_id": paymentID})
			return Result{Outcome: OutcomeIgnored}, nil
		}
		return Result{}, err
	}

	updated, granted, err := s.Ledger.Grant(ctx, acct.ID, ev.Data.Credits, paymentID)
	if err != nil {
		return Result{}, err
	}
	balance := updated.CreditBalance
	if !granted {
		return Result{Outcome: OutcomeDuplicate, AccountID: acct.ID, Balance: &balance}, nil
	}
	return Result{Outcome: OutcomeGranted, AccountID: acct.ID, CreditsAdded: ev.Data.Credits, Balance: &balance}, nil
}

func (s *Service) resolve(ctx context.Context, data EventData) (credits.Account, error) {
	if id := strings.TrimSpace(data.AccountID); id != "" {
		return s.Ledger.Get(ctx, id)
	}
	if data.Email != "" {
		return s.Ledger.GetByEmail(ctx, data.Email)
	}
	return credits.Account{}, credits.ErrNotFound
}
