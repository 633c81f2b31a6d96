package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"supercv-backend/internal/shared/metrics"
	"supercv-backend/internal/shared/telemetry"
)

// signupGrant is the balance a brand-new account starts with.
const signupGrant = 1

// Ledger is the credit ledger. Every balance change goes through Store.Mutate,
// which serializes writers per account.
type Ledger struct {
	store Store
	clock Clock
	loc   *time.Location
	newID func() string
}

// NewLedger constructs a Ledger. A nil clock uses the wall clock and a nil
// location evaluates calendar days in UTC.
func NewLedger(store Store, clock Clock, loc *time.Location) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{store: store, clock: clock, loc: loc, newID: uuid.NewString}
}

// NewMemoryLedger wires a Ledger to an in-process store.
func NewMemoryLedger(clock Clock, loc *time.Location) *Ledger {
	return NewLedger(NewMemoryStore(), clock, loc)
}

func (l *Ledger) today() time.Time {
	return CalendarDay(l.clock.Now(), l.loc)
}

// EnsureAccount returns the account for attrs.Email, creating it with the
// signup grant when absent. Existing accounts get their profile refreshed and
// the daily refresh applied.
func (l *Ledger) EnsureAccount(ctx context.Context, attrs IdentityAttributes) (Account, bool, error) {
	email := NormalizeEmail(attrs.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Account{}, false, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	now := l.clock.Now().UTC()
	candidate := Account{
		ID:                    l.newID(),
		Email:                 email,
		Name:                  strings.TrimSpace(attrs.Name),
		PasswordHash:          attrs.PasswordHash,
		AvatarRef:             strings.TrimSpace(attrs.AvatarRef),
		CreditBalance:         signupGrant,
		LastCreditRefreshDate: l.today(),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	signup := Entry{
		ID:           l.newID(),
		AccountID:    candidate.ID,
		Kind:         EntrySignup,
		Amount:       signupGrant,
		BalanceAfter: signupGrant,
		CreatedAt:    now,
	}
	acct, created, err := l.store.Upsert(ctx, candidate, signup)
	if err != nil {
		return Account{}, false, err
	}
	if created {
		metrics.IncCredit(strings.ToLower(string(EntrySignup)), "ok")
		telemetry.Info("credits.account_created", map[string]any{"account_id": acct.ID})
		return acct, true, nil
	}
	acct, err = l.refresh(ctx, acct.ID)
	if err != nil {
		return Account{}, false, err
	}
	return acct, false, nil
}

// Get returns the account with the daily refresh applied.
func (l *Ledger) Get(ctx context.Context, accountID string) (Account, error) {
	return l.refresh(ctx, accountID)
}

// GetByEmail looks an account up by its normalized email without mutating it.
func (l *Ledger) GetByEmail(ctx context.Context, email string) (Account, error) {
	return l.store.GetByEmail(ctx, NormalizeEmail(email))
}

func (l *Ledger) refresh(ctx context.Context, accountID string) (Account, error) {
	today := l.today()
	return l.store.Mutate(ctx, accountID, func(ctx context.Context, acct *Account) ([]Entry, error) {
		entry, ok := applyDailyRefresh(acct, today)
		if !ok {
			return nil, nil
		}
		l.stamp(acct, &entry)
		metrics.IncCredit("daily_refresh", "ok")
		return []Entry{entry}, nil
	})
}

// Debit refreshes the balance and removes one credit. It fails with
// ErrInsufficientCredit when the balance is still zero. reference ties the
// debit to the work it pays for.
func (l *Ledger) Debit(ctx context.Context, accountID, reference string) (Account, error) {
	today := l.today()
	acct, err := l.store.Mutate(ctx, accountID, func(ctx context.Context, acct *Account) ([]Entry, error) {
		var entries []Entry
		if entry, ok := applyDailyRefresh(acct, today); ok {
			l.stamp(acct, &entry)
			entries = append(entries, entry)
		}
		if acct.CreditBalance <= 0 {
			return nil, ErrInsufficientCredit
		}
		acct.CreditBalance--
		debit := Entry{
			AccountID:    acct.ID,
			Kind:         EntryDebit,
			Amount:       -1,
			BalanceAfter: acct.CreditBalance,
			Reference:    reference,
		}
		l.stamp(acct, &debit)
		return append(entries, debit), nil
	})
	switch {
	case errors.Is(err, ErrInsufficientCredit):
		metrics.IncCredit("debit", "insufficient")
		return Account{}, err
	case err != nil:
		metrics.IncCredit("debit", "error")
		return Account{}, err
	}
	metrics.IncCredit("debit", "ok")
	return acct, nil
}

// Grant adds purchased credits. A reference that was already granted is a
// no-op, so webhook redeliveries never double-credit.
func (l *Ledger) Grant(ctx context.Context, accountID string, amount int, reference string) (Account, bool, error) {
	if amount <= 0 {
		return Account{}, false, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(reference) == "" {
		return Account{}, false, fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}
	granted := false
	acct, err := l.store.Mutate(ctx, accountID, func(ctx context.Context, acct *Account) ([]Entry, error) {
		exists, err := l.store.HasEntry(ctx, accountID, EntryPurchase, reference)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nil
		}
		acct.CreditBalance += amount
		entry := Entry{
			AccountID:    acct.ID,
			Kind:         EntryPurchase,
			Amount:       amount,
			BalanceAfter: acct.CreditBalance,
			Reference:    reference,
		}
		l.stamp(acct, &entry)
		granted = true
		return []Entry{entry}, nil
	})
	if err != nil {
		metrics.IncCredit("purchase", "error")
		return Account{}, false, err
	}
	if granted {
		metrics.IncCredit("purchase", "ok")
		telemetry.Info("credits.granted", map[string]any{"account_id": accountID, "amount": amount, "reference": reference})
	} else {
		metrics.IncCredit("purchase", "duplicate")
	}
	return acct, granted, nil
}

// Refund returns one credit taken by a debit whose work never started.
func (l *Ledger) Refund(ctx context.Context, accountID, reference string) (Account, error) {
	acct, err := l.store.Mutate(ctx, accountID, func(ctx context.Context, acct *Account) ([]Entry, error) {
		acct.CreditBalance++
		entry := Entry{
			AccountID:    acct.ID,
			Kind:         EntryRefund,
			Amount:       1,
			BalanceAfter: acct.CreditBalance,
			Reference:    reference,
		}
		l.stamp(acct, &entry)
		return []Entry{entry}, nil
	})
	if err != nil {
		metrics.IncCredit("refund", "error")
		return Account{}, err
	}
	metrics.IncCredit("refund", "ok")
	telemetry.Warn("credits.refunded", map[string]any{"account_id": accountID, "reference": reference})
	return acct, nil
}

// Entries lists the newest ledger entries first.
func (l *Ledger) Entries(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return l.store.Entries(ctx, accountID, limit)
}

func (l *Ledger) stamp(acct *Account, e *Entry) {
	now := l.clock.Now().UTC()
	acct.UpdatedAt = now
	e.ID = l.newID()
	e.CreatedAt = now
}
