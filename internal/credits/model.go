package credits

import (
	"strings"
	"time"
)

// EntryKind labels a ledger audit row.
type EntryKind string

const (
	EntrySignup       EntryKind = "SIGNUP"
	EntryDailyRefresh EntryKind = "DAILY_REFRESH"
	EntryDebit        EntryKind = "DEBIT"
	EntryPurchase     EntryKind = "PURCHASE"
	EntryRefund       EntryKind = "REFUND"
)

// Account is an identity plus its credit balance.
type Account struct {
	ID                    string    `json:"id"`
	Email                 string    `json:"email"`
	Name                  string    `json:"name"`
	PasswordHash          string    `json:"-"`
	AvatarRef             string    `json:"avatarRef,omitempty"`
	CreditBalance         int       `json:"creditBalance"`
	LastCreditRefreshDate time.Time `json:"lastCreditRefreshDate"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Entry is an append-only record of one balance mutation.
type Entry struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"accountId"`
	Kind         EntryKind `json:"kind"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balanceAfter"`
	Reference    string    `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IdentityAttributes are the profile fields supplied by the identity provider
// or the registration form.
type IdentityAttributes struct {
	Email        string
	Name         string
	AvatarRef    string
	PasswordHash string
}

// NormalizeEmail lower-cases and trims an email for use as the account key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
