package credits

import "context"

// MutateFunc changes a locked account copy and returns the audit entries to
// append. ctx carries the store transaction, if any. Returning an error aborts the mutation and nothing is persisted.
type MutateFunc func(ctx context.Context, acct *Account) ([]Entry, error)

// Store persists accounts and ledger entries. Mutate must serialize callers
// per account and apply the account update plus entries atomically.
type Store interface {
	// Upsert inserts candidate when no account has its email, appending entry.
	// Otherwise it refreshes non-empty profile fields and reports created=false.
	Upsert(ctx context.Context, candidate Account, entry Entry) (acct Account, created bool, err error)
	Mutate(ctx context.Context, accountID string, fn MutateFunc) (Account, error)
	Get(ctx context.Context, accountID string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	HasEntry(ctx context.Context, accountID string, kind EntryKind, reference string) (bool, error)
	Entries(ctx context.Context, accountID string, limit int) ([]Entry, error)
}
