package credits

import (
	"context"
	"sync"

	"supercv-backend/internal/shared/syncutil"
)

// MemoryStore keeps accounts in process. Mutations on one account are
// serialized by a per-account lock; different accounts never contend.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	byEmail  map[string]string
	entries  map[string][]Entry

	locks syncutil.KeyedMutex
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		byEmail:  make(map[string]string),
		entries:  make(map[string][]Entry),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, candidate Account, entry Entry) (Account, bool, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, false, err
	}
	unlock := s.locks.Lock("email:" + candidate.Email)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEmail[candidate.Email]; ok {
		acct := s.accounts[id]
		if candidate.Name != "" {
			acct.Name = candidate.Name
		}
		if candidate.AvatarRef != "" {
			acct.AvatarRef = candidate.AvatarRef
		}
		acct.UpdatedAt = candidate.UpdatedAt
		s.accounts[id] = acct
		return acct, false, nil
	}
	s.accounts[candidate.ID] = candidate
	s.byEmail[candidate.Email] = candidate.ID
	s.entries[candidate.ID] = append(s.entries[candidate.ID], entry)
	return candidate, true, nil
}

func (s *MemoryStore) Mutate(ctx context.Context, accountID string, fn MutateFunc) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	unlock := s.locks.Lock(accountID)
	defer unlock()

	s.mu.RLock()
	acct, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return Account{}, ErrNotFound
	}

	entries, err := fn(ctx, &acct)
	if err != nil {
		return Account{}, err
	}

	// Only ledger fields are written back; profile fields may have been
	// refreshed by Upsert while fn ran.
	s.mu.Lock()
	stored := s.accounts[accountID]
	stored.CreditBalance = acct.CreditBalance
	stored.LastCreditRefreshDate = acct.LastCreditRefreshDate
	stored.UpdatedAt = acct.UpdatedAt
	s.accounts[accountID] = stored
	s.entries[accountID] = append(s.entries[accountID], entries...)
	s.mu.Unlock()
	return stored, nil
}

func (s *MemoryStore) Get(ctx context.Context, accountID string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return Account{}, ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *MemoryStore) HasEntry(ctx context.Context, accountID string, kind EntryKind, reference string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries[accountID] {
		if e.Kind == kind && e.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Entries(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[accountID]
	out := make([]Entry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
