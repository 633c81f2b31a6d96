package analyses

import (
	"context"
	"sort"
	"sync"

	"supercv-backend/internal/shared/syncutil"
)

// MemoryRepo stores records in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Record

	locks syncutil.KeyedMutex
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Record)}
}

// Create stores the record.
func (r *MemoryRepo) Create(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[rec.ID] = cloneRecord(rec)
	return nil
}

// Get returns a record by its ID.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Update runs fn under the record's lock and stores the result.
func (r *MemoryRepo) Update(ctx context.Context, id string, fn UpdateFunc) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	unlock := r.locks.Lock(id)
	defer unlock()

	r.mu.RLock()
	current, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}

	next := cloneRecord(current)
	if err := fn(&next); err != nil {
		return Record{}, err
	}

	r.mu.Lock()
	r.byID[id] = next
	r.mu.Unlock()
	return cloneRecord(next), nil
}

// ListByOwner returns an owner's records, newest first, with limit/offset.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	owned := make([]Record, 0)
	for _, rec := range r.byID {
		if rec.OwnedBy(ownerID) {
			owned = append(owned, cloneRecord(rec))
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	if offset >= len(owned) {
		return []Record{}, nil
	}
	end := len(owned)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return owned[offset:end], nil
}

// cloneRecord copies the pointer fields an UpdateFunc may write through.
// Result payloads are replaced wholesale, never edited in place.
func cloneRecord(rec Record) Record {
	if rec.OwnerID != nil {
		owner := *rec.OwnerID
		rec.OwnerID = &owner
	}
	if rec.Customization != nil {
		c := *rec.Customization
		rec.Customization = &c
	}
	if rec.StartedAt != nil {
		t := *rec.StartedAt
		rec.StartedAt = &t
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		rec.CompletedAt = &t
	}
	return rec
}

var _ Repo = (*MemoryRepo)(nil)
