package analyses

import "context"

// UpdateFunc mutates a locked copy of a record. Returning an error discards
// the change.
type UpdateFunc func(rec *Record) error

// Repo defines persistence operations for analysis records. Update must
// serialize callers per record and persist the mutated copy atomically.
type Repo interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (Record, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Record, error)
}
