package memory

import "context"

// InsertParams carries the fields of a new record; id and timestamps are
// assigned by the store.
type InsertParams struct {
	Owner          string
	ConversationID string
	OriginalText   string
	StructuredText string
	Tier           Tier
	Category       string
	Importance     float64
}

// Store persists memory records scoped by owner.
type Store interface {
	// Insert assigns an id and timestamps, persists the record, and
	// returns it in full. Importance is clamped to [0, 1] at write time.
	Insert(ctx context.Context, params InsertParams) (*Record, error)

	// Get loads one record scoped to its owner; a missing or
	// foreign-owned id returns (nil, nil).
	Get(ctx context.Context, owner, id string) (*Record, error)

	// Scan returns all records for the owner, optionally restricted to
	// one tier. No pagination happens at this layer.
	Scan(ctx context.Context, owner string, tier *Tier) ([]*Record, error)

	// List returns an offset/limit window ordered by importance
	// descending, then created_at descending, then id ascending, along
	// with the total count for the filter.
	List(ctx context.Context, owner string, tier *Tier, limit, offset int) ([]*Record, int, error)

	// Delete removes the record iff it exists and belongs to owner, and
	// reports whether a row was removed. Deleting a missing or
	// foreign-owned id is not an error.
	Delete(ctx context.Context, owner, id string) (bool, error)

	// RecordAccess increments access_count and stamps last_accessed_at.
	// Callers are expected to have already authorized the id.
	RecordAccess(ctx context.Context, id string) error
}
