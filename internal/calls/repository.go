package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("call record not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Repository is the persistence contract for call records.
//
// Concurrency contract (shared with the cleanup scheduler): callers must
// tolerate a record disappearing or changing status between a read and a
// mutation; mutating methods therefore re-fetch inside their own transaction
// and report "not found" via a boolean, which callers treat as a no-op.
type Repository interface {
	Create(ctx context.Context, r Record) (Record, error)
	GetByCallSID(ctx context.Context, callSID string) (Record, error)
	GetByID(ctx context.Context, id string) (Record, error)

	// ApplyStatus updates status (verbatim), and duration/endedAt when given.
	// It never creates a record: a bare status callback for an unknown call is
	// not allowed to fabricate one. found=false when no record matches.
	ApplyStatus(ctx context.Context, callSID, status string, durationSec *int, endedAt *time.Time) (Record, bool, error)

	SetTranscript(ctx context.Context, callSID, transcript string) error

	// UpdateMetadata applies mutate to the record's metadata under a row lock.
	// The same upsert discipline applies: repeated application of the same
	// mutation must converge, not append duplicates.
	UpdateMetadata(ctx context.Context, id string, mutate func(*Metadata)) (Record, bool, error)

	// ListOpenConferences returns non-terminal records whose conference
	// started before the cutoff and was never marked ended - candidates for
	// forced termination after a missed conference-end webhook.
	ListOpenConferences(ctx context.Context, startedBefore time.Time) ([]Record, error)
}
