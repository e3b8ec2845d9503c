package driven

import (
	"context"

	"github.com/rosterhub/rosterhub/internal/domain/model"
)

// MemberStore is the driven port for roster persistence.
//
// Load and Save fail soft: a read, parse, or write error is logged by the
// adapter and never surfaced to the caller. Load returns an empty map on
// failure; Save that fails leaves the previous contents in place (last writer
// wins, no rollback). The mutating operations reload from the backing store
// immediately before applying their change, which shrinks but does not
// eliminate the race window against concurrent writers. This is a known,
// accepted consistency gap given the low concurrency of administrative
// operations.
type MemberStore interface {
	// Load returns the full roster keyed by member ID. Never fails; an
	// unreadable or unparsable store yields an empty map.
	Load(ctx context.Context) map[string]model.Member

	// Save replaces the full roster. Best effort; errors are logged.
	Save(ctx context.Context, members map[string]model.Member)

	// Upsert inserts or overwrites the record keyed by member.ID.
	Upsert(ctx context.Context, member model.Member)

	// Remove deletes one record. Reports whether the record existed.
	Remove(ctx context.Context, id string) bool

	// Clear deletes every record and returns how many were removed.
	Clear(ctx context.Context) int

	// Sweep removes every record lacking a usable token pair and returns
	// how many were removed.
	Sweep(ctx context.Context) int

	// ReplaceAll overwrites the backing store wholesale with raw, after
	// validating that raw parses as a roster and backing up the current
	// contents to a sibling path. No schema validation beyond a valid parse.
	ReplaceAll(ctx context.Context, raw []byte) error
}
