package driven

import (
	"context"

	"github.com/rosterhub/rosterhub/internal/domain/model"
)

// RunStore is the driven port for the run-history audit log.
type RunStore interface {
	// Record persists one completed run.
	Record(ctx context.Context, run model.Run) error

	// ListRecent returns up to limit runs, most recent first.
	ListRecent(ctx context.Context, limit int) ([]model.Run, error)
}
