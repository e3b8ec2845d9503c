package driven

import (
	"context"

	"github.com/rosterhub/rosterhub/internal/domain/model"
)

// SettingStore is the driven port for operator-set configuration entries.
type SettingStore interface {
	// Get returns the value for key, or ("", nil) if unset.
	Get(ctx context.Context, key string) (string, error)

	// Set stores or replaces the value for key.
	Set(ctx context.Context, key, value string) error

	// List returns all settings ordered by key.
	List(ctx context.Context) ([]model.Setting, error)

	// Delete removes the entry for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
