package dust

import (
	"context"

	"github.com/lyallcooper/reclaim/internal/types"
)

// ExecutorInterface defines the interface for dust operations.
// This allows mocking the executor in tests.
type ExecutorInterface interface {
	// CheckInstalled verifies that dust is installed and accessible
	CheckInstalled(ctx context.Context) error

	// Version returns the dust version string
	Version(ctx context.Context) (string, error)

	// List returns the immediate children of dir. It never fails; on any
	// error it falls back to a direct filesystem read or returns nil.
	List(ctx context.Context, dir string) []types.Entry
}

// Ensure Executor implements ExecutorInterface
var _ ExecutorInterface = (*Executor)(nil)
