// Package scheduler runs the periodic background work: refreshing every
// user's connections and sweeping orphaned provider registrations.
package scheduler

import "context"

// Job is a unit of work executed by the worker pool.
type Job interface {
	// Execute runs the job. Context carries the per-job timeout.
	Execute(ctx context.Context) error

	// UserID identifies whose data the job touches, for logging. Jobs not
	// scoped to a user return "system".
	UserID() string

	// Description is a human-readable label for logging.
	Description() string
}
