// Package jobstore is the durable record of job identity, status and result.
// Every other component reads and writes job state through a Store.
package jobstore

import (
	"context"
	"errors"

	"github.com/dharsanguruparan/DocChat/internal/model"
)

// ErrNotFound is returned when a job id is absent.
var ErrNotFound = errors.New("job not found")

// Mutation changes a job inside Update. Returning an error aborts the update
// and leaves the stored record untouched.
type Mutation func(job *model.Job) error

// Store persists jobs. Implementations must be safe for concurrent use; a
// reader observes either the state before or after an Update, never a mix.
type Store interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	// Update applies fn atomically, refreshes UpdatedAt and returns the
	// committed record.
	Update(ctx context.Context, id string, fn Mutation) (*model.Job, error)
	// List returns jobs newest first.
	List(ctx context.Context) ([]*model.Job, error)
	Delete(ctx context.Context, id string) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
