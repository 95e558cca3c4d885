package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/org/passvault/pkg/models"
)

// ErrNotFound is returned when a requested credential does not exist.
var ErrNotFound = errors.New("not found")

// WriteError reports a failed mutation. No partial record is left behind.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("store write (%s): %v", e.Op, e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError reports a failed read.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string { return fmt.Sprintf("store read (%s): %v", e.Op, e.Err) }

func (e *ReadError) Unwrap() error { return e.Err }

// Store is the durable credential table. Secrets passed in and returned are
// ciphertext; the store never interprets them.
//
// Mutations are serialized. Reads may run concurrently with each other and
// only ever observe committed rows.
type Store interface {
	// Insert assigns the next id, stamps created_at and persists the row before returning.
	Insert(ctx context.Context, service, username string, secret []byte) (int64, error)
	// SelectAll returns every row, newest created_at first, ties by id descending.
	SelectAll(ctx context.Context) ([]models.Credential, error)
	SelectOne(ctx context.Context, id int64) (*models.Credential, error)
	// Update changes only the supplied fields and refreshes updated_at.
	Update(ctx context.Context, id int64, patch models.RecordPatch) (*models.Credential, error)
	Remove(ctx context.Context, id int64) error

	// Search matches query as a case-insensitive substring of service.
	Search(ctx context.Context, query string) ([]models.Credential, error)
	Count(ctx context.Context) (int64, error)

	Close() error
}
