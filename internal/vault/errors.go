package vault

import (
	"fmt"

	"github.com/org/passvault/internal/crypto"
	"github.com/org/passvault/internal/storage"
)

var (
	// ErrNotFound is returned when the referenced credential does not exist.
	ErrNotFound = storage.ErrNotFound

	// ErrDecryption is returned when a stored secret cannot be recovered
	// under the configured key.
	ErrDecryption = crypto.ErrDecryption
)

// ValidationError reports an invalid input. It is returned before any I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
