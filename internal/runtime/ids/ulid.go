package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// Used for event, job, and correlation identifiers.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewBindingID returns a random UUIDv4 string. Binding ids are operator
// issued and stable for the lifetime of a desired subscription, so they use
// the UUID format providers already expect rather than a sortable ULID.
func NewBindingID() string {
	return uuid.NewString()
}
