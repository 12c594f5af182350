package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// Watermill message UUIDs use it.
func CreateULID() string {
	return newULID(time.Now()).String()
}

// NewProducerID identifies one publication for the lifetime of the process.
// Subscribers match advertised types per producer ID.
func NewProducerID() string {
	return "pub-" + CreateULID()
}

// ProducerTime extracts the creation time encoded in a producer ID.
func ProducerTime(producerID string) (time.Time, bool) {
	const prefix = "pub-"
	if len(producerID) <= len(prefix) || producerID[:len(prefix)] != prefix {
		return time.Time{}, false
	}
	id, err := ulid.Parse(producerID[len(prefix):])
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()), true
}

func newULID(at time.Time) ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy)
}
