package cs

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so saved_at markers are deterministic in
// tests. clockwork.Clock satisfies it.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts unique ID generation for sync runs.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
