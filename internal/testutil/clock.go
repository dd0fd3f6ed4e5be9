package testutil

import (
	"fmt"
	"sync"
	"time"
)

// FixedTime is the start time of fake clocks in tests: 2024-01-15 10:30 UTC.
var FixedTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubIDGenerator returns sequential IDs: "run-1", "run-2", etc.
type StubIDGenerator struct {
	mu      sync.Mutex
	counter int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("run-%d", g.counter)
}
