package cs

import (
	"cs-go/internal/model"
	"cs-go/internal/schema"
)

// Database is the Record Store. Every mutation is committed before the
// call returns; saved_at markers are the only resume state across restarts.
type Database interface {
	// Upsert merges the fields present in e's record into the row keyed by
	// its id, creating the row if absent. Absent fields keep their values.
	Upsert(e model.Entity) error

	// Get returns the row of kind with the given id, or nil if there is none.
	Get(kind string, id int64) (schema.Record, error)

	// Find returns rows of kind whose fields equal every value in eq, in
	// storage order. An empty eq matches every row.
	Find(kind string, eq schema.Record) ([]schema.Record, error)

	// FindPending returns rows whose saved_at is null or older than updated_at.
	FindPending(kind string) ([]schema.Record, error)

	// CountPending returns the number of rows FindPending would return.
	CountPending(kind string) (int64, error)

	// Sync run history

	// CreateSyncRun records the start of a cycle.
	CreateSyncRun(run *model.SyncRun) error

	// FinishSyncRun stores the outcome and counters of a cycle.
	FinishSyncRun(run *model.SyncRun) error

	// ListSyncRuns returns up to limit runs, newest first. limit <= 0 means all.
	ListSyncRuns(limit int) ([]*model.SyncRun, error)

	// Close closes the database connection.
	Close() error
}
