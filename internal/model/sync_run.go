package model

import (
	"database/sql"
	"time"
)

// Sync run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunError   = "error"
)

// SyncRun records one poll cycle. Rows are created when the cycle starts
// and finished when it ends, so a crash leaves a "running" row behind.
type SyncRun struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       sql.NullTime
	Status           string
	CoursesTraversed int64
	FilesSaved       int64
	LinksSaved       int64
	ItemsFailed      int64
	Error            string
}
