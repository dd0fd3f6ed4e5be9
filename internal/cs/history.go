package cs

import (
	"fmt"

	"cs-go/internal/model"
)

// GetHistory returns up to limit sync runs, newest first.
func (e *Engine) GetHistory(limit int) ([]*model.SyncRun, error) {
	e.logger.Debug("fetching sync history", "limit", limit)

	runs, err := e.database.ListSyncRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return runs, nil
}
