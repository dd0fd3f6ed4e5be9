package cs

import (
	"fmt"

	"cs-go/internal/model"
	"cs-go/internal/schema"
)

// KindStatus is the number of pending rows of one kind.
type KindStatus struct {
	Kind    string
	Pending int64
}

// CourseStatus describes one seeded course.
type CourseStatus struct {
	ID        int64
	Name      string
	Term      string
	UpdatedAt string
	SavedAt   string
	Pending   bool
}

// Status is what the next cycle will do.
type Status struct {
	Kinds   []KindStatus
	Courses []CourseStatus
}

// GetStatus reports pending counts per kind and the state of every course.
func (e *Engine) GetStatus() (*Status, error) {
	e.logger.Debug("computing status")

	status := &Status{}
	for _, kind := range []string{model.KindCourse, model.KindFolder, model.KindFile, model.KindExternalLink} {
		n, err := e.database.CountPending(kind)
		if err != nil {
			return nil, fmt.Errorf("counting pending %s: %w", kind, err)
		}
		status.Kinds = append(status.Kinds, KindStatus{Kind: kind, Pending: n})
	}

	recs, err := e.database.Find(model.KindCourse, schema.Record{"is_favorite": true})
	if err != nil {
		return nil, fmt.Errorf("finding courses: %w", err)
	}
	for _, rec := range recs {
		c := model.CourseFromRecord(rec)
		status.Courses = append(status.Courses, CourseStatus{
			ID:        c.ID,
			Name:      c.Name.String,
			Term:      c.Term.String,
			UpdatedAt: c.UpdatedAt.String,
			SavedAt:   c.SavedAt.String,
			Pending:   c.Pending(),
		})
	}

	return status, nil
}
