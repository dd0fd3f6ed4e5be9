package cs

import (
	"context"
	"database/sql"
	"fmt"
	"path"

	"cs-go/internal/model"
	"cs-go/internal/schema"
)

// Engine runs poll cycles: it walks the catalog from the seeded courses,
// records what changed, and materializes every pending file and link.
type Engine struct {
	database Database
	catalog  Catalog
	provider Provider
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	metrics  Metrics
}

// NewEngine creates an Engine with the provided dependencies. A nil logger
// or metrics sink discards events.
func NewEngine(database Database, catalog Catalog, provider Provider, logger Logger, clock Clock, idgen IDGenerator, metrics Metrics) *Engine {
	if logger == nil {
		logger = NewNopLogger()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Engine{
		database: database,
		catalog:  catalog,
		provider: provider,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		metrics:  metrics,
	}
}

// TraverseResult summarizes the traversal phase of a cycle.
type TraverseResult struct {
	CoursesTraversed int
	ContainersFailed int
}

// MaterializeResult summarizes the materialization phase of a cycle.
type MaterializeResult struct {
	FilesSaved   int
	LinksSaved   int
	ItemsFailed  int
	ItemsSkipped int
}

// SeedFavorites stores the favorite courses. Only courses stored here are
// ever traversed. Returns the number of courses seeded.
func (e *Engine) SeedFavorites(ctx context.Context) (int, error) {
	favorites, err := e.catalog.ListFavorites(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing favorite courses: %w", err)
	}

	for _, rc := range favorites {
		course := &model.Course{
			ID:         rc.ID,
			Name:       model.String(rc.Name),
			Code:       model.String(rc.Code),
			IsFavorite: model.Bool(true),
		}
		if err := e.database.Upsert(course); err != nil {
			return 0, fmt.Errorf("storing course %d: %w", rc.ID, err)
		}
		e.logger.Debug("favorite course seeded", "course_id", rc.ID, "name", rc.Name)
	}

	e.logger.Info("favorites seeded", "count", len(favorites))
	return len(favorites), nil
}

// RunCycle traverses pending courses, then materializes pending items. The
// cycle is recorded as a sync run whether or not it succeeds.
func (e *Engine) RunCycle(ctx context.Context) (*model.SyncRun, error) {
	run := &model.SyncRun{
		ID:        e.idgen.New(),
		StartedAt: e.clock.Now(),
		Status:    model.RunRunning,
	}
	if err := e.database.CreateSyncRun(run); err != nil {
		return nil, fmt.Errorf("recording sync run: %w", err)
	}
	e.logger.Info("cycle started", "run_id", run.ID)

	err := e.runCycle(ctx, run)

	finished := e.clock.Now()
	run.FinishedAt = sql.NullTime{Time: finished, Valid: true}
	run.Status = model.RunSuccess
	if err != nil {
		run.Status = model.RunError
		run.Error = err.Error()
	}
	if ferr := e.database.FinishSyncRun(run); ferr != nil {
		e.logger.Error("failed to record sync run", "run_id", run.ID, "error", ferr)
		if err == nil {
			err = fmt.Errorf("recording sync run: %w", ferr)
		}
	}

	e.metrics.CycleFinished(run.Status, finished.Sub(run.StartedAt))
	e.recordPending()

	if err != nil {
		e.logger.Error("cycle failed", "run_id", run.ID, "error", err)
		return run, err
	}
	e.logger.Info("cycle finished", "run_id", run.ID,
		"courses", run.CoursesTraversed, "files", run.FilesSaved,
		"links", run.LinksSaved, "failed", run.ItemsFailed)
	return run, nil
}

func (e *Engine) runCycle(ctx context.Context, run *model.SyncRun) error {
	traversed, err := e.TraverseCourses(ctx)
	if traversed != nil {
		run.CoursesTraversed = int64(traversed.CoursesTraversed)
	}
	if err != nil {
		return err
	}

	materialized, err := e.MaterializePending(ctx)
	if materialized != nil {
		run.FilesSaved = int64(materialized.FilesSaved)
		run.LinksSaved = int64(materialized.LinksSaved)
		run.ItemsFailed = int64(materialized.ItemsFailed)
	}
	return err
}

// TraverseCourses walks every known course the catalog reports. A course is
// traversed for children only when it is pending; an up-to-date course only
// has its pending folders retried. Courses not seeded from the favorites
// feed are skipped.
func (e *Engine) TraverseCourses(ctx context.Context) (*TraverseResult, error) {
	result := &TraverseResult{}

	courses, err := e.catalog.ListAllCourses(ctx)
	if err != nil {
		return result, fmt.Errorf("listing courses: %w", err)
	}

	for _, rc := range courses {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rec, err := e.database.Get(model.KindCourse, rc.ID)
		if err != nil {
			return result, fmt.Errorf("finding course %d: %w", rc.ID, err)
		}
		if rec == nil {
			continue
		}

		course := model.CourseFromRecord(rec)
		course.UpdatedAt = e.timestamp(rc.UpdatedAt, model.KindCourse, rc.ID)
		if rc.Term != "" {
			course.Term = model.String(rc.Term)
		}
		if err := e.database.Upsert(course); err != nil {
			return result, fmt.Errorf("storing course %d: %w", rc.ID, err)
		}

		if !course.Pending() {
			e.logger.Debug("course up to date", "course_id", course.ID)
			failed, err := e.retryPendingFolders(ctx, course)
			result.ContainersFailed += failed
			if err != nil {
				return result, err
			}
			continue
		}

		failed, err := e.traverseCourse(ctx, course)
		result.ContainersFailed += failed
		if err != nil {
			return result, err
		}
		result.CoursesTraversed++
	}

	return result, nil
}

// traverseCourse records the modules and folders of a pending course and
// marks it saved. A folder whose entries cannot be fetched is left pending
// and does not keep the course from being marked saved.
func (e *Engine) traverseCourse(ctx context.Context, course *model.Course) (int, error) {
	e.logger.Info("updating course", "course_id", course.ID, "name", course.Name.String)

	modules, err := e.catalog.ListModulesWithItems(ctx, course.ID)
	if err != nil {
		return 0, fmt.Errorf("listing modules of course %d: %w", course.ID, err)
	}
	for _, module := range modules {
		if err := e.storeModuleItems(course.ID, module); err != nil {
			return 0, err
		}
	}

	folders, err := e.catalog.ListFolders(ctx, course.ID)
	if err != nil {
		return 0, fmt.Errorf("listing folders of course %d: %w", course.ID, err)
	}

	failed := 0
	for _, rf := range folders {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		ok, err := e.traverseFolder(ctx, course, rf)
		if err != nil {
			return failed, err
		}
		if !ok {
			failed++
		}
	}

	course.SavedAt = e.now()
	if err := e.database.Upsert(course); err != nil {
		return failed, fmt.Errorf("marking course %d saved: %w", course.ID, err)
	}
	return failed, nil
}

func (e *Engine) storeModuleItems(courseID int64, module RemoteModule) error {
	for _, item := range module.Items {
		content := item.Content
		if content == nil {
			continue
		}

		var entity model.Entity
		switch content.Type {
		case ContentFile:
			entity = &model.File{
				ID:          content.ID,
				DisplayName: model.String(content.Title),
				DownloadURL: model.String(UsableDownloadURL(content.URL)),
				CourseID:    model.Int(courseID),
				ModuleName:  model.String(module.Name),
				UpdatedAt:   e.timestamp(content.UpdatedAt, model.KindFile, content.ID),
			}
		case ContentExternalURL:
			entity = &model.ExternalLink{
				ID:         content.ID,
				URL:        model.String(content.URL),
				Title:      model.String(content.Title),
				CourseID:   model.Int(courseID),
				ModuleName: model.String(module.Name),
				UpdatedAt:  e.timestamp(content.UpdatedAt, model.KindExternalLink, content.ID),
			}
		default:
			e.logger.Debug("module item ignored", "type", content.Type, "id", content.ID)
			continue
		}

		if err := e.database.Upsert(entity); err != nil {
			return fmt.Errorf("storing %s %d: %w", entity.Kind(), content.ID, err)
		}
	}
	return nil
}

// traverseFolder stores a folder and, when it is pending, its files. It
// returns false when the entries could not be fetched.
func (e *Engine) traverseFolder(ctx context.Context, course *model.Course, rf RemoteFolder) (bool, error) {
	folder := &model.Folder{
		ID:         rf.ID,
		FullName:   model.String(rf.FullName),
		FilesCount: model.Int(rf.FilesCount),
		CourseID:   model.Int(course.ID),
		UpdatedAt:  e.timestamp(rf.UpdatedAt, model.KindFolder, rf.ID),
	}
	if rf.ParentID != nil {
		folder.ParentID = model.Int(*rf.ParentID)
	}
	if err := e.database.Upsert(folder); err != nil {
		return false, fmt.Errorf("storing folder %d: %w", rf.ID, err)
	}

	rec, err := e.database.Get(model.KindFolder, rf.ID)
	if err != nil {
		return false, fmt.Errorf("finding folder %d: %w", rf.ID, err)
	}
	folder = model.FolderFromRecord(rec)

	if !folder.Pending() {
		return true, nil
	}
	return e.fetchFolderFiles(ctx, course, folder)
}

// retryPendingFolders fetches the entries of folders left pending by an
// earlier cycle of a course that is otherwise up to date. Only stored rows
// are consulted; the course's modules and folder list are not refetched.
func (e *Engine) retryPendingFolders(ctx context.Context, course *model.Course) (int, error) {
	recs, err := e.database.Find(model.KindFolder, schema.Record{"course_id": course.ID})
	if err != nil {
		return 0, fmt.Errorf("finding folders of course %d: %w", course.ID, err)
	}

	failed := 0
	for _, rec := range recs {
		folder := model.FolderFromRecord(rec)
		if !folder.Pending() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		e.logger.Info("retrying folder", "course_id", course.ID, "folder_id", folder.ID)
		ok, err := e.fetchFolderFiles(ctx, course, folder)
		if err != nil {
			return failed, err
		}
		if !ok {
			failed++
		}
	}
	return failed, nil
}

// fetchFolderFiles stores the files of a pending folder and marks it saved.
// A folder without entries is marked saved without a request.
func (e *Engine) fetchFolderFiles(ctx context.Context, course *model.Course, folder *model.Folder) (bool, error) {
	var files []RemoteFile
	if folder.FilesCount.Int64 > 0 {
		var err error
		files, err = e.catalog.ListFiles(ctx, folder.ID)
		if err != nil {
			if IsTransportError(err) {
				e.logger.Warn("failed to list folder files", "course_id", course.ID,
					"folder_id", folder.ID, "folder", folder.FullName.String, "error", err)
				e.metrics.ContainerFailed()
				return false, nil
			}
			return false, fmt.Errorf("listing files of folder %d: %w", folder.ID, err)
		}
	}

	for _, rf := range files {
		file := &model.File{
			ID:          rf.ID,
			DisplayName: model.String(rf.DisplayName),
			DownloadURL: model.String(UsableDownloadURL(rf.URL)),
			CourseID:    model.Int(course.ID),
			FolderID:    model.Int(folder.ID),
			UpdatedAt:   e.timestamp(rf.UpdatedAt, model.KindFile, rf.ID),
		}
		if err := e.database.Upsert(file); err != nil {
			return false, fmt.Errorf("storing file %d: %w", rf.ID, err)
		}
	}

	folder.SavedAt = e.now()
	if err := e.database.Upsert(folder); err != nil {
		return false, fmt.Errorf("marking folder %d saved: %w", folder.ID, err)
	}
	e.logger.Debug("folder saved", "folder_id", folder.ID, "files", len(files))
	return true, nil
}

// MaterializePending writes every pending file, then every pending link.
// A transport or mirror failure on one item is logged and the item stays
// pending; store and local filesystem errors abort the phase.
func (e *Engine) MaterializePending(ctx context.Context) (*MaterializeResult, error) {
	result := &MaterializeResult{}
	courses := map[int64]*model.Course{}

	files, err := e.database.FindPending(model.KindFile)
	if err != nil {
		return result, fmt.Errorf("finding pending files: %w", err)
	}
	for _, rec := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := e.materializeFile(ctx, model.FileFromRecord(rec), courses, result); err != nil {
			return result, err
		}
	}

	links, err := e.database.FindPending(model.KindExternalLink)
	if err != nil {
		return result, fmt.Errorf("finding pending links: %w", err)
	}
	for _, rec := range links {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := e.materializeLink(ctx, model.ExternalLinkFromRecord(rec), courses, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (e *Engine) materializeFile(ctx context.Context, file *model.File, courses map[int64]*model.Course, result *MaterializeResult) error {
	course, err := e.course(file.CourseID.Int64, courses)
	if err != nil {
		return err
	}
	if course == nil {
		e.logger.Warn("file belongs to unknown course", "file_id", file.ID, "course_id", file.CourseID.Int64)
		result.ItemsSkipped++
		return nil
	}

	var folder *model.Folder
	if !file.ModuleName.Valid && file.FolderID.Valid {
		rec, err := e.database.Get(model.KindFolder, file.FolderID.Int64)
		if err != nil {
			return fmt.Errorf("finding folder %d: %w", file.FolderID.Int64, err)
		}
		if rec != nil {
			folder = model.FolderFromRecord(rec)
		}
	}

	rel := e.provider.FilePath(file, folder)
	if e.provider.Excluded(rel) {
		e.logger.Debug("file excluded", "file_id", file.ID, "path", rel)
		result.ItemsSkipped++
		return nil
	}
	target := path.Join(e.provider.CoursePath(course), rel)

	url := file.DownloadURL.String
	if url == "" {
		resolved, err := e.catalog.ResolveFile(ctx, file.ID)
		if err != nil {
			return e.itemFailed(model.KindFile, file.ID, target, fmt.Errorf("resolving file %d: %w", file.ID, err), result)
		}
		url = UsableDownloadURL(resolved.URL)
		if url == "" {
			e.logger.Info("download url not ready", "file_id", file.ID, "path", target)
			result.ItemsSkipped++
			return nil
		}
		file.DownloadURL = model.String(url)
	}

	if err := e.provider.MaterializeFile(ctx, url, target); err != nil {
		return e.itemFailed(model.KindFile, file.ID, target, fmt.Errorf("downloading file %d: %w", file.ID, err), result)
	}

	file.SavedAt = e.now()
	if err := e.database.Upsert(file); err != nil {
		return fmt.Errorf("marking file %d saved: %w", file.ID, err)
	}
	e.logger.Info("file saved", "file_id", file.ID, "path", target)
	e.metrics.ItemMaterialized(model.KindFile)
	result.FilesSaved++
	return nil
}

func (e *Engine) materializeLink(ctx context.Context, link *model.ExternalLink, courses map[int64]*model.Course, result *MaterializeResult) error {
	course, err := e.course(link.CourseID.Int64, courses)
	if err != nil {
		return err
	}
	if course == nil {
		e.logger.Warn("link belongs to unknown course", "link_id", link.ID, "course_id", link.CourseID.Int64)
		result.ItemsSkipped++
		return nil
	}

	target := path.Join(e.provider.CoursePath(course), e.provider.ExternalLinkPath(link))

	ok, err := e.provider.MaterializeExternalLink(ctx, link, target)
	if err != nil {
		return e.itemFailed(model.KindExternalLink, link.ID, target, fmt.Errorf("writing link %d: %w", link.ID, err), result)
	}
	if !ok {
		e.logger.Warn("no recipe accepted link", "link_id", link.ID, "url", link.URL.String)
		result.ItemsSkipped++
		return nil
	}

	link.SavedAt = e.now()
	if err := e.database.Upsert(link); err != nil {
		return fmt.Errorf("marking link %d saved: %w", link.ID, err)
	}
	e.logger.Info("link saved", "link_id", link.ID, "path", target)
	e.metrics.ItemMaterialized(model.KindExternalLink)
	result.LinksSaved++
	return nil
}

// itemFailed isolates per-item failures and returns every other error.
func (e *Engine) itemFailed(kind string, id int64, target string, err error, result *MaterializeResult) error {
	if !isItemError(err) {
		return err
	}
	e.logger.Warn("item failed", "kind", kind, "id", id, "path", target, "error", err)
	e.metrics.ItemFailed(kind)
	result.ItemsFailed++
	return nil
}

func (e *Engine) course(id int64, cache map[int64]*model.Course) (*model.Course, error) {
	if c, ok := cache[id]; ok {
		return c, nil
	}
	rec, err := e.database.Get(model.KindCourse, id)
	if err != nil {
		return nil, fmt.Errorf("finding course %d: %w", id, err)
	}
	var c *model.Course
	if rec != nil {
		c = model.CourseFromRecord(rec)
	}
	cache[id] = c
	return c, nil
}

// timestamp normalizes a remote timestamp. An unparseable value is logged
// and left unset so it never overwrites a stored one.
func (e *Engine) timestamp(raw, kind string, id int64) sql.NullString {
	ts, err := model.NormalizeTimestamp(raw)
	if err != nil {
		e.logger.Warn("ignoring remote timestamp", "kind", kind, "id", id, "error", err)
		return sql.NullString{}
	}
	return model.String(ts)
}

func (e *Engine) now() sql.NullString {
	return model.String(model.FormatTimestamp(e.clock.Now()))
}

func (e *Engine) recordPending() {
	for _, kind := range []string{model.KindFolder, model.KindFile, model.KindExternalLink} {
		n, err := e.database.CountPending(kind)
		if err != nil {
			e.logger.Warn("failed to count pending items", "kind", kind, "error", err)
			continue
		}
		e.metrics.SetPending(kind, n)
	}
}
