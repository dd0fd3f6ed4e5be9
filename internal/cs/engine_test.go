package cs_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"cs-go/internal/cs"
	"cs-go/internal/model"
	"cs-go/internal/output"
	"cs-go/internal/testutil"
)

const (
	urlA = "https://canvas.test/files/101/download?verifier=a"
	urlB = "https://canvas.test/files/102/download?verifier=b"

	remoteTime = "2024-01-10T08:00:00Z"
)

type fakeClock interface {
	Now() time.Time
	Advance(d time.Duration)
}

type recordingMetrics struct {
	cycles       []string
	materialized map[string]int
	failed       map[string]int
	containers   int
	pending      map[string]int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		materialized: map[string]int{},
		failed:       map[string]int{},
		pending:      map[string]int64{},
	}
}

func (m *recordingMetrics) CycleFinished(status string, _ time.Duration) {
	m.cycles = append(m.cycles, status)
}
func (m *recordingMetrics) ItemMaterialized(kind string)    { m.materialized[kind]++ }
func (m *recordingMetrics) ItemFailed(kind string)          { m.failed[kind]++ }
func (m *recordingMetrics) ContainerFailed()                { m.containers++ }
func (m *recordingMetrics) SetPending(kind string, n int64) { m.pending[kind] = n }

type harness struct {
	db      cs.Database
	catalog *testutil.FakeCatalog
	fs      afero.Fs
	clock   fakeClock
	metrics *recordingMetrics
	engine  *cs.Engine
}

func newHarness(t *testing.T, fs afero.Fs, opts output.Options) *harness {
	t.Helper()
	h := &harness{
		db:      testutil.NewTestDatabase(t),
		catalog: testutil.NewFakeCatalog(),
		fs:      fs,
		clock:   clockwork.NewFakeClockAt(testutil.FixedTime),
		metrics: newRecordingMetrics(),
	}
	provider := output.NewProvider(fs, h.catalog, opts)
	h.engine = cs.NewEngine(h.db, h.catalog, provider, nil, h.clock, testutil.NewStubIDGenerator(), h.metrics)
	return h
}

// withIntroCourse sets up one favorite course with one folder holding two
// files and one module holding one external link.
func (h *harness) withIntroCourse() {
	c := h.catalog
	c.Favorites = []cs.RemoteCourse{{ID: 1, Name: "Intro to CS", Code: "CS101"}}
	c.Courses = []cs.RemoteCourse{
		{ID: 1, Name: "Intro to CS", Code: "CS101", Term: "Fall 2024", UpdatedAt: remoteTime},
		{ID: 2, Name: "Not a favorite", UpdatedAt: remoteTime},
	}
	c.Modules[1] = []cs.RemoteModule{{
		ID:   "m1",
		Name: "Week 1",
		Items: []cs.RemoteModuleItem{
			{Content: &cs.RemoteContent{Type: cs.ContentExternalURL, ID: 200, Title: "Course Site", URL: "https://example.com/cs101", UpdatedAt: remoteTime}},
			{Content: &cs.RemoteContent{Type: "Page", ID: 900, Title: "Welcome"}},
			{},
		},
	}}
	c.Folders[1] = []cs.RemoteFolder{{ID: 10, FullName: "course files", FilesCount: 2, UpdatedAt: remoteTime}}
	c.Files[10] = []cs.RemoteFile{
		{ID: 101, DisplayName: "a.pdf", URL: urlA, UpdatedAt: remoteTime},
		{ID: 102, DisplayName: "b.pdf", URL: urlB, UpdatedAt: remoteTime},
	}
	c.Bodies[urlA] = "AAAA"
	c.Bodies[urlB] = "BB"
}

func (h *harness) seed(t *testing.T) {
	t.Helper()
	if _, err := h.engine.SeedFavorites(context.Background()); err != nil {
		t.Fatalf("SeedFavorites() error = %v", err)
	}
}

func (h *harness) pending(t *testing.T, kind string) int64 {
	t.Helper()
	n, err := h.db.CountPending(kind)
	if err != nil {
		t.Fatalf("CountPending(%s) error = %v", kind, err)
	}
	return n
}

func (h *harness) mustRead(t *testing.T, name string) string {
	t.Helper()
	data, err := afero.ReadFile(h.fs, name)
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	return string(data)
}

func (h *harness) runCycle(t *testing.T) *model.SyncRun {
	t.Helper()
	run, err := h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	return run
}

func TestEngine_SeedFavorites(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()

	n, err := h.engine.SeedFavorites(context.Background())
	if err != nil {
		t.Fatalf("SeedFavorites() error = %v", err)
	}
	if n != 1 {
		t.Errorf("seeded = %d, want 1", n)
	}

	rec, err := h.db.Get(model.KindCourse, 1)
	if err != nil || rec == nil {
		t.Fatalf("Get(course 1) = %v, %v", rec, err)
	}
	course := model.CourseFromRecord(rec)
	if !course.IsFavorite.Bool || course.Name.String != "Intro to CS" {
		t.Errorf("course = %+v", course)
	}
	if !course.Pending() {
		t.Error("a freshly seeded course must be pending")
	}
}

func TestEngine_SeedFavorites_TransportError(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.catalog.Errs["ListFavorites"] = testutil.TransportErr(http.StatusUnauthorized)

	if _, err := h.engine.SeedFavorites(context.Background()); !cs.IsTransportError(err) {
		t.Errorf("SeedFavorites() error = %v, want transport error", err)
	}
}

func TestEngine_TraverseThenMaterialize(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()
	h.seed(t)
	ctx := context.Background()

	traversed, err := h.engine.TraverseCourses(ctx)
	if err != nil {
		t.Fatalf("TraverseCourses() error = %v", err)
	}
	if traversed.CoursesTraversed != 1 {
		t.Errorf("CoursesTraversed = %d, want 1", traversed.CoursesTraversed)
	}
	if n := h.catalog.CallCount("ListModulesWithItems 2"); n != 0 {
		t.Errorf("course outside favorites was traversed %d times", n)
	}
	if rec, _ := h.db.Get(model.KindCourse, 2); rec != nil {
		t.Error("course outside favorites was stored")
	}

	rec, _ := h.db.Get(model.KindCourse, 1)
	course := model.CourseFromRecord(rec)
	if course.Pending() {
		t.Error("course should be saved after traversal")
	}
	if course.Term.String != "Fall 2024" {
		t.Errorf("Term = %q, want Fall 2024", course.Term.String)
	}

	for kind, want := range map[string]int64{
		model.KindFolder:       0,
		model.KindFile:         2,
		model.KindExternalLink: 1,
	} {
		if got := h.pending(t, kind); got != want {
			t.Errorf("pending %s after traversal = %d, want %d", kind, got, want)
		}
	}
	if rec, _ := h.db.Get(model.KindExternalLink, 900); rec != nil {
		t.Error("module items of other types must not be stored")
	}

	materialized, err := h.engine.MaterializePending(ctx)
	if err != nil {
		t.Fatalf("MaterializePending() error = %v", err)
	}
	if materialized.FilesSaved != 2 || materialized.LinksSaved != 1 || materialized.ItemsFailed != 0 {
		t.Errorf("result = %+v, want 2 files and 1 link", materialized)
	}

	for _, kind := range []string{model.KindFolder, model.KindFile, model.KindExternalLink} {
		if got := h.pending(t, kind); got != 0 {
			t.Errorf("pending %s after materialization = %d, want 0", kind, got)
		}
	}

	if got := h.mustRead(t, "intro to cs/course files/a.pdf"); got != "AAAA" {
		t.Errorf("a.pdf = %q", got)
	}
	if got := h.mustRead(t, "intro to cs/course files/b.pdf"); got != "BB" {
		t.Errorf("b.pdf = %q", got)
	}
	if ok, _ := afero.Exists(h.fs, "intro to cs/week 1/course site.html"); !ok {
		t.Error("redirect document not written")
	}
}

func TestEngine_RunCycle_SecondCycleIsNoop(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()
	h.seed(t)

	first := h.runCycle(t)
	if first.Status != model.RunSuccess || first.CoursesTraversed != 1 || first.FilesSaved != 2 || first.LinksSaved != 1 {
		t.Errorf("first run = %+v", first)
	}

	h.catalog.ResetCalls()
	h.clock.Advance(time.Minute)
	second := h.runCycle(t)

	if second.CoursesTraversed != 0 || second.FilesSaved != 0 || second.LinksSaved != 0 {
		t.Errorf("second run = %+v, want nothing done", second)
	}
	for _, call := range []string{"ListModulesWithItems", "ListFolders", "ListFiles", "Stream"} {
		if n := h.catalog.CallCount(call); n != 0 {
			t.Errorf("%s called %d times in an idle cycle", call, n)
		}
	}

	runs, err := h.engine.GetHistory(0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Errorf("history = %+v, want run-2 then run-1", runs)
	}
	if len(h.metrics.cycles) != 2 || h.metrics.cycles[0] != model.RunSuccess {
		t.Errorf("cycles = %v", h.metrics.cycles)
	}
	if h.metrics.materialized[model.KindFile] != 2 || h.metrics.materialized[model.KindExternalLink] != 1 {
		t.Errorf("materialized = %v", h.metrics.materialized)
	}
}

func TestEngine_RemoteChangeIsPickedUp(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()
	h.seed(t)
	h.runCycle(t)

	h.clock.Advance(24 * time.Hour)
	changed := "2024-01-16T00:00:00Z"
	h.catalog.Courses[0].UpdatedAt = changed
	h.catalog.Folders[1][0].UpdatedAt = changed
	h.catalog.Files[10][0].UpdatedAt = changed
	h.catalog.Bodies[urlA] = "AAAA-v2"
	h.catalog.ResetCalls()

	run := h.runCycle(t)
	if run.CoursesTraversed != 1 || run.FilesSaved != 1 {
		t.Errorf("run = %+v, want one course and one file", run)
	}
	if n := h.catalog.CallCount("Stream " + urlB); n != 0 {
		t.Errorf("unchanged file downloaded %d times", n)
	}
	if got := h.mustRead(t, "intro to cs/course files/a.pdf"); got != "AAAA-v2" {
		t.Errorf("a.pdf = %q, want new version", got)
	}
}

func TestEngine_EmptyFolderIsNotListed(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()
	h.catalog.Folders[1] = []cs.RemoteFolder{{ID: 11, FullName: "course files/empty", FilesCount: 0, UpdatedAt: remoteTime}}
	h.seed(t)

	h.runCycle(t)
	if n := h.catalog.CallCount("ListFiles"); n != 0 {
		t.Errorf("ListFiles called %d times for an empty folder", n)
	}
	if got := h.pending(t, model.KindFolder); got != 0 {
		t.Errorf("pending folders = %d, want 0", got)
	}
}

func TestEngine_FolderTransportError(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()
	h.catalog.Errs["ListFiles 10"] = testutil.TransportErr(http.StatusInternalServerError)
	h.seed(t)

	run := h.runCycle(t)
	if run.Status != model.RunSuccess {
		t.Fatalf("run status = %s, want success", run.Status)
	}
	if run.LinksSaved != 1 || run.FilesSaved != 0 {
		t.Errorf("run = %+v, want the link saved and no files", run)
	}
	if h.metrics.containers != 1 {
		t.Errorf("containers failed = %d, want 1", h.metrics.containers)
	}

	rec, _ := h.db.Get(model.KindCourse, 1)
	if model.CourseFromRecord(rec).Pending() {
		t.Error("course must be marked saved even though a folder failed")
	}
	if got := h.pending(t, model.KindFolder); got != 1 {
		t.Errorf("pending folders = %d, want 1", got)
	}

	// Next cycle retries only the failed folder.
	delete(h.catalog.Errs, "ListFiles 10")
	h.catalog.ResetCalls()
	h.clock.Advance(time.Minute)

	run = h.runCycle(t)
	if n := h.catalog.CallCount("ListFiles 10"); n != 1 {
		t.Errorf("ListFiles 10 called %d times, want 1", n)
	}
	for _, call := range []string{"ListModulesWithItems", "ListFolders"} {
		if n := h.catalog.CallCount(call); n != 0 {
			t.Errorf("%s called %d times on retry", call, n)
		}
	}
	if run.FilesSaved != 2 {
		t.Errorf("FilesSaved = %d, want 2", run.FilesSaved)
	}
	if got := h.pending(t, model.KindFolder); got != 0 {
		t.Errorf("pending folders = %d, want 0", got)
	}
}

func TestEngine_ResolvesMissingDownloadURL(t *testing.T) {
	const resolved = "https://canvas.test/files/300/download?verifier=late"

	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()
	h.catalog.Modules[1][0].Items = append(h.catalog.Modules[1][0].Items,
		cs.RemoteModuleItem{Content: &cs.RemoteContent{Type: cs.ContentFile, ID: 300, Title: "Slides.pdf", URL: "https://canvas.test/files/300/download", UpdatedAt: remoteTime}},
		cs.RemoteModuleItem{Content: &cs.RemoteContent{Type: cs.ContentFile, ID: 301, Title: "Later.pdf", URL: "", UpdatedAt: remoteTime}},
	)
	h.catalog.Resolved[300] = cs.RemoteFile{ID: 300, URL: resolved}
	h.catalog.Resolved[301] = cs.RemoteFile{ID: 301, URL: "https://canvas.test/files/301/download"}
	h.catalog.Bodies[resolved] = "slides"
	h.seed(t)

	run := h.runCycle(t)
	if run.FilesSaved != 3 {
		t.Errorf("FilesSaved = %d, want 3", run.FilesSaved)
	}
	if n := h.catalog.CallCount("ResolveFile 300"); n != 1 {
		t.Errorf("ResolveFile 300 called %d times, want 1", n)
	}
	if got := h.mustRead(t, "intro to cs/week 1/slides.pdf"); got != "slides" {
		t.Errorf("slides.pdf = %q", got)
	}
	rec, _ := h.db.Get(model.KindFile, 300)
	if got := model.FileFromRecord(rec).DownloadURL.String; got != resolved {
		t.Errorf("download_url = %q, want resolved url", got)
	}

	// 301 is not ready: skipped without a download and retried next cycle.
	if n := h.catalog.CallCount("Stream https://canvas.test/files/301"); n != 0 {
		t.Errorf("unusable url was streamed %d times", n)
	}
	rec, _ = h.db.Get(model.KindFile, 301)
	if !model.FileFromRecord(rec).Pending() {
		t.Error("file without a usable url must stay pending")
	}

	h.catalog.ResetCalls()
	h.runCycle(t)
	if n := h.catalog.CallCount("ResolveFile 301"); n != 1 {
		t.Errorf("ResolveFile 301 called %d times on retry, want 1", n)
	}
}

func TestEngine_ItemFailureIsIsolated(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()
	delete(h.catalog.Bodies, urlA)
	h.seed(t)

	run := h.runCycle(t)
	if run.Status != model.RunSuccess {
		t.Fatalf("run status = %s, want success", run.Status)
	}
	if run.FilesSaved != 1 || run.LinksSaved != 1 || run.ItemsFailed != 1 {
		t.Errorf("run = %+v, want 1 file, 1 link, 1 failure", run)
	}
	if h.metrics.failed[model.KindFile] != 1 {
		t.Errorf("failed = %v", h.metrics.failed)
	}

	rec, _ := h.db.Get(model.KindFile, 101)
	if !model.FileFromRecord(rec).Pending() {
		t.Error("failed file must stay pending")
	}
	if ok, _ := afero.Exists(h.fs, "intro to cs/course files/a.pdf"); ok {
		t.Error("failed download left a file behind")
	}
	if h.metrics.pending[model.KindFile] != 1 {
		t.Errorf("pending gauge = %d, want 1", h.metrics.pending[model.KindFile])
	}
}

func TestEngine_RefusedDownloadIsIsolated(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()
	h.catalog.Errs["Stream "+urlA] = &cs.TransportError{
		Method:  http.MethodGet,
		URL:     "https://files.cdn.test/101/a.pdf",
		Message: "refusing url for host files.cdn.test, client is for canvas.test",
	}
	h.seed(t)

	run := h.runCycle(t)
	if run.Status != model.RunSuccess {
		t.Fatalf("run status = %s, want success", run.Status)
	}
	if run.FilesSaved != 1 || run.LinksSaved != 1 || run.ItemsFailed != 1 {
		t.Errorf("run = %+v, want 1 file, 1 link, 1 failure", run)
	}
	if got := h.mustRead(t, "intro to cs/course files/b.pdf"); got != "BB" {
		t.Errorf("b.pdf = %q", got)
	}
	if ok, _ := afero.Exists(h.fs, "intro to cs/week 1/course site.html"); !ok {
		t.Error("link was not materialized")
	}

	rec, _ := h.db.Get(model.KindFile, 101)
	if !model.FileFromRecord(rec).Pending() {
		t.Error("refused file must stay pending")
	}
	if h.metrics.pending[model.KindFile] != 1 || h.metrics.pending[model.KindExternalLink] != 0 {
		t.Errorf("pending gauge = %v, want 1 file, 0 links", h.metrics.pending)
	}
}

func TestEngine_LocalWriteFailureAbortsCycle(t *testing.T) {
	h := newHarness(t, afero.NewReadOnlyFs(afero.NewMemMapFs()), output.Options{})
	h.withIntroCourse()
	h.seed(t)

	run, err := h.engine.RunCycle(context.Background())
	if err == nil {
		t.Fatal("RunCycle() should fail when the output root is not writable")
	}
	if run.Status != model.RunError || run.Error == "" {
		t.Errorf("run = %+v, want recorded error", run)
	}

	runs, _ := h.engine.GetHistory(1)
	if len(runs) != 1 || runs[0].Status != model.RunError || !runs[0].FinishedAt.Valid {
		t.Errorf("history = %+v, want finished error run", runs)
	}
	if h.pending(t, model.KindFile) != 2 {
		t.Error("nothing may be marked saved after a local write failure")
	}
}

func TestEngine_CatalogFailureEndsCycle(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()
	h.seed(t)
	h.catalog.Errs["ListAllCourses"] = testutil.TransportErr(http.StatusServiceUnavailable)

	run, err := h.engine.RunCycle(context.Background())
	if !cs.IsTransportError(err) {
		t.Fatalf("RunCycle() error = %v, want transport error", err)
	}
	if run.Status != model.RunError {
		t.Errorf("status = %s, want error", run.Status)
	}
	if n := h.catalog.CallCount("Stream"); n != 0 {
		t.Errorf("materialization ran after a failed traversal (%d downloads)", n)
	}

	delete(h.catalog.Errs, "ListAllCourses")
	run = h.runCycle(t)
	if run.FilesSaved != 2 {
		t.Errorf("next cycle FilesSaved = %d, want 2", run.FilesSaved)
	}
}

func TestEngine_ExcludedFilesAreSkipped(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{Ignore: []string{"b.pdf"}})
	h.withIntroCourse()
	h.seed(t)

	if _, err := h.engine.TraverseCourses(context.Background()); err != nil {
		t.Fatalf("TraverseCourses() error = %v", err)
	}
	result, err := h.engine.MaterializePending(context.Background())
	if err != nil {
		t.Fatalf("MaterializePending() error = %v", err)
	}
	if result.FilesSaved != 1 || result.ItemsSkipped != 1 {
		t.Errorf("result = %+v, want 1 saved and 1 skipped", result)
	}
	if n := h.catalog.CallCount("Stream " + urlB); n != 0 {
		t.Errorf("excluded file downloaded %d times", n)
	}
}

func TestEngine_DeclinedLinkStaysPending(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()
	h.catalog.Modules[1][0].Items[0].Content.URL = "relative/path"
	h.seed(t)

	run := h.runCycle(t)
	if run.LinksSaved != 0 {
		t.Errorf("LinksSaved = %d, want 0", run.LinksSaved)
	}
	if got := h.pending(t, model.KindExternalLink); got != 1 {
		t.Errorf("pending links = %d, want 1", got)
	}
}

func TestEngine_GetStatus(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), output.Options{})
	h.withIntroCourse()
	h.seed(t)

	status, err := h.engine.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if len(status.Courses) != 1 || !status.Courses[0].Pending {
		t.Errorf("courses before cycle = %+v, want one pending", status.Courses)
	}

	h.runCycle(t)
	status, err = h.engine.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if len(status.Kinds) != 4 {
		t.Fatalf("kinds = %+v, want 4", status.Kinds)
	}
	for _, k := range status.Kinds {
		if k.Pending != 0 {
			t.Errorf("pending %s = %d, want 0", k.Kind, k.Pending)
		}
	}
	c := status.Courses[0]
	if c.Pending || c.Term != "Fall 2024" || c.SavedAt == "" {
		t.Errorf("course status = %+v", c)
	}
}
