package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"cs-go/internal/config"
	"cs-go/internal/model"
	"cs-go/internal/testutil"
)

const remoteTime = "2024-01-10T08:00:00Z"

// newCanvasServer fakes a Canvas instance with one favorite course holding
// one folder with one file and one module with one external link.
func newCanvasServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/users/self/favorites/courses", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":1,"name":"Intro to CS","course_code":"CS101"}]`)
	})
	mux.HandleFunc("POST /api/graphql", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch {
		case strings.Contains(req.Query, "allCourses"):
			fmt.Fprintf(w, `{"data":{"allCourses":[{"_id":"1","name":"Intro to CS","courseCode":"CS101","updatedAt":%q,"term":{"name":"Fall 2024"}}]}}`, remoteTime)
		case strings.Contains(req.Query, "modulesConnection"):
			fmt.Fprintf(w, `{"data":{"course":{"modulesConnection":{"pageInfo":{"hasNextPage":false,"endCursor":null},"nodes":[
				{"_id":"m1","name":"Week 1","moduleItems":[{"content":{"type":"ExternalUrl","_id":"200","name":"Course Site","url":"https://example.com/cs101","updatedAt":%q}}]}
			]}}}}`, remoteTime)
		default:
			http.Error(w, "unknown query", http.StatusBadRequest)
		}
	})
	mux.HandleFunc("GET /api/v1/courses/1/folders", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"id":10,"full_name":"course files","files_count":1,"parent_folder_id":null,"updated_at":%q}]`, remoteTime)
	})
	mux.HandleFunc("GET /api/v1/folders/10/files", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"id":101,"display_name":"Syllabus.pdf","url":"%s/files/101/download?verifier=v","updated_at":%q}]`, srv.URL, remoteTime)
	})
	mux.HandleFunc("GET /files/101/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "8")
		io.WriteString(w, "%PDF-1.7")
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, clock clockwork.Clock) (*CSApp, *config.Config) {
	t.Helper()
	srv := newCanvasServer(t)
	dir := t.TempDir()

	cfg := config.NewConfig(srv.URL, "secret-token", dir)
	cfg.DBName = filepath.Join(dir, "canvas.db")
	cfg.OutputPath = filepath.Join(dir, "out")
	cfg.PollInterval = "1m"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	a, err := newCSApp(context.Background(), cfg, clock)
	if err != nil {
		t.Fatalf("newCSApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, cfg
}

func TestCSApp_Sync(t *testing.T) {
	a, cfg := newTestApp(t, clockwork.NewFakeClockAt(testutil.FixedTime))

	run, err := a.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if run.Status != model.RunSuccess {
		t.Errorf("run status = %q, want %q", run.Status, model.RunSuccess)
	}
	if run.FilesSaved != 1 || run.LinksSaved != 1 {
		t.Errorf("run saved files=%d links=%d, want 1 and 1", run.FilesSaved, run.LinksSaved)
	}

	data, err := os.ReadFile(filepath.Join(cfg.OutputPath, "intro to cs", "course files", "syllabus.pdf"))
	if err != nil {
		t.Fatalf("reading materialized file: %v", err)
	}
	if string(data) != "%PDF-1.7" {
		t.Errorf("file content = %q", data)
	}

	doc, err := os.ReadFile(filepath.Join(cfg.OutputPath, "intro to cs", "week 1", "course site.html"))
	if err != nil {
		t.Fatalf("reading redirect document: %v", err)
	}
	if !strings.Contains(string(doc), "https://example.com/cs101") {
		t.Errorf("redirect document does not point at the link: %q", doc)
	}

	status, err := a.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	for _, k := range status.Kinds {
		if k.Pending != 0 {
			t.Errorf("%s pending = %d after sync, want 0", k.Kind, k.Pending)
		}
	}
	if len(status.Courses) != 1 || status.Courses[0].Term != "Fall 2024" {
		t.Errorf("courses = %+v, want Intro to CS with its term", status.Courses)
	}

	history, err := a.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].ID != run.ID {
		t.Errorf("history = %+v, want the one run", history)
	}

	logData, err := os.ReadFile(filepath.Join(cfg.LogDir, "cs.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(logData), "cycle finished") {
		t.Errorf("log does not record the cycle: %q", logData)
	}
	if strings.Contains(string(logData), "secret-token") {
		t.Error("log leaks the access token")
	}
}

func TestCSApp_Run(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testutil.FixedTime)
	a, _ := newTestApp(t, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// The loop waits on its timer once the first cycle is done.
	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	clock.BlockUntil(1)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}

	history, err := a.GetHistory(0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d runs, want 2", len(history))
	}
	if history[0].FilesSaved != 0 {
		t.Errorf("second cycle saved %d files, want 0", history[0].FilesSaved)
	}
}

func TestNewCSApp_UnknownMirror(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewConfig("https://canvas.example.edu", "tok", dir)
	cfg.DBName = filepath.Join(dir, "canvas.db")
	cfg.OutputPath = filepath.Join(dir, "out")
	cfg.Mirror.Type = "ftp"

	if _, err := NewCSApp(context.Background(), cfg); err == nil {
		t.Fatal("NewCSApp() error = nil, want error for unknown mirror type")
	}
}
