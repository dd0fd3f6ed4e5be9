package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"cs-go/internal/canvas"
	"cs-go/internal/config"
	"cs-go/internal/cs"
	"cs-go/internal/database"
	"cs-go/internal/encryption"
	"cs-go/internal/metrics"
	"cs-go/internal/mirror"
	"cs-go/internal/model"
	"cs-go/internal/output"
)

// shutdownTimeout bounds the metrics server shutdown after the loop stops.
const shutdownTimeout = 5 * time.Second

// CSApp is the application layer between the CLI and the sync engine.
// It constructs all dependencies from config, exposes the operations the
// CLI runs, and closes the database and log file on Close.
type CSApp struct {
	cfg      *config.Config
	db       cs.Database
	engine   *cs.Engine
	recorder *metrics.Recorder
	clock    clockwork.Clock
	logger   cs.Logger
	logFile  *os.File
}

// NewCSApp creates a fully wired CSApp from a validated config.
// The caller must call Close when done.
func NewCSApp(ctx context.Context, cfg *config.Config) (*CSApp, error) {
	return newCSApp(ctx, cfg, clockwork.NewRealClock())
}

func newCSApp(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*CSApp, error) {
	catalog, err := canvas.NewClient(cfg.URL, cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating catalog client: %w", err)
	}

	recipes, err := output.RecipesByName(cfg.LinkRecipes)
	if err != nil {
		return nil, err
	}

	enc, err := encryption.NewEncryptorFromConfig(afero.NewOsFs(), cfg)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	m, err := mirror.NewMirrorFromConfig(ctx, cfg.Mirror, enc)
	if err != nil {
		return nil, fmt.Errorf("creating mirror: %w", err)
	}

	if err := os.MkdirAll(cfg.OutputPath, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	provider := output.NewProvider(afero.NewBasePathFs(afero.NewOsFs(), cfg.OutputPath), catalog, output.Options{
		Recipes:  recipes,
		Ignore:   cfg.Ignore,
		Mirror:   m,
		Progress: output.StderrProgress(),
	})

	db, err := database.NewDatabaseFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	session := clock.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, session)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	csLogger := &slogAdapter{l: logger}

	recorder := metrics.NewRecorder(clock)
	engine := cs.NewEngine(db, catalog, provider, csLogger, clock, cs.UUIDGenerator{}, recorder)

	return &CSApp{
		cfg:      cfg,
		db:       db,
		engine:   engine,
		recorder: recorder,
		clock:    clock,
		logger:   csLogger,
		logFile:  logFile,
	}, nil
}

// Sync seeds the favorite courses and runs exactly one cycle.
func (a *CSApp) Sync(ctx context.Context) (*model.SyncRun, error) {
	if _, err := a.engine.SeedFavorites(ctx); err != nil {
		return nil, err
	}
	return a.engine.RunCycle(ctx)
}

// Run seeds the favorite courses once, then runs a cycle every poll
// interval until ctx is cancelled. The metrics endpoint is served for the
// lifetime of the loop when metrics_addr is set.
func (a *CSApp) Run(ctx context.Context) error {
	if a.cfg.MetricsAddr != "" {
		srv := metrics.NewServer(a.cfg.MetricsAddr, a.recorder, a.logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				a.logger.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	if _, err := a.engine.SeedFavorites(ctx); err != nil {
		return err
	}

	a.logger.Info("poll loop started", "interval", a.cfg.Interval(), "output", a.cfg.OutputPath)
	return RunLoop(ctx, func(ctx context.Context) error {
		_, err := a.engine.RunCycle(ctx)
		return err
	}, a.clock, a.cfg.Interval(), a.logger)
}

// GetStatus returns what the next cycle will do.
func (a *CSApp) GetStatus() (*cs.Status, error) {
	return a.engine.GetStatus()
}

// GetHistory returns the most recent sync runs.
func (a *CSApp) GetHistory(limit int) ([]*model.SyncRun, error) {
	return a.engine.GetHistory(limit)
}

// Close closes the database and the log file.
func (a *CSApp) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
