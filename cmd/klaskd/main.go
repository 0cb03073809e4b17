package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klask-io/klask-io-sub002/internal/config"
	"github.com/klask-io/klask-io-sub002/internal/domain"
	"github.com/klask-io/klask-io-sub002/internal/facet"
	"github.com/klask-io/klask-io-sub002/internal/httpapi"
	"github.com/klask-io/klask-io-sub002/internal/index"
	"github.com/klask-io/klask-io-sub002/internal/orchestrator"
	"github.com/klask-io/klask-io-sub002/internal/progress"
	"github.com/klask-io/klask-io-sub002/internal/registry"
	"github.com/klask-io/klask-io-sub002/internal/registry/postgres"
	"github.com/klask-io/klask-io-sub002/internal/scheduler"
	"github.com/klask-io/klask-io-sub002/internal/search"
	"github.com/klask-io/klask-io-sub002/internal/supervisor"
)

// fileReader adapts index.Manager.GetFile to httpapi.FileReader's
// context-taking signature; the lookup itself does not block on I/O
// beyond what bleve already does internally.
type fileReader struct {
	manager *index.Manager
}

func (f fileReader) GetFile(ctx context.Context, id string) (*domain.IndexedFile, error) {
	return f.manager.GetFile(id)
}

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run klaskd", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting klaskd",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	store, err := postgres.NewRepositoryStore(db, cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("open repository store: %w", err)
	}

	indexManager, err := index.NewManager(cfg.DataDir, cfg.IndexPrefix)
	if err != nil {
		return fmt.Errorf("open index manager: %w", err)
	}
	defer indexManager.Close()

	existing, err := store.List(ctx, domain.RepositoryFilter{})
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}
	for _, repo := range existing {
		if err := indexManager.Open(repo.ID); err != nil {
			slog.Warn("failed to attach existing index", "repository_id", repo.ID, "error", err)
		}
	}

	facetEngine := facet.NewEngine(indexManager.Alias(), cfg.MaxFacetTerms, cfg.FacetStaticTTL)
	searchEngine := search.NewEngine(indexManager.Alias(), cfg.MaxResultWindow, cfg.SearchTimeout)
	progressBus := progress.NewBus()

	registrySvc := registry.NewService(store, nil)
	registrySvc.SetIndexDropper(indexManager)

	runner := &orchestrator.Runner{
		Manager:      indexManager,
		Registry:     registrySvc,
		Facets:       facetEngine,
		WorkingDir:   cfg.WorkingDir,
		CloneTimeout: cfg.CloneTimeout,
		PIndex:       cfg.PIndex,
	}

	sup := supervisor.New(registrySvc, runner, progressBus, cfg.StopGracePeriod, cfg.PBulk, cfg.PCrawl)
	registrySvc.SetActiveChecker(sup)

	sched := scheduler.New(sup)
	registrySvc.SetSchedulerReloader(sched)
	for _, repo := range existing {
		if err := sched.Reload(repo); err != nil {
			slog.Warn("failed to schedule repository", "repository_id", repo.ID, "error", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	handlers := &httpapi.Handlers{
		Registry: registrySvc,
		Crawls:   sup,
		Progress: progressBus,
		Search:   searchEngine,
		Facets:   facetEngine,
		Files:    fileReader{indexManager},
	}

	httpServer := httpapi.NewServer(httpapi.Config{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"},
	}, handlers)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	slog.Info("shutting down klaskd...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("klaskd stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time.
var (
	_ httpapi.RegistryService       = (*registry.Service)(nil)
	_ httpapi.Supervisor            = (*supervisor.Supervisor)(nil)
	_ httpapi.ProgressReader        = (*progress.Bus)(nil)
	_ httpapi.SearchEngine          = (*search.Engine)(nil)
	_ httpapi.FacetEngine           = (*facet.Engine)(nil)
	_ httpapi.FileReader            = fileReader{}
	_ orchestrator.RevisionRecorder = (*registry.Service)(nil)
	_ orchestrator.FacetInvalidator = (*facet.Engine)(nil)
	_ supervisor.RepositoryLookup   = (*registry.Service)(nil)
	_ registry.ActiveChecker        = (*supervisor.Supervisor)(nil)
	_ registry.SchedulerReloader    = (*scheduler.Scheduler)(nil)
	_ registry.IndexDropper         = (*index.Manager)(nil)
	_ scheduler.Starter             = (*supervisor.Supervisor)(nil)
)
