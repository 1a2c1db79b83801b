package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/conorfennell/examprep/internal/config"
	"github.com/conorfennell/examprep/internal/review"
	"github.com/conorfennell/examprep/internal/sm2"
	"github.com/conorfennell/examprep/internal/storage"
	"github.com/conorfennell/examprep/internal/sync"
	"github.com/conorfennell/examprep/internal/web"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("examprep failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("examprep", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	addSource := fs.StringSlice("add-source", nil, "Register a deck source (local directory or git URL) and exit")
	syncOnly := fs.Bool("sync", false, "Sync all deck sources and exit")
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	policy, err := cfg.Scheduler.Policy()
	if err != nil {
		return err
	}
	scheduler, err := sm2.NewScheduler(policy)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Info("Database opened", "path", cfg.DB.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncer := sync.NewSyncer(db, scheduler, cfg.Sync.ReposDir, logger)

	if len(*addSource) > 0 {
		for _, path := range *addSource {
			src, err := syncer.AddSource(ctx, path)
			if err != nil {
				return err
			}
			logger.Info("Source added", "id", src.ID, "path", src.Path, "type", src.Type)
		}
		return nil
	}

	if *syncOnly || cfg.Sync.OnStart {
		reports, err := syncer.Run(ctx)
		for _, r := range reports {
			logger.Info("Source synced", "path", r.Path, "parsed", r.Parsed, "inserted", r.Inserted, "deleted", r.Deleted)
		}
		if *syncOnly {
			return err
		}
		if err != nil {
			logger.Warn("Sync finished with errors", "error", err)
		}
	}

	svc := review.NewService(db, scheduler, review.WithLogger(logger))
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: web.NewServer(svc, db, syncer, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
