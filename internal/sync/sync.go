// Package sync reconciles deck sources with the card store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/examprep/internal/cardkey"
	"github.com/conorfennell/examprep/internal/domain"
	"github.com/conorfennell/examprep/internal/gitsource"
	"github.com/conorfennell/examprep/internal/parser"
	"github.com/conorfennell/examprep/internal/sm2"
	"github.com/conorfennell/examprep/internal/storage"
)

// Store is the persistence the syncer needs.
type Store interface {
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	InsertSource(ctx context.Context, path, sourceType string) (int64, error)
	InsertCard(ctx context.Context, card domain.Card, sourceID int64, initial sm2.State, createdAt time.Time) (bool, error)
	CardIDsBySource(ctx context.Context, sourceID int64) ([]string, error)
	DetachCard(ctx context.Context, cardID string, sourceID int64) (bool, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error
}

// Report summarizes the reconciliation of one source.
type Report struct {
	SourceID   int64
	Path       string
	Parsed     int
	Inserted   int
	// Deleted counts cards that left the source. A card still present in
	// another source keeps its schedule.
	Deleted    int
	// Incomplete is set when a deck file could not be read. Cards are then
	// never removed, since their absence may only mean the file was unreadable.
	Incomplete bool
	Errors     []error
}

// Syncer imports cards from every registered source.
type Syncer struct {
	store     Store
	scheduler *sm2.Scheduler
	reposDir  string
	gitSync   func(ctx context.Context, url, localPath string) error
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithClock sets the clock used for card creation and scan timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// NewSyncer returns a Syncer that clones git sources under reposDir.
func NewSyncer(store Store, scheduler *sm2.Scheduler, reposDir string, logger *slog.Logger, opts ...Option) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{
		store:     store,
		scheduler: scheduler,
		reposDir:  reposDir,
		gitSync: func(ctx context.Context, url, localPath string) error {
			return gitsource.Sync(ctx, url, localPath, nil)
		},
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DetectType classifies a source path as a git URL or a local directory.
func DetectType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return storage.SourceGit
	}
	return storage.SourceLocal
}

// AddSource registers a new source. Local paths are stored as absolute paths.
func (s *Syncer) AddSource(ctx context.Context, path string) (storage.Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return storage.Source{}, errors.New("source path cannot be empty")
	}
	sourceType := DetectType(path)
	if sourceType == storage.SourceLocal {
		abs, err := filepath.Abs(path)
		if err != nil {
			return storage.Source{}, fmt.Errorf("resolve source path %s: %w", path, err)
		}
		path = abs
	}
	id, err := s.store.InsertSource(ctx, path, sourceType)
	if err != nil {
		return storage.Source{}, err
	}
	s.logger.Info("Source added", "id", id, "type", sourceType, "path", path)
	return storage.Source{ID: id, Path: path, Type: sourceType}, nil
}

// Run reconciles every source. A failing source does not stop the others;
// their errors are joined into the returned error.
func (s *Syncer) Run(ctx context.Context) ([]Report, error) {
	s.logger.Info("Starting sync process for all sources...")
	sources, err := s.store.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		s.logger.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return nil, nil
	}

	var (
		reports []Report
		errs    []error
	)
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		s.logger.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == storage.SourceGit {
			localPath, err := gitURLToLocalPath(s.reposDir, source.Path)
			if err == nil {
				err = s.ensureReposDir()
			}
			if err == nil {
				err = s.gitSync(ctx, source.Path, localPath)
			}
			if err != nil {
				s.logger.Error("Error syncing git repo", "url", source.Path, "error", err)
				errs = append(errs, fmt.Errorf("source %d: %w", source.ID, err))
				continue
			}
			dir = localPath
		}

		report, err := s.reconcile(ctx, source.ID, dir)
		if err != nil {
			s.logger.Error("Error reconciling source", "id", source.ID, "path", dir, "error", err)
			errs = append(errs, fmt.Errorf("source %d: %w", source.ID, err))
			continue
		}
		reports = append(reports, report)
		errs = append(errs, report.Errors...)
	}
	s.logger.Info("Sync process complete.", "sources", len(sources), "errors", len(errs))
	return reports, errors.Join(errs...)
}

func (s *Syncer) reconcile(ctx context.Context, sourceID int64, dir string) (Report, error) {
	report := Report{SourceID: sourceID, Path: dir}
	found := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		cards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			report.Incomplete = true
			report.Errors = append(report.Errors, parseErr)
		}
		for _, card := range cards {
			card.ID = cardkey.Key(card)
			report.Parsed++
			if found[card.ID] {
				continue
			}
			found[card.ID] = true

			inserted, err := s.store.InsertCard(ctx, card, sourceID, s.scheduler.Initialize(), s.now())
			if err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("db insert for %s: %w", card.ID, err))
				continue
			}
			if inserted {
				s.logger.Debug("New card found, inserting...", "id", card.ID)
				report.Inserted++
			}
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("walking %s: %w", dir, walkErr)
	}

	if report.Incomplete {
		s.logger.Warn("Skipping orphan removal after read errors", "source_id", sourceID, "errors", len(report.Errors))
	} else if err := s.removeOrphans(ctx, sourceID, found, &report); err != nil {
		return report, err
	}

	if err := s.store.UpdateSourceLastScanned(ctx, sourceID, s.now()); err != nil {
		s.logger.Warn("Failed to update last scanned for source", "source_id", sourceID, "error", err)
	}

	s.logger.Info("reconciliation complete",
		"path", dir,
		"parsed_cards", report.Parsed,
		"inserted", report.Inserted,
		"orphaned_deleted", report.Deleted,
		"errors", len(report.Errors),
	)
	return report, nil
}

// removeOrphans detaches every card of the source that the scan did not find.
func (s *Syncer) removeOrphans(ctx context.Context, sourceID int64, found map[string]bool, report *Report) error {
	ids, err := s.store.CardIDsBySource(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if found[id] {
			continue
		}
		deleted, err := s.store.DetachCard(ctx, id, sourceID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Failed to remove orphaned card", "id", id, "error", err)
			report.Errors = append(report.Errors, err)
			continue
		}
		s.logger.Info("Orphaned card removed from source", "id", id, "source_id", sourceID, "deleted", deleted)
		report.Deleted++
	}
	return nil
}

// gitURLToLocalPath maps an https or scp-style git URL to a directory under baseDir.
func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if user, rest, ok := strings.Cut(repoURL, "@"); ok && user != "" {
			host, repoPath, ok := strings.Cut(rest, ":")
			if ok && host != "" && repoPath != "" {
				return filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), nil
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	return filepath.Join(baseDir, parsedURL.Host, strings.TrimSuffix(parsedURL.Path, ".git")), nil
}

func (s *Syncer) ensureReposDir() error {
	if err := os.MkdirAll(s.reposDir, 0o755); err != nil {
		return fmt.Errorf("failed to create repos directory %s: %w", s.reposDir, err)
	}
	return nil
}
