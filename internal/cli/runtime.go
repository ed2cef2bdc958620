// Package cli holds the wiring shared by the command line binaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/aluiziolira/catalog-harvest/config"
	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/aluiziolira/catalog-harvest/parser"
	"github.com/aluiziolira/catalog-harvest/reconcile"
	"github.com/aluiziolira/catalog-harvest/scraper"
	"github.com/aluiziolira/catalog-harvest/store"
	"github.com/google/uuid"
)

var (
	// ErrTargets is returned when a command gets neither a category nor --all.
	ErrTargets = errors.New("expected one category slug or --all")
	// ErrEmptyRange is returned for a chunk range holding no product.
	ErrEmptyRange = errors.New("chunk range is empty")
)

// Runtime is everything a command needs for one run.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	RunID     string
	Metrics   *scraper.Metrics
	Store     *store.Store
	Fetcher   *scraper.Fetcher
	Extractor *parser.SiteExtractor

	logSink     io.Closer
	stopMetrics func()
}

// Setup loads configuration from the environment and builds a Runtime
// from it.
func Setup() (*Runtime, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return New(cfg)
}

// New builds the shared collaborators for cfg and installs the run logger
// as the default.
func New(cfg *config.Config, fetcherOpts ...scraper.FetcherOption) (*Runtime, error) {
	runID := uuid.NewString()
	logger, sink := NewLogger(os.Stdout, cfg.Verbose, cfg.LogFile)
	logger = logger.With(slog.String("run_id", runID))
	slog.SetDefault(logger)

	metrics := scraper.NewMetrics()
	fetcher, err := scraper.NewFetcher(cfg, metrics, fetcherOpts...)
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("initialise fetcher: %w", err)
	}

	return &Runtime{
		Config:      cfg,
		Logger:      logger,
		RunID:       runID,
		Metrics:     metrics,
		Store:       store.New(cfg.DataDir, store.WithLockTTL(cfg.LockTTL)),
		Fetcher:     fetcher,
		Extractor:   parser.NewSiteExtractor(cfg.StoragePathMarker),
		logSink:     sink,
		stopMetrics: ServeMetrics(cfg.MetricsAddr, metrics.Registry),
	}, nil
}

// With adds attributes to every later log record of the run.
func (r *Runtime) With(args ...any) {
	r.Logger = r.Logger.With(args...)
	slog.SetDefault(r.Logger)
}

// Crawler builds a crawler over the runtime's collaborators.
func (r *Runtime) Crawler() *scraper.Crawler {
	return scraper.NewCrawler(r.Config, r.Fetcher, r.Extractor, r.Store, r.Metrics)
}

// Engine builds a reconciliation engine over the runtime's collaborators.
func (r *Runtime) Engine() (*reconcile.Engine, error) {
	return reconcile.NewEngine(r.Config, r.Fetcher, r.Extractor, r.Store, r.Metrics)
}

// RebuildAggregate regenerates the all-products document from the category
// table.
func (r *Runtime) RebuildAggregate() error {
	n, err := r.Store.RebuildAggregate(config.CategorySlugs())
	if err != nil {
		return fmt.Errorf("rebuild aggregate: %w", err)
	}
	r.Logger.Info("aggregate rebuilt", slog.Int("products", n))
	return nil
}

// Close stops the metrics server and flushes the log file.
func (r *Runtime) Close() {
	r.stopMetrics()
	if err := r.logSink.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Targets turns command arguments into the categories to process: every
// category with all, otherwise exactly one slug or name.
func Targets(cfg *config.Config, args []string, all bool) ([]models.Category, error) {
	switch {
	case all && len(args) == 0:
		return cfg.Categories(), nil
	case !all && len(args) == 1:
		category, err := cfg.CategoryBySlug(args[0])
		if err != nil {
			return nil, err
		}
		return []models.Category{category}, nil
	}
	return nil, ErrTargets
}

// ParseRange reads a [start,end) product range from command arguments. start
// must not be negative and end must exceed it.
func ParseRange(startArg, endArg string) (int, int, error) {
	start, err := strconv.Atoi(startArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start %q: %w", startArg, err)
	}
	end, err := strconv.Atoi(endArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end %q: %w", endArg, err)
	}
	if start < 0 || end <= start {
		return 0, 0, fmt.Errorf("%w: %d-%d", ErrEmptyRange, start, end)
	}
	return start, end, nil
}
