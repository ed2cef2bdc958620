package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aluiziolira/catalog-harvest/config"
	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/aluiziolira/catalog-harvest/parser"
	"github.com/aluiziolira/catalog-harvest/pipeline"
	"github.com/aluiziolira/catalog-harvest/scraper"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	outcomeUpdated   = "updated"
	outcomeFailed    = "failed"
	outcomeUnchanged = "unchanged"
)

// Engine repairs image references of stored categories. Per-product
// failures are folded into the summary; they never abort a run.
type Engine struct {
	cfg        *config.Config
	fetcher    scraper.HTMLFetcher
	extractor  parser.Extractor
	normalizer *parser.Normalizer
	store      scraper.CategoryStore
	retrier    *scraper.Retrier
	metrics    *scraper.Metrics

	// mirrored maps a source image URL to the file it was saved as.
	mirrored *lru.Cache[string, string]
}

type batching struct {
	size  int
	delay time.Duration
}

// NewEngine wires an engine from its collaborators.
func NewEngine(cfg *config.Config, fetcher scraper.HTMLFetcher, extractor parser.Extractor, st scraper.CategoryStore, metrics *scraper.Metrics) (*Engine, error) {
	cache, err := lru.New[string, string](cfg.MirrorCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create mirror cache: %w", err)
	}
	return &Engine{
		cfg:        cfg,
		fetcher:    fetcher,
		extractor:  extractor,
		normalizer: parser.NewNormalizer(cfg.BaseURL),
		store:      st,
		retrier:    scraper.NewRetrier(cfg, metrics),
		metrics:    metrics,
		mirrored:   cache,
	}, nil
}

// ReconcileCategory applies strategies to every product of slug.
func (e *Engine) ReconcileCategory(ctx context.Context, slug string, strategies Strategy) (*models.ReconcileSummary, error) {
	return e.run(ctx, slug, 0, -1, strategies, batching{size: e.cfg.BatchSize, delay: e.cfg.BatchDelay})
}

// ReconcileChunk applies strategies to products [start,end) of slug, clamped
// to the document. Only the products it changed are written back, by id,
// into a fresh copy of the document read under the category lock, so chunks
// over disjoint ranges can run as concurrent processes. Chunks that overlap
// race on the shared ids and the last save wins.
func (e *Engine) ReconcileChunk(ctx context.Context, slug string, start, end int, strategies Strategy) (*models.ReconcileSummary, error) {
	return e.run(ctx, slug, start, end, strategies, batching{size: e.cfg.ChunkBatchSize, delay: e.cfg.ChunkBatchDelay})
}

func (e *Engine) run(ctx context.Context, slug string, start, end int, strategies Strategy, b batching) (*models.ReconcileSummary, error) {
	summary := newSummary(slug)
	logger := slog.With(slog.String("category", slug))

	products, err := e.store.LoadCategory(slug)
	if err != nil {
		return summary, fmt.Errorf("load %s: %w", slug, err)
	}
	start, end = clampRange(start, end, len(products))
	summary.Start, summary.End, summary.Total = start, end, end-start

	logger.Info("reconcile started",
		slog.Int("start", start),
		slog.Int("end", end),
		slog.String("strategies", strategies.String()),
	)

	work := make([]models.Product, end-start)
	copy(work, products[start:end])

	updates, runErr := e.repair(ctx, work, strategies, b, summary, logger)
	if err := e.persist(ctx, slug, updates); err != nil {
		summary.EndTime = time.Now()
		return summary, errors.Join(runErr, err)
	}
	summary.EndTime = time.Now()

	logger.Info("reconcile finished",
		slog.Int("total", summary.Total),
		slog.Int("updated", summary.Updated),
		slog.Int("failed", summary.Failed),
		slog.Int("unchanged", summary.Unchanged),
		slog.Duration("elapsed", summary.EndTime.Sub(summary.StartTime)),
	)
	return summary, runErr
}

// repair runs the strategies over products in place and returns the
// products whose image set changed. A product whose re-fetch failed is
// counted as failed and keeps its stored images with the offline repairs
// applied; it gets a placeholder only when it has no image at all.
func (e *Engine) repair(ctx context.Context, products []models.Product, strategies Strategy, b batching, summary *models.ReconcileSummary, logger *slog.Logger) ([]models.Product, error) {
	original := make([][]models.ProductImage, len(products))
	for i := range products {
		original[i] = products[i].Images
	}

	if strategies.Has(RepairEntities) {
		for i := range products {
			if !HasEntityCorruption(products[i].Images) {
				continue
			}
			var n int
			products[i].Images, n = rewriteImages(products[i].Images, parser.DecodeEntities)
			summary.EntityFixes += n
		}
		e.metrics.AddRepairs("entities", summary.EntityFixes)
	}

	if strategies.Has(RepairVariants) {
		for i := range products {
			var n int
			products[i].Images, n = rewriteImages(products[i].Images, parser.UpgradeVariant)
			summary.VariantUpgrades += n
		}
		e.metrics.AddRepairs("variants", summary.VariantUpgrades)
	}

	state := make([]refetchState, len(products))
	var runErr error
	if strategies.Has(RepairRefetch) {
		runErr = e.refetch(ctx, products, state, b, summary, logger)
		e.metrics.AddRepairs("refetch", summary.Refetched)
	}

	if strategies.Has(RepairPlaceholder) {
		for i := range products {
			switch state[i] {
			case refetchPending:
				continue
			case refetchFailed:
				if len(products[i].Images) > 0 {
					continue
				}
			}
			summary.Placeholders += e.placeholders(&products[i], state[i] == refetchReplaced)
		}
		e.metrics.AddRepairs("placeholder", summary.Placeholders)
	}

	var updates []models.Product
	for i := range products {
		changed := !slices.Equal(original[i], products[i].Images)
		if changed {
			updates = append(updates, products[i])
		}
		switch {
		case state[i] == refetchFailed:
			summary.Failed++
			e.metrics.IncOutcome(outcomeFailed)
		case changed:
			summary.Updated++
			e.metrics.IncOutcome(outcomeUpdated)
		default:
			summary.Unchanged++
			e.metrics.IncOutcome(outcomeUnchanged)
		}
	}
	return updates, runErr
}

type refetchState uint8

const (
	refetchNone refetchState = iota
	// refetchPending marks products the run stopped before reaching.
	refetchPending
	refetchFailed
	refetchKept
	refetchReplaced
)

// refetch re-fetches the detail page of every product with a source URL in
// paced batches. A fresh image set replaces the stored one only when it is
// non-empty and does not start with a placeholder.
func (e *Engine) refetch(ctx context.Context, products []models.Product, state []refetchState, b batching, summary *models.ReconcileSummary, logger *slog.Logger) error {
	var targets []int
	for i := range products {
		if products[i].URL != "" {
			targets = append(targets, i)
			state[i] = refetchPending
		}
	}
	if len(targets) == 0 {
		return nil
	}

	processed, failed := 0, 0
	return scraper.RunBatches(ctx, len(targets), b.size, b.delay,
		func(ctx context.Context, k int) ([]models.ProductImage, error) {
			p := products[targets[k]]
			html, err := e.fetch(ctx, p.URL)
			if err != nil {
				return nil, err
			}
			return e.candidates(html, p.Name), nil
		},
		func(batch []scraper.Result[[]models.ProductImage]) {
			for _, r := range batch {
				i := targets[r.Index]
				p := &products[i]
				if r.Err != nil {
					state[i] = refetchFailed
					failed++
					summary.FailuresByType[scraper.ErrorTypeLabel(r.Err)]++
					logger.Warn("re-fetch failed, keeping stored images",
						slog.String("id", p.ID),
						slog.Any("error", r.Err),
					)
					continue
				}
				if len(r.Value) == 0 || IsPlaceholder(r.Value[0].URL, e.cfg.PlaceholderBaseURL) {
					state[i] = refetchKept
					continue
				}
				p.Images = r.Value
				state[i] = refetchReplaced
				summary.Refetched++
			}
			processed += len(batch)
			logger.Info("reconcile batch",
				slog.Int("processed", processed),
				slog.Int("total", len(targets)),
				slog.Int("refetched", summary.Refetched),
				slog.Int("failed", failed),
			)
		},
	)
}

func (e *Engine) candidates(html, name string) []models.ProductImage {
	images := e.extractor.ExtractImageCandidates(html, e.cfg.ImageHostToken)
	if len(images) == 0 {
		images = e.extractor.ExtractDetail(html, name).Images
	}
	for i := range images {
		if images[i].Alt == "" {
			images[i].Alt = name
		}
	}
	return e.normalizer.NormalizeImages(images)
}

// placeholders substitutes placeholder images for a product with no images,
// or for every image of a product whose images are still expired and were
// not replaced by a fresh re-fetch. It returns the number of images set.
func (e *Engine) placeholders(p *models.Product, fresh bool) int {
	if len(p.Images) == 0 {
		p.Images = []models.ProductImage{{
			URL: PlaceholderURL(e.cfg.PlaceholderBaseURL, p.ID, 0, p.Category),
			Alt: p.Name,
		}}
		return 1
	}
	if fresh || !anyExpired(p.Images) {
		return 0
	}
	images := make([]models.ProductImage, len(p.Images))
	for j, img := range p.Images {
		alt := img.Alt
		if alt == "" {
			alt = p.Name
		}
		images[j] = models.ProductImage{
			URL: PlaceholderURL(e.cfg.PlaceholderBaseURL, p.ID, j, p.Category),
			Alt: alt,
		}
	}
	p.Images = images
	return len(images)
}

// persist writes updates into the current document under the category lock.
// Only image sets are taken from updates; every other field comes from the
// document as it is on disk at save time. It runs even after ctx is done.
func (e *Engine) persist(ctx context.Context, slug string, updates []models.Product) error {
	if len(updates) == 0 {
		return nil
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.LockTTL)
	defer cancel()

	unlock, err := e.store.Lock(saveCtx, slug)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := e.store.LoadCategory(slug)
	if err != nil {
		return fmt.Errorf("reload %s: %w", slug, err)
	}
	idx := pipeline.Index(current)
	patch := make([]models.Product, 0, len(updates))
	for _, u := range updates {
		if i, ok := idx[u.ID]; ok {
			rec := current[i]
			rec.Images = u.Images
			patch = append(patch, rec)
			continue
		}
		patch = append(patch, u)
	}
	current, _ = pipeline.ApplyByID(current, patch)
	return e.store.SaveCategory(slug, current)
}

func (e *Engine) fetch(ctx context.Context, target string) (string, error) {
	var html string
	err := e.retrier.Do(ctx, target, func(ctx context.Context) error {
		var err error
		html, err = e.fetcher.Fetch(ctx, target)
		return err
	})
	return html, err
}

// rewriteImages applies fn to every URL and returns a new slice when any URL
// changed, with the number of changed URLs.
func rewriteImages(images []models.ProductImage, fn func(string) string) ([]models.ProductImage, int) {
	var out []models.ProductImage
	changed := 0
	for j, img := range images {
		u := fn(img.URL)
		if u == img.URL {
			continue
		}
		if out == nil {
			out = slices.Clone(images)
		}
		out[j].URL = u
		changed++
	}
	if out == nil {
		return images, 0
	}
	return out, changed
}

func clampRange(start, end, n int) (int, int) {
	if end < 0 || end > n {
		end = n
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}
	return start, end
}

func newSummary(slug string) *models.ReconcileSummary {
	return &models.ReconcileSummary{
		Category:       slug,
		StartTime:      time.Now(),
		FailuresByType: make(map[string]int),
	}
}
