package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aluiziolira/catalog-harvest/config"
	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/aluiziolira/catalog-harvest/parser"
	"github.com/aluiziolira/catalog-harvest/pipeline"
)

// CategoryStore is the persistence the crawler needs.
type CategoryStore interface {
	LoadCategory(slug string) ([]models.Product, error)
	SaveCategory(slug string, products []models.Product) error
	Lock(ctx context.Context, slug string) (func(), error)
}

// Crawler walks a category's listing pages, enriches the records from their
// detail pages and merges the result into the stored category document.
type Crawler struct {
	cfg        *config.Config
	fetcher    HTMLFetcher
	extractor  parser.Extractor
	normalizer *parser.Normalizer
	store      CategoryStore
	retrier    *Retrier
	metrics    *Metrics
}

// NewCrawler wires a crawler from its collaborators.
func NewCrawler(cfg *config.Config, fetcher HTMLFetcher, extractor parser.Extractor, st CategoryStore, metrics *Metrics) *Crawler {
	return &Crawler{
		cfg:        cfg,
		fetcher:    fetcher,
		extractor:  extractor,
		normalizer: parser.NewNormalizer(cfg.BaseURL),
		store:      st,
		retrier:    NewRetrier(cfg, metrics),
		metrics:    metrics,
	}
}

// StartURL returns the first listing page of a category.
func (c *Crawler) StartURL(category models.Category) string {
	return category.URL + "?order=" + url.QueryEscape(c.cfg.ListingOrder) + "&page=1"
}

// CrawlCategory runs one category to completion. Only a failure to fetch
// the first listing page aborts the category, in which case the stored
// document is left untouched and the returned error wraps
// ErrCategoryAborted. Later page failures end pagination; detail failures
// keep the listing-only record.
func (c *Crawler) CrawlCategory(ctx context.Context, category models.Category, quick bool) (*models.CrawlResult, error) {
	result := &models.CrawlResult{
		Category:     category.Slug,
		Quick:        quick,
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	retriesBefore := c.retrier.TotalRetries()
	finish := func(state models.CrawlState) {
		result.State = state
		result.EndTime = time.Now()
		result.RetryCount = c.retrier.TotalRetries() - retriesBefore
	}

	logger := slog.With(slog.String("category", category.Slug))
	logger.Info("crawl started", slog.Bool("quick", quick))

	products, err := c.collectListings(ctx, category, result, logger)
	if err != nil {
		finish(models.CrawlAborted)
		logger.Error("crawl aborted", slog.Any("error", err))
		return result, err
	}

	galleries := make(map[string]struct{})
	if !quick && ctx.Err() == nil {
		c.enrich(ctx, products, galleries, result, logger)
	}

	saved, err := c.save(ctx, category.Slug, products, galleries)
	if err != nil {
		finish(models.CrawlDone)
		return result, err
	}
	result.SavedCount = saved
	finish(models.CrawlDone)

	logger.Info("crawl finished",
		slog.Int("pages", result.PageCount),
		slog.Int("listed", result.ListedCount),
		slog.Int("enriched", result.EnrichedCount),
		slog.Int("detail_failures", result.DetailFailures),
		slog.Int("saved", result.SavedCount),
		slog.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)
	return result, ctx.Err()
}

// CrawlAll crawls categories in order. An aborted category does not stop the
// others; the returned error joins every abort.
func (c *Crawler) CrawlAll(ctx context.Context, categories []models.Category, quick bool) ([]*models.CrawlResult, error) {
	results := make([]*models.CrawlResult, 0, len(categories))
	var errs []error
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result, err := c.CrawlCategory(ctx, category, quick)
		results = append(results, result)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

func (c *Crawler) collectListings(ctx context.Context, category models.Category, result *models.CrawlResult, logger *slog.Logger) ([]models.Product, error) {
	sink := pipeline.NewMemorySink()
	collector, err := pipeline.NewCollector(c.cfg, c.normalizer, sink)
	if err != nil {
		return nil, err
	}
	collector.Start(1)

	visited := make(map[string]struct{})
	pageURL := c.StartURL(category)

	for pageURL != "" {
		if result.PageCount > 0 {
			if err := Pause(ctx, c.cfg.ListingDelay); err != nil {
				break
			}
		} else if err := ctx.Err(); err != nil {
			_ = collector.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrCategoryAborted, category.Slug, err)
		}
		visited[pageURL] = struct{}{}

		html, err := c.fetch(ctx, pageURL)
		if err != nil {
			c.recordFailure(result, pageURL, err)
			if result.PageCount == 0 {
				_ = collector.Close()
				return nil, fmt.Errorf("%w: %s: %w", ErrCategoryAborted, category.Slug, err)
			}
			logger.Warn("listing page failed, stopping pagination",
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			break
		}

		page := c.extractor.ExtractListing(html, category.Name)
		if err := collector.Process(page.Products); err != nil {
			_ = collector.Close()
			return nil, fmt.Errorf("collect listing records: %w", err)
		}
		result.PageCount++
		if page.TotalPages > result.TotalPages {
			result.TotalPages = page.TotalPages
		}
		c.metrics.IncPages()
		logger.Info("listing page",
			slog.Int("page", result.PageCount),
			slog.Int("total_pages", result.TotalPages),
			slog.Int("found", len(page.Products)),
		)

		pageURL = c.nextPage(pageURL, page.NextPageURL, visited, logger)
	}

	if err := collector.Close(); err != nil {
		return nil, fmt.Errorf("close collector: %w", err)
	}
	result.ListedCount = collector.Accepted()
	if rejected, ok := collector.GetMetrics()["validation_errors"].(map[string]int); ok && len(rejected) > 0 {
		result.Rejected = rejected
	}
	c.metrics.AddListed(result.ListedCount)
	return sink.Products(), nil
}

func (c *Crawler) nextPage(current, href string, visited map[string]struct{}, logger *slog.Logger) string {
	if href == "" {
		return ""
	}
	next, err := resolveLocation(current, parser.DecodeEntities(href))
	if err != nil {
		logger.Warn("unusable next page link", slog.String("href", href), slog.Any("error", err))
		return ""
	}
	if _, seen := visited[next]; seen {
		logger.Warn("pagination loop detected", slog.String("url", next))
		return ""
	}
	return next
}

// enrich merges each product's detail page into it. Ids whose detail page
// supplied images are added to galleries.
func (c *Crawler) enrich(ctx context.Context, products []models.Product, galleries map[string]struct{}, result *models.CrawlResult, logger *slog.Logger) {
	processed := 0

	err := RunBatches(ctx, len(products), c.cfg.DetailConcurrency, c.cfg.DetailDelay,
		func(ctx context.Context, i int) (parser.Detail, error) {
			html, err := c.fetch(ctx, products[i].URL)
			if err != nil {
				return parser.Detail{}, err
			}
			return c.extractor.ExtractDetail(html, products[i].Name), nil
		},
		func(batch []Result[parser.Detail]) {
			for _, r := range batch {
				p := &products[r.Index]
				processed++
				if r.Err != nil {
					result.DetailFailures++
					c.recordFailure(result, p.URL, r.Err)
					logger.Warn("detail fetch failed, keeping listing record",
						slog.String("id", p.ID),
						slog.Any("error", r.Err),
					)
					continue
				}
				if err := parser.MergeDetail(p, r.Value, c.normalizer); err != nil {
					result.DetailFailures++
					logger.Warn("detail merge failed", slog.String("id", p.ID), slog.Any("error", err))
					continue
				}
				if len(c.normalizer.NormalizeImages(r.Value.Images)) > 0 {
					galleries[p.ID] = struct{}{}
				}
				result.EnrichedCount++
			}
			if processed%25 == 0 || processed == len(products) {
				logger.Info("detail progress",
					slog.Int("processed", processed),
					slog.Int("total", len(products)),
					slog.Int("failures", result.DetailFailures),
				)
			}
		},
	)
	if err != nil {
		logger.Warn("detail enrichment interrupted", slog.Int("processed", processed), slog.Any("error", err))
	}
}

// save merges the crawl into the stored document under the category lock.
// It runs even when ctx is already cancelled so collected work is kept.
func (c *Crawler) save(ctx context.Context, slug string, products []models.Product, galleries map[string]struct{}) (int, error) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.LockTTL)
	defer cancel()

	unlock, err := c.store.Lock(saveCtx, slug)
	if err != nil {
		return 0, err
	}
	defer unlock()

	prior, err := c.store.LoadCategory(slug)
	if err != nil {
		return 0, err
	}
	merged, err := pipeline.MergeByID(products, prior, galleries)
	if err != nil {
		return 0, err
	}
	if err := c.store.SaveCategory(slug, merged); err != nil {
		return 0, err
	}
	return len(merged), nil
}

func (c *Crawler) fetch(ctx context.Context, target string) (string, error) {
	var html string
	err := c.retrier.Do(ctx, target, func(ctx context.Context) error {
		var err error
		html, err = c.fetcher.Fetch(ctx, target)
		return err
	})
	return html, err
}

func (c *Crawler) recordFailure(result *models.CrawlResult, target string, err error) {
	result.ErrorsByType[ErrorTypeLabel(err)]++
	result.FailedURLs = append(result.FailedURLs, target)
}
