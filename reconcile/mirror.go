package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/aluiziolira/catalog-harvest/scraper"
	"github.com/aluiziolira/catalog-harvest/store"
)

type mirrorResult struct {
	images   []models.ProductImage
	mirrored int
	failed   int
	err      error
}

// MirrorCategory downloads every remote image of slug into the images
// directory as <id>-<index>.jpg and points the product at the local copy.
// Files already present are not downloaded again, and an image fetched once
// for any product is reused for every later product referencing it. A failed
// download keeps the original URL.
func (e *Engine) MirrorCategory(ctx context.Context, slug string) (*models.ReconcileSummary, error) {
	summary := newSummary(slug)
	logger := slog.With(slog.String("category", slug))

	products, err := e.store.LoadCategory(slug)
	if err != nil {
		return summary, fmt.Errorf("load %s: %w", slug, err)
	}
	summary.End, summary.Total = len(products), len(products)
	if err := os.MkdirAll(e.cfg.ImagesDir, 0o755); err != nil {
		return summary, fmt.Errorf("create images dir: %w", err)
	}
	logger.Info("mirror started", slog.Int("products", len(products)), slog.String("dir", e.cfg.ImagesDir))

	var updates []models.Product
	processed := 0
	runErr := scraper.RunBatches(ctx, len(products), e.cfg.BatchSize, e.cfg.BatchDelay,
		func(ctx context.Context, i int) (mirrorResult, error) {
			return e.mirrorProduct(ctx, products[i]), nil
		},
		func(batch []scraper.Result[mirrorResult]) {
			for _, r := range batch {
				p := products[r.Index]
				res := r.Value
				summary.Mirrored += res.mirrored
				changed := !slices.Equal(p.Images, res.images)
				if changed {
					p.Images = res.images
					updates = append(updates, p)
				}
				switch {
				case res.failed > 0:
					summary.Failed++
					summary.FailuresByType[scraper.ErrorTypeLabel(res.err)] += res.failed
					e.metrics.IncOutcome(outcomeFailed)
					logger.Warn("image download failed, keeping original url",
						slog.String("id", p.ID),
						slog.Int("failed", res.failed),
						slog.Any("error", res.err),
					)
				case changed:
					summary.Updated++
					e.metrics.IncOutcome(outcomeUpdated)
				default:
					summary.Unchanged++
					e.metrics.IncOutcome(outcomeUnchanged)
				}
			}
			processed += len(batch)
			logger.Info("mirror batch",
				slog.Int("processed", processed),
				slog.Int("total", len(products)),
				slog.Int("mirrored", summary.Mirrored),
			)
		},
	)
	e.metrics.AddRepairs("mirror", summary.Mirrored)

	if err := e.persist(ctx, slug, updates); err != nil {
		summary.EndTime = time.Now()
		return summary, errors.Join(runErr, err)
	}
	summary.EndTime = time.Now()
	logger.Info("mirror finished",
		slog.Int("mirrored", summary.Mirrored),
		slog.Int("updated", summary.Updated),
		slog.Int("failed", summary.Failed),
	)
	return summary, runErr
}

func (e *Engine) mirrorProduct(ctx context.Context, p models.Product) mirrorResult {
	res := mirrorResult{images: slices.Clone(p.Images)}
	for j, img := range p.Images {
		if img.URL == "" || e.isLocal(img.URL) || IsPlaceholder(img.URL, e.cfg.PlaceholderBaseURL) {
			continue
		}
		file, err := e.mirrorImage(ctx, img.URL, fmt.Sprintf("%s-%d.jpg", p.ID, j))
		if err != nil {
			res.failed++
			res.err = err
			continue
		}
		res.images[j].URL = e.localURL(file)
		res.mirrored++
	}
	return res
}

func (e *Engine) mirrorImage(ctx context.Context, src, name string) (string, error) {
	if file, ok := e.mirrored.Get(src); ok {
		return file, nil
	}

	path := filepath.Join(e.cfg.ImagesDir, name)
	if _, err := os.Stat(path); err == nil {
		e.mirrored.Add(src, name)
		return name, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	var data []byte
	err := e.retrier.Do(ctx, src, func(ctx context.Context) error {
		var err error
		data, err = e.fetcher.FetchBytes(ctx, src)
		return err
	})
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty image body from %s", src)
	}
	if err := store.WriteFile(path, data); err != nil {
		return "", err
	}
	e.mirrored.Add(src, name)
	return name, nil
}

func (e *Engine) localURL(file string) string {
	return strings.TrimRight(e.cfg.MirrorBaseURL, "/") + "/" + file
}

func (e *Engine) isLocal(u string) bool {
	return strings.HasPrefix(u, strings.TrimRight(e.cfg.MirrorBaseURL, "/")+"/")
}
