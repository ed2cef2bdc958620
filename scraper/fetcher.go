package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/aluiziolira/catalog-harvest/config"
	"github.com/gocolly/colly/v2"
)

// ErrTooManyRedirects is returned when a redirect chain exceeds the
// configured hop budget.
var ErrTooManyRedirects = errors.New("too many redirects")

const (
	ctxResultKey = "result"
	ctxStartKey  = "start"
)

// HTMLFetcher is the narrow view of Fetcher used by the crawler and the
// reconciliation engine.
type HTMLFetcher interface {
	Fetch(ctx context.Context, rawURL string, opts ...RequestOption) (string, error)
	FetchBytes(ctx context.Context, rawURL string, opts ...RequestOption) ([]byte, error)
}

// Fetcher retrieves documents over HTTP through a synchronous colly
// collector. Redirects are never followed by the client; Fetch re-issues
// them itself so every hop is visible and bounded.
type Fetcher struct {
	collector    *colly.Collector
	metrics      *Metrics
	userAgent    string
	maxRedirects int
}

// FetcherOption customizes a Fetcher at construction.
type FetcherOption func(*fetcherSettings)

type fetcherSettings struct {
	timeout time.Duration
}

// WithTimeout overrides the per-request timeout taken from the config.
func WithTimeout(d time.Duration) FetcherOption {
	return func(s *fetcherSettings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// RequestOption customizes a single fetch.
type RequestOption func(*requestSettings)

type requestSettings struct {
	headers         http.Header
	followRedirects bool
}

// WithHeader sets or overrides one request header.
func WithHeader(key, value string) RequestOption {
	return func(s *requestSettings) {
		s.headers.Set(key, value)
	}
}

// WithoutRedirects returns 3xx responses as HTTPStatusError instead of
// following them.
func WithoutRedirects() RequestOption {
	return func(s *requestSettings) {
		s.followRedirects = false
	}
}

type fetchResult struct {
	status   int
	location string
	body     []byte
}

// NewFetcher builds a Fetcher configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics, opts ...FetcherOption) (*Fetcher, error) {
	settings := fetcherSettings{timeout: cfg.Timeout}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.timeout <= 0 {
		return nil, fmt.Errorf("fetcher timeout must be positive")
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = 32 * 1024 * 1024
	collector.SetRequestTimeout(settings.timeout)
	collector.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
	collector.WithTransport(cloudflarebp.AddCloudFlareByPass(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   settings.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     cfg.MaxConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}))

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.MaxConnections,
	}); err != nil {
		return nil, fmt.Errorf("configure connection limit: %w", err)
	}

	f := &Fetcher{
		collector:    collector,
		metrics:      metrics,
		userAgent:    cfg.UserAgent,
		maxRedirects: cfg.MaxRedirects,
	}
	f.configureHandlers()
	return f, nil
}

// WithTransport swaps the underlying round tripper. Tests inject httpmock
// transports through it.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStartKey, time.Now())
		f.metrics.IncRequest("started")
	})

	f.collector.OnResponse(func(r *colly.Response) {
		if res, ok := r.Ctx.GetAny(ctxResultKey).(*fetchResult); ok {
			res.status = r.StatusCode
			res.body = r.Body
			if r.Headers != nil {
				res.location = r.Headers.Get("Location")
			}
		}
		if start, ok := r.Ctx.GetAny(ctxStartKey).(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
		f.metrics.IncRequest("completed")
	})
}

// Fetch retrieves rawURL and returns the response body as text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts ...RequestOption) (string, error) {
	body, err := f.fetch(ctx, rawURL, f.settings("text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", opts), 0)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchBytes retrieves rawURL and returns the raw response body.
func (f *Fetcher) FetchBytes(ctx context.Context, rawURL string, opts ...RequestOption) ([]byte, error) {
	return f.fetch(ctx, rawURL, f.settings("image/avif,image/webp,image/*,*/*;q=0.8", opts), 0)
}

func (f *Fetcher) settings(accept string, opts []RequestOption) requestSettings {
	s := requestSettings{
		headers: http.Header{
			"User-Agent":      []string{f.userAgent},
			"Accept":          []string{accept},
			"Accept-Language": []string{"en-US,en;q=0.9"},
		},
		followRedirects: true,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, s requestSettings, hops int) ([]byte, error) {
	res, err := f.do(ctx, rawURL, s.headers)
	if err != nil {
		classified := classifyError(rawURL, err, 0)
		f.metrics.IncError(ErrorTypeLabel(classified))
		return nil, classified
	}

	switch res.status {
	case http.StatusOK:
		return res.body, nil
	case http.StatusMovedPermanently, http.StatusFound:
		if s.followRedirects && res.location != "" {
			if hops >= f.maxRedirects {
				f.metrics.IncError("redirect")
				return nil, fmt.Errorf("%w: %s after %d hops", ErrTooManyRedirects, rawURL, hops)
			}
			next, err := resolveLocation(rawURL, res.location)
			if err != nil {
				return nil, fmt.Errorf("resolve redirect from %s: %w", rawURL, err)
			}
			slog.Debug("following redirect",
				slog.String("from", rawURL),
				slog.String("to", next),
				slog.Int("hop", hops+1),
			)
			return f.fetch(ctx, next, s, hops+1)
		}
	}

	classified := classifyError(rawURL, nil, res.status)
	f.metrics.IncError(ErrorTypeLabel(classified))
	return nil, classified
}

// do issues one request and waits for it or for ctx, whichever ends first.
// colly's synchronous Request cannot be cancelled mid-flight; an abandoned
// request still ends at the collector's timeout.
func (f *Fetcher) do(ctx context.Context, rawURL string, headers http.Header) (*fetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &fetchResult{}
	cctx := colly.NewContext()
	cctx.Put(ctxResultKey, res)

	done := make(chan error, 1)
	go func() {
		done <- f.collector.Request(http.MethodGet, rawURL, nil, cctx, headers.Clone())
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, err
		}
	}
	if res.status == 0 {
		return nil, fmt.Errorf("no response received for %s", rawURL)
	}
	return res, nil
}

func resolveLocation(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(loc).String(), nil
}
