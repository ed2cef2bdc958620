package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds pipeline configuration.
type Config struct {
	BaseURL            string
	ImageHostToken     string
	StoragePathMarker  string
	ListingOrder       string
	Timeout            time.Duration
	ChunkTimeout       time.Duration
	MaxRedirects       int
	MaxConnections     int
	ListingDelay       time.Duration
	DetailDelay        time.Duration
	DetailConcurrency  int
	BatchSize          int
	BatchDelay         time.Duration
	ChunkBatchSize     int
	ChunkBatchDelay    time.Duration
	ChunkCategory      string
	MaxRetries         int
	RetryBackoff       time.Duration
	RetryBackoffMax    time.Duration
	DedupeMaxSize      int
	MirrorCacheSize    int
	DataDir            string
	ImagesDir          string
	MirrorBaseURL      string
	PlaceholderBaseURL string
	LockTTL            time.Duration
	UserAgent          string
	MetricsAddr        string
	LogFile            string
	Verbose            bool
}

// DefaultConfig returns conservative defaults for the source site.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://amsterdammodern.com",
		ImageHostToken:     "ammod-pro.s3",
		StoragePathMarker:  "active_storage",
		ListingOrder:       "added_new-old",
		Timeout:            30 * time.Second,
		ChunkTimeout:       15 * time.Second,
		MaxRedirects:       5,
		MaxConnections:     20,
		ListingDelay:       500 * time.Millisecond,
		DetailDelay:        200 * time.Millisecond,
		DetailConcurrency:  1,
		BatchSize:          5,
		BatchDelay:         time.Second,
		ChunkBatchSize:     20,
		ChunkBatchDelay:    200 * time.Millisecond,
		ChunkCategory:      "15-ARCHIVE",
		MaxRetries:         2,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		DedupeMaxSize:      100000,
		MirrorCacheSize:    4096,
		DataDir:            "data/products",
		ImagesDir:          "public/images/products",
		MirrorBaseURL:      "http://localhost:3000/images/products",
		PlaceholderBaseURL: "https://picsum.photos",
		LockTTL:            10 * time.Minute,
		UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateAbsolute("base URL", c.BaseURL); err != nil {
		return err
	}
	if err := validateAbsolute("mirror base URL", c.MirrorBaseURL); err != nil {
		return err
	}
	if err := validateAbsolute("placeholder base URL", c.PlaceholderBaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.ImageHostToken) == "" {
		return fmt.Errorf("image host token cannot be empty")
	}
	if strings.TrimSpace(c.StoragePathMarker) == "" {
		return fmt.Errorf("storage path marker cannot be empty")
	}
	if c.Timeout <= 0 || c.ChunkTimeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max redirects cannot be negative")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.ListingDelay < 0 || c.DetailDelay < 0 || c.BatchDelay < 0 || c.ChunkBatchDelay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.DetailConcurrency <= 0 {
		return fmt.Errorf("detail concurrency must be positive")
	}
	if c.BatchSize <= 0 || c.ChunkBatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.BatchSize > c.MaxConnections || c.ChunkBatchSize > c.MaxConnections {
		return fmt.Errorf("batch size cannot exceed max connections (%d)", c.MaxConnections)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.MirrorCacheSize <= 0 {
		return fmt.Errorf("mirror cache size must be positive")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir cannot be empty")
	}
	if c.ImagesDir == "" {
		return fmt.Errorf("images dir cannot be empty")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("lock ttl must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}

// Origin returns the base URL without a trailing slash.
func (c *Config) Origin() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func validateAbsolute(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", name)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
