package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", false
	}
	return v, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvDuration parses key as a Go duration ("250ms") or as plain milliseconds.
func EnvDuration(key string) (time.Duration, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, true, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// EnvBool parses key as a boolean flag.
func EnvBool(key string) (bool, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true, true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, true, nil
	}
	return false, true, fmt.Errorf("%s: invalid boolean %q", key, v)
}

// FromEnv loads an optional .env file and applies CATALOG_* overrides on top
// of DefaultConfig. The result is validated.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	stringVars := []struct {
		key string
		dst *string
	}{
		{"CATALOG_BASE_URL", &cfg.BaseURL},
		{"CATALOG_IMAGE_HOST_TOKEN", &cfg.ImageHostToken},
		{"CATALOG_STORAGE_MARKER", &cfg.StoragePathMarker},
		{"CATALOG_LISTING_ORDER", &cfg.ListingOrder},
		{"CATALOG_CHUNK_CATEGORY", &cfg.ChunkCategory},
		{"CATALOG_DATA_DIR", &cfg.DataDir},
		{"CATALOG_IMAGES_DIR", &cfg.ImagesDir},
		{"CATALOG_MIRROR_BASE_URL", &cfg.MirrorBaseURL},
		{"CATALOG_PLACEHOLDER_BASE_URL", &cfg.PlaceholderBaseURL},
		{"CATALOG_USER_AGENT", &cfg.UserAgent},
		{"CATALOG_METRICS_ADDR", &cfg.MetricsAddr},
		{"CATALOG_LOG_FILE", &cfg.LogFile},
	}
	for _, s := range stringVars {
		if v, ok := EnvString(s.key); ok {
			*s.dst = v
		}
	}

	intVars := []struct {
		key string
		dst *int
	}{
		{"CATALOG_MAX_REDIRECTS", &cfg.MaxRedirects},
		{"CATALOG_MAX_CONNECTIONS", &cfg.MaxConnections},
		{"CATALOG_DETAIL_CONCURRENCY", &cfg.DetailConcurrency},
		{"CATALOG_BATCH_SIZE", &cfg.BatchSize},
		{"CATALOG_CHUNK_BATCH_SIZE", &cfg.ChunkBatchSize},
		{"CATALOG_MAX_RETRIES", &cfg.MaxRetries},
		{"CATALOG_DEDUPE_MAX_SIZE", &cfg.DedupeMaxSize},
		{"CATALOG_MIRROR_CACHE_SIZE", &cfg.MirrorCacheSize},
	}
	for _, i := range intVars {
		v, ok, err := EnvInt(i.key)
		if err != nil {
			return nil, err
		}
		if ok {
			*i.dst = v
		}
	}

	durationVars := []struct {
		key string
		dst *time.Duration
	}{
		{"CATALOG_TIMEOUT", &cfg.Timeout},
		{"CATALOG_CHUNK_TIMEOUT", &cfg.ChunkTimeout},
		{"CATALOG_LISTING_DELAY", &cfg.ListingDelay},
		{"CATALOG_DETAIL_DELAY", &cfg.DetailDelay},
		{"CATALOG_BATCH_DELAY", &cfg.BatchDelay},
		{"CATALOG_CHUNK_BATCH_DELAY", &cfg.ChunkBatchDelay},
		{"CATALOG_RETRY_BACKOFF", &cfg.RetryBackoff},
		{"CATALOG_RETRY_BACKOFF_MAX", &cfg.RetryBackoffMax},
		{"CATALOG_LOCK_TTL", &cfg.LockTTL},
	}
	for _, d := range durationVars {
		v, ok, err := EnvDuration(d.key)
		if err != nil {
			return nil, err
		}
		if ok {
			*d.dst = v
		}
	}

	verbose, ok, err := EnvBool("CATALOG_VERBOSE")
	if err != nil {
		return nil, err
	}
	if ok {
		cfg.Verbose = verbose
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
