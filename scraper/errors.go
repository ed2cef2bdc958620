package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrCategoryAborted is returned when the first listing page of a category
// cannot be fetched.
var ErrCategoryAborted = errors.New("category aborted")

// TimeoutError indicates a request exceeded its deadline.
type TimeoutError struct {
	URL string
	Err error
}

func (e TimeoutError) Error() string {
	return fmt.Errorf("timeout fetching %s: %w", e.URL, e.Err).Error()
}

func (e TimeoutError) Unwrap() error {
	return e.Err
}

// NetworkError indicates DNS or socket level failure.
type NetworkError struct {
	URL string
	Err error
}

func (e NetworkError) Error() string {
	return fmt.Errorf("network error fetching %s: %w", e.URL, e.Err).Error()
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is a terminal non-200 response.
type HTTPStatusError struct {
	URL    string
	Status int
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d fetching %s", e.Status, e.URL)
}

// IsRetryable reports whether a fetch failure is worth another attempt.
// Timeouts, network failures, 429 and 5xx responses are; everything else is
// terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var timeout TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var network NetworkError
	if errors.As(err, &network) {
		return true
	}
	var status HTTPStatusError
	if errors.As(err, &status) {
		return status.Status == http.StatusTooManyRequests || status.Status >= http.StatusInternalServerError
	}
	return false
}

func classifyError(rawURL string, err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return TimeoutError{URL: rawURL, Err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return TimeoutError{URL: rawURL, Err: err}
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return NetworkError{URL: rawURL, Err: err}
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return NetworkError{URL: rawURL, Err: err}
		}
	}

	if statusCode != 0 && statusCode != http.StatusOK {
		return HTTPStatusError{URL: rawURL, Status: statusCode}
	}
	return err
}

// ErrorTypeLabel maps an error onto the label used for metrics and summaries.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout TimeoutError
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var network NetworkError
	if errors.As(err, &network) {
		return "network"
	}
	var status HTTPStatusError
	if errors.As(err, &status) {
		switch status.Status {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		}
		return "http_status"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}
