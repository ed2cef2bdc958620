package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluiziolira/catalog-harvest/config"
)

func TestRetrierRespectsLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = time.Millisecond

	r := NewRetrier(cfg, NewMetrics())

	var calls int32
	err := r.Do(context.Background(), "page", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return HTTPStatusError{URL: "http://example.test/", Status: http.StatusServiceUnavailable}
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	if got := r.TotalRetries(); got != 2 {
		t.Fatalf("total retries = %d, want 2", got)
	}
}

func TestRetrierStopsOnTerminalError(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	r := NewRetrier(cfg, nil)

	var calls int
	err := r.Do(context.Background(), "page", func(context.Context) error {
		calls++
		return HTTPStatusError{Status: http.StatusNotFound}
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	var status HTTPStatusError
	if !errors.As(err, &status) || status.Status != http.StatusNotFound {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRetrierRecovers(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	r := NewRetrier(cfg, nil)

	var calls int
	err := r.Do(context.Background(), "page", func(context.Context) error {
		calls++
		if calls == 1 {
			return NetworkError{Err: errors.New("reset")}
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetrierBackoffCapped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	r := NewRetrier(cfg, nil)

	if delay := r.backoff(4); delay > cfg.RetryBackoffMax {
		t.Fatalf("delay %v exceeds max %v", delay, cfg.RetryBackoffMax)
	}
	if delay := r.backoff(2); delay != 400*time.Millisecond {
		t.Fatalf("second backoff = %v, want 400ms", delay)
	}
}

func TestRetrierHonoursContext(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 5
	cfg.RetryBackoff = time.Hour
	cfg.RetryBackoffMax = time.Hour
	r := NewRetrier(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Do(ctx, "page", func(context.Context) error {
		return TimeoutError{Err: context.DeadlineExceeded}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("retrier ignored context cancellation")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
		retryable  bool
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout", retryable: true},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout", retryable: true},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "example.test"}, statusCode: 0, expected: "network", retryable: true},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "network", retryable: true},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited", retryable: true},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "http_status", retryable: true},
		{name: "canceled", err: context.Canceled, statusCode: 0, expected: "canceled"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyError("http://example.test/", tt.err, tt.statusCode)
			if got := ErrorTypeLabel(classified); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
			if got := IsRetryable(classified); got != tt.retryable {
				t.Fatalf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestRunBatchesBarrierAndOrder(t *testing.T) {
	var inFlight, maxInFlight int32
	var batches [][]int

	err := RunBatches(context.Background(), 7, 3, 0,
		func(_ context.Context, i int) (int, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			if i == 4 {
				return 0, fmt.Errorf("item %d failed", i)
			}
			return i * 10, nil
		},
		func(batch []Result[int]) {
			if n := atomic.LoadInt32(&inFlight); n != 0 {
				t.Errorf("fold ran with %d items still in flight", n)
			}
			var idx []int
			for _, r := range batch {
				idx = append(idx, r.Index)
				if r.Index == 4 {
					if r.Err == nil {
						t.Errorf("item 4 should carry its error")
					}
					continue
				}
				if r.Err != nil || r.Value != r.Index*10 {
					t.Errorf("result %+v", r)
				}
			}
			batches = append(batches, idx)
		},
	)
	if err != nil {
		t.Fatalf("run batches: %v", err)
	}

	want := [][]int{{0, 1, 2}, {3, 4, 5}, {6}}
	if fmt.Sprint(batches) != fmt.Sprint(want) {
		t.Fatalf("batches = %v, want %v", batches, want)
	}
	if maxInFlight > 3 {
		t.Fatalf("max in flight = %d, exceeds batch size", maxInFlight)
	}
}

func TestRunBatchesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	folded := 0

	err := RunBatches(ctx, 10, 2, 0,
		func(context.Context, int) (struct{}, error) { return struct{}{}, nil },
		func([]Result[struct{}]) {
			folded++
			cancel()
		},
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if folded != 1 {
		t.Fatalf("folded %d batches after cancel, want 1", folded)
	}
}

func TestRunBatchesWaitsAfterEachBatch(t *testing.T) {
	const delay = 40 * time.Millisecond
	var starts, ends []time.Time

	err := RunBatches(context.Background(), 3, 1, delay,
		func(context.Context, int) (struct{}, error) {
			starts = append(starts, time.Now())
			time.Sleep(2 * delay)
			return struct{}{}, nil
		},
		func([]Result[struct{}]) {
			ends = append(ends, time.Now())
		},
	)
	if err != nil {
		t.Fatalf("run batches: %v", err)
	}
	if len(starts) != 3 || len(ends) != 3 {
		t.Fatalf("ran %d batches, folded %d, want 3", len(starts), len(ends))
	}
	for i := 1; i < 3; i++ {
		if gap := starts[i].Sub(ends[i-1]); gap < delay-5*time.Millisecond {
			t.Fatalf("batch %d started %v after batch %d ended, want at least %v", i, gap, i-1, delay)
		}
	}
}

func TestPauseEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Pause(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("pause ignored cancellation for %v", elapsed)
	}
	if err := Pause(context.Background(), 0); err != nil {
		t.Fatalf("zero pause: %v", err)
	}
}
