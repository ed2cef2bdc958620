package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrLockHeld is returned when another writer holds a category lock until
// the caller's context ends.
var ErrLockHeld = errors.New("category lock held by another writer")

type lockSettings struct {
	ttl       time.Duration
	poll      time.Duration
	heartbeat time.Duration
}

func defaultLockSettings() lockSettings {
	return lockSettings{
		ttl:       10 * time.Minute,
		poll:      100 * time.Millisecond,
		heartbeat: time.Minute,
	}
}

// Option configures a Store.
type Option func(*Store)

// WithLockTTL sets the age after which a lock file is considered abandoned.
// The heartbeat refreshes held locks at a third of ttl.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl <= 0 {
			return
		}
		s.lock.ttl = ttl
		s.lock.heartbeat = max(ttl/3, time.Millisecond)
	}
}

// WithLockPoll sets how often a waiting writer retries a held lock.
func WithLockPoll(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lock.poll = d
		}
	}
}

// Lock takes the advisory write lock of a category, waiting while another
// process holds it. The returned function releases it.
func (s *Store) Lock(ctx context.Context, slug string) (func(), error) {
	path := filepath.Join(s.dataDir, slug+".json.lock")
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(s.lock.poll)
	defer ticker.Stop()

	for {
		acquired, err := tryLock(path, s.lock.ttl)
		if err != nil {
			return nil, err
		}
		if acquired {
			return s.holdLock(path), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockHeld, slug, ctx.Err())
		case <-ticker.C:
		}
	}
}

func tryLock(path string, ttl time.Duration) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_, _ = fmt.Fprintf(f, `{"pid":%d,"time":%d}`+"\n", os.Getpid(), time.Now().Unix())
		return true, f.Close()
	}
	if !errors.Is(err, fs.ErrExist) {
		return false, fmt.Errorf("create lock %s: %w", path, err)
	}

	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		// Released between our create and stat; try again right away.
		return tryLock(path, ttl)
	}
	if err != nil {
		return false, fmt.Errorf("stat lock %s: %w", path, err)
	}
	if age := time.Since(fi.ModTime()); age >= ttl {
		slog.Warn("removing stale lock", slog.String("path", path), slog.Duration("age", age))
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("remove stale lock %s: %w", path, err)
		}
		return tryLock(path, ttl)
	}
	return false, nil
}

func (s *Store) holdLock(path string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(s.lock.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				now := time.Now()
				_ = os.Chtimes(path, now, now)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			_ = os.Remove(path)
		})
	}
}
