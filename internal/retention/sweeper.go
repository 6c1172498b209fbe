// Package retention removes downloaded files once they outlive the
// retention threshold.
package retention

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrShutdownTimeout is returned when the sweep loop doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("retention sweeper shutdown timed out")

const (
	// DefaultInterval is how often the sweep runs.
	DefaultInterval = 30 * time.Second
)

// Config holds sweeper configuration.
type Config struct {
	// Root is the downloads directory holding one subdirectory per user.
	Root     string
	Interval time.Duration
	// MaxAge is the retention threshold. Defaults to Interval.
	MaxAge time.Duration
	Clock  func() time.Time
	// OnSweep, if set, runs after every scheduled sweep.
	OnSweep func(ctx context.Context, now time.Time)
}

// Stats summarises one sweep.
type Stats struct {
	Scanned int
	Removed int
	Failed  int
}

// Observer receives per-sweep statistics.
type Observer interface {
	ObserveSweep(stats Stats, duration time.Duration)
}

// Sweeper periodically deletes regular files older than MaxAge from every
// user directory under Root. Directories are never removed.
type Sweeper struct {
	root     string
	interval time.Duration
	maxAge   time.Duration
	clock    func() time.Time
	onSweep  func(ctx context.Context, now time.Time)
	observer Observer
	logger   *slog.Logger
	remove   func(name string) error

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	startMu sync.Mutex
	started bool
}

// New creates a sweeper.
func New(cfg Config, observer Observer, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = cfg.Interval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		root:     cfg.Root,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		clock:    cfg.Clock,
		onSweep:  cfg.OnSweep,
		observer: observer,
		logger:   logger,
		remove:   os.Remove,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sweep loop. Calling Start more than once has no effect.
func (s *Sweeper) Start() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.logger.Info("starting retention sweeper",
		"root", s.root,
		"interval", s.interval,
		"max_age", s.maxAge,
	)

	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop(timeout time.Duration) error {
	s.logger.Info("stopping retention sweeper")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("retention sweeper stopped")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now := s.clock()
			s.Sweep(now)
			if s.onSweep != nil {
				s.onSweep(s.ctx, now)
			}
		}
	}
}

// Sweep removes every regular file under Root/<user>/ whose modification time
// is more than MaxAge before now. It is idempotent, and per-file errors are
// logged and counted without stopping the sweep.
func (s *Sweeper) Sweep(now time.Time) Stats {
	start := time.Now()
	var stats Stats

	userDirs, err := os.ReadDir(s.root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("failed to list downloads root", "root", s.root, "error", err)
		}
		return stats
	}

	for _, userDir := range userDirs {
		if !userDir.IsDir() {
			continue
		}
		s.sweepDir(filepath.Join(s.root, userDir.Name()), now, &stats)
	}

	if stats.Removed > 0 || stats.Failed > 0 {
		s.logger.Info("retention sweep finished",
			"scanned", stats.Scanned,
			"removed", stats.Removed,
			"failed", stats.Failed,
		)
	}
	if s.observer != nil {
		s.observer.ObserveSweep(stats, time.Since(start))
	}

	return stats
}

func (s *Sweeper) sweepDir(dir string, now time.Time, stats *Stats) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		// The directory itself can vanish between listings.
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to list user directory", "dir", dir, "error", err)
		}
		return
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		stats.Scanned++

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("failed to stat file", "path", path, "error", err)
				stats.Failed++
			}
			continue
		}

		if now.Sub(info.ModTime()) <= s.maxAge {
			continue
		}

		if err := s.remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				s.logger.Debug("file already removed", "path", path)
				continue
			}
			s.logger.Warn("failed to remove expired file", "path", path, "error", err)
			stats.Failed++
			continue
		}
		stats.Removed++
	}
}
