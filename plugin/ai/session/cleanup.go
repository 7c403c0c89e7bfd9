package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCleanupInterval is the default interval between autocomplete cache sweeps.
const DefaultCleanupInterval = time.Minute

// Cleaner drops expired entries and reports how many were removed.
type Cleaner interface {
	CleanupCache() int
}

var _ Cleaner = (*Store)(nil)

// CleanupJob periodically sweeps expired autocomplete results out of a store's cache.
// Expired entries are never served, but they hold memory until swept or evicted.
type CleanupJob struct {
	target   Cleaner
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewCleanupJob creates a cleanup job. A non-positive interval uses DefaultCleanupInterval.
func NewCleanupJob(target Cleaner, interval time.Duration, logger *slog.Logger) *CleanupJob {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		target:   target,
		interval: interval,
		logger:   logger,
	}
}

// Start begins sweeping in a goroutine until ctx is done or Stop is called.
func (j *CleanupJob) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}
	j.running = true
	j.stopChan = make(chan struct{})
	j.done = make(chan struct{})

	go j.run(ctx, j.stopChan, j.done)
	j.logger.Debug("cache cleanup job started", slog.Duration("interval", j.interval))
}

// Stop stops the job and waits for the sweeping goroutine to exit.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	close(j.stopChan)
	done := j.done
	j.running = false
	j.mu.Unlock()

	<-done
	j.logger.Debug("cache cleanup job stopped")
}

// RunOnce sweeps immediately.
func (j *CleanupJob) RunOnce() int {
	removed := j.target.CleanupCache()
	if removed > 0 {
		j.logger.Debug("expired autocomplete entries removed", slog.Int("count", removed))
	}
	return removed
}

// IsRunning reports whether the job is running.
func (j *CleanupJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *CleanupJob) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}
