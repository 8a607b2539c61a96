package service

import (
	"context"
	"log"
	"sync"
	"time"

	"cardbored-api/internal/model"
)

// Refresher is the part of the price index the scheduler drives.
type Refresher interface {
	EnsureFresh(ctx context.Context) (*model.Snapshot, error)
	Refresh(ctx context.Context) (*model.Snapshot, error)
}

// RefreshConfig holds configuration for the refresh scheduler.
type RefreshConfig struct {
	// Interval is how often the snapshot's freshness is checked.
	// Default: 1 hour
	Interval time.Duration

	// InitialDelay is the wait before the first check after Start.
	InitialDelay time.Duration

	// Timeout bounds one scheduled check.
	// Default: 5 minutes
	Timeout time.Duration
}

// DefaultRefreshConfig returns default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:     time.Hour,
		InitialDelay: 5 * time.Second,
		Timeout:      5 * time.Minute,
	}
}

// RefreshScheduler periodically keeps the price index fresh so requests
// rarely find a stale snapshot.
type RefreshScheduler struct {
	index     Refresher
	config    RefreshConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	wg        sync.WaitGroup
}

// NewRefreshScheduler creates a new refresh scheduler.
func NewRefreshScheduler(index Refresher, config RefreshConfig) *RefreshScheduler {
	def := DefaultRefreshConfig()
	if config.Interval == 0 {
		config.Interval = def.Interval
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}

	return &RefreshScheduler{
		index:  index,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// Start begins the refresh scheduler.
func (s *RefreshScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	log.Printf("[RefreshScheduler] Started - Interval: %v", s.config.Interval)

	s.wg.Add(1)
	go s.run()
}

// run is the main refresh loop.
func (s *RefreshScheduler) run() {
	defer s.wg.Done()

	if s.config.InitialDelay >= 0 {
		select {
		case <-time.After(s.config.InitialDelay):
			s.check()
		case <-s.stopCh:
			log.Printf("[RefreshScheduler] Stopped")
			return
		}
	}

	for {
		select {
		case <-s.ticker.C:
			s.check()
		case <-s.stopCh:
			log.Printf("[RefreshScheduler] Stopped")
			return
		}
	}
}

// check runs EnsureFresh, which refreshes only a missing or stale snapshot.
func (s *RefreshScheduler) check() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	snap, err := s.index.EnsureFresh(ctx)
	if err != nil {
		log.Printf("[RefreshScheduler] Index check failed: %v", err)
		return
	}
	log.Printf("[RefreshScheduler] Index holds %d records fetched at %s",
		snap.Len(), snap.FetchedAt.Format(time.RFC3339))
}

// Stop stops the refresh scheduler and waits for a running check to return.
func (s *RefreshScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
		s.mu.Unlock()
	})
	s.wg.Wait()
}

// RunNow forces an immediate refresh regardless of staleness.
func (s *RefreshScheduler) RunNow(ctx context.Context) (*model.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	return s.index.Refresh(ctx)
}
