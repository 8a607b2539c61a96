// Package priceindex keeps a process-wide, name-keyed snapshot of card prices
// built from the provider's bulk dataset.
package priceindex

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"cardbored-api/internal/decklist"
	"cardbored-api/internal/metrics"
	"cardbored-api/internal/model"
	"cardbored-api/internal/scryfall"
)

// ErrDataUnavailable is returned when there is no snapshot and none could be built.
var ErrDataUnavailable = errors.New("price data unavailable")

// Source provides the bulk dataset.
type Source interface {
	BulkData(ctx context.Context, bulkType string) (*scryfall.BulkData, error)
	StreamCards(ctx context.Context, downloadURI string, fn func(*scryfall.Card) error) error
}

// Store persists snapshots across restarts.
type Store interface {
	Load(ctx context.Context) (*model.Snapshot, error)
	Save(ctx context.Context, snap *model.Snapshot) error
}

// Config holds index settings.
type Config struct {
	BulkType        string
	StaleAfter      time.Duration
	RetryBackoff    time.Duration
	RefreshTimeout  time.Duration
	StoreTimeout    time.Duration
	DropNonPositive bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BulkType:       "default_cards",
		StaleAfter:     24 * time.Hour,
		RetryBackoff:   5 * time.Minute,
		RefreshTimeout: 5 * time.Minute,
		StoreTimeout:   time.Minute,
	}
}

// Status describes the index for health and admin endpoints.
type Status struct {
	Ready           bool       `json:"ready"`
	Records         int        `json:"records"`
	FetchedAt       *time.Time `json:"fetchedAt,omitempty"`
	AgeSeconds      float64    `json:"ageSeconds"`
	Stale           bool       `json:"stale"`
	SourceUpdatedAt string     `json:"sourceUpdatedAt,omitempty"`
	Refreshing      bool       `json:"refreshing"`
	LastAttempt     *time.Time `json:"lastAttempt,omitempty"`
	LastSuccess     *time.Time `json:"lastSuccess,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
	LastBuild       BuildStats `json:"lastBuild"`
}

// Index is the bulk price index. The current snapshot is swapped atomically;
// readers never wait on a refresh once a snapshot exists.
type Index struct {
	source Source
	store  Store
	cfg    Config
	now    func() time.Time

	current atomic.Pointer[model.Snapshot]
	group   singleflight.Group
	bgBusy  atomic.Bool
	bg      sync.WaitGroup

	mu          sync.Mutex
	lastAttempt time.Time
	lastSuccess time.Time
	lastErr     error
	lastBuild   BuildStats
}

// New creates an index. store may be nil.
func New(source Source, store Store, cfg Config) *Index {
	def := DefaultConfig()
	if cfg.BulkType == "" {
		cfg.BulkType = def.BulkType
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = def.RefreshTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	return &Index{
		source: source,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (i *Index) SetClock(now func() time.Time) {
	i.now = now
}

// Get returns the record for a normalized key. It never triggers a refresh.
func (i *Index) Get(key string) (model.PriceRecord, bool) {
	snap := i.current.Load()
	if snap == nil {
		return model.PriceRecord{}, false
	}
	rec, ok := snap.Records[key]
	return rec, ok
}

// Lookup normalizes name and calls Get.
func (i *Index) Lookup(name string) (model.PriceRecord, bool) {
	return i.Get(decklist.Normalize(name))
}

// Snapshot returns the current snapshot or nil.
func (i *Index) Snapshot() *model.Snapshot {
	return i.current.Load()
}

// Warm loads a persisted snapshot if no snapshot is held yet.
func (i *Index) Warm(ctx context.Context) error {
	if i.store == nil {
		return nil
	}
	snap, err := i.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted snapshot: %w", err)
	}
	if snap == nil || snap.Len() == 0 {
		log.Printf("[PriceIndex] No persisted snapshot found")
		return nil
	}
	if i.current.CompareAndSwap(nil, snap) {
		i.publish(snap)
		log.Printf("[PriceIndex] Warmed from store: %d cards, fetched %s (age %s)",
			snap.Len(), snap.FetchedAt.Format(time.RFC3339), snap.Age(i.now()).Round(time.Second))
	}
	return nil
}

// EnsureFresh returns a usable snapshot.
//
// With no snapshot it refreshes synchronously and returns ErrDataUnavailable
// on failure. With a stale snapshot it starts a background refresh and returns
// the stale snapshot immediately.
func (i *Index) EnsureFresh(ctx context.Context) (*model.Snapshot, error) {
	now := i.now()
	snap := i.current.Load()

	if snap == nil {
		if err := i.backoffErr(now); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
		}
		fresh, err := i.refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
		}
		return fresh, nil
	}

	if snap.Age(now) > i.cfg.StaleAfter && i.backoffErr(now) == nil {
		i.refreshInBackground()
	}
	return snap, nil
}

// Refresh forces a refresh, joining one already in flight.
func (i *Index) Refresh(ctx context.Context) (*model.Snapshot, error) {
	return i.refresh(ctx)
}

// Wait blocks until background refreshes started by EnsureFresh finish.
func (i *Index) Wait() {
	i.bg.Wait()
}

// Status reports the index state.
func (i *Index) Status() Status {
	now := i.now()
	st := Status{Refreshing: i.bgBusy.Load()}

	if snap := i.current.Load(); snap != nil {
		fetched := snap.FetchedAt
		st.Ready = true
		st.Records = snap.Len()
		st.FetchedAt = &fetched
		st.AgeSeconds = snap.Age(now).Seconds()
		st.Stale = snap.Age(now) > i.cfg.StaleAfter
		st.SourceUpdatedAt = snap.SourceUpdatedAt
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.lastAttempt.IsZero() {
		t := i.lastAttempt
		st.LastAttempt = &t
	}
	if !i.lastSuccess.IsZero() {
		t := i.lastSuccess
		st.LastSuccess = &t
	}
	if i.lastErr != nil {
		st.LastError = i.lastErr.Error()
	}
	st.LastBuild = i.lastBuild
	return st
}

// backoffErr returns the last refresh error while still inside the retry backoff.
func (i *Index) backoffErr(now time.Time) error {
	if i.cfg.RetryBackoff <= 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.lastErr != nil && now.Sub(i.lastAttempt) < i.cfg.RetryBackoff {
		return i.lastErr
	}
	return nil
}

func (i *Index) refreshInBackground() {
	if !i.bgBusy.CompareAndSwap(false, true) {
		return
	}
	i.bg.Add(1)
	go func() {
		defer i.bg.Done()
		defer i.bgBusy.Store(false)
		if _, err := i.refresh(context.Background()); err != nil {
			log.Printf("[PriceIndex] Background refresh failed, serving stale snapshot: %v", err)
		}
	}()
}

// refresh runs at most one build at a time; concurrent callers share its result.
// The build itself is detached from ctx so one caller leaving does not cancel it.
func (i *Index) refresh(ctx context.Context) (*model.Snapshot, error) {
	ch := i.group.DoChan("refresh", func() (interface{}, error) {
		return i.build()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (i *Index) build() (*model.Snapshot, error) {
	start := i.now()
	i.mu.Lock()
	i.lastAttempt = start
	i.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), i.cfg.RefreshTimeout)
	defer cancel()

	snap, stats, err := i.fetch(ctx)
	if err != nil {
		i.mu.Lock()
		i.lastErr = err
		i.mu.Unlock()
		metrics.IndexRefreshes.WithLabelValues("failure").Inc()
		if prev := i.current.Load(); prev != nil {
			log.Printf("[PriceIndex] Refresh failed, keeping snapshot from %s: %v",
				prev.FetchedAt.Format(time.RFC3339), err)
		} else {
			log.Printf("[PriceIndex] Refresh failed with no snapshot available: %v", err)
		}
		return nil, err
	}

	i.current.Store(snap)
	i.publish(snap)

	i.mu.Lock()
	i.lastSuccess = snap.FetchedAt
	i.lastErr = nil
	i.lastBuild = stats
	i.mu.Unlock()

	elapsed := i.now().Sub(start)
	metrics.IndexRefreshes.WithLabelValues("success").Inc()
	metrics.IndexRefreshDuration.Observe(elapsed.Seconds())
	log.Printf("[PriceIndex] Refreshed: %d cards from %d entries (%d without price, %d duplicate printings) in %s",
		stats.Kept, stats.Seen, stats.NoPrice, stats.Duplicates, elapsed.Round(time.Millisecond))

	i.persist(snap)
	return snap, nil
}

func (i *Index) fetch(ctx context.Context) (*model.Snapshot, BuildStats, error) {
	meta, err := i.source.BulkData(ctx, i.cfg.BulkType)
	if err != nil {
		return nil, BuildStats{}, err
	}

	b := NewBuilder(i.cfg.DropNonPositive)
	err = i.source.StreamCards(ctx, meta.DownloadURI, func(card *scryfall.Card) error {
		b.Add(card)
		return nil
	})
	if err != nil {
		return nil, b.Stats(), err
	}

	stats := b.Stats()
	if stats.Kept == 0 {
		return nil, stats, fmt.Errorf("bulk dataset %q had no priced cards (%d entries)", i.cfg.BulkType, stats.Seen)
	}
	return b.Snapshot(i.now(), meta.UpdatedAt), stats, nil
}

func (i *Index) persist(snap *model.Snapshot) {
	if i.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), i.cfg.StoreTimeout)
	defer cancel()
	if err := i.store.Save(ctx, snap); err != nil {
		log.Printf("[PriceIndex] Failed to persist snapshot: %v", err)
	}
}

func (i *Index) publish(snap *model.Snapshot) {
	metrics.IndexRecords.Set(float64(snap.Len()))
	metrics.IndexFetchedAt.Set(float64(snap.FetchedAt.Unix()))
}
