package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"cardbored-api/internal/cache"
	"cardbored-api/internal/model"
)

// Cache keys holding the snapshot.
const (
	KVDataKey      = "bulk-price-data"
	KVTimestampKey = "bulk-price-data-timestamp"
)

// KVSnapshotStore keeps the snapshot as two cache entries: the record map as
// JSON and the fetch time in epoch milliseconds.
type KVSnapshotStore struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewKVSnapshotStore wraps c. A zero ttl keeps the entries until overwritten.
func NewKVSnapshotStore(c cache.Cache, ttl time.Duration) *KVSnapshotStore {
	return &KVSnapshotStore{cache: c, ttl: ttl}
}

type kvPayload struct {
	SourceUpdatedAt string                       `json:"sourceUpdatedAt,omitempty"`
	Records         map[string]model.PriceRecord `json:"records"`
}

// Save drops the timestamp, writes the data entry, then writes the new
// timestamp. Load treats a missing timestamp as no snapshot, so a save that
// stops halfway never pairs new data with an old timestamp.
func (s *KVSnapshotStore) Save(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	data, err := json.Marshal(kvPayload{SourceUpdatedAt: snap.SourceUpdatedAt, Records: snap.Records})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.cache.Delete(ctx, KVTimestampKey); err != nil {
		return fmt.Errorf("failed to clear %s: %w", KVTimestampKey, err)
	}
	if err := s.cache.Set(ctx, KVDataKey, data, s.ttl); err != nil {
		return fmt.Errorf("failed to store %s: %w", KVDataKey, err)
	}
	ts := strconv.FormatInt(snap.FetchedAtMillis(), 10)
	if err := s.cache.Set(ctx, KVTimestampKey, []byte(ts), s.ttl); err != nil {
		return fmt.Errorf("failed to store %s: %w", KVTimestampKey, err)
	}
	log.Printf("[SnapshotStore] Saved %d records to cache (%d bytes)", len(snap.Records), len(data))
	return nil
}

// Load returns nil, nil when either entry is missing.
func (s *KVSnapshotStore) Load(ctx context.Context) (*model.Snapshot, error) {
	ts, err := s.cache.Get(ctx, KVTimestampKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KVTimestampKey, err)
	}
	millis, err := strconv.ParseInt(string(ts), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", KVTimestampKey, ts, err)
	}

	data, err := s.cache.Get(ctx, KVDataKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KVDataKey, err)
	}

	var payload kvPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if payload.Records == nil {
		payload.Records = map[string]model.PriceRecord{}
	}
	return &model.Snapshot{
		Records:         payload.Records,
		FetchedAt:       time.UnixMilli(millis),
		SourceUpdatedAt: payload.SourceUpdatedAt,
	}, nil
}

// Close is a no-op; the cache is owned by the caller.
func (s *KVSnapshotStore) Close() error {
	return nil
}
