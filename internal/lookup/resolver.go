// Package lookup resolves single card names against the card database in real
// time when the bulk price index cannot answer.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cardbored-api/internal/cache"
	"cardbored-api/internal/decklist"
	"cardbored-api/internal/metrics"
	"cardbored-api/internal/model"
	"cardbored-api/internal/priceindex"
	"cardbored-api/internal/scryfall"
)

// CardSource is the per-card API of the card database.
type CardSource interface {
	Named(ctx context.Context, name string) (*scryfall.Card, error)
	NamedFuzzy(ctx context.Context, name string) (*scryfall.Card, error)
	Search(ctx context.Context, query string) (*scryfall.Card, error)
}

// Config holds resolver settings.
type Config struct {
	// Delay is the minimum spacing between outbound calls.
	Delay time.Duration
	// MaxCards caps live-resolved cards per batch; the rest are not processed.
	MaxCards int
	// CacheTTL is how long found and not-found results are cached.
	CacheTTL time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Delay:    100 * time.Millisecond,
		MaxCards: 15,
		CacheTTL: 5 * time.Minute,
	}
}

// Resolver performs paced exact-then-fuzzy lookups.
// The pacing limiter is shared by every batch using this resolver.
type Resolver struct {
	source  CardSource
	cache   cache.Cache
	limiter *rate.Limiter
	cfg     Config
}

// NewResolver creates a resolver. c may be nil to disable result caching.
func NewResolver(source CardSource, c cache.Cache, cfg Config) *Resolver {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Resolver{
		source:  source,
		cache:   c,
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
	}
}

// MaxCards returns the per-batch cap.
func (r *Resolver) MaxCards() int {
	return r.cfg.MaxCards
}

type cachedResult struct {
	Status model.LookupStatus `json:"status"`
	Record model.PriceRecord  `json:"record"`
}

// Batch tracks the live-lookup budget of one request.
type Batch struct {
	r         *Resolver
	mu        sync.Mutex
	remaining int
	attempted int
}

// NewBatch starts a request-scoped batch.
func (r *Resolver) NewBatch() *Batch {
	return &Batch{r: r, remaining: r.cfg.MaxCards}
}

// Attempted returns how many cards went to the card database.
func (b *Batch) Attempted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempted
}

// Resolve looks up one card. Cached results do not count against the cap;
// once the cap is spent the card is returned as not processed.
// Failures never return an error: they degrade the card to an unknown price.
func (b *Batch) Resolve(ctx context.Context, id string, req model.CardRequest) model.ResolvedCard {
	key := decklist.Normalize(req.Name)
	if res, ok := b.r.cached(ctx, key); ok {
		if res.Status == model.StatusFound {
			return model.Resolve(id, req, res.Record, model.SourceCache)
		}
		return model.Unresolved(id, req, model.SourceCache, res.Status)
	}

	b.mu.Lock()
	if b.r.cfg.MaxCards > 0 && b.remaining <= 0 {
		b.mu.Unlock()
		return model.Unresolved(id, req, model.SourceNone, model.StatusNotProcessed)
	}
	b.remaining--
	b.attempted++
	b.mu.Unlock()

	rec, status := b.r.lookup(ctx, req.Name)
	if status == model.StatusFound || status == model.StatusNotFound {
		b.r.store(ctx, key, cachedResult{Status: status, Record: rec})
	}
	if status == model.StatusFound {
		return model.Resolve(id, req, rec, model.SourceLive)
	}
	return model.Unresolved(id, req, model.SourceLive, status)
}

// lookup tries the exact name, then a search on "not found" only.
func (r *Resolver) lookup(ctx context.Context, name string) (model.PriceRecord, model.LookupStatus) {
	card, err := r.call(ctx, "exact", func() (*scryfall.Card, error) {
		return r.source.Named(ctx, name)
	})
	if err == nil {
		return recordFrom(card), model.StatusFound
	}
	if !errors.Is(err, scryfall.ErrNotFound) {
		log.Printf("[Lookup] Exact lookup for %q failed: %v", name, err)
		return model.PriceRecord{}, failureStatus(err)
	}

	card, err = r.call(ctx, "search", func() (*scryfall.Card, error) {
		return r.source.Search(ctx, name)
	})
	if err == nil {
		return recordFrom(card), model.StatusFound
	}
	if errors.Is(err, scryfall.ErrNotFound) {
		return model.PriceRecord{}, model.StatusNotFound
	}
	log.Printf("[Lookup] Search for %q failed: %v", name, err)
	return model.PriceRecord{}, failureStatus(err)
}

// Detail returns the provider's native document for name, trying the exact
// name first and the fuzzy matcher second. It returns scryfall.ErrNotFound
// when neither matches.
func (r *Resolver) Detail(ctx context.Context, name string) (json.RawMessage, error) {
	key := "detail:" + decklist.Normalize(name)
	if r.cache != nil {
		if data, err := r.cache.Get(ctx, key); err == nil {
			return data, nil
		}
	}

	card, err := r.call(ctx, "exact", func() (*scryfall.Card, error) {
		return r.source.Named(ctx, name)
	})
	if errors.Is(err, scryfall.ErrNotFound) {
		card, err = r.call(ctx, "fuzzy", func() (*scryfall.Card, error) {
			return r.source.NamedFuzzy(ctx, name)
		})
	}
	if err != nil {
		return nil, err
	}

	if r.cache != nil && len(card.Raw) > 0 {
		if err := r.cache.Set(ctx, key, card.Raw, r.cfg.CacheTTL); err != nil {
			log.Printf("[Lookup] Failed to cache detail for %q: %v", name, err)
		}
	}
	return card.Raw, nil
}

// call waits for the pacing limiter and records the outcome.
func (r *Resolver) call(ctx context.Context, kind string, fn func() (*scryfall.Card, error)) (*scryfall.Card, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		metrics.LiveCalls.WithLabelValues(kind, "cancelled").Inc()
		return nil, err
	}
	card, err := fn()
	metrics.LiveCalls.WithLabelValues(kind, callResult(err)).Inc()
	return card, err
}

func (r *Resolver) cached(ctx context.Context, key string) (cachedResult, bool) {
	if r.cache == nil {
		return cachedResult{}, false
	}
	data, err := r.cache.Get(ctx, "card:"+key)
	if err != nil {
		return cachedResult{}, false
	}
	var res cachedResult
	if err := json.Unmarshal(data, &res); err != nil {
		log.Printf("[Lookup] Dropping unreadable cache entry for %q: %v", key, err)
		if err := r.cache.Delete(ctx, "card:"+key); err != nil {
			log.Printf("[Lookup] Failed to delete cache entry for %q: %v", key, err)
		}
		return cachedResult{}, false
	}
	return res, true
}

// Purge drops every cached lookup result. The cache must be dedicated to the
// resolver since Clear empties it entirely.
func (r *Resolver) Purge(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Clear(ctx)
}

func (r *Resolver) store(ctx context.Context, key string, res cachedResult) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, "card:"+key, data, r.cfg.CacheTTL); err != nil {
		log.Printf("[Lookup] Failed to cache %q: %v", key, err)
	}
}

func recordFrom(card *scryfall.Card) model.PriceRecord {
	price, err := model.ParsePrice(card.USDPrice())
	if err != nil {
		price = model.UnknownPrice()
	}
	return priceindex.RecordFromCard(card, price)
}

// failureStatus separates provider error statuses from transport failures.
func failureStatus(err error) model.LookupStatus {
	if scryfall.IsStatusError(err) {
		return model.StatusSearchFailed
	}
	return model.StatusError
}

func callResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, scryfall.ErrNotFound):
		return "not_found"
	case scryfall.IsStatusError(err):
		return "status"
	default:
		return "error"
	}
}
