package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"cardbored-api/internal/classify"
	"cardbored-api/internal/decklist"
	"cardbored-api/internal/lookup"
	"cardbored-api/internal/metrics"
	"cardbored-api/internal/model"
	"cardbored-api/pkg/uid"
)

// Pile titles used for the exported lists.
const (
	KeepListTitle  = "Cards to Keep"
	ProxyListTitle = "Cards to Proxy"
)

var (
	// ErrNegativeThreshold is returned for a threshold below zero.
	ErrNegativeThreshold = errors.New("threshold must not be negative")
	// ErrLiveDisabled is returned when a card detail is requested without a resolver.
	ErrLiveDisabled = errors.New("live lookups are disabled")
	// ErrNegativeQuantity is returned for a card with a quantity below zero.
	ErrNegativeQuantity = errors.New("quantity must not be negative")
)

// PriceIndex is the bulk index as seen by the deck service.
type PriceIndex interface {
	EnsureFresh(ctx context.Context) (*model.Snapshot, error)
}

// DeckConfig holds deck service settings.
type DeckConfig struct {
	DefaultThreshold decimal.Decimal
	// LiveFallback resolves bulk index misses through the live resolver.
	LiveFallback bool
}

// DeckService parses, prices and classifies decklists.
type DeckService struct {
	index    PriceIndex
	resolver *lookup.Resolver
	config   DeckConfig
	now      func() time.Time
}

// NewDeckService creates a deck service. resolver may be nil to disable live lookups.
func NewDeckService(index PriceIndex, resolver *lookup.Resolver, config DeckConfig) *DeckService {
	if config.DefaultThreshold.IsZero() {
		config.DefaultThreshold = classify.DefaultThreshold
	}
	return &DeckService{
		index:    index,
		resolver: resolver,
		config:   config,
		now:      time.Now,
	}
}

// DefaultThreshold returns the threshold used when a request has none.
func (s *DeckService) DefaultThreshold() decimal.Decimal {
	return s.config.DefaultThreshold
}

// ProcessRequest is one decklist processing request.
type ProcessRequest struct {
	DeckText  string
	Threshold *decimal.Decimal
	// Live bypasses the bulk index and resolves every card live.
	Live bool
}

// DeckResult is the processed decklist.
type DeckResult struct {
	Cards        []model.ResolvedCard `json:"cards"`
	DoNotProxy   []model.ResolvedCard `json:"doNotProxy"`
	Proxy        []model.ResolvedCard `json:"proxy"`
	Threshold    string               `json:"threshold"`
	TotalCost    string               `json:"totalCost"`
	KeepCost     string               `json:"keepCost"`
	ProxyCost    string               `json:"proxyCost"`
	KeepList     string               `json:"keepList"`
	ProxyList    string               `json:"proxyList"`
	SkippedLines int                  `json:"skippedLines"`
	// CacheAge is the snapshot age in hours, nil when no snapshot was used.
	CacheAge    *float64  `json:"cacheAge"`
	LiveLookups int       `json:"liveLookups"`
	Timestamp   time.Time `json:"timestamp"`
}

// Process resolves every decklist line and splits the result by threshold.
// It fails only for a negative threshold or when the bulk index has no data
// (priceindex.ErrDataUnavailable); per-card failures degrade that card.
func (s *DeckService) Process(ctx context.Context, req ProcessRequest) (*DeckResult, error) {
	threshold, err := s.threshold(req.Threshold)
	if err != nil {
		return nil, err
	}

	parsed := s.Parse(req.DeckText)
	priced, err := s.priceCards(ctx, parsed.Cards, req.Live)
	if err != nil {
		return nil, err
	}

	result := s.build(priced.cards, threshold)
	result.SkippedLines = parsed.Skipped
	result.CacheAge = priced.cacheAge
	result.LiveLookups = priced.liveLookups

	log.Printf("[DeckService] Processed %d cards (%d skipped, %d live): keep=%d proxy=%d total=%s",
		len(priced.cards), parsed.Skipped, result.LiveLookups, len(result.DoNotProxy), len(result.Proxy), result.TotalCost)
	return result, nil
}

// Parse parses deckText without pricing it.
func (s *DeckService) Parse(deckText string) decklist.Result {
	parsed := decklist.ParseWithStats(deckText)
	if parsed.Skipped > 0 {
		metrics.SkippedLines.Add(float64(parsed.Skipped))
	}
	if parsed.Cards == nil {
		parsed.Cards = []model.CardRequest{}
	}
	return parsed
}

// PriceRequest prices cards the caller has already parsed.
type PriceRequest struct {
	Cards []model.CardRequest
	Live  bool
}

// PriceResult is a list of priced cards without a threshold split.
type PriceResult struct {
	Cards       []model.ResolvedCard `json:"cards"`
	TotalCost   string               `json:"totalCost"`
	CacheAge    *float64             `json:"cacheAge"`
	LiveLookups int                  `json:"liveLookups"`
	Timestamp   time.Time            `json:"timestamp"`
}

// Price resolves each card through the bulk index and the live fallback.
func (s *DeckService) Price(ctx context.Context, req PriceRequest) (*PriceResult, error) {
	if err := validateQuantities(len(req.Cards), func(i int) int { return req.Cards[i].Quantity }); err != nil {
		return nil, err
	}
	priced, err := s.priceCards(ctx, req.Cards, req.Live)
	if err != nil {
		return nil, err
	}
	return &PriceResult{
		Cards:       priced.cards,
		TotalCost:   classify.FormatCost(classify.Total(priced.cards)),
		CacheAge:    priced.cacheAge,
		LiveLookups: priced.liveLookups,
		Timestamp:   s.now().UTC(),
	}, nil
}

type pricedCards struct {
	cards       []model.ResolvedCard
	cacheAge    *float64
	liveLookups int
}

// priceCards resolves requests in order. An empty list never touches the index.
func (s *DeckService) priceCards(ctx context.Context, requests []model.CardRequest, live bool) (pricedCards, error) {
	out := pricedCards{cards: make([]model.ResolvedCard, 0, len(requests))}
	if len(requests) == 0 {
		return out, nil
	}

	var snap *model.Snapshot
	if !live {
		var err error
		snap, err = s.index.EnsureFresh(ctx)
		if err != nil {
			return out, fmt.Errorf("load price index: %w", err)
		}
	}

	var batch *lookup.Batch
	if s.resolver != nil && (live || s.config.LiveFallback) {
		batch = s.resolver.NewBatch()
	}

	for _, cr := range requests {
		card := s.resolve(ctx, snap, batch, cr)
		metrics.CardLookups.WithLabelValues(string(card.Source), string(card.Status)).Inc()
		out.cards = append(out.cards, card)
	}

	if snap != nil {
		age := snap.Age(s.now()).Hours()
		out.cacheAge = &age
	}
	if batch != nil {
		out.liveLookups = batch.Attempted()
	}
	return out, nil
}

// Reclassify repartitions already-resolved cards. It never performs lookups.
func (s *DeckService) Reclassify(cards []model.ResolvedCard, threshold *decimal.Decimal) (*DeckResult, error) {
	t, err := s.threshold(threshold)
	if err != nil {
		return nil, err
	}
	if err := validateQuantities(len(cards), func(i int) int { return cards[i].Quantity }); err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []model.ResolvedCard{}
	}
	return s.build(cards, t), nil
}

// CardDetail returns the card database's native record for name.
func (s *DeckService) CardDetail(ctx context.Context, name string) (json.RawMessage, error) {
	if s.resolver == nil {
		return nil, ErrLiveDisabled
	}
	return s.resolver.Detail(ctx, name)
}

func (s *DeckService) resolve(ctx context.Context, snap *model.Snapshot, batch *lookup.Batch, cr model.CardRequest) model.ResolvedCard {
	id := uid.New()
	if snap != nil {
		if rec, ok := snap.Records[decklist.Normalize(cr.Name)]; ok {
			return model.Resolve(id, cr, rec, model.SourceIndex)
		}
	}
	if batch != nil {
		return batch.Resolve(ctx, id, cr)
	}
	if snap == nil {
		return model.Unresolved(id, cr, model.SourceNone, model.StatusNotProcessed)
	}
	return model.Unresolved(id, cr, model.SourceIndex, model.StatusNotFound)
}

// QuantityError reports the first card with a negative quantity.
type QuantityError struct {
	Index    int
	Quantity int
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("cards[%d]: quantity %d must not be negative", e.Index, e.Quantity)
}

func (e *QuantityError) Unwrap() error { return ErrNegativeQuantity }

func validateQuantities(n int, quantity func(int) int) error {
	for i := 0; i < n; i++ {
		if q := quantity(i); q < 0 {
			return &QuantityError{Index: i, Quantity: q}
		}
	}
	return nil
}

func (s *DeckService) threshold(t *decimal.Decimal) (decimal.Decimal, error) {
	if t == nil {
		return s.config.DefaultThreshold, nil
	}
	if t.IsNegative() {
		return decimal.Decimal{}, ErrNegativeThreshold
	}
	return *t, nil
}

func (s *DeckService) build(cards []model.ResolvedCard, threshold decimal.Decimal) *DeckResult {
	split := classify.Classify(cards, threshold)
	return &DeckResult{
		Cards:      cards,
		DoNotProxy: split.Keep,
		Proxy:      split.Proxy,
		Threshold:  classify.FormatCost(threshold),
		TotalCost:  classify.FormatCost(split.TotalCost),
		KeepCost:   classify.FormatCost(split.KeepCost),
		ProxyCost:  classify.FormatCost(split.ProxyCost),
		KeepList:   decklist.Export(split.Keep, KeepListTitle),
		ProxyList:  decklist.Export(split.Proxy, ProxyListTitle),
		Timestamp:  s.now().UTC(),
	}
}
