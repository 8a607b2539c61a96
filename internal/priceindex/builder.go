package priceindex

import (
	"time"

	"cardbored-api/internal/decklist"
	"cardbored-api/internal/model"
	"cardbored-api/internal/scryfall"
)

// BuildStats summarises one snapshot build.
type BuildStats struct {
	Seen       int `json:"seen"`
	Kept       int `json:"kept"`
	NoPrice    int `json:"noPrice"`
	Duplicates int `json:"duplicates"`
}

// Builder accumulates bulk cards into a new snapshot.
// The first priced printing seen for a name wins; later printings are ignored.
type Builder struct {
	dropNonPositive bool
	records         map[string]model.PriceRecord
	stats           BuildStats
}

// NewBuilder creates a builder. With dropNonPositive set, prices <= 0 are
// discarded as well (the bundled lookup file does this).
func NewBuilder(dropNonPositive bool) *Builder {
	return &Builder{
		dropNonPositive: dropNonPositive,
		records:         make(map[string]model.PriceRecord, 1<<15),
	}
}

// Add indexes one card if it has a name and a usable USD price.
func (b *Builder) Add(card *scryfall.Card) {
	b.stats.Seen++
	if card.Name == "" || card.Prices == nil {
		b.stats.NoPrice++
		return
	}

	price, err := model.ParsePrice(card.USDPrice())
	if err != nil || !price.Known() {
		b.stats.NoPrice++
		return
	}
	if b.dropNonPositive && !price.Decimal.IsPositive() {
		b.stats.NoPrice++
		return
	}

	key := decklist.Normalize(card.Name)
	if _, exists := b.records[key]; exists {
		b.stats.Duplicates++
		return
	}

	b.records[key] = RecordFromCard(card, price)
	b.stats.Kept++
}

// Stats returns counters for the cards added so far.
func (b *Builder) Stats() BuildStats {
	return b.stats
}

// Snapshot returns the built snapshot. The builder must not be used afterwards.
func (b *Builder) Snapshot(fetchedAt time.Time, sourceUpdatedAt string) *model.Snapshot {
	snap := &model.Snapshot{
		Records:         b.records,
		FetchedAt:       fetchedAt,
		SourceUpdatedAt: sourceUpdatedAt,
	}
	b.records = nil
	return snap
}

// RecordFromCard converts a provider card into a price record.
func RecordFromCard(card *scryfall.Card, price model.Price) model.PriceRecord {
	setName := card.SetName
	if setName == "" {
		setName = "Unknown"
	}
	typeLine := card.DisplayTypeLine()
	if typeLine == "" {
		typeLine = model.UnknownType
	}
	return model.PriceRecord{
		Name:     card.Name,
		Price:    price,
		ImageURL: card.SmallImage(),
		SetName:  setName,
		ManaCost: card.DisplayManaCost(),
		TypeLine: typeLine,
	}
}
