// Command fetchcards builds the static price lookup file from the provider's
// bulk dataset. It skips the download when the dataset has not changed since
// the file was last written.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardbored-api/internal/config"
	"cardbored-api/internal/priceindex"
	"cardbored-api/internal/repository"
	"cardbored-api/internal/scryfall"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.MustLoad()

	out := flag.String("out", cfg.Store.FilePath, "lookup file to write")
	bulkType := flag.String("bulk-type", cfg.Scryfall.BulkType, "bulk dataset type")
	force := flag.Bool("force", false, "rebuild even when the dataset is unchanged")
	keepNonPositive := flag.Bool("keep-non-positive", false, "keep cards priced at or below zero")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := scryfall.NewClient(scryfall.Config{
		BaseURL:     cfg.Scryfall.BaseURL,
		UserAgent:   cfg.Scryfall.UserAgent,
		Timeout:     cfg.Scryfall.Timeout,
		BulkTimeout: cfg.Scryfall.BulkTimeout,
	})
	store := repository.NewFileSnapshotStore(*out)

	changed, err := run(ctx, client, store, *bulkType, !*keepNonPositive, *force)
	if err != nil {
		log.Printf("[FetchCards] Build failed: %v", err)
		os.Exit(1)
	}
	if !changed {
		log.Printf("[FetchCards] Card data is already up to date")
	}
}

// run writes a new lookup file when the dataset changed (or force is set) and
// reports whether it did.
func run(ctx context.Context, source priceindex.Source, store *repository.FileSnapshotStore, bulkType string, dropNonPositive, force bool) (bool, error) {
	meta, err := source.BulkData(ctx, bulkType)
	if err != nil {
		return false, err
	}
	log.Printf("[FetchCards] Bulk data %s: %.2f MB, updated %s", bulkType, float64(meta.Size)/1024/1024, meta.UpdatedAt)

	existing, err := store.ReadMetadata()
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("[FetchCards] No existing lookup file at %s", store.Path())
	case err != nil:
		log.Printf("[FetchCards] Ignoring unreadable lookup file: %v", err)
	case existing.LastUpdated == meta.UpdatedAt && !force:
		return false, nil
	default:
		log.Printf("[FetchCards] Changes detected: previous update %s", existing.LastUpdated)
	}

	start := time.Now()
	b := priceindex.NewBuilder(dropNonPositive)
	if err := source.StreamCards(ctx, meta.DownloadURI, func(card *scryfall.Card) error {
		b.Add(card)
		return nil
	}); err != nil {
		return false, err
	}

	stats := b.Stats()
	if stats.Kept == 0 {
		return false, errors.New("dataset contained no priced cards")
	}
	if err := store.Save(ctx, b.Snapshot(time.Now(), meta.UpdatedAt)); err != nil {
		return false, err
	}

	log.Printf("[FetchCards] Wrote %d cards with prices (%d entries, %d without price) in %s",
		stats.Kept, stats.Seen, stats.NoPrice, time.Since(start).Round(time.Millisecond))
	return true, nil
}
