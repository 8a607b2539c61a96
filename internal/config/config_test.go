package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Index.StaleAfter != 24*time.Hour {
		t.Fatalf("stale after: %v", cfg.Index.StaleAfter)
	}
	if cfg.Deck.DefaultThreshold.StringFixed(2) != "3.00" {
		t.Fatalf("default threshold: %s", cfg.Deck.DefaultThreshold)
	}
	if cfg.Live.Delay != 100*time.Millisecond || cfg.Live.MaxCards != 15 {
		t.Fatalf("live defaults: %+v", cfg.Live)
	}
	if cfg.Scryfall.BulkType != "default_cards" {
		t.Fatalf("bulk type: %s", cfg.Scryfall.BulkType)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DECK_DEFAULT_THRESHOLD", "5.5")
	t.Setenv("SNAPSHOT_STORE_TYPE", "KV")
	t.Setenv("LIVE_MAX_CARDS", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Deck.DefaultThreshold.StringFixed(2) != "5.50" || cfg.Store.Type != "kv" || cfg.Live.MaxCards != 20 {
		t.Fatalf("overrides not applied: %+v %+v %+v", cfg.Deck, cfg.Store, cfg.Live)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string][2]string{
		"negative threshold": {"DECK_DEFAULT_THRESHOLD", "-1"},
		"unknown store":      {"SNAPSHOT_STORE_TYPE", "dynamo"},
		"unknown cache":      {"CACHE_TYPE", "memcached"},
		"mongo without uri":  {"SNAPSHOT_STORE_TYPE", "mongodb"},
		"live cap disabled":  {"LIVE_MAX_CARDS", "0"},
		"live cap negative":  {"LIVE_MAX_CARDS", "-3"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			t.Setenv("MONGODB_URI", "")
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
