package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cardbored-api/internal/cache"
	"cardbored-api/internal/config"
	"cardbored-api/internal/handler"
	"cardbored-api/internal/lookup"
	"cardbored-api/internal/middleware"
	"cardbored-api/internal/priceindex"
	"cardbored-api/internal/repository"
	"cardbored-api/internal/router"
	"cardbored-api/internal/scryfall"
	"cardbored-api/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Cardbored API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize caches (Redis falls back to memory when unreachable).
	// Live lookups get their own namespace so purging them never touches
	// a snapshot kept in the same cache.
	var appCache, lookupCache cache.Cache
	cacheType := cfg.Cache.Type
	if cacheType == "redis" {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
		if err != nil {
			log.Printf("Warning: Redis connection failed, using memory cache: %v", err)
			cacheType = "memory"
		} else {
			appCache = redisCache
			lookupCache = redisCache.WithPrefix("live")
		}
	}
	if appCache == nil {
		appCache = cache.NewMemoryCache(time.Minute)
		lookupCache = cache.NewMemoryCache(time.Minute)
		log.Println("Memory cache initialized")
	}
	defer appCache.Close()
	defer lookupCache.Close()

	// Initialize snapshot store
	store, err := openSnapshotStore(cfg, appCache)
	if err != nil {
		log.Fatalf("Failed to initialize %s snapshot store: %v", cfg.Store.Type, err)
	}
	if store != nil {
		defer store.Close()
	}

	// Card database client and price index
	client := scryfall.NewClient(scryfall.Config{
		BaseURL:     cfg.Scryfall.BaseURL,
		UserAgent:   cfg.Scryfall.UserAgent,
		Timeout:     cfg.Scryfall.Timeout,
		BulkTimeout: cfg.Scryfall.BulkTimeout,
	})

	var indexStore priceindex.Store
	if store != nil {
		indexStore = store
	}
	index := priceindex.New(client, indexStore, priceindex.Config{
		BulkType:        cfg.Scryfall.BulkType,
		StaleAfter:      cfg.Index.StaleAfter,
		RetryBackoff:    cfg.Index.RetryBackoff,
		RefreshTimeout:  cfg.Index.RefreshTimeout,
		DropNonPositive: cfg.Index.DropNonPositive,
	})

	if cfg.Index.WarmOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := index.Warm(ctx); err != nil {
			log.Printf("Warning: failed to warm price index: %v", err)
		}
		cancel()
	}

	// Initialize services
	resolver := lookup.NewResolver(client, lookupCache, lookup.Config{
		Delay:    cfg.Live.Delay,
		MaxCards: cfg.Live.MaxCards,
		CacheTTL: cfg.Live.CacheTTL,
	})
	deckService := service.NewDeckService(index, resolver, service.DeckConfig{
		DefaultThreshold: cfg.Deck.DefaultThreshold,
		LiveFallback:     cfg.Live.Enabled,
	})

	scheduler := service.NewRefreshScheduler(index, service.RefreshConfig{
		Interval: cfg.Index.RefreshInterval,
		Timeout:  cfg.Index.RefreshTimeout,
	})
	if cfg.Index.RefreshInterval > 0 {
		scheduler.Start()
	}

	// Initialize handlers
	healthHandler := handler.New(index, cfg.App.Name, cfg.App.Version)
	deckHandler := handler.NewDeckHandler(deckService, cfg.Deck.MaxBodyBytes)
	adminHandler := handler.NewAdminHandler(index, scheduler, resolver, cfg.Store.Type, cacheType)

	if cfg.App.AdminKey == "" && !cfg.App.IsDevelopment() {
		log.Println("Warning: ADMIN_KEY is not set, admin endpoints are unauthenticated")
	}

	// Create router
	r := router.New(router.Config{
		Handler:         healthHandler,
		DeckHandler:     deckHandler,
		AdminHandler:    adminHandler,
		AdminMiddleware: middleware.NewAdminKeyMiddleware(cfg.App.AdminKey),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	scheduler.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}

// openSnapshotStore returns the configured store, or nil for "none".
func openSnapshotStore(cfg *config.Config, c cache.Cache) (repository.SnapshotStore, error) {
	switch cfg.Store.Type {
	case "none":
		log.Println("Snapshot persistence disabled")
		return nil, nil
	case "kv":
		log.Println("Cache-backed snapshot store initialized")
		return repository.NewKVSnapshotStore(c, cfg.Store.KVTTL), nil
	case "file":
		log.Printf("File snapshot store initialized: %s", cfg.Store.FilePath)
		return repository.NewFileSnapshotStore(cfg.Store.FilePath), nil
	case "postgres":
		return repository.NewPostgresSnapshotStore(cfg.Store.PostgresDSN())
	case "mysql":
		return repository.NewMySQLSnapshotStore(cfg.Store.MySQLDSN())
	case "mongodb":
		return repository.NewMongoSnapshotStore(cfg.Store.MongoURI, cfg.Store.MongoDatabase)
	default: // sqlite
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			return nil, err
		}
		return repository.NewSQLiteSnapshotStore(cfg.Store.Path)
	}
}
