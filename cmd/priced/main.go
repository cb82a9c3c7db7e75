package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rawblock/dali-resolver/internal/api"
	"github.com/rawblock/dali-resolver/internal/bar"
	"github.com/rawblock/dali-resolver/internal/cache"
	"github.com/rawblock/dali-resolver/internal/exchange"
	"github.com/rawblock/dali-resolver/internal/fiat"
	"github.com/rawblock/dali-resolver/internal/pairconverter"
)

func main() {
	log.Println("starting priced (historical pair-price resolver)...")

	var store cache.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pg, err := cache.NewPostgresCache(context.Background(), dbURL)
		if err != nil {
			log.Fatalf("FATAL: failed to connect to Postgres cache: %v", err)
		}
		store = pg
		log.Println("using Postgres-backed historical price cache")
	} else {
		baseDir := getEnvOrDefault("PRICED_CACHE_DIR", "./priced-cache")
		fileStore, err := cache.NewFileStore(baseDir)
		if err != nil {
			log.Fatalf("FATAL: failed to open file cache at %s: %v", baseDir, err)
		}
		store = fileStore
		log.Printf("using file-backed historical price cache at %s\n", baseDir)
	}

	fiatBarCache := cache.NewBarCache(store, "fiat")
	fiatConverter := fiat.NewConverter(
		os.Getenv("FIAT_API_KEY"),
		getEnvOrDefault("FIAT_API_BASE_URL", "https://api.exchangeratesapi.io"),
		http.DefaultClient,
		fiatBarCache,
	)

	cfg := pairconverter.Config{
		DefaultExchange: getEnvOrDefault("PRICED_DEFAULT_EXCHANGE", "kraken"),
	}

	// Exchange credentials and CSV bulk subsystems are owned by the caller's
	// adapter layer, not this bootstrap; it wires a converter with no live
	// exchange clients and relies on the fiat converter and cache alone
	// unless a host program extends this wiring.
	pc := pairconverter.New(cfg, map[string]*exchange.Client{}, nil, fiatConverter, store)

	hub := api.NewHub()
	go hub.Run()

	pc.SetOnBarCached(func(key bar.AssetPairAndTimestamp, b bar.HistoricalBar) {
		hub.Broadcast(barCachedEventJSON(key, b))
	})

	router := api.NewRouter(pc, hub)

	port := getEnvOrDefault("PORT", "8080")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("priced listening on :%s\n", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down, saving historical price cache...")
	if err := pc.SaveHistoricalPriceCache(); err != nil {
		log.Printf("warning: failed to save historical price cache: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: graceful shutdown failed: %v", err)
	}
}

// barCachedEventJSON encodes a cached-bar notification for the dashboard
// websocket stream. Marshal errors are swallowed into an empty event since
// a malformed broadcast should never take down the resolver.
func barCachedEventJSON(key bar.AssetPairAndTimestamp, b bar.HistoricalBar) []byte {
	payload := map[string]any{
		"type":      "bar_cached",
		"exchange":  key.Exchange,
		"from":      key.FromAsset,
		"to":        key.ToAsset,
		"timestamp": b.Timestamp,
		"close":     b.Close,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return []byte(`{"type":"bar_cached"}`)
	}
	return data
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
