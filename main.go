package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/panjf2000/ants/v2"

	"epg-relay/work/buffer"
	"epg-relay/work/cache"
	"epg-relay/work/config"
	"epg-relay/work/handlers"
	"epg-relay/work/logger"
	"epg-relay/work/relay"
	"epg-relay/work/resolve"
	"epg-relay/work/schedule"
	"epg-relay/work/upstream"
)

var (
	Version = "v0.1.0" // default version
)

// our main app worker
func main() {

	// load our config
	cfg := config.LoadConfig()
	logger.SetLevel(cfg.LogLevel)

	// initialize the read-buffer pool for upstream pumps
	bufferPool := buffer.NewPool(cfg.ChunkSizeKB * 1024)

	// initialize the shared pump worker pool; nonblocking so an overloaded
	// relay answers 503 instead of queueing clients behind stalled streams
	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithNonblocking(true))
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	defer workerPool.Release()

	// schedule store, resolver, upstream fetcher, guide render cache
	store := schedule.NewFileStore(cfg.SchedulePath, cfg.ScheduleTTL)
	resolver := resolve.NewResolver(cfg)
	fetcher := upstream.NewFetcher(cfg)
	guideCache := cache.NewGuideCache(cfg.CacheEnabled, cfg.CacheDuration)
	defer guideCache.Close()

	// create the relay instance and wire the routes around it
	relayInstance := relay.New(cfg, store, resolver, fetcher, workerPool, bufferPool, guideCache)
	router := handlers.NewRouter(relayInstance)

	addr := fmt.Sprintf(":%d", cfg.Port)

	// show info
	logger.Info("Starting EPG Relay %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Listen Address: %s", addr)
	logger.Info("  - Schedule Path: %s", cfg.SchedulePath)
	logger.Info("  - Schedule TTL: %s", cfg.ScheduleTTL)
	logger.Info("  - Upstream User-Agent: %s", cfg.UserAgent)
	logger.Info("  - Upstream Timeout: %s", cfg.UpstreamTimeout)
	logger.Info("  - Max Redirect Hops: %d", cfg.MaxRedirects)
	logger.Info("  - Chunk Size: %dKB", cfg.ChunkSizeKB)
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Guide Cache Enabled: %v", cfg.CacheEnabled)
	logger.Info("  - Guide Cache Duration: %s", cfg.CacheDuration)
	logger.Info("  - Debug Enabled: %v", cfg.Debug)
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// warm the schedule so the first client does not pay the load
	doc := store.Get()
	logger.Info("Schedule loaded: %d groups, %d channels", len(doc), doc.TotalChannels())

	server := &http.Server{
		Addr:    addr,
		Handler: router,
		// no write timeout: relay responses are unbounded live streams
	}

	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
