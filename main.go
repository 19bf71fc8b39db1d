package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vodharvest/work/browser"
	"vodharvest/work/catalog"
	"vodharvest/work/config"
	"vodharvest/work/embed"
	"vodharvest/work/handlers"
	"vodharvest/work/logger"
	"vodharvest/work/metadata"
	"vodharvest/work/middleware"
	"vodharvest/work/orchestrator"
	"vodharvest/work/probe"
	"vodharvest/work/resolver"
	"vodharvest/work/store"
)

var (
	Version = "v0.1.0" // default version
)

// our main app worker
func main() {

	configPath := flag.String("config", config.DefaultPath, "path to the JSON configuration file")
	listen := flag.String("listen", "", "serve the playlist over HTTP on this address instead of exiting after one run")
	printOut := flag.Bool("print", false, "write the serialized playlist to stdout after the run")
	flag.Parse()

	// load our config
	cfg := config.LoadConfig(*configPath)

	// set up logging
	if cfg.Debug {
		logger.SetLogLevel("DEBUG")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// worker pool for category-level concurrency
	workerPool, err := ants.NewPool(cfg.ChunkSize, ants.WithPreAlloc(true))
	if err != nil {
		logger.Error("Failed to create worker pool: %v", err)
		os.Exit(1)
	}
	defer workerPool.Release()

	// browser session pool
	sessionPool := browser.NewPool(ctx, cfg)
	defer sessionPool.Close()

	// optional persistence
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.Warn("Store disabled: %v", err)
		st = nil
	}
	defer st.Close()

	// pipeline stages
	discovery := catalog.New(cfg)
	extractor := embed.New(cfg)
	streamResolver := resolver.New(cfg)
	enricher := metadata.New(cfg)
	var verifier orchestrator.Verifier
	if cfg.VerifyStreams {
		verifier = probe.New(cfg.Browser.UserAgent, cfg.SiteBaseURL)
	}

	orc := orchestrator.New(cfg, sessionPool, workerPool, discovery, extractor, streamResolver, enricher, verifier, st)

	// show info
	logger.Info("Starting VOD Harvest %s", Version)
	logger.Info("Harvest configuration:")
	logger.Info("  - Site: %s", cfg.SiteBaseURL)
	logger.Info("  - Output: %s", cfg.OutputPath)
	logger.Info("  - Facets: %d", len(cfg.Facets))
	logger.Info("  - Item Limit: %d", cfg.ItemLimit)
	logger.Info("  - Chunk Size: %d", cfg.ChunkSize)
	logger.Info("  - Max Sessions: %d", cfg.MaxSessions)
	logger.Info("  - Recycle Every: %d items", cfg.RecycleEvery)
	logger.Info("  - Verify Streams: %v", cfg.VerifyStreams)
	logger.Info("  - Debug Enabled: %v", cfg.Debug)
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	if _, err := orc.Run(ctx); err != nil {
		logger.Error("Harvest run failed: %v", err)
	}

	if *printOut {
		fmt.Print(orc.Playlist().Serialize())
	}

	if *listen == "" {
		return
	}

	// serve mode: keep the playlist available and refresh it on an interval
	router := mux.NewRouter()
	router.HandleFunc("/playlist", middleware.Gzip(handlers.HandlePlaylist(orc))).Methods("GET")
	router.HandleFunc("/{group}/playlist", middleware.Gzip(handlers.HandleGroupPlaylist(orc))).Methods("GET")
	router.HandleFunc("/healthz", handlers.HandleHealthz()).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	if cfg.RefreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					logger.Info("Scheduled refresh starting")
					if _, err := orc.Run(ctx); err != nil {
						logger.Error("Scheduled refresh failed: %v", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	server := &http.Server{Addr: *listen, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving playlist on %s", *listen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed: %v", err)
		os.Exit(1)
	}
}
