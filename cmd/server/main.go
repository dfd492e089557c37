package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finchunk/finchunk/internal/api"
	"github.com/finchunk/finchunk/internal/charts"
	"github.com/finchunk/finchunk/internal/config"
	"github.com/finchunk/finchunk/internal/ocr"
	"github.com/finchunk/finchunk/internal/pagesource"
	"github.com/finchunk/finchunk/internal/pipeline"
	"github.com/finchunk/finchunk/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, dir := range []string{cfg.StorageDir, cfg.VectorDir, cfg.ResourcesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("create storage dir", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	// Initialize the vector store.
	embed, embedCleanup, err := store.NewEmbedder(ctx, cfg.EmbedProvider, cfg.GeminiAPIKey, cfg.OpenAIAPIKey)
	if err != nil {
		log.Error("embedding setup failed", "error", err)
		os.Exit(1)
	}
	defer embedCleanup()

	vs, err := store.New(cfg.VectorDir, embed, log)
	if err != nil {
		log.Error("vector store setup failed", "error", err)
		os.Exit(1)
	}

	// Optional enrichment services.
	var ocrClient ocr.Client
	if cfg.OCRURL != "" {
		ocrClient = ocr.NewHTTPClient(cfg.OCRURL, cfg.OCRAPIKey, cfg.OCRTimeout)
	}
	var chartClient *charts.ModelClient
	if cfg.ChartModelURL != "" {
		chartClient = charts.NewModelClient(cfg.ChartModelURL, cfg.ChartModelAPIKey, cfg.ChartModelTimeout)
	}

	source := pagesource.NewPDFSource(cfg.RenderDPI, cfg.MaxPages, cfg.RenderPdftoppm, cfg.RenderTimeout, log)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, source, vs, ocrClient, chartClient, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if hc, ok := ocrClient.(*ocr.HTTPClient); ok {
			hc.Close()
		}
		if chartClient != nil {
			chartClient.Close()
		}
	}()

	log.Info("starting finchunk", "port", cfg.Port, "embed_provider", cfg.EmbedProvider)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
