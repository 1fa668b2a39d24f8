package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagelift/pagelift/internal/api"
	"github.com/pagelift/pagelift/internal/api/handlers"
	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/internal/gcp"
	"github.com/pagelift/pagelift/internal/services"
)

func main() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("Server exited with error.", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Backend clients are constructed once per process and shared by
	// reference; no package-level singletons.
	blobs, err := gcp.NewBlobStore(ctx, cfg.DocumentBucket)
	if err != nil {
		return err
	}
	defer blobs.Close()

	docs, err := gcp.NewDocumentStore(ctx, cfg.ProjectID, cfg.FirestoreCollection)
	if err != nil {
		return err
	}
	defer docs.Close()

	vertex, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexRegion, cfg.ExtractionModel)
	if err != nil {
		return err
	}
	defer vertex.Close()

	extractor := services.NewVertexExtractor(vertex, blobs, docs)
	dispatcher := services.NewAsyncDispatcher(extractor, cfg.ExtractTimeout)

	ingestion := services.NewIngestionService(blobs, docs, services.NewFitzRasterizer(), dispatcher, services.IngestionConfig{
		MaxUploadBytes: cfg.MaxUploadBytes,
		RasterScale:    cfg.RasterScale,
	})
	documents := services.NewDocumentService(blobs, docs, cfg.SignedURLExpiry)
	exports := services.NewExportService(documents, cfg.ExportBackendURL)

	router := api.NewRouter(api.Handlers{
		Health:    handlers.NewHealthHandler(),
		Documents: handlers.NewDocumentHandler(ingestion, documents, cfg.MaxUploadBytes),
		Export:    handlers.NewExportHandler(exports),
	}, cfg.JWTSecret)

	server := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening.", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.Info("Shutting down.", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let in-flight extractions finish before the process exits.
	dispatcher.Wait()
	slog.Info("Shutdown complete.")
	return nil
}
