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

	"github.com/joho/godotenv"

	"github.com/finlens/receipt-extract/internal/common"
	"github.com/finlens/receipt-extract/internal/export"
	"github.com/finlens/receipt-extract/internal/extract"
	"github.com/finlens/receipt-extract/internal/llm"
	"github.com/finlens/receipt-extract/internal/ocr"
	"github.com/finlens/receipt-extract/internal/server"
	"github.com/finlens/receipt-extract/internal/store"
	"github.com/finlens/receipt-extract/internal/vision"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DB.Path, logger)
	if err != nil {
		logger.Error("open store", "error", err, "path", cfg.DB.Path)
		os.Exit(1)
	}
	defer st.Close()

	httpc := &http.Client{Timeout: cfg.Chat.Timeout}
	chatClient := llm.NewClient(cfg.Chat.APIURL, cfg.Chat.APIKey, cfg.Chat.AuthHeader, httpc, logger)
	ocrClient := ocr.NewClient(cfg.Chat.APIURL, cfg.Chat.APIKey, cfg.Chat.AuthHeader, cfg.OCR.Model, httpc, logger)

	var visionClient extract.VisionBackend
	if cfg.Vision.APIKey != "" {
		visionClient = vision.NewClient(cfg.Vision.APIKey, "", nil, logger)
	}

	orchestrator := extract.NewOrchestrator(chatClient, ocrClient, visionClient, extract.Config{
		DefaultModel:      cfg.Chat.Model,
		Provider:          cfg.Chat.Provider,
		BBoxModelOverride: cfg.BBox.ModelOverride,
		EnableItemBBox:    cfg.BBox.Enable,
		EnableVisionBBox:  cfg.Vision.EnableBBox && cfg.Vision.APIKey != "",
	}, logger)

	exporter := export.NewService(st, logger)
	srv := server.New(orchestrator, st, exporter, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
