package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/finlens/receipt-extract/internal/common"
	"github.com/finlens/receipt-extract/internal/extract"
	"github.com/finlens/receipt-extract/internal/llm"
	"github.com/finlens/receipt-extract/internal/ocr"
	"github.com/finlens/receipt-extract/internal/receipt"
	"github.com/finlens/receipt-extract/internal/vision"
)

// One-shot extraction for a single receipt image; prints the result as JSON.
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	model := flag.String("model", "", "model override")
	strategy := flag.String("strategy", "", "ocr_then_chat or vision")
	flag.Parse()

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "extract [-model m] [-strategy s] <image-url>")
		os.Exit(2)
	}
	imageURL := flag.Arg(0)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

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

	res, err := orchestrator.Extract(ctx, extract.Request{
		ImageURL: imageURL,
		Model:    *model,
		Strategy: receipt.Strategy(*strategy),
	})
	if err != nil {
		logger.Error("extraction failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
}
