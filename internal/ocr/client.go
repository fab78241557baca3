// Package ocr talks to a hosted document-OCR backend that returns per-page
// markdown for a receipt image.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finlens/receipt-extract/internal/common"
)

const DefaultModel = "mistral-ocr-latest"

// Client posts OCR requests to a single backend.
type Client struct {
	baseURL    string
	apiKey     string
	authHeader string
	model      string
	httpc      *http.Client
	log        *slog.Logger
}

// NewClient builds an OCR client. authHeader is "bearer" or "x-api-key";
// model falls back to DefaultModel when empty.
func NewClient(baseURL, apiKey, authHeader, model string, httpc *http.Client, logger *slog.Logger) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 45 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		authHeader: strings.ToLower(strings.TrimSpace(authHeader)),
		model:      model,
		httpc:      httpc,
		log:        logger,
	}
}

type wireDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type wireRequest struct {
	Model    string       `json:"model"`
	Document wireDocument `json:"document"`
}

type wireResponse struct {
	Pages []struct {
		Markdown string `json:"markdown"`
	} `json:"pages"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Recognize runs OCR over the image at imageURL and returns the concatenated
// markdown of all pages. An empty result is an error so callers fall through
// to their next strategy.
func (c *Client) Recognize(ctx context.Context, imageURL string) (string, error) {
	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(wireRequest{
		Model:    c.model,
		Document: wireDocument{Type: "document_url", DocumentURL: imageURL},
	})
	if err != nil {
		return "", fmt.Errorf("encode ocr request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ocr", bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build ocr request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authHeader == "x-api-key" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.Info("ocr.request", "req_id", reqID, "model", c.model)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		c.log.Error("ocr.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%v: %w", err, common.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	c.log.Info("ocr.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	var wire wireResponse
	decodeErr := json.Unmarshal(raw, &wire)
	if resp.StatusCode/100 != 2 {
		if decodeErr == nil && wire.Error != nil && wire.Error.Message != "" {
			return "", fmt.Errorf("ocr backend: %s: %w", wire.Error.Message, common.ErrBackendUnavailable)
		}
		return "", fmt.Errorf("ocr backend failed with status %d: %w", resp.StatusCode, common.ErrBackendUnavailable)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode ocr response: %w", decodeErr)
	}

	parts := make([]string, 0, len(wire.Pages))
	for _, p := range wire.Pages {
		if strings.TrimSpace(p.Markdown) != "" {
			parts = append(parts, p.Markdown)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if text == "" {
		return "", fmt.Errorf("ocr backend returned no text")
	}
	return text, nil
}
