// Package llm talks to an OpenAI-compatible chat backend and turns its
// responses into clean JSON payloads.
package llm

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

// AuthHeaderBearer and AuthHeaderAPIKey select how the API key is sent.
const (
	AuthHeaderBearer = "bearer"
	AuthHeaderAPIKey = "x-api-key"
)

// Client posts chat completion requests to a single backend.
type Client struct {
	baseURL    string
	apiKey     string
	authHeader string
	httpc      *http.Client
	log        *slog.Logger
}

func NewClient(baseURL, apiKey, authHeader string, httpc *http.Client, logger *slog.Logger) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 45 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		authHeader: strings.ToLower(strings.TrimSpace(authHeader)),
		httpc:      httpc,
		log:        logger,
	}
}

// Message is one chat turn. Content is either a plain string or a slice of
// ContentPart for multimodal turns.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multimodal user message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef points a content part at an image.
type ImageRef struct {
	URL string `json:"url"`
}

// Text builds a plain text message.
func Text(role, text string) Message {
	return Message{Role: role, Content: text}
}

// UserVision builds a user message carrying a text part and an image part.
func UserVision(text, imageURL string) Message {
	return Message{Role: "user", Content: []ContentPart{
		{Type: "text", Text: text},
		{Type: "image_url", ImageURL: &ImageRef{URL: imageURL}},
	}}
}

// Request is a chat completion call. Temperature is pinned to zero and the
// response format to a JSON object by Complete.
type Request struct {
	Model               string
	MaxCompletionTokens int
	Messages            []Message
}

// Response is the decoded chat completion.
type Response struct {
	Model   string
	Message MessageContent
	Raw     json.RawMessage
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message MessageContent `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete posts the request and decodes the first choice. Backend errors
// surface as the backend's own error message when one is present.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	reqID := uuid.New().String()
	start := time.Now()

	body := map[string]any{
		"model":                 req.Model,
		"temperature":           0,
		"max_completion_tokens": req.MaxCompletionTokens,
		"stream":                false,
		"response_format":       map[string]any{"type": "json_object"},
		"messages":              req.Messages,
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authHeader == AuthHeaderAPIKey {
		httpReq.Header.Set("x-api-key", c.apiKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.Info("llm.chat.request",
		"req_id", reqID,
		"model", req.Model,
		"content_length", len(bs),
	)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		c.log.Error("llm.chat.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("%v: %w", err, common.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	c.log.Info("llm.chat.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	var wire wireResponse
	decodeErr := json.Unmarshal(raw, &wire)
	if resp.StatusCode/100 != 2 {
		if decodeErr == nil && wire.Error != nil && wire.Error.Message != "" {
			return nil, fmt.Errorf("chat backend: %s: %w", wire.Error.Message, common.ErrBackendUnavailable)
		}
		return nil, fmt.Errorf("chat backend failed with status %d: %w", resp.StatusCode, common.ErrBackendUnavailable)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode chat response: %w", decodeErr)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("chat backend returned no choices")
	}
	return &Response{Model: wire.Model, Message: wire.Choices[0].Message, Raw: raw}, nil
}
