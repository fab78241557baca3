// Package extract orchestrates the receipt extraction pipeline: OCR and chat
// backends with model fallback, quantity and address post-processing, and the
// geometry passes that attach item bounding boxes.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finlens/receipt-extract/internal/address"
	"github.com/finlens/receipt-extract/internal/bbox"
	"github.com/finlens/receipt-extract/internal/common"
	"github.com/finlens/receipt-extract/internal/llm"
	"github.com/finlens/receipt-extract/internal/match"
	"github.com/finlens/receipt-extract/internal/quantity"
	"github.com/finlens/receipt-extract/internal/receipt"
	"github.com/finlens/receipt-extract/internal/vision"
)

// OCRBackend produces markdown text for a receipt image.
type OCRBackend interface {
	Recognize(ctx context.Context, imageURL string) (string, error)
}

// ChatBackend runs a chat completion.
type ChatBackend interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// VisionBackend produces word-level geometry for a receipt image.
type VisionBackend interface {
	Annotate(ctx context.Context, imageURL string) (*vision.Result, error)
}

// Config controls pipeline behavior. Zero values fall back to production
// defaults in NewOrchestrator.
type Config struct {
	DefaultModel       string
	FallbackModels     []string
	Provider           string
	BBoxModelOverride  string
	BBoxFallbackModels []string
	EnableItemBBox     bool
	EnableVisionBBox   bool
}

// Request is one extraction call.
type Request struct {
	ImageURL  string
	Model     string
	Strategy  receipt.Strategy
	ReceiptID string
}

// Result is the outcome of a pipeline run.
type Result struct {
	Provider    string           `json:"provider"`
	Model       string           `json:"model"`
	Strategy    receipt.Strategy `json:"strategy"`
	OCRUsed     bool             `json:"ocr_used"`
	OCRMarkdown string           `json:"ocr_markdown,omitempty"`
	ReceiptID   string           `json:"receipt_id,omitempty"`
	Extracted   *receipt.Payload `json:"extracted"`
}

// Orchestrator drives the extraction pipeline. The OCR and vision backends
// are optional; their stages are skipped when nil.
type Orchestrator struct {
	chat   ChatBackend
	ocr    OCRBackend
	vision VisionBackend
	cfg    Config
	log    *slog.Logger
}

func NewOrchestrator(chat ChatBackend, ocr OCRBackend, visionBackend VisionBackend, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.FallbackModels) == 0 {
		cfg.FallbackModels = []string{"openai/gpt-4o-mini", "openai/gpt-4o"}
	}
	if len(cfg.BBoxFallbackModels) == 0 {
		// Localization needs a stronger vision model than plain extraction.
		cfg.BBoxFallbackModels = []string{"openai/gpt-4o", "openai/gpt-4o-mini"}
	}
	if cfg.Provider == "" {
		cfg.Provider = "dedalus"
	}
	return &Orchestrator{chat: chat, ocr: ocr, vision: visionBackend, cfg: cfg, log: logger}
}

// Extract runs the full pipeline for one receipt image.
func (o *Orchestrator) Extract(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.ImageURL) == "" {
		return nil, fmt.Errorf("image_url is required: %w", common.ErrInvalidInput)
	}

	reqID := uuid.New().String()
	start := time.Now()

	candidates := dedupCandidates(append([]string{req.Model, o.cfg.DefaultModel}, o.cfg.FallbackModels...))

	strategy := receipt.StrategyOCRThenChat
	if req.Strategy == receipt.StrategyVision {
		strategy = receipt.StrategyVision
	}

	var payload *receipt.Payload
	var modelUsed string
	var ocrMarkdown string

	if strategy == receipt.StrategyOCRThenChat && o.ocr != nil {
		markdown, err := o.ocr.Recognize(ctx, req.ImageURL)
		if err == nil {
			ocrMarkdown = markdown
			messages := []llm.Message{
				llm.Text("system", llm.OCRSystemPrompt),
				llm.Text("user", llm.TextOnlyPrompt+"\n\nOCR_TEXT_MARKDOWN:\n"+markdown),
			}
			payload, modelUsed, err = o.chatExtract(ctx, candidates, messages, 3200)
		}
		if err != nil {
			o.log.Warn("extract.ocr_then_chat.failed", "req_id", reqID, "error", err)
			strategy = receipt.StrategyVision
			payload = nil
		}
	} else {
		strategy = receipt.StrategyVision
	}

	if payload == nil {
		messages := []llm.Message{
			llm.Text("system", llm.OCRSystemPrompt),
			llm.UserVision(llm.FastPrompt, req.ImageURL),
		}
		var err error
		payload, modelUsed, err = o.chatExtract(ctx, candidates, messages, 3200)
		if err != nil {
			return nil, fmt.Errorf("extraction failed: %w", err)
		}
		strategy = receipt.StrategyVision
	}

	if payload.RawText == "" {
		payload.RawText = ocrMarkdown
	}

	PostProcessQuantities(payload, ocrMarkdown)
	fillAddress(payload, ocrMarkdown)
	o.attachGeometry(ctx, reqID, req.ImageURL, payload, candidates)

	o.log.Info("extract.done",
		"req_id", reqID,
		"strategy", string(strategy),
		"model", modelUsed,
		"items", len(payload.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		Provider:    o.cfg.Provider,
		Model:       modelUsed,
		Strategy:    strategy,
		OCRUsed:     ocrMarkdown != "",
		OCRMarkdown: ocrMarkdown,
		ReceiptID:   req.ReceiptID,
		Extracted:   payload,
	}, nil
}

// chatExtract runs the candidate models in order until one yields a payload
// that parses and validates.
func (o *Orchestrator) chatExtract(ctx context.Context, candidates []string, messages []llm.Message, maxTokens int) (*receipt.Payload, string, error) {
	type outcome struct {
		payload *receipt.Payload
		model   string
	}

	out, _, err := tryCandidates(candidates, func(candidate string) (outcome, error) {
		resp, err := o.chat.Complete(ctx, llm.Request{
			Model:               candidate,
			MaxCompletionTokens: maxTokens,
			Messages:            messages,
		})
		if err != nil {
			return outcome{}, err
		}
		text := resp.Message.Text()
		if strings.TrimSpace(text) == "" {
			return outcome{}, fmt.Errorf("chat backend returned empty content for model %s", candidate)
		}
		data, err := llm.ParseJSONPayload(text)
		if err != nil {
			return outcome{}, fmt.Errorf("%v: %w", err, common.ErrMalformedOutput)
		}
		if err := llm.ValidatePayload(data); err != nil {
			return outcome{}, fmt.Errorf("%v: %w", err, common.ErrMalformedOutput)
		}
		var p receipt.Payload
		if err := json.Unmarshal(data, &p); err != nil {
			return outcome{}, fmt.Errorf("decode payload: %w", err)
		}
		model := resp.Model
		if model == "" {
			model = candidate
		}
		return outcome{payload: &p, model: model}, nil
	})
	if err != nil {
		return nil, "", err
	}
	return out.payload, out.model, nil
}

var reBulletPrefix = regexp.MustCompile(`^[-*]\s+`)

func normalizeOCRLines(raw string) []string {
	var out []string
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(strings.TrimSuffix(l, "\r"))
		if l == "" {
			continue
		}
		out = append(out, strings.TrimSpace(reBulletPrefix.ReplaceAllString(l, "")))
	}
	return out
}

// PostProcessQuantities re-derives quantity and unit price for items where
// the model left them blank, by re-reading the raw OCR line the item came
// from. A model-provided quantity above one, or any unit price, is trusted
// as-is: the inference may only fill gaps, never override. Running it twice
// yields the same result.
func PostProcessQuantities(p *receipt.Payload, fallbackRawText string) {
	if p == nil {
		return
	}
	rawText := p.RawText
	if rawText == "" {
		rawText = fallbackRawText
	}
	if rawText == "" {
		return
	}

	lines := normalizeOCRLines(rawText)

	for i := range p.Items {
		item := &p.Items[i]
		price := float64(item.Price)
		if item.Name == "" || price <= 0 {
			continue
		}

		var qtyAlready *receipt.Number
		if item.Quantity != nil && float64(*item.Quantity) > 0 {
			qtyAlready = receipt.NumberPtr(math.Round(float64(*item.Quantity)))
		}
		var unitAlready *receipt.Number
		if item.UnitPrice != nil && float64(*item.UnitPrice) > 0 {
			unitAlready = receipt.NumberPtr(match.RoundMoney(float64(*item.UnitPrice)))
		}

		if qtyAlready != nil && (float64(*qtyAlready) > 1 || unitAlready != nil) {
			item.Quantity = qtyAlready
			item.UnitPrice = unitAlready
			continue
		}

		bestLine := ""
		bestScore := 0.0
		for _, line := range lines {
			if s := match.ScoreLineForItem(line, item.Name, price); s > bestScore {
				bestScore = s
				bestLine = line
			}
		}
		if bestLine == "" || bestScore < 2.5 {
			item.Quantity = qtyAlready
			item.UnitPrice = unitAlready
			continue
		}

		inf := quantity.InferFromLine(bestLine, price)
		if inf == nil {
			item.Quantity = qtyAlready
			item.UnitPrice = unitAlready
			continue
		}

		item.Quantity = receipt.NumberPtr(float64(inf.Qty))
		if inf.Unit != nil {
			item.UnitPrice = receipt.NumberPtr(*inf.Unit)
		} else {
			item.UnitPrice = nil
		}
	}
}

// fillAddress backfills the merchant address from the raw OCR text when the
// model left it empty.
func fillAddress(p *receipt.Payload, ocrMarkdown string) {
	if p == nil {
		return
	}
	if p.Extractions.Address.Text() != "" {
		return
	}
	src := p.RawText
	if src == "" {
		src = ocrMarkdown
	}
	if src == "" {
		return
	}
	addr := address.InferFromRawText(src, p.Extractions.Merchant.Text())
	if addr == "" {
		return
	}
	p.Extractions.Address = &receipt.TextField{Value: &addr, Confidence: 0.7}
}

// attachGeometry runs the two geometry passes concurrently: word-geometry
// OCR line matching and model-based localization. The merge order is fixed
// regardless of which finishes first: line matches apply before localization,
// and localization only fills items still missing a box. Either pass failing
// leaves the payload without geometry rather than failing the pipeline.
func (o *Orchestrator) attachGeometry(ctx context.Context, reqID, imageURL string, p *receipt.Payload, modelCandidates []string) {
	if len(p.Items) == 0 || strings.TrimSpace(imageURL) == "" {
		return
	}

	var wg sync.WaitGroup
	var visionLines []vision.Line
	var loc *bbox.Localization
	var locModel string

	if o.cfg.EnableVisionBBox && o.vision != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.vision.Annotate(ctx, imageURL)
			if err != nil {
				o.log.Warn("extract.vision_bbox.failed", "req_id", reqID, "error", err)
				return
			}
			visionLines = res.Lines
		}()
	}

	if o.cfg.EnableItemBBox && o.chat != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, m, err := o.localizeItems(ctx, imageURL, p.Items, modelCandidates)
			if err != nil {
				o.log.Warn("extract.item_bbox.failed", "req_id", reqID, "error", err)
				return
			}
			loc, locModel = l, m
		}()
	}

	wg.Wait()

	if len(visionLines) > 0 {
		bbox.AttachFromLines(p, visionLines)
		p.BBoxModelVersion = "google-vision-document_text_detection"
	}
	if loc != nil {
		bbox.MergeLocalized(p, loc)
		if loc.ReceiptBBox != nil && loc.ReceiptBBox.Valid() {
			p.ReceiptBBox = loc.ReceiptBBox
		}
		if p.BBoxModelVersion == "" {
			p.BBoxModelVersion = locModel + "-vision-bbox"
		}
	}
}

// localizeItems asks a vision-capable chat model to locate the extracted
// items on the image.
func (o *Orchestrator) localizeItems(ctx context.Context, imageURL string, items []receipt.Item, modelCandidates []string) (*bbox.Localization, string, error) {
	type wireItem struct {
		LineIndex int     `json:"line_index"`
		Name      string  `json:"name"`
		Price     float64 `json:"price"`
	}
	wire := struct {
		Items []wireItem `json:"items"`
	}{Items: make([]wireItem, 0, len(items))}
	for i, it := range items {
		idx := i
		if it.LineIndex != nil {
			idx = *it.LineIndex
		}
		wire.Items = append(wire.Items, wireItem{LineIndex: idx, Name: it.Name, Price: float64(it.Price)})
	}
	itemsJSON, err := json.Marshal(wire)
	if err != nil {
		return nil, "", fmt.Errorf("encode items: %w", err)
	}

	candidates := dedupCandidates(append(append([]string{o.cfg.BBoxModelOverride}, o.cfg.BBoxFallbackModels...), modelCandidates...))

	// The system prompt forbids inventing bounding boxes; for the
	// localization pass the same rule applies to coordinates.
	systemPrompt := strings.Replace(llm.OCRSystemPrompt, "bounding boxes.", "coordinates.", 1)
	messages := []llm.Message{
		llm.Text("system", systemPrompt),
		llm.UserVision(llm.ItemBBoxPrompt+"\n\nITEMS_JSON:\n"+string(itemsJSON), imageURL),
	}

	type outcome struct {
		loc   *bbox.Localization
		model string
	}
	out, _, err := tryCandidates(candidates, func(candidate string) (outcome, error) {
		resp, err := o.chat.Complete(ctx, llm.Request{
			Model:               candidate,
			MaxCompletionTokens: 1600,
			Messages:            messages,
		})
		if err != nil {
			return outcome{}, err
		}
		text := resp.Message.Text()
		if strings.TrimSpace(text) == "" {
			return outcome{}, fmt.Errorf("chat backend returned empty content for model %s", candidate)
		}
		data, err := llm.ParseJSONPayload(text)
		if err != nil {
			return outcome{}, fmt.Errorf("%v: %w", err, common.ErrMalformedOutput)
		}
		var l bbox.Localization
		if err := json.Unmarshal(data, &l); err != nil {
			return outcome{}, fmt.Errorf("decode localization: %w", err)
		}
		model := resp.Model
		if model == "" {
			model = candidate
		}
		return outcome{loc: &l, model: model}, nil
	})
	if err != nil {
		return nil, "", err
	}
	return out.loc, out.model, nil
}
