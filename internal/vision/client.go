// Package vision calls Google Cloud Vision document text detection and
// reconstructs receipt-row-aligned lines from the returned geometry.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finlens/receipt-extract/internal/common"
	"github.com/finlens/receipt-extract/internal/geometry"
)

const defaultEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// Result is one annotate call's output: the full detected text plus
// reconstructed lines carrying normalized geometry.
type Result struct {
	Text  string
	Lines []Line
}

// Client talks to the Vision REST API.
type Client struct {
	apiKey   string
	endpoint string
	httpc    *http.Client
	log      *slog.Logger
}

func NewClient(apiKey, endpoint string, httpc *http.Client, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 45 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{apiKey: apiKey, endpoint: endpoint, httpc: httpc, log: logger}
}

type vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type boundingPoly struct {
	Vertices []vertex `json:"vertices"`
}

type symbolInfo struct {
	Text     string `json:"text"`
	Property *struct {
		DetectedBreak *struct {
			Type string `json:"type"`
		} `json:"detectedBreak"`
	} `json:"property"`
}

type wordInfo struct {
	BoundingBox boundingPoly `json:"boundingBox"`
	Symbols     []symbolInfo `json:"symbols"`
}

type paragraphInfo struct {
	Words []wordInfo `json:"words"`
}

type blockInfo struct {
	Paragraphs []paragraphInfo `json:"paragraphs"`
}

type pageInfo struct {
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	Blocks []blockInfo `json:"blocks"`
}

type fullTextAnnotation struct {
	Text  string     `json:"text"`
	Pages []pageInfo `json:"pages"`
}

type textAnnotation struct {
	Description  string       `json:"description"`
	BoundingPoly boundingPoly `json:"boundingPoly"`
}

type apiError struct {
	Message string `json:"message"`
}

type annotateResponse struct {
	Responses []struct {
		FullTextAnnotation *fullTextAnnotation `json:"fullTextAnnotation"`
		TextAnnotations    []textAnnotation    `json:"textAnnotations"`
		Error              *apiError           `json:"error"`
	} `json:"responses"`
	Error *apiError `json:"error"`
}

// Annotate fetches the image, runs DOCUMENT_TEXT_DETECTION on it and returns
// the detected text with reconstructed lines. Token-derived lines are
// preferred over the break-structure walk whenever tokens are available,
// because they preserve one-row-per-table-row geometry more reliably.
func (c *Client) Annotate(ctx context.Context, imageURL string) (*Result, error) {
	reqID := uuid.New().String()
	start := time.Now()

	img, err := c.fetchImage(ctx, imageURL)
	if err != nil {
		c.log.Error("vision.fetch_image.error", "req_id", reqID, "error", err)
		return nil, err
	}

	body := map[string]any{
		"requests": []map[string]any{
			{
				"image":    map[string]any{"content": base64.StdEncoding.EncodeToString(img)},
				"features": []map[string]any{{"type": "DOCUMENT_TEXT_DETECTION"}},
			},
		},
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode annotate request: %w", err)
	}

	endpoint := c.endpoint + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build annotate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Error("vision.annotate.send_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("%v: %w", err, common.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	c.log.Info("vision.annotate.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	var ar annotateResponse
	decodeErr := json.Unmarshal(raw, &ar)
	if resp.StatusCode/100 != 2 {
		if decodeErr == nil && ar.Error != nil && ar.Error.Message != "" {
			return nil, fmt.Errorf("vision annotate: %s: %w", ar.Error.Message, common.ErrBackendUnavailable)
		}
		return nil, fmt.Errorf("vision annotate failed with status %d: %w", resp.StatusCode, common.ErrBackendUnavailable)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode annotate response: %w", decodeErr)
	}
	if len(ar.Responses) == 0 {
		return nil, fmt.Errorf("vision annotate returned no responses")
	}
	r0 := ar.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate: %s", r0.Error.Message)
	}

	res := &Result{}
	var pageW, pageH float64
	if full := r0.FullTextAnnotation; full != nil {
		res.Text = full.Text
		if len(full.Pages) > 0 {
			pageW = full.Pages[0].Width
			pageH = full.Pages[0].Height
			if pageW > 0 && pageH > 0 {
				res.Lines = linesFromBreaks(full.Pages[0], pageW, pageH)
			}
		}
	}

	// Token annotations: entry 0 is the whole-text blob, the rest are words.
	if len(r0.TextAnnotations) > 1 {
		tokens, w, h := tokensFromAnnotations(r0.TextAnnotations[1:], pageW, pageH)
		if reconstructed := ReconstructLines(tokens, w, h); len(reconstructed) > 0 {
			res.Lines = reconstructed
		}
	}

	if strings.TrimSpace(res.Text) == "" {
		return nil, fmt.Errorf("vision annotate returned empty text: %w", common.ErrGeometryUnavailable)
	}
	return res, nil
}

func (c *Client) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch image failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func polyBounds(poly boundingPoly) (x0, y0, x1, y1 float64, ok bool) {
	if len(poly.Vertices) == 0 {
		return 0, 0, 0, 0, false
	}
	x0, y0 = math.Inf(1), math.Inf(1)
	x1, y1 = math.Inf(-1), math.Inf(-1)
	for _, v := range poly.Vertices {
		x0 = math.Min(x0, v.X)
		y0 = math.Min(y0, v.Y)
		x1 = math.Max(x1, v.X)
		y1 = math.Max(y1, v.Y)
	}
	return x0, y0, x1, y1, true
}

func tokensFromAnnotations(anns []textAnnotation, pageW, pageH float64) ([]Token, float64, float64) {
	width, height := pageW, pageH
	if width <= 0 || height <= 0 {
		// Page dims missing: infer them from the token extents.
		for _, a := range anns {
			for _, v := range a.BoundingPoly.Vertices {
				width = math.Max(width, v.X)
				height = math.Max(height, v.Y)
			}
		}
	}
	if width <= 0 || height <= 0 {
		return nil, 0, 0
	}

	var tokens []Token
	for _, a := range anns {
		text := strings.TrimSpace(a.Description)
		if text == "" {
			continue
		}
		x0, y0, x1, y1, ok := polyBounds(a.BoundingPoly)
		if !ok {
			continue
		}
		x0 = math.Max(0, x0)
		y0 = math.Max(0, y0)
		x1 = math.Min(width, x1)
		y1 = math.Min(height, y1)
		if !(x1 > x0 && y1 > y0) {
			continue
		}
		tokens = append(tokens, Token{Text: text, X0: x0, Y0: y0, X1: x1, Y1: y1})
	}
	return tokens, width, height
}

// linesFromBreaks assembles lines by walking the fullTextAnnotation break
// structure. Kept as the fallback when no token annotations come back.
func linesFromBreaks(page pageInfo, pageW, pageH float64) []Line {
	var lines []Line
	var curText strings.Builder
	var curBox *geometry.Box

	flush := func() {
		text := strings.TrimSpace(curText.String())
		curText.Reset()
		box := curBox
		curBox = nil
		if text == "" {
			return
		}
		line := Line{Text: text}
		if box != nil {
			norm := geometry.Box{X0: box.X0 / pageW, Y0: box.Y0 / pageH, X1: box.X1 / pageW, Y1: box.Y1 / pageH}
			if norm.Valid() {
				line.Box = &norm
			}
		}
		lines = append(lines, line)
	}

	addWordBox := func(poly boundingPoly) {
		x0, y0, x1, y1, ok := polyBounds(poly)
		if !ok {
			return
		}
		x0 = math.Max(0, x0)
		y0 = math.Max(0, y0)
		x1 = math.Min(pageW, x1)
		y1 = math.Min(pageH, y1)
		if curBox == nil {
			curBox = &geometry.Box{X0: x0, Y0: y0, X1: x1, Y1: y1}
			return
		}
		curBox.X0 = math.Min(curBox.X0, x0)
		curBox.Y0 = math.Min(curBox.Y0, y0)
		curBox.X1 = math.Max(curBox.X1, x1)
		curBox.Y1 = math.Max(curBox.Y1, y1)
	}

	for _, block := range page.Blocks {
		for _, para := range block.Paragraphs {
			for _, word := range para.Words {
				var wordText strings.Builder
				endsLine := false
				for _, sym := range word.Symbols {
					wordText.WriteString(sym.Text)
					if sym.Property != nil && sym.Property.DetectedBreak != nil {
						switch sym.Property.DetectedBreak.Type {
						case "EOL_SURE_SPACE", "LINE_BREAK":
							endsLine = true
						}
					}
				}
				if wordText.Len() == 0 {
					continue
				}
				if curText.Len() > 0 {
					curText.WriteString(" ")
				}
				curText.WriteString(wordText.String())
				addWordBox(word.BoundingBox)
				if endsLine {
					flush()
				}
			}
			flush()
		}
		flush()
	}
	return lines
}
