// Package receipt defines the structured extraction payload shared by the
// orchestrator, the geometry matchers and the persistence layer. All values
// are request-scoped; the types carry no shared mutable state.
package receipt

import (
	"encoding/json"

	"github.com/finlens/receipt-extract/internal/geometry"
	"github.com/finlens/receipt-extract/internal/match"
)

// Strategy names the extraction path that produced a payload.
type Strategy string

const (
	StrategyOCRThenChat Strategy = "ocr_then_chat"
	StrategyVision      Strategy = "vision"
)

// Number is a float64 that tolerates model output quirks: numbers encoded as
// strings ("$4.00", "4,000.50") decode through the money parser, and
// unparseable values decode to zero rather than failing the payload.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, ok := match.ParseNumber(s); ok {
			*n = Number(v)
			return nil
		}
	}
	*n = 0
	return nil
}

// TextField is a model-extracted string with its upstream confidence.
// Confidence flows from the model and is preserved, never fabricated.
type TextField struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
}

// NumberField is a model-extracted amount with its upstream confidence.
type NumberField struct {
	Value      *Number `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Text returns the field value, or "" when the field or value is absent.
func (f *TextField) Text() string {
	if f == nil || f.Value == nil {
		return ""
	}
	return *f.Value
}

// Quality is the model's read of photo quality.
type Quality struct {
	Blur         float64 `json:"blur"`
	Glare        float64 `json:"glare"`
	Readability  float64 `json:"readability"`
	IsLowQuality bool    `json:"is_low_quality"`
}

// BBoxDebug records how a bounding box was matched, for review tooling.
type BBoxDebug struct {
	MatchedLine string  `json:"matched_line"`
	Score       float64 `json:"score"`
	Mode        string  `json:"mode"`
}

// Item is one extracted line item. Price is always the line total, never the
// unit price; unit_price carries the per-unit cost. BBox, when present, is
// full-photo-relative.
type Item struct {
	Name           string        `json:"name"`
	Price          Number        `json:"price"`
	Quantity       *Number       `json:"quantity,omitempty"`
	UnitPrice      *Number       `json:"unit_price,omitempty"`
	Confidence     *float64      `json:"confidence,omitempty"`
	Category       string        `json:"category_prediction,omitempty"`
	LineIndex      *int          `json:"line_index,omitempty"`
	BBox           *geometry.Box `json:"bbox,omitempty"`
	BBoxConfidence *float64      `json:"bbox_confidence,omitempty"`
	BBoxSource     string        `json:"bbox_source,omitempty"`
	BBoxDebug      *BBoxDebug    `json:"bbox_debug,omitempty"`
}

// Extractions are the header-level fields of the receipt.
type Extractions struct {
	Merchant *TextField   `json:"merchant,omitempty"`
	Address  *TextField   `json:"address,omitempty"`
	Date     *TextField   `json:"date,omitempty"`
	Total    *NumberField `json:"total,omitempty"`
	Subtotal *NumberField `json:"subtotal,omitempty"`
	Tax      *NumberField `json:"tax,omitempty"`
	Discount *NumberField `json:"discount,omitempty"`
	Tip      *NumberField `json:"tip,omitempty"`
	Fees     *NumberField `json:"fees,omitempty"`
	Currency *TextField   `json:"currency,omitempty"`
}

// AmountBreakdown is the optional money split reported by the model.
type AmountBreakdown struct {
	Subtotal *Number `json:"subtotal,omitempty"`
	Tax      *Number `json:"tax,omitempty"`
	Discount *Number `json:"discount,omitempty"`
	Tip      *Number `json:"tip,omitempty"`
	Fees     *Number `json:"fees,omitempty"`
}

// Payload is the top-level structured extraction result.
type Payload struct {
	Quality          *Quality         `json:"quality,omitempty"`
	RawText          string           `json:"raw_text,omitempty"`
	Summary          string           `json:"summary,omitempty"`
	Extractions      Extractions      `json:"extractions"`
	Items            []Item           `json:"items"`
	AmountBreakdown  *AmountBreakdown `json:"amount_breakdown,omitempty"`
	ReceiptBBox      *geometry.Box    `json:"receipt_bbox,omitempty"`
	BBoxModelVersion string           `json:"bbox_model_version,omitempty"`
}

// NumberPtr builds a *Number, for literals in callers and tests.
func NumberPtr(v float64) *Number {
	n := Number(v)
	return &n
}
