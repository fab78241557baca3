package bbox

import (
	"github.com/finlens/receipt-extract/internal/geometry"
	"github.com/finlens/receipt-extract/internal/receipt"
)

// LocalizedItem is one item position reported by the localization model.
// BBoxImage is full-photo-relative; BBoxReceipt is relative to the receipt
// paper region and needs the receipt box to map back to image space.
type LocalizedItem struct {
	LineIndex   *int          `json:"line_index"`
	BBoxImage   *geometry.Box `json:"bbox_image"`
	BBoxReceipt *geometry.Box `json:"bbox_receipt"`
	Confidence  *float64      `json:"confidence"`
}

// Localization is the localization model's full response payload.
type Localization struct {
	ReceiptBBox *geometry.Box   `json:"receipt_bbox"`
	Items       []LocalizedItem `json:"items"`
}

// MergeLocalized fills item bounding boxes from a localization result. It
// only fills items that still lack a bbox: line-geometry matches are more
// precise and must not be clobbered. Items are keyed by line_index, falling
// back to positional index.
func MergeLocalized(p *receipt.Payload, loc *Localization) {
	if p == nil || loc == nil || len(p.Items) == 0 || len(loc.Items) == 0 {
		return
	}

	receiptBoxValid := loc.ReceiptBBox != nil && loc.ReceiptBBox.Valid()

	type hit struct {
		box        *geometry.Box
		confidence *float64
	}
	byIndex := make(map[int]hit, len(loc.Items))
	for _, li := range loc.Items {
		if li.LineIndex == nil {
			continue
		}
		var box *geometry.Box
		switch {
		case li.BBoxImage != nil && li.BBoxImage.Valid():
			b := *li.BBoxImage
			box = &b
		case receiptBoxValid && li.BBoxReceipt != nil && li.BBoxReceipt.Valid():
			box = geometry.FromReceiptSpace(*loc.ReceiptBBox, *li.BBoxReceipt)
		}
		byIndex[*li.LineIndex] = hit{box: box, confidence: li.Confidence}
	}

	for i := range p.Items {
		item := &p.Items[i]
		if item.BBox != nil {
			continue
		}
		idx := i
		if item.LineIndex != nil {
			idx = *item.LineIndex
		}
		h, ok := byIndex[idx]
		if !ok || h.box == nil {
			continue
		}
		item.BBox = h.box
		item.BBoxConfidence = h.confidence
		item.BBoxSource = "vision_model"
	}
}
