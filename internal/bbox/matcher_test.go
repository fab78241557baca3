package bbox

import (
	"testing"

	"github.com/finlens/receipt-extract/internal/geometry"
	"github.com/finlens/receipt-extract/internal/receipt"
	"github.com/finlens/receipt-extract/internal/vision"
)

func line(text string, x0, y0, x1, y1 float64) vision.Line {
	return vision.Line{Text: text, Box: &geometry.Box{X0: x0, Y0: y0, X1: x1, Y1: y1}}
}

func payloadWithItems(items ...receipt.Item) *receipt.Payload {
	return &receipt.Payload{Items: items}
}

func TestAttachFromLines_NamePriceMatch(t *testing.T) {
	p := payloadWithItems(
		receipt.Item{Name: "Bananas", Price: 1.99},
		receipt.Item{Name: "Whole Milk", Price: 4.49},
	)
	lines := []vision.Line{
		line("WALMART SUPERCENTER", 0.1, 0.05, 0.9, 0.08),
		line("BANANAS 1.99", 0.1, 0.30, 0.9, 0.34),
		line("WHOLE MILK 4.49", 0.1, 0.40, 0.9, 0.44),
		line("TOTAL 6.48", 0.1, 0.80, 0.9, 0.84),
	}
	AttachFromLines(p, lines)

	for i, wantLine := range []string{"BANANAS 1.99", "WHOLE MILK 4.49"} {
		it := p.Items[i]
		if it.BBox == nil || !it.BBox.Valid() {
			t.Fatalf("item %d: no bbox", i)
		}
		if it.BBoxSource != "google_vision" {
			t.Fatalf("item %d: source = %q", i, it.BBoxSource)
		}
		if it.BBoxConfidence == nil || *it.BBoxConfidence != 0.92 {
			t.Fatalf("item %d: confidence = %v", i, it.BBoxConfidence)
		}
		if it.BBoxDebug == nil || it.BBoxDebug.MatchedLine != wantLine {
			t.Fatalf("item %d: debug = %+v", i, it.BBoxDebug)
		}
		if it.BBoxDebug.Mode != ModeNamePrice {
			t.Fatalf("item %d: mode = %q", i, it.BBoxDebug.Mode)
		}
	}
}

func TestAttachFromLines_NoLineReusedTwice(t *testing.T) {
	// Two identical items; the single matching line may only serve one.
	p := payloadWithItems(
		receipt.Item{Name: "Soda", Price: 2.50},
		receipt.Item{Name: "Soda", Price: 2.50},
	)
	lines := []vision.Line{
		line("SODA 2.50", 0.1, 0.30, 0.9, 0.34),
	}
	AttachFromLines(p, lines)

	matched := 0
	for _, it := range p.Items {
		if it.BBox != nil {
			matched++
		}
	}
	if matched != 1 {
		t.Fatalf("matched %d items against one line, want 1", matched)
	}
}

func TestAttachFromLines_StitchesSplitRow(t *testing.T) {
	// Name and price OCRed as two lines at near-identical heights.
	p := payloadWithItems(receipt.Item{Name: "Orange Juice", Price: 5.29})
	lines := []vision.Line{
		line("ORANGE JUICE", 0.05, 0.300, 0.45, 0.340),
		line("5.29", 0.70, 0.305, 0.90, 0.345),
	}
	AttachFromLines(p, lines)

	it := p.Items[0]
	if it.BBox == nil {
		t.Fatal("no bbox attached")
	}
	if it.BBoxDebug == nil || it.BBoxDebug.MatchedLine != "ORANGE JUICE | 5.29" {
		t.Fatalf("debug = %+v", it.BBoxDebug)
	}
	// Union must span both pieces.
	if it.BBox.X0 > 0.05+1e-9 || it.BBox.X1 < 0.90-1e-9 {
		t.Fatalf("union box too small: %+v", it.BBox)
	}
}

func TestAttachFromLines_MonotonicY(t *testing.T) {
	// A duplicate of item 2's line sits above item 1's match; after item 1
	// matches lower on the receipt, the high duplicate is out of reach.
	p := payloadWithItems(
		receipt.Item{Name: "Bread", Price: 2.49},
		receipt.Item{Name: "Eggs", Price: 3.99},
	)
	lines := []vision.Line{
		line("EGGS 3.99", 0.1, 0.10, 0.9, 0.14),
		line("BREAD 2.49", 0.1, 0.50, 0.9, 0.54),
		line("EGGS 3.99", 0.1, 0.60, 0.9, 0.64),
	}
	AttachFromLines(p, lines)

	if p.Items[0].BBox == nil || p.Items[1].BBox == nil {
		t.Fatalf("items not matched: %+v", p.Items)
	}
	if p.Items[1].BBox.Y0 < p.Items[0].BBox.Y0 {
		t.Fatalf("second item matched above first: %+v vs %+v", p.Items[1].BBox, p.Items[0].BBox)
	}
}

func TestAttachFromLines_PriceOnlyFallback(t *testing.T) {
	// OCR mangled the name beyond recognition; the unique price still anchors.
	p := payloadWithItems(receipt.Item{Name: "Croissant", Price: 3.75})
	lines := []vision.Line{
		line("STORE 1234", 0.1, 0.05, 0.9, 0.09),
		line("CRXSSNT 3.75", 0.1, 0.50, 0.9, 0.54),
	}
	AttachFromLines(p, lines)

	it := p.Items[0]
	if it.BBox == nil {
		t.Fatal("no bbox attached")
	}
	if it.BBoxDebug == nil || it.BBoxDebug.Mode != ModePriceOnly {
		t.Fatalf("debug = %+v", it.BBoxDebug)
	}
}

func TestAttachFromLines_SkipsUnmatchable(t *testing.T) {
	p := payloadWithItems(
		receipt.Item{Name: "", Price: 2.00},
		receipt.Item{Name: "Gift Card", Price: 0},
		receipt.Item{Name: "Mystery", Price: 9.99},
	)
	lines := []vision.Line{
		line("SOMETHING ELSE 1.23", 0.1, 0.30, 0.9, 0.34),
	}
	AttachFromLines(p, lines)

	for i, it := range p.Items {
		if it.BBox != nil {
			t.Fatalf("item %d unexpectedly matched: %+v", i, it)
		}
	}
}
