package store

import (
	"context"
	"testing"

	"github.com/finlens/receipt-extract/internal/extract"
	"github.com/finlens/receipt-extract/internal/geometry"
	"github.com/finlens/receipt-extract/internal/receipt"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	// Every connection to :memory: is a distinct database.
	s.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func sampleResult() *extract.Result {
	return &extract.Result{
		Provider: "dedalus",
		Model:    "openai/gpt-5",
		Strategy: receipt.StrategyOCRThenChat,
		OCRUsed:  true,
		Extracted: &receipt.Payload{
			RawText: "WALMART\nMILK 4.49\nTOTAL 4.49",
			Summary: "Grocery run.",
			Extractions: receipt.Extractions{
				Merchant: &receipt.TextField{Value: strPtr("Walmart"), Confidence: 0.95},
				Total:    &receipt.NumberField{Value: receipt.NumberPtr(4.49), Confidence: 0.9},
				Currency: &receipt.TextField{Value: strPtr("USD"), Confidence: 0.9},
			},
			Items: []receipt.Item{
				{
					Name:     "Milk",
					Price:    4.49,
					Quantity: receipt.NumberPtr(1),
					BBox:     &geometry.Box{X0: 0.1, Y0: 0.4, X1: 0.9, Y1: 0.45},
				},
			},
			AmountBreakdown: &receipt.AmountBreakdown{
				Subtotal: receipt.NumberPtr(4.49),
			},
		},
	}
}

func TestSaveResult_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.SaveResult(ctx, "https://x/r.jpg", sampleResult())
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if id == "" {
		t.Fatal("empty receipt id")
	}

	recs, err := s.ListReceipts(ctx)
	if err != nil {
		t.Fatalf("ListReceipts: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d receipts, want 1", len(recs))
	}
	r := recs[0]
	if r.MerchantName != "Walmart" || r.Status != "ready" || r.Currency != "USD" {
		t.Fatalf("receipt row = %+v", r)
	}
	if r.TotalAmount == nil || *r.TotalAmount != 4.49 {
		t.Fatalf("total = %v", r.TotalAmount)
	}

	var items, snapshots int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM receipt_items WHERE receipt_id = ?`, id).Scan(&items); err != nil {
		t.Fatal(err)
	}
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM receipt_extractions WHERE receipt_id = ?`, id).Scan(&snapshots); err != nil {
		t.Fatal(err)
	}
	if items != 1 || snapshots != 1 {
		t.Fatalf("items=%d snapshots=%d", items, snapshots)
	}

	var bboxJSON string
	if err := s.DB().QueryRow(`SELECT bbox FROM receipt_items WHERE receipt_id = ?`, id).Scan(&bboxJSON); err != nil {
		t.Fatal(err)
	}
	if bboxJSON != "[0.1,0.4,0.9,0.45]" {
		t.Fatalf("bbox json = %q", bboxJSON)
	}
}

func TestSaveResult_ReextractionReplacesItems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res := sampleResult()
	res.ReceiptID = "fixed-id"
	if _, err := s.SaveResult(ctx, "https://x/r.jpg", res); err != nil {
		t.Fatalf("first save: %v", err)
	}

	res.Extracted.Items = append(res.Extracted.Items, receipt.Item{Name: "Bread", Price: 2.49})
	if _, err := s.SaveResult(ctx, "https://x/r.jpg", res); err != nil {
		t.Fatalf("second save: %v", err)
	}

	var receiptsCount, items int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM receipts`).Scan(&receiptsCount); err != nil {
		t.Fatal(err)
	}
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM receipt_items WHERE receipt_id = 'fixed-id'`).Scan(&items); err != nil {
		t.Fatal(err)
	}
	if receiptsCount != 1 {
		t.Fatalf("receipts = %d, want upsert into 1", receiptsCount)
	}
	if items != 2 {
		t.Fatalf("items = %d, want replaced set of 2", items)
	}
}

func TestMarkFailed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.MarkFailed(ctx, "r1", "https://x/r.jpg", "ocr backend down"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	var status, msg string
	if err := s.DB().QueryRow(`SELECT status, error_message FROM receipts WHERE id = 'r1'`).Scan(&status, &msg); err != nil {
		t.Fatal(err)
	}
	if status != "failed" || msg != "ocr backend down" {
		t.Fatalf("status=%q msg=%q", status, msg)
	}
}
