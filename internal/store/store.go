// Package store persists extraction results in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/finlens/receipt-extract/internal/common"
	"github.com/finlens/receipt-extract/internal/extract"
	"github.com/finlens/receipt-extract/internal/receipt"
)

const schema = `
CREATE TABLE IF NOT EXISTS receipts (
	id                          TEXT PRIMARY KEY,
	image_url                   TEXT NOT NULL DEFAULT '',
	merchant_name               TEXT,
	merchant_address            TEXT,
	transaction_date            TEXT,
	total_amount                REAL,
	subtotal_amount             REAL,
	tax_amount                  REAL,
	currency                    TEXT,
	raw_text                    TEXT,
	summary                     TEXT,
	ocr_model_version           TEXT,
	extraction_confidence_total REAL,
	status                      TEXT NOT NULL DEFAULT 'pending',
	error_message               TEXT,
	created_at                  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	updated_at                  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE TABLE IF NOT EXISTS receipt_items (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	receipt_id      TEXT NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
	line_index      INTEGER NOT NULL,
	name            TEXT NOT NULL,
	price           REAL NOT NULL,
	quantity        REAL,
	unit_price      REAL,
	confidence      REAL,
	category        TEXT,
	bbox            TEXT,
	bbox_confidence REAL,
	bbox_source     TEXT
);

CREATE INDEX IF NOT EXISTS idx_receipt_items_receipt ON receipt_items(receipt_id);

CREATE TABLE IF NOT EXISTS receipt_extractions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	receipt_id     TEXT NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
	extracted_json TEXT NOT NULL,
	raw_text       TEXT,
	summary        TEXT,
	strategy       TEXT,
	model          TEXT,
	created_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE TABLE IF NOT EXISTS receipt_amount_breakdowns (
	receipt_id TEXT PRIMARY KEY REFERENCES receipts(id) ON DELETE CASCADE,
	subtotal   REAL,
	tax        REAL,
	discount   REAL,
	tip        REAL,
	fees       REAL
);
`

// Store wraps the SQLite database holding extraction results.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the database at path, applies pragmas and ensures
// the schema exists. Use ":memory:" in tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.WrapError(err, "open sqlite")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, common.WrapError(err, "apply schema")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, common.WrapError(err, "ping")
	}
	return &Store{db: db, log: logger}, nil
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// SaveResult persists a pipeline result: receipt header fields, line items,
// an extraction snapshot and the amount breakdown when present. The receipt
// row is upserted so re-extraction overwrites previous fields; items are
// replaced wholesale. Returns the receipt ID (generated when the result has
// none).
func (s *Store) SaveResult(ctx context.Context, imageURL string, res *extract.Result) (string, error) {
	if res == nil || res.Extracted == nil {
		return "", fmt.Errorf("nothing to save")
	}
	id := res.ReceiptID
	if id == "" {
		id = uuid.New().String()
	}
	p := res.Extracted

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ext := p.Extractions
	var confTotal *float64
	if ext.Total != nil {
		c := ext.Total.Confidence
		confTotal = &c
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (
			id, image_url, merchant_name, merchant_address, transaction_date,
			total_amount, subtotal_amount, tax_amount, currency,
			raw_text, summary, ocr_model_version, extraction_confidence_total,
			status, error_message, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'ready', NULL, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(id) DO UPDATE SET
			image_url                   = excluded.image_url,
			merchant_name               = excluded.merchant_name,
			merchant_address            = excluded.merchant_address,
			transaction_date            = excluded.transaction_date,
			total_amount                = excluded.total_amount,
			subtotal_amount             = excluded.subtotal_amount,
			tax_amount                  = excluded.tax_amount,
			currency                    = excluded.currency,
			raw_text                    = excluded.raw_text,
			summary                     = excluded.summary,
			ocr_model_version           = excluded.ocr_model_version,
			extraction_confidence_total = excluded.extraction_confidence_total,
			status                      = 'ready',
			error_message               = NULL,
			updated_at                  = excluded.updated_at`,
		id, imageURL,
		nullText(ext.Merchant), nullText(ext.Address), nullText(ext.Date),
		nullNumber(ext.Total), nullNumber(ext.Subtotal), nullNumber(ext.Tax), nullText(ext.Currency),
		nullString(p.RawText), nullString(p.Summary),
		fmt.Sprintf("%s-%s", res.Model, res.Strategy), confTotal,
	)
	if err != nil {
		return "", fmt.Errorf("upsert receipt: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM receipt_items WHERE receipt_id = ?`, id); err != nil {
		return "", fmt.Errorf("clear items: %w", err)
	}
	for i, it := range p.Items {
		idx := i
		if it.LineIndex != nil {
			idx = *it.LineIndex
		}
		var bboxJSON *string
		if it.BBox != nil {
			if bs, err := json.Marshal(it.BBox); err == nil {
				v := string(bs)
				bboxJSON = &v
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO receipt_items (
				receipt_id, line_index, name, price, quantity, unit_price,
				confidence, category, bbox, bbox_confidence, bbox_source
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, idx, it.Name, float64(it.Price),
			numberPtr(it.Quantity), numberPtr(it.UnitPrice),
			it.Confidence, nullString(it.Category),
			bboxJSON, it.BBoxConfidence, nullString(it.BBoxSource),
		)
		if err != nil {
			return "", fmt.Errorf("insert item %d: %w", i, err)
		}
	}

	snapshot, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipt_extractions (receipt_id, extracted_json, raw_text, summary, strategy, model)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(snapshot), nullString(p.RawText), nullString(p.Summary),
		string(res.Strategy), res.Model,
	)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}

	if b := p.AmountBreakdown; b != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO receipt_amount_breakdowns (receipt_id, subtotal, tax, discount, tip, fees)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(receipt_id) DO UPDATE SET
				subtotal = excluded.subtotal,
				tax      = excluded.tax,
				discount = excluded.discount,
				tip      = excluded.tip,
				fees     = excluded.fees`,
			id, numberPtr(b.Subtotal), numberPtr(b.Tax), numberPtr(b.Discount), numberPtr(b.Tip), numberPtr(b.Fees),
		)
		if err != nil {
			return "", fmt.Errorf("upsert breakdown: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	s.log.Info("store.save", "receipt_id", id, "items", len(p.Items))
	return id, nil
}

// MarkFailed records an extraction failure against a receipt row, creating
// the row if needed.
func (s *Store) MarkFailed(ctx context.Context, receiptID, imageURL, message string) error {
	if receiptID == "" {
		receiptID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (id, image_url, status, error_message, updated_at)
		VALUES (?, ?, 'failed', ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(id) DO UPDATE SET
			status        = 'failed',
			error_message = excluded.error_message,
			updated_at    = excluded.updated_at`,
		receiptID, imageURL, message,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Receipt is one stored receipt header row.
type Receipt struct {
	ID              string
	ImageURL        string
	MerchantName    string
	MerchantAddress string
	TransactionDate string
	TotalAmount     *float64
	SubtotalAmount  *float64
	TaxAmount       *float64
	Currency        string
	Summary         string
	Status          string
	CreatedAt       string
}

// ListReceipts returns stored receipts, newest first.
func (s *Store) ListReceipts(ctx context.Context) ([]Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, image_url,
		       COALESCE(merchant_name, ''), COALESCE(merchant_address, ''),
		       COALESCE(transaction_date, ''),
		       total_amount, subtotal_amount, tax_amount,
		       COALESCE(currency, ''), COALESCE(summary, ''),
		       status, created_at
		FROM receipts
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		var r Receipt
		if err := rows.Scan(
			&r.ID, &r.ImageURL, &r.MerchantName, &r.MerchantAddress, &r.TransactionDate,
			&r.TotalAmount, &r.SubtotalAmount, &r.TaxAmount,
			&r.Currency, &r.Summary, &r.Status, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullText(f *receipt.TextField) *string {
	if f == nil || f.Value == nil || *f.Value == "" {
		return nil
	}
	return f.Value
}

func nullNumber(f *receipt.NumberField) *float64 {
	if f == nil || f.Value == nil {
		return nil
	}
	v := float64(*f.Value)
	return &v
}

func numberPtr(n *receipt.Number) *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
