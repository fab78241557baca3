// Package quantity infers (quantity, unit price) pairs for extracted line
// items from candidate receipt lines. It is a fallback for under-specified
// model output, never an override of it.
package quantity

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/finlens/receipt-extract/internal/match"
)

// Confidence tiers an inference by how much arithmetic corroboration it has.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Inference is the result of a successful quantity/unit-price read.
// Request-scoped; it only ever feeds an item's quantity/unit_price fields.
type Inference struct {
	Qty        int
	Unit       *float64
	Confidence Confidence
}

var (
	// "<qty> <name> <unit> <total>" with money-formatted unit and total.
	reQtyUnitTotal = regexp.MustCompile(`^(\d{1,3})\s*(?:x|X)?\s+(.+?)\s+(-?\$?\s*\d+(?:,\d{3})*(?:\.\d{1,2}))\s+(-?\$?\s*\d+(?:,\d{3})*(?:\.\d{1,2}))\s*$`)
	// Inline "<qty> @ <unit>" or "<qty> x <unit>".
	reQtyAtUnit = regexp.MustCompile(`\b(\d{1,3})\s*(?:@|x|X)\s*(-?\$?\s*\d+(?:,\d{3})*(?:\.\d{1,2}))\b`)
	// Bare leading 1-3 digit integer.
	reLeadingQty = regexp.MustCompile(`^(\d{1,3})\s*(?:x|X)?\s+(.+)$`)
	// Size/unit tokens that disqualify a leading number as a quantity
	// ("2 % milk", "12 oz", "3 pack").
	reSizeToken = regexp.MustCompile(`^(pc|pcs|ct|count|oz|fl\s?oz|lb|lbs|g|kg|mg|ml|l|liter|litre|pack|pk|dozen|dz|rolls?|rl|roll|bottle|btl|cans?|can|gal|qt|pt|pt\.|qt\.|gal\.)\b`)
)

func looksLikeSizeToken(rest string) bool {
	r := strings.ToLower(strings.TrimSpace(rest))
	if strings.HasPrefix(r, "%") {
		return true
	}
	return reSizeToken.MatchString(r)
}

// QtyFromLine reads a bare leading integer as a quantity, guarding against
// size descriptors. Returns 0 when the line does not start with a quantity.
func QtyFromLine(lineText string) int {
	m := reLeadingQty.FindStringSubmatch(strings.TrimSpace(lineText))
	if m == nil {
		return 0
	}
	qty, err := strconv.Atoi(m[1])
	if err != nil || qty <= 0 {
		return 0
	}
	if looksLikeSizeToken(m[2]) {
		return 0
	}
	return qty
}

// InferFromLine tries the patterns in strict priority order and returns the
// first that holds, or nil so the caller leaves the model's own values alone:
//
//  1. "<qty> <name> <unit> <total>" where total ~= price (±0.06) and
//     qty*unit ~= total (±0.08) → high confidence.
//  2. "<qty> @ <unit>" / "<qty> x <unit>" where qty*unit ~= price (±0.08)
//     → high confidence.
//  3. bare leading integer, unit derived as price/qty → medium confidence.
func InferFromLine(lineText string, itemPrice float64) *Inference {
	line := strings.TrimSpace(lineText)
	if line == "" {
		return nil
	}

	if m := reQtyUnitTotal.FindStringSubmatch(line); m != nil {
		qty, err := strconv.Atoi(m[1])
		rest := strings.TrimSpace(m[2])
		unit, unitOK := match.ParseNumber(m[3])
		total, totalOK := match.ParseNumber(m[4])
		if err == nil && qty > 0 && unitOK && unit > 0 && totalOK && total > 0 &&
			!looksLikeSizeToken(rest) &&
			match.ApproxMoneyEqual(total, itemPrice, 0.06) &&
			match.ApproxMoneyEqual(float64(qty)*unit, total, 0.08) {
			u := match.RoundMoney(unit)
			return &Inference{Qty: qty, Unit: &u, Confidence: ConfidenceHigh}
		}
	}

	if m := reQtyAtUnit.FindStringSubmatch(line); m != nil {
		qty, err := strconv.Atoi(m[1])
		unit, unitOK := match.ParseNumber(m[2])
		if err == nil && qty > 0 && unitOK && unit > 0 {
			total := match.RoundMoney(float64(qty) * unit)
			if match.ApproxMoneyEqual(total, itemPrice, 0.08) {
				u := match.RoundMoney(unit)
				return &Inference{Qty: qty, Unit: &u, Confidence: ConfidenceHigh}
			}
		}
	}

	qty := QtyFromLine(line)
	if qty <= 0 {
		return nil
	}
	u := match.RoundMoney(itemPrice / float64(qty))
	return &Inference{Qty: qty, Unit: &u, Confidence: ConfidenceMedium}
}
