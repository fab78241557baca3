// Package match holds the numeric and text normalization primitives used by
// every fuzzy line/item comparison in the extraction pipeline.
package match

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reNonNumeric = regexp.MustCompile(`[^0-9.\-]`)
	reNonAlnum   = regexp.MustCompile(`[^a-z0-9 ]+`)
	reSpaces     = regexp.MustCompile(`\s+`)
	reMoney      = regexp.MustCompile(`-?\$?\s*\d+(?:,\d{3})*(?:\.\d{1,2})`)
)

// ocrConfusables folds the digit/letter pairs OCR engines most often swap.
// Matching only; never applied to display text.
var ocrConfusables = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"5", "s",
	"7", "t",
	"8", "b",
	"9", "g",
)

// ToNumber parses a number out of a string or numeric value, stripping
// currency symbols and thousands separators. The second return is false when
// no finite number can be recovered.
func ToNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		return ParseNumber(t.String())
	case string:
		return ParseNumber(t)
	default:
		return 0, false
	}
}

// ParseNumber is ToNumber for strings.
func ParseNumber(s string) (float64, bool) {
	cleaned := reNonNumeric.ReplaceAllString(s, "")
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// RoundMoney rounds to cents.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// ApproxMoneyEqual reports whether two amounts agree within tolerance.
func ApproxMoneyEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// NormalizeMatchText lowercases, strips everything outside [a-z0-9 ] and
// collapses whitespace. Base form for all fuzzy comparison.
func NormalizeMatchText(s string) string {
	out := strings.ToLower(s)
	out = reNonAlnum.ReplaceAllString(out, " ")
	out = reSpaces.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// NormalizeOCRishMatchText applies NormalizeMatchText and then corrects the
// common OCR digit/letter confusions, for matching purposes only.
func NormalizeOCRishMatchText(s string) string {
	return ocrConfusables.Replace(NormalizeMatchText(s))
}

// ScoreLineForItem scores how well an OCR line matches an extracted item:
// +6 for a normalized substring hit, up to +4 for token overlap, +3 when the
// line carries the item price (two decimals, one decimal, or rounded).
// No single signal dominates so partial matches stay discoverable.
func ScoreLineForItem(lineText, itemName string, itemPrice float64) float64 {
	line := NormalizeOCRishMatchText(lineText)
	item := NormalizeMatchText(itemName)
	if line == "" || item == "" {
		return 0
	}

	score := tokenScore(line, item)

	if itemPrice > 0 {
		p2 := strconv.FormatFloat(itemPrice, 'f', 2, 64)
		p1 := strconv.FormatFloat(itemPrice, 'f', 1, 64)
		p0 := strconv.Itoa(int(math.Round(itemPrice)))
		if strings.Contains(line, p2) || strings.Contains(line, p1) || strings.Contains(line, p0) {
			score += 3
		}
	}
	return score
}

// ScoreLineNameOnly is ScoreLineForItem without the price signal.
func ScoreLineNameOnly(lineText, itemName string) float64 {
	line := NormalizeOCRishMatchText(lineText)
	item := NormalizeMatchText(itemName)
	if line == "" || item == "" {
		return 0
	}
	return tokenScore(line, item)
}

func tokenScore(line, item string) float64 {
	var score float64
	if strings.Contains(line, item) {
		score += 6
	}

	itemTokens := strings.Fields(item)
	lineTokens := make(map[string]struct{})
	for _, t := range strings.Fields(line) {
		lineTokens[t] = struct{}{}
	}
	overlap := 0
	for _, t := range itemTokens {
		if _, ok := lineTokens[t]; ok {
			overlap++
		}
	}
	if len(itemTokens) > 0 {
		score += float64(overlap) / float64(len(itemTokens)) * 4
	}
	return score
}

// MoneyCandidates extracts currency-looking amounts from a line. Amounts must
// carry a decimal part, and plain integers are excluded so phone numbers and
// store IDs don't pose as prices; anything outside (0, 500) is dropped.
func MoneyCandidates(lineText string) []float64 {
	matches := reMoney.FindAllString(lineText, -1)
	var out []float64
	for _, m := range matches {
		n, ok := ParseNumber(m)
		if !ok {
			continue
		}
		if n <= 0 || n >= 500 {
			continue
		}
		out = append(out, n)
	}
	return out
}

// FormatMoney renders an amount with two decimals, for logs and exports.
func FormatMoney(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
