// Package bbox attaches bounding boxes to extracted line items, either by
// matching items against OCR line geometry or by merging a vision model's
// localization output.
package bbox

import (
	"fmt"
	"math"
	"sort"

	"github.com/finlens/receipt-extract/internal/geometry"
	"github.com/finlens/receipt-extract/internal/match"
	"github.com/finlens/receipt-extract/internal/receipt"
	"github.com/finlens/receipt-extract/internal/vision"
)

// Match modes recorded in bbox_debug.
const (
	ModeNamePrice = "name+price"
	ModeNameOnly  = "name-only"
	ModePriceOnly = "price-only"
)

const (
	lineMatchConfidence = 0.92
	acceptScore         = 2.5
	minNameScore        = 1.4
	monotonicSlack      = 0.012
)

type lineRecord struct {
	text  string
	box   geometry.Box
	y     float64
	x     float64
	money []float64
}

type candidate struct {
	score       float64
	lineIndex   int
	box         geometry.Box
	matchedText string
	neighbor    int // -1 when no neighbor line was stitched in
}

// AttachFromLines matches each item to an OCR line and fills bbox fields on
// the matched items in place. Matching is greedy and monotonic in Y: items
// are assumed to appear on the receipt in extraction order, so a match may
// not jump more than a small slack above the previous one. Lines are consumed
// at most once.
func AttachFromLines(p *receipt.Payload, lines []vision.Line) {
	if p == nil || len(p.Items) == 0 || len(lines) == 0 {
		return
	}

	records := buildRecords(lines)
	if len(records) == 0 {
		return
	}

	used := make(map[int]bool)
	prevY := math.Inf(-1)

	for i := range p.Items {
		item := &p.Items[i]
		price := float64(item.Price)
		if item.Name == "" || price <= 0 {
			continue
		}

		expectedY := float64(i+1) / float64(len(p.Items)+1)

		best, mode := findMatch(records, used, prevY, expectedY, item.Name, price)
		if best.lineIndex == -1 || best.score < acceptScore {
			continue
		}

		used[best.lineIndex] = true
		if best.neighbor >= 0 {
			used[best.neighbor] = true
		}
		prevY = records[best.lineIndex].y

		box := best.box
		conf := lineMatchConfidence
		item.BBox = &box
		item.BBoxConfidence = &conf
		item.BBoxSource = "google_vision"
		item.BBoxDebug = &receipt.BBoxDebug{
			MatchedLine: best.matchedText,
			Score:       math.Round(best.score*1000) / 1000,
			Mode:        mode,
		}
	}
}

func buildRecords(lines []vision.Line) []lineRecord {
	records := make([]lineRecord, 0, len(lines))
	for _, l := range lines {
		if l.Text == "" || l.Box == nil || !l.Box.Valid() {
			continue
		}
		records = append(records, lineRecord{
			text:  l.Text,
			box:   *l.Box,
			y:     l.Box.CenterY(),
			x:     l.Box.CenterX(),
			money: match.MoneyCandidates(l.Text),
		})
	}
	// Reading order: top to bottom, then left to right.
	sort.Slice(records, func(i, j int) bool {
		if records[i].y != records[j].y {
			return records[i].y < records[j].y
		}
		return records[i].x < records[j].x
	})
	return records
}

// findMatch runs the three strategies in order of trust: name+price, then
// price-only (strict tolerance, nearest expected Y), then name-only.
func findMatch(records []lineRecord, used map[int]bool, prevY, expectedY float64, name string, price float64) (candidate, string) {
	best := findBest(records, used, prevY, expectedY, name, price, true)
	if best.lineIndex != -1 {
		return best, ModeNamePrice
	}

	// Name matching fails on short or OCR-mangled names; a unique price line
	// near the expected position is still a safe anchor.
	if po := findPriceOnly(records, used, prevY, expectedY, price); po.lineIndex != -1 {
		return po, ModePriceOnly
	}

	return findBest(records, used, prevY, expectedY, name, price, false), ModeNameOnly
}

func findBest(records []lineRecord, used map[int]bool, prevY, expectedY float64, name string, price float64, requirePrice bool) candidate {
	best := candidate{score: math.Inf(-1), lineIndex: -1, neighbor: -1}

	for i, line := range records {
		if used[i] {
			continue
		}
		if line.y < prevY-monotonicSlack {
			continue
		}

		directPrice := hasPriceMatch(line.money, price, 0.05)
		neighbor := -1
		neighborText := ""
		box := line.box
		priceMatched := directPrice

		if !directPrice && requirePrice {
			// OCR sometimes splits one physical row into a name line and a
			// price line; stitch adjacent lines at near-identical heights.
			for _, j := range []int{i - 1, i + 1} {
				if j < 0 || j >= len(records) || used[j] {
					continue
				}
				other := records[j]
				if math.Abs(other.y-line.y) > 0.02 {
					continue
				}
				if !hasPriceMatch(other.money, price, 0.03) {
					continue
				}
				neighbor = j
				neighborText = other.text
				box = geometry.Union(line.box, other.box)
				priceMatched = true
				break
			}
		}

		if requirePrice && !priceMatched {
			continue
		}

		nameScore := match.ScoreLineNameOnly(line.text, name)
		if nameScore < minNameScore {
			continue
		}

		yPenalty := math.Min(1, math.Abs(line.y-expectedY)) * 1.2
		score := nameScore - yPenalty
		if priceMatched {
			score += 6
		}

		if score > best.score {
			matched := line.text
			if neighborText != "" {
				matched = fmt.Sprintf("%s | %s", line.text, neighborText)
			}
			best = candidate{score: score, lineIndex: i, box: box, matchedText: matched, neighbor: neighbor}
		}
	}
	return best
}

func findPriceOnly(records []lineRecord, used map[int]bool, prevY, expectedY float64, price float64) candidate {
	bestIdx := -1
	bestYDist := math.Inf(1)
	for i, line := range records {
		if used[i] {
			continue
		}
		if line.y < prevY-monotonicSlack {
			continue
		}
		if !hasPriceMatch(line.money, price, 0.02) {
			continue
		}
		yDist := math.Abs(line.y - expectedY)
		if yDist < bestYDist {
			bestYDist = yDist
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return candidate{lineIndex: -1, neighbor: -1}
	}
	return candidate{
		score:       6 - math.Min(1, bestYDist)*1.2,
		lineIndex:   bestIdx,
		box:         records[bestIdx].box,
		matchedText: records[bestIdx].text,
		neighbor:    -1,
	}
}

func hasPriceMatch(money []float64, price, tolerance float64) bool {
	for _, m := range money {
		if match.ApproxMoneyEqual(m, price, tolerance) {
			return true
		}
	}
	return false
}
