package vision

import (
	"math"
	"regexp"
	"sort"

	"github.com/finlens/receipt-extract/internal/geometry"
)

// Token is one OCR word with its pixel bounding box.
type Token struct {
	Text           string
	X0, Y0, X1, Y1 float64
}

func (t Token) cx() float64 { return (t.X0 + t.X1) / 2 }
func (t Token) cy() float64 { return (t.Y0 + t.Y1) / 2 }

// Line is a reconstructed receipt row with a normalized bounding box. Box is
// nil when the row's geometry failed the normalized-box invariant.
type Line struct {
	Text string
	Box  *geometry.Box
}

var (
	reTokenMoney = regexp.MustCompile(`\$?\d+(?:[.,]\d{2})`)
	reTokenWord  = regexp.MustCompile(`[a-zA-Z]{3,}`)
)

type rowGroup struct {
	cy     float64
	y0, y1 float64
	tokens []Token
}

// ReconstructLines clusters word tokens into receipt rows and emits text
// lines with normalized bounding boxes. The clustering stays tight so two
// physically distinct rows never bridge into one group; rows that OCR split
// into a name column and a money column are merged back afterwards.
func ReconstructLines(tokens []Token, pageW, pageH float64) []Line {
	if len(tokens) == 0 || pageW <= 0 || pageH <= 0 {
		return nil
	}

	sorted := make([]Token, len(tokens))
	copy(sorted, tokens)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].cy() != sorted[j].cy() {
			return sorted[i].cy() < sorted[j].cy()
		}
		return sorted[i].cx() < sorted[j].cx()
	})

	medianH := medianTokenHeight(sorted, pageH)

	// Unusually tall tokens are usually diagonal watermarks or fold artifacts
	// that blow up row boxes.
	maxTokenH := math.Max(medianH*3.2, pageH*0.06)
	filtered := sorted[:0:0]
	for _, t := range sorted {
		if t.Y1-t.Y0 <= maxTokenH {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	yTol := math.Max(4, math.Min(18, medianH*0.85))
	maxSpan := math.Max(medianH*2.6, yTol*2.8)

	var groups []*rowGroup
	for _, tok := range filtered {
		bestIdx := -1
		bestDy := math.Inf(1)
		for i, g := range groups {
			dy := math.Abs(tok.cy() - g.cy)
			if dy < bestDy {
				bestDy = dy
				bestIdx = i
			}
		}
		if bestIdx != -1 && bestDy <= yTol {
			g := groups[bestIdx]
			nextY0 := math.Min(g.y0, tok.Y0)
			nextY1 := math.Max(g.y1, tok.Y1)
			if nextY1-nextY0 <= maxSpan {
				g.tokens = append(g.tokens, tok)
				g.cy = (g.cy*float64(len(g.tokens)-1) + tok.cy()) / float64(len(g.tokens))
				g.y0 = nextY0
				g.y1 = nextY1
				continue
			}
		}
		groups = append(groups, &rowGroup{cy: tok.cy(), y0: tok.Y0, y1: tok.Y1, tokens: []Token{tok}})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].cy < groups[j].cy })
	merged := mergeSplitColumns(groups, medianH)

	lines := make([]Line, 0, len(merged))
	for _, g := range merged {
		lines = append(lines, groupToLine(g, pageW, pageH))
	}
	out := lines[:0]
	for _, l := range lines {
		if l.Text != "" {
			out = append(out, l)
		}
	}
	return out
}

func medianTokenHeight(tokens []Token, pageH float64) float64 {
	heights := make([]float64, 0, len(tokens))
	for _, t := range tokens {
		if h := t.Y1 - t.Y0; h > 0 && !math.IsInf(h, 0) {
			heights = append(heights, h)
		}
	}
	if len(heights) == 0 {
		return math.Max(8, pageH*0.012)
	}
	sort.Float64s(heights)
	return heights[len(heights)/2]
}

// mergeSplitColumns re-joins adjacent groups that are extremely close in Y,
// column-disjoint in X, and jointly look like a "word + money" pair — the
// signature of OCR line-break detection splitting a name/price row.
func mergeSplitColumns(groups []*rowGroup, medianH float64) []*rowGroup {
	mergeTol := math.Max(3, math.Min(14, medianH*0.45))

	var merged []*rowGroup
	for _, g := range groups {
		if len(merged) == 0 {
			merged = append(merged, g)
			continue
		}
		last := merged[len(merged)-1]
		if math.Abs(g.cy-last.cy) > mergeTol {
			merged = append(merged, g)
			continue
		}

		lastX1, gX0 := math.Inf(-1), math.Inf(1)
		lastY0, lastY1 := math.Inf(1), math.Inf(-1)
		gY0, gY1 := math.Inf(1), math.Inf(-1)
		for _, t := range last.tokens {
			lastX1 = math.Max(lastX1, t.X1)
			lastY0 = math.Min(lastY0, t.Y0)
			lastY1 = math.Max(lastY1, t.Y1)
		}
		for _, t := range g.tokens {
			gX0 = math.Min(gX0, t.X0)
			gY0 = math.Min(gY0, t.Y0)
			gY1 = math.Max(gY1, t.Y1)
		}

		overlap := math.Max(0, math.Min(lastY1, gY1)-math.Max(lastY0, gY0))
		minHeight := math.Max(1, math.Min(lastY1-lastY0, gY1-gY0))
		overlapRatio := overlap / minHeight

		lastHasMoney, lastHasWord := groupSignature(last.tokens)
		gHasMoney, gHasWord := groupSignature(g.tokens)

		columnSeparated := lastX1 < gX0
		splitColumns := columnSeparated && overlapRatio >= 0.5 &&
			((lastHasWord && gHasMoney) || (gHasWord && lastHasMoney))
		if !splitColumns {
			merged = append(merged, g)
			continue
		}

		last.tokens = append(last.tokens, g.tokens...)
		last.cy = (last.cy + g.cy) / 2
	}
	return merged
}

func groupSignature(tokens []Token) (hasMoney, hasWord bool) {
	for _, t := range tokens {
		if reTokenMoney.MatchString(t.Text) {
			hasMoney = true
		}
		if reTokenWord.MatchString(t.Text) {
			hasWord = true
		}
	}
	return
}

// groupToLine joins the group's tokens left-to-right and computes the row box
// from trimmed percentile bounds (2nd/98th on X, 10th/90th on Y) when the
// group is large enough that a single outlier token could inflate the box.
func groupToLine(g *rowGroup, pageW, pageH float64) Line {
	toks := g.tokens
	sort.Slice(toks, func(i, j int) bool { return toks[i].X0 < toks[j].X0 })

	text := ""
	for i, t := range toks {
		if i > 0 {
			text += " "
		}
		text += t.Text
	}

	xs0 := make([]float64, len(toks))
	ys0 := make([]float64, len(toks))
	xs1 := make([]float64, len(toks))
	ys1 := make([]float64, len(toks))
	for i, t := range toks {
		xs0[i], ys0[i], xs1[i], ys1[i] = t.X0, t.Y0, t.X1, t.Y1
	}
	sort.Float64s(xs0)
	sort.Float64s(ys0)
	sort.Float64s(xs1)
	sort.Float64s(ys1)

	useTrim := len(toks) >= 6
	var x0, y0, x1, y1 float64
	if useTrim {
		x0 = percentile(xs0, 0.02)
		y0 = percentile(ys0, 0.1)
		x1 = percentile(xs1, 0.98)
		y1 = percentile(ys1, 0.9)
	} else {
		x0, y0 = xs0[0], ys0[0]
		x1, y1 = xs1[len(xs1)-1], ys1[len(ys1)-1]
	}

	box := geometry.Box{X0: x0 / pageW, Y0: y0 / pageH, X1: x1 / pageW, Y1: y1 / pageH}
	line := Line{Text: text}
	if box.Valid() {
		line.Box = &box
	}
	return line
}

func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Floor(float64(len(sorted)-1) * p))
	if idx < 0 {
		idx = 0
	}
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
