// Package address heuristically locates a merchant street address inside raw
// OCR text using lexical cues.
package address

import (
	"regexp"
	"strings"
)

var (
	reStreetToken = regexp.MustCompile(`(?i)\b(st|street|ave|avenue|rd|road|blvd|boulevard|dr|drive|ln|lane|way|hwy|highway|pl|place|ct|court|suite|ste|unit)\b`)
	rePOBox       = regexp.MustCompile(`(?i)\bp\.?\s*o\.?\s*box\b`)
	reDigit       = regexp.MustCompile(`\d`)
	reStateZip    = regexp.MustCompile(`\b[A-Z]{2}\b.*\b\d{5}(?:-\d{4})?\b`)
	reZip         = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
	reMetadata    = regexp.MustCompile(`(?i)(tel|phone|fax|www\.|http|receipt|invoice|order|subtotal|total|tax|cashier|server|date)`)
	rePhone       = regexp.MustCompile(`\b(?:\+?1[\s.\-]?)?(?:\(?\d{3}\)?[\s.\-]?)\d{3}[\s.\-]?\d{4}\b`)
	reSeparator   = regexp.MustCompile(`^[-_=*#.\s]{6,}$`)
	reDashRun     = regexp.MustCompile(`-{6,}`)
	reMDHeader    = regexp.MustCompile(`^#+\s+`)
	reTrailPunct  = regexp.MustCompile(`[,;]+$`)
)

func streetLike(line string) bool {
	if rePOBox.MatchString(line) {
		return true
	}
	return reDigit.MatchString(line) && reStreetToken.MatchString(line)
}

func cityStateZipLike(line string) bool {
	return reStateZip.MatchString(line) || reZip.MatchString(line)
}

// InferFromRawText scans OCR text for the merchant address. It filters out
// merchant-name duplicates, phone numbers, URLs, receipt metadata and
// separator rules, then takes the first street-like line plus up to two
// continuation lines, stopping at a city/state/ZIP line. Returns "" when no
// street-like line exists. Output never spans more than three physical lines.
func InferFromRawText(rawText, merchantName string) string {
	merchantLower := strings.ToLower(strings.TrimSpace(merchantName))

	var cleaned []string
	for _, raw := range strings.Split(rawText, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		line = strings.TrimSpace(reMDHeader.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if merchantLower != "" && (lower == merchantLower || strings.Contains(lower, merchantLower)) {
			continue
		}
		if reMetadata.MatchString(line) {
			continue
		}
		if rePhone.MatchString(line) {
			continue
		}
		if reSeparator.MatchString(line) || reDashRun.MatchString(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}

	start := -1
	for i, line := range cleaned {
		if streetLike(line) {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	var addr []string
	for i := start; i < len(cleaned) && len(addr) < 3; i++ {
		line := cleaned[i]
		addr = append(addr, strings.TrimSpace(reTrailPunct.ReplaceAllString(line, "")))
		if cityStateZipLike(line) {
			break
		}
	}
	if len(addr) == 0 {
		return ""
	}
	if len(addr) == 1 {
		return addr[0]
	}
	return addr[0] + ", " + strings.Join(addr[1:], ", ")
}
