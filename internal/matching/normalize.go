package matching

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var (
	tokenRe = regexp.MustCompile(`[0-9a-zA-Z가-힣]+`)
	sizeRe  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(kg|mg|g|ml|l|ea|구|개|입|리터|밀리리터)`)
)

// Unit families for size comparison. Values from different families never
// compare equal (500g is not 500ml).
const (
	UnitGram = "g"
	UnitMl   = "ml"
	UnitEach = "ea"
)

// SizeMetric is a size normalized to its family base unit.
type SizeMetric struct {
	Value float64
	Unit  string
}

// Normalize lowercases text, folds full-width characters to their ASCII
// equivalents and strips everything except letters, digits and Hangul.
// The result is used for substring containment and similarity scoring.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	folded := width.Fold.String(norm.NFKC.String(text))
	lowered := strings.ToLower(folded)
	return strings.Join(tokenRe.FindAllString(lowered, -1), "")
}

// Tokenize splits text into lowercase alphanumeric/Hangul tokens.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	folded := width.Fold.String(norm.NFKC.String(text))
	tokens := tokenRe.FindAllString(strings.ToLower(folded), -1)
	return tokens
}

// ParseSizeMetric extracts the first size expression from free text and
// normalizes it to its unit family base: mass to grams, volume to
// milliliters, counts to "ea". Returns false when no size is present.
func ParseSizeMetric(text string) (SizeMetric, bool) {
	if text == "" {
		return SizeMetric{}, false
	}
	m := sizeRe.FindStringSubmatch(width.Fold.String(text))
	if m == nil {
		return SizeMetric{}, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return SizeMetric{}, false
	}

	switch strings.ToLower(m[2]) {
	case "kg":
		return SizeMetric{Value: value * 1000, Unit: UnitGram}, true
	case "g":
		return SizeMetric{Value: value, Unit: UnitGram}, true
	case "mg":
		return SizeMetric{Value: value / 1000, Unit: UnitGram}, true
	case "l", "리터":
		return SizeMetric{Value: value * 1000, Unit: UnitMl}, true
	case "ml", "밀리리터":
		return SizeMetric{Value: value, Unit: UnitMl}, true
	case "ea", "구", "개", "입":
		return SizeMetric{Value: value, Unit: UnitEach}, true
	}
	return SizeMetric{}, false
}

// SizeDistanceRatio returns the relative magnitude difference between two
// size strings, or a sentinel larger than any real ratio when the sizes are
// unparseable or belong to different unit families.
func SizeDistanceRatio(candidateSize, requestedSize string) float64 {
	const incomparable = 1e9

	c, cok := ParseSizeMetric(candidateSize)
	r, rok := ParseSizeMetric(requestedSize)
	if !cok || !rok {
		return incomparable
	}
	if c.Unit != r.Unit || r.Value <= 0 {
		return incomparable
	}
	diff := c.Value - r.Value
	if diff < 0 {
		diff = -diff
	}
	return diff / r.Value
}
