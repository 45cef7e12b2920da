package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/timmy/recipe-ingest/internal/domain"
)

var vulgarFractions = strings.NewReplacer(
	"½", " 1/2", "⅓", " 1/3", "⅔", " 2/3", "¼", " 1/4", "¾", " 3/4",
	"⅕", " 1/5", "⅛", " 1/8", "⅜", " 3/8", "⅝", " 5/8", "⅞", " 7/8",
	"⁄", "/",
)

var (
	mixedQty     = regexp.MustCompile(`^(\d+)\s+(\d+)\s*/\s*(\d+)`)
	fractionQty  = regexp.MustCompile(`^(\d+)\s*/\s*(\d+)`)
	decimalQty   = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)`)
	rangeSuffix  = regexp.MustCompile(`^\s*(?:-|–|to)\s*\d+(?:[.,]\d+)?(?:\s*/\s*\d+)?`)
	trailingNote = regexp.MustCompile(`[,\s]*\(?\b(to taste|as needed|optional)\)?\s*$`)
	leadingQty   = regexp.MustCompile(`^\s*(\d|[½⅓⅔¼¾⅕⅛⅜⅝⅞])`)
)

// countWords name the item being counted; the line keeps them as a note and
// the unit becomes "piece".
var countWords = map[string]bool{
	"clove": true, "cloves": true,
	"slice": true, "slices": true,
	"sprig": true, "sprigs": true,
	"stalk": true, "stalks": true,
}

var sizeWords = map[string]bool{
	"large": true, "small": true, "medium": true, "big": true,
}

// ParseLine splits a free-text ingredient line such as "2 cloves garlic, minced"
// into name, quantity, canonical unit and notes. A counted item without an
// explicit unit gets the unit "piece"; a line without a quantity gets no unit
// unless one is written out ("pinch of salt").
func ParseLine(line string) domain.ParsedIngredient {
	s := strings.ToLower(strings.TrimSpace(vulgarFractions.Replace(line)))
	s = strings.TrimSpace(s)

	var phrase string
	if m := trailingNote.FindStringSubmatchIndex(s); m != nil {
		phrase = s[m[2]:m[3]]
		s = strings.TrimSpace(s[:m[0]])
	}

	var tail string
	if i := noteComma(s); i >= 0 {
		tail = strings.TrimSpace(s[i+1:])
		s = strings.TrimSpace(s[:i])
	}

	qty, rest := parseQuantity(s)
	tokens := strings.Fields(rest)

	var notes []string
	takeSizes := func() {
		for len(tokens) > 1 && sizeWords[tokens[0]] {
			notes = append(notes, tokens[0])
			tokens = tokens[1:]
		}
	}

	takeSizes()
	var unit *string
	if len(tokens) > 1 {
		if canon, ok := CanonicalUnit(tokens[0]); ok {
			if countWords[strings.TrimSuffix(tokens[0], ".")] {
				notes = append(notes, tokens[0])
			}
			unit = &canon
			tokens = tokens[1:]
			if len(tokens) > 1 && tokens[0] == "of" {
				tokens = tokens[1:]
			}
		}
	}
	takeSizes()

	if unit == nil && qty != nil {
		piece := UnitPiece
		unit = &piece
	}

	if tail != "" {
		notes = append(notes, tail)
	}
	if phrase != "" {
		notes = append(notes, phrase)
	}

	ing := domain.ParsedIngredient{
		Name:          strings.Join(tokens, " "),
		QuantityValue: qty,
		Unit:          unit,
	}
	if len(notes) > 0 {
		joined := strings.Join(notes, ", ")
		ing.Notes = &joined
	}
	return ing
}

// noteComma returns the index of the first comma that separates notes, skipping
// decimal commas such as "1,5".
func noteComma(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != ',' {
			continue
		}
		if i > 0 && i+1 < len(s) && isDigit(s[i-1]) && isDigit(s[i+1]) {
			continue
		}
		return i
	}
	return -1
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// HasLeadingQuantity reports whether s starts with a number or vulgar fraction.
func HasLeadingQuantity(s string) bool {
	return leadingQty.MatchString(s)
}

// parseQuantity reads a leading integer, decimal, simple or mixed fraction.
// For a range only the lower bound is kept.
func parseQuantity(s string) (*float64, string) {
	var value float64
	var n int

	if m := mixedQty.FindStringSubmatch(s); m != nil {
		whole, _ := strconv.ParseFloat(m[1], 64)
		num, _ := strconv.ParseFloat(m[2], 64)
		den, _ := strconv.ParseFloat(m[3], 64)
		if den == 0 {
			return nil, s
		}
		value, n = whole+num/den, len(m[0])
	} else if m := fractionQty.FindStringSubmatch(s); m != nil {
		num, _ := strconv.ParseFloat(m[1], 64)
		den, _ := strconv.ParseFloat(m[2], 64)
		if den == 0 {
			return nil, s
		}
		value, n = num/den, len(m[0])
	} else if m := decimalQty.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil {
			return nil, s
		}
		value, n = v, len(m[0])
	} else {
		return nil, s
	}

	rest := s[n:]
	if loc := rangeSuffix.FindStringIndex(rest); loc != nil {
		rest = rest[loc[1]:]
	}
	return &value, strings.TrimSpace(rest)
}
