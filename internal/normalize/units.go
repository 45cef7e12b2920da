package normalize

import "strings"

const UnitPiece = "piece"

var unitSynonyms = map[string]string{
	"g": "g", "gr": "g", "gram": "g", "gramme": "g",
	"kg": "kg", "kilo": "kg", "kilogram": "kg",
	"mg": "mg", "milligram": "mg",
	"ml": "ml", "milliliter": "ml", "millilitre": "ml",
	"cl": "cl", "centiliter": "cl",
	"dl": "dl", "deciliter": "dl",
	"l": "l", "liter": "l", "litre": "l",
	"tsp": "tsp", "teaspoon": "tsp",
	"tbsp": "tbsp", "tbs": "tbsp", "tablespoon": "tbsp",
	"cup": "cup",
	"oz": "oz", "ounce": "oz",
	"fl oz": "fl oz", "fluid ounce": "fl oz",
	"lb": "lb", "pound": "lb",
	"pint": "pint", "pt": "pint",
	"quart": "quart", "qt": "quart",
	"pc": "piece", "piece": "piece", "each": "piece",
	"clove": "piece", "slice": "piece", "sprig": "piece", "stalk": "piece",
	"can": "can", "tin": "can",
	"pinch": "pinch", "dash": "dash", "handful": "handful",
	"bunch": "bunch",
}

// descriptiveUnits carry meaning a canonical unit reference cannot, so the
// normalizer also keeps them in the preparation notes.
var descriptiveUnits = map[string]bool{
	"to taste": true, "pinch": true, "dash": true, "handful": true,
}

// unitless map to no unit reference at all.
var unitless = map[string]bool{
	"to taste": true, "taste": true, "as needed": true, "q.b.": true, "qb": true,
}

// CanonicalUnit maps free-text units to their canonical abbreviation. It
// tolerates case, periods ("tbsp.") and plurals ("cups", "pinches").
func CanonicalUnit(s string) (string, bool) {
	u := strings.ToLower(strings.TrimSpace(s))
	if u == "" {
		return "", false
	}
	if c, ok := unitSynonyms[u]; ok {
		return c, true
	}
	u = strings.Join(strings.Fields(strings.ReplaceAll(u, ".", "")), " ")
	if c, ok := unitSynonyms[u]; ok {
		return c, true
	}
	for _, suffix := range []string{"es", "s"} {
		if trimmed := strings.TrimSuffix(u, suffix); trimmed != u {
			if c, ok := unitSynonyms[trimmed]; ok {
				return c, true
			}
		}
	}
	return "", false
}
