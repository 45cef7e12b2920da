// Package langdetect gives a best-effort language guess for recipe text.
// Detection is advisory: it never fails, it only reports low confidence.
package langdetect

import (
	"regexp"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// MinTextLength is the shortest cleaned text worth running detection on.
const MinTextLength = 50

// DefaultThreshold is the confidence below which no translation is assumed.
const DefaultThreshold = 0.7

// Backend performs the raw detection on cleaned text.
type Backend interface {
	Detect(text string) (code string, confidence float64)
}

// WhatlangBackend detects languages with whatlanggo.
type WhatlangBackend struct{}

func (WhatlangBackend) Detect(text string) (string, float64) {
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return "", 0
	}
	return code, info.Confidence
}

// Detector strips recipe noise (quantities, temperatures, durations) before detection.
type Detector struct {
	backend   Backend
	threshold float64
}

// New returns a Detector. A nil backend disables detection.
func New(backend Backend, threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{backend: backend, threshold: threshold}
}

// NewDefault returns a Detector backed by whatlanggo.
func NewDefault() *Detector {
	return New(WhatlangBackend{}, DefaultThreshold)
}

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d+\s*(cups?|tbsp|tsp|oz|lbs?|kg|g|ml|l)\b`),
	regexp.MustCompile(`(?i)\d+\s*°\s*[CF]`),
	regexp.MustCompile(`(?i)\d+\s*minutes?`),
	regexp.MustCompile(`(?i)\d+\s*hours?`),
	regexp.MustCompile(`(?i)\d+\s*servings?`),
	regexp.MustCompile(`[^\p{L}\p{N}_\s]`),
}

// Clean removes measurement, temperature, time and serving noise plus
// punctuation, and collapses whitespace.
func Clean(text string) string {
	for _, re := range noisePatterns {
		text = re.ReplaceAllString(text, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}

// Detect returns an ISO 639-1 code and a confidence in [0,1]. It returns
// ("", 0) when there is no backend or too little informative text.
func (d *Detector) Detect(text string) (string, float64) {
	if d == nil || d.backend == nil || strings.TrimSpace(text) == "" {
		return "", 0
	}
	clean := Clean(text)
	if len([]rune(clean)) < MinTextLength {
		return "", 0
	}
	code, conf := d.backend.Detect(clean)
	if code == "" {
		return "", 0
	}
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return code, conf
}

// NeedsTranslation reports whether text is confidently in a language other
// than target. Low confidence or no detection means no translation.
func (d *Detector) NeedsTranslation(text, target string) bool {
	code, conf := d.Detect(text)
	if code == "" || conf < d.threshold {
		return false
	}
	return !strings.EqualFold(code, target)
}

// Threshold returns the confidence threshold used by NeedsTranslation.
func (d *Detector) Threshold() float64 {
	return d.threshold
}
