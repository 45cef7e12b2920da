package extract

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	MethodDirect     = "direct"
	MethodDirectLat1 = "direct_latin1"
)

// extractPlainText reads UTF-8 text, falling back to Latin-1 when the bytes
// are not valid UTF-8.
func extractPlainText(path string) (string, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), MethodDirect, nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", fmt.Errorf("decode %s as latin-1: %w", path, err)
	}
	return string(decoded), MethodDirectLat1, nil
}
