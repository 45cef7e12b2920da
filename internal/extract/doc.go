package extract

import (
	"context"
	"fmt"
	"strings"
)

const MethodAntiword = "antiword"

// extractDOC handles legacy Word files through antiword. It fails loudly when
// the tool is missing or cannot read the document.
func (e *Extractor) extractDOC(ctx context.Context, path string) (string, string, error) {
	stdout, stderr, err := e.runner.Run(ctx, e.antiword, "-w", "0", path)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return "", "", fmt.Errorf("legacy .doc extraction via %s failed: %s", e.antiword, msg)
	}
	return string(stdout), MethodAntiword, nil
}
