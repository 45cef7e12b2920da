package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/timmy/recipe-ingest/internal/logger"
)

const (
	MethodPDFParser = "pdf_parser"
	MethodPDFToText = "pdftotext"
)

// extractPDF reads the document page by page, then falls back to the
// pdftotext command when the library fails or finds no text.
func (e *Extractor) extractPDF(ctx context.Context, path string) (string, string, error) {
	text, err := readPDFPages(path)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, MethodPDFParser, nil
	}
	if err != nil {
		logger.CtxWarn(ctx, "PDF parser failed for %s, trying %s: %v", path, e.pdftotxt, err)
	}

	stdout, _, runErr := e.runner.Run(ctx, e.pdftotxt, "-layout", "-enc", "UTF-8", path, "-")
	if runErr != nil {
		if err != nil {
			return "", "", fmt.Errorf("pdf extraction failed: %v; %s: %w", err, e.pdftotxt, runErr)
		}
		return "", "", fmt.Errorf("%s: %w", e.pdftotxt, runErr)
	}
	return string(stdout), MethodPDFToText, nil
}

func readPDFPages(path string) (text string, err error) {
	// The pdf library panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			b.WriteString(pageText)
			b.WriteString("\n\n")
		}
	}
	return b.String(), nil
}
