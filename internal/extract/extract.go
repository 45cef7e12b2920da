// Package extract turns recipe documents (plain text, PDF, Word) into text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/timmy/recipe-ingest/internal/logger"
)

var (
	// ErrUnsupportedType is returned when neither the extension nor the sniffed
	// content type maps to a known extractor.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrNotFound is returned when the path does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrEmptyContent is returned when extraction yields only whitespace.
	ErrEmptyContent = errors.New("no text content extracted")
)

const (
	MimeText = "text/plain"
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeDOC  = "application/msword"
)

var extensionTypes = map[string]string{
	".txt":  MimeText,
	".text": MimeText,
	".pdf":  MimePDF,
	".docx": MimeDOCX,
	".doc":  MimeDOC,
}

// SupportedExtensions returns the file extensions the extractor understands.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionTypes))
	for ext := range extensionTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// IsSupported reports whether path has a supported extension.
func IsSupported(path string) bool {
	_, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// FileInfo is the metadata recorded on a job when it is created.
type FileInfo struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
}

// Config configures the command-line fallbacks.
type Config struct {
	PdfToTextPath string
	AntiwordPath  string
}

// Extractor dispatches to a format-specific extractor by MIME type.
type Extractor struct {
	runner   Runner
	pdftotxt string
	antiword string
}

// New creates an Extractor. A nil runner uses ExecRunner.
func New(cfg Config, runner Runner) *Extractor {
	if runner == nil {
		runner = ExecRunner{}
	}
	if cfg.PdfToTextPath == "" {
		cfg.PdfToTextPath = "pdftotext"
	}
	if cfg.AntiwordPath == "" {
		cfg.AntiwordPath = "antiword"
	}
	return &Extractor{runner: runner, pdftotxt: cfg.PdfToTextPath, antiword: cfg.AntiwordPath}
}

// FileInfo inspects path without modifying it.
func (e *Extractor) FileInfo(path string) (FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	mimeType, err := detectMime(path)
	if err != nil {
		// Unknown types still get a job record; extraction will reject them.
		mimeType = "application/octet-stream"
	}
	return FileInfo{
		Filename:  filepath.Base(path),
		SizeBytes: st.Size(),
		MimeType:  mimeType,
	}, nil
}

// ExtractText returns the text of path and the method that produced it.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", "", fmt.Errorf("stat %s: %w", path, err)
	}

	mimeType, err := detectMime(path)
	if err != nil {
		return "", "", err
	}

	var text, method string
	switch mimeType {
	case MimeText:
		text, method, err = extractPlainText(path)
	case MimePDF:
		text, method, err = e.extractPDF(ctx, path)
	case MimeDOCX:
		text, method, err = extractDOCX(path)
	case MimeDOC:
		text, method, err = e.extractDOC(ctx, path)
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	if err != nil {
		return "", "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", method, fmt.Errorf("%w: %s", ErrEmptyContent, filepath.Base(path))
	}

	logger.With(logger.Fields{
		logger.FieldSize: len(text),
		"method":         method,
	}).Debug(ctx, "Extracted text from %s", filepath.Base(path))
	return text, method, nil
}

// detectMime prefers the extension and falls back to content sniffing.
func detectMime(path string) (string, error) {
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t, nil
	}
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect type of %s: %w", path, err)
	}
	for current := m; current != nil; current = current.Parent() {
		switch {
		case current.Is(MimePDF):
			return MimePDF, nil
		case current.Is(MimeDOCX):
			return MimeDOCX, nil
		case current.Is(MimeDOC):
			return MimeDOC, nil
		case current.Is(MimeText):
			return MimeText, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, m.String())
}
