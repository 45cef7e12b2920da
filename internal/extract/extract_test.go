package extract

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error
	calls  []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return f.stdout, f.stderr, f.err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeDOCX(t *testing.T, paragraphs ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recipe.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create docx: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create document.xml: %v", err)
	}
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`<w:p></w:p></w:body></w:document>`)
	if _, err := w.Write([]byte(body.String())); err != nil {
		t.Fatalf("write document.xml: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	f.Close()
	return path
}

func TestExtractPlainText(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantText   string
		wantMethod string
	}{
		{"utf8", []byte("Tomato Pasta\n2 cups flour\n"), "Tomato Pasta\n2 cups flour", MethodDirect},
		{"utf8 with bom", []byte("\xef\xbb\xbfCrème brûlée"), "Crème brûlée", MethodDirect},
		{"latin1 fallback", []byte("Cr\xe8me br\xfbl\xe9e"), "Crème brûlée", MethodDirectLat1},
	}
	e := New(Config{}, &fakeRunner{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "recipe.txt", tt.data)
			text, method, err := e.ExtractText(context.Background(), path)
			if err != nil {
				t.Fatalf("ExtractText() error = %v", err)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if method != tt.wantMethod {
				t.Errorf("method = %q, want %q", method, tt.wantMethod)
			}
		})
	}
}

func TestExtractDOCX(t *testing.T) {
	path := writeDOCX(t, "Garlic Bread", "1 baguette", "4 cloves garlic")
	text, method, err := New(Config{}, &fakeRunner{}).ExtractText(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if method != MethodDOCX {
		t.Errorf("method = %q, want %q", method, MethodDOCX)
	}
	if want := "Garlic Bread\n1 baguette\n4 cloves garlic"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestExtractDOCUsesAntiword(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("Old Family Stew\n")}
	path := writeFile(t, "stew.doc", []byte{0xd0, 0xcf, 0x11, 0xe0})

	text, method, err := New(Config{AntiwordPath: "/usr/bin/antiword"}, runner).ExtractText(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "Old Family Stew" || method != MethodAntiword {
		t.Errorf("got (%q, %q)", text, method)
	}
	if len(runner.calls) != 1 || !strings.HasPrefix(runner.calls[0], "/usr/bin/antiword") {
		t.Errorf("runner calls = %v", runner.calls)
	}
}

func TestExtractDOCFailsLoudly(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1"), stderr: []byte("not a Word document")}
	path := writeFile(t, "broken.doc", []byte("junk"))

	_, _, err := New(Config{}, runner).ExtractText(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "not a Word document") {
		t.Errorf("ExtractText() error = %v, want antiword stderr", err)
	}
}

func TestExtractPDFFallsBackToCommand(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("Pancakes\n200 g flour\n")}
	path := writeFile(t, "pancakes.pdf", []byte("this is not a pdf"))

	text, method, err := New(Config{}, runner).ExtractText(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if method != MethodPDFToText {
		t.Errorf("method = %q, want %q", method, MethodPDFToText)
	}
	if text != "Pancakes\n200 g flour" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractErrors(t *testing.T) {
	e := New(Config{}, &fakeRunner{})
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing file", filepath.Join(dir, "nope.txt"), ErrNotFound},
		{"whitespace only", writeFile(t, "blank.txt", []byte(" \n\t\n")), ErrEmptyContent},
		{"binary unknown extension", writeFile(t, "image.bin", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")), ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.ExtractText(context.Background(), tt.path)
			if !errors.Is(err, tt.want) {
				t.Errorf("ExtractText() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFileInfo(t *testing.T) {
	path := writeFile(t, "soup.txt", []byte("Minestrone"))
	info, err := New(Config{}, nil).FileInfo(path)
	if err != nil {
		t.Fatalf("FileInfo() error = %v", err)
	}
	if info.Filename != "soup.txt" || info.SizeBytes != 10 || info.MimeType != MimeText {
		t.Errorf("FileInfo() = %+v", info)
	}

	if _, err := New(Config{}, nil).FileInfo(filepath.Join(t.TempDir(), "x.txt")); !errors.Is(err, ErrNotFound) {
		t.Errorf("FileInfo(missing) error = %v, want ErrNotFound", err)
	}
}
