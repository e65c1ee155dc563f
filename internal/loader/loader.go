// Package loader turns uploaded document files into plain text and splits
// the text into overlapping chunks ready for embedding. Supported formats
// are PDF, DOCX and HTML, dispatched by filename extension.
package loader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ErrUnsupportedExtension is returned when a file's extension is not one of
// the supported document formats. Callers reject the upload before any
// storage side effects occur.
type ErrUnsupportedExtension struct {
	// Ext is the offending extension, including the leading dot.
	Ext string
}

func (e *ErrUnsupportedExtension) Error() string {
	return fmt.Sprintf("loader: unsupported file extension %q (supported: %s)", e.Ext, strings.Join(SupportedExtensions(), ", "))
}

// extractors maps a lowercase extension to its text extractor.
var extractors = map[string]func([]byte) (string, error){
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".html": extractHTML,
}

// SupportedExtensions returns the accepted extensions in a stable order.
func SupportedExtensions() []string {
	return []string{".docx", ".html", ".pdf"}
}

// Supported reports whether the filename's extension is a supported format.
// Matching is case-insensitive.
func Supported(filename string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ExtractFile reads the file at path and extracts its plain text. The
// filename determines the format; path may be a temp file with an unrelated
// name.
func ExtractFile(path, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	extract, ok := extractors[ext]
	if !ok {
		return "", &ErrUnsupportedExtension{Ext: ext}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("loader: read %s: %w", filename, err)
	}
	return extract(content)
}

func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("loader: open pdf: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("loader: extract pdf page %d: %w", i, err)
		}
		buf.WriteString(text)
		if i < numPages {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}

// wtTag matches <w:t>text</w:t> including attribute-bearing forms such as
// <w:t xml:space="preserve">.
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// extractDOCX extracts text from .docx bytes. A DOCX file is a zip whose
// word/document.xml holds the body; pulling every <w:t> text node keeps the
// content intact regardless of paragraph and run attributes.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("loader: docx is not a zip: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("loader: open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return "", fmt.Errorf("loader: read %s: %w", f.Name, err)
		}
		_ = rc.Close()
		docXML = buf.Bytes()
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("loader: word/document.xml not found")
	}

	parts := wtTag.FindAllSubmatch(docXML, -1)
	if len(parts) == 0 {
		return "", nil
	}
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.Write(bytes.TrimSpace(p[1]))
	}
	return strings.TrimSpace(b.String()), nil
}

// extractHTML extracts the visible text from an HTML document, skipping
// script and style elements.
func extractHTML(content []byte) (string, error) {
	tok := html.NewTokenizer(bytes.NewReader(content))
	var b strings.Builder
	skipDepth := 0
	for {
		tt := tok.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF terminates a well-formed document; the tokenizer is
			// tolerant of everything else.
			text := strings.Join(strings.Fields(b.String()), " ")
			return text, nil
		case html.StartTagToken:
			name, _ := tok.TagName()
			switch string(name) {
			case "script", "style":
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tok.TagName()
			switch string(name) {
			case "script", "style":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tok.Text())
				b.WriteByte(' ')
			}
		}
	}
}
