package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageExtractor maps a stored document file to its per-page raw text.
// Page numbers are 1-based.
type PageExtractor interface {
	ExtractPages(path string) (map[int]string, error)
}

// PDFExtractor extracts text from PDF files page by page.
// It implements the PageExtractor interface.
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// ExtractPages reads the PDF at path and returns cleaned text keyed by
// 1-based page number. Pages without text map to the empty string.
func (e *PDFExtractor) ExtractPages(path string) (map[int]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	total := r.NumPage()
	pages := make(map[int]string, total)
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages[i] = ""
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		pages[i] = cleanText(text)
	}

	return pages, nil
}

// cleanText collapses runs of whitespace and trims the result, matching how
// extracted PDF text is normalized before chunking.
func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
