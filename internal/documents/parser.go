package documents

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/dream-ai/paperqa/internal/domain"
)

// headerWindow is how far into the file the %PDF- marker may appear.
const headerWindow = 1024

var pdfMagic = []byte("%PDF-")

// Extractor converts raw document bytes into page segments
type Extractor interface {
	Extract(raw []byte) ([]domain.Segment, error)
}

// PDFExtractor extracts page text from PDF files using MuPDF
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDF extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract returns one segment per page in page order. Pages without text are
// kept as empty segments so page indexes stay aligned.
func (p *PDFExtractor) Extract(raw []byte) ([]domain.Segment, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty document: %w", domain.ErrExtraction)
	}
	if !bytes.Contains(raw[:min(len(raw), headerWindow)], pdfMagic) {
		return nil, fmt.Errorf("missing PDF header: %w", domain.ErrExtraction)
	}

	doc, err := fitz.NewFromMemory(raw)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, fmt.Errorf("document is encrypted: %w", domain.ErrExtraction)
		}
		return nil, fmt.Errorf("failed to open PDF: %w: %w", domain.ErrExtraction, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n <= 0 {
		return nil, fmt.Errorf("document has no pages: %w", domain.ErrExtraction)
	}

	segments := make([]domain.Segment, 0, n)
	for i := 0; i < n; i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w: %w", i, domain.ErrExtraction, err)
		}
		if strings.TrimSpace(text) == "" {
			text = ""
		}
		segments = append(segments, domain.Segment{Index: i, Text: text})
	}

	return segments, nil
}
