package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/PascheK/PascheK-ChatBox/internal/core"
)

// Extractor implements core.Extractor. PDFs go through a dedicated parser
// that keeps page boundaries; every other mime type falls back to docconv,
// which handles DOCX, HTML, plain text and friends but has no page
// structure to report.
type Extractor struct{}

var _ core.Extractor = (*Extractor)(nil)

func New() *Extractor {
	return &Extractor{}
}

// Extract returns the plain text of raw. An empty or whitespace-only
// result is reported as core.ErrEmptyDocument so callers fail ingestion
// instead of persisting a source nobody can retrieve.
func (e *Extractor) Extract(ctx context.Context, raw []byte, mimeType string) (core.ExtractedDoc, error) {
	if err := ctx.Err(); err != nil {
		return core.ExtractedDoc{}, err
	}

	var (
		doc core.ExtractedDoc
		err error
	)
	if isPDF(mimeType) {
		doc, err = extractPDF(ctx, raw)
	} else {
		doc, err = extractDocconv(raw, mimeType)
	}
	if err != nil {
		return core.ExtractedDoc{}, err
	}

	if strings.TrimSpace(doc.Text) == "" {
		return core.ExtractedDoc{}, core.ErrEmptyDocument
	}
	return doc, nil
}

func isPDF(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt) == "application/pdf"
}

func extractDocconv(raw []byte, mimeType string) (core.ExtractedDoc, error) {
	res, err := docconv.Convert(bytes.NewReader(raw), mimeType, false)
	if err != nil {
		return core.ExtractedDoc{}, fmt.Errorf("docconv %q: %w", mimeType, err)
	}
	return trimDoc(res.Body, nil), nil
}
