package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/PascheK/PascheK-ChatBox/internal/core"
)

// extractPDF pulls plain text out of a PDF page by page, recording the
// rune span each page occupies in the assembled text so chunks can carry
// a page number for citations.
func extractPDF(ctx context.Context, raw []byte) (core.ExtractedDoc, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return core.ExtractedDoc{}, fmt.Errorf("open pdf: %w", err)
	}

	var (
		sb    strings.Builder
		pages []core.PageSpan
		pos   int // rune offset into sb
	)

	for pageNo := 1; pageNo <= reader.NumPage(); pageNo++ {
		if err := ctx.Err(); err != nil {
			return core.ExtractedDoc{}, err
		}

		page := reader.Page(pageNo)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not lose the rest of
			// the document.
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		if pos > 0 {
			sb.WriteString("\n")
			pos++
		}
		start := pos
		sb.WriteString(text)
		pos += utf8.RuneCountInString(text)
		pages = append(pages, core.PageSpan{Page: pageNo, Start: start, End: pos})
	}

	return trimDoc(sb.String(), pages), nil
}

// trimDoc trims surrounding whitespace and shifts page spans so they stay
// valid rune offsets into the trimmed text. Chunk offsets are defined
// against the trimmed text, so spans must use the same origin.
func trimDoc(text string, pages []core.PageSpan) core.ExtractedDoc {
	runes := []rune(text)

	lead := 0
	for lead < len(runes) && unicode.IsSpace(runes[lead]) {
		lead++
	}
	tail := len(runes)
	for tail > lead && unicode.IsSpace(runes[tail-1]) {
		tail--
	}
	trimmedLen := tail - lead

	shifted := make([]core.PageSpan, 0, len(pages))
	for _, span := range pages {
		start := span.Start - lead
		end := span.End - lead
		if start < 0 {
			start = 0
		}
		if end > trimmedLen {
			end = trimmedLen
		}
		if start >= end {
			continue
		}
		shifted = append(shifted, core.PageSpan{Page: span.Page, Start: start, End: end})
	}

	return core.ExtractedDoc{Text: string(runes[lead:tail]), Pages: shifted}
}
