package rag

import (
	"strings"
	"unicode"
)

// Chunk is one fixed-size window of source text produced by SplitText.
// CharStart/CharEnd are rune offsets into the trimmed input.
type Chunk struct {
	Content   string
	Index     int
	CharStart int
	CharEnd   int
}

// SplitText splits text into windows of at most chunkSize runes with an
// overlap of up to overlap runes between consecutive windows. A window
// ends on the last whitespace inside it when one exists, so tokens are
// never split while a whitespace boundary is available.
//
// The input is trimmed first; empty or whitespace-only text yields nil.
// The output is deterministic: same input and parameters, same chunks.
func SplitText(text string, chunkSize, overlap int) []Chunk {
	if chunkSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}

	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastSpace(runes, start, end); cut > start {
			end = cut
		}

		chunks = append(chunks, Chunk{
			Content:   string(runes[start:end]),
			Index:     len(chunks),
			CharStart: start,
			CharEnd:   end,
		})

		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			// Guarantee forward progress on pathological inputs
			// (overlap nearly as large as a shortened window).
			next = start + 1
		}
		start = next
	}
	return chunks
}

// lastSpace returns the index of the last whitespace rune in (start, end),
// or -1 when the window contains none. Breaking at that index keeps the
// following token intact in the next chunk.
func lastSpace(runes []rune, start, end int) int {
	for i := end - 1; i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
