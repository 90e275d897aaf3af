package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidChunking is returned for window parameters that would either
// produce empty windows or make the window start index stop advancing.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	specialsRe   = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:\-()]`)
)

// Clean collapses runs of whitespace and strips special characters while
// keeping basic punctuation. Page text goes through this before chunking.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = specialsRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Split cuts text into overlapping windows of size words. A word is a
// maximal run of non-whitespace. Consecutive windows share exactly overlap
// words, except the last window which ends at the final word and may
// overlap more. Text with at most size words comes back as one chunk.
//
// overlap >= size would keep the start index from ever advancing, so it is
// rejected up front instead of looping forever.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunking, overlap, size)
	}

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	words := strings.Fields(text)
	if len(words) <= size {
		return []string{text}, nil
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))

		if end == len(words) {
			break
		}
		start = end - overlap
	}

	return chunks, nil
}
