package knowledge

import "strings"

// Chunk is a contiguous slice of a source document.
type Chunk struct {
	DocName string
	Index   int
	Text    string
}

// splitText cuts text into chunks of at most size characters with the
// given overlap between consecutive chunks. Cuts prefer paragraph and
// line boundaries over mid-word breaks.
func splitText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap >= size {
		overlap = size / 2
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		cut := end
		// Prefer to break on a paragraph, then a newline, then a space.
		for _, sep := range []string{"\n\n", "\n", " "} {
			if i := strings.LastIndex(text[start:end], sep); i > 0 {
				cut = start + i
				break
			}
		}

		piece := strings.TrimSpace(text[start:cut])
		if piece != "" {
			chunks = append(chunks, piece)
		}

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	return chunks
}
