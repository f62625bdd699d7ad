package chunk

import "strings"

// Split cuts text into chunks of at most maxSize bytes without breaking
// words. Paragraph boundaries are preferred cut points; a single word longer
// than maxSize becomes its own chunk.
func Split(text string, maxSize int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}
		// Start a fresh chunk when the whole paragraph won't fit in the
		// remainder of the current one.
		if current.Len() > 0 && current.Len()+len(paragraph)+1 > maxSize {
			flush()
		}
		for _, word := range words {
			if current.Len() > 0 && current.Len()+len(word)+1 > maxSize {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(word)
		}
	}
	flush()

	return chunks
}
