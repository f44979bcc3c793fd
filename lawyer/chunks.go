package lawyer

import (
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	ChunkSize    = 1000
	ChunkOverlap = 200
)

func newSplitter() textsplitter.RecursiveCharacter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(ChunkSize),
		textsplitter.WithChunkOverlap(ChunkOverlap),
	)
}

// CreateChunks splits each page into overlapping chunks. Each chunk keeps its page's metadata,
// and adds the character (rune) offset of the chunk within the page as start_index, or -1 if
// the splitter changed the text so that it can't be found.
func CreateChunks(docs []schema.Document) (chunks []schema.Document, err error) {
	splitter := newSplitter()
	for _, doc := range docs {
		texts, err := splitter.SplitText(doc.PageContent)
		if err != nil {
			return nil, fmt.Errorf("lawyer: failed to split text: %w", err)
		}
		var index, previousLength int
		for _, text := range texts {
			start := findFrom(doc.PageContent, text, index+previousLength-ChunkOverlap)
			if start >= 0 {
				index, previousLength = start, len(text)
			}
			metadata := maps.Clone(doc.Metadata)
			if metadata == nil {
				metadata = map[string]any{}
			}
			metadata[MetadataStartIndex] = runeOffset(doc.PageContent, start)
			chunks = append(chunks, schema.Document{
				PageContent: text,
				Metadata:    metadata,
			})
		}
	}
	return chunks, nil
}

// runeOffset converts a byte offset in s to a character offset.
func runeOffset(s string, byteOffset int) int {
	if byteOffset < 0 {
		return byteOffset
	}
	return utf8.RuneCountInString(s[:byteOffset])
}

func findFrom(s, substr string, from int) int {
	from = max(from, 0)
	if from <= len(s) {
		if i := strings.Index(s[from:], substr); i >= 0 {
			return from + i
		}
	}
	return strings.Index(s, substr)
}
