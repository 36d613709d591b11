package ingestion

import "fmt"

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 20
)

// Chunk is the retrieval unit: a bounded text segment plus the merged
// metadata mapping it carries into the vector index.
type Chunk struct {
	DocumentID string
	Index      int
	Content    string
	Metadata   map[string]any
}

// SplitText splits text into segments of at most size runes with overlap
// runes shared between consecutive segments. Each cut prefers the latest
// paragraph, sentence or word boundary inside the window and falls back to a
// hard cut only when no boundary clears the overlap. Segments are exact
// substrings of the input, so stitching them back together after dropping
// each segment's leading overlap reproduces the input.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	chunks := make([]string, 0, len(runes)/size+1)
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		cut := boundaryCut(runes, start+overlap+1, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - overlap
	}
}

// boundaryCut picks a cut position in (min, max], preferring line breaks,
// then sentence ends, then spaces. The cut lands just after the boundary
// rune. Falls back to max when the window has no usable boundary.
func boundaryCut(runes []rune, min, max int) int {
	if min < 1 {
		min = 1
	}
	for j := max - 1; j >= min; j-- {
		if runes[j] == '\n' {
			return j + 1
		}
	}
	for j := max - 1; j >= min; j-- {
		switch runes[j] {
		case '.', '!', '?':
			if j+1 < len(runes) && runes[j+1] == ' ' {
				return j + 1
			}
		}
	}
	for j := max - 1; j >= min; j-- {
		if runes[j] == ' ' {
			return j + 1
		}
	}
	return max
}

// ChunkDocument splits every page of doc and tags each resulting chunk with
// its positional fields plus the document-level metadata mapping. Document
// metadata is merged additively and wins over per-chunk fields on key
// collision.
func ChunkDocument(doc *ParsedDocument, metadata map[string]any) []Chunk {
	if doc == nil {
		return nil
	}

	chunks := make([]Chunk, 0)
	index := 0
	for _, page := range doc.Pages {
		for _, segment := range SplitText(page.Text, defaultChunkSize, defaultChunkOverlap) {
			merged := map[string]any{
				"document_id": doc.DocumentID,
				"source":      doc.Source,
				"page":        page.Number,
			}
			for key, value := range metadata {
				merged[key] = value
			}
			chunks = append(chunks, Chunk{
				DocumentID: doc.DocumentID,
				Index:      index,
				Content:    segment,
				Metadata:   merged,
			})
			index++
		}
	}
	return chunks
}

// ChunkID names a chunk by its parent document and position, the unit's
// stable identity across re-ingestion runs.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:%d", documentID, index)
}
