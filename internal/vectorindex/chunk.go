// Package vectorindex owns chunking, vector storage, and top-k retrieval
// over uploaded knowledge documents.
package vectorindex

import "fmt"

// targetChunkSize and chunkOverlap implement the exact chunking policy: a
// 1000-character target with 100 characters of overlap between consecutive
// chunks, preferring to end a chunk at a newline when one exists reasonably
// far into the chunk (past its halfway point) rather than splitting
// mid-line.
const (
	targetChunkSize = 1000
	chunkOverlap    = 100
)

// chunk is one piece of a split document, paired with the rune offset in
// the source text where it starts.
type chunk struct {
	startOffset int
	text        string
}

// splitIntoChunks implements VectorIndex.add_document's chunking policy.
// It mirrors a simple forward scan: extend up to targetChunkSize characters,
// then if that isn't the end of the text, look for the last newline within
// the chunk; if found past the chunk's halfway point, truncate there
// (inclusive) to favor a natural break. The next chunk starts chunkOverlap
// characters before the current chunk's end, always advancing by at least
// one character.
func splitIntoChunks(text string) []chunk {
	runes := []rune(text)
	textLen := len(runes)
	if textLen == 0 {
		return nil
	}

	var chunks []chunk
	start := 0
	lastStart := -1

	for start < textLen {
		end := start + targetChunkSize
		if end > textLen {
			end = textLen
		}

		if end < textLen {
			if nl := lastNewline(runes, start, end); nl != -1 && nl > start+targetChunkSize/2 {
				end = nl + 1
			}
		}

		chunks = append(chunks, chunk{startOffset: start, text: string(runes[start:end])})

		if end >= textLen {
			break
		}

		nextStart := end - chunkOverlap
		if nextStart <= lastStart {
			nextStart = lastStart + 1
		}
		if nextStart <= start {
			nextStart = start + 1
		}
		start = nextStart
		lastStart = start
	}

	return chunks
}

// lastNewline returns the rune index of the last '\n' in runes[start:end),
// or -1 if none exists.
func lastNewline(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}

// chunkID builds the "{doc_id}_{offset}" chunk identifier.
func chunkID(docID string, offset int) string {
	return fmt.Sprintf("%s_%d", docID, offset)
}
