package loader

// Splitter divides extracted text into overlapping fixed-size windows,
// measured in runes so multi-byte characters are never cut mid-sequence.
type Splitter struct {
	chunkSize int
	overlap   int
}

// Default chunking parameters.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// NewSplitter returns a Splitter with the given window size and overlap.
// Non-positive sizes fall back to the defaults; an overlap at or above the
// chunk size is clamped so the window always advances.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split returns the overlapping windows of text. Empty or whitespace-only
// input yields no chunks. Every rune of the input appears in at least one
// chunk, and consecutive chunks share exactly the configured overlap except
// possibly the final pair.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.chunkSize {
		return []string{text}
	}

	step := s.chunkSize - s.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
