package documents

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/dream-ai/paperqa/internal/domain"
)

// SegmentSeparator joins consecutive segments into the chunked source text.
const SegmentSeparator = "\n"

// JoinSegments returns the source text that Chunk windows over.
func JoinSegments(segments []domain.Segment) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = s.Text
	}
	return strings.Join(parts, SegmentSeparator)
}

// ValidateChunking checks chunk size and overlap.
func ValidateChunking(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", chunkSize, domain.ErrConfiguration)
	}
	if overlap < 0 || overlap >= chunkSize {
		return fmt.Errorf("overlap must be in [0, %d), got %d: %w", chunkSize, overlap, domain.ErrConfiguration)
	}
	return nil
}

// Chunk splits the joined segment text into windows of chunkSize runes. Each
// window starts chunkSize-overlap runes after the previous one, so consecutive
// chunks share exactly overlap runes. Only the last chunk may be shorter.
func Chunk(docID uuid.UUID, segments []domain.Segment, chunkSize, overlap int) ([]domain.Chunk, error) {
	if err := ValidateChunking(chunkSize, overlap); err != nil {
		return nil, err
	}

	text := []rune(JoinSegments(segments))
	if len(text) == 0 {
		return nil, nil
	}

	// Rune offset at which each segment begins.
	starts := make([]int, len(segments))
	offset := 0
	sepLen := len([]rune(SegmentSeparator))
	for i, s := range segments {
		starts[i] = offset
		offset += len([]rune(s.Text)) + sepLen
	}

	step := chunkSize - overlap
	var chunks []domain.Chunk
	for start := 0; ; start += step {
		end := min(start+chunkSize, len(text))
		chunks = append(chunks, domain.Chunk{
			DocumentID:   docID,
			Index:        len(chunks),
			Text:         string(text[start:end]),
			SegmentIndex: segmentAt(starts, sepLen, start),
			Start:        start,
			End:          end,
		})
		if end == len(text) {
			break
		}
	}

	return chunks, nil
}

// segmentAt returns the segment holding the rune at offset. The separator in
// front of a segment belongs to that segment.
func segmentAt(starts []int, sepLen, offset int) int {
	i := sort.Search(len(starts), func(i int) bool { return starts[i]-sepLen > offset })
	if i == 0 {
		return 0
	}
	return i - 1
}
