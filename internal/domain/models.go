package domain

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded PDF. It is immutable once created.
type Document struct {
	ID         uuid.UUID
	Name       string
	Hash       string
	Content    []byte
	UploadedAt time.Time
}

// NewDocument creates a document with a fresh ID and the SHA-256 of its content.
func NewDocument(name string, content []byte) *Document {
	return &Document{
		ID:         uuid.New(),
		Name:       name,
		Hash:       fmt.Sprintf("%x", sha256.Sum256(content)),
		Content:    content,
		UploadedAt: time.Now(),
	}
}

// Segment is the text of one page.
type Segment struct {
	Index int
	Text  string
}

// Chunk is a window of the joined segment text.
// Start and End are rune offsets into that text; SegmentIndex is the page the
// window starts on. A window starting on the separator between two pages
// belongs to the page after it.
type Chunk struct {
	DocumentID   uuid.UUID
	Index        int
	Text         string
	SegmentIndex int
	Start        int
	End          int
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// QueryResult holds retrieved chunks, best first.
type QueryResult struct {
	Query  string
	Chunks []ScoredChunk
}

// Texts returns the chunk texts in result order.
func (r QueryResult) Texts() []string {
	texts := make([]string, len(r.Chunks))
	for i, c := range r.Chunks {
		texts[i] = c.Chunk.Text
	}
	return texts
}

// Answer is a synthesized response to one query.
type Answer struct {
	Text    string
	Model   string
	Sources QueryResult
}

// IngestionRecord summarizes one ingestion attempt.
type IngestionRecord struct {
	DocumentID     uuid.UUID
	Name           string
	Hash           string
	Pages          int
	Chunks         int
	EmbeddingModel string
	State          string
	ErrorKind      string
	Duration       time.Duration
}
