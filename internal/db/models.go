package db

import (
	"time"

	"github.com/google/uuid"
)

// Ingestion is one row of the ingestion journal
type Ingestion struct {
	ID             int64
	DocumentID     uuid.UUID
	Name           string
	FileHash       string
	Pages          int
	Chunks         int
	EmbeddingModel string
	State          string
	ErrorKind      string
	Duration       time.Duration
	CreatedAt      time.Time
}
