package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           int64     `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Source represents one uploaded file owned by exactly one user.
// (UserID, SHA256) is unique: re-uploading identical bytes is rejected.
type Source struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Name       string    `db:"name" json:"name"`
	StorageKey string    `db:"storage_key" json:"storage_key"`
	SHA256     string    `db:"sha256" json:"sha256"`
	FileSize   int64     `db:"file_size" json:"file_size"`
	MimeType   string    `db:"mime_type" json:"mime_type"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// Chunk is a contiguous slice of a source's extracted text together with
// its embedding vector. CharStart/CharEnd are rune offsets into the
// trimmed source text; Page is set when the extractor knows page bounds.
type Chunk struct {
	ID         int64             `db:"id" json:"id"`
	SourceID   int64             `db:"source_id" json:"source_id"`
	Content    string            `db:"content" json:"content"`
	Embedding  []float32         `db:"embedding" json:"-"`
	ChunkIndex int               `db:"chunk_index" json:"chunk_index"`
	CharStart  int               `db:"char_start" json:"char_start"`
	CharEnd    int               `db:"char_end" json:"char_end"`
	Page       *int              `db:"page" json:"page,omitempty"`
	Metadata   map[string]string `db:"metadata" json:"metadata,omitempty"`
}

// SearchHit is one ranked result of a similarity search.
type SearchHit struct {
	ChunkID    int64   `json:"chunk_id"`
	Content    string  `json:"content"`
	SourceName string  `json:"source_name"`
	SourceURL  string  `json:"source_url"`
	Score      float32 `json:"score"`
}

// Message is a single chat message, user or assistant.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat represents one conversation and its full message history.
type Chat struct {
	ID        string    `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Messages  []Message `db:"messages" json:"messages"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StaleBlob is an object-store key whose delete failed after its source
// row was already removed. Kept for reconciliation; a dangling blob is a
// resource leak, not a correctness hazard.
type StaleBlob struct {
	ID         int64     `db:"id" json:"id"`
	Bucket     string    `db:"bucket" json:"bucket"`
	StorageKey string    `db:"storage_key" json:"storage_key"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}
