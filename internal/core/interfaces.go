package core

import (
	"context"

	"github.com/PascheK/PascheK-ChatBox/internal/models"
)

// Store defines all persistence operations the higher layers need.
// It abstracts Postgres/pgvector so services and handlers never depend on
// a specific database client.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// SourceExists is a cheap pre-check used to skip extraction and
	// embedding cost for known duplicates. CreateSource remains the
	// authoritative dedup point via the unique index.
	SourceExists(ctx context.Context, userID int64, sha256 string) (bool, error)
	CreateSource(ctx context.Context, src *models.Source) (int64, error)
	GetSourceByID(ctx context.Context, id int64) (*models.Source, error)
	ListSourcesByUser(ctx context.Context, userID int64) ([]models.Source, error)
	SearchSourcesByName(ctx context.Context, userID int64, term string, limit int) ([]models.Source, error)
	// DeleteSource removes the source row; chunk rows go with it in the
	// same statement (ON DELETE CASCADE).
	DeleteSource(ctx context.Context, id int64) error

	// InsertChunks writes all chunks of one source in a single
	// transaction; readers never observe a partially ingested source.
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	// SearchChunks ranks stored chunks by cosine similarity to the query
	// vector, keeps score > threshold, orders by score descending with
	// chunk id ascending as tie break, and truncates to limit.
	SearchChunks(ctx context.Context, queryVec []float32, limit int, threshold float32) ([]models.SearchHit, error)

	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, userID int64, chatID string) (*models.Chat, error)
	ListChatsByUser(ctx context.Context, userID int64) ([]models.Chat, error)
	UpdateChatMessages(ctx context.Context, userID int64, chatID string, title string, messages []models.Message) error
	UpdateChatTitle(ctx context.Context, userID int64, chatID string, title string) error
	DeleteChat(ctx context.Context, userID int64, chatID string) error
	SearchChats(ctx context.Context, userID int64, term string, limit int) ([]models.Chat, error)

	RecordStaleBlob(ctx context.Context, bucket, key string) error
	ListStaleBlobs(ctx context.Context) ([]models.StaleBlob, error)
	RemoveStaleBlob(ctx context.Context, id int64) error

	Close() error
}

// ObjectStore defines interactions with S3-compatible object storage.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
	// PublicURL returns the retrieval URL for a stored object.
	PublicURL(bucket, key string) string
}

// Embedder maps text segments to fixed-dimension vectors. Implementations
// guarantee order preservation and 1:1 cardinality with the input; network
// or model failures surface as ErrEmbedding, never as zero vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension reports the configured vector dimension D.
	Dimension() int
}

// LLMProvider generates a completion for a chat turn.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// PageSpan marks the rune offsets of one page inside extracted text.
type PageSpan struct {
	Page  int // 1-based page number
	Start int // inclusive rune offset
	End   int // exclusive rune offset
}

// ExtractedDoc is the result of text extraction. Pages is empty when the
// format has no page structure (plain text, HTML via docconv, ...).
type ExtractedDoc struct {
	Text  string
	Pages []PageSpan
}

// Extractor pulls plain text out of raw uploaded bytes.
type Extractor interface {
	Extract(ctx context.Context, raw []byte, mimeType string) (ExtractedDoc, error)
}

// Ingestor runs the full ingestion pipeline for one uploaded file.
type Ingestor interface {
	Ingest(ctx context.Context, ownerID int64, raw []byte, fileName, mimeType string) (int64, error)
	Remove(ctx context.Context, ownerID, sourceID int64) error
}

// Searcher answers semantic queries against the knowledge base.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, threshold float32) ([]models.SearchHit, error)
}
