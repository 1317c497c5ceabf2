package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/PascheK/PascheK-ChatBox/internal/config"
	"github.com/PascheK/PascheK-ChatBox/internal/core"
	"github.com/PascheK/PascheK-ChatBox/internal/models"
)

const uniqueViolation = "23505"

// DatabaseClient implements core.Store over Postgres with pgvector.
type DatabaseClient struct {
	db *sql.DB
}

var _ core.Store = (*DatabaseClient)(nil)

// NewDatabaseClient opens the pool, verifies connectivity and applies the
// embedded bootstrap schema.
func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, sqlDB, cfg.EmbedDim); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: sqlDB}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ---- users ----

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	if user == nil {
		return 0, errors.New("nil user")
	}
	const q = `
		INSERT INTO users (first_name, last_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := c.db.QueryRowContext(ctx, q,
		user.FirstName, user.LastName, user.Email, user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("user %s already exists: %w", user.Email, core.ErrPersistence)
	}
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return user.ID, nil
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, last_name, email, password_hash, created_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ---- sources ----

func (c *DatabaseClient) SourceExists(ctx context.Context, userID int64, sha256 string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM sources WHERE user_id = $1 AND sha256 = $2)`
	var exists bool
	if err := c.db.QueryRowContext(ctx, q, userID, sha256).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateSource inserts the source row. The unique (user_id, sha256) index
// is the real dedup mechanism: a violation maps to ErrDuplicateSource so
// the loser of a concurrent upload race gets a clean failure.
func (c *DatabaseClient) CreateSource(ctx context.Context, src *models.Source) (int64, error) {
	if src == nil {
		return 0, errors.New("nil source")
	}
	const q = `
		INSERT INTO sources (user_id, name, storage_key, sha256, file_size, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, uploaded_at
	`
	err := c.db.QueryRowContext(ctx, q,
		src.UserID, src.Name, src.StorageKey, src.SHA256, src.FileSize, src.MimeType,
	).Scan(&src.ID, &src.UploadedAt)
	if isUniqueViolation(err) {
		return 0, core.ErrDuplicateSource
	}
	if err != nil {
		return 0, fmt.Errorf("insert source: %w: %w", core.ErrPersistence, err)
	}
	return src.ID, nil
}

func (c *DatabaseClient) GetSourceByID(ctx context.Context, id int64) (*models.Source, error) {
	const q = `
		SELECT id, user_id, name, storage_key, sha256, file_size, mime_type, uploaded_at
		FROM sources WHERE id = $1
	`
	var s models.Source
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.UserID, &s.Name, &s.StorageKey, &s.SHA256, &s.FileSize, &s.MimeType, &s.UploadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *DatabaseClient) ListSourcesByUser(ctx context.Context, userID int64) ([]models.Source, error) {
	const q = `
		SELECT id, user_id, name, storage_key, sha256, file_size, mime_type, uploaded_at
		FROM sources
		WHERE user_id = $1
		ORDER BY uploaded_at DESC
	`
	return c.querySources(ctx, q, userID)
}

func (c *DatabaseClient) SearchSourcesByName(ctx context.Context, userID int64, term string, limit int) ([]models.Source, error) {
	const q = `
		SELECT id, user_id, name, storage_key, sha256, file_size, mime_type, uploaded_at
		FROM sources
		WHERE user_id = $1 AND name ILIKE $2
		ORDER BY uploaded_at DESC
		LIMIT $3
	`
	return c.querySources(ctx, q, userID, "%"+term+"%", limit)
}

func (c *DatabaseClient) querySources(ctx context.Context, q string, args ...any) ([]models.Source, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		var s models.Source
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Name, &s.StorageKey, &s.SHA256, &s.FileSize, &s.MimeType, &s.UploadedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSource removes the source row; its chunks cascade in the same
// statement, so readers never see chunks of a deleted source.
func (c *DatabaseClient) DeleteSource(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w: %w", core.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("source not found: %d", id)
	}
	return nil
}

// ---- chunks ----

// InsertChunks writes all chunks of one source in a single transaction.
// Rows are fully formed (content + embedding + offsets together); there is
// no backfill step a reader could observe.
func (c *DatabaseClient) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w: %w", core.ErrPersistence, err)
	}

	const q = `
		INSERT INTO chunks
			(source_id, content, embedding, chunk_index, char_start, char_end, page, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare chunk insert: %w: %w", core.ErrPersistence, err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]

		var metadata any
		if len(ch.Metadata) > 0 {
			raw, err := json.Marshal(ch.Metadata)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("marshal chunk metadata: %w", err)
			}
			metadata = raw
		}

		if _, err := stmt.ExecContext(ctx,
			ch.SourceID, ch.Content, pgvector.NewVector(ch.Embedding),
			ch.ChunkIndex, ch.CharStart, ch.CharEnd, ch.Page, metadata,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w: %w", ch.ChunkIndex, core.ErrPersistence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks: %w: %w", core.ErrPersistence, err)
	}
	return nil
}

// SearchChunks ranks chunks by cosine similarity to queryVec. Ties break
// on chunk id ascending (insertion order) for deterministic output.
func (c *DatabaseClient) SearchChunks(ctx context.Context, queryVec []float32, limit int, threshold float32) ([]models.SearchHit, error) {
	const q = `
		SELECT c.id, c.content, s.name, s.storage_key,
		       1 - (c.embedding <=> $1) AS similarity
		FROM chunks c
		JOIN sources s ON s.id = c.source_id
		WHERE 1 - (c.embedding <=> $1) > $2
		ORDER BY similarity DESC, c.id ASC
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(queryVec), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.ChunkID, &h.Content, &h.SourceName, &h.SourceURL, &h.Score); err != nil {
			return nil, err
		}
		// SourceURL holds the storage key here; the searcher resolves
		// it into a public URL.
		out = append(out, h)
	}
	return out, rows.Err()
}

// ---- chats ----

func (c *DatabaseClient) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat == nil {
		return errors.New("nil chat")
	}
	raw, err := marshalMessages(chat.Messages)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO chats (id, user_id, title, messages)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING created_at, updated_at
	`
	err = c.db.QueryRowContext(ctx, q, chat.ID, chat.UserID, chat.Title, raw).
		Scan(&chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert chat: %w: %w", core.ErrPersistence, err)
	}
	return nil
}

func (c *DatabaseClient) GetChat(ctx context.Context, userID int64, chatID string) (*models.Chat, error) {
	const q = `
		SELECT id, user_id, COALESCE(title, ''), messages, created_at, updated_at
		FROM chats
		WHERE id = $1 AND user_id = $2
	`
	var (
		chat models.Chat
		raw  []byte
	)
	err := c.db.QueryRowContext(ctx, q, chatID, userID).Scan(
		&chat.ID, &chat.UserID, &chat.Title, &raw, &chat.CreatedAt, &chat.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if chat.Messages, err = unmarshalMessages(raw); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *DatabaseClient) ListChatsByUser(ctx context.Context, userID int64) ([]models.Chat, error) {
	const q = `
		SELECT id, user_id, COALESCE(title, ''), messages, created_at, updated_at
		FROM chats
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	return c.queryChats(ctx, q, userID)
}

func (c *DatabaseClient) SearchChats(ctx context.Context, userID int64, term string, limit int) ([]models.Chat, error) {
	const q = `
		SELECT id, user_id, COALESCE(title, ''), messages, created_at, updated_at
		FROM chats
		WHERE user_id = $1 AND (title ILIKE $2 OR messages::text ILIKE $2)
		ORDER BY updated_at DESC
		LIMIT $3
	`
	return c.queryChats(ctx, q, userID, "%"+term+"%", limit)
}

func (c *DatabaseClient) queryChats(ctx context.Context, q string, args ...any) ([]models.Chat, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chat
	for rows.Next() {
		var (
			chat models.Chat
			raw  []byte
		)
		if err := rows.Scan(
			&chat.ID, &chat.UserID, &chat.Title, &raw, &chat.CreatedAt, &chat.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if chat.Messages, err = unmarshalMessages(raw); err != nil {
			return nil, err
		}
		out = append(out, chat)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateChatMessages(ctx context.Context, userID int64, chatID string, title string, messages []models.Message) error {
	raw, err := marshalMessages(messages)
	if err != nil {
		return err
	}
	const q = `
		UPDATE chats
		SET messages = $3,
		    title = COALESCE(title, NULLIF($4, '')),
		    updated_at = now()
		WHERE id = $1 AND user_id = $2
	`
	res, err := c.db.ExecContext(ctx, q, chatID, userID, raw, title)
	if err != nil {
		return fmt.Errorf("update chat messages: %w: %w", core.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat not found: %s", chatID)
	}
	return nil
}

func (c *DatabaseClient) UpdateChatTitle(ctx context.Context, userID int64, chatID string, title string) error {
	const q = `
		UPDATE chats
		SET title = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND user_id = $2
	`
	res, err := c.db.ExecContext(ctx, q, chatID, userID, title)
	if err != nil {
		return fmt.Errorf("update chat title: %w: %w", core.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat not found: %s", chatID)
	}
	return nil
}

func (c *DatabaseClient) DeleteChat(ctx context.Context, userID int64, chatID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1 AND user_id = $2`, chatID, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w: %w", core.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat not found: %s", chatID)
	}
	return nil
}

func marshalMessages(messages []models.Message) ([]byte, error) {
	if messages == nil {
		messages = []models.Message{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}
	return raw, nil
}

func unmarshalMessages(raw []byte) ([]models.Message, error) {
	if len(raw) == 0 {
		return []models.Message{}, nil
	}
	var messages []models.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return messages, nil
}

// ---- stale blobs ----

func (c *DatabaseClient) RecordStaleBlob(ctx context.Context, bucket, key string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO stale_blobs (bucket, storage_key) VALUES ($1, $2)`, bucket, key)
	if err != nil {
		return fmt.Errorf("record stale blob: %w: %w", core.ErrPersistence, err)
	}
	return nil
}

func (c *DatabaseClient) ListStaleBlobs(ctx context.Context) ([]models.StaleBlob, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, bucket, storage_key, recorded_at FROM stale_blobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StaleBlob
	for rows.Next() {
		var b models.StaleBlob
		if err := rows.Scan(&b.ID, &b.Bucket, &b.StorageKey, &b.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) RemoveStaleBlob(ctx context.Context, id int64) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM stale_blobs WHERE id = $1`, id)
	return err
}
