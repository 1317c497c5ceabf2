package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PascheK/PascheK-ChatBox/internal/core"
	"github.com/PascheK/PascheK-ChatBox/internal/models"
)

// Config tunes the ingestion pipeline.
//
// ChunkSize/ChunkOverlap are rune counts fed to SplitText. Bucket is the
// object-store bucket holding the raw uploads.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Bucket       string
}

// Pipeline orchestrates extraction, dedup, storage, chunking, embedding
// and persistence for one uploaded file. All collaborators are injected;
// the pipeline holds no ambient state and every call is request-scoped.
type Pipeline struct {
	store     core.Store
	objects   core.ObjectStore
	embedder  core.Embedder
	extractor core.Extractor
	cfg       Config
	logger    *slog.Logger
}

var _ core.Ingestor = (*Pipeline)(nil)

func NewPipeline(store core.Store, objects core.ObjectStore, embedder core.Embedder, extractor core.Extractor, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     store,
		objects:   objects,
		embedder:  embedder,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger.With("component", "ingest"),
	}
}

// Ingest runs the full pipeline and returns the new source id.
//
// Ordering matters: the blob is stored before the source row so a row
// never points at bytes that do not exist; any failure after the row is
// created compensates by deleting the row (chunks cascade) and the blob,
// so no source is ever left with zero chunks.
func (p *Pipeline) Ingest(ctx context.Context, ownerID int64, raw []byte, fileName, mimeType string) (int64, error) {
	if len(raw) == 0 {
		return 0, core.ErrEmptyDocument
	}

	doc, err := p.extractor.Extract(ctx, raw, mimeType)
	if err != nil {
		return 0, err
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	// Pre-check only: skips the storage write and embedding cost for
	// known duplicates. The unique index behind CreateSource is what
	// actually serializes concurrent uploads of the same bytes.
	exists, err := p.store.SourceExists(ctx, ownerID, hash)
	if err != nil {
		return 0, fmt.Errorf("dedup check: %w", err)
	}
	if exists {
		return 0, core.ErrDuplicateSource
	}

	key := storageKey(ownerID, fileName)
	if err := p.objects.Put(ctx, p.cfg.Bucket, key, raw, mimeType); err != nil {
		return 0, err
	}

	src := &models.Source{
		UserID:     ownerID,
		Name:       fileName,
		StorageKey: key,
		SHA256:     hash,
		FileSize:   int64(len(raw)),
		MimeType:   mimeType,
	}
	sourceID, err := p.store.CreateSource(ctx, src)
	if err != nil {
		// Lost the race or the write failed; the stored bytes are
		// unreachable either way.
		p.cleanupBlob(ctx, key)
		return 0, err
	}

	chunks := SplitText(doc.Text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		p.compensate(ctx, sourceID, key)
		return 0, core.ErrEmptyDocument
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		p.compensate(ctx, sourceID, key)
		return 0, err
	}
	if len(vectors) != len(chunks) {
		p.compensate(ctx, sourceID, key)
		return 0, fmt.Errorf("%w: got %d vectors for %d chunks", core.ErrEmbedding, len(vectors), len(chunks))
	}

	rows := make([]models.Chunk, len(chunks))
	for i, ch := range chunks {
		rows[i] = models.Chunk{
			SourceID:   sourceID,
			Content:    ch.Content,
			Embedding:  vectors[i],
			ChunkIndex: ch.Index,
			CharStart:  ch.CharStart,
			CharEnd:    ch.CharEnd,
			Page:       pageFor(doc.Pages, ch.CharStart),
		}
	}
	if err := p.store.InsertChunks(ctx, rows); err != nil {
		p.compensate(ctx, sourceID, key)
		return 0, err
	}

	p.logger.Info("source ingested",
		"source_id", sourceID, "owner_id", ownerID, "name", fileName, "chunks", len(rows))
	return sourceID, nil
}

// Remove deletes a source owned by ownerID: one statement removes the row
// and its chunks (cascade), then the blob goes with bounded retries. A
// blob whose delete keeps failing is recorded for reconciliation — a
// dangling blob leaks storage but never corrupts reads.
func (p *Pipeline) Remove(ctx context.Context, ownerID, sourceID int64) error {
	src, err := p.store.GetSourceByID(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("load source: %w", err)
	}
	if src == nil || src.UserID != ownerID {
		return fmt.Errorf("source not found: %d", sourceID)
	}

	if err := p.store.DeleteSource(ctx, sourceID); err != nil {
		return err
	}

	if err := p.deleteBlobWithRetry(ctx, src.StorageKey); err != nil {
		p.logger.Warn("blob delete failed, recording for reconciliation",
			"key", src.StorageKey, "error", err)
		if recErr := p.store.RecordStaleBlob(context.WithoutCancel(ctx), p.cfg.Bucket, src.StorageKey); recErr != nil {
			p.logger.Error("failed to record stale blob", "key", src.StorageKey, "error", recErr)
		}
	}
	return nil
}

// SweepStaleBlobs retries deletes that failed during earlier Remove
// calls. Run at startup so leaked blobs are eventually reclaimed.
func (p *Pipeline) SweepStaleBlobs(ctx context.Context) error {
	blobs, err := p.store.ListStaleBlobs(ctx)
	if err != nil {
		return fmt.Errorf("list stale blobs: %w", err)
	}
	for _, b := range blobs {
		if err := p.objects.Delete(ctx, b.Bucket, b.StorageKey); err != nil {
			p.logger.Warn("stale blob still undeletable", "key", b.StorageKey, "error", err)
			continue
		}
		if err := p.store.RemoveStaleBlob(ctx, b.ID); err != nil {
			return err
		}
		p.logger.Info("stale blob reclaimed", "key", b.StorageKey)
	}
	return nil
}

func (p *Pipeline) deleteBlobWithRetry(ctx context.Context, key string) error {
	var err error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = p.objects.Delete(ctx, p.cfg.Bucket, key); err == nil {
			return nil
		}
	}
	return err
}

// compensate undoes a half-finished ingestion: source row first (chunks
// cascade), then the blob. Runs on a cancellation-immune context so a
// failed request still cleans up after itself.
func (p *Pipeline) compensate(ctx context.Context, sourceID int64, key string) {
	cleanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	if err := p.store.DeleteSource(cleanCtx, sourceID); err != nil {
		p.logger.Error("compensation: delete source failed", "source_id", sourceID, "error", err)
	}
	p.cleanupBlob(cleanCtx, key)
}

func (p *Pipeline) cleanupBlob(ctx context.Context, key string) {
	cleanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	if err := p.objects.Delete(cleanCtx, p.cfg.Bucket, key); err != nil {
		p.logger.Warn("cleanup: blob delete failed, recording for reconciliation", "key", key, "error", err)
		if recErr := p.store.RecordStaleBlob(cleanCtx, p.cfg.Bucket, key); recErr != nil {
			p.logger.Error("failed to record stale blob", "key", key, "error", recErr)
		}
	}
}

// storageKey builds the owner-scoped object key {ownerID}/{uuid}-{name}.
func storageKey(ownerID int64, fileName string) string {
	return fmt.Sprintf("%d/%s-%s", ownerID, uuid.NewString(), sanitizeName(fileName))
}

// sanitizeName strips path components and characters that are awkward in
// object keys or URLs.
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		return "file"
	}
	return name
}

// pageFor returns the page whose span contains the given rune offset, or
// nil when the extractor reported no page structure.
func pageFor(pages []core.PageSpan, offset int) *int {
	for _, span := range pages {
		if offset >= span.Start && offset < span.End {
			page := span.Page
			return &page
		}
	}
	return nil
}
