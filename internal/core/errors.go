package core

import "errors"

// Failure taxonomy for ingestion and search. Callers match with errors.Is
// and map each kind to its own user-facing message; nothing in the
// pipeline is allowed to fail silently.
var (
	// ErrEmptyDocument: extraction produced no usable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")

	// ErrDuplicateSource: identical bytes were already ingested for this
	// user. The (user_id, sha256) unique index is the source of truth.
	ErrDuplicateSource = errors.New("file was already imported")

	// ErrStorage: object-store read/write/delete failed.
	ErrStorage = errors.New("object storage failure")

	// ErrEmbedding: the embedding provider failed or returned a malformed
	// batch.
	ErrEmbedding = errors.New("embedding failure")

	// ErrPersistence: a database write failed.
	ErrPersistence = errors.New("database write failure")

	// ErrConfig: embedding dimension mismatch between configuration,
	// provider output and stored vectors. Not runtime-recoverable.
	ErrConfig = errors.New("embedding configuration mismatch")
)
