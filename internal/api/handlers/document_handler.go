package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	middleware "github.com/PascheK/PascheK-ChatBox/internal/api/middlewares"
	"github.com/PascheK/PascheK-ChatBox/internal/core"
)

const maxUploadBytes = 52 << 20 // 52 MB

// DocumentHandler exposes upload, listing and deletion of sources.
type DocumentHandler struct {
	store    core.Store
	ingestor core.Ingestor
	logger   *slog.Logger
}

func NewDocumentHandler(store core.Store, ingestor core.Ingestor, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{store: store, ingestor: ingestor, logger: logger.With("component", "documents")}
}

// Upload ingests one multipart file ("file" field) into the knowledge
// base. Each failure kind maps to its own status and message so the UI
// can tell "already imported" from "nothing to extract".
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "could not read upload", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	fileName := filepath.Base(header.Filename)

	sourceID, err := h.ingestor.Ingest(r.Context(), userID, raw, fileName, contentType)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"source_id": sourceID})
}

func (h *DocumentHandler) writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrDuplicateSource):
		http.Error(w, "this file was already imported", http.StatusConflict)
	case errors.Is(err, core.ErrEmptyDocument):
		http.Error(w, "the document contains no extractable text", http.StatusUnprocessableEntity)
	case errors.Is(err, core.ErrStorage):
		h.logger.Error("upload storage failure", "error", err)
		http.Error(w, "file storage is unavailable, try again later", http.StatusBadGateway)
	case errors.Is(err, core.ErrEmbedding):
		h.logger.Error("upload embedding failure", "error", err)
		http.Error(w, "the embedding service is unavailable, try again later", http.StatusBadGateway)
	case errors.Is(err, core.ErrConfig):
		h.logger.Error("embedding configuration mismatch", "error", err)
		http.Error(w, "server misconfiguration, contact the administrator", http.StatusInternalServerError)
	default:
		h.logger.Error("upload failed", "error", err)
		http.Error(w, "could not import the document", http.StatusInternalServerError)
	}
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sources, err := h.store.ListSourcesByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list sources failed", "error", err)
		http.Error(w, "could not list documents", http.StatusInternalServerError)
		return
	}

	type item struct {
		ID         int64  `json:"id"`
		Name       string `json:"name"`
		FileSize   int64  `json:"file_size"`
		MimeType   string `json:"mime_type"`
		UploadedAt string `json:"uploaded_at"`
	}
	out := make([]item, 0, len(sources))
	for _, s := range sources {
		out = append(out, item{
			ID:         s.ID,
			Name:       s.Name,
			FileSize:   s.FileSize,
			MimeType:   s.MimeType,
			UploadedAt: s.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sourceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid document id", http.StatusBadRequest)
		return
	}

	if err := h.ingestor.Remove(r.Context(), userID, sourceID); err != nil {
		h.logger.Error("delete source failed", "source_id", sourceID, "error", err)
		http.Error(w, "could not delete the document", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
