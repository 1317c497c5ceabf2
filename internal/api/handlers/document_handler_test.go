package handlers

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/PascheK/PascheK-ChatBox/internal/api/middlewares"
	"github.com/PascheK/PascheK-ChatBox/internal/core"
	"github.com/PascheK/PascheK-ChatBox/internal/models"
)

type stubIngestor struct {
	id  int64
	err error

	gotOwner int64
	gotName  string
	gotMime  string
}

func (s *stubIngestor) Ingest(_ context.Context, ownerID int64, _ []byte, fileName, mimeType string) (int64, error) {
	s.gotOwner = ownerID
	s.gotName = fileName
	s.gotMime = mimeType
	return s.id, s.err
}

func (s *stubIngestor) Remove(context.Context, int64, int64) error { return s.err }

// stubStore overrides only what the document handler touches.
type stubStore struct {
	core.Store
	sources []models.Source
	err     error
}

func (s *stubStore) ListSourcesByUser(context.Context, int64) ([]models.Source, error) {
	return s.sources, s.err
}

func uploadRequest(t *testing.T, userID int64, fileName string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func TestUploadSuccess(t *testing.T) {
	ing := &stubIngestor{id: 7}
	h := NewDocumentHandler(&stubStore{}, ing, nil)

	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, 3, "notes.pdf", []byte("pdf bytes")))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"source_id": 7}`, rec.Body.String())
	assert.Equal(t, int64(3), ing.gotOwner)
	assert.Equal(t, "notes.pdf", ing.gotName)
}

func TestUploadErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "duplicate source",
			err:        fmt.Errorf("ingest: %w", core.ErrDuplicateSource),
			wantStatus: http.StatusConflict,
			wantBody:   "this file was already imported",
		},
		{
			name:       "empty document",
			err:        fmt.Errorf("ingest: %w", core.ErrEmptyDocument),
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   "the document contains no extractable text",
		},
		{
			name:       "storage failure",
			err:        fmt.Errorf("ingest: %w", core.ErrStorage),
			wantStatus: http.StatusBadGateway,
			wantBody:   "file storage is unavailable",
		},
		{
			name:       "embedding failure",
			err:        fmt.Errorf("ingest: %w", core.ErrEmbedding),
			wantStatus: http.StatusBadGateway,
			wantBody:   "embedding service is unavailable",
		},
		{
			name:       "persistence failure",
			err:        fmt.Errorf("ingest: %w", core.ErrPersistence),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "could not import the document",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewDocumentHandler(&stubStore{}, &stubIngestor{err: tt.err}, nil)

			rec := httptest.NewRecorder()
			h.Upload(rec, uploadRequest(t, 1, "doc.pdf", []byte("bytes")))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestUploadMissingFileField(t *testing.T) {
	h := NewDocumentHandler(&stubStore{}, &stubIngestor{}, nil)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("other", "value"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req = req.WithContext(middleware.WithUserID(req.Context(), 1))

	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadUnauthenticated(t *testing.T) {
	h := NewDocumentHandler(&stubStore{}, &stubIngestor{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", nil)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListDocuments(t *testing.T) {
	uploaded := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &stubStore{sources: []models.Source{
		{ID: 1, Name: "a.pdf", FileSize: 100, MimeType: "application/pdf", UploadedAt: uploaded},
	}}
	h := NewDocumentHandler(store, &stubIngestor{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), 1))
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"a.pdf"`)
	assert.Contains(t, rec.Body.String(), `"2026-05-01T12:00:00Z"`)
}
