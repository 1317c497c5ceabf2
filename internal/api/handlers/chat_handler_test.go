package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/PascheK/PascheK-ChatBox/internal/api/middlewares"
	"github.com/PascheK/PascheK-ChatBox/internal/core"
	"github.com/PascheK/PascheK-ChatBox/internal/models"
	"github.com/PascheK/PascheK-ChatBox/internal/services"
)

type chatStore struct {
	core.Store

	chat        *models.Chat
	getErr      error
	savedTitle  string
	savedMsgs   []models.Message
	updateCalls int
}

func (s *chatStore) GetChat(_ context.Context, _ int64, _ string) (*models.Chat, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	cp := *s.chat
	return &cp, nil
}

func (s *chatStore) UpdateChatMessages(_ context.Context, _ int64, _ string, title string, messages []models.Message) error {
	s.updateCalls++
	s.savedTitle = title
	s.savedMsgs = messages
	return nil
}

type stubSearcher struct {
	hits []models.SearchHit
	err  error

	gotQuery     string
	gotLimit     int
	gotThreshold float32
}

func (s *stubSearcher) Search(_ context.Context, query string, limit int, threshold float32) ([]models.SearchHit, error) {
	s.gotQuery = query
	s.gotLimit = limit
	s.gotThreshold = threshold
	return s.hits, s.err
}

type stubLLM struct {
	answer    string
	err       error
	gotPrompt string
}

func (s *stubLLM) Generate(_ context.Context, _ string, userPrompt string) (string, error) {
	s.gotPrompt = userPrompt
	return s.answer, s.err
}

func queryRequest(t *testing.T, userID int64, chatID, message string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/"+chatID+"/query",
		strings.NewReader(`{"message": `+"\""+message+"\""+`}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), userID))

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", chatID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestQueryUsesRetrievedContext(t *testing.T) {
	store := &chatStore{chat: &models.Chat{ID: "c1", UserID: 1, Messages: []models.Message{}}}
	searcher := &stubSearcher{hits: []models.SearchHit{
		{ChunkID: 10, Content: "mitochondria are the powerhouse", SourceName: "bio.pdf", SourceURL: "https://x/bio.pdf", Score: 0.9},
	}}
	llm := &stubLLM{answer: "It is the powerhouse of the cell."}
	h := NewChatHandler(services.NewChatService(store), searcher, llm, nil)

	rec := httptest.NewRecorder()
	h.Query(rec, queryRequest(t, 1, "c1", "what are mitochondria?"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "what are mitochondria?", searcher.gotQuery)
	assert.Equal(t, 3, searcher.gotLimit)
	assert.InDelta(t, 0.5, searcher.gotThreshold, 1e-6)

	assert.Contains(t, llm.gotPrompt, "mitochondria are the powerhouse")
	assert.Contains(t, llm.gotPrompt, "bio.pdf")
	assert.Contains(t, llm.gotPrompt, "what are mitochondria?")

	assert.Contains(t, rec.Body.String(), "powerhouse of the cell")
	assert.Contains(t, rec.Body.String(), "https://x/bio.pdf")

	require.Len(t, store.savedMsgs, 2)
	assert.Equal(t, "user", store.savedMsgs[0].Role)
	assert.Equal(t, "assistant", store.savedMsgs[1].Role)
	assert.Equal(t, "what are mitochondria?", store.savedTitle)
}

func TestQueryDegradesWhenSearchFails(t *testing.T) {
	store := &chatStore{chat: &models.Chat{ID: "c1", UserID: 1}}
	searcher := &stubSearcher{err: errors.New("pgvector down")}
	llm := &stubLLM{answer: "General knowledge answer."}
	h := NewChatHandler(services.NewChatService(store), searcher, llm, nil)

	rec := httptest.NewRecorder()
	h.Query(rec, queryRequest(t, 1, "c1", "anything"))

	require.Equal(t, http.StatusOK, rec.Code, "retrieval failure must not fail the turn")
	assert.NotContains(t, llm.gotPrompt, "Document context")
	assert.Contains(t, rec.Body.String(), "General knowledge answer.")
}

func TestQueryGenerationFailure(t *testing.T) {
	store := &chatStore{chat: &models.Chat{ID: "c1", UserID: 1}}
	h := NewChatHandler(services.NewChatService(store), &stubSearcher{}, &stubLLM{err: errors.New("quota")}, nil)

	rec := httptest.NewRecorder()
	h.Query(rec, queryRequest(t, 1, "c1", "anything"))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Zero(t, store.updateCalls, "nothing must be persisted on a failed turn")
}

func TestQueryEmptyMessage(t *testing.T) {
	store := &chatStore{chat: &models.Chat{ID: "c1", UserID: 1}}
	h := NewChatHandler(services.NewChatService(store), &stubSearcher{}, &stubLLM{}, nil)

	rec := httptest.NewRecorder()
	h.Query(rec, queryRequest(t, 1, "c1", "   "))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryUnknownChat(t *testing.T) {
	store := &chatStore{getErr: errors.New("no rows")}
	h := NewChatHandler(services.NewChatService(store), &stubSearcher{}, &stubLLM{}, nil)

	rec := httptest.NewRecorder()
	h.Query(rec, queryRequest(t, 1, "missing", "hello"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryAppendsToHistory(t *testing.T) {
	store := &chatStore{chat: &models.Chat{
		ID: "c1", UserID: 1, Title: "Existing",
		Messages: []models.Message{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
		},
	}}
	llm := &stubLLM{answer: "follow-up answer"}
	h := NewChatHandler(services.NewChatService(store), &stubSearcher{}, llm, nil)

	rec := httptest.NewRecorder()
	h.Query(rec, queryRequest(t, 1, "c1", "follow-up"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.savedMsgs, 4)
	assert.Equal(t, "earlier question", store.savedMsgs[0].Content)
	assert.Equal(t, "follow-up", store.savedMsgs[2].Content)
	assert.Contains(t, llm.gotPrompt, "earlier answer")
}
