package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	middleware "github.com/PascheK/PascheK-ChatBox/internal/api/middlewares"
	"github.com/PascheK/PascheK-ChatBox/internal/core"
)

const keywordSearchLimit = 20

// SearchHandler answers the sidebar keyword search: chat titles and
// document names matching a term, scoped to the caller.
type SearchHandler struct {
	store  core.Store
	logger *slog.Logger
}

func NewSearchHandler(store core.Store, logger *slog.Logger) *SearchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchHandler{store: store, logger: logger.With("component", "keyword-search")}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	term := strings.TrimSpace(r.URL.Query().Get("q"))

	type chatHit struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	type docHit struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	resp := struct {
		Chats     []chatHit `json:"chats"`
		Documents []docHit  `json:"documents"`
	}{Chats: []chatHit{}, Documents: []docHit{}}

	if term == "" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	chats, err := h.store.SearchChats(r.Context(), userID, term, keywordSearchLimit)
	if err != nil {
		h.logger.Error("chat search failed", "error", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	for _, c := range chats {
		resp.Chats = append(resp.Chats, chatHit{ID: c.ID, Title: c.Title})
	}

	sources, err := h.store.SearchSourcesByName(r.Context(), userID, term, keywordSearchLimit)
	if err != nil {
		h.logger.Error("source search failed", "error", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	for _, s := range sources {
		resp.Documents = append(resp.Documents, docHit{ID: s.ID, Name: s.Name})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
