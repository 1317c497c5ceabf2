package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	middleware "github.com/PascheK/PascheK-ChatBox/internal/api/middlewares"
	"github.com/PascheK/PascheK-ChatBox/internal/core"
	"github.com/PascheK/PascheK-ChatBox/internal/core/rag"
	"github.com/PascheK/PascheK-ChatBox/internal/models"
	"github.com/PascheK/PascheK-ChatBox/internal/services"
)

const chatSystemPrompt = `You are an intelligent study assistant. Answer the user's question
using the provided document context when it is relevant. Cite the source
name when you rely on a passage. When the context does not cover the
question, say so and answer from general knowledge.`

// ChatHandler exposes conversation CRUD and the RAG-augmented query turn.
type ChatHandler struct {
	chats    *services.ChatService
	searcher core.Searcher
	llm      core.LLMProvider
	logger   *slog.Logger
}

func NewChatHandler(chats *services.ChatService, searcher core.Searcher, llm core.LLMProvider, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{chats: chats, searcher: searcher, llm: llm, logger: logger.With("component", "chat")}
}

func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	// An empty body is fine: untitled chats get a title on first message.
	_ = json.NewDecoder(r.Body).Decode(&req)

	chat, err := h.chats.Create(r.Context(), userID, req.Title)
	if err != nil {
		h.logger.Error("create chat failed", "error", err)
		http.Error(w, "could not create chat", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(chat)
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chats, err := h.chats.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list chats failed", "error", err)
		http.Error(w, "could not list chats", http.StatusInternalServerError)
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(chats)
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chat, err := h.chats.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(chat)
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.chats.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.chats.Rename(r.Context(), userID, chi.URLParam(r, "id"), req.Title); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Query runs one RAG chat turn: retrieve supporting chunks, generate the
// assistant reply with that context, persist both messages. Retrieval
// failures degrade to an uncontextualized answer instead of failing the
// turn.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	chatID := chi.URLParam(r, "id")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	question := strings.TrimSpace(req.Message)
	if question == "" {
		http.Error(w, "message must not be empty", http.StatusBadRequest)
		return
	}

	chat, err := h.chats.Get(r.Context(), userID, chatID)
	if err != nil {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}

	hits, err := h.searcher.Search(r.Context(), question, rag.DefaultSearchLimit, rag.DefaultSearchThreshold)
	if err != nil {
		h.logger.Warn("knowledge search failed, answering without context", "error", err)
		hits = nil
	}

	answer, err := h.llm.Generate(r.Context(), chatSystemPrompt, buildUserPrompt(question, chat.Messages, hits))
	if err != nil {
		h.logger.Error("generation failed", "chat_id", chatID, "error", err)
		http.Error(w, "the assistant is unavailable, try again later", http.StatusBadGateway)
		return
	}

	messages := append(chat.Messages,
		models.Message{Role: "user", Content: question},
		models.Message{Role: "assistant", Content: answer},
	)
	if err := h.chats.UpdateMessages(r.Context(), userID, chatID, messages); err != nil {
		h.logger.Error("persist chat turn failed", "chat_id", chatID, "error", err)
		http.Error(w, "could not save the conversation", http.StatusInternalServerError)
		return
	}

	type sourceRef struct {
		Name  string  `json:"name"`
		URL   string  `json:"url"`
		Score float32 `json:"score"`
	}
	refs := make([]sourceRef, 0, len(hits))
	for _, hit := range hits {
		refs = append(refs, sourceRef{Name: hit.SourceName, URL: hit.SourceURL, Score: hit.Score})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"answer":  answer,
		"sources": refs,
	})
}

// buildUserPrompt lays out prior turns, numbered context passages and the
// question in one prompt block.
func buildUserPrompt(question string, history []models.Message, hits []models.SearchHit) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		// Keep the prompt bounded on long conversations.
		start := 0
		if len(history) > 10 {
			start = len(history) - 10
		}
		for _, msg := range history[start:] {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
		b.WriteString("\n")
	}

	if len(hits) > 0 {
		b.WriteString("Document context:\n")
		for i, hit := range hits {
			fmt.Fprintf(&b, "[%d] (from %s)\n%s\n\n", i+1, hit.SourceName, hit.Content)
		}
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
