package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/PascheK/PascheK-ChatBox/internal/core"
	"github.com/PascheK/PascheK-ChatBox/internal/models"
)

const titleMaxLen = 50

// ChatService owns conversation persistence: creation, listing, message
// history updates and title management.
type ChatService struct {
	store core.Store
}

func NewChatService(store core.Store) *ChatService {
	return &ChatService{store: store}
}

func (s *ChatService) Create(ctx context.Context, userID int64, title string) (*models.Chat, error) {
	chat := &models.Chat{
		ID:       uuid.NewString(),
		UserID:   userID,
		Title:    strings.TrimSpace(title),
		Messages: []models.Message{},
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *ChatService) Get(ctx context.Context, userID int64, chatID string) (*models.Chat, error) {
	chat, err := s.store.GetChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, fmt.Errorf("chat not found: %s", chatID)
	}
	return chat, nil
}

func (s *ChatService) ListByUser(ctx context.Context, userID int64) ([]models.Chat, error) {
	return s.store.ListChatsByUser(ctx, userID)
}

func (s *ChatService) Delete(ctx context.Context, userID int64, chatID string) error {
	return s.store.DeleteChat(ctx, userID, chatID)
}

// UpdateMessages replaces the chat's message history. Untitled chats get
// a title derived from the first user message; an existing title is never
// overwritten here.
func (s *ChatService) UpdateMessages(ctx context.Context, userID int64, chatID string, messages []models.Message) error {
	return s.store.UpdateChatMessages(ctx, userID, chatID, TitleFromMessages(messages), messages)
}

func (s *ChatService) Rename(ctx context.Context, userID int64, chatID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title must not be empty")
	}
	return s.store.UpdateChatTitle(ctx, userID, chatID, title)
}

// TitleFromMessages derives a chat title from the first user message:
// the first 50 runes, ellipsized when longer. Empty when there is no
// user message yet.
func TitleFromMessages(messages []models.Message) string {
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		runes := []rune(content)
		if len(runes) <= titleMaxLen {
			return content
		}
		return string(runes[:titleMaxLen-3]) + "..."
	}
	return ""
}
