package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PascheK/PascheK-ChatBox/internal/models"
)

func TestTitleFromMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.Message
		want     string
	}{
		{
			name: "no messages",
			want: "",
		},
		{
			name: "assistant only",
			messages: []models.Message{
				{Role: "assistant", Content: "Hello, how can I help?"},
			},
			want: "",
		},
		{
			name: "short user message used verbatim",
			messages: []models.Message{
				{Role: "user", Content: "What is photosynthesis?"},
			},
			want: "What is photosynthesis?",
		},
		{
			name: "first user message wins",
			messages: []models.Message{
				{Role: "assistant", Content: "Hi!"},
				{Role: "user", Content: "Explain entropy"},
				{Role: "user", Content: "And enthalpy"},
			},
			want: "Explain entropy",
		},
		{
			name: "long message ellipsized at 50 runes",
			messages: []models.Message{
				{Role: "user", Content: strings.Repeat("x", 80)},
			},
			want: strings.Repeat("x", 47) + "...",
		},
		{
			name: "whitespace-only user message skipped",
			messages: []models.Message{
				{Role: "user", Content: "   "},
				{Role: "user", Content: "Real question"},
			},
			want: "Real question",
		},
		{
			name: "multibyte runes counted as runes",
			messages: []models.Message{
				{Role: "user", Content: strings.Repeat("é", 60)},
			},
			want: strings.Repeat("é", 47) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TitleFromMessages(tt.messages)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), 50)
		})
	}
}
