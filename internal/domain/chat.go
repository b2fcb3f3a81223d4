package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxChatTextLen = 500
	ChatHistoryCap = 100
)

type ChatMessage struct {
	ID          string    `json:"id"`
	UserID      UserID    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// NormalizeChatText trims surrounding whitespace and enforces the length bound.
func NormalizeChatText(text string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = MaxChatTextLen
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrChatEmpty
	}
	if utf8.RuneCountInString(text) > maxLen {
		return "", ErrChatTooLong
	}
	return text, nil
}
