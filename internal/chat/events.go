package chat

import "github.com/thanwa/marketgo/internal/domain/models"

// Входящий кадр. Клиент присылает type ∈ {message, typing, read};
// незнакомые типы игнорируются, неразобранный JSON закрывает соединение.
type inboundEvent struct {
	Type        string  `json:"type"`
	Content     string  `json:"content,omitempty"`
	MessageType string  `json:"message_type,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	FileURL     *string `json:"file_url,omitempty"`
	IsTyping    bool    `json:"is_typing,omitempty"`
}

const (
	inboundMessage = "message"
	inboundTyping  = "typing"
	inboundRead    = "read"
)

// Исходящие кадры. Серверные события presence/прочтения используют свои теги
// (status, read), чтобы клиент отличал их от собственных запросов.
type messageEvent struct {
	Type    string          `json:"type"` // "message"
	Message *models.Message `json:"message"`
}

type typingEvent struct {
	Type     string `json:"type"` // "typing"
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type statusEvent struct {
	Type     string `json:"type"` // "status"
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"` // online | offline
}

type readEvent struct {
	Type   string `json:"type"` // "read"
	UserID int64  `json:"user_id"`
}
