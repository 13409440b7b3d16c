package models

import "time"

// MessageType — тип сообщения в чате
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// Message — сообщение в комнате. Контент после создания не меняется,
// мутируется только флаг прочтения.
type Message struct {
	ID          int64       `json:"id"`
	RoomID      int64       `json:"room_id"`
	SenderID    int64       `json:"sender_id"`
	SenderName  string      `json:"sender_name,omitempty"`
	MessageType MessageType `json:"message_type"`
	Content     string      `json:"content"`
	ImageURL    *string     `json:"image_url,omitempty"`
	FileURL     *string     `json:"file_url,omitempty"`
	IsRead      bool        `json:"is_read"`
	ReadAt      *time.Time  `json:"read_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
