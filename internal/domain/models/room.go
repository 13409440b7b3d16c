package models

import "time"

// RoomType — тип чат-комнаты
type RoomType string

const (
	RoomTypeBuyerSeller RoomType = "buyer_seller"
	RoomTypeSellerAdmin RoomType = "seller_admin"
)

func (t RoomType) Valid() bool {
	return t == RoomTypeBuyerSeller || t == RoomTypeSellerAdmin
}

// ChatRoom — комната на двух участников. Уникальность — по неупорядоченной
// паре участников и товару (контекст товара опционален).
type ChatRoom struct {
	ID           int64     `json:"id"`
	RoomType     RoomType  `json:"room_type"`
	Participant1 int64     `json:"participant1"`
	Participant2 int64     `json:"participant2"`
	ProductID    *int64    `json:"product_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// агрегаты для списка комнат
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// HasParticipant проверяет, что пользователь — один из двух участников
func (r *ChatRoom) HasParticipant(userID int64) bool {
	return r.Participant1 == userID || r.Participant2 == userID
}
