package models

import "time"

// NotificationType — категория уведомления
type NotificationType string

const (
	NotificationTypeOrder    NotificationType = "order"
	NotificationTypePayment  NotificationType = "payment"
	NotificationTypeShipping NotificationType = "shipping"
	NotificationTypeSystem   NotificationType = "system"
)

// Notification — внутреннее уведомление пользователя
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Link      string           `json:"link,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
