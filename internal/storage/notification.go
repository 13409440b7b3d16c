package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/thanwa/marketgo/internal/domain/models"
)

// NotificationStorage описывает методы для работы с уведомлениями.
type NotificationStorage interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotificationsByUser(ctx context.Context, userID int64) ([]*models.Notification, error)
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `INSERT INTO notifications (user_id, type, title, message, link, is_read, created_at)
	          VALUES ($1, $2, $3, $4, $5, FALSE, NOW())`
	_, err := r.db.ExecContext(ctx, query, n.UserID, n.Type, n.Title, n.Message, n.Link)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) GetNotificationsByUser(ctx context.Context, userID int64) ([]*models.Notification, error) {
	query := `SELECT id, user_id, type, title, message, COALESCE(link, ''), is_read, created_at
	          FROM notifications WHERE user_id = $1
	          ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
