package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/thanwa/marketgo/internal/domain/models"
)

// MessageStorage описывает методы для работы с сообщениями чата.
// Лог сообщений append-only: контент после вставки не меняется,
// мутируется только флаг прочтения.
type MessageStorage interface {
	// CreateMessage сохраняет сообщение и возвращает его с серверными id и временем.
	CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetMessagesByRoom(ctx context.Context, roomID int64) ([]*models.Message, error)
	// MarkMessagesRead помечает прочитанными все чужие непрочитанные сообщения комнаты.
	// Повторный вызов — no-op (затрагивает 0 строк).
	MarkMessagesRead(ctx context.Context, roomID, readerID int64) (int64, error)
}

type messageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *messageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	query := `INSERT INTO messages (room_id, sender_id, message_type, content, image_url, file_url, is_read, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())
	          RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		msg.RoomID, msg.SenderID, msg.MessageType, msg.Content, msg.ImageURL, msg.FileURL,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

func (r *messageRepository) GetMessagesByRoom(ctx context.Context, roomID int64) ([]*models.Message, error) {
	query := `SELECT m.id, m.room_id, m.sender_id, u.email, m.message_type, m.content, m.image_url, m.file_url, m.is_read, m.read_at, m.created_at
	          FROM messages m
	          JOIN users u ON u.id = m.sender_id
	          WHERE m.room_id = $1
	          ORDER BY m.created_at, m.id`
	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var imageURL, fileURL sql.NullString
		var readAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName,
			&msg.MessageType, &msg.Content, &imageURL, &fileURL, &msg.IsRead, &readAt, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if imageURL.Valid {
			msg.ImageURL = &imageURL.String
		}
		if fileURL.Valid {
			msg.FileURL = &fileURL.String
		}
		if readAt.Valid {
			msg.ReadAt = &readAt.Time
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) MarkMessagesRead(ctx context.Context, roomID, readerID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE, read_at = NOW()
		 WHERE room_id = $1 AND sender_id <> $2 AND is_read = FALSE`,
		roomID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
