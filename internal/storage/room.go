package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/thanwa/marketgo/internal/domain/models"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
)

// RoomStorage описывает методы для работы с чат-комнатами.
type RoomStorage interface {
	GetRoomByID(ctx context.Context, id int64) (*models.ChatRoom, error)
	// FindRoom ищет активную комнату по неупорядоченной паре участников и товару.
	FindRoom(ctx context.Context, user1, user2 int64, productID *int64) (*models.ChatRoom, error)
	// CreateRoom вставляет комнату; гонку дубликатов ловит уникальный индекс БД (ErrRoomExists).
	CreateRoom(ctx context.Context, room *models.ChatRoom) (*models.ChatRoom, error)
	// GetRoomsByUser возвращает комнаты пользователя с последним сообщением и числом непрочитанных.
	GetRoomsByUser(ctx context.Context, userID int64) ([]*models.ChatRoom, error)
	// Touch обновляет updated_at — комнаты сортируются по последней активности.
	Touch(ctx context.Context, roomID int64) error
}

type roomRepository struct {
	db *sql.DB
}

func NewRoomRepository(db *sql.DB) *roomRepository {
	return &roomRepository{db: db}
}

const roomColumns = "id, room_type, participant1_id, participant2_id, product_id, is_active, created_at, updated_at"

func scanRoom(row *sql.Row) (*models.ChatRoom, error) {
	room := &models.ChatRoom{}
	var productID sql.NullInt64
	if err := row.Scan(&room.ID, &room.RoomType, &room.Participant1, &room.Participant2,
		&productID, &room.IsActive, &room.CreatedAt, &room.UpdatedAt); err != nil {
		return nil, err
	}
	if productID.Valid {
		room.ProductID = &productID.Int64
	}
	return room, nil
}

func (r *roomRepository) GetRoomByID(ctx context.Context, id int64) (*models.ChatRoom, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM chat_rooms WHERE id = $1", id)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (r *roomRepository) FindRoom(ctx context.Context, user1, user2 int64, productID *int64) (*models.ChatRoom, error) {
	// пара не упорядочена: (a,b) и (b,a) — одна и та же комната
	query := `SELECT ` + roomColumns + ` FROM chat_rooms
	          WHERE LEAST(participant1_id, participant2_id) = LEAST($1::bigint, $2::bigint)
	            AND GREATEST(participant1_id, participant2_id) = GREATEST($1::bigint, $2::bigint)
	            AND product_id IS NOT DISTINCT FROM $3
	            AND is_active = TRUE`
	var pid sql.NullInt64
	if productID != nil {
		pid = sql.NullInt64{Int64: *productID, Valid: true}
	}
	row := r.db.QueryRowContext(ctx, query, user1, user2, pid)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (r *roomRepository) CreateRoom(ctx context.Context, room *models.ChatRoom) (*models.ChatRoom, error) {
	query := `INSERT INTO chat_rooms (room_type, participant1_id, participant2_id, product_id, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
	          RETURNING ` + roomColumns
	var pid sql.NullInt64
	if room.ProductID != nil {
		pid = sql.NullInt64{Int64: *room.ProductID, Valid: true}
	}
	row := r.db.QueryRowContext(ctx, query, room.RoomType, room.Participant1, room.Participant2, pid)
	created, err := scanRoom(row)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrRoomExists
		}
		return nil, err
	}
	return created, nil
}

func (r *roomRepository) GetRoomsByUser(ctx context.Context, userID int64) ([]*models.ChatRoom, error) {
	query := `SELECT r.id, r.room_type, r.participant1_id, r.participant2_id, r.product_id, r.is_active, r.created_at, r.updated_at,
	                 m.id, m.sender_id, m.message_type, m.content, m.created_at,
	                 (SELECT COUNT(*) FROM messages u WHERE u.room_id = r.id AND u.is_read = FALSE AND u.sender_id <> $1)
	          FROM chat_rooms r
	          LEFT JOIN LATERAL (
	              SELECT id, sender_id, message_type, content, created_at
	              FROM messages WHERE room_id = r.id
	              ORDER BY created_at DESC, id DESC LIMIT 1
	          ) m ON TRUE
	          WHERE (r.participant1_id = $1 OR r.participant2_id = $1) AND r.is_active = TRUE
	          ORDER BY r.updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.ChatRoom
	for rows.Next() {
		room := &models.ChatRoom{}
		var productID sql.NullInt64
		var msgID, msgSender sql.NullInt64
		var msgType, msgContent sql.NullString
		var msgCreated sql.NullTime
		if err := rows.Scan(&room.ID, &room.RoomType, &room.Participant1, &room.Participant2,
			&productID, &room.IsActive, &room.CreatedAt, &room.UpdatedAt,
			&msgID, &msgSender, &msgType, &msgContent, &msgCreated,
			&room.UnreadCount); err != nil {
			return nil, err
		}
		if productID.Valid {
			room.ProductID = &productID.Int64
		}
		if msgID.Valid {
			room.LastMessage = &models.Message{
				ID:          msgID.Int64,
				RoomID:      room.ID,
				SenderID:    msgSender.Int64,
				MessageType: models.MessageType(msgType.String),
				Content:     msgContent.String,
				CreatedAt:   msgCreated.Time,
			}
		}
		result = append(result, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *roomRepository) Touch(ctx context.Context, roomID int64) error {
	_, err := r.db.ExecContext(ctx, "UPDATE chat_rooms SET updated_at = NOW() WHERE id = $1", roomID)
	return err
}
