package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/thanwa/marketgo/internal/domain/models"
	"github.com/thanwa/marketgo/internal/storage"
)

// MessageInput — входящее сообщение до персиста
type MessageInput struct {
	MessageType models.MessageType
	Content     string
	ImageURL    *string
	FileURL     *string
}

type ChatService interface {
	// CreateOrGetRoom идемпотентно возвращает комнату для пары участников и товара.
	CreateOrGetRoom(ctx context.Context, initiatorID, otherID int64, productID *int64, roomType models.RoomType) (*models.ChatRoom, error)
	ListRooms(ctx context.Context, userID int64) ([]*models.ChatRoom, error)
	// AuthorizeRoom возвращает комнату, если пользователь — её участник, иначе ErrForbidden.
	AuthorizeRoom(ctx context.Context, roomID, userID int64) (*models.ChatRoom, error)
	// History возвращает сообщения комнаты по возрастанию времени и попутно
	// помечает чужие непрочитанные как прочитанные.
	History(ctx context.Context, roomID, userID int64) ([]*models.Message, error)
	// SaveMessage персистит сообщение участника комнаты.
	SaveMessage(ctx context.Context, roomID, senderID int64, in MessageInput) (*models.Message, error)
	// MarkRead помечает прочитанными все чужие сообщения, возвращает число затронутых.
	MarkRead(ctx context.Context, roomID, readerID int64) (int64, error)
}

type chatService struct {
	log      *slog.Logger
	roomRepo storage.RoomStorage
	msgRepo  storage.MessageStorage
	userRepo storage.UserStorage
}

func NewChatService(log *slog.Logger, roomRepo storage.RoomStorage, msgRepo storage.MessageStorage, userRepo storage.UserStorage) ChatService {
	return &chatService{
		log:      log,
		roomRepo: roomRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
	}
}

// CreateOrGetRoom сначала ищет существующую комнату, при гонке двух создающих
// уникальный индекс пары пропускает только одного, второй перечитывает.
func (s *chatService) CreateOrGetRoom(ctx context.Context, initiatorID, otherID int64, productID *int64, roomType models.RoomType) (*models.ChatRoom, error) {
	const op = "service.ChatService.CreateOrGetRoom"
	logger := s.log.With(slog.String("op", op), slog.Int64("initiatorID", initiatorID), slog.Int64("otherID", otherID))

	if initiatorID == otherID {
		return nil, fmt.Errorf("%w: cannot open a room with yourself", ErrForbidden)
	}
	if !roomType.Valid() {
		return nil, fmt.Errorf("%w: unknown room type %q", ErrInvalidStatus, roomType)
	}

	// собеседник должен существовать
	if _, err := s.userRepo.GetUserByID(ctx, otherID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: failed to get user: %w", op, err)
	}

	room, err := s.roomRepo.FindRoom(ctx, initiatorID, otherID, productID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, storage.ErrRoomNotFound) {
		logger.Error("failed to find room", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to find room: %w", op, err)
	}

	created, err := s.roomRepo.CreateRoom(ctx, &models.ChatRoom{
		RoomType:     roomType,
		Participant1: initiatorID,
		Participant2: otherID,
		ProductID:    productID,
	})
	if err != nil {
		// конкурентное создание: комната уже есть, перечитываем
		if errors.Is(err, storage.ErrRoomExists) {
			logger.Info("room created concurrently, refetching")
			return s.roomRepo.FindRoom(ctx, initiatorID, otherID, productID)
		}
		logger.Error("failed to create room", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create room: %w", op, err)
	}

	logger.Info("room created", slog.Int64("roomID", created.ID))
	return created, nil
}

func (s *chatService) ListRooms(ctx context.Context, userID int64) ([]*models.ChatRoom, error) {
	const op = "service.ChatService.ListRooms"

	rooms, err := s.roomRepo.GetRoomsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rooms, nil
}

func (s *chatService) AuthorizeRoom(ctx context.Context, roomID, userID int64) (*models.ChatRoom, error) {
	const op = "service.ChatService.AuthorizeRoom"

	room, err := s.roomRepo.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !room.HasParticipant(userID) {
		return nil, ErrForbidden
	}
	return room, nil
}

func (s *chatService) History(ctx context.Context, roomID, userID int64) ([]*models.Message, error) {
	const op = "service.ChatService.History"

	if _, err := s.AuthorizeRoom(ctx, roomID, userID); err != nil {
		return nil, err
	}

	messages, err := s.msgRepo.GetMessagesByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// открытие истории означает прочтение
	if _, err := s.msgRepo.MarkMessagesRead(ctx, roomID, userID); err != nil {
		s.log.Error("failed to mark messages read", slog.String("op", op), slog.Any("error", err))
	}

	return messages, nil
}

// SaveMessage требует непустой контент либо хотя бы одно вложение.
func (s *chatService) SaveMessage(ctx context.Context, roomID, senderID int64, in MessageInput) (*models.Message, error) {
	const op = "service.ChatService.SaveMessage"

	if in.Content == "" && in.ImageURL == nil && in.FileURL == nil {
		return nil, ErrEmptyMessage
	}

	msgType := in.MessageType
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrInvalidStatus, msgType)
	}

	msg, err := s.msgRepo.CreateMessage(ctx, &models.Message{
		RoomID:      roomID,
		SenderID:    senderID,
		MessageType: msgType,
		Content:     in.Content,
		ImageURL:    in.ImageURL,
		FileURL:     in.FileURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// комната поднимается в списке по активности
	if err := s.roomRepo.Touch(ctx, roomID); err != nil {
		s.log.Error("failed to touch room", slog.String("op", op), slog.Any("error", err))
	}

	return msg, nil
}

func (s *chatService) MarkRead(ctx context.Context, roomID, readerID int64) (int64, error) {
	const op = "service.ChatService.MarkRead"

	n, err := s.msgRepo.MarkMessagesRead(ctx, roomID, readerID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
