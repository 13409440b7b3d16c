package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/thanwa/marketgo/internal/domain/models"
	"github.com/thanwa/marketgo/internal/jwt-new/jwtmiddleware"
	"github.com/thanwa/marketgo/internal/service"
)

// CreateRoomRequest — запрос на создание (или получение) комнаты
type CreateRoomRequest struct {
	ParticipantID int64  `json:"participant_id" validate:"required,gt=0"`
	ProductID     *int64 `json:"product_id"`
	RoomType      string `json:"room_type" validate:"omitempty,oneof=buyer_seller seller_admin"`
}

// CreateOrGetRoomHandler обрабатывает POST /api/chat/rooms — идемпотентно
// возвращает комнату для пары (инициатор, собеседник) и товара.
func CreateOrGetRoomHandler(log *slog.Logger, chatService service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrGetRoomHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req CreateRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		roomType := models.RoomType(req.RoomType)
		if roomType == "" {
			roomType = models.RoomTypeBuyerSeller
		}

		room, err := chatService.CreateOrGetRoom(r.Context(), userID, req.ParticipantID, req.ProductID, roomType)
		if err != nil {
			logger.Error("failed to create or get room", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, room)
	}
}

// RoomsListResponse — комнаты пользователя
type RoomsListResponse struct {
	Rooms []*models.ChatRoom `json:"rooms"`
}

// ListRoomsHandler обрабатывает GET /api/chat/rooms
func ListRoomsHandler(log *slog.Logger, chatService service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListRoomsHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		rooms, err := chatService.ListRooms(r.Context(), userID)
		if err != nil {
			logger.Error("failed to list rooms", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, RoomsListResponse{Rooms: rooms})
	}
}

// MessagesResponse — история сообщений комнаты
type MessagesResponse struct {
	Messages []*models.Message `json:"messages"`
}

// RoomMessagesHandler обрабатывает GET /api/chat/rooms/{id}/messages.
// Открытие истории помечает чужие сообщения прочитанными.
func RoomMessagesHandler(log *slog.Logger, chatService service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RoomMessagesHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		roomID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		messages, err := chatService.History(r.Context(), roomID, userID)
		if err != nil {
			logger.Error("failed to get history", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, MessagesResponse{Messages: messages})
	}
}
