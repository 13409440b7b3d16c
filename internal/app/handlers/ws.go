package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/thanwa/marketgo/internal/chat"
	"github.com/thanwa/marketgo/internal/jwt-new/jwtmiddleware"
	"github.com/thanwa/marketgo/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// источники фильтрует обратный прокси
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatWSHandler обрабатывает GET /ws/chat/{roomID}.
// Жизненный цикл соединения: Connecting -> Authorized -> Joined -> Closed.
// Не-участник комнаты закрывается сразу после рукопожатия, в группу не попадая,
// поэтому другим участникам ничего не рассылается.
func ChatWSHandler(log *slog.Logger, hub *chat.Hub, chatService service.ChatService) http.HandlerFunc {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		panic("JWT_SECRET is not set")
	}
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ChatWSHandler"
		logger := log.With(slog.String("op", op))

		// Браузерный WebSocket не умеет ставить заголовки, токен приходит
		// query-параметром; заголовок поддержан для не-браузерных клиентов
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			authHeader := r.Header.Get("Authorization")
			if parts := strings.Split(authHeader, " "); len(parts) == 2 && parts[0] == "Bearer" {
				tokenStr = parts[1]
			}
		}
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		userID, email, _, err := jwtmiddleware.ParseToken(tokenStr, secret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		// авторизация до апгрейда: чужая комната не получает соединения вовсе
		if _, err := chatService.AuthorizeRoom(r.Context(), roomID, userID); err != nil {
			if errors.Is(err, service.ErrForbidden) {
				logger.Warn("join rejected: not a participant",
					slog.Int64("roomID", roomID),
					slog.Int64("userID", userID),
				)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			writeError(w, logger, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", slog.Any("error", err))
			return
		}

		logger.Info("websocket connected", slog.Int64("roomID", roomID), slog.Int64("userID", userID))
		chat.ServeRoom(logger, hub, chatService, conn, roomID, userID, email)
	}
}
