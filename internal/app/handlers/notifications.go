package handlers

import (
	"log/slog"
	"net/http"

	"github.com/thanwa/marketgo/internal/domain/models"
	"github.com/thanwa/marketgo/internal/jwt-new/jwtmiddleware"
	"github.com/thanwa/marketgo/internal/storage"
)

// NotificationsResponse — уведомления пользователя
type NotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
}

// ListNotificationsHandler обрабатывает GET /api/notifications
func ListNotificationsHandler(log *slog.Logger, notifRepo storage.NotificationStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListNotificationsHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		notifications, err := notifRepo.GetNotificationsByUser(r.Context(), userID)
		if err != nil {
			logger.Error("failed to list notifications", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, NotificationsResponse{Notifications: notifications})
	}
}
