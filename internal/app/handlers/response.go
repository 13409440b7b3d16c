package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/thanwa/marketgo/internal/service"
	"github.com/thanwa/marketgo/internal/storage"
)

var validate = validator.New()

// ErrorResponse — единый формат тела ошибки
type ErrorResponse struct {
	Error     string `json:"error"`
	Remaining *int   `json:"remaining,omitempty"` // остаток товара при нехватке
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeError отображает ошибки бизнес-логики в коды ответов:
// not found -> 404, forbidden -> 403, конфликты/нехватка -> 409, остальное -> 400/500
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var stockErr *service.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		remaining := stockErr.Remaining
		writeJSON(w, log, http.StatusConflict, ErrorResponse{Error: stockErr.Error(), Remaining: &remaining})
	case errors.Is(err, storage.ErrProductNotFound),
		errors.Is(err, storage.ErrOrderNotFound),
		errors.Is(err, storage.ErrRoomNotFound),
		errors.Is(err, storage.ErrUserNotFound):
		writeJSON(w, log, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, log, http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrAlreadyPaid),
		errors.Is(err, service.ErrTerminalStatus),
		errors.Is(err, storage.ErrRoomExists):
		writeJSON(w, log, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrEmptyOrder),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrPaymentDeclined):
		writeJSON(w, log, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		log.Error("internal error", slog.Any("error", err))
		writeJSON(w, log, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
