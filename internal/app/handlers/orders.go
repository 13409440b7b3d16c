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

// CheckoutItemRequest — запрошенная позиция корзины
type CheckoutItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// CheckoutRequest — типизированный запрос оформления заказа
type CheckoutRequest struct {
	ShippingName    string                `json:"shipping_name" validate:"required,max=100"`
	ShippingPhone   string                `json:"shipping_phone" validate:"required,max=20"`
	ShippingAddress string                `json:"shipping_address" validate:"required"`
	PaymentMethod   string                `json:"payment_method" validate:"required,oneof=credit_card bank_transfer cod"`
	Notes           string                `json:"notes"`
	Items           []CheckoutItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CheckoutResponse — созданный заказ
type CheckoutResponse struct {
	Message string        `json:"message"`
	Order   *models.Order `json:"order"`
}

// CheckoutHandler обрабатывает запрос POST /api/orders
func CheckoutHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CheckoutHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		items := make([]service.CheckoutItem, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, service.CheckoutItem{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		order, err := orderService.Checkout(r.Context(), userID, service.CheckoutInput{
			ShippingName:    req.ShippingName,
			ShippingPhone:   req.ShippingPhone,
			ShippingAddress: req.ShippingAddress,
			PaymentMethod:   models.PaymentMethod(req.PaymentMethod),
			Notes:           req.Notes,
			Items:           items,
		})
		if err != nil {
			logger.Error("checkout failed", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusCreated, CheckoutResponse{Message: "order created", Order: order})
	}
}

// OrdersListResponse — список заказов пользователя
type OrdersListResponse struct {
	Orders []*models.Order `json:"orders"`
}

// ListOrdersHandler обрабатывает GET /api/orders?role=buyer|seller&status=...
func ListOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// продавцом можно смотреть только при наличии роли
		asSeller := r.URL.Query().Get("role") == "seller" && jwtmiddleware.SellerFromContext(r.Context())
		status := models.OrderStatus(r.URL.Query().Get("status"))

		orders, err := orderService.ListOrders(r.Context(), userID, asSeller, status)
		if err != nil {
			logger.Error("failed to list orders", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, OrdersListResponse{Orders: orders})
	}
}

// GetOrderHandler обрабатывает GET /api/orders/{id}
func GetOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		order, err := orderService.GetOrder(r.Context(), orderID, userID)
		if err != nil {
			logger.Error("failed to get order", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, order)
	}
}

// UpdateStatusRequest — запрос смены статуса заказа
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid shipped delivered cancelled"`
}

// UpdateStatusHandler обрабатывает POST /api/orders/{id}/status (для продавца)
func UpdateStatusHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateStatusHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		order, err := orderService.UpdateStatus(r.Context(), orderID, userID, models.OrderStatus(req.Status))
		if err != nil {
			logger.Error("failed to update status", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, order)
	}
}

// MockPaymentRequest — запрос к платёжной заглушке
type MockPaymentRequest struct {
	Success *bool `json:"success"` // по умолчанию true
}

// MockPaymentResponse — результат mock-оплаты
type MockPaymentResponse struct {
	Message       string        `json:"message"`
	PaymentStatus bool          `json:"payment_status"`
	Order         *models.Order `json:"order"`
}

// MockPaymentHandler обрабатывает POST /api/orders/{id}/payment (для покупателя).
// Заглушка вместо платёжного шлюза: в продакшене здесь подписанный webhook
// с ключами идемпотентности.
func MockPaymentHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.MockPaymentHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		var req MockPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		success := req.Success == nil || *req.Success

		order, err := orderService.MockPayment(r.Context(), orderID, userID, success)
		if err != nil {
			logger.Error("mock payment failed", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, MockPaymentResponse{
			Message:       "payment succeeded",
			PaymentStatus: true,
			Order:         order,
		})
	}
}
