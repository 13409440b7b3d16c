package service

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/thanwa/marketgo/internal/domain/models"
	"github.com/thanwa/marketgo/internal/storage"
)

// Notifier — контракт диспетчера уведомлений. Вызовы не блокируют и не
// возвращают ошибку: сбой доставки не должен влиять на ответ покупателю.
type Notifier interface {
	OrderCreated(orderID int64)
	PaymentReceived(orderID int64)
}

// CheckoutItem — запрошенная позиция корзины
type CheckoutItem struct {
	ProductID int64
	Quantity  int
}

// CheckoutInput — снимок корзины и данные доставки
type CheckoutInput struct {
	ShippingName    string
	ShippingPhone   string
	ShippingAddress string
	PaymentMethod   models.PaymentMethod
	Notes           string
	Items           []CheckoutItem
}

type OrderService interface {
	Checkout(ctx context.Context, buyerID int64, in CheckoutInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID, actorID int64, status models.OrderStatus) (*models.Order, error)
	MockPayment(ctx context.Context, orderID, actorID int64, success bool) (*models.Order, error)
	GetOrder(ctx context.Context, orderID, actorID int64) (*models.Order, error)
	ListOrders(ctx context.Context, userID int64, asSeller bool, status models.OrderStatus) ([]*models.Order, error)
}

type orderService struct {
	log         *slog.Logger
	db          *sql.DB
	productRepo storage.ProductStorage
	orderRepo   storage.OrderStorage
	notifier    Notifier
	shippingFee decimal.Decimal
	numAttempts int // попытки пересоздать заказ при коллизии номера
}

func NewOrderService(log *slog.Logger, db *sql.DB, productRepo storage.ProductStorage, orderRepo storage.OrderStorage, notifier Notifier, shippingFee decimal.Decimal, numAttempts int) OrderService {
	if numAttempts < 1 {
		numAttempts = 1
	}
	return &orderService{
		log:         log,
		db:          db,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		notifier:    notifier,
		shippingFee: shippingFee,
		numAttempts: numAttempts,
	}
}

// generateOrderNumber — номер вида ORD + 12 hex-символов из uuid
func generateOrderNumber() string {
	u := uuid.New()
	return "ORD" + strings.ToUpper(hex.EncodeToString(u[:6]))
}

// Checkout оформляет заказ: проверяет каждую позицию по текущему каталогу,
// снимает остатки и сохраняет заказ с позициями-снимками в одной транзакции.
// Всё или ничего: любая невалидная позиция откатывает заказ целиком.
func (s *orderService) Checkout(ctx context.Context, buyerID int64, in CheckoutInput) (*models.Order, error) {
	const op = "service.OrderService.Checkout"
	logger := s.log.With(slog.String("op", op), slog.Int64("buyerID", buyerID))

	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("product %d: %w", item.ProductID, ErrInvalidQuantity)
		}
	}
	if !in.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidStatus, in.PaymentMethod)
	}

	// Блокируем товары в стабильном порядке, иначе встречные многопозиционные
	// оформления могут взять блокировки навстречу друг другу
	items := make([]CheckoutItem, len(in.Items))
	copy(items, in.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	logger.Info("starting checkout transaction", slog.Int("items", len(items)))

	// Коллизия номера заказа обрывает транзакцию на стороне Postgres,
	// поэтому повторная попытка — это новая транзакция с новым номером
	var order *models.Order
	var err error
	for attempt := 0; attempt < s.numAttempts; attempt++ {
		order, err = s.checkoutTx(ctx, logger, buyerID, in, items)
		if errors.Is(err, storage.ErrOrderNumberTaken) {
			logger.Warn("order number collision, retrying", slog.Int("attempt", attempt+1))
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	// Диспетчеризация уведомлений асинхронная: её сбой не откатывает
	// и не задерживает ответ покупателю
	s.notifier.OrderCreated(order.ID)

	logger.Info("checkout completed",
		slog.String("orderNumber", order.OrderNumber),
		slog.String("total", order.Total.String()),
	)
	return order, nil
}

func (s *orderService) checkoutTx(ctx context.Context, logger *slog.Logger, buyerID int64, in CheckoutInput, items []CheckoutItem) (*models.Order, error) {
	const op = "service.OrderService.Checkout"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	rollback := func() {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
	}

	order := &models.Order{
		OrderNumber:     generateOrderNumber(),
		BuyerID:         buyerID,
		Status:          models.OrderStatusPending,
		ShippingName:    in.ShippingName,
		ShippingPhone:   in.ShippingPhone,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		ShippingFee:     s.shippingFee,
		Notes:           in.Notes,
	}

	orderID, err := s.orderRepo.CreateOrderTx(ctx, tx, order)
	if err != nil {
		rollback()
		if errors.Is(err, storage.ErrOrderNumberTaken) {
			return nil, err
		}
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create order: %w", op, err)
	}
	order.ID = orderID

	for _, req := range items {
		// Получаем товар под блокировкой через транзакцию
		product, err := s.productRepo.LockProductByIDTx(ctx, tx, req.ProductID)
		if err != nil {
			rollback()
			if errors.Is(err, storage.ErrProductNotFound) {
				return nil, fmt.Errorf("product %d: %w", req.ProductID, storage.ErrProductNotFound)
			}
			logger.Error("failed to get product", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to get product: %w", op, err)
		}

		// Проверяем, достаточно ли остатка
		if product.Stock < req.Quantity {
			rollback()
			logger.Warn("insufficient stock",
				slog.Int64("productID", product.ID),
				slog.Int("stock", product.Stock),
				slog.Int("requested", req.Quantity),
			)
			return nil, &InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Remaining:   product.Stock,
			}
		}

		// Снимок названия и цены на момент покупки
		item := &models.OrderItem{
			OrderID:      orderID,
			ProductID:    product.ID,
			SellerID:     product.SellerID,
			ProductName:  product.Name,
			ProductPrice: product.Price,
			Quantity:     req.Quantity,
		}
		if err := s.orderRepo.CreateOrderItemTx(ctx, tx, item); err != nil {
			rollback()
			logger.Error("failed to create order item", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to create order item: %w", op, err)
		}

		// Списываем остаток
		if err := s.productRepo.DecrementStockTx(ctx, tx, product.ID, req.Quantity); err != nil {
			rollback()
			if errors.Is(err, storage.ErrInsufficientStock) {
				return nil, &InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Remaining:   product.Stock,
				}
			}
			logger.Error("failed to decrement stock", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to decrement stock: %w", op, err)
		}
	}

	// Итоги считаются по сохранённым позициям
	subtotal, total, err := s.orderRepo.CalculateTotalsTx(ctx, tx, orderID, s.shippingFee)
	if err != nil {
		rollback()
		logger.Error("failed to calculate totals", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to calculate totals: %w", op, err)
	}
	order.Subtotal = subtotal
	order.Total = total

	// Коммит транзакции
	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	created, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		// заказ уже зафиксирован, отдаём собранное в памяти представление
		logger.Warn("failed to reload created order", slog.Any("error", err))
		return order, nil
	}
	return created, nil
}

// UpdateStatus переводит заказ в новый статус. Разрешено только продавцу,
// у которого в заказе есть хотя бы одна позиция. Из терминального статуса
// (cancelled, delivered) заказ не переводится.
func (s *orderService) UpdateStatus(ctx context.Context, orderID, actorID int64, status models.OrderStatus) (*models.Order, error) {
	const op = "service.OrderService.UpdateStatus"
	logger := s.log.With(slog.String("op", op), slog.Int64("orderID", orderID), slog.Int64("actorID", actorID))

	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !orderHasSeller(order, actorID) {
		logger.Warn("actor is not a seller on this order")
		return nil, ErrForbidden
	}

	if order.Status.Terminal() {
		logger.Warn("attempt to transition terminal order", slog.String("status", string(order.Status)))
		return nil, fmt.Errorf("%w: %s", ErrTerminalStatus, order.Status)
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, status); err != nil {
		logger.Error("failed to update status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update status: %w", op, err)
	}

	logger.Info("order status updated", slog.String("status", string(status)))
	return s.orderRepo.GetOrderByID(ctx, orderID)
}

// MockPayment — заглушка платёжного шлюза: доступна только покупателю,
// при success выставляет оплату и статус paid, при отказе ничего не меняет.
func (s *orderService) MockPayment(ctx context.Context, orderID, actorID int64, success bool) (*models.Order, error) {
	const op = "service.OrderService.MockPayment"
	logger := s.log.With(slog.String("op", op), slog.Int64("orderID", orderID), slog.Int64("actorID", actorID))

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if order.BuyerID != actorID {
		logger.Warn("actor is not the buyer")
		return nil, ErrForbidden
	}

	if order.PaymentStatus {
		return nil, ErrAlreadyPaid
	}

	if !success {
		logger.Info("mock payment declined")
		return nil, ErrPaymentDeclined
	}

	if err := s.orderRepo.SetPaid(ctx, orderID); err != nil {
		// конкурирующий платёж успел первым: проверка выше его не видела
		if errors.Is(err, storage.ErrOrderAlreadyPaid) {
			return nil, ErrAlreadyPaid
		}
		logger.Error("failed to set order paid", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to set order paid: %w", op, err)
	}

	s.notifier.PaymentReceived(orderID)

	logger.Info("mock payment succeeded")
	return s.orderRepo.GetOrderByID(ctx, orderID)
}

// GetOrder возвращает заказ; доступ у покупателя и у продавцов его позиций.
func (s *orderService) GetOrder(ctx context.Context, orderID, actorID int64) (*models.Order, error) {
	const op = "service.OrderService.GetOrder"

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if order.BuyerID != actorID && !orderHasSeller(order, actorID) {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID int64, asSeller bool, status models.OrderStatus) ([]*models.Order, error) {
	const op = "service.OrderService.ListOrders"

	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if asSeller {
		orders, err := s.orderRepo.GetOrdersBySeller(ctx, userID, status)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return orders, nil
	}
	orders, err := s.orderRepo.GetOrdersByBuyer(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func orderHasSeller(order *models.Order, userID int64) bool {
	for _, item := range order.Items {
		if item.SellerID == userID {
			return true
		}
	}
	return false
}
