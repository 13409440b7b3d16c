package notify_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/thanwa/marketgo/internal/config"
	"github.com/thanwa/marketgo/internal/domain/models"
	"github.com/thanwa/marketgo/internal/notify"
	"github.com/thanwa/marketgo/internal/storage"
)

// stubOrderRepo отдаёт заранее подготовленные заказы; остальное не используется
type stubOrderRepo struct {
	orders map[int64]*models.Order
}

var _ storage.OrderStorage = (*stubOrderRepo)(nil)

func (s *stubOrderRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return order, nil
}

func (s *stubOrderRepo) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *stubOrderRepo) CreateOrderItemTx(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	return errors.New("not implemented")
}

func (s *stubOrderRepo) CalculateTotalsTx(ctx context.Context, tx *sql.Tx, orderID int64, fee decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, errors.New("not implemented")
}

func (s *stubOrderRepo) GetOrdersByBuyer(ctx context.Context, buyerID int64, status models.OrderStatus) ([]*models.Order, error) {
	return nil, errors.New("not implemented")
}

func (s *stubOrderRepo) GetOrdersBySeller(ctx context.Context, sellerID int64, status models.OrderStatus) ([]*models.Order, error) {
	return nil, errors.New("not implemented")
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	return errors.New("not implemented")
}

func (s *stubOrderRepo) SetPaid(ctx context.Context, orderID int64) error {
	return errors.New("not implemented")
}

// recordingNotifRepo записывает уведомления; первые failFirst вставок падают
type recordingNotifRepo struct {
	mu            sync.Mutex
	failFirst     int
	notifications []*models.Notification
}

var _ storage.NotificationStorage = (*recordingNotifRepo)(nil)

func (r *recordingNotifRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFirst > 0 {
		r.failFirst--
		return errors.New("insert failed")
	}
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recordingNotifRepo) GetNotificationsByUser(ctx context.Context, userID int64) ([]*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Notification
	for _, n := range r.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	return result, nil
}

func (r *recordingNotifRepo) all() []*models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Notification(nil), r.notifications...)
}

func total(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testOrder() *models.Order {
	return &models.Order{
		ID:          1,
		OrderNumber: "ORDAABBCCDDEEFF",
		BuyerID:     7,
		Total:       total("540.00"),
		Items: []*models.OrderItem{
			{OrderID: 1, SellerID: 5},
			{OrderID: 1, SellerID: 5}, // две позиции одного продавца — одно уведомление
			{OrderID: 1, SellerID: 9},
		},
	}
}

func newDispatcher(orderRepo storage.OrderStorage, notifRepo storage.NotificationStorage, maxRetries int) *notify.Dispatcher {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return notify.NewDispatcher(log, orderRepo, notifRepo, config.NotifyConfig{
		Workers:      2,
		QueueSize:    16,
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
	})
}

func TestDispatcher_OrderCreatedFanOut(t *testing.T) {
	orderRepo := &stubOrderRepo{orders: map[int64]*models.Order{1: testOrder()}}
	notifRepo := &recordingNotifRepo{}

	d := newDispatcher(orderRepo, notifRepo, 2)
	d.Start()
	d.OrderCreated(1)
	d.Stop()

	// покупатель + два уникальных продавца
	notifications := notifRepo.all()
	assert.Len(t, notifications, 3)

	byUser := map[int64]*models.Notification{}
	for _, n := range notifications {
		byUser[n.UserID] = n
	}
	assert.Contains(t, byUser, int64(7))
	assert.Contains(t, byUser, int64(5))
	assert.Contains(t, byUser, int64(9))
	assert.Equal(t, models.NotificationTypeOrder, byUser[7].Type)
	assert.Contains(t, byUser[7].Message, "ORDAABBCCDDEEFF")
	assert.Contains(t, byUser[7].Message, "540.00")
}

func TestDispatcher_PaymentReceived(t *testing.T) {
	orderRepo := &stubOrderRepo{orders: map[int64]*models.Order{1: testOrder()}}
	notifRepo := &recordingNotifRepo{}

	d := newDispatcher(orderRepo, notifRepo, 2)
	d.Start()
	d.PaymentReceived(1)
	d.Stop()

	notifications := notifRepo.all()
	assert.Len(t, notifications, 1)
	assert.Equal(t, int64(7), notifications[0].UserID)
	assert.Equal(t, models.NotificationTypePayment, notifications[0].Type)
}

func TestDispatcher_RetriesTransientFailure(t *testing.T) {
	orderRepo := &stubOrderRepo{orders: map[int64]*models.Order{1: testOrder()}}
	notifRepo := &recordingNotifRepo{failFirst: 2}

	// две неудачные попытки, третья проходит
	d := newDispatcher(orderRepo, notifRepo, 3)
	d.Start()
	d.PaymentReceived(1)
	d.Stop()

	assert.Len(t, notifRepo.all(), 1)
}

func TestDispatcher_DeadLetterAfterExhaustedRetries(t *testing.T) {
	// заказа нет — каждая попытка падает, событие уходит в dead-letter,
	// но вызывающего это не роняет
	orderRepo := &stubOrderRepo{orders: map[int64]*models.Order{}}
	notifRepo := &recordingNotifRepo{}

	d := newDispatcher(orderRepo, notifRepo, 1)
	d.Start()
	d.OrderCreated(42)
	d.Stop()

	assert.Empty(t, notifRepo.all())
}
