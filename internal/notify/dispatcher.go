package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/thanwa/marketgo/internal/config"
	"github.com/thanwa/marketgo/internal/domain/models"
	"github.com/thanwa/marketgo/internal/storage"
)

type eventKind string

const (
	eventOrderCreated    eventKind = "order_created"
	eventPaymentReceived eventKind = "payment_received"
)

type event struct {
	kind    eventKind
	orderID int64
}

// Dispatcher — асинхронный веер уведомлений о заказах: очередь в памяти,
// пул воркеров, ограниченные повторы с бэкоффом. Относительно оформления
// заказа это fire-and-forget: сбой здесь никогда не доходит до покупателя,
// исчерпавшие повторы события уходят в dead-letter лог.
type Dispatcher struct {
	log        *slog.Logger
	orderRepo  storage.OrderStorage
	notifRepo  storage.NotificationStorage
	queue      chan event
	wg         sync.WaitGroup
	maxRetries int
	backoff    time.Duration
	workers    int
}

func NewDispatcher(log *slog.Logger, orderRepo storage.OrderStorage, notifRepo storage.NotificationStorage, cfg config.NotifyConfig) *Dispatcher {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		log:        log,
		orderRepo:  orderRepo,
		notifRepo:  notifRepo,
		queue:      make(chan event, queueSize),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		workers:    workers,
	}
}

// Start запускает воркеров очереди
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.process(ev)
			}
		}()
	}
}

// Stop дорабатывает очередь и останавливает воркеров
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
}

// OrderCreated ставит событие в очередь, не блокируя вызывающего.
// Переполненная очередь — тоже dead-letter, с записью в лог.
func (d *Dispatcher) OrderCreated(orderID int64) {
	d.enqueue(event{kind: eventOrderCreated, orderID: orderID})
}

// PaymentReceived ставит в очередь уведомление об успешной оплате
func (d *Dispatcher) PaymentReceived(orderID int64) {
	d.enqueue(event{kind: eventPaymentReceived, orderID: orderID})
}

func (d *Dispatcher) enqueue(ev event) {
	select {
	case d.queue <- ev:
	default:
		d.log.Error("notification queue is full, event dead-lettered",
			slog.String("kind", string(ev.kind)),
			slog.Int64("orderID", ev.orderID),
		)
	}
}

func (d *Dispatcher) process(ev event) {
	const op = "notify.Dispatcher.process"
	logger := d.log.With(slog.String("op", op), slog.String("kind", string(ev.kind)), slog.Int64("orderID", ev.orderID))

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * d.backoff)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		lastErr = d.deliver(ctx, ev)
		cancel()

		if lastErr == nil {
			logger.Info("notifications delivered", slog.Int("attempt", attempt+1))
			return
		}
		logger.Warn("notification delivery failed", slog.Int("attempt", attempt+1), slog.Any("error", lastErr))
	}

	// повторы исчерпаны
	logger.Error("notification dead-lettered", slog.Any("error", lastErr))
}

func (d *Dispatcher) deliver(ctx context.Context, ev event) error {
	order, err := d.orderRepo.GetOrderByID(ctx, ev.orderID)
	if err != nil {
		return fmt.Errorf("failed to get order: %w", err)
	}

	switch ev.kind {
	case eventOrderCreated:
		return d.deliverOrderCreated(ctx, order)
	case eventPaymentReceived:
		return d.deliverPaymentReceived(ctx, order)
	default:
		return fmt.Errorf("unknown event kind: %s", ev.kind)
	}
}

// deliverOrderCreated уведомляет покупателя и каждого продавца из позиций заказа
func (d *Dispatcher) deliverOrderCreated(ctx context.Context, order *models.Order) error {
	if err := d.notifRepo.CreateNotification(ctx, &models.Notification{
		UserID:  order.BuyerID,
		Type:    models.NotificationTypeOrder,
		Title:   "Order created",
		Message: fmt.Sprintf("Order #%s has been created, total %s", order.OrderNumber, order.Total.StringFixed(2)),
		Link:    fmt.Sprintf("/orders/%d", order.ID),
	}); err != nil {
		return fmt.Errorf("buyer notification: %w", err)
	}

	sellerIDs := lo.Uniq(lo.Map(order.Items, func(item *models.OrderItem, _ int) int64 {
		return item.SellerID
	}))
	for _, sellerID := range sellerIDs {
		if err := d.notifRepo.CreateNotification(ctx, &models.Notification{
			UserID:  sellerID,
			Type:    models.NotificationTypeOrder,
			Title:   "New order received",
			Message: fmt.Sprintf("You have a new order #%s", order.OrderNumber),
			Link:    fmt.Sprintf("/seller/orders/%d", order.ID),
		}); err != nil {
			return fmt.Errorf("seller %d notification: %w", sellerID, err)
		}
	}
	return nil
}

func (d *Dispatcher) deliverPaymentReceived(ctx context.Context, order *models.Order) error {
	if err := d.notifRepo.CreateNotification(ctx, &models.Notification{
		UserID:  order.BuyerID,
		Type:    models.NotificationTypePayment,
		Title:   "Payment received",
		Message: fmt.Sprintf("Order #%s has been paid", order.OrderNumber),
		Link:    fmt.Sprintf("/orders/%d", order.ID),
	}); err != nil {
		return fmt.Errorf("payment notification: %w", err)
	}
	return nil
}
