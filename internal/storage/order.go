package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/thanwa/marketgo/internal/domain/models"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderNumberTaken = errors.New("order number already taken")
	ErrOrderAlreadyPaid = errors.New("order already paid")
)

// OrderStorage описывает методы для работы с заказами и их позициями.
type OrderStorage interface {
	// CreateOrderTx вставляет новый заказ (итоги нулевые, считаются позже по позициям).
	CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error)
	// CreateOrderItemTx вставляет позицию-снимок товара.
	CreateOrderItemTx(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error
	// CalculateTotalsTx пересчитывает subtotal/total по сохранённым позициям.
	CalculateTotalsTx(ctx context.Context, tx *sql.Tx, orderID int64, shippingFee decimal.Decimal) (subtotal, total decimal.Decimal, err error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByBuyer(ctx context.Context, buyerID int64, status models.OrderStatus) ([]*models.Order, error)
	GetOrdersBySeller(ctx context.Context, sellerID int64, status models.OrderStatus) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
	// SetPaid атомарно выставляет оплату только неоплаченному заказу;
	// повторная оплата возвращает ErrOrderAlreadyPaid.
	SetPaid(ctx context.Context, orderID int64) error
}

// orderRepository — конкретная реализация OrderStorage.
type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) *orderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error) {
	query := `INSERT INTO orders
	          (order_number, buyer_id, status, shipping_name, shipping_phone, shipping_address,
	           payment_method, payment_status, subtotal, shipping_fee, total, notes, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, 0, $8, 0, $9, NOW(), NOW())
	          RETURNING id`
	var id int64
	err := tx.QueryRowContext(ctx, query,
		order.OrderNumber, order.BuyerID, order.Status,
		order.ShippingName, order.ShippingPhone, order.ShippingAddress,
		order.PaymentMethod, order.ShippingFee, order.Notes,
	).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return 0, ErrOrderNumberTaken
		}
		return 0, fmt.Errorf("failed to create order: %w", err)
	}
	return id, nil
}

func (r *orderRepository) CreateOrderItemTx(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	query := `INSERT INTO order_items
	          (order_id, product_id, seller_id, product_name, product_price, quantity, total)
	          VALUES ($1, $2, $3, $4, $5, $6, $5 * $6)`
	_, err := tx.ExecContext(ctx, query,
		item.OrderID, item.ProductID, item.SellerID,
		item.ProductName, item.ProductPrice, item.Quantity,
	)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

// CalculateTotalsTx считает итоги на стороне БД — от тех позиций, которые
// реально сохранены, а не от входных данных запроса.
func (r *orderRepository) CalculateTotalsTx(ctx context.Context, tx *sql.Tx, orderID int64, shippingFee decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	query := `UPDATE orders SET
	            subtotal = s.sum,
	            total = s.sum + $2,
	            updated_at = NOW()
	          FROM (SELECT COALESCE(SUM(total), 0) AS sum FROM order_items WHERE order_id = $1) s
	          WHERE id = $1
	          RETURNING subtotal, total`
	var subtotal, total decimal.Decimal
	if err := tx.QueryRowContext(ctx, query, orderID, shippingFee).Scan(&subtotal, &total); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to calculate totals: %w", err)
	}
	return subtotal, total, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	order := &models.Order{}
	query := `SELECT id, order_number, buyer_id, status, shipping_name, shipping_phone, shipping_address,
	                 payment_method, payment_status, subtotal, shipping_fee, total, COALESCE(notes, ''), created_at, updated_at
	          FROM orders WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	if err := row.Scan(
		&order.ID, &order.OrderNumber, &order.BuyerID, &order.Status,
		&order.ShippingName, &order.ShippingPhone, &order.ShippingAddress,
		&order.PaymentMethod, &order.PaymentStatus,
		&order.Subtotal, &order.ShippingFee, &order.Total,
		&order.Notes, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	items, err := r.getOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (r *orderRepository) getOrderItems(ctx context.Context, orderID int64) ([]*models.OrderItem, error) {
	query := `SELECT id, order_id, product_id, seller_id, product_name, product_price, quantity, total
	          FROM order_items WHERE order_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		item := &models.OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.SellerID,
			&item.ProductName, &item.ProductPrice, &item.Quantity, &item.Total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// GetOrdersByBuyer возвращает заказы покупателя, опционально фильтруя по статусу.
func (r *orderRepository) GetOrdersByBuyer(ctx context.Context, buyerID int64, status models.OrderStatus) ([]*models.Order, error) {
	query := `SELECT id, order_number, buyer_id, status, payment_status, subtotal, shipping_fee, total, created_at, updated_at
	          FROM orders WHERE buyer_id = $1 AND ($2 = '' OR status = $2)
	          ORDER BY created_at DESC`
	return r.queryOrders(ctx, query, buyerID, string(status))
}

// GetOrdersBySeller возвращает заказы, в которых есть хотя бы одна позиция продавца.
func (r *orderRepository) GetOrdersBySeller(ctx context.Context, sellerID int64, status models.OrderStatus) ([]*models.Order, error) {
	query := `SELECT DISTINCT o.id, o.order_number, o.buyer_id, o.status, o.payment_status, o.subtotal, o.shipping_fee, o.total, o.created_at, o.updated_at
	          FROM orders o
	          JOIN order_items i ON i.order_id = o.id
	          WHERE i.seller_id = $1 AND ($2 = '' OR o.status = $2)
	          ORDER BY o.created_at DESC`
	return r.queryOrders(ctx, query, sellerID, string(status))
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.BuyerID, &order.Status, &order.PaymentStatus,
			&order.Subtotal, &order.ShippingFee, &order.Total, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2", status, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SetPaid проводит оплату одним guarded-UPDATE: из двух конкурирующих
// платежей строку меняет ровно один, второй не затрагивает строк.
// Существование заказа проверяет вызывающий, поэтому 0 строк — повторная оплата.
func (r *orderRepository) SetPaid(ctx context.Context, orderID int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = TRUE, status = $1, updated_at = NOW() WHERE id = $2 AND payment_status = FALSE",
		models.OrderStatusPaid, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderAlreadyPaid
	}
	return nil
}
