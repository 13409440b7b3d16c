package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus — статус заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус из допустимого набора
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal — из такого статуса заказ уже не переводится
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentMethod — способ оплаты
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCOD          PaymentMethod = "cod"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodBankTransfer, PaymentMethodCOD:
		return true
	}
	return false
}

// Order представляет заказ. Инварианты: Total = Subtotal + ShippingFee,
// Subtotal = сумма Total по всем позициям.
type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"order_number"`
	BuyerID         int64           `json:"buyer_id"`
	Status          OrderStatus     `json:"status"`
	ShippingName    string          `json:"shipping_name"`
	ShippingPhone   string          `json:"shipping_phone"`
	ShippingAddress string          `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   bool            `json:"payment_status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	Total           decimal.Decimal `json:"total"`
	Notes           string          `json:"notes,omitempty"`
	Items           []*OrderItem    `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem — позиция заказа. Название и цена — снимок товара на момент
// покупки, правки каталога задним числом заказ не меняют.
type OrderItem struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	SellerID     int64           `json:"seller_id"`
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	Quantity     int             `json:"quantity"`
	Total        decimal.Decimal `json:"total"` // ProductPrice * Quantity
}
