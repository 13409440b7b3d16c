package service

import (
	"errors"
	"fmt"
)

// Ошибки бизнес-логики. Транспортный слой отображает их в коды ответов:
// not found -> 404, forbidden -> 403, конфликты и нехватка остатка -> 409.
var (
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyPaid     = errors.New("order already paid")
	ErrPaymentDeclined = errors.New("payment declined")
	ErrTerminalStatus  = errors.New("order status is terminal")
	ErrInvalidStatus   = errors.New("invalid order status")
	ErrEmptyOrder      = errors.New("order must contain at least one item")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrEmptyMessage    = errors.New("message must contain content or attachment")
)

// InsufficientStockError сообщает, какого товара не хватило и сколько осталось.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Remaining   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: %d left", e.ProductName, e.Remaining)
}
