package models

import "github.com/shopspring/decimal"

// Product представляет товар каталога
type Product struct {
	ID       int64
	SellerID int64
	Name     string
	Price    decimal.Decimal // цена с двумя знаками после запятой
	Stock    int
	IsActive bool
}
