package models

// User представляет пользователя маркетплейса
type User struct {
	ID       int64
	Email    string
	PassHash []byte
	IsSeller bool // продавец может менять статусы заказов со своими товарами
}
