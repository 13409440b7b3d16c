package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/thanwa/marketgo/internal/domain/models"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductStorage описывает методы каталога, нужные движку заказов:
// чтение товара и атомарное списание остатка.
type ProductStorage interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	// LockProductByIDTx читает активный товар под row-level блокировкой,
	// чтобы конкурентные оформления одного товара сериализовались.
	LockProductByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error)
	// DecrementStockTx списывает остаток с защитой от ухода в минус.
	DecrementStockTx(ctx context.Context, tx *sql.Tx, id int64, qty int) error
}

type productRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *productRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	product := &models.Product{}
	row := r.db.QueryRowContext(ctx,
		"SELECT id, seller_id, name, price, stock, is_active FROM products WHERE id = $1", id)
	if err := row.Scan(&product.ID, &product.SellerID, &product.Name, &product.Price, &product.Stock, &product.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return product, nil
}

func (r *productRepository) LockProductByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	product := &models.Product{}

	row := tx.QueryRowContext(ctx,
		"SELECT id, seller_id, name, price, stock, is_active FROM products WHERE id = $1 AND is_active = TRUE FOR UPDATE", id)
	if err := row.Scan(&product.ID, &product.SellerID, &product.Name, &product.Price, &product.Stock, &product.IsActive); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "55P03" { // lock
				return nil, fmt.Errorf("resource is locked, please try again: %w", err)
			}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return product, nil
}

// DecrementStockTx уменьшает остаток только если его хватает, иначе строка
// не затрагивается и возвращается ErrInsufficientStock.
func (r *productRepository) DecrementStockTx(ctx context.Context, tx *sql.Tx, id int64, qty int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1", qty, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientStock
	}
	return nil
}
