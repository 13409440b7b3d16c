package storage_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/thanwa/marketgo/internal/domain/models"
	"github.com/thanwa/marketgo/internal/storage"
)

func TestGetUserByEmail_Success(t *testing.T) {
	// Создаем sqlmock для эмуляции базы данных.
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "email", "pass_hash", "is_seller"}).
		AddRow(1, "buyer@example.com", []byte("hashed-password"), false)

	mock.ExpectQuery("SELECT id, email, pass_hash, is_seller FROM users WHERE email = \\$1").
		WithArgs("buyer@example.com").WillReturnRows(rows)

	user, err := repo.GetUserByEmail(ctx, "buyer@example.com")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "buyer@example.com", user.Email)
	assert.False(t, user.IsSeller)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)

	// Запрос возвращает 0 строк — ожидаем ErrUserNotFound.
	rows := sqlmock.NewRows([]string{"id", "email", "pass_hash", "is_seller"})
	mock.ExpectQuery("SELECT id, email, pass_hash, is_seller FROM users WHERE email = \\$1").
		WithArgs("nobody@example.com").WillReturnRows(rows)

	user, err := repo.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	assert.Nil(t, user)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (email, pass_hash, is_seller) VALUES ($1, $2, $3) RETURNING id")).
		WithArgs("seller@example.com", []byte("hash"), true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	user, err := repo.CreateUser(context.Background(), &models.User{
		Email:    "seller@example.com",
		PassHash: []byte("hash"),
		IsSeller: true,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(5), user.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockProductByIDTx_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, seller_id, name, price, stock, is_active FROM products WHERE id = \\$1 AND is_active = TRUE FOR UPDATE").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seller_id", "name", "price", "stock", "is_active"}))

	tx, err := db.Begin()
	assert.NoError(t, err)

	product, err := repo.LockProductByIDTx(context.Background(), tx, 99)
	assert.ErrorIs(t, err, storage.ErrProductNotFound)
	assert.Nil(t, product)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStockTx_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1")).
		WithArgs(2, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	assert.NoError(t, err)

	err = repo.DecrementStockTx(context.Background(), tx, 1, 2)
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStockTx_Insufficient(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)

	mock.ExpectBegin()
	// Остатка не хватает — условие stock >= $1 не пропускает строку.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1")).
		WithArgs(5, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Begin()
	assert.NoError(t, err)

	err = repo.DecrementStockTx(context.Background(), tx, 1, 5)
	assert.ErrorIs(t, err, storage.ErrInsufficientStock)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderTx_NumberCollision(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)

	mock.ExpectBegin()
	// Нарушение уникальности order_number транслируется в ErrOrderNumberTaken.
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnError(&pq.Error{Code: "23505"})

	tx, err := db.Begin()
	assert.NoError(t, err)

	_, err = repo.CreateOrderTx(context.Background(), tx, &models.Order{
		OrderNumber:   "ORDAABBCCDDEEFF",
		BuyerID:       1,
		Status:        models.OrderStatusPending,
		PaymentMethod: models.PaymentMethodCOD,
	})
	assert.ErrorIs(t, err, storage.ErrOrderNumberTaken)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalculateTotalsTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	shippingFee := decimal.RequireFromString("40.00")

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE orders SET").
		WithArgs(int64(1), shippingFee).
		WillReturnRows(sqlmock.NewRows([]string{"subtotal", "total"}).AddRow("500.00", "540.00"))

	tx, err := db.Begin()
	assert.NoError(t, err)

	subtotal, total, err := repo.CalculateTotalsTx(context.Background(), tx, 1, shippingFee)
	assert.NoError(t, err)
	assert.True(t, subtotal.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, total.Equal(decimal.RequireFromString("540.00")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID_WithItems(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()

	orderRows := sqlmock.NewRows([]string{
		"id", "order_number", "buyer_id", "status", "shipping_name", "shipping_phone", "shipping_address",
		"payment_method", "payment_status", "subtotal", "shipping_fee", "total", "notes", "created_at", "updated_at",
	}).AddRow(1, "ORDAABBCCDDEEFF", 7, "pending", "Somchai", "0812345678", "Bangkok",
		"cod", false, "500.00", "40.00", "540.00", "", now, now)
	mock.ExpectQuery("SELECT id, order_number, buyer_id, status").
		WithArgs(int64(1)).WillReturnRows(orderRows)

	itemRows := sqlmock.NewRows([]string{
		"id", "order_id", "product_id", "seller_id", "product_name", "product_price", "quantity", "total",
	}).AddRow(10, 1, 3, 5, "keyboard", "250.00", 2, "500.00")
	mock.ExpectQuery("SELECT id, order_id, product_id, seller_id, product_name, product_price, quantity, total").
		WithArgs(int64(1)).WillReturnRows(itemRows)

	order, err := repo.GetOrderByID(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, "ORDAABBCCDDEEFF", order.OrderNumber)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Len(t, order.Items, 1)
	assert.Equal(t, "keyboard", order.Items[0].ProductName)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("540.00")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2")).
		WithArgs(models.OrderStatusShipped, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateStatus(context.Background(), 42, models.OrderStatusShipped)
	assert.ErrorIs(t, err, storage.ErrOrderNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPaid_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET payment_status = TRUE, status = $1, updated_at = NOW() WHERE id = $2 AND payment_status = FALSE")).
		WithArgs(models.OrderStatusPaid, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.SetPaid(context.Background(), 1)
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPaid_AlreadyPaid(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)

	// guarded UPDATE не пропускает уже оплаченную строку
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET payment_status = TRUE, status = $1, updated_at = NOW() WHERE id = $2 AND payment_status = FALSE")).
		WithArgs(models.OrderStatusPaid, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.SetPaid(context.Background(), 1)
	assert.ErrorIs(t, err, storage.ErrOrderAlreadyPaid)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRoom_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewRoomRepository(db)

	mock.ExpectQuery("SELECT id, room_type, participant1_id, participant2_id, product_id, is_active, created_at, updated_at FROM chat_rooms").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "room_type", "participant1_id", "participant2_id", "product_id", "is_active", "created_at", "updated_at",
		}))

	room, err := repo.FindRoom(context.Background(), 1, 2, nil)
	assert.ErrorIs(t, err, storage.ErrRoomNotFound)
	assert.Nil(t, room)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoom_DuplicatePair(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewRoomRepository(db)

	// Частичный уникальный индекс по паре участников срабатывает при гонке.
	mock.ExpectQuery("INSERT INTO chat_rooms").
		WillReturnError(&pq.Error{Code: "23505"})

	room, err := repo.CreateRoom(context.Background(), &models.ChatRoom{
		RoomType:     models.RoomTypeBuyerSeller,
		Participant1: 1,
		Participant2: 2,
	})
	assert.ErrorIs(t, err, storage.ErrRoomExists)
	assert.Nil(t, room)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoom_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewRoomRepository(db)
	now := time.Now()
	productID := int64(3)

	rows := sqlmock.NewRows([]string{
		"id", "room_type", "participant1_id", "participant2_id", "product_id", "is_active", "created_at", "updated_at",
	}).AddRow(1, "buyer_seller", 1, 2, productID, true, now, now)
	mock.ExpectQuery("INSERT INTO chat_rooms").WillReturnRows(rows)

	room, err := repo.CreateRoom(context.Background(), &models.ChatRoom{
		RoomType:     models.RoomTypeBuyerSeller,
		Participant1: 1,
		Participant2: 2,
		ProductID:    &productID,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), room.ID)
	assert.True(t, room.IsActive)
	assert.NotNil(t, room.ProductID)
	assert.Equal(t, productID, *room.ProductID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessage_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewMessageRepository(db)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(int64(1), int64(7), models.MessageTypeText, "hi", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(100, now))

	msg, err := repo.CreateMessage(context.Background(), &models.Message{
		RoomID:      1,
		SenderID:    7,
		MessageType: models.MessageTypeText,
		Content:     "hi",
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(100), msg.ID)
	assert.Equal(t, now, msg.CreatedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkMessagesRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewMessageRepository(db)

	mock.ExpectExec("UPDATE messages SET is_read = TRUE").
		WithArgs(int64(1), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.MarkMessagesRead(context.Background(), 1, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Повторный вызов не затрагивает строк.
	mock.ExpectExec("UPDATE messages SET is_read = TRUE").
		WithArgs(int64(1), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err = repo.MarkMessagesRead(context.Background(), 1, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMessagesByRoom_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewMessageRepository(db)

	mock.ExpectQuery("SELECT m.id, m.room_id, m.sender_id").
		WillReturnError(errors.New("db error"))

	messages, err := repo.GetMessagesByRoom(context.Background(), 1)
	assert.Error(t, err)
	assert.Nil(t, messages)

	assert.NoError(t, mock.ExpectationsWereMet())
}
