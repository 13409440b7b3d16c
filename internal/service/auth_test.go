package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/thanwa/marketgo/internal/domain/models"
	"github.com/thanwa/marketgo/internal/jwt-new/jwtmiddleware"
	"github.com/thanwa/marketgo/internal/service"
)

func TestLogin_RegistersNewUser(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	users := &fakeUserRepo{users: map[int64]*models.User{}}
	svc := service.NewAuthService(testLogger(), users, time.Hour)

	token, err := svc.Login(context.Background(), "seller@example.com", "password123", true)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	// новый пользователь создан с хэшированным паролем и ролью продавца
	assert.Len(t, users.users, 1)
	created := users.users[1]
	assert.Equal(t, "seller@example.com", created.Email)
	assert.True(t, created.IsSeller)
	assert.NotEqual(t, []byte("password123"), created.PassHash)

	// в токене — id, email и признак продавца
	userID, email, isSeller, err := jwtmiddleware.ParseToken(token, "test-secret")
	assert.NoError(t, err)
	assert.Equal(t, created.ID, userID)
	assert.Equal(t, "seller@example.com", email)
	assert.True(t, isSeller)
}

func TestLogin_ExistingUser(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	users := &fakeUserRepo{users: map[int64]*models.User{}}
	svc := service.NewAuthService(testLogger(), users, time.Hour)

	_, err := svc.Login(context.Background(), "buyer@example.com", "password123", false)
	assert.NoError(t, err)

	// повторный вход с верным паролем
	token, err := svc.Login(context.Background(), "buyer@example.com", "password123", false)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Len(t, users.users, 1)

	// неверный пароль отклоняется
	_, err = svc.Login(context.Background(), "buyer@example.com", "wrong-password", false)
	assert.Error(t, err)
}

func TestLogin_SellerFlagIgnoredForExistingUser(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	users := &fakeUserRepo{users: map[int64]*models.User{}}
	svc := service.NewAuthService(testLogger(), users, time.Hour)

	_, err := svc.Login(context.Background(), "buyer@example.com", "password123", false)
	assert.NoError(t, err)

	// роль существующего аккаунта не повышается флагом из запроса
	token, err := svc.Login(context.Background(), "buyer@example.com", "password123", true)
	assert.NoError(t, err)

	_, _, isSeller, err := jwtmiddleware.ParseToken(token, "test-secret")
	assert.NoError(t, err)
	assert.False(t, isSeller)
}
