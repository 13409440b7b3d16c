package jwtmiddleware

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const UserIDKey contextKey = "userID"
const IsSellerKey contextKey = "isSeller"

// NewJWTMiddleware создаёт middleware для проверки JWT, секрет берётся из переменной окружения.
func NewJWTMiddleware() func(http.Handler) http.Handler {
	// Можно также принять секрет как параметр, если не хочется брать его внутри.
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		panic("JWT_SECRET is not set")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем токен из заголовка Authorization (формат: "Bearer <token>")
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid token format", http.StatusUnauthorized)
				return
			}
			tokenStr := parts[1]

			userID, _, isSeller, err := ParseToken(tokenStr, secret)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			// Устанавливаем пользователя в контекст запроса
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, IsSellerKey, isSeller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseToken разбирает и проверяет токен, возвращая userID, email и признак продавца.
// Вынесено отдельно, потому что websocket-рукопожатие проверяет токен из
// query-параметра, а не из заголовка.
func ParseToken(tokenStr, secret string) (int64, string, bool, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		// Проверка алгоритма
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, "", false, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", false, errors.New("invalid token claims")
	}

	// Извлекаем идентификатор пользователя из поля "sub"
	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, "", false, errors.New("invalid token claims: sub not found")
	}

	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, "", false, errors.New("invalid token claims: invalid user id")
	}

	email, _ := claims["email"].(string)
	isSeller, _ := claims["seller"].(bool)

	return userID, email, isSeller, nil
}

// FromContext извлекает userID из контекста.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}

// SellerFromContext извлекает признак продавца из контекста.
func SellerFromContext(ctx context.Context) bool {
	isSeller, _ := ctx.Value(IsSellerKey).(bool)
	return isSeller
}
