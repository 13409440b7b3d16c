package main

import (
	"context"

	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/thanwa/marketgo/internal/app"
	"github.com/thanwa/marketgo/internal/app/handlers"
	"github.com/thanwa/marketgo/internal/chat"
	"github.com/thanwa/marketgo/internal/config"
	"github.com/thanwa/marketgo/internal/jwt-new/jwtmiddleware"
	"github.com/thanwa/marketgo/internal/lib/logger"
	"github.com/thanwa/marketgo/internal/lib/logger/handlers/urllog"
	"github.com/thanwa/marketgo/internal/notify"
	"github.com/thanwa/marketgo/internal/service"
	"github.com/thanwa/marketgo/internal/storage"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения, конфигом и подключением к БД
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.DB.Close()

	shippingFee, err := decimal.NewFromString(cfg.Order.ShippingFee)
	if err != nil {
		log.Error("invalid shipping fee in config", slog.Any("error", err))
		panic(errors.Wrap(err, "invalid shipping fee in config"))
	}

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	productRepo := storage.NewProductRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)
	roomRepo := storage.NewRoomRepository(application.DB)
	messageRepo := storage.NewMessageRepository(application.DB)
	notifRepo := storage.NewNotificationRepository(application.DB)

	// диспетчер уведомлений: асинхронный, оформление заказа его не ждёт
	dispatcher := notify.NewDispatcher(log, orderRepo, notifRepo, cfg.Notify)
	dispatcher.Start()
	defer dispatcher.Stop()

	authService := service.NewAuthService(application.Logger, userRepo, time.Duration(application.Config.JWT.TokenTTL)*time.Minute)
	orderService := service.NewOrderService(application.Logger, application.DB, productRepo, orderRepo, dispatcher, shippingFee, cfg.Order.NumberAttempts)
	chatService := service.NewChatService(application.Logger, roomRepo, messageRepo, userRepo)

	hub := chat.NewHub(log)

	// эндпоинт для аутентификации
	router.Post("/api/auth", handlers.AuthHandler(application.Logger, authService))

	// websocket сам проверяет токен: браузер не ставит заголовки при рукопожатии
	router.Get("/ws/chat/{roomID}", handlers.ChatWSHandler(application.Logger, hub, chatService))

	router.Group(func(r chi.Router) {
		jwtMW := jwtmiddleware.NewJWTMiddleware()
		r.Use(jwtMW)
		// заказы: оформление, списки, статус, mock-оплата
		r.Post("/api/orders", handlers.CheckoutHandler(application.Logger, orderService))
		r.Get("/api/orders", handlers.ListOrdersHandler(application.Logger, orderService))
		r.Get("/api/orders/{id}", handlers.GetOrderHandler(application.Logger, orderService))
		r.Post("/api/orders/{id}/status", handlers.UpdateStatusHandler(application.Logger, orderService))
		r.Post("/api/orders/{id}/payment", handlers.MockPaymentHandler(application.Logger, orderService))
		// чат: комнаты и история
		r.Post("/api/chat/rooms", handlers.CreateOrGetRoomHandler(application.Logger, chatService))
		r.Get("/api/chat/rooms", handlers.ListRoomsHandler(application.Logger, chatService))
		r.Get("/api/chat/rooms/{id}/messages", handlers.RoomMessagesHandler(application.Logger, chatService))
		// уведомления
		r.Get("/api/notifications", handlers.ListNotificationsHandler(application.Logger, notifRepo))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
