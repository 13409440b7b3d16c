package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thanwa/marketgo/internal/domain/models"
	"github.com/thanwa/marketgo/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Client — одно живое websocket-соединение участника комнаты.
// Жизненный цикл: после успешной авторизации соединение входит в группу
// комнаты, оттуда его гарантированно снимает defer в readPump — в том числе
// при аварийном разрыве.
type Client struct {
	hub  *Hub
	chat service.ChatService
	log  *slog.Logger

	conn *websocket.Conn
	send chan []byte

	roomID   int64
	userID   int64
	username string

	closeOnce sync.Once
}

// ServeRoom регистрирует соединение в группе комнаты, оповещает остальных
// о присутствии и запускает насосы чтения/записи. Блокируется до закрытия
// соединения. Авторизация (участник ли пользователь в комнате) — забота
// вызывающего: сюда соединение попадает уже проверенным.
func ServeRoom(log *slog.Logger, hub *Hub, chatService service.ChatService, conn *websocket.Conn, roomID, userID int64, username string) {
	c := &Client{
		hub:      hub,
		chat:     chatService,
		log:      log,
		conn:     conn,
		send:     make(chan []byte, 64),
		roomID:   roomID,
		userID:   userID,
		username: username,
	}

	c.hub.Join(roomID, c)

	// presence: online всем остальным членам группы, не себе
	c.hub.Broadcast(roomID, c, statusEvent{
		Type:     "status",
		UserID:   userID,
		Username: username,
		Status:   "online",
	})

	go c.writePump()
	c.readPump()
}

// readPump читает входящие кадры до разрыва соединения.
// Выход из группы и offline-событие выполняются в defer и происходят
// при любом способе завершения.
func (c *Client) readPump() {
	defer func() {
		c.hub.Broadcast(c.roomID, c, statusEvent{
			Type:     "status",
			UserID:   c.userID,
			Username: c.username,
			Status:   "offline",
		})
		c.hub.Leave(c.roomID, c)
		c.shutdown()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket closed unexpectedly", slog.Int64("roomID", c.roomID), slog.Any("error", err))
			}
			return
		}

		var ev inboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// неразобранный кадр — нарушение протокола, соединение закрывается
			c.log.Warn("malformed frame, closing connection",
				slog.Int64("roomID", c.roomID),
				slog.Int64("userID", c.userID),
				slog.Any("error", err),
			)
			return
		}

		switch ev.Type {
		case inboundMessage:
			c.handleMessage(ev)
		case inboundTyping:
			c.handleTyping(ev)
		case inboundRead:
			c.handleRead()
		default:
			// незнакомый тип события игнорируется
		}
	}
}

// handleMessage персистит сообщение и рассылает его всем членам группы,
// включая отправителя — так его UI получает подтверждение с серверными id и временем.
func (c *Client) handleMessage(ev inboundEvent) {
	err := c.hub.Publish(c.roomID, nil, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		msg, err := c.chat.SaveMessage(ctx, c.roomID, c.userID, service.MessageInput{
			MessageType: models.MessageType(ev.MessageType),
			Content:     ev.Content,
			ImageURL:    ev.ImageURL,
			FileURL:     ev.FileURL,
		})
		if err != nil {
			return nil, err
		}
		msg.SenderName = c.username
		return messageEvent{Type: "message", Message: msg}, nil
	})
	if err != nil {
		c.log.Warn("failed to save message",
			slog.Int64("roomID", c.roomID),
			slog.Int64("userID", c.userID),
			slog.Any("error", err),
		)
	}
}

// handleTyping рассылает индикатор набора остальным; не персистится
func (c *Client) handleTyping(ev inboundEvent) {
	c.hub.Broadcast(c.roomID, c, typingEvent{
		Type:     "typing",
		UserID:   c.userID,
		Username: c.username,
		IsTyping: ev.IsTyping,
	})
}

// handleRead помечает чужие сообщения прочитанными и оповещает остальных
func (c *Client) handleRead() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.chat.MarkRead(ctx, c.roomID, c.userID); err != nil {
		c.log.Warn("failed to mark messages read",
			slog.Int64("roomID", c.roomID),
			slog.Int64("userID", c.userID),
			slog.Any("error", err),
		)
		return
	}

	c.hub.Broadcast(c.roomID, c, readEvent{Type: "read", UserID: c.userID})
}

// writePump пишет кадры из буфера и поддерживает соединение пингами
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shutdown закрывает канал отправки ровно один раз
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
