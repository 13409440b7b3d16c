package chat

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// group — живые соединения одной комнаты. Мьютекс группы держится и на время
// persist+рассылки сообщения (см. Publish), поэтому все соединения видят
// сообщения комнаты в порядке их сохранения.
type group struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
}

// Hub — реестр широковещательных групп по комнатам. Вход и выход из группы —
// атомарные операции реестра, членство безопасно при конкурентных connect/disconnect.
type Hub struct {
	log *slog.Logger

	mu     sync.RWMutex
	groups map[int64]*group
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:    log,
		groups: make(map[int64]*group),
	}
}

func (h *Hub) getOrCreateGroup(roomID int64) *group {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[roomID]
	if !ok {
		g = &group{clients: make(map[*Client]struct{})}
		h.groups[roomID] = g
	}
	return g
}

func (h *Hub) getGroup(roomID int64) *group {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.groups[roomID]
}

// Join регистрирует соединение в группе комнаты. Реестр заблокирован на всё
// время входа: Leave не может удалить опустевшую группу между её выбором
// и добавлением клиента, иначе клиент остался бы в осиротевшей группе.
func (h *Hub) Join(roomID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[roomID]
	if !ok {
		g = &group{clients: make(map[*Client]struct{})}
		h.groups[roomID] = g
	}
	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.mu.Unlock()
}

// Leave снимает соединение с группы; пустая группа удаляется из реестра
func (h *Hub) Leave(roomID int64, c *Client) {
	g := h.getGroup(roomID)
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.clients, c)
	empty := len(g.clients) == 0
	g.mu.Unlock()

	if empty {
		h.mu.Lock()
		if g, ok := h.groups[roomID]; ok {
			g.mu.Lock()
			if len(g.clients) == 0 {
				delete(h.groups, roomID)
			}
			g.mu.Unlock()
		}
		h.mu.Unlock()
	}
}

// Broadcast рассылает событие всем членам группы, кроме exclude (nil — всем).
func (h *Hub) Broadcast(roomID int64, exclude *Client, v interface{}) {
	g := h.getGroup(roomID)
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	h.send(g, exclude, v)
}

// Publish выполняет persist и рассылает его результат под блокировкой группы:
// два конкурирующих отправителя не могут доставить сообщения в порядке,
// отличном от порядка сохранения.
func (h *Hub) Publish(roomID int64, exclude *Client, persist func() (interface{}, error)) error {
	g := h.getOrCreateGroup(roomID)
	g.mu.Lock()
	defer g.mu.Unlock()

	v, err := persist()
	if err != nil {
		return err
	}
	h.send(g, exclude, v)
	return nil
}

// send пишет в буферы клиентов; вызывается только под g.mu.
// Клиент с переполненным буфером отключается, чтобы не тормозить комнату.
func (h *Hub) send(g *group, exclude *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to marshal event", slog.Any("error", err))
		return
	}
	for c := range g.clients {
		if c == exclude {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.Warn("client send buffer full, dropping connection",
				slog.Int64("roomID", c.roomID),
				slog.Int64("userID", c.userID),
			)
			delete(g.clients, c)
			c.shutdown()
		}
	}
}
