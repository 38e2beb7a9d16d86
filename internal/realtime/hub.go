// Package realtime реализует websocket-шлюз с комнатами user:<id> и shop:<id>.
//
// Доставка best-effort: кадры не буферизуются для отключённых клиентов и не
// переигрываются. Клиент, чей буфер отправки заполнен, отключается.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/auth"
	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
)

const (
	defaultSendBuffer = 32
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = pongWait * 9 / 10
	maxMessageSize    = 4096
	fanoutTimeout     = 2 * time.Second
)

// Authenticator извлекает пользователя из запроса рукопожатия.
type Authenticator interface {
	FromRequest(r *http.Request) (auth.Principal, error)
}

// Fanout рассылает кадр всем экземплярам API (см. RedisBridge).
type Fanout interface {
	Publish(ctx context.Context, room string, frame []byte) error
}

// Frame описывает кадр, отправляемый клиенту.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// UserRoom и ShopRoom формируют имена комнат.
func UserRoom(userID string) string { return "user:" + userID }
func ShopRoom(shopID string) string { return "shop:" + shopID }

// Hub хранит подключения и комнаты. Реализует domain.RealtimeEmitter.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*client]struct{}
	clients map[*client]struct{}
	fanout  Fanout

	authenticator Authenticator
	upgrader      websocket.Upgrader
	sendBuffer    int
	logger        *log.Entry
	metrics       *metrics.Metrics
}

// Option настраивает Hub.
type Option func(*Hub)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithMetrics задаёт набор метрик.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithSendBuffer задаёт размер буфера отправки клиента.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// WithCheckOrigin задаёт проверку Origin для рукопожатия.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = check
	}
}

// NewHub создаёт пустой hub.
func NewHub(authenticator Authenticator, options ...Option) *Hub {
	h := &Hub{
		rooms:         make(map[string]map[*client]struct{}),
		clients:       make(map[*client]struct{}),
		authenticator: authenticator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer: defaultSendBuffer,
	}
	for _, option := range options {
		option(h)
	}
	if h.logger == nil {
		h.logger = log.WithField("component", "realtime")
	}
	if h.metrics == nil {
		h.metrics = metrics.Default()
	}
	return h
}

// SetFanout включает межпроцессную рассылку. При nil доставка только локальная.
func (h *Hub) SetFanout(fanout Fanout) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fanout = fanout
}

// ServeHTTP аутентифицирует рукопожатие и подключает клиента к его комнатам.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := h.authenticator.FromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	rooms := []string{UserRoom(principal.UserID)}
	if principal.Role == domain.UserRoleShopOwner && principal.ShopID != "" {
		rooms = append(rooms, ShopRoom(principal.ShopID))
	}

	c := newClient(h, conn, principal.UserID, rooms)
	h.register(c)
	go c.writePump()
	go c.readPump()
}

// EmitToUser отправляет событие в комнату user:<id>.
func (h *Hub) EmitToUser(userID, event string, data any) {
	h.emit(UserRoom(userID), event, data)
}

// EmitToShop отправляет событие в комнату shop:<id>.
func (h *Hub) EmitToShop(shopID, event string, data any) {
	h.emit(ShopRoom(shopID), event, data)
}

func (h *Hub) emit(room, event string, data any) {
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		h.logger.WithError(err).WithField("event", event).Error("failed to encode realtime frame")
		return
	}

	h.mu.RLock()
	fanout := h.fanout
	h.mu.RUnlock()
	if fanout != nil {
		ctx, cancel := context.WithTimeout(context.Background(), fanoutTimeout)
		err := fanout.Publish(ctx, room, frame)
		cancel()
		if err == nil {
			return
		}
		h.logger.WithError(err).WithField("room", room).Warn("realtime fanout failed, delivering locally")
	}
	h.Deliver(room, frame)
}

// Deliver отправляет готовый кадр локальным клиентам комнаты.
func (h *Hub) Deliver(room string, frame []byte) {
	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.enqueue(frame) {
			h.metrics.RecordRealtimeDropped()
			h.logger.WithFields(log.Fields{"room": room, "user_id": c.userID}).Warn("slow realtime client dropped")
			h.unregister(c)
		}
	}
}

// RoomSize возвращает число локальных клиентов в комнате.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close отключает всех клиентов.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	for _, room := range c.rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
	h.metrics.RealtimeConnected()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for _, room := range c.rooms {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	h.metrics.RealtimeDisconnected()
	c.close()
}

var _ domain.RealtimeEmitter = (*Hub)(nil)
